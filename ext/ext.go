package ext

import (
	"context"
	"time"

	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobScheduled is called after a job record is created.
type JobScheduled interface {
	OnJobScheduled(ctx context.Context, j *job.Job) error
}

// JobClaimed is called when this process claims a job.
type JobClaimed interface {
	OnJobClaimed(ctx context.Context, j *job.Job) error
}

// JobFinished is called after a handler returns successfully.
type JobFinished interface {
	OnJobFinished(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobErrored is called when a job ends as errored.
type JobErrored interface {
	OnJobErrored(ctx context.Context, j *job.Job, err error) error
}

// JobKilled is called when a running job ends as killed.
type JobKilled interface {
	OnJobKilled(ctx context.Context, j *job.Job) error
}

// JobPaused is called when a resumable job is paused by shutdown.
type JobPaused interface {
	OnJobPaused(ctx context.Context, j *job.Job) error
}

// JobSkipped is called when an exclusive job is recorded as skipped.
type JobSkipped interface {
	OnJobSkipped(ctx context.Context, j *job.Job) error
}

// JobCrashed is called after a job orphaned by a dead worker is reclaimed.
type JobCrashed interface {
	OnJobCrashed(ctx context.Context, j *job.Job) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// CronTicked is called when a cron fires and its task is created.
type CronTicked interface {
	OnCronTicked(ctx context.Context, cron *job.Job, task *job.Job) error
}

// HeartbeatFailed is called on every failed liveness heartbeat.
type HeartbeatFailed interface {
	OnHeartbeatFailed(ctx context.Context, workerID id.WorkerID, failures int, err error) error
}

// WorkerRecovered is called when an inline worker recreates its record.
type WorkerRecovered interface {
	OnWorkerRecovered(ctx context.Context, workerID id.WorkerID) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
