package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time.
type jobScheduledEntry struct {
	name string
	hook JobScheduled
}

type jobClaimedEntry struct {
	name string
	hook JobClaimed
}

type jobFinishedEntry struct {
	name string
	hook JobFinished
}

type jobErroredEntry struct {
	name string
	hook JobErrored
}

type jobKilledEntry struct {
	name string
	hook JobKilled
}

type jobPausedEntry struct {
	name string
	hook JobPaused
}

type jobSkippedEntry struct {
	name string
	hook JobSkipped
}

type jobCrashedEntry struct {
	name string
	hook JobCrashed
}

type cronTickedEntry struct {
	name string
	hook CronTicked
}

type heartbeatFailedEntry struct {
	name string
	hook HeartbeatFailed
}

type workerRecoveredEntry struct {
	name string
	hook WorkerRecovered
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
//
// Registration is not synchronized: register every extension before the
// processor starts.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobScheduled    []jobScheduledEntry
	jobClaimed      []jobClaimedEntry
	jobFinished     []jobFinishedEntry
	jobErrored      []jobErroredEntry
	jobKilled       []jobKilledEntry
	jobPaused       []jobPausedEntry
	jobSkipped      []jobSkippedEntry
	jobCrashed      []jobCrashedEntry
	cronTicked      []cronTickedEntry
	heartbeatFailed []heartbeatFailedEntry
	workerRecovered []workerRecoveredEntry
	shutdown        []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobScheduled); ok {
		r.jobScheduled = append(r.jobScheduled, jobScheduledEntry{name, h})
	}
	if h, ok := e.(JobClaimed); ok {
		r.jobClaimed = append(r.jobClaimed, jobClaimedEntry{name, h})
	}
	if h, ok := e.(JobFinished); ok {
		r.jobFinished = append(r.jobFinished, jobFinishedEntry{name, h})
	}
	if h, ok := e.(JobErrored); ok {
		r.jobErrored = append(r.jobErrored, jobErroredEntry{name, h})
	}
	if h, ok := e.(JobKilled); ok {
		r.jobKilled = append(r.jobKilled, jobKilledEntry{name, h})
	}
	if h, ok := e.(JobPaused); ok {
		r.jobPaused = append(r.jobPaused, jobPausedEntry{name, h})
	}
	if h, ok := e.(JobSkipped); ok {
		r.jobSkipped = append(r.jobSkipped, jobSkippedEntry{name, h})
	}
	if h, ok := e.(JobCrashed); ok {
		r.jobCrashed = append(r.jobCrashed, jobCrashedEntry{name, h})
	}
	if h, ok := e.(CronTicked); ok {
		r.cronTicked = append(r.cronTicked, cronTickedEntry{name, h})
	}
	if h, ok := e.(HeartbeatFailed); ok {
		r.heartbeatFailed = append(r.heartbeatFailed, heartbeatFailedEntry{name, h})
	}
	if h, ok := e.(WorkerRecovered); ok {
		r.workerRecovered = append(r.workerRecovered, workerRecoveredEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Job event emitters
// ──────────────────────────────────────────────────

// EmitJobScheduled notifies all extensions that implement JobScheduled.
func (r *Registry) EmitJobScheduled(ctx context.Context, j *job.Job) {
	for _, e := range r.jobScheduled {
		if err := e.hook.OnJobScheduled(ctx, j); err != nil {
			r.logHookError("OnJobScheduled", e.name, err)
		}
	}
}

// EmitJobClaimed notifies all extensions that implement JobClaimed.
func (r *Registry) EmitJobClaimed(ctx context.Context, j *job.Job) {
	for _, e := range r.jobClaimed {
		if err := e.hook.OnJobClaimed(ctx, j); err != nil {
			r.logHookError("OnJobClaimed", e.name, err)
		}
	}
}

// EmitJobFinished notifies all extensions that implement JobFinished.
func (r *Registry) EmitJobFinished(ctx context.Context, j *job.Job, elapsed time.Duration) {
	for _, e := range r.jobFinished {
		if err := e.hook.OnJobFinished(ctx, j, elapsed); err != nil {
			r.logHookError("OnJobFinished", e.name, err)
		}
	}
}

// EmitJobErrored notifies all extensions that implement JobErrored.
func (r *Registry) EmitJobErrored(ctx context.Context, j *job.Job, jobErr error) {
	for _, e := range r.jobErrored {
		if err := e.hook.OnJobErrored(ctx, j, jobErr); err != nil {
			r.logHookError("OnJobErrored", e.name, err)
		}
	}
}

// EmitJobKilled notifies all extensions that implement JobKilled.
func (r *Registry) EmitJobKilled(ctx context.Context, j *job.Job) {
	for _, e := range r.jobKilled {
		if err := e.hook.OnJobKilled(ctx, j); err != nil {
			r.logHookError("OnJobKilled", e.name, err)
		}
	}
}

// EmitJobPaused notifies all extensions that implement JobPaused.
func (r *Registry) EmitJobPaused(ctx context.Context, j *job.Job) {
	for _, e := range r.jobPaused {
		if err := e.hook.OnJobPaused(ctx, j); err != nil {
			r.logHookError("OnJobPaused", e.name, err)
		}
	}
}

// EmitJobSkipped notifies all extensions that implement JobSkipped.
func (r *Registry) EmitJobSkipped(ctx context.Context, j *job.Job) {
	for _, e := range r.jobSkipped {
		if err := e.hook.OnJobSkipped(ctx, j); err != nil {
			r.logHookError("OnJobSkipped", e.name, err)
		}
	}
}

// EmitJobCrashed notifies all extensions that implement JobCrashed.
func (r *Registry) EmitJobCrashed(ctx context.Context, j *job.Job) {
	for _, e := range r.jobCrashed {
		if err := e.hook.OnJobCrashed(ctx, j); err != nil {
			r.logHookError("OnJobCrashed", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitCronTicked notifies all extensions that implement CronTicked.
func (r *Registry) EmitCronTicked(ctx context.Context, cron *job.Job, task *job.Job) {
	for _, e := range r.cronTicked {
		if err := e.hook.OnCronTicked(ctx, cron, task); err != nil {
			r.logHookError("OnCronTicked", e.name, err)
		}
	}
}

// EmitHeartbeatFailed notifies all extensions that implement HeartbeatFailed.
func (r *Registry) EmitHeartbeatFailed(ctx context.Context, workerID id.WorkerID, failures int, hbErr error) {
	for _, e := range r.heartbeatFailed {
		if err := e.hook.OnHeartbeatFailed(ctx, workerID, failures, hbErr); err != nil {
			r.logHookError("OnHeartbeatFailed", e.name, err)
		}
	}
}

// EmitWorkerRecovered notifies all extensions that implement WorkerRecovered.
func (r *Registry) EmitWorkerRecovered(ctx context.Context, workerID id.WorkerID) {
	for _, e := range r.workerRecovered {
		if err := e.hook.OnWorkerRecovered(ctx, workerID); err != nil {
			r.logHookError("OnWorkerRecovered", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Hook errors are never propagated.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
