package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/cadence/cluster"
	"github.com/xraph/cadence/ext"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
)

// CrashDetectorOption configures a CrashDetector.
type CrashDetectorOption func(*CrashDetector)

// WithCrashGrace sets how long a job must have been running before a
// missing owner counts as a crash. It must exceed the worker TTL.
func WithCrashGrace(d time.Duration) CrashDetectorOption {
	return func(cd *CrashDetector) { cd.grace = d }
}

// WithWorkerTTL sets the window in which a worker record counts as live.
func WithWorkerTTL(d time.Duration) CrashDetectorOption {
	return func(cd *CrashDetector) { cd.ttl = d }
}

// WithCrashClock overrides the time source.
func WithCrashClock(now func() time.Time) CrashDetectorOption {
	return func(cd *CrashDetector) { cd.now = now }
}

// CrashDetector reclaims running jobs whose owner is no longer live.
type CrashDetector struct {
	jobs       job.Store
	workers    cluster.Store
	registry   *job.Registry
	extensions *ext.Registry
	logger     *slog.Logger
	now        func() time.Time

	grace time.Duration
	ttl   time.Duration
}

// NewCrashDetector creates a CrashDetector.
func NewCrashDetector(
	jobs job.Store,
	workers cluster.Store,
	registry *job.Registry,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...CrashDetectorOption,
) *CrashDetector {
	if logger == nil {
		logger = slog.Default()
	}
	if extensions == nil {
		extensions = ext.NewRegistry(logger)
	}
	cd := &CrashDetector{
		jobs:       jobs,
		workers:    workers,
		registry:   registry,
		extensions: extensions,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		grace:      5 * time.Minute,
		ttl:        300 * time.Second,
	}
	for _, opt := range opts {
		opt(cd)
	}
	return cd
}

// DetectOnce reclaims at most one orphaned job: the oldest running job
// started before now minus the grace window whose owner is not live. The
// reclaimed record is returned, or nil when nothing qualified.
func (cd *CrashDetector) DetectOnce(ctx context.Context) (*job.Job, error) {
	now := cd.now()
	workers, err := cd.workers.ListWorkers(ctx, now.Add(-cd.ttl))
	if err != nil {
		return nil, fmt.Errorf("crash detection: list workers: %w", err)
	}
	live := make([]id.WorkerID, 0, len(workers))
	for _, w := range workers {
		live = append(live, w.ID)
	}

	j, err := cd.jobs.ReclaimOrphanedJob(ctx, live, now.Add(-cd.grace), now)
	if err != nil {
		return nil, fmt.Errorf("crash detection: reclaim: %w", err)
	}
	if j == nil {
		return nil, nil
	}

	cd.logger.Warn("reclaimed job from crashed worker",
		slog.String("job_id", j.ID.String()),
		slog.String("job_name", j.Name),
		slog.String("job_type", string(j.Type)),
	)

	cd.extensions.EmitJobCrashed(ctx, j)
	if entry, ok := cd.registry.Get(j.Type, j.Name); ok {
		runExitHook(ctx, entry, j, cd.logger)
	}
	return j, nil
}
