package job

import (
	"context"
	"time"

	"github.com/xraph/cadence/id"
)

// ListOpts controls filtering for job list queries. Results are ordered by
// scheduled_for descending.
type ListOpts struct {
	// Types filters by record type. Empty means all types.
	Types []Type
	// Statuses filters by status. Empty means all statuses.
	Statuses []Status
	// ExcludeStatuses removes records with these statuses.
	ExcludeStatuses []Status
	// Name filters by name. Empty means all names.
	Name string
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
}

// Finalization is the terminal write applied by an executor.
type Finalization struct {
	// Status is the status to record.
	Status Status
	// Output replaces the stored output when non-nil. A paused job keeps
	// a nil output.
	Output *Output
	// EndedAt is the end time. Nil for paused jobs.
	EndedAt *time.Time
	// UpdatedAt is the write time.
	UpdatedAt time.Time
}

// Store defines the persistence contract for jobs.
type Store interface {
	// InsertJob persists a new record. Returns cadence.ErrActiveConflict
	// when the record is exclusive and another active instance with the
	// same type and name exists.
	InsertJob(ctx context.Context, j *Job) error

	// GetJob retrieves a record by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// FindLatestActive returns the most recently created active instance
	// with the given type and name.
	FindLatestActive(ctx context.Context, t Type, name string) (*Job, error)

	// ClaimNextJob atomically selects the pending or paused executable
	// record in scope with the smallest scheduled_for not after now, sets
	// it running for workerID and returns it. started_at is set to now
	// only when absent. Returns nil, nil when nothing is claimable.
	ClaimNextJob(ctx context.Context, scope Scope, workerID id.WorkerID, now time.Time) (*Job, error)

	// FinalizeJob applies f to a record that is still running for workerID
	// and clears worker_id. Returns false when the condition no longer
	// holds.
	FinalizeJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, f Finalization) (bool, error)

	// ReclaimOrphanedJob atomically marks errored the running record with
	// the oldest started_at before startedBefore whose worker is not in
	// live, and returns it. Returns nil, nil when nothing qualifies.
	ReclaimOrphanedJob(ctx context.Context, live []id.WorkerID, startedBefore, now time.Time) (*Job, error)

	// KillInactiveJob marks killed, with ended_at = now, an executable
	// record that is pending or paused. Returns false when the record is in any other state.
	KillInactiveJob(ctx context.Context, jobID id.JobID, now time.Time) (bool, error)

	// ListJobs returns records matching opts.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)

	// PurgeJobs deletes executable records that ended before the cutoff.
	PurgeJobs(ctx context.Context, endedBefore time.Time) (int64, error)
}
