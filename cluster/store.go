package cluster

import (
	"context"
	"time"

	"github.com/xraph/cadence/id"
)

// Store defines the persistence contract for worker liveness.
type Store interface {
	// UpsertWorker creates the worker record or refreshes its last-seen
	// time and tags. The hostname is only written on creation.
	UpsertWorker(ctx context.Context, w *Worker) error

	// TouchWorker sets the last-seen time of an existing record. Returns
	// false when the record no longer exists.
	TouchWorker(ctx context.Context, workerID id.WorkerID, at time.Time) (bool, error)

	// RemoveWorker deletes a worker record. Missing records are ignored.
	RemoveWorker(ctx context.Context, workerID id.WorkerID) error

	// ListWorkers returns the live workers: records seen after aliveAfter.
	ListWorkers(ctx context.Context, aliveAfter time.Time) ([]*Worker, error)

	// PurgeExpiredWorkers deletes records last seen before cutoff.
	PurgeExpiredWorkers(ctx context.Context, cutoff time.Time) (int64, error)
}
