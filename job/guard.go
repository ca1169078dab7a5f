package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
)

// SkipEmitter is notified when the guard records a skipped job.
type SkipEmitter interface {
	EmitJobSkipped(ctx context.Context, j *Job)
}

// conflictAttempts bounds inserts when the conflicting instance ends
// between the failed insert and its lookup.
const conflictAttempts = 3

// Guard creates executable records while honoring per-name exclusivity.
// A conflict never fails the caller: it yields a skipped record instead.
type Guard struct {
	store    Store
	registry *Registry
	emitter  SkipEmitter
	logger   *slog.Logger
	now      func() time.Time
}

// NewGuard creates a Guard. emitter may be nil.
func NewGuard(store Store, registry *Registry, emitter SkipEmitter, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		store:    store,
		registry: registry,
		emitter:  emitter,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create persists j, resolving its concurrency mode from the registry.
// When j is exclusive and an active instance exists, a skipped record
// referencing that instance is persisted and returned instead.
func (g *Guard) Create(ctx context.Context, j *Job) (*Job, error) {
	if !j.Type.Executable() {
		return nil, fmt.Errorf("guard: %w: cannot create %s record", cadence.ErrInvalidState, j.Type)
	}
	if j.Concurrency.Mode == "" {
		j.Concurrency.Mode = g.registry.ConcurrencyFor(j.Type, j.Name)
	}

	for attempt := 0; attempt < conflictAttempts; attempt++ {
		err := g.store.InsertJob(ctx, j)
		if err == nil {
			return j, nil
		}
		if !errors.Is(err, cadence.ErrActiveConflict) {
			return nil, err
		}

		active, findErr := g.store.FindLatestActive(ctx, j.Type, j.Name)
		if errors.Is(findErr, cadence.ErrJobNotFound) {
			// Slot released in between; try again.
			continue
		}
		if findErr != nil {
			return nil, findErr
		}

		return g.skip(ctx, j, active.ID)
	}

	return nil, fmt.Errorf("guard: create %q: %w", j.Name, cadence.ErrActiveConflict)
}

func (g *Guard) skip(ctx context.Context, j *Job, conflicting id.JobID) (*Job, error) {
	now := g.now()
	skipped := &Job{
		Entity:       cadence.NewEntityAt(now),
		ID:           id.NewJobID(),
		Type:         j.Type,
		Name:         j.Name,
		Status:       StatusSkipped,
		ScheduledFor: j.ScheduledFor,
		EndedAt:      &now,
		Concurrency:  j.Concurrency,
		Sync:         j.Sync,
		Payload:      j.Payload,
		Output: &Output{
			Duration: DurationUnknown,
			SkipMetadata: &SkipMetadata{
				Reason:           SkipReasonConflict,
				ConflictingJobID: conflicting,
				SkippedAt:        now,
			},
		},
	}

	if err := g.store.InsertJob(ctx, skipped); err != nil {
		return nil, fmt.Errorf("guard: insert skipped %q: %w", j.Name, err)
	}

	g.logger.Warn("exclusive job skipped: an instance is already active",
		slog.String("job_name", j.Name),
		slog.String("job_type", string(j.Type)),
		slog.String("conflicting_job_id", conflicting.String()),
	)

	if g.emitter != nil {
		g.emitter.EmitJobSkipped(ctx, skipped)
	}
	return skipped, nil
}
