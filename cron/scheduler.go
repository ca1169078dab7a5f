package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/cadence/job"
)

// TaskCreator persists cron tasks. *job.Guard satisfies it.
type TaskCreator interface {
	Create(ctx context.Context, j *job.Job) (*job.Job, error)
}

// Emitter emits cron lifecycle events.
// ext.Registry satisfies this interface via EmitCronTicked.
type Emitter interface {
	EmitCronTicked(ctx context.Context, cron *job.Job, task *job.Job)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due crons.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithLocation sets the location cron expressions are evaluated in.
func WithLocation(loc *time.Location) SchedulerOption {
	return func(s *Scheduler) { s.loc = loc }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// cronParser supports standard 5-field cron and descriptors like "@daily".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// NextFire returns the first occurrence of sched strictly after anchor,
// evaluated in loc, clamped to now when it lies in the past.
func NextFire(sched cronlib.Schedule, anchor, now time.Time, loc *time.Location) time.Time {
	next := sched.Next(anchor.In(loc)).UTC()
	if next.Before(now) {
		return now.UTC()
	}
	return next
}

// Scheduler reconciles cron records with the registered definitions and
// fires due crons. Any number of schedulers may run against the same store.
type Scheduler struct {
	store    Store
	registry *job.Registry
	creator  TaskCreator
	emitter  Emitter
	logger   *slog.Logger

	tickInterval time.Duration
	loc          *time.Location
	now          func() time.Time

	// parsed caches parsed cron expressions.
	parsedMu sync.RWMutex
	parsed   map[string]cronlib.Schedule
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	store Store,
	registry *job.Registry,
	creator TaskCreator,
	emitter Emitter,
	logger *slog.Logger,
	opts ...SchedulerOption,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		store:        store,
		registry:     registry,
		creator:      creator,
		emitter:      emitter,
		logger:       logger,
		tickInterval: 60 * time.Second,
		loc:          time.UTC,
		now:          func() time.Time { return time.Now().UTC() },
		parsed:       make(map[string]cronlib.Schedule),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init reconciles stored crons with the registered cron definitions.
func (s *Scheduler) Init(ctx context.Context) error {
	entries := s.registry.Entries(job.TypeCronTask)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}

	removed, err := s.store.DeleteCronsNotIn(ctx, names)
	if err != nil {
		return fmt.Errorf("cron init: delete removed crons: %w", err)
	}
	if removed > 0 {
		s.logger.Info("removed obsolete crons", slog.Int64("count", removed))
	}

	for _, e := range entries {
		if err := s.upsert(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) upsert(ctx context.Context, e *job.Entry) error {
	now := s.now()
	prev, err := s.store.UpsertCron(ctx, e.Name, e.Schedule, now)
	if err != nil {
		return fmt.Errorf("cron init: upsert %q: %w", e.Name, err)
	}

	if prev == nil {
		// Concurrent first boots may each insert; keep the oldest.
		crons, listErr := s.store.ListCronsByName(ctx, e.Name)
		if listErr != nil {
			return fmt.Errorf("cron init: list %q: %w", e.Name, listErr)
		}
		for _, dup := range crons[min(1, len(crons)):] {
			if delErr := s.store.DeleteCron(ctx, dup.ID); delErr != nil {
				return fmt.Errorf("cron init: delete duplicate %q: %w", e.Name, delErr)
			}
			s.logger.Warn("deleted duplicate cron",
				slog.String("cron_name", e.Name),
				slog.String("cron_id", dup.ID.String()),
			)
		}
		return nil
	}

	if prev.CronString != e.Schedule {
		if resetErr := s.store.ResetCronSchedule(ctx, prev.ID, now); resetErr != nil {
			return fmt.Errorf("cron init: reset %q: %w", e.Name, resetErr)
		}
		if _, delErr := s.store.DeletePendingCronTasks(ctx, e.Name); delErr != nil {
			return fmt.Errorf("cron init: purge pending %q: %w", e.Name, delErr)
		}
		s.logger.Info("cron schedule changed",
			slog.String("cron_name", e.Name),
			slog.String("from", prev.CronString),
			slog.String("to", e.Schedule),
		)
	}
	return nil
}

// Tick fires every due cron once. A cron whose swap is lost to another
// process is left alone.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.now()
	due, err := s.store.FindDueCrons(ctx, now)
	if err != nil {
		return fmt.Errorf("cron tick: find due: %w", err)
	}

	for _, c := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.fire(ctx, c, now)
	}
	return nil
}

func (s *Scheduler) fire(ctx context.Context, c *job.Job, now time.Time) {
	sched, err := s.getOrParseSchedule(c.CronString)
	if err != nil {
		s.logger.Error("parse cron schedule error",
			slog.String("cron_name", c.Name),
			slog.String("schedule", c.CronString),
			slog.String("error", err.Error()),
		)
		return
	}

	next := NextFire(sched, c.ScheduledFor, now, s.loc)

	won, err := s.store.AdvanceCronSchedule(ctx, c.ID, c.ScheduledFor, next, now)
	if err != nil {
		s.logger.Error("advance cron schedule error",
			slog.String("cron_name", c.Name),
			slog.String("error", err.Error()),
		)
		return
	}
	if !won {
		return
	}

	task, err := s.creator.Create(ctx, job.NewCronTask(c.Name, next))
	if err != nil {
		s.logger.Error("create cron task error",
			slog.String("cron_name", c.Name),
			slog.String("error", err.Error()),
		)
		return
	}

	if s.emitter != nil {
		s.emitter.EmitCronTicked(ctx, c, task)
	}

	s.logger.Debug("cron fired",
		slog.String("cron_name", c.Name),
		slog.String("task_id", task.ID.String()),
		slog.Time("scheduled_for", next),
	)
}

// Run ticks immediately and then on every tick interval until ctx is
// done. It returns at once when no cron is registered.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.registry.Entries(job.TypeCronTask)) == 0 {
		return nil
	}

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	s.logger.Info("cron scheduler started", slog.Duration("tick_interval", s.tickInterval))

	for {
		if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("cron tick error", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			s.logger.Info("cron scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// getOrParseSchedule caches parsed cron expressions.
func (s *Scheduler) getOrParseSchedule(expr string) (cronlib.Schedule, error) {
	s.parsedMu.RLock()
	sched, ok := s.parsed[expr]
	s.parsedMu.RUnlock()
	if ok {
		return sched, nil
	}

	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	s.parsedMu.Lock()
	s.parsed[expr] = sched
	s.parsedMu.Unlock()
	return sched, nil
}
