package cron

import (
	"context"
	"time"

	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
)

// Store defines the persistence contract for cron records. Cron records
// live alongside jobs as records of type job.TypeCron.
type Store interface {
	// DeleteCronsNotIn removes cron records whose name is not in names,
	// together with pending cron tasks of those names. Returns the number
	// of cron records removed.
	DeleteCronsNotIn(ctx context.Context, names []string) (int64, error)

	// UpsertCron sets the expression of the cron named name, inserting an
	// active record scheduled for now when none exists. Returns the record
	// as it was before the write, or nil when it was inserted.
	UpsertCron(ctx context.Context, name, cronString string, now time.Time) (*job.Job, error)

	// ListCronsByName returns the cron records named name ordered by ID.
	ListCronsByName(ctx context.Context, name string) ([]*job.Job, error)

	// DeleteCron removes a cron record by ID.
	DeleteCron(ctx context.Context, cronID id.JobID) error

	// ResetCronSchedule sets scheduled_for to now.
	ResetCronSchedule(ctx context.Context, cronID id.JobID, now time.Time) error

	// DeletePendingCronTasks removes pending cron tasks named name.
	DeletePendingCronTasks(ctx context.Context, name string) (int64, error)

	// FindDueCrons returns cron records with scheduled_for not after now,
	// ordered by scheduled_for ascending.
	FindDueCrons(ctx context.Context, now time.Time) ([]*job.Job, error)

	// AdvanceCronSchedule moves scheduled_for from prev to next. It is a
	// compare-and-set: returns false when scheduled_for is no longer prev.
	AdvanceCronSchedule(ctx context.Context, cronID id.JobID, prev, next, now time.Time) (bool, error)
}
