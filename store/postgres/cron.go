package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
)

// DeleteCronsNotIn removes crons outside names and their pending tasks.
func (s *Store) DeleteCronsNotIn(ctx context.Context, names []string) (int64, error) {
	var removed int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM cadence_jobs WHERE type = 'cron' AND NOT (name = ANY($1))`,
			nonNil(names),
		)
		if err != nil {
			return err
		}
		removed = tag.RowsAffected()

		_, err = tx.Exec(ctx, `
			DELETE FROM cadence_jobs
			WHERE type = 'cron_task' AND status = 'pending' AND NOT (name = ANY($1))`,
			nonNil(names),
		)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("cadence/postgres: delete crons: %w", err)
	}
	return removed, nil
}

// UpsertCron sets the expression of a cron, inserting it when absent.
func (s *Store) UpsertCron(ctx context.Context, name, cronString string, now time.Time) (*job.Job, error) {
	var prev *job.Job
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT `+jobColumns+` FROM cadence_jobs
			WHERE type = 'cron' AND name = $1
			ORDER BY id ASC
			LIMIT 1
			FOR UPDATE`,
			name,
		)
		existing, err := scanJob(row)
		switch {
		case err == nil:
			prev = existing
			_, err = tx.Exec(ctx,
				`UPDATE cadence_jobs SET cron_string = $2, updated_at = $3 WHERE id = $1`,
				existing.ID.String(), cronString, now,
			)
			return err
		case isNoRows(err):
			_, err = tx.Exec(ctx, `
				INSERT INTO cadence_jobs (id, type, name, status, scheduled_for, cron_string, created_at, updated_at)
				VALUES ($1, 'cron', $2, 'active', $3, $4, $3, $3)`,
				id.NewJobID().String(), name, now, cronString,
			)
			return err
		default:
			return err
		}
	})
	if err != nil {
		return nil, fmt.Errorf("cadence/postgres: upsert cron: %w", err)
	}
	return prev, nil
}

// ListCronsByName returns the crons named name ordered by ID.
func (s *Store) ListCronsByName(ctx context.Context, name string) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM cadence_jobs
		WHERE type = 'cron' AND name = $1
		ORDER BY id ASC`,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("cadence/postgres: list crons: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// DeleteCron removes a cron record.
func (s *Store) DeleteCron(ctx context.Context, cronID id.JobID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM cadence_jobs WHERE id = $1 AND type = 'cron'`,
		cronID.String(),
	)
	if err != nil {
		return fmt.Errorf("cadence/postgres: delete cron: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cadence.ErrCronNotFound
	}
	return nil
}

// ResetCronSchedule sets scheduled_for to now.
func (s *Store) ResetCronSchedule(ctx context.Context, cronID id.JobID, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE cadence_jobs SET scheduled_for = $2, updated_at = $2 WHERE id = $1 AND type = 'cron'`,
		cronID.String(), now,
	)
	if err != nil {
		return fmt.Errorf("cadence/postgres: reset cron schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cadence.ErrCronNotFound
	}
	return nil
}

// DeletePendingCronTasks removes pending tasks named name.
func (s *Store) DeletePendingCronTasks(ctx context.Context, name string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM cadence_jobs WHERE type = 'cron_task' AND name = $1 AND status = 'pending'`,
		name,
	)
	if err != nil {
		return 0, fmt.Errorf("cadence/postgres: delete pending cron tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// FindDueCrons returns the crons due at now, earliest first.
func (s *Store) FindDueCrons(ctx context.Context, now time.Time) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM cadence_jobs
		WHERE type = 'cron' AND scheduled_for <= $1
		ORDER BY scheduled_for ASC`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("cadence/postgres: find due crons: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// AdvanceCronSchedule moves scheduled_for from prev to next. The row
// lock serializes racing schedulers; losers see a changed scheduled_for
// and update nothing.
func (s *Store) AdvanceCronSchedule(ctx context.Context, cronID id.JobID, prev, next, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE cadence_jobs
		SET scheduled_for = $3, updated_at = $4
		WHERE id = $1 AND type = 'cron' AND scheduled_for = $2`,
		cronID.String(), prev, next, now,
	)
	if err != nil {
		return false, fmt.Errorf("cadence/postgres: advance cron schedule: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
