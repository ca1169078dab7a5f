package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
)

// DeleteCronsNotIn removes crons outside names and their pending tasks.
func (s *Store) DeleteCronsNotIn(ctx context.Context, names []string) (int64, error) {
	var removed int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		cronQuery, cronArgs := `DELETE FROM cadence_jobs WHERE type = 'cron'`, []any{}
		taskQuery, taskArgs := `DELETE FROM cadence_jobs WHERE type = 'cron_task' AND status = 'pending'`, []any{}
		if len(names) > 0 {
			var err error
			if cronQuery, cronArgs, err = sqlx.In(cronQuery+` AND name NOT IN (?)`, names); err != nil {
				return err
			}
			if taskQuery, taskArgs, err = sqlx.In(taskQuery+` AND name NOT IN (?)`, names); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx, tx.Rebind(cronQuery), cronArgs...)
		if err != nil {
			return err
		}
		if removed, err = res.RowsAffected(); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(taskQuery), taskArgs...)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("cadence/sqlite: delete crons: %w", err)
	}
	return removed, nil
}

// UpsertCron sets the expression of a cron, inserting it when absent.
func (s *Store) UpsertCron(ctx context.Context, name, cronString string, now time.Time) (*job.Job, error) {
	var prev *job.Job
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var r jobRow
		err := tx.GetContext(ctx, &r, `
			SELECT `+jobColumns+` FROM cadence_jobs
			WHERE type = 'cron' AND name = ?
			ORDER BY id ASC
			LIMIT 1`,
			name,
		)
		switch {
		case err == nil:
			if prev, err = fromJobRow(&r); err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx,
				`UPDATE cadence_jobs SET cron_string = ?, updated_at = ? WHERE id = ?`,
				cronString, nanos(now), r.ID,
			)
			return err
		case isNoRows(err):
			c := &job.Job{
				Entity:       cadence.NewEntityAt(now),
				ID:           id.NewJobID(),
				Type:         job.TypeCron,
				Name:         name,
				Status:       job.StatusActive,
				ScheduledFor: now,
				CronString:   cronString,
			}
			row, rowErr := toJobRow(c)
			if rowErr != nil {
				return rowErr
			}
			_, err = tx.NamedExecContext(ctx, `
				INSERT INTO cadence_jobs (`+jobColumns+`)
				VALUES (:id, :type, :name, :status, :scheduled_for, :started_at, :ended_at, :worker_id,
					:output, :concurrency_mode, :sync, :payload, :cron_string, :created_at, :updated_at)`,
				row,
			)
			return err
		default:
			return err
		}
	})
	if err != nil {
		return nil, fmt.Errorf("cadence/sqlite: upsert cron: %w", err)
	}
	return prev, nil
}

// ListCronsByName returns the crons named name ordered by ID.
func (s *Store) ListCronsByName(ctx context.Context, name string) ([]*job.Job, error) {
	var rows []jobRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+jobColumns+` FROM cadence_jobs
		WHERE type = 'cron' AND name = ?
		ORDER BY id ASC`,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("cadence/sqlite: list crons: %w", err)
	}
	return fromJobRows(rows)
}

// DeleteCron removes a cron record.
func (s *Store) DeleteCron(ctx context.Context, cronID id.JobID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cadence_jobs WHERE id = ? AND type = 'cron'`, cronID.String())
	if err != nil {
		return fmt.Errorf("cadence/sqlite: delete cron: %w", err)
	}
	return requireRow(res, cadence.ErrCronNotFound)
}

// ResetCronSchedule sets scheduled_for to now.
func (s *Store) ResetCronSchedule(ctx context.Context, cronID id.JobID, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE cadence_jobs SET scheduled_for = ?, updated_at = ? WHERE id = ? AND type = 'cron'`,
		nanos(now), nanos(now), cronID.String(),
	)
	if err != nil {
		return fmt.Errorf("cadence/sqlite: reset cron schedule: %w", err)
	}
	return requireRow(res, cadence.ErrCronNotFound)
}

// DeletePendingCronTasks removes pending tasks named name.
func (s *Store) DeletePendingCronTasks(ctx context.Context, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cadence_jobs WHERE type = 'cron_task' AND name = ? AND status = 'pending'`,
		name,
	)
	if err != nil {
		return 0, fmt.Errorf("cadence/sqlite: delete pending cron tasks: %w", err)
	}
	return res.RowsAffected()
}

// FindDueCrons returns the crons due at now, earliest first.
func (s *Store) FindDueCrons(ctx context.Context, now time.Time) ([]*job.Job, error) {
	var rows []jobRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+jobColumns+` FROM cadence_jobs
		WHERE type = 'cron' AND scheduled_for <= ?
		ORDER BY scheduled_for ASC`,
		nanos(now),
	)
	if err != nil {
		return nil, fmt.Errorf("cadence/sqlite: find due crons: %w", err)
	}
	return fromJobRows(rows)
}

// AdvanceCronSchedule moves scheduled_for from prev to next.
func (s *Store) AdvanceCronSchedule(ctx context.Context, cronID id.JobID, prev, next, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cadence_jobs
		SET scheduled_for = ?, updated_at = ?
		WHERE id = ? AND type = 'cron' AND scheduled_for = ?`,
		nanos(next), nanos(now), cronID.String(), nanos(prev),
	)
	if err != nil {
		return false, fmt.Errorf("cadence/sqlite: advance cron schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cadence/sqlite: advance cron schedule: %w", err)
	}
	return n == 1, nil
}
