package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
)

// InsertJob persists a new record.
func (s *Store) InsertJob(ctx context.Context, j *job.Job) error {
	r, err := toJobRow(j)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO cadence_jobs (`+jobColumns+`)
		VALUES (:id, :type, :name, :status, :scheduled_for, :started_at, :ended_at, :worker_id,
			:output, :concurrency_mode, :sync, :payload, :cron_string, :created_at, :updated_at)`,
		r,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return cadence.ErrActiveConflict
		}
		return fmt.Errorf("cadence/sqlite: insert job: %w", err)
	}
	return nil
}

// GetJob retrieves a record by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var r jobRow
	err := s.db.GetContext(ctx, &r, `SELECT `+jobColumns+` FROM cadence_jobs WHERE id = ?`, jobID.String())
	if err != nil {
		if isNoRows(err) {
			return nil, cadence.ErrJobNotFound
		}
		return nil, fmt.Errorf("cadence/sqlite: get job: %w", err)
	}
	return fromJobRow(&r)
}

// FindLatestActive returns the most recently created active instance.
func (s *Store) FindLatestActive(ctx context.Context, t job.Type, name string) (*job.Job, error) {
	var r jobRow
	err := s.db.GetContext(ctx, &r, `
		SELECT `+jobColumns+` FROM cadence_jobs
		WHERE type = ? AND name = ? AND status IN ('pending', 'running', 'paused')
		ORDER BY id DESC
		LIMIT 1`,
		string(t), name,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, cadence.ErrJobNotFound
		}
		return nil, fmt.Errorf("cadence/sqlite: find latest active: %w", err)
	}
	return fromJobRow(&r)
}

// ClaimNextJob claims the oldest due record in scope. SQLite has a single
// writer, so the UPDATE ... RETURNING is atomic without row locks.
func (s *Store) ClaimNextJob(ctx context.Context, scope job.Scope, workerID id.WorkerID, now time.Time) (*job.Job, error) {
	if scope.Empty() {
		return nil, nil
	}

	filter, filterArgs, err := scopeFilter(scope)
	if err != nil {
		return nil, err
	}

	args := []any{workerID.String(), nanos(now), nanos(now), nanos(now)}
	args = append(args, filterArgs...)

	var r jobRow
	err = s.db.GetContext(ctx, &r, s.db.Rebind(`
		UPDATE cadence_jobs
		SET status = 'running', worker_id = ?,
			started_at = COALESCE(started_at, ?), updated_at = ?
		WHERE id = (
			SELECT id FROM cadence_jobs
			WHERE status IN ('pending', 'paused')
			  AND scheduled_for <= ?
			  AND `+filter+`
			ORDER BY scheduled_for ASC, id ASC
			LIMIT 1
		)
		RETURNING `+jobColumns),
		args...,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cadence/sqlite: claim job: %w", err)
	}
	return fromJobRow(&r)
}

func scopeFilter(scope job.Scope) (string, []any, error) {
	if scope.All {
		return `type IN ('simple', 'cron_task')`, nil, nil
	}

	var (
		clauses []string
		args    []any
	)
	add := func(t job.Type, names []string) error {
		if len(names) == 0 {
			return nil
		}
		q, a, err := sqlx.In(`(type = ? AND name IN (?))`, string(t), names)
		if err != nil {
			return fmt.Errorf("cadence/sqlite: build scope: %w", err)
		}
		clauses = append(clauses, q)
		args = append(args, a...)
		return nil
	}
	if err := add(job.TypeSimple, scope.SimpleNames); err != nil {
		return "", nil, err
	}
	if err := add(job.TypeCronTask, scope.CronTaskNames); err != nil {
		return "", nil, err
	}
	return "(" + strings.Join(clauses, " OR ") + ")", args, nil
}

// FinalizeJob applies f when the record is still running for workerID.
func (s *Store) FinalizeJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, f job.Finalization) (bool, error) {
	output, err := encodeOutput(f.Output)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE cadence_jobs
		SET status = ?, output = COALESCE(?, output), ended_at = ?, worker_id = '', updated_at = ?
		WHERE id = ? AND status = 'running' AND worker_id = ?`,
		string(f.Status), output, nullNanos(f.EndedAt), nanos(f.UpdatedAt),
		jobID.String(), workerID.String(),
	)
	if err != nil {
		return false, fmt.Errorf("cadence/sqlite: finalize job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cadence/sqlite: finalize job: %w", err)
	}
	return n == 1, nil
}

// ReclaimOrphanedJob marks errored the oldest running record whose worker
// is not live.
func (s *Store) ReclaimOrphanedJob(ctx context.Context, live []id.WorkerID, startedBefore, now time.Time) (*job.Job, error) {
	output, err := encodeOutput(job.CrashedOutput())
	if err != nil {
		return nil, err
	}

	liveFilter := ""
	args := []any{output, nanos(now), nanos(now), nanos(startedBefore)}
	if len(live) > 0 {
		ids := make([]string, len(live))
		for i, w := range live {
			ids[i] = w.String()
		}
		q, a, inErr := sqlx.In(` AND worker_id NOT IN (?)`, ids)
		if inErr != nil {
			return nil, fmt.Errorf("cadence/sqlite: build live filter: %w", inErr)
		}
		liveFilter = q
		args = append(args, a...)
	}

	var r jobRow
	err = s.db.GetContext(ctx, &r, s.db.Rebind(`
		UPDATE cadence_jobs
		SET status = 'errored', output = ?, ended_at = ?, worker_id = '', updated_at = ?
		WHERE id = (
			SELECT id FROM cadence_jobs
			WHERE status = 'running'
			  AND type IN ('simple', 'cron_task')
			  AND started_at < ?`+liveFilter+`
			ORDER BY started_at ASC
			LIMIT 1
		)
		RETURNING `+jobColumns),
		args...,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cadence/sqlite: reclaim orphaned job: %w", err)
	}
	return fromJobRow(&r)
}

// KillInactiveJob kills a pending or paused executable record.
func (s *Store) KillInactiveJob(ctx context.Context, jobID id.JobID, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cadence_jobs
		SET status = 'killed', ended_at = ?, updated_at = ?
		WHERE id = ?
		  AND type IN ('simple', 'cron_task')
		  AND status IN ('pending', 'paused')`,
		nanos(now), nanos(now), jobID.String(),
	)
	if err != nil {
		return false, fmt.Errorf("cadence/sqlite: kill inactive job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cadence/sqlite: kill inactive job: %w", err)
	}
	return n == 1, nil
}

// ListJobs returns records matching opts ordered by scheduled_for
// descending.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	var (
		where []string
		args  []any
	)
	in := func(clause string, values []string) error {
		q, a, err := sqlx.In(clause, values)
		if err != nil {
			return fmt.Errorf("cadence/sqlite: build list filter: %w", err)
		}
		where = append(where, q)
		args = append(args, a...)
		return nil
	}

	if len(opts.Types) > 0 {
		types := make([]string, len(opts.Types))
		for i, t := range opts.Types {
			types[i] = string(t)
		}
		if err := in("type IN (?)", types); err != nil {
			return nil, err
		}
	}
	if len(opts.Statuses) > 0 {
		if err := in("status IN (?)", statusStrings(opts.Statuses)); err != nil {
			return nil, err
		}
	}
	if len(opts.ExcludeStatuses) > 0 {
		if err := in("status NOT IN (?)", statusStrings(opts.ExcludeStatuses)); err != nil {
			return nil, err
		}
	}
	if opts.Name != "" {
		where = append(where, "name = ?")
		args = append(args, opts.Name)
	}

	query := `SELECT ` + jobColumns + ` FROM cadence_jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY scheduled_for DESC, id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("cadence/sqlite: list jobs: %w", err)
	}
	return fromJobRows(rows)
}

// PurgeJobs deletes executable records that ended before the cutoff.
func (s *Store) PurgeJobs(ctx context.Context, endedBefore time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM cadence_jobs
		WHERE type IN ('simple', 'cron_task') AND ended_at < ?`,
		nanos(endedBefore),
	)
	if err != nil {
		return 0, fmt.Errorf("cadence/sqlite: purge jobs: %w", err)
	}
	return res.RowsAffected()
}

func statusStrings(statuses []job.Status) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}
