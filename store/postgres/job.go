package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
)

const jobColumns = `
	id, type, name, status, scheduled_for, started_at, ended_at, worker_id,
	output, concurrency_mode, sync, payload, cron_string, created_at, updated_at`

// InsertJob persists a new record.
func (s *Store) InsertJob(ctx context.Context, j *job.Job) error {
	output, err := encodeOutput(j.Output)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO cadence_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		j.ID.String(), string(j.Type), j.Name, string(j.Status), j.ScheduledFor,
		j.StartedAt, j.EndedAt, j.WorkerID.String(),
		output, string(concurrencyMode(j)), j.Sync, nullJSON(j.Payload), j.CronString,
		j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return cadence.ErrActiveConflict
		}
		return fmt.Errorf("cadence/postgres: insert job: %w", err)
	}
	return nil
}

// GetJob retrieves a record by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM cadence_jobs WHERE id = $1`, jobID.String())
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, cadence.ErrJobNotFound
		}
		return nil, fmt.Errorf("cadence/postgres: get job: %w", err)
	}
	return j, nil
}

// FindLatestActive returns the most recently created active instance.
func (s *Store) FindLatestActive(ctx context.Context, t job.Type, name string) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM cadence_jobs
		WHERE type = $1 AND name = $2 AND status IN ('pending', 'running', 'paused')
		ORDER BY id DESC
		LIMIT 1`,
		string(t), name,
	)
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, cadence.ErrJobNotFound
		}
		return nil, fmt.Errorf("cadence/postgres: find latest active: %w", err)
	}
	return j, nil
}

// ClaimNextJob atomically claims the oldest due record in scope. Uses
// SELECT FOR UPDATE SKIP LOCKED so concurrent workers never block on
// the same row.
func (s *Store) ClaimNextJob(ctx context.Context, scope job.Scope, workerID id.WorkerID, now time.Time) (*job.Job, error) {
	if scope.Empty() {
		return nil, nil
	}

	filter := `type IN ('simple', 'cron_task')`
	args := []any{workerID.String(), now}
	if !scope.All {
		filter = `((type = 'simple' AND name = ANY($3)) OR (type = 'cron_task' AND name = ANY($4)))`
		args = append(args, nonNil(scope.SimpleNames), nonNil(scope.CronTaskNames))
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE cadence_jobs
		SET status = 'running', worker_id = $1,
			started_at = COALESCE(started_at, $2), updated_at = $2
		WHERE id = (
			SELECT id FROM cadence_jobs
			WHERE status IN ('pending', 'paused')
			  AND scheduled_for <= $2
			  AND `+filter+`
			ORDER BY scheduled_for ASC, id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+jobColumns,
		args...,
	)
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cadence/postgres: claim job: %w", err)
	}
	return j, nil
}

// FinalizeJob applies f when the record is still running for workerID.
func (s *Store) FinalizeJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, f job.Finalization) (bool, error) {
	output, err := encodeOutput(f.Output)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE cadence_jobs
		SET status = $3, output = COALESCE($4::jsonb, output), ended_at = $5,
			worker_id = '', updated_at = $6
		WHERE id = $1 AND status = 'running' AND worker_id = $2`,
		jobID.String(), workerID.String(), string(f.Status), output, f.EndedAt, f.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("cadence/postgres: finalize job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReclaimOrphanedJob marks errored the oldest running record whose worker
// is not live.
func (s *Store) ReclaimOrphanedJob(ctx context.Context, live []id.WorkerID, startedBefore, now time.Time) (*job.Job, error) {
	output, err := encodeOutput(job.CrashedOutput())
	if err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE cadence_jobs
		SET status = 'errored', output = $3, ended_at = $4, worker_id = '', updated_at = $4
		WHERE id = (
			SELECT id FROM cadence_jobs
			WHERE status = 'running'
			  AND type IN ('simple', 'cron_task')
			  AND started_at < $2
			  AND NOT (worker_id = ANY($1))
			ORDER BY started_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+jobColumns,
		workerStrings(live), startedBefore, output, now,
	)
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cadence/postgres: reclaim orphaned job: %w", err)
	}
	return j, nil
}

// KillInactiveJob kills a pending or paused executable record.
func (s *Store) KillInactiveJob(ctx context.Context, jobID id.JobID, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE cadence_jobs
		SET status = 'killed', ended_at = $2, updated_at = $2
		WHERE id = $1
		  AND type IN ('simple', 'cron_task')
		  AND status IN ('pending', 'paused')`,
		jobID.String(), now,
	)
	if err != nil {
		return false, fmt.Errorf("cadence/postgres: kill inactive job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListJobs returns records matching opts ordered by scheduled_for
// descending.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(opts.Types) > 0 {
		where = append(where, "type = ANY("+arg(typeStrings(opts.Types))+")")
	}
	if len(opts.Statuses) > 0 {
		where = append(where, "status = ANY("+arg(statusStrings(opts.Statuses))+")")
	}
	if len(opts.ExcludeStatuses) > 0 {
		where = append(where, "NOT (status = ANY("+arg(statusStrings(opts.ExcludeStatuses))+"))")
	}
	if opts.Name != "" {
		where = append(where, "name = "+arg(opts.Name))
	}

	query := `SELECT ` + jobColumns + ` FROM cadence_jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY scheduled_for DESC, id DESC"
	if opts.Limit > 0 {
		query += " LIMIT " + arg(opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cadence/postgres: list jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// PurgeJobs deletes executable records that ended before the cutoff.
func (s *Store) PurgeJobs(ctx context.Context, endedBefore time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM cadence_jobs
		WHERE type IN ('simple', 'cron_task') AND ended_at < $1`,
		endedBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("cadence/postgres: purge jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j         job.Job
		idStr     string
		typeStr   string
		statusStr string
		workerStr string
		modeStr   string
		output    []byte
		payload   []byte
	)
	err := row.Scan(
		&idStr, &typeStr, &j.Name, &statusStr, &j.ScheduledFor,
		&j.StartedAt, &j.EndedAt, &workerStr,
		&output, &modeStr, &j.Sync, &payload, &j.CronString,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, err := id.ParseJobID(idStr)
	if err != nil {
		return nil, fmt.Errorf("cadence/postgres: parse job id %q: %w", idStr, err)
	}
	j.ID = parsedID

	if j.WorkerID, err = parseOptionalWorker(workerStr); err != nil {
		return nil, fmt.Errorf("cadence/postgres: parse worker id %q: %w", workerStr, err)
	}

	j.Type = job.Type(typeStr)
	j.Status = job.Status(statusStr)
	j.Concurrency = job.Concurrency{Mode: job.ConcurrencyMode(modeStr)}
	j.ScheduledFor = j.ScheduledFor.UTC()
	j.StartedAt = utcPtr(j.StartedAt)
	j.EndedAt = utcPtr(j.EndedAt)
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	if len(payload) > 0 {
		j.Payload = json.RawMessage(payload)
	}
	if len(output) > 0 {
		var o job.Output
		if err := json.Unmarshal(output, &o); err != nil {
			return nil, fmt.Errorf("cadence/postgres: decode output of %s: %w", idStr, err)
		}
		j.Output = &o
	}

	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("cadence/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cadence/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}

func concurrencyMode(j *job.Job) job.ConcurrencyMode {
	if j.Concurrency.Mode == "" {
		return job.ModeConcurrent
	}
	return j.Concurrency.Mode
}

func workerStrings(ids []id.WorkerID) []string {
	out := make([]string, 0, len(ids))
	for _, w := range ids {
		out = append(out, w.String())
	}
	return out
}

func typeStrings(types []job.Type) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func statusStrings(statuses []job.Status) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

func nonNil(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}
