package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/cluster"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
	"github.com/xraph/cadence/signal"
)

const jobColumns = `id, type, name, status, scheduled_for, started_at, ended_at, worker_id,
	output, concurrency_mode, sync, payload, cron_string, created_at, updated_at`

// ── Job row ───────────────────────────────────────────────────────

type jobRow struct {
	ID              string         `db:"id"`
	Type            string         `db:"type"`
	Name            string         `db:"name"`
	Status          string         `db:"status"`
	ScheduledFor    int64          `db:"scheduled_for"`
	StartedAt       sql.NullInt64  `db:"started_at"`
	EndedAt         sql.NullInt64  `db:"ended_at"`
	WorkerID        string         `db:"worker_id"`
	Output          sql.NullString `db:"output"`
	ConcurrencyMode string         `db:"concurrency_mode"`
	Sync            bool           `db:"sync"`
	Payload         sql.NullString `db:"payload"`
	CronString      string         `db:"cron_string"`
	CreatedAt       int64          `db:"created_at"`
	UpdatedAt       int64          `db:"updated_at"`
}

func toJobRow(j *job.Job) (*jobRow, error) {
	output, err := encodeOutput(j.Output)
	if err != nil {
		return nil, err
	}
	mode := j.Concurrency.Mode
	if mode == "" {
		mode = job.ModeConcurrent
	}
	r := &jobRow{
		ID:              j.ID.String(),
		Type:            string(j.Type),
		Name:            j.Name,
		Status:          string(j.Status),
		ScheduledFor:    nanos(j.ScheduledFor),
		StartedAt:       nullNanos(j.StartedAt),
		EndedAt:         nullNanos(j.EndedAt),
		WorkerID:        j.WorkerID.String(),
		Output:          output,
		ConcurrencyMode: string(mode),
		Sync:            j.Sync,
		CronString:      j.CronString,
		CreatedAt:       nanos(j.CreatedAt),
		UpdatedAt:       nanos(j.UpdatedAt),
	}
	if len(j.Payload) > 0 {
		r.Payload = sql.NullString{String: string(j.Payload), Valid: true}
	}
	return r, nil
}

func fromJobRow(r *jobRow) (*job.Job, error) {
	parsedID, err := id.ParseJobID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("cadence/sqlite: parse job id %q: %w", r.ID, err)
	}

	j := &job.Job{
		Entity: cadence.Entity{
			CreatedAt: fromNanos(r.CreatedAt),
			UpdatedAt: fromNanos(r.UpdatedAt),
		},
		ID:           parsedID,
		Type:         job.Type(r.Type),
		Name:         r.Name,
		Status:       job.Status(r.Status),
		ScheduledFor: fromNanos(r.ScheduledFor),
		StartedAt:    fromNullNanos(r.StartedAt),
		EndedAt:      fromNullNanos(r.EndedAt),
		Concurrency:  job.Concurrency{Mode: job.ConcurrencyMode(r.ConcurrencyMode)},
		Sync:         r.Sync,
		CronString:   r.CronString,
	}

	if r.WorkerID != "" {
		if j.WorkerID, err = id.ParseWorkerID(r.WorkerID); err != nil {
			return nil, fmt.Errorf("cadence/sqlite: parse worker id %q: %w", r.WorkerID, err)
		}
	}
	if r.Payload.Valid {
		j.Payload = json.RawMessage(r.Payload.String)
	}
	if r.Output.Valid {
		var o job.Output
		if err := json.Unmarshal([]byte(r.Output.String), &o); err != nil {
			return nil, fmt.Errorf("cadence/sqlite: decode output of %s: %w", r.ID, err)
		}
		j.Output = &o
	}
	return j, nil
}

func fromJobRows(rows []jobRow) ([]*job.Job, error) {
	out := make([]*job.Job, 0, len(rows))
	for i := range rows {
		j, err := fromJobRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// ── Worker row ────────────────────────────────────────────────────

type workerRow struct {
	ID       string         `db:"id"`
	Hostname string         `db:"hostname"`
	LastSeen int64          `db:"last_seen"`
	Tags     sql.NullString `db:"tags"`
}

func toWorkerRow(w *cluster.Worker) (*workerRow, error) {
	r := &workerRow{
		ID:       w.ID.String(),
		Hostname: w.Hostname,
		LastSeen: nanos(w.LastSeen),
	}
	if w.Tags != nil {
		b, err := json.Marshal(w.Tags)
		if err != nil {
			return nil, fmt.Errorf("cadence/sqlite: encode tags: %w", err)
		}
		r.Tags = sql.NullString{String: string(b), Valid: true}
	}
	return r, nil
}

func fromWorkerRow(r *workerRow) (*cluster.Worker, error) {
	parsedID, err := id.ParseWorkerID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("cadence/sqlite: parse worker id %q: %w", r.ID, err)
	}
	w := &cluster.Worker{
		ID:       parsedID,
		Hostname: r.Hostname,
		LastSeen: fromNanos(r.LastSeen),
	}
	if r.Tags.Valid {
		if err := json.Unmarshal([]byte(r.Tags.String), &w.Tags); err != nil {
			return nil, fmt.Errorf("cadence/sqlite: decode tags of %s: %w", r.ID, err)
		}
	}
	return w, nil
}

// ── Signal row ────────────────────────────────────────────────────

type signalRow struct {
	ID        string `db:"id"`
	Type      string `db:"type"`
	JobID     string `db:"job_id"`
	WorkerID  string `db:"worker_id"`
	Ack       bool   `db:"ack"`
	CreatedAt int64  `db:"created_at"`
}

func toSignalRow(s *signal.Signal) *signalRow {
	return &signalRow{
		ID:        s.ID.String(),
		Type:      string(s.Type),
		JobID:     s.JobID.String(),
		WorkerID:  s.WorkerID.String(),
		Ack:       s.Ack,
		CreatedAt: nanos(s.CreatedAt),
	}
}

func fromSignalRow(r *signalRow) (*signal.Signal, error) {
	sigID, err := id.ParseSignalID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("cadence/sqlite: parse signal id %q: %w", r.ID, err)
	}
	jobID, err := id.ParseJobID(r.JobID)
	if err != nil {
		return nil, fmt.Errorf("cadence/sqlite: parse job id %q: %w", r.JobID, err)
	}
	workerID, err := id.ParseWorkerID(r.WorkerID)
	if err != nil {
		return nil, fmt.Errorf("cadence/sqlite: parse worker id %q: %w", r.WorkerID, err)
	}
	return &signal.Signal{
		ID:        sigID,
		Type:      signal.Type(r.Type),
		JobID:     jobID,
		WorkerID:  workerID,
		Ack:       r.Ack,
		CreatedAt: fromNanos(r.CreatedAt),
	}, nil
}

// ── Helpers ───────────────────────────────────────────────────────

func nanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func encodeOutput(o *job.Output) (sql.NullString, error) {
	if o == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(o)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("cadence/sqlite: encode output: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation matches SQLITE_CONSTRAINT_UNIQUE.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// requireRow maps an update or delete that touched nothing to notFound.
func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
