package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/cadence/cluster"
	"github.com/xraph/cadence/id"
)

// UpsertWorker creates or refreshes a worker record. The hostname of an
// existing record is kept.
func (s *Store) UpsertWorker(ctx context.Context, w *cluster.Worker) error {
	r, err := toWorkerRow(w)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO cadence_workers (id, hostname, last_seen, tags)
		VALUES (:id, :hostname, :last_seen, :tags)
		ON CONFLICT (id) DO UPDATE SET
			last_seen = excluded.last_seen,
			tags = excluded.tags`,
		r,
	)
	if err != nil {
		return fmt.Errorf("cadence/sqlite: upsert worker: %w", err)
	}
	return nil
}

// TouchWorker refreshes the last-seen time of an existing record.
func (s *Store) TouchWorker(ctx context.Context, workerID id.WorkerID, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE cadence_workers SET last_seen = ? WHERE id = ?`,
		nanos(at), workerID.String(),
	)
	if err != nil {
		return false, fmt.Errorf("cadence/sqlite: touch worker: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cadence/sqlite: touch worker: %w", err)
	}
	return n == 1, nil
}

// RemoveWorker deletes a worker record.
func (s *Store) RemoveWorker(ctx context.Context, workerID id.WorkerID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cadence_workers WHERE id = ?`, workerID.String()); err != nil {
		return fmt.Errorf("cadence/sqlite: remove worker: %w", err)
	}
	return nil
}

// ListWorkers returns workers seen after aliveAfter.
func (s *Store) ListWorkers(ctx context.Context, aliveAfter time.Time) ([]*cluster.Worker, error) {
	var rows []workerRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, hostname, last_seen, tags FROM cadence_workers
		WHERE last_seen > ?
		ORDER BY id ASC`,
		nanos(aliveAfter),
	)
	if err != nil {
		return nil, fmt.Errorf("cadence/sqlite: list workers: %w", err)
	}
	workers := make([]*cluster.Worker, 0, len(rows))
	for i := range rows {
		w, convErr := fromWorkerRow(&rows[i])
		if convErr != nil {
			return nil, convErr
		}
		workers = append(workers, w)
	}
	return workers, nil
}

// PurgeExpiredWorkers deletes records last seen before cutoff.
func (s *Store) PurgeExpiredWorkers(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cadence_workers WHERE last_seen < ?`, nanos(cutoff))
	if err != nil {
		return 0, fmt.Errorf("cadence/sqlite: purge workers: %w", err)
	}
	return res.RowsAffected()
}
