package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/cadence/cluster"
	"github.com/xraph/cadence/id"
)

// UpsertWorker creates or refreshes a worker record. The hostname of an
// existing record is kept.
func (s *Store) UpsertWorker(ctx context.Context, w *cluster.Worker) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cadence_workers (id, hostname, last_seen, tags)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			last_seen = EXCLUDED.last_seen,
			tags = EXCLUDED.tags`,
		w.ID.String(), w.Hostname, w.LastSeen, w.Tags,
	)
	if err != nil {
		return fmt.Errorf("cadence/postgres: upsert worker: %w", err)
	}
	return nil
}

// TouchWorker refreshes the last-seen time of an existing record.
func (s *Store) TouchWorker(ctx context.Context, workerID id.WorkerID, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE cadence_workers SET last_seen = $2 WHERE id = $1`,
		workerID.String(), at,
	)
	if err != nil {
		return false, fmt.Errorf("cadence/postgres: touch worker: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RemoveWorker deletes a worker record.
func (s *Store) RemoveWorker(ctx context.Context, workerID id.WorkerID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM cadence_workers WHERE id = $1`, workerID.String()); err != nil {
		return fmt.Errorf("cadence/postgres: remove worker: %w", err)
	}
	return nil
}

// ListWorkers returns workers seen after aliveAfter.
func (s *Store) ListWorkers(ctx context.Context, aliveAfter time.Time) ([]*cluster.Worker, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, hostname, last_seen, tags
		FROM cadence_workers
		WHERE last_seen > $1
		ORDER BY id ASC`,
		aliveAfter,
	)
	if err != nil {
		return nil, fmt.Errorf("cadence/postgres: list workers: %w", err)
	}
	defer rows.Close()

	var workers []*cluster.Worker
	for rows.Next() {
		w, scanErr := scanWorker(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("cadence/postgres: scan worker row: %w", scanErr)
		}
		workers = append(workers, w)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("cadence/postgres: iterate worker rows: %w", err)
	}
	return workers, nil
}

// PurgeExpiredWorkers deletes records last seen before cutoff.
func (s *Store) PurgeExpiredWorkers(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM cadence_workers WHERE last_seen < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cadence/postgres: purge workers: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanWorker scans a single worker row.
func scanWorker(row pgx.Row) (*cluster.Worker, error) {
	var (
		w     cluster.Worker
		idStr string
	)
	if err := row.Scan(&idStr, &w.Hostname, &w.LastSeen, &w.Tags); err != nil {
		return nil, err
	}

	parsedID, err := id.ParseWorkerID(idStr)
	if err != nil {
		return nil, fmt.Errorf("cadence/postgres: parse worker id %q: %w", idStr, err)
	}
	w.ID = parsedID
	w.LastSeen = w.LastSeen.UTC()
	return &w, nil
}
