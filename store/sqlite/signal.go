package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/signal"
)

// InsertSignal persists a signal.
func (s *Store) InsertSignal(ctx context.Context, sig *signal.Signal) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO cadence_signals (id, type, job_id, worker_id, ack, created_at)
		VALUES (:id, :type, :job_id, :worker_id, :ack, :created_at)`,
		toSignalRow(sig),
	)
	if err != nil {
		return fmt.Errorf("cadence/sqlite: insert signal: %w", err)
	}
	return nil
}

// ListPendingSignals returns unacknowledged signals for workerID, oldest
// first.
func (s *Store) ListPendingSignals(ctx context.Context, workerID id.WorkerID) ([]*signal.Signal, error) {
	var rows []signalRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, type, job_id, worker_id, ack, created_at FROM cadence_signals
		WHERE worker_id = ? AND ack = 0
		ORDER BY created_at ASC`,
		workerID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("cadence/sqlite: list signals: %w", err)
	}
	out := make([]*signal.Signal, 0, len(rows))
	for i := range rows {
		sig, convErr := fromSignalRow(&rows[i])
		if convErr != nil {
			return nil, convErr
		}
		out = append(out, sig)
	}
	return out, nil
}

// AckSignal marks a signal as handled.
func (s *Store) AckSignal(ctx context.Context, signalID id.SignalID) error {
	res, err := s.db.ExecContext(ctx, `UPDATE cadence_signals SET ack = 1 WHERE id = ?`, signalID.String())
	if err != nil {
		return fmt.Errorf("cadence/sqlite: ack signal: %w", err)
	}
	return requireRow(res, cadence.ErrSignalNotFound)
}

// PurgeSignals deletes signals created before cutoff.
func (s *Store) PurgeSignals(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cadence_signals WHERE created_at < ?`, nanos(cutoff))
	if err != nil {
		return 0, fmt.Errorf("cadence/sqlite: purge signals: %w", err)
	}
	return res.RowsAffected()
}
