package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/signal"
)

// notifyChannel is the LISTEN/NOTIFY channel fed by the signals trigger.
const notifyChannel = "cadence_signals"

// InsertSignal persists a signal. The insert trigger notifies listeners.
func (s *Store) InsertSignal(ctx context.Context, sig *signal.Signal) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cadence_signals (id, type, job_id, worker_id, ack, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sig.ID.String(), string(sig.Type), sig.JobID.String(), sig.WorkerID.String(), sig.Ack, sig.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("cadence/postgres: insert signal: %w", err)
	}
	return nil
}

// ListPendingSignals returns unacknowledged signals for workerID, oldest
// first.
func (s *Store) ListPendingSignals(ctx context.Context, workerID id.WorkerID) ([]*signal.Signal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, type, job_id, worker_id, ack, created_at
		FROM cadence_signals
		WHERE worker_id = $1 AND ack = FALSE
		ORDER BY created_at ASC`,
		workerID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("cadence/postgres: list signals: %w", err)
	}
	defer rows.Close()

	var out []*signal.Signal
	for rows.Next() {
		sig, scanErr := scanSignal(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("cadence/postgres: scan signal row: %w", scanErr)
		}
		out = append(out, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cadence/postgres: iterate signal rows: %w", err)
	}
	return out, nil
}

// AckSignal marks a signal as handled.
func (s *Store) AckSignal(ctx context.Context, signalID id.SignalID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE cadence_signals SET ack = TRUE WHERE id = $1`, signalID.String())
	if err != nil {
		return fmt.Errorf("cadence/postgres: ack signal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cadence.ErrSignalNotFound
	}
	return nil
}

// PurgeSignals deletes signals created before cutoff.
func (s *Store) PurgeSignals(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM cadence_signals WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cadence/postgres: purge signals: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SubscriptionSupported reports true: LISTEN/NOTIFY is always available.
func (s *Store) SubscriptionSupported(ctx context.Context) (bool, error) {
	if err := s.pool.Ping(ctx); err != nil {
		return false, fmt.Errorf("cadence/postgres: check notify: %w", err)
	}
	return true, nil
}

// SubscribeSignals holds a dedicated connection listening on the signals
// channel and delivers notifications addressed to workerID until ctx is
// done or the connection fails.
func (s *Store) SubscribeSignals(ctx context.Context, workerID id.WorkerID, ready func(), handle signal.Handler) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("cadence/postgres: acquire listen conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{notifyChannel}.Sanitize()); err != nil {
		return fmt.Errorf("cadence/postgres: listen: %w", err)
	}
	defer func() {
		// The connection returns to the pool; stop listening first.
		_, _ = conn.Exec(context.WithoutCancel(ctx), "UNLISTEN *")
	}()

	if ready != nil {
		ready()
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("cadence/postgres: wait for notification: %w", err)
		}

		var sig signal.Signal
		if err := json.Unmarshal([]byte(n.Payload), &sig); err != nil {
			s.logger.Warn("malformed signal notification", "payload", n.Payload, "error", err)
			continue
		}
		if sig.WorkerID != workerID {
			continue
		}
		handle(ctx, &sig)
	}
}

func scanSignal(row pgx.Row) (*signal.Signal, error) {
	var (
		sig                   signal.Signal
		idStr, typ, jobStr, w string
	)
	if err := row.Scan(&idStr, &typ, &jobStr, &w, &sig.Ack, &sig.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if sig.ID, err = id.ParseSignalID(idStr); err != nil {
		return nil, err
	}
	if sig.JobID, err = id.ParseJobID(jobStr); err != nil {
		return nil, err
	}
	if sig.WorkerID, err = id.ParseWorkerID(w); err != nil {
		return nil, err
	}
	sig.Type = signal.Type(typ)
	sig.CreatedAt = sig.CreatedAt.UTC()
	return &sig, nil
}
