package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the cadence postgres store.
var Migrations = migrate.NewGroup("cadence")

func init() {
	Migrations.MustRegister(
		// 001: Jobs table and indexes.
		&migrate.Migration{
			Name:    "create_jobs_table",
			Version: "20240101120000",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
					CREATE TABLE IF NOT EXISTS cadence_jobs (
						id               TEXT PRIMARY KEY,
						type             TEXT NOT NULL,
						name             TEXT NOT NULL,
						status           TEXT NOT NULL,
						scheduled_for    TIMESTAMPTZ NOT NULL,
						started_at       TIMESTAMPTZ,
						ended_at         TIMESTAMPTZ,
						worker_id        TEXT NOT NULL DEFAULT '',
						output           JSONB,
						concurrency_mode TEXT NOT NULL DEFAULT 'concurrent',
						sync             BOOLEAN NOT NULL DEFAULT FALSE,
						payload          JSONB,
						cron_string      TEXT NOT NULL DEFAULT '',
						created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
						updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
					)`)
				if err != nil {
					return err
				}

				// At most one active instance per exclusive (type, name).
				_, err = exec.Exec(ctx, `
					CREATE UNIQUE INDEX IF NOT EXISTS idx_cadence_jobs_exclusive_active
						ON cadence_jobs (type, name)
						WHERE concurrency_mode = 'exclusive'
						  AND type IN ('simple', 'cron_task')
						  AND status IN ('pending', 'running', 'paused')`)
				if err != nil {
					return err
				}

				_, err = exec.Exec(ctx, `
					CREATE INDEX IF NOT EXISTS idx_cadence_jobs_claim
						ON cadence_jobs (scheduled_for, id)
						WHERE status IN ('pending', 'paused')`)
				if err != nil {
					return err
				}

				_, err = exec.Exec(ctx, `
					CREATE INDEX IF NOT EXISTS idx_cadence_jobs_running
						ON cadence_jobs (started_at)
						WHERE status = 'running'`)
				if err != nil {
					return err
				}

				_, err = exec.Exec(ctx, `
					CREATE INDEX IF NOT EXISTS idx_cadence_jobs_type_name
						ON cadence_jobs (type, name, status)`)
				if err != nil {
					return err
				}

				_, err = exec.Exec(ctx, `
					CREATE INDEX IF NOT EXISTS idx_cadence_jobs_ended
						ON cadence_jobs (ended_at)
						WHERE ended_at IS NOT NULL`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS cadence_jobs`)
				return err
			},
		},

		// 002: Worker liveness records.
		&migrate.Migration{
			Name:    "create_workers_table",
			Version: "20240101120001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
					CREATE TABLE IF NOT EXISTS cadence_workers (
						id        TEXT PRIMARY KEY,
						hostname  TEXT NOT NULL,
						last_seen TIMESTAMPTZ NOT NULL,
						tags      TEXT[]
					)`)
				if err != nil {
					return err
				}

				_, err = exec.Exec(ctx, `
					CREATE INDEX IF NOT EXISTS idx_cadence_workers_last_seen
						ON cadence_workers (last_seen)`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS cadence_workers`)
				return err
			},
		},

		// 003: Signals table with a NOTIFY trigger for push delivery.
		&migrate.Migration{
			Name:    "create_signals_table",
			Version: "20240101120002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
					CREATE TABLE IF NOT EXISTS cadence_signals (
						id         TEXT PRIMARY KEY,
						type       TEXT NOT NULL,
						job_id     TEXT NOT NULL,
						worker_id  TEXT NOT NULL,
						ack        BOOLEAN NOT NULL DEFAULT FALSE,
						created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
					)`)
				if err != nil {
					return err
				}

				_, err = exec.Exec(ctx, `
					CREATE INDEX IF NOT EXISTS idx_cadence_signals_pending
						ON cadence_signals (worker_id, created_at)
						WHERE ack = FALSE`)
				if err != nil {
					return err
				}

				_, err = exec.Exec(ctx, `
					CREATE OR REPLACE FUNCTION cadence_notify_signal() RETURNS trigger AS $$
					BEGIN
						PERFORM pg_notify('`+notifyChannel+`', json_build_object(
							'id', NEW.id,
							'type', NEW.type,
							'job_id', NEW.job_id,
							'worker_id', NEW.worker_id,
							'created_at', NEW.created_at
						)::text);
						RETURN NEW;
					END;
					$$ LANGUAGE plpgsql`)
				if err != nil {
					return err
				}

				_, err = exec.Exec(ctx, `DROP TRIGGER IF EXISTS cadence_signals_notify ON cadence_signals`)
				if err != nil {
					return err
				}

				_, err = exec.Exec(ctx, `
					CREATE TRIGGER cadence_signals_notify
						AFTER INSERT ON cadence_signals
						FOR EACH ROW EXECUTE FUNCTION cadence_notify_signal()`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS cadence_signals`)
				if err != nil {
					return err
				}
				_, err = exec.Exec(ctx, `DROP FUNCTION IF EXISTS cadence_notify_signal()`)
				return err
			},
		},
	)
}
