package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the cadence sqlite store.
// Timestamps are stored as unix nanoseconds.
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
						scheduled_for    INTEGER NOT NULL,
						started_at       INTEGER,
						ended_at         INTEGER,
						worker_id        TEXT NOT NULL DEFAULT '',
						output           TEXT,
						concurrency_mode TEXT NOT NULL DEFAULT 'concurrent',
						sync             INTEGER NOT NULL DEFAULT 0,
						payload          TEXT,
						cron_string      TEXT NOT NULL DEFAULT '',
						created_at       INTEGER NOT NULL,
						updated_at       INTEGER NOT NULL
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
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS cadence_jobs`)
				return err
			},
		},

		// 002: Worker liveness records. Tags are a JSON array.
		&migrate.Migration{
			Name:    "create_workers_table",
			Version: "20240101120001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
					CREATE TABLE IF NOT EXISTS cadence_workers (
						id        TEXT PRIMARY KEY,
						hostname  TEXT NOT NULL,
						last_seen INTEGER NOT NULL,
						tags      TEXT
					)`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS cadence_workers`)
				return err
			},
		},

		// 003: Signals table.
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
						ack        INTEGER NOT NULL DEFAULT 0,
						created_at INTEGER NOT NULL
					)`)
				if err != nil {
					return err
				}

				_, err = exec.Exec(ctx, `
					CREATE INDEX IF NOT EXISTS idx_cadence_signals_pending
						ON cadence_signals (worker_id, created_at)
						WHERE ack = 0`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS cadence_signals`)
				return err
			},
		},
	)
}
