package sqlite

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate" // register sqlite migration executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/cluster"
	"github.com/xraph/cadence/cron"
	"github.com/xraph/cadence/job"
	"github.com/xraph/cadence/signal"
	"github.com/xraph/cadence/store"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ store.Store   = (*Store)(nil)
	_ job.Store     = (*Store)(nil)
	_ cron.Store    = (*Store)(nil)
	_ cluster.Store = (*Store)(nil)
	_ signal.Store  = (*Store)(nil)
)

// Store is a SQLite implementation of store.Store.
type Store struct {
	db     *sqlx.DB
	grove  *grove.DB
	path   string
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithGroveDB sets the grove handle Migrate runs on. The caller owns its
// lifecycle.
func WithGroveDB(db *grove.DB) Option {
	return func(s *Store) {
		s.grove = db
	}
}

// Open opens the database file at path. Writes are serialized through a
// single connection.
func Open(path string, opts ...Option) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("cadence/sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := New(db, opts...)
	s.path = path
	return s, nil
}

// New wraps an existing connection. The caller should limit db to one
// open connection.
func New(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *sqlx.DB for advanced usage.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Migrate runs the Migrations group via the grove orchestrator. Stores
// built with New need WithGroveDB; Open falls back to a short-lived grove
// handle on the same file.
func (s *Store) Migrate(ctx context.Context) error {
	db := s.grove
	if db == nil {
		if s.path == "" {
			return fmt.Errorf("%w: no grove database configured", cadence.ErrMigrationFailed)
		}
		var err error
		db, err = grove.Open(ctx, "sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", s.path))
		if err != nil {
			return fmt.Errorf("%w: open grove: %w", cadence.ErrMigrationFailed, err)
		}
		defer db.Close() //nolint:errcheck // migration-only handle
	}

	executor, err := migrate.NewExecutorFor(sqlitedriver.Unwrap(db))
	if err != nil {
		return fmt.Errorf("%w: create migration executor: %w", cadence.ErrMigrationFailed, err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", cadence.ErrMigrationFailed, err)
	}
	s.logger.Debug("sqlite migrations applied", slog.String("group", "cadence"))
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction, committing on success.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
