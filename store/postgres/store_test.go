//go:build integration

package postgres_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/signal"
	"github.com/xraph/cadence/store"
	"github.com/xraph/cadence/store/postgres"
	"github.com/xraph/cadence/store/storetest"
)

// setupTestStore starts a Postgres container and returns a migrated Store.
func setupTestStore(t *testing.T) *postgres.Store {
	t.Helper()

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("cadence_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	s, err := postgres.New(ctx, connStr, postgres.WithLogger(slog.Default()))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if migErr := s.Migrate(ctx); migErr != nil {
		t.Fatalf("migrate: %v", migErr)
	}
	// Migrations are idempotent.
	if migErr := s.Migrate(ctx); migErr != nil {
		t.Fatalf("second migrate: %v", migErr)
	}
	return s
}

func truncate(t *testing.T, s *postgres.Store) {
	t.Helper()
	_, err := s.Pool().Exec(context.Background(),
		`TRUNCATE cadence_jobs, cadence_workers, cadence_signals`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func TestConformance(t *testing.T) {
	s := setupTestStore(t)
	storetest.Run(t, func(t *testing.T) store.Store {
		truncate(t, s)
		return s
	})
}

func TestSubscribeSignals(t *testing.T) {
	s := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := id.NewWorkerID()
	ready := make(chan struct{})
	got := make(chan *signal.Signal, 1)
	go func() {
		_ = s.SubscribeSignals(ctx, worker, func() { close(ready) }, func(_ context.Context, sig *signal.Signal) {
			got <- sig
		})
	}()

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("subscription never became ready")
	}

	if err := s.InsertSignal(ctx, signal.NewKill(id.NewJobID(), id.NewWorkerID(), time.Now())); err != nil {
		t.Fatalf("InsertSignal foreign: %v", err)
	}
	want := signal.NewKill(id.NewJobID(), worker, time.Now())
	if err := s.InsertSignal(ctx, want); err != nil {
		t.Fatalf("InsertSignal: %v", err)
	}

	select {
	case sig := <-got:
		if sig.ID != want.ID || sig.JobID != want.JobID || sig.Type != signal.TypeKill {
			t.Errorf("received %+v, want %+v", sig, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("signal not delivered")
	}
}

func TestMigrateConcurrently(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	errs := make(chan error, 3)
	for range 3 {
		go func() { errs <- s.Migrate(ctx) }()
	}
	for range 3 {
		if err := <-errs; err != nil {
			t.Fatalf("concurrent Migrate: %v", err)
		}
	}

	var tables int
	err := s.Pool().QueryRow(ctx, `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_name IN ('cadence_jobs', 'cadence_workers', 'cadence_signals')`).Scan(&tables)
	if err != nil {
		t.Fatalf("count tables: %v", err)
	}
	if tables != 3 {
		t.Errorf("tables = %d, want 3", tables)
	}
}
