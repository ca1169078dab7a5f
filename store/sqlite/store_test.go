package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/xraph/grove"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/job"
	"github.com/xraph/cadence/store"
	"github.com/xraph/cadence/store/sqlite"
	"github.com/xraph/cadence/store/storetest"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "cadence.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return openStore(t) })
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestMigrateCreatesSchema(t *testing.T) {
	s := openStore(t)
	for _, table := range []string{"cadence_jobs", "cadence_workers", "cadence_signals"} {
		var n int
		err := s.DB().GetContext(context.Background(), &n,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table)
		if err != nil {
			t.Fatalf("lookup %s: %v", table, err)
		}
		if n != 1 {
			t.Errorf("table %s missing after Migrate", table)
		}
	}

	var idx int
	err := s.DB().GetContext(context.Background(), &idx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_cadence_jobs_exclusive_active'`)
	if err != nil {
		t.Fatalf("lookup index: %v", err)
	}
	if idx != 1 {
		t.Error("exclusive-active index missing after Migrate")
	}
}

func TestMigrateWithGroveDB(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cadence.db")
	gdb, err := grove.Open(ctx, "sqlite", "file:"+path)
	if err != nil {
		t.Fatalf("grove.Open: %v", err)
	}
	t.Cleanup(func() { _ = gdb.Close() })

	s, err := sqlite.Open(path, sqlite.WithGroveDB(gdb))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	j := job.NewSimple("after-grove-migrate", nil, time.Now())
	if err := s.InsertJob(ctx, j); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
}

func TestMigrateWithoutGroveDB(t *testing.T) {
	db, err := sqlx.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("sqlx.Open: %v", err)
	}
	s := sqlite.New(db)
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(context.Background()); !errors.Is(err, cadence.ErrMigrationFailed) {
		t.Fatalf("Migrate = %v, want ErrMigrationFailed", err)
	}
}

func TestTimestampsKeepNanoseconds(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	at := time.Date(2024, 2, 21, 9, 0, 0, 123456789, time.UTC)
	j := job.NewSimple("precise", nil, at)
	if err := s.InsertJob(ctx, j); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if !got.ScheduledFor.Equal(at) {
		t.Errorf("ScheduledFor = %v, want %v", got.ScheduledFor, at)
	}
	if got.Payload != nil {
		t.Errorf("Payload = %s, want nil", got.Payload)
	}
}

func TestDeleteUnknownCron(t *testing.T) {
	s := openStore(t)
	j := job.NewSimple("not-a-cron", nil, time.Now())
	if err := s.InsertJob(context.Background(), j); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	if err := s.DeleteCron(context.Background(), j.ID); !errors.Is(err, cadence.ErrCronNotFound) {
		t.Fatalf("DeleteCron(simple) = %v, want ErrCronNotFound", err)
	}
}
