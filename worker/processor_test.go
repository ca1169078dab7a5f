package worker_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/cadence/job"
	"github.com/xraph/cadence/signal"
	"github.com/xraph/cadence/worker"
)

func TestProcessor_StepClaimsAndExecutes(t *testing.T) {
	f := newFixture(t)
	var runs atomic.Int32
	f.register("tick", func(context.Context, struct{}) (any, error) {
		runs.Add(1)
		return nil, nil
	})
	ctx := context.Background()
	for range 2 {
		j := job.NewSimple("tick", nil, time.Now().UTC().Add(-time.Second))
		if err := f.store.InsertJob(ctx, j); err != nil {
			t.Fatalf("InsertJob: %v", err)
		}
	}

	p := worker.NewProcessor(f.store, f.executor(), nil, f.self, f.registry.Scope(nil), nil)
	if !p.Step(ctx) || !p.Step(ctx) {
		t.Fatal("expected two executions")
	}
	if p.Step(ctx) {
		t.Fatal("expected an idle step")
	}
	if got := runs.Load(); got != 2 {
		t.Fatalf("runs = %d, want 2", got)
	}
}

func TestProcessor_RespectsTagScope(t *testing.T) {
	f := newFixture(t)
	f.register("billing-report", func(context.Context, struct{}) (any, error) { return nil, nil },
		job.WithTag("billing"))
	ctx := context.Background()
	j := job.NewSimple("billing-report", nil, time.Now().UTC().Add(-time.Second))
	if err := f.store.InsertJob(ctx, j); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	p := worker.NewProcessor(f.store, f.executor(), nil, f.self, f.registry.Scope([]string{"mail"}), nil)
	if p.Step(ctx) {
		t.Fatal("claimed a job outside the worker tags")
	}
	if got := f.get(t, j.ID); got.Status != job.StatusPending {
		t.Fatalf("status = %s, want pending", got.Status)
	}
}

func TestProcessor_SkipsFutureJobs(t *testing.T) {
	f := newFixture(t)
	f.register("later", func(context.Context, struct{}) (any, error) { return nil, nil })
	ctx := context.Background()
	j := job.NewSimple("later", nil, time.Now().UTC().Add(time.Hour))
	if err := f.store.InsertJob(ctx, j); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	p := worker.NewProcessor(f.store, f.executor(), nil, f.self, f.registry.Scope(nil), nil)
	if p.Step(ctx) {
		t.Fatal("claimed a job scheduled in the future")
	}
}

func TestProcessor_HousekeepingPurges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := job.NewSimple("old", nil, now.Add(-48*time.Hour))
	ended := now.Add(-48 * time.Hour)
	old.Status = job.StatusFinished
	old.EndedAt = &ended
	if err := f.store.InsertJob(ctx, old); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	sig := signal.NewKill(old.ID, f.self, now.Add(-2*time.Hour))
	if err := f.store.InsertSignal(ctx, sig); err != nil {
		t.Fatalf("InsertSignal: %v", err)
	}

	p := worker.NewProcessor(f.store, f.executor(), nil, f.self, f.registry.Scope(nil), nil,
		worker.WithHousekeeping(f.store, time.Hour, 24*time.Hour, time.Hour),
		worker.WithProcessorClock(func() time.Time { return now }))
	p.Step(ctx)

	if _, err := f.store.GetJob(ctx, old.ID); err == nil {
		t.Error("old job not purged")
	}
	pending, err := f.store.ListPendingSignals(ctx, f.self)
	if err != nil {
		t.Fatalf("ListPendingSignals: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending signals = %d, want 0", len(pending))
	}
}

func TestProcessor_RunReclaimsAndStops(t *testing.T) {
	f := newFixture(t)
	f.register("import", func(context.Context, struct{}) (any, error) { return nil, nil })
	j := f.claim(t, "import")

	cd := worker.NewCrashDetector(f.store, f.store, f.registry, f.exts, nil,
		worker.WithCrashClock(func() time.Time { return j.StartedAt.Add(time.Hour) }))
	p := worker.NewProcessor(f.store, f.executor(), cd, f.self, f.registry.Scope(nil), nil,
		worker.WithPollInterval(10*time.Millisecond),
		worker.WithClaimRate(100))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for f.get(t, j.ID).Status != job.StatusErrored {
		select {
		case <-deadline:
			t.Fatal("orphaned job was not reclaimed")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}
