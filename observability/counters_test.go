package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	gu "github.com/xraph/go-utils/metrics"

	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/observability"
)

func newTestCounters() *observability.CounterExtension {
	return observability.NewCounterExtensionWithFactory(gu.NewMetricsCollector("test"))
}

func TestCounterExtension_Name(t *testing.T) {
	c := newTestCounters()
	if c.Name() != "observability-counters" {
		t.Errorf("expected name %q, got %q", "observability-counters", c.Name())
	}
}

func TestCounterExtension_JobLifecycle(t *testing.T) {
	c := newTestCounters()
	ctx := context.Background()
	j := newTestJob()

	hooks := []func() error{
		func() error { return c.OnJobScheduled(ctx, j) },
		func() error { return c.OnJobClaimed(ctx, j) },
		func() error { return c.OnJobFinished(ctx, j, 10*time.Millisecond) },
		func() error { return c.OnJobErrored(ctx, j, errors.New("boom")) },
		func() error { return c.OnJobKilled(ctx, j) },
		func() error { return c.OnJobPaused(ctx, j) },
		func() error { return c.OnJobSkipped(ctx, j) },
		func() error { return c.OnJobCrashed(ctx, j) },
	}
	for _, hook := range hooks {
		if err := hook(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	counters := map[string]gu.Counter{
		"JobScheduled": c.JobScheduled,
		"JobClaimed":   c.JobClaimed,
		"JobFinished":  c.JobFinished,
		"JobErrored":   c.JobErrored,
		"JobKilled":    c.JobKilled,
		"JobPaused":    c.JobPaused,
		"JobSkipped":   c.JobSkipped,
		"JobCrashed":   c.JobCrashed,
	}
	for name, counter := range counters {
		if counter.Value() != 1 {
			t.Errorf("%s: want 1, got %v", name, counter.Value())
		}
	}
}

func TestCounterExtension_Liveness(t *testing.T) {
	c := newTestCounters()
	ctx := context.Background()
	worker := id.NewWorkerID()

	for range 2 {
		if err := c.OnHeartbeatFailed(ctx, worker, 1, errors.New("timeout")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := c.OnWorkerRecovered(ctx, worker); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.OnCronTicked(ctx, newTestJob(), newTestJob()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.HeartbeatFailed.Value() != 2 {
		t.Errorf("HeartbeatFailed: want 2, got %v", c.HeartbeatFailed.Value())
	}
	if c.WorkerRecovered.Value() != 1 {
		t.Errorf("WorkerRecovered: want 1, got %v", c.WorkerRecovered.Value())
	}
	if c.CronTicked.Value() != 1 {
		t.Errorf("CronTicked: want 1, got %v", c.CronTicked.Value())
	}
}

func TestCounterExtension_Snapshot(t *testing.T) {
	c := newTestCounters()
	if err := c.OnJobClaimed(context.Background(), newTestJob()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := c.Snapshot()
	if len(snap) != 11 {
		t.Errorf("snapshot has %d counters, want 11", len(snap))
	}
	if snap["cadence.job.claimed"] != c.JobClaimed.Value() {
		t.Errorf("claimed = %v, want %v", snap["cadence.job.claimed"], c.JobClaimed.Value())
	}
}
