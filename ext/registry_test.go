package ext_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/cadence/cluster"
	"github.com/xraph/cadence/cron"
	"github.com/xraph/cadence/ext"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
)

// The registry feeds the subsystems' emitter interfaces.
var (
	_ job.SkipEmitter = (*ext.Registry)(nil)
	_ cron.Emitter    = (*ext.Registry)(nil)
	_ cluster.Emitter = (*ext.Registry)(nil)
)

// ──────────────────────────────────────────────────
// Test extensions
// ──────────────────────────────────────────────────

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) record(name string) error {
	e.calls = append(e.calls, name)
	return nil
}

func (e *allHooksExt) OnJobScheduled(_ context.Context, _ *job.Job) error {
	return e.record("OnJobScheduled")
}

func (e *allHooksExt) OnJobClaimed(_ context.Context, _ *job.Job) error {
	return e.record("OnJobClaimed")
}

func (e *allHooksExt) OnJobFinished(_ context.Context, _ *job.Job, _ time.Duration) error {
	return e.record("OnJobFinished")
}

func (e *allHooksExt) OnJobErrored(_ context.Context, _ *job.Job, _ error) error {
	return e.record("OnJobErrored")
}

func (e *allHooksExt) OnJobKilled(_ context.Context, _ *job.Job) error {
	return e.record("OnJobKilled")
}

func (e *allHooksExt) OnJobPaused(_ context.Context, _ *job.Job) error {
	return e.record("OnJobPaused")
}

func (e *allHooksExt) OnJobSkipped(_ context.Context, _ *job.Job) error {
	return e.record("OnJobSkipped")
}

func (e *allHooksExt) OnJobCrashed(_ context.Context, _ *job.Job) error {
	return e.record("OnJobCrashed")
}

func (e *allHooksExt) OnCronTicked(_ context.Context, _, _ *job.Job) error {
	return e.record("OnCronTicked")
}

func (e *allHooksExt) OnHeartbeatFailed(_ context.Context, _ id.WorkerID, _ int, _ error) error {
	return e.record("OnHeartbeatFailed")
}

func (e *allHooksExt) OnWorkerRecovered(_ context.Context, _ id.WorkerID) error {
	return e.record("OnWorkerRecovered")
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	return e.record("OnShutdown")
}

// jobOnlyExt only implements a couple of job hooks.
type jobOnlyExt struct {
	calls []string
}

func (e *jobOnlyExt) Name() string { return "job-only" }

func (e *jobOnlyExt) OnJobClaimed(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobClaimed")
	return nil
}

func (e *jobOnlyExt) OnJobFinished(_ context.Context, _ *job.Job, _ time.Duration) error {
	e.calls = append(e.calls, "OnJobFinished")
	return nil
}

// failingExt returns errors from hooks.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnJobClaimed(_ context.Context, _ *job.Job) error {
	return errors.New("boom")
}

func (e *failingExt) OnShutdown(_ context.Context) error {
	return errors.New("shutdown boom")
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestRegistry_RegisterDiscoversInterfaces(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	r.Register(&allHooksExt{})

	if got := len(r.Extensions()); got != 1 {
		t.Fatalf("expected 1 extension, got %d", got)
	}
	if got := r.Extensions()[0].Name(); got != "all-hooks" {
		t.Fatalf("expected name 'all-hooks', got %q", got)
	}
}

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	jo := &jobOnlyExt{}
	r.Register(all)
	r.Register(jo)

	ctx := context.Background()
	j := &job.Job{Name: "test-job"}

	r.EmitJobClaimed(ctx, j)
	if len(all.calls) != 1 || all.calls[0] != "OnJobClaimed" {
		t.Fatalf("all: expected [OnJobClaimed], got %v", all.calls)
	}
	if len(jo.calls) != 1 || jo.calls[0] != "OnJobClaimed" {
		t.Fatalf("jo: expected [OnJobClaimed], got %v", jo.calls)
	}

	r.EmitJobKilled(ctx, j)
	if len(all.calls) != 2 || all.calls[1] != "OnJobKilled" {
		t.Fatalf("all: expected OnJobKilled as 2nd, got %v", all.calls)
	}
	if len(jo.calls) != 1 {
		t.Fatalf("jo: should still have 1 call, got %v", jo.calls)
	}
}

func TestRegistry_AllHooksFire(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	j := &job.Job{Name: "test-job"}
	workerID := id.NewWorkerID()

	r.EmitJobScheduled(ctx, j)
	r.EmitJobClaimed(ctx, j)
	r.EmitJobFinished(ctx, j, time.Second)
	r.EmitJobErrored(ctx, j, errors.New("fail"))
	r.EmitJobKilled(ctx, j)
	r.EmitJobPaused(ctx, j)
	r.EmitJobSkipped(ctx, j)
	r.EmitJobCrashed(ctx, j)
	r.EmitCronTicked(ctx, &job.Job{Type: job.TypeCron}, j)
	r.EmitHeartbeatFailed(ctx, workerID, 1, errors.New("timeout"))
	r.EmitWorkerRecovered(ctx, workerID)
	r.EmitShutdown(ctx)

	expected := []string{
		"OnJobScheduled", "OnJobClaimed", "OnJobFinished", "OnJobErrored",
		"OnJobKilled", "OnJobPaused", "OnJobSkipped", "OnJobCrashed",
		"OnCronTicked", "OnHeartbeatFailed", "OnWorkerRecovered", "OnShutdown",
	}
	if len(all.calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(all.calls), all.calls)
	}
	for i, want := range expected {
		if all.calls[i] != want {
			t.Errorf("call[%d] = %q, want %q", i, all.calls[i], want)
		}
	}
}

func TestRegistry_HookErrorsLoggedNotPropagated(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}

	// Register failing first, then all-hooks. Both should be called.
	r.Register(&failingExt{})
	r.Register(all)

	ctx := context.Background()
	r.EmitJobClaimed(ctx, &job.Job{Name: "test-job"})
	r.EmitShutdown(ctx)

	if len(all.calls) != 2 || all.calls[0] != "OnJobClaimed" || all.calls[1] != "OnShutdown" {
		t.Fatalf("all: expected [OnJobClaimed OnShutdown] despite failing ext, got %v", all.calls)
	}
}

func TestRegistry_EmptyRegistryNoOp(_ *testing.T) {
	r := ext.NewRegistry(nil)
	ctx := context.Background()

	r.EmitJobScheduled(ctx, &job.Job{})
	r.EmitJobClaimed(ctx, &job.Job{})
	r.EmitJobFinished(ctx, &job.Job{}, time.Second)
	r.EmitJobErrored(ctx, &job.Job{}, errors.New("x"))
	r.EmitJobKilled(ctx, &job.Job{})
	r.EmitJobPaused(ctx, &job.Job{})
	r.EmitJobSkipped(ctx, &job.Job{})
	r.EmitJobCrashed(ctx, &job.Job{})
	r.EmitCronTicked(ctx, &job.Job{}, &job.Job{})
	r.EmitHeartbeatFailed(ctx, id.NewWorkerID(), 1, errors.New("x"))
	r.EmitWorkerRecovered(ctx, id.NewWorkerID())
	r.EmitShutdown(ctx)
}

func TestRegistry_MultipleExtensionsOrderPreserved(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	ext1 := &allHooksExt{}
	ext2 := &allHooksExt{}
	r.Register(ext1)
	r.Register(ext2)

	r.EmitJobSkipped(context.Background(), &job.Job{})

	if len(ext1.calls) != 1 {
		t.Errorf("ext1: expected 1 call, got %d", len(ext1.calls))
	}
	if len(ext2.calls) != 1 {
		t.Errorf("ext2: expected 1 call, got %d", len(ext2.calls))
	}
}
