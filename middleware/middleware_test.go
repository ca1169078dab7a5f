package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
	"github.com/xraph/cadence/middleware"
)

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *job.Job, next middleware.Handler) (any, error) {
		order = append(order, "mw1-before")
		res, err := next(ctx)
		order = append(order, "mw1-after")
		return res, err
	}

	mw2 := func(ctx context.Context, _ *job.Job, next middleware.Handler) (any, error) {
		order = append(order, "mw2-before")
		res, err := next(ctx)
		order = append(order, "mw2-after")
		return res, err
	}

	chain := middleware.Chain(mw1, mw2)
	j := &job.Job{Name: "test", ID: id.NewJobID()}
	res, err := chain(context.Background(), j, func(_ context.Context) (any, error) {
		order = append(order, "handler")
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != 42 {
		t.Errorf("result = %v, want 42", res)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	called := false

	_, err := chain(context.Background(), &job.Job{ID: id.NewJobID()}, func(_ context.Context) (any, error) {
		called = true
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty chain")
	}
}

func TestChain_PropagatesError(t *testing.T) {
	mw := func(ctx context.Context, _ *job.Job, next middleware.Handler) (any, error) {
		return next(ctx)
	}
	chain := middleware.Chain(mw)
	want := errors.New("handler error")

	_, err := chain(context.Background(), &job.Job{ID: id.NewJobID()}, func(_ context.Context) (any, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	mw := middleware.Recover(slog.Default())
	j := &job.Job{Name: "panicky", ID: id.NewJobID()}

	res, err := mw(context.Background(), j, func(_ context.Context) (any, error) {
		panic("test panic")
	})
	if err == nil {
		t.Fatal("expected error from panic recovery")
	}
	if got := err.Error(); got != "panic in job panicky: test panic" {
		t.Errorf("unexpected error message: %q", got)
	}
	if res != nil {
		t.Errorf("result = %v, want nil", res)
	}
	if !middleware.IsPanic(err) {
		t.Errorf("IsPanic(%v) = false", err)
	}
}

func TestRecover_UnwrapsErrorValue(t *testing.T) {
	mw := middleware.Recover(slog.New(slog.DiscardHandler))
	j := &job.Job{Name: "panicky", ID: id.NewJobID()}
	cause := errors.New("nil map write")

	_, err := mw(context.Background(), j, func(_ context.Context) (any, error) {
		panic(cause)
	})
	if !errors.Is(err, cause) {
		t.Fatalf("error %v does not wrap the panic value", err)
	}
	var pe *middleware.PanicError
	if !errors.As(err, &pe) || len(pe.Stack) == 0 {
		t.Errorf("PanicError stack missing: %+v", pe)
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	mw := middleware.Recover(slog.Default())
	j := &job.Job{Name: "normal", ID: id.NewJobID()}

	res, err := mw(context.Background(), j, func(_ context.Context) (any, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != "ok" {
		t.Errorf("result = %v, want ok", res)
	}
}

func TestLogging_PassesThrough(t *testing.T) {
	mw := middleware.Logging(slog.Default())
	j := &job.Job{Name: "logged", ID: id.NewJobID(), Type: job.TypeSimple}
	want := errors.New("boom")

	_, err := mw(context.Background(), j, func(_ context.Context) (any, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestTimeout_AppliesDefinitionTimeout(t *testing.T) {
	r := job.NewRegistry()
	job.RegisterDefinition(r, job.NewDefinition("slow", func(_ context.Context, _ struct{}) (any, error) {
		return nil, nil
	}, job.WithTimeout(20*time.Millisecond)))

	mw := middleware.Timeout(r, slog.Default())
	j := &job.Job{Name: "slow", ID: id.NewJobID(), Type: job.TypeSimple}

	_, err := mw(context.Background(), j, func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if !strings.Contains(err.Error(), "exceeded timeout") {
		t.Errorf("error = %q, want timeout description", err)
	}
}

func TestTimeout_NoTimeoutRunsUnbounded(t *testing.T) {
	r := job.NewRegistry()
	mw := middleware.Timeout(r, slog.Default())
	j := &job.Job{Name: "unknown", ID: id.NewJobID(), Type: job.TypeSimple}

	_, err := mw(context.Background(), j, func(ctx context.Context) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			t.Error("unexpected deadline")
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
