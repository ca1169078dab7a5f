package backoff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/cadence/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(50 * time.Millisecond)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := c.Delay(attempt); got != 50*time.Millisecond {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 50*time.Millisecond)
		}
	}
}

func TestExponential_DoublesAndCaps(t *testing.T) {
	e := backoff.NewExponential(time.Second, 5*time.Second)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := e.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestExponential_ZeroAttemptUsesInitial(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Minute)
	if got := e.Delay(0); got != time.Second {
		t.Errorf("Delay(0) = %v, want 1s", got)
	}
}

func TestJittered_WithinBounds(t *testing.T) {
	e := backoff.NewJittered(time.Second, 10*time.Second)
	for attempt := 1; attempt <= 8; attempt++ {
		d := e.Delay(attempt)
		if d < 0 || d > 10*time.Second {
			t.Errorf("Delay(%d) = %v, out of [0, 10s]", attempt, d)
		}
	}
}

func TestDefaultStrategy_FirstDelayBounded(t *testing.T) {
	d := backoff.DefaultStrategy().Delay(1)
	if d < 0 || d > time.Second {
		t.Errorf("DefaultStrategy().Delay(1) = %v, want within [0, 1s]", d)
	}
}

// ──────────────────────────────────────────────────
// Wait
// ──────────────────────────────────────────────────

func TestWait_SleepsForDelay(t *testing.T) {
	start := time.Now()
	if err := backoff.Wait(context.Background(), backoff.NewConstant(20*time.Millisecond), 1); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Wait returned after %v, want >= 20ms", elapsed)
	}
}

func TestWait_ReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := backoff.Wait(ctx, backoff.NewConstant(time.Hour), 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait error = %v, want context.Canceled", err)
	}
}
