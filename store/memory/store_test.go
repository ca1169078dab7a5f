package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/signal"
	"github.com/xraph/cadence/store"
	"github.com/xraph/cadence/store/memory"
	"github.com/xraph/cadence/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(_ *testing.T) store.Store { return memory.New() })
}

func TestLifecycle(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Migrate", func() error { return s.Migrate(ctx) }},
		{"Ping", func() error { return s.Ping(ctx) }},
		{"Close", func() error { return s.Close() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Fatalf("%s returned error: %v", tt.name, err)
			}
		})
	}
}

func TestSubscribeSignals(t *testing.T) {
	s := memory.New()
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
	case <-time.After(time.Second):
		t.Fatal("subscription never became ready")
	}

	// Signals for other workers are not delivered.
	if err := s.InsertSignal(ctx, signal.NewKill(id.NewJobID(), id.NewWorkerID(), time.Now())); err != nil {
		t.Fatalf("InsertSignal: %v", err)
	}
	want := signal.NewKill(id.NewJobID(), worker, time.Now())
	if err := s.InsertSignal(ctx, want); err != nil {
		t.Fatalf("InsertSignal: %v", err)
	}

	select {
	case sig := <-got:
		if sig.ID != want.ID {
			t.Errorf("received %s, want %s", sig.ID, want.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("signal not delivered")
	}
}

func TestSubscribeSignals_RecoversDroppedSignals(t *testing.T) {
	s := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := id.NewWorkerID()
	ready := make(chan struct{})
	blocked := make(chan struct{})
	unblock := make(chan struct{})

	var mu sync.Mutex
	seen := map[id.SignalID]bool{}
	first := true

	go func() {
		_ = s.SubscribeSignals(ctx, worker, func() { close(ready) }, func(_ context.Context, sig *signal.Signal) {
			mu.Lock()
			seen[sig.ID] = true
			stall := first
			first = false
			mu.Unlock()
			if stall {
				close(blocked)
				<-unblock
			}
		})
	}()
	<-ready

	// The first delivery stalls the handler; the rest overflow the buffer.
	const total = 100
	for i := range total {
		if err := s.InsertSignal(ctx, signal.NewKill(id.NewJobID(), worker, time.Now())); err != nil {
			t.Fatalf("InsertSignal %d: %v", i, err)
		}
		if i == 0 {
			<-blocked
		}
	}
	close(unblock)

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n == total {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("delivered %d signals, want %d", n, total)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
