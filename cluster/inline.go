package cluster

import (
	"context"
	"log/slog"
	"sync"
)

// InlineHeartbeat runs an inline-mode heartbeat while at least one inline
// call is in flight.
type InlineHeartbeat struct {
	hb *Heartbeat

	mu     sync.Mutex
	count  int
	shared bool
	cancel context.CancelFunc
	done   chan struct{}
}

// NewInlineHeartbeat creates an InlineHeartbeat for w. The heartbeat is
// always in inline mode regardless of opts.
func NewInlineHeartbeat(store Store, w *Worker, logger *slog.Logger, opts ...HeartbeatOption) *InlineHeartbeat {
	opts = append(opts, WithInline())
	return &InlineHeartbeat{hb: NewHeartbeat(store, w, logger, opts...)}
}

// Worker returns the worker record kept alive.
func (ih *InlineHeartbeat) Worker() *Worker { return ih.hb.Worker() }

// Active returns the number of in-flight inline calls.
func (ih *InlineHeartbeat) Active() int {
	ih.mu.Lock()
	defer ih.mu.Unlock()
	return ih.count
}

// SetShared marks the record as also kept alive by a worker-mode heartbeat
// for the same worker. While shared, the last release stops the loop but
// leaves the record in place.
func (ih *InlineHeartbeat) SetShared(shared bool) {
	ih.mu.Lock()
	defer ih.mu.Unlock()
	ih.shared = shared
}

// Acquire registers an inline call. The first call registers the worker
// record and starts the loop. The returned release must be called once;
// the last release stops the loop and removes the record.
func (ih *InlineHeartbeat) Acquire(ctx context.Context) (release func(), err error) {
	ih.mu.Lock()
	defer ih.mu.Unlock()

	if ih.count == 0 {
		if err := ih.hb.Register(ctx); err != nil {
			return nil, err
		}
		loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		done := make(chan struct{})
		ih.cancel = cancel
		ih.done = done
		go func() {
			defer close(done)
			_ = ih.hb.Run(loopCtx) //nolint:errcheck // inline mode never returns an error
		}()
	}
	ih.count++

	var once sync.Once
	return func() {
		once.Do(func() { ih.release(ctx) })
	}, nil
}

func (ih *InlineHeartbeat) release(ctx context.Context) {
	ih.mu.Lock()
	defer ih.mu.Unlock()

	ih.count--
	if ih.count > 0 {
		return
	}

	ih.cancel()
	<-ih.done
	ih.cancel, ih.done = nil, nil
	if !ih.shared {
		ih.hb.remove(ctx)
	}
}
