package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
)

// Emitter emits liveness events.
// ext.Registry satisfies this interface.
type Emitter interface {
	EmitHeartbeatFailed(ctx context.Context, workerID id.WorkerID, failures int, err error)
	EmitWorkerRecovered(ctx context.Context, workerID id.WorkerID)
}

// FatalFunc is called once when a worker-mode heartbeat gives up.
type FatalFunc func(err error)

// HeartbeatOption configures a Heartbeat.
type HeartbeatOption func(*Heartbeat)

// WithInterval sets the heartbeat interval.
func WithInterval(d time.Duration) HeartbeatOption {
	return func(h *Heartbeat) { h.interval = d }
}

// WithMaxFailures sets how many consecutive failures are tolerated.
func WithMaxFailures(n int) HeartbeatOption {
	return func(h *Heartbeat) { h.maxFailures = n }
}

// WithTTL sets the worker expiry window used to purge expired records.
func WithTTL(d time.Duration) HeartbeatOption {
	return func(h *Heartbeat) { h.ttl = d }
}

// WithInline switches to inline mode: lost records are recreated and
// failures are never fatal.
func WithInline() HeartbeatOption {
	return func(h *Heartbeat) { h.inline = true }
}

// WithOnFatal replaces the default fatal handler, which exits the process.
func WithOnFatal(fn FatalFunc) HeartbeatOption {
	return func(h *Heartbeat) { h.onFatal = fn }
}

// WithEmitter sets the liveness event emitter.
func WithEmitter(e Emitter) HeartbeatOption {
	return func(h *Heartbeat) { h.emitter = e }
}

// WithHeartbeatClock overrides the time source.
func WithHeartbeatClock(now func() time.Time) HeartbeatOption {
	return func(h *Heartbeat) { h.now = now }
}

// Heartbeat keeps a worker record alive.
type Heartbeat struct {
	store   Store
	worker  *Worker
	emitter Emitter
	logger  *slog.Logger
	now     func() time.Time

	interval    time.Duration
	maxFailures int
	ttl         time.Duration
	inline      bool
	onFatal     FatalFunc

	mu       sync.Mutex
	failures int
}

// NewHeartbeat creates a Heartbeat for w.
func NewHeartbeat(store Store, w *Worker, logger *slog.Logger, opts ...HeartbeatOption) *Heartbeat {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Heartbeat{
		store:       store,
		worker:      w,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		interval:    30 * time.Second,
		maxFailures: 3,
		ttl:         300 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.onFatal == nil {
		h.onFatal = func(err error) {
			h.logger.Error("worker heartbeat lost, exiting",
				slog.String("worker_id", h.worker.ID.String()),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}
	return h
}

// Worker returns the worker record kept alive.
func (h *Heartbeat) Worker() *Worker { return h.worker }

// Register upserts the worker record.
func (h *Heartbeat) Register(ctx context.Context) error {
	h.worker.LastSeen = h.now()
	if err := h.store.UpsertWorker(ctx, h.worker); err != nil {
		return fmt.Errorf("register worker %s: %w", h.worker.ID, err)
	}
	return nil
}

// Beat performs one heartbeat. It returns an error only when a
// worker-mode heartbeat has exhausted its failure budget.
func (h *Heartbeat) Beat(ctx context.Context) error {
	now := h.now()
	touched, err := h.store.TouchWorker(ctx, h.worker.ID, now)
	if err == nil && !touched {
		err = cadence.ErrWorkerDied
	}

	if err == nil {
		h.mu.Lock()
		h.failures = 0
		h.mu.Unlock()
		h.worker.LastSeen = now
		if _, purgeErr := h.store.PurgeExpiredWorkers(ctx, now.Add(-h.ttl)); purgeErr != nil && ctx.Err() == nil {
			h.logger.Warn("purge expired workers error", slog.String("error", purgeErr.Error()))
		}
		return nil
	}

	if ctx.Err() != nil {
		return nil
	}

	h.mu.Lock()
	h.failures++
	failures := h.failures
	h.mu.Unlock()

	h.logger.Error("worker heartbeat failed",
		slog.String("worker_id", h.worker.ID.String()),
		slog.Int("failures", failures),
		slog.String("error", err.Error()),
	)
	if h.emitter != nil {
		h.emitter.EmitHeartbeatFailed(ctx, h.worker.ID, failures, err)
	}

	if failures < h.maxFailures {
		return nil
	}

	if h.inline {
		if regErr := h.Register(ctx); regErr != nil {
			h.logger.Error("recreate worker record error", slog.String("error", regErr.Error()))
			return nil
		}
		h.mu.Lock()
		h.failures = 0
		h.mu.Unlock()
		if h.emitter != nil {
			h.emitter.EmitWorkerRecovered(ctx, h.worker.ID)
		}
		return nil
	}

	fatal := fmt.Errorf("heartbeat failed %d times: %w", failures, err)
	h.onFatal(fatal)
	return fatal
}

// Run beats on every interval until ctx is done or a worker-mode heartbeat
// becomes fatal. On a graceful stop a worker-mode heartbeat removes its
// record so crash detection does not wait for the TTL.
func (h *Heartbeat) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if !h.inline {
				h.remove(ctx)
			}
			return nil
		case <-ticker.C:
			if err := h.Beat(ctx); err != nil {
				return err
			}
		}
	}
}

func (h *Heartbeat) remove(ctx context.Context) {
	rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := h.store.RemoveWorker(rmCtx, h.worker.ID); err != nil {
		h.logger.Error("remove worker record error",
			slog.String("worker_id", h.worker.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}
