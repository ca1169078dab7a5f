package signal

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/cadence/backoff"
	"github.com/xraph/cadence/id"
)

// Killer raises the kill of a job. *Channel satisfies it.
type Killer interface {
	Kill(ctx context.Context, jobID id.JobID) error
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithSubscriber sets the push subscriber tried before polling.
func WithSubscriber(sub Subscriber) ListenerOption {
	return func(l *Listener) { l.sub = sub }
}

// WithPollInterval sets the interval of the fallback poller.
func WithPollInterval(d time.Duration) ListenerOption {
	return func(l *Listener) { l.pollInterval = d }
}

// WithReconnect sets the delay strategy between push reconnects.
func WithReconnect(s backoff.Strategy) ListenerOption {
	return func(l *Listener) { l.reconnect = s }
}

// Listener receives the signals addressed to this process.
type Listener struct {
	signals Store
	killer  Killer
	self    id.WorkerID
	sub     Subscriber
	logger  *slog.Logger

	pollInterval time.Duration
	reconnect    backoff.Strategy

	kills sync.WaitGroup
}

// NewListener creates a Listener for the process identified by self.
func NewListener(signals Store, killer Killer, self id.WorkerID, logger *slog.Logger, opts ...ListenerOption) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Listener{
		signals:      signals,
		killer:       killer,
		self:         self,
		logger:       logger,
		pollInterval: 60 * time.Second,
		reconnect:    backoff.DefaultStrategy(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run delivers signals until ctx is done. It uses the push subscriber when
// the backend supports it and falls back to polling otherwise. Kills still
// in progress are awaited before it returns.
func (l *Listener) Run(ctx context.Context) error {
	defer l.kills.Wait()

	if l.pushSupported(ctx) {
		l.logger.Info("signal listener using push delivery", slog.String("worker_id", l.self.String()))
		return l.runPush(ctx)
	}

	l.logger.Info("signal listener polling",
		slog.String("worker_id", l.self.String()),
		slog.Duration("interval", l.pollInterval),
	)
	return l.runPoll(ctx)
}

func (l *Listener) pushSupported(ctx context.Context) bool {
	if l.sub == nil {
		return false
	}
	ok, err := l.sub.SubscriptionSupported(ctx)
	if err != nil {
		l.logger.Warn("signal subscription check failed", slog.String("error", err.Error()))
		return false
	}
	return ok
}

func (l *Listener) runPoll(ctx context.Context) error {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		if err := l.Poll(ctx); err != nil && ctx.Err() == nil {
			l.logger.Error("poll signals error", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (l *Listener) runPush(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		ready := func() {
			// Catch signals inserted before the subscription attached.
			if err := l.Poll(ctx); err != nil && ctx.Err() == nil {
				l.logger.Error("reconcile signals error", slog.String("error", err.Error()))
			}
		}

		err := l.sub.SubscribeSignals(ctx, l.self, ready, l.handle)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errors.New("subscription closed")
		}

		l.logger.Warn("signal subscription lost, reconnecting",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if waitErr := backoff.Wait(ctx, l.reconnect, attempt); waitErr != nil {
			return nil
		}
	}
}

// Poll handles every pending signal addressed to this process once.
func (l *Listener) Poll(ctx context.Context) error {
	pending, err := l.signals.ListPendingSignals(ctx, l.self)
	if err != nil {
		return err
	}
	for _, s := range pending {
		l.handle(ctx, s)
	}
	return nil
}

func (l *Listener) handle(ctx context.Context, s *Signal) {
	if s.Ack || s.WorkerID != l.self {
		return
	}

	switch s.Type {
	case TypeKill:
		// A local kill may wait for its token; later signals must not.
		l.kills.Add(1)
		go func() {
			defer l.kills.Done()
			if err := l.killer.Kill(ctx, s.JobID); err != nil && ctx.Err() == nil {
				l.logger.Error("process kill signal error",
					slog.String("signal_id", s.ID.String()),
					slog.String("job_id", s.JobID.String()),
					slog.String("error", err.Error()),
				)
			}
		}()
	default:
		l.logger.Warn("unknown signal type", slog.String("type", string(s.Type)))
	}

	if err := l.signals.AckSignal(ctx, s.ID); err != nil && ctx.Err() == nil {
		l.logger.Error("ack signal error",
			slog.String("signal_id", s.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}
