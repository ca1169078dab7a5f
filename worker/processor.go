package worker

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
	"github.com/xraph/cadence/signal"
)

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithPollInterval sets how long the loop sleeps when nothing was claimed.
func WithPollInterval(d time.Duration) ProcessorOption {
	return func(p *Processor) { p.pollInterval = d }
}

// WithClaimRate limits claims per second. Zero disables the limit.
func WithClaimRate(perSecond float64) ProcessorOption {
	return func(p *Processor) {
		if perSecond > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		} else {
			p.limiter = nil
		}
	}
}

// WithHousekeeping purges jobs ended more than jobRetention ago and signals
// older than signalTTL, at most once per interval.
func WithHousekeeping(signals signal.Store, interval, jobRetention, signalTTL time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.signals = signals
		p.housekeepingInterval = interval
		p.jobRetention = jobRetention
		p.signalTTL = signalTTL
	}
}

// WithProcessorClock overrides the time source.
func WithProcessorClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

// Processor runs the claim loop of one worker process.
type Processor struct {
	store    job.Store
	executor *Executor
	detector *CrashDetector
	self     id.WorkerID
	scope    job.Scope
	logger   *slog.Logger
	now      func() time.Time

	pollInterval time.Duration
	limiter      *rate.Limiter

	signals              signal.Store
	housekeepingInterval time.Duration
	jobRetention         time.Duration
	signalTTL            time.Duration
	lastHousekeeping     time.Time
}

// NewProcessor creates a Processor claiming jobs in scope for self.
func NewProcessor(
	store job.Store,
	executor *Executor,
	detector *CrashDetector,
	self id.WorkerID,
	scope job.Scope,
	logger *slog.Logger,
	opts ...ProcessorOption,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		store:        store,
		executor:     executor,
		detector:     detector,
		self:         self,
		scope:        scope,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
		pollInterval: 45 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run loops until ctx is done: crash detection, then claim and execute,
// sleeping the poll interval whenever nothing was claimed.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("job processor started",
		slog.String("worker_id", p.self.String()),
		slog.Duration("poll_interval", p.pollInterval),
	)
	if p.scope.Empty() {
		p.logger.Warn("no claimable definitions; only crash detection will run")
	}

	for {
		if ctx.Err() != nil {
			p.logger.Info("job processor stopped")
			return nil
		}

		if p.Step(ctx) {
			continue
		}

		select {
		case <-ctx.Done():
			p.logger.Info("job processor stopped")
			return nil
		case <-time.After(p.pollInterval):
		}
	}
}

// Step runs one iteration of the loop and reports whether a job was
// executed.
func (p *Processor) Step(ctx context.Context) bool {
	p.housekeep(ctx)

	if p.detector != nil {
		if _, err := p.detector.DetectOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("crash detection error", slog.String("error", err.Error()))
		}
	}

	if p.scope.Empty() {
		return false
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return false
		}
	}

	j, err := p.store.ClaimNextJob(ctx, p.scope, p.self, p.now())
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("claim job error", slog.String("error", err.Error()))
		}
		return false
	}
	if j == nil {
		return false
	}

	outcome := p.executor.Execute(ctx, j)
	p.logger.Debug("job executed",
		slog.String("job_id", j.ID.String()),
		slog.String("job_name", j.Name),
		slog.Int("outcome", int(outcome)),
	)
	return true
}

func (p *Processor) housekeep(ctx context.Context) {
	if p.housekeepingInterval <= 0 {
		return
	}
	now := p.now()
	if !p.lastHousekeeping.IsZero() && now.Sub(p.lastHousekeeping) < p.housekeepingInterval {
		return
	}
	p.lastHousekeeping = now

	if p.jobRetention > 0 {
		n, err := p.store.PurgeJobs(ctx, now.Add(-p.jobRetention))
		if err != nil && ctx.Err() == nil {
			p.logger.Warn("purge jobs error", slog.String("error", err.Error()))
		} else if n > 0 {
			p.logger.Info("purged ended jobs", slog.Int64("count", n))
		}
	}
	if p.signals != nil && p.signalTTL > 0 {
		n, err := p.signals.PurgeSignals(ctx, now.Add(-p.signalTTL))
		if err != nil && ctx.Err() == nil {
			p.logger.Warn("purge signals error", slog.String("error", err.Error()))
		} else if n > 0 {
			p.logger.Info("purged signals", slog.Int64("count", n))
		}
	}
}
