package signal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/backoff"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
)

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithRetry sets how a local kill waits for a token that is not registered
// yet: strategy spaces the lookups and window bounds the total wait.
func WithRetry(strategy backoff.Strategy, window time.Duration) ChannelOption {
	return func(c *Channel) {
		c.retry = strategy
		c.retryWindow = window
	}
}

// WithPublisher announces inserted signals, for subscribers that do not
// observe the store.
func WithPublisher(p Publisher) ChannelOption {
	return func(c *Channel) { c.publisher = p }
}

// WithChannelClock overrides the time source.
func WithChannelClock(now func() time.Time) ChannelOption {
	return func(c *Channel) { c.now = now }
}

// Channel routes kill requests to the process executing the job.
type Channel struct {
	jobs      job.Store
	signals   Store
	tokens    *Registry
	publisher Publisher
	self      id.WorkerID
	logger    *slog.Logger
	now       func() time.Time

	retry       backoff.Strategy
	retryWindow time.Duration
}

// NewChannel creates a Channel for the process identified by self.
func NewChannel(jobs job.Store, signals Store, tokens *Registry, self id.WorkerID, logger *slog.Logger, opts ...ChannelOption) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Channel{
		jobs:        jobs,
		signals:     signals,
		tokens:      tokens,
		self:        self,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		retry:       backoff.NewConstant(1 * time.Second),
		retryWindow: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Kill requests the termination of jobID. Pending and paused jobs are
// killed immediately. Running jobs are cancelled in-process when owned by
// this process, otherwise a signal is sent to the owner and delivery is
// asynchronous.
func (c *Channel) Kill(ctx context.Context, jobID id.JobID) error {
	if _, err := c.jobs.KillInactiveJob(ctx, jobID, c.now()); err != nil {
		return fmt.Errorf("kill %s: %w", jobID, err)
	}

	j, err := c.jobs.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("kill %s: %w", jobID, err)
	}
	if !j.Type.Executable() {
		return fmt.Errorf("kill %s: %w", jobID, cadence.ErrJobNotFound)
	}
	if j.Status != job.StatusRunning || j.WorkerID.IsNil() {
		return nil
	}

	if j.WorkerID != c.self {
		return c.send(ctx, j)
	}
	return c.cancelLocal(ctx, jobID)
}

func (c *Channel) send(ctx context.Context, j *job.Job) error {
	s := NewKill(j.ID, j.WorkerID, c.now())
	if err := c.signals.InsertSignal(ctx, s); err != nil {
		return fmt.Errorf("kill %s: insert signal: %w", j.ID, err)
	}

	c.logger.Info("kill signal sent",
		slog.String("job_id", j.ID.String()),
		slog.String("worker_id", j.WorkerID.String()),
	)

	if c.publisher != nil {
		if err := c.publisher.PublishSignal(ctx, s); err != nil {
			// The durable record is still picked up by the poller.
			c.logger.Warn("publish kill signal error",
				slog.String("signal_id", s.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// cancelLocal raises the token of a job claimed by this process. The token
// is registered shortly after the claim, so a missing token is retried.
func (c *Channel) cancelLocal(ctx context.Context, jobID id.JobID) error {
	deadline := c.now().Add(c.retryWindow)
	for attempt := 1; ; attempt++ {
		if c.tokens.Cancel(jobID) {
			c.logger.Info("job kill requested", slog.String("job_id", jobID.String()))
			return nil
		}

		// The job may have ended in the meantime.
		j, err := c.jobs.GetJob(ctx, jobID)
		if err != nil {
			return fmt.Errorf("kill %s: %w", jobID, err)
		}
		if j.Status != job.StatusRunning || j.WorkerID != c.self {
			return nil
		}

		if !c.now().Before(deadline) {
			c.logger.Warn("kill token never registered", slog.String("job_id", jobID.String()))
			return nil
		}

		if err := backoff.Wait(ctx, c.retry, attempt); err != nil {
			return err
		}
	}
}
