package middleware

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/cadence/job"
)

// Timeout returns middleware that enforces the per-definition execution
// deadline registered with job.WithTimeout. Jobs whose definition has no
// timeout run unbounded.
func Timeout(registry *job.Registry, logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (any, error) {
		e, ok := registry.Get(j.Type, j.Name)
		if !ok || e.Opts.Timeout <= 0 {
			return next(ctx)
		}

		logger.Debug("job timeout set",
			slog.String("job_id", j.ID.String()),
			slog.Duration("timeout", e.Opts.Timeout),
		)
		cause := fmt.Errorf("job %s exceeded timeout %s: %w", j.Name, e.Opts.Timeout, context.DeadlineExceeded)
		ctx, cancel := context.WithTimeoutCause(ctx, e.Opts.Timeout, cause)
		defer cancel()

		result, err := next(ctx)
		if err == nil && ctx.Err() != nil {
			err = context.Cause(ctx)
		}
		return result, err
	}
}
