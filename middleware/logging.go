package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/cadence/job"
)

// Logging returns middleware that logs job start and completion.
// A handler that returns after its context was cancelled is logged as
// interrupted rather than failed.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (any, error) {
		attrs := []any{
			slog.String("job_name", j.Name),
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", string(j.Type)),
		}
		logger.Info("job started", attrs...)

		start := time.Now()
		result, err := next(ctx)
		attrs = append(attrs, slog.Duration("elapsed", time.Since(start)))

		switch {
		case ctx.Err() != nil:
			attrs = append(attrs, slog.Any("cause", context.Cause(ctx)))
			logger.Warn("job interrupted", attrs...)
		case err != nil:
			attrs = append(attrs, slog.String("error", err.Error()))
			logger.Error("job failed", attrs...)
		default:
			logger.Info("job completed", attrs...)
		}

		return result, err
	}
}
