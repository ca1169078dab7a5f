package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/cadence/job"
)

// meterName is the instrumentation scope name for cadence metrics.
const meterName = "github.com/xraph/cadence"

// Metrics returns middleware that records per-job execution metrics using
// the global OTel MeterProvider.
//
// Instruments:
//   - cadence.job.duration (Float64Histogram): execution time in seconds,
//     with attributes: job_name, job_type, status
//   - cadence.job.executions (Int64Counter): total executions,
//     with attributes: job_name, job_type, status
//
// status is "finished", "errored", "killed" or "interrupted".
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API returns noop instruments.
	duration, _ := meter.Float64Histogram( //nolint:errcheck // noop fallback
		"cadence.job.duration",
		metric.WithDescription("Duration of job execution in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter( //nolint:errcheck // noop fallback
		"cadence.job.executions",
		metric.WithDescription("Total number of job executions"),
		metric.WithUnit("{execution}"),
	)

	return func(ctx context.Context, j *job.Job, next Handler) (any, error) {
		start := time.Now()
		result, err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := runOutcome(ctx, err)

		attrs := metric.WithAttributes(
			attribute.String("job_name", j.Name),
			attribute.String("job_type", string(j.Type)),
			attribute.String("status", status),
		)

		// Record outside the job context so a cancelled job still counts.
		rctx := context.WithoutCancel(ctx)
		duration.Record(rctx, elapsed, attrs)
		executions.Add(rctx, 1, attrs)

		return result, err
	}
}
