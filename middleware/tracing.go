package middleware

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/cadence/job"
	"github.com/xraph/cadence/signal"
)

// tracerName is the instrumentation scope name for cadence tracing.
const tracerName = "github.com/xraph/cadence"

// Tracing returns middleware that wraps job execution in an OpenTelemetry span.
// If no TracerProvider is configured globally, the default noop tracer is used.
//
// Span attributes include: cadence.job.id, cadence.job.name,
// cadence.job.type, cadence.worker.id and cadence.job.sync. The span ends
// with cadence.job.outcome set to finished, errored, killed or interrupted.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (any, error) {
		ctx, span := tracer.Start(ctx, "cadence.job.execute",
			trace.WithAttributes(
				attribute.String("cadence.job.id", j.ID.String()),
				attribute.String("cadence.job.name", j.Name),
				attribute.String("cadence.job.type", string(j.Type)),
				attribute.String("cadence.worker.id", j.WorkerID.String()),
				attribute.Bool("cadence.job.sync", j.Sync),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		result, err := next(ctx)

		outcome := runOutcome(ctx, err)
		span.SetAttributes(attribute.String("cadence.job.outcome", outcome))
		switch outcome {
		case "finished":
			span.SetStatus(codes.Ok, "")
		case "errored":
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		default:
			span.SetStatus(codes.Error, outcome)
		}

		return result, err
	}
}

// runOutcome classifies the end of a handler run. A cancelled context wins
// over the handler's own return value.
func runOutcome(ctx context.Context, err error) string {
	switch {
	case errors.Is(context.Cause(ctx), signal.ErrKilled):
		return "killed"
	case ctx.Err() != nil:
		return "interrupted"
	case err != nil:
		return "errored"
	default:
		return "finished"
	}
}
