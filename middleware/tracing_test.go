package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
	mw "github.com/xraph/cadence/middleware"
	"github.com/xraph/cadence/signal"
)

func setupTestTracer() (*tracetest.SpanRecorder, trace.Tracer) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tracer := tp.Tracer("test")
	return sr, tracer
}

func newTestJob() *job.Job {
	return &job.Job{
		ID:       id.NewJobID(),
		Type:     job.TypeSimple,
		Name:     "send-email",
		WorkerID: id.NewWorkerID(),
	}
}

func TestTracing_CreatesSpan(t *testing.T) {
	sr, tracer := setupTestTracer()
	m := mw.TracingWithTracer(tracer)
	j := newTestJob()

	_, err := m(context.Background(), j, func(_ context.Context) (any, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	if spans[0].Name() != "cadence.job.execute" {
		t.Errorf("expected span name %q, got %q", "cadence.job.execute", spans[0].Name())
	}
}

func TestTracing_SpanAttributes(t *testing.T) {
	sr, tracer := setupTestTracer()
	m := mw.TracingWithTracer(tracer)
	j := newTestJob()

	_, _ = m(context.Background(), j, func(_ context.Context) (any, error) {
		return nil, nil
	})

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	attrs := spans[0].Attributes()
	expected := map[string]any{
		"cadence.job.id":    j.ID.String(),
		"cadence.job.name":  "send-email",
		"cadence.job.type":  "simple",
		"cadence.worker.id": j.WorkerID.String(),
		"cadence.job.sync":  false,
	}

	attrMap := make(map[string]any, len(attrs))
	for _, a := range attrs {
		switch a.Value.Type() {
		case attribute.STRING:
			attrMap[string(a.Key)] = a.Value.AsString()
		case attribute.BOOL:
			attrMap[string(a.Key)] = a.Value.AsBool()
		}
	}

	for key, want := range expected {
		got, ok := attrMap[key]
		if !ok {
			t.Errorf("missing attribute %q", key)
			continue
		}
		if got != want {
			t.Errorf("attribute %q = %v, want %v", key, got, want)
		}
	}
}

func TestTracing_Outcome(t *testing.T) {
	killed := func() context.Context {
		ctx, cancel := context.WithCancelCause(context.Background())
		cancel(signal.ErrKilled)
		return ctx
	}
	interrupted := func() context.Context {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	tests := []struct {
		name       string
		ctx        func() context.Context
		err        error
		outcome    string
		code       codes.Code
		desc       string
		recordsErr bool
	}{
		{"finished", context.Background, nil, "finished", codes.Ok, "", false},
		{"errored", context.Background, errors.New("handler failed"), "errored", codes.Error, "handler failed", true},
		{"killed", killed, context.Canceled, "killed", codes.Error, "killed", false},
		{"interrupted", interrupted, context.Canceled, "interrupted", codes.Error, "interrupted", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr, tracer := setupTestTracer()
			m := mw.TracingWithTracer(tracer)

			_, err := m(tt.ctx(), newTestJob(), func(_ context.Context) (any, error) {
				return nil, tt.err
			})
			if !errors.Is(err, tt.err) {
				t.Fatalf("error = %v, want %v", err, tt.err)
			}

			spans := sr.Ended()
			if len(spans) != 1 {
				t.Fatalf("expected 1 span, got %d", len(spans))
			}
			span := spans[0]
			if span.Status().Code != tt.code || span.Status().Description != tt.desc {
				t.Errorf("status = %v %q, want %v %q", span.Status().Code, span.Status().Description, tt.code, tt.desc)
			}

			var outcome string
			for _, a := range span.Attributes() {
				if a.Key == "cadence.job.outcome" {
					outcome = a.Value.AsString()
				}
			}
			if outcome != tt.outcome {
				t.Errorf("cadence.job.outcome = %q, want %q", outcome, tt.outcome)
			}

			recorded := false
			for _, ev := range span.Events() {
				if ev.Name == "exception" {
					recorded = true
				}
			}
			if recorded != tt.recordsErr {
				t.Errorf("exception event recorded = %v, want %v", recorded, tt.recordsErr)
			}
		})
	}
}

func TestTracing_PropagatesContext(t *testing.T) {
	sr, tracer := setupTestTracer()
	m := mw.TracingWithTracer(tracer)
	j := newTestJob()

	var handlerSpanCtx trace.SpanContext
	_, _ = m(context.Background(), j, func(ctx context.Context) (any, error) {
		handlerSpanCtx = trace.SpanFromContext(ctx).SpanContext()
		return nil, nil
	})

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	// The handler should have received the span context from the middleware.
	if !handlerSpanCtx.IsValid() {
		t.Error("expected valid span context in handler, got invalid")
	}
	if handlerSpanCtx.TraceID() != spans[0].SpanContext().TraceID() {
		t.Error("handler span context trace ID does not match middleware span")
	}
}

func TestTracing_DefaultNoopSafe(t *testing.T) {
	// Calling Tracing() without a global provider should not panic.
	m := mw.Tracing()
	j := newTestJob()

	called := false
	_, err := m(context.Background(), j, func(_ context.Context) (any, error) {
		called = true
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("handler was not called")
	}
}
