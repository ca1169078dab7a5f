package observability_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xraph/cadence/ext"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
	"github.com/xraph/cadence/observability"
)

func newTestExtension() (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return observability.NewMetricsExtensionWithMeter(mp.Meter("test")), reader
}

func newTestJob() *job.Job {
	return &job.Job{
		ID:   id.NewJobID(),
		Type: job.TypeSimple,
		Name: "send-email",
	}
}

// counterValue sums every data point of the named counter.
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: expected Sum[int64], got %T", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_Hooks(t *testing.T) {
	ctx := context.Background()
	j := newTestJob()

	tests := []struct {
		metric string
		fire   func(e *observability.MetricsExtension) error
	}{
		{"cadence.job.scheduled", func(e *observability.MetricsExtension) error { return e.OnJobScheduled(ctx, j) }},
		{"cadence.job.claimed", func(e *observability.MetricsExtension) error { return e.OnJobClaimed(ctx, j) }},
		{"cadence.job.finished", func(e *observability.MetricsExtension) error {
			return e.OnJobFinished(ctx, j, 100*time.Millisecond)
		}},
		{"cadence.job.errored", func(e *observability.MetricsExtension) error {
			return e.OnJobErrored(ctx, j, errors.New("boom"))
		}},
		{"cadence.job.killed", func(e *observability.MetricsExtension) error { return e.OnJobKilled(ctx, j) }},
		{"cadence.job.paused", func(e *observability.MetricsExtension) error { return e.OnJobPaused(ctx, j) }},
		{"cadence.job.skipped", func(e *observability.MetricsExtension) error { return e.OnJobSkipped(ctx, j) }},
		{"cadence.job.crashed", func(e *observability.MetricsExtension) error { return e.OnJobCrashed(ctx, j) }},
		{"cadence.cron.ticked", func(e *observability.MetricsExtension) error {
			return e.OnCronTicked(ctx, &job.Job{Type: job.TypeCron, Name: "daily"}, j)
		}},
		{"cadence.worker.heartbeat_failed", func(e *observability.MetricsExtension) error {
			return e.OnHeartbeatFailed(ctx, id.NewWorkerID(), 1, errors.New("timeout"))
		}},
		{"cadence.worker.recovered", func(e *observability.MetricsExtension) error {
			return e.OnWorkerRecovered(ctx, id.NewWorkerID())
		}},
	}

	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			e, reader := newTestExtension()
			if err := tt.fire(e); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := counterValue(t, reader, tt.metric); got != 1 {
				t.Errorf("%s: want 1, got %d", tt.metric, got)
			}
		})
	}
}

func TestMetricsExtension_ViaRegistry(t *testing.T) {
	e, reader := newTestExtension()
	r := ext.NewRegistry(slog.Default())
	r.Register(e)

	ctx := context.Background()
	j := newTestJob()
	r.EmitJobClaimed(ctx, j)
	r.EmitJobClaimed(ctx, j)
	r.EmitJobFinished(ctx, j, time.Second)

	if got := counterValue(t, reader, "cadence.job.claimed"); got != 2 {
		t.Errorf("claimed: want 2, got %d", got)
	}
	if got := counterValue(t, reader, "cadence.job.finished"); got != 1 {
		t.Errorf("finished: want 1, got %d", got)
	}
}

func TestMetricsExtension_DefaultNoopSafe(t *testing.T) {
	e := observability.NewMetricsExtension()
	if err := e.OnJobClaimed(context.Background(), newTestJob()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
