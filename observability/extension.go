package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/cadence/ext"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension       = (*MetricsExtension)(nil)
	_ ext.JobScheduled    = (*MetricsExtension)(nil)
	_ ext.JobClaimed      = (*MetricsExtension)(nil)
	_ ext.JobFinished     = (*MetricsExtension)(nil)
	_ ext.JobErrored      = (*MetricsExtension)(nil)
	_ ext.JobKilled       = (*MetricsExtension)(nil)
	_ ext.JobPaused       = (*MetricsExtension)(nil)
	_ ext.JobSkipped      = (*MetricsExtension)(nil)
	_ ext.JobCrashed      = (*MetricsExtension)(nil)
	_ ext.CronTicked      = (*MetricsExtension)(nil)
	_ ext.HeartbeatFailed = (*MetricsExtension)(nil)
	_ ext.WorkerRecovered = (*MetricsExtension)(nil)
)

// meterName is the instrumentation scope of the extension.
const meterName = "github.com/xraph/cadence/observability"

// MetricsExtension records lifecycle counters. Job counters carry the
// job_name and job_type attributes.
type MetricsExtension struct {
	JobScheduled    metric.Int64Counter
	JobClaimed      metric.Int64Counter
	JobFinished     metric.Int64Counter
	JobErrored      metric.Int64Counter
	JobKilled       metric.Int64Counter
	JobPaused       metric.Int64Counter
	JobSkipped      metric.Int64Counter
	JobCrashed      metric.Int64Counter
	CronTicked      metric.Int64Counter
	HeartbeatFailed metric.Int64Counter
	WorkerRecovered metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. On instrument errors the API returns noop counters.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc)) //nolint:errcheck // noop fallback
		return c
	}
	return &MetricsExtension{
		JobScheduled:    counter("cadence.job.scheduled", "Job records created"),
		JobClaimed:      counter("cadence.job.claimed", "Jobs claimed by this process"),
		JobFinished:     counter("cadence.job.finished", "Jobs finished successfully"),
		JobErrored:      counter("cadence.job.errored", "Jobs ended as errored"),
		JobKilled:       counter("cadence.job.killed", "Running jobs killed"),
		JobPaused:       counter("cadence.job.paused", "Resumable jobs paused by shutdown"),
		JobSkipped:      counter("cadence.job.skipped", "Exclusive jobs skipped on conflict"),
		JobCrashed:      counter("cadence.job.crashed", "Orphaned jobs reclaimed after a worker crash"),
		CronTicked:      counter("cadence.cron.ticked", "Cron firings won by this process"),
		HeartbeatFailed: counter("cadence.worker.heartbeat_failed", "Failed liveness heartbeats"),
		WorkerRecovered: counter("cadence.worker.recovered", "Inline worker records recreated"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func jobAttrs(j *job.Job) metric.AddOption {
	return metric.WithAttributes(
		attribute.String("job_name", j.Name),
		attribute.String("job_type", string(j.Type)),
	)
}

// ── Job lifecycle hooks ─────────────────────────────

// OnJobScheduled implements ext.JobScheduled.
func (m *MetricsExtension) OnJobScheduled(ctx context.Context, j *job.Job) error {
	m.JobScheduled.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobClaimed implements ext.JobClaimed.
func (m *MetricsExtension) OnJobClaimed(ctx context.Context, j *job.Job) error {
	m.JobClaimed.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobFinished implements ext.JobFinished.
func (m *MetricsExtension) OnJobFinished(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.JobFinished.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobErrored implements ext.JobErrored.
func (m *MetricsExtension) OnJobErrored(ctx context.Context, j *job.Job, _ error) error {
	m.JobErrored.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobKilled implements ext.JobKilled.
func (m *MetricsExtension) OnJobKilled(ctx context.Context, j *job.Job) error {
	m.JobKilled.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobPaused implements ext.JobPaused.
func (m *MetricsExtension) OnJobPaused(ctx context.Context, j *job.Job) error {
	m.JobPaused.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobSkipped implements ext.JobSkipped.
func (m *MetricsExtension) OnJobSkipped(ctx context.Context, j *job.Job) error {
	m.JobSkipped.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobCrashed implements ext.JobCrashed.
func (m *MetricsExtension) OnJobCrashed(ctx context.Context, j *job.Job) error {
	m.JobCrashed.Add(ctx, 1, jobAttrs(j))
	return nil
}

// ── Cron and liveness hooks ─────────────────────────

// OnCronTicked implements ext.CronTicked.
func (m *MetricsExtension) OnCronTicked(ctx context.Context, cron *job.Job, _ *job.Job) error {
	m.CronTicked.Add(ctx, 1, metric.WithAttributes(attribute.String("cron_name", cron.Name)))
	return nil
}

// OnHeartbeatFailed implements ext.HeartbeatFailed.
func (m *MetricsExtension) OnHeartbeatFailed(ctx context.Context, _ id.WorkerID, _ int, _ error) error {
	m.HeartbeatFailed.Add(ctx, 1)
	return nil
}

// OnWorkerRecovered implements ext.WorkerRecovered.
func (m *MetricsExtension) OnWorkerRecovered(ctx context.Context, _ id.WorkerID) error {
	m.WorkerRecovered.Add(ctx, 1)
	return nil
}
