package observability

import (
	"context"
	"time"

	gu "github.com/xraph/go-utils/metrics"

	"github.com/xraph/cadence/ext"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension       = (*CounterExtension)(nil)
	_ ext.JobScheduled    = (*CounterExtension)(nil)
	_ ext.JobClaimed      = (*CounterExtension)(nil)
	_ ext.JobFinished     = (*CounterExtension)(nil)
	_ ext.JobErrored      = (*CounterExtension)(nil)
	_ ext.JobKilled       = (*CounterExtension)(nil)
	_ ext.JobPaused       = (*CounterExtension)(nil)
	_ ext.JobSkipped      = (*CounterExtension)(nil)
	_ ext.JobCrashed      = (*CounterExtension)(nil)
	_ ext.CronTicked      = (*CounterExtension)(nil)
	_ ext.HeartbeatFailed = (*CounterExtension)(nil)
	_ ext.WorkerRecovered = (*CounterExtension)(nil)
)

// CounterExtension keeps in-process lifecycle totals via a go-utils
// MetricFactory. Unlike MetricsExtension it can be read back, which the
// HTTP API does for its /counters route.
type CounterExtension struct {
	JobScheduled    gu.Counter
	JobClaimed      gu.Counter
	JobFinished     gu.Counter
	JobErrored      gu.Counter
	JobKilled       gu.Counter
	JobPaused       gu.Counter
	JobSkipped      gu.Counter
	JobCrashed      gu.Counter
	CronTicked      gu.Counter
	HeartbeatFailed gu.Counter
	WorkerRecovered gu.Counter
}

// NewCounterExtension creates a CounterExtension using a default metrics collector.
func NewCounterExtension() *CounterExtension {
	return NewCounterExtensionWithFactory(gu.NewMetricsCollector("cadence/observability"))
}

// NewCounterExtensionWithFactory creates a CounterExtension with the provided MetricFactory.
func NewCounterExtensionWithFactory(factory gu.MetricFactory) *CounterExtension {
	return &CounterExtension{
		JobScheduled:    factory.Counter("cadence.job.scheduled"),
		JobClaimed:      factory.Counter("cadence.job.claimed"),
		JobFinished:     factory.Counter("cadence.job.finished"),
		JobErrored:      factory.Counter("cadence.job.errored"),
		JobKilled:       factory.Counter("cadence.job.killed"),
		JobPaused:       factory.Counter("cadence.job.paused"),
		JobSkipped:      factory.Counter("cadence.job.skipped"),
		JobCrashed:      factory.Counter("cadence.job.crashed"),
		CronTicked:      factory.Counter("cadence.cron.ticked"),
		HeartbeatFailed: factory.Counter("cadence.worker.heartbeat_failed"),
		WorkerRecovered: factory.Counter("cadence.worker.recovered"),
	}
}

// Name implements ext.Extension.
func (c *CounterExtension) Name() string { return "observability-counters" }

// Snapshot returns the current totals keyed by counter name.
func (c *CounterExtension) Snapshot() map[string]any {
	return map[string]any{
		"cadence.job.scheduled":           c.JobScheduled.Value(),
		"cadence.job.claimed":             c.JobClaimed.Value(),
		"cadence.job.finished":            c.JobFinished.Value(),
		"cadence.job.errored":             c.JobErrored.Value(),
		"cadence.job.killed":              c.JobKilled.Value(),
		"cadence.job.paused":              c.JobPaused.Value(),
		"cadence.job.skipped":             c.JobSkipped.Value(),
		"cadence.job.crashed":             c.JobCrashed.Value(),
		"cadence.cron.ticked":             c.CronTicked.Value(),
		"cadence.worker.heartbeat_failed": c.HeartbeatFailed.Value(),
		"cadence.worker.recovered":        c.WorkerRecovered.Value(),
	}
}

// ── Job lifecycle hooks ─────────────────────────────

// OnJobScheduled implements ext.JobScheduled.
func (c *CounterExtension) OnJobScheduled(_ context.Context, _ *job.Job) error {
	c.JobScheduled.Inc()
	return nil
}

// OnJobClaimed implements ext.JobClaimed.
func (c *CounterExtension) OnJobClaimed(_ context.Context, _ *job.Job) error {
	c.JobClaimed.Inc()
	return nil
}

// OnJobFinished implements ext.JobFinished.
func (c *CounterExtension) OnJobFinished(_ context.Context, _ *job.Job, _ time.Duration) error {
	c.JobFinished.Inc()
	return nil
}

// OnJobErrored implements ext.JobErrored.
func (c *CounterExtension) OnJobErrored(_ context.Context, _ *job.Job, _ error) error {
	c.JobErrored.Inc()
	return nil
}

// OnJobKilled implements ext.JobKilled.
func (c *CounterExtension) OnJobKilled(_ context.Context, _ *job.Job) error {
	c.JobKilled.Inc()
	return nil
}

// OnJobPaused implements ext.JobPaused.
func (c *CounterExtension) OnJobPaused(_ context.Context, _ *job.Job) error {
	c.JobPaused.Inc()
	return nil
}

// OnJobSkipped implements ext.JobSkipped.
func (c *CounterExtension) OnJobSkipped(_ context.Context, _ *job.Job) error {
	c.JobSkipped.Inc()
	return nil
}

// OnJobCrashed implements ext.JobCrashed.
func (c *CounterExtension) OnJobCrashed(_ context.Context, _ *job.Job) error {
	c.JobCrashed.Inc()
	return nil
}

// ── Cron and liveness hooks ─────────────────────────

// OnCronTicked implements ext.CronTicked.
func (c *CounterExtension) OnCronTicked(_ context.Context, _ *job.Job, _ *job.Job) error {
	c.CronTicked.Inc()
	return nil
}

// OnHeartbeatFailed implements ext.HeartbeatFailed.
func (c *CounterExtension) OnHeartbeatFailed(_ context.Context, _ id.WorkerID, _ int, _ error) error {
	c.HeartbeatFailed.Inc()
	return nil
}

// OnWorkerRecovered implements ext.WorkerRecovered.
func (c *CounterExtension) OnWorkerRecovered(_ context.Context, _ id.WorkerID) error {
	c.WorkerRecovered.Inc()
	return nil
}
