package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/cadence/ext"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension       = (*Extension)(nil)
	_ ext.JobScheduled    = (*Extension)(nil)
	_ ext.JobClaimed      = (*Extension)(nil)
	_ ext.JobFinished     = (*Extension)(nil)
	_ ext.JobErrored      = (*Extension)(nil)
	_ ext.JobKilled       = (*Extension)(nil)
	_ ext.JobPaused       = (*Extension)(nil)
	_ ext.JobSkipped      = (*Extension)(nil)
	_ ext.JobCrashed      = (*Extension)(nil)
	_ ext.CronTicked      = (*Extension)(nil)
	_ ext.HeartbeatFailed = (*Extension)(nil)
	_ ext.WorkerRecovered = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry of the audit trail.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// LogRecorder returns a Recorder writing each event as one log record.
// Critical events are logged at error level, warnings at warn level.
func LogRecorder(logger *slog.Logger) Recorder {
	return RecorderFunc(func(ctx context.Context, evt *AuditEvent) error {
		level := slog.LevelInfo
		switch evt.Severity {
		case SeverityWarning:
			level = slog.LevelWarn
		case SeverityCritical:
			level = slog.LevelError
		}
		attrs := []slog.Attr{
			slog.String("action", evt.Action),
			slog.String("resource", evt.Resource),
			slog.String("resource_id", evt.ResourceID),
			slog.String("outcome", evt.Outcome),
		}
		if evt.Reason != "" {
			attrs = append(attrs, slog.String("reason", evt.Reason))
		}
		for k, v := range evt.Metadata {
			attrs = append(attrs, slog.Any(k, v))
		}
		logger.LogAttrs(ctx, level, "audit", attrs...)
		return nil
	})
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges cadence lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobScheduled implements ext.JobScheduled.
func (e *Extension) OnJobScheduled(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobScheduled, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryJob, nil,
		"job_name", j.Name,
		"job_type", string(j.Type),
		"scheduled_for", j.ScheduledFor.Format(time.RFC3339),
	)
}

// OnJobClaimed implements ext.JobClaimed.
func (e *Extension) OnJobClaimed(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobClaimed, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryJob, nil,
		"job_name", j.Name,
		"job_type", string(j.Type),
		"worker_id", j.WorkerID.String(),
	)
}

// OnJobFinished implements ext.JobFinished.
func (e *Extension) OnJobFinished(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	return e.record(ctx, ActionJobFinished, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryJob, nil,
		"job_name", j.Name,
		"job_type", string(j.Type),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnJobErrored implements ext.JobErrored.
func (e *Extension) OnJobErrored(ctx context.Context, j *job.Job, jobErr error) error {
	return e.record(ctx, ActionJobErrored, SeverityCritical, OutcomeFailure,
		ResourceJob, j.ID.String(), CategoryJob, jobErr,
		"job_name", j.Name,
		"job_type", string(j.Type),
		"worker_id", j.WorkerID.String(),
	)
}

// OnJobKilled implements ext.JobKilled.
func (e *Extension) OnJobKilled(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobKilled, SeverityCritical, OutcomeFailure,
		ResourceJob, j.ID.String(), CategoryJob, nil,
		"job_name", j.Name,
		"job_type", string(j.Type),
		"worker_id", j.WorkerID.String(),
	)
}

// OnJobPaused implements ext.JobPaused.
func (e *Extension) OnJobPaused(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobPaused, SeverityWarning, OutcomeFailure,
		ResourceJob, j.ID.String(), CategoryJob, nil,
		"job_name", j.Name,
		"job_type", string(j.Type),
	)
}

// OnJobSkipped implements ext.JobSkipped.
func (e *Extension) OnJobSkipped(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobSkipped, SeverityWarning, OutcomeFailure,
		ResourceJob, j.ID.String(), CategoryJob, nil,
		"job_name", j.Name,
		"job_type", string(j.Type),
	)
}

// OnJobCrashed implements ext.JobCrashed.
func (e *Extension) OnJobCrashed(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobCrashed, SeverityCritical, OutcomeFailure,
		ResourceJob, j.ID.String(), CategoryJob, nil,
		"job_name", j.Name,
		"job_type", string(j.Type),
		"status", string(j.Status),
	)
}

// ── Cron and worker hooks ───────────────────────────

// OnCronTicked implements ext.CronTicked.
func (e *Extension) OnCronTicked(ctx context.Context, cron, task *job.Job) error {
	return e.record(ctx, ActionCronTicked, SeverityInfo, OutcomeSuccess,
		ResourceCron, cron.Name, CategoryCron, nil,
		"task_id", task.ID.String(),
		"task_status", string(task.Status),
		"next_run", cron.ScheduledFor.Format(time.RFC3339),
	)
}

// OnHeartbeatFailed implements ext.HeartbeatFailed.
func (e *Extension) OnHeartbeatFailed(ctx context.Context, workerID id.WorkerID, failures int, hbErr error) error {
	return e.record(ctx, ActionHeartbeatFailed, SeverityWarning, OutcomeFailure,
		ResourceWorker, workerID.String(), CategoryWorker, hbErr,
		"failures", failures,
	)
}

// OnWorkerRecovered implements ext.WorkerRecovered.
func (e *Extension) OnWorkerRecovered(ctx context.Context, workerID id.WorkerID) error {
	return e.record(ctx, ActionWorkerRecovered, SeverityInfo, OutcomeSuccess,
		ResourceWorker, workerID.String(), CategoryWorker, nil,
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
// Recorder failures are logged, never returned.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
