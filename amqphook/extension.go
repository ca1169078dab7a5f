package amqphook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

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

// Publisher publishes one message. *amqp.Channel satisfies it.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Extension bridges cadence lifecycle events to RabbitMQ. Each lifecycle
// hook publishes an [Envelope] on the configured exchange.
type Extension struct {
	pub      Publisher
	exchange string
	enabled  map[string]bool        // nil = all enabled
	payloads map[string]PayloadFunc // custom payload builders
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an Extension that publishes cadence lifecycle events
// through pub.
func New(pub Publisher, opts ...Option) *Extension {
	h := &Extension{
		pub:      pub,
		exchange: DefaultExchange,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name implements ext.Extension.
func (h *Extension) Name() string { return "amqp-hook" }

// Envelope is the message body of every published event.
type Envelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// ── Job lifecycle hooks ─────────────────────────────

// OnJobScheduled implements ext.JobScheduled.
func (h *Extension) OnJobScheduled(ctx context.Context, j *job.Job) error {
	return h.publish(ctx, EventJobScheduled, newJobPayload(j))
}

// OnJobClaimed implements ext.JobClaimed.
func (h *Extension) OnJobClaimed(ctx context.Context, j *job.Job) error {
	return h.publish(ctx, EventJobClaimed, newJobPayload(j))
}

// OnJobFinished implements ext.JobFinished.
func (h *Extension) OnJobFinished(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	return h.publish(ctx, EventJobFinished, &jobFinishedPayload{
		jobPayload: *newJobPayload(j),
		ElapsedMs:  elapsed.Milliseconds(),
	})
}

// OnJobErrored implements ext.JobErrored.
func (h *Extension) OnJobErrored(ctx context.Context, j *job.Job, jobErr error) error {
	p := &jobErroredPayload{jobPayload: *newJobPayload(j)}
	if jobErr != nil {
		p.Error = jobErr.Error()
	}
	return h.publish(ctx, EventJobErrored, p)
}

// OnJobKilled implements ext.JobKilled.
func (h *Extension) OnJobKilled(ctx context.Context, j *job.Job) error {
	return h.publish(ctx, EventJobKilled, newJobPayload(j))
}

// OnJobPaused implements ext.JobPaused.
func (h *Extension) OnJobPaused(ctx context.Context, j *job.Job) error {
	return h.publish(ctx, EventJobPaused, newJobPayload(j))
}

// OnJobSkipped implements ext.JobSkipped.
func (h *Extension) OnJobSkipped(ctx context.Context, j *job.Job) error {
	p := &jobSkippedPayload{jobPayload: *newJobPayload(j)}
	if j.Output != nil && j.Output.SkipMetadata != nil {
		p.ConflictingJobID = j.Output.SkipMetadata.ConflictingJobID.String()
	}
	return h.publish(ctx, EventJobSkipped, p)
}

// OnJobCrashed implements ext.JobCrashed.
func (h *Extension) OnJobCrashed(ctx context.Context, j *job.Job) error {
	return h.publish(ctx, EventJobCrashed, newJobPayload(j))
}

// ── Other lifecycle hooks ───────────────────────────

// OnCronTicked implements ext.CronTicked.
func (h *Extension) OnCronTicked(ctx context.Context, cron *job.Job, task *job.Job) error {
	return h.publish(ctx, EventCronTicked, &cronPayload{
		CronName:     cron.Name,
		CronString:   cron.CronString,
		TaskID:       task.ID.String(),
		ScheduledFor: task.ScheduledFor,
	})
}

// OnHeartbeatFailed implements ext.HeartbeatFailed.
func (h *Extension) OnHeartbeatFailed(ctx context.Context, workerID id.WorkerID, failures int, hbErr error) error {
	p := &workerPayload{WorkerID: workerID.String(), Failures: failures}
	if hbErr != nil {
		p.Error = hbErr.Error()
	}
	return h.publish(ctx, EventHeartbeatFailed, p)
}

// OnWorkerRecovered implements ext.WorkerRecovered.
func (h *Extension) OnWorkerRecovered(ctx context.Context, workerID id.WorkerID) error {
	return h.publish(ctx, EventWorkerRecovered, &workerPayload{WorkerID: workerID.String()})
}

// ── Internal helpers ────────────────────────────────

// publish sends an envelope if the event type is enabled.
func (h *Extension) publish(ctx context.Context, eventType string, defaultData any) error {
	if h.enabled != nil && !h.enabled[eventType] {
		return nil
	}

	data := defaultData
	if fn, ok := h.payloads[eventType]; ok {
		custom, err := fn(defaultData)
		if err != nil {
			return err
		}
		data = custom
	}

	at := h.now()
	body, err := json.Marshal(&Envelope{Type: eventType, OccurredAt: at, Data: data})
	if err != nil {
		return fmt.Errorf("amqphook: encode %s: %w", eventType, err)
	}

	err = h.pub.PublishWithContext(ctx,
		h.exchange, // exchange
		eventType,  // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    at,
			Type:         eventType,
			Body:         body,
		},
	)
	if err != nil {
		h.logger.Debug("publish lifecycle event failed",
			slog.String("event", eventType),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("amqphook: publish %s: %w", eventType, err)
	}
	return nil
}

// ── Default payload types ───────────────────────────

type jobPayload struct {
	JobID        string    `json:"job_id"`
	JobName      string    `json:"job_name"`
	JobType      string    `json:"job_type"`
	Status       string    `json:"status"`
	WorkerID     string    `json:"worker_id,omitempty"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

func newJobPayload(j *job.Job) *jobPayload {
	return &jobPayload{
		JobID:        j.ID.String(),
		JobName:      j.Name,
		JobType:      string(j.Type),
		Status:       string(j.Status),
		WorkerID:     j.WorkerID.String(),
		ScheduledFor: j.ScheduledFor,
	}
}

type jobFinishedPayload struct {
	jobPayload
	ElapsedMs int64 `json:"elapsed_ms"`
}

type jobErroredPayload struct {
	jobPayload
	Error string `json:"error,omitempty"`
}

type jobSkippedPayload struct {
	jobPayload
	ConflictingJobID string `json:"conflicting_job_id,omitempty"`
}

type cronPayload struct {
	CronName     string    `json:"cron_name"`
	CronString   string    `json:"cron_string"`
	TaskID       string    `json:"task_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

type workerPayload struct {
	WorkerID string `json:"worker_id"`
	Failures int    `json:"failures,omitempty"`
	Error    string `json:"error,omitempty"`
}
