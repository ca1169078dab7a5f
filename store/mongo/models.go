package mongo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/cluster"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
	"github.com/xraph/cadence/signal"
)

// ── Job model ─────────────────────────────────────────────────────

type jobModel struct {
	ID           string            `bson:"_id"`
	Type         string            `bson:"type"`
	Name         string            `bson:"name"`
	Status       string            `bson:"status"`
	ScheduledFor time.Time         `bson:"scheduled_for"`
	StartedAt    *time.Time        `bson:"started_at,omitempty"`
	EndedAt      *time.Time        `bson:"ended_at,omitempty"`
	WorkerID     string            `bson:"worker_id"`
	Output       *outputModel      `bson:"output,omitempty"`
	Concurrency  *concurrencyModel `bson:"concurrency,omitempty"`
	Sync         bool              `bson:"sync,omitempty"`
	Payload      string            `bson:"payload,omitempty"`
	CronString   string            `bson:"cron_string,omitempty"`
	CreatedAt    time.Time         `bson:"created_at"`
	UpdatedAt    time.Time         `bson:"updated_at"`
}

type concurrencyModel struct {
	Mode string `bson:"mode"`
}

// outputModel keeps the handler result as JSON text so any JSON value
// round-trips, not only documents.
type outputModel struct {
	Duration     string         `bson:"duration"`
	Result       string         `bson:"result,omitempty"`
	Error        string         `bson:"error,omitempty"`
	SkipMetadata *skipMetaModel `bson:"skip_metadata,omitempty"`
}

type skipMetaModel struct {
	Reason           string    `bson:"reason"`
	ConflictingJobID string    `bson:"conflicting_job_id"`
	SkippedAt        time.Time `bson:"skipped_at"`
}

func toJobModel(j *job.Job) *jobModel {
	m := &jobModel{
		ID:           j.ID.String(),
		Type:         string(j.Type),
		Name:         j.Name,
		Status:       string(j.Status),
		ScheduledFor: j.ScheduledFor,
		StartedAt:    j.StartedAt,
		EndedAt:      j.EndedAt,
		WorkerID:     j.WorkerID.String(),
		Output:       toOutputModel(j.Output),
		Sync:         j.Sync,
		Payload:      string(j.Payload),
		CronString:   j.CronString,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
	if j.Type.Executable() {
		mode := j.Concurrency.Mode
		if mode == "" {
			mode = job.ModeConcurrent
		}
		m.Concurrency = &concurrencyModel{Mode: string(mode)}
	}
	return m
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	jobID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("cadence/mongo: parse job id %q: %w", m.ID, err)
	}

	j := &job.Job{
		Entity: cadence.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:           jobID,
		Type:         job.Type(m.Type),
		Name:         m.Name,
		Status:       job.Status(m.Status),
		ScheduledFor: m.ScheduledFor.UTC(),
		StartedAt:    utcPtr(m.StartedAt),
		EndedAt:      utcPtr(m.EndedAt),
		Sync:         m.Sync,
		CronString:   m.CronString,
	}
	if m.WorkerID != "" {
		if j.WorkerID, err = id.ParseWorkerID(m.WorkerID); err != nil {
			return nil, fmt.Errorf("cadence/mongo: parse worker id %q: %w", m.WorkerID, err)
		}
	}
	if m.Concurrency != nil {
		j.Concurrency = job.Concurrency{Mode: job.ConcurrencyMode(m.Concurrency.Mode)}
	}
	if m.Payload != "" {
		j.Payload = json.RawMessage(m.Payload)
	}
	if j.Output, err = fromOutputModel(m.Output); err != nil {
		return nil, fmt.Errorf("cadence/mongo: decode output of %s: %w", m.ID, err)
	}
	return j, nil
}

func toOutputModel(o *job.Output) *outputModel {
	if o == nil {
		return nil
	}
	m := &outputModel{
		Duration: o.Duration,
		Result:   string(o.Result),
		Error:    o.Error,
	}
	if o.SkipMetadata != nil {
		m.SkipMetadata = &skipMetaModel{
			Reason:           o.SkipMetadata.Reason,
			ConflictingJobID: o.SkipMetadata.ConflictingJobID.String(),
			SkippedAt:        o.SkipMetadata.SkippedAt,
		}
	}
	return m
}

func fromOutputModel(m *outputModel) (*job.Output, error) {
	if m == nil {
		return nil, nil
	}
	o := &job.Output{
		Duration: m.Duration,
		Error:    m.Error,
	}
	if m.Result != "" {
		o.Result = json.RawMessage(m.Result)
	}
	if m.SkipMetadata != nil {
		o.SkipMetadata = &job.SkipMetadata{
			Reason:    m.SkipMetadata.Reason,
			SkippedAt: m.SkipMetadata.SkippedAt.UTC(),
		}
		if m.SkipMetadata.ConflictingJobID != "" {
			conflicting, err := id.ParseJobID(m.SkipMetadata.ConflictingJobID)
			if err != nil {
				return nil, err
			}
			o.SkipMetadata.ConflictingJobID = conflicting
		}
	}
	return o, nil
}

// ── Worker model ──────────────────────────────────────────────────

type workerModel struct {
	ID       string    `bson:"_id"`
	Hostname string    `bson:"hostname"`
	LastSeen time.Time `bson:"last_seen"`
	Tags     []string  `bson:"tags"`
}

func fromWorkerModel(m *workerModel) (*cluster.Worker, error) {
	workerID, err := id.ParseWorkerID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("cadence/mongo: parse worker id %q: %w", m.ID, err)
	}
	return &cluster.Worker{
		ID:       workerID,
		Hostname: m.Hostname,
		LastSeen: m.LastSeen.UTC(),
		Tags:     m.Tags,
	}, nil
}

// ── Signal model ──────────────────────────────────────────────────

type signalModel struct {
	ID        string    `bson:"_id"`
	Type      string    `bson:"type"`
	JobID     string    `bson:"job_id"`
	WorkerID  string    `bson:"worker_id"`
	Ack       bool      `bson:"ack"`
	CreatedAt time.Time `bson:"created_at"`
}

func toSignalModel(s *signal.Signal) *signalModel {
	return &signalModel{
		ID:        s.ID.String(),
		Type:      string(s.Type),
		JobID:     s.JobID.String(),
		WorkerID:  s.WorkerID.String(),
		Ack:       s.Ack,
		CreatedAt: s.CreatedAt,
	}
}

func fromSignalModel(m *signalModel) (*signal.Signal, error) {
	sig := &signal.Signal{
		Type:      signal.Type(m.Type),
		Ack:       m.Ack,
		CreatedAt: m.CreatedAt.UTC(),
	}
	var err error
	if sig.ID, err = id.ParseSignalID(m.ID); err != nil {
		return nil, fmt.Errorf("cadence/mongo: parse signal id %q: %w", m.ID, err)
	}
	if sig.JobID, err = id.ParseJobID(m.JobID); err != nil {
		return nil, fmt.Errorf("cadence/mongo: parse signal job id %q: %w", m.JobID, err)
	}
	if sig.WorkerID, err = id.ParseWorkerID(m.WorkerID); err != nil {
		return nil, fmt.Errorf("cadence/mongo: parse signal worker id %q: %w", m.WorkerID, err)
	}
	return sig, nil
}
