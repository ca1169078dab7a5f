package job

import (
	"encoding/json"
	"time"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
)

// Type discriminates the record kinds stored in the job collection.
type Type string

const (
	// TypeSimple is a one-off job.
	TypeSimple Type = "simple"
	// TypeCron is the persistent record of a recurring schedule.
	TypeCron Type = "cron"
	// TypeCronTask is one firing of a cron.
	TypeCronTask Type = "cron_task"
)

// Executable reports whether records of this type are claimed and run.
func (t Type) Executable() bool {
	return t == TypeSimple || t == TypeCronTask
}

// Status represents the lifecycle state of a record.
type Status string

const (
	// StatusPending means the job is waiting to be claimed.
	StatusPending Status = "pending"
	// StatusRunning means a worker is currently executing the job.
	StatusRunning Status = "running"
	// StatusFinished means the handler returned successfully.
	StatusFinished Status = "finished"
	// StatusErrored means the handler failed or its worker crashed.
	StatusErrored Status = "errored"
	// StatusKilled means the job was killed on request.
	StatusKilled Status = "killed"
	// StatusPaused means a resumable job was interrupted by shutdown and
	// is claimable again.
	StatusPaused Status = "paused"
	// StatusSkipped means an exclusive job was not created because another
	// instance was active.
	StatusSkipped Status = "skipped"
	// StatusActive is the permanent status of cron records.
	StatusActive Status = "active"
)

// ActiveStatuses are the statuses that hold the exclusivity slot.
var ActiveStatuses = []Status{StatusPending, StatusRunning, StatusPaused}

// ClaimableStatuses are the statuses a worker may claim from.
var ClaimableStatuses = []Status{StatusPaused, StatusPending}

// IsActive reports whether the status holds the exclusivity slot.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusRunning || s == StatusPaused
}

// IsTerminal reports whether the status is final.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFinished, StatusErrored, StatusKilled, StatusSkipped:
		return true
	default:
		return false
	}
}

// ConcurrencyMode controls how many active instances of a name may exist.
type ConcurrencyMode string

const (
	// ModeConcurrent allows any number of active instances.
	ModeConcurrent ConcurrencyMode = "concurrent"
	// ModeExclusive allows at most one active instance per name.
	ModeExclusive ConcurrencyMode = "exclusive"
)

// Concurrency is the persisted concurrency setting of an executable record.
type Concurrency struct {
	Mode ConcurrencyMode `json:"mode"`
}

// SkipReasonConflict is recorded when an exclusive job could not be created.
const SkipReasonConflict = "conflict"

// DurationUnknown is the output duration of jobs that never ran in this
// process (skipped or crashed).
const DurationUnknown = "--"

// SkipMetadata explains why a record was skipped.
type SkipMetadata struct {
	Reason           string    `json:"reason"`
	ConflictingJobID id.JobID  `json:"conflicting_job_id"`
	SkippedAt        time.Time `json:"skipped_at"`
}

// Output is the outcome of an executable record.
type Output struct {
	Duration     string          `json:"duration"`
	Result       json.RawMessage `json:"result"`
	Error        string          `json:"error,omitempty"`
	SkipMetadata *SkipMetadata   `json:"skip_metadata,omitempty"`
}

// Job is a persisted record of any [Type]. Fields that do not apply to a
// type are left at their zero value.
type Job struct {
	cadence.Entity

	ID           id.JobID  `json:"id"`
	Type         Type      `json:"type"`
	Name         string    `json:"name"`
	Status       Status    `json:"status"`
	ScheduledFor time.Time `json:"scheduled_for"`

	// Executable records.
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	EndedAt     *time.Time  `json:"ended_at,omitempty"`
	WorkerID    id.WorkerID `json:"worker_id"`
	Output      *Output     `json:"output,omitempty"`
	Concurrency Concurrency `json:"concurrency"`

	// Simple jobs.
	Sync    bool            `json:"sync,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// Cron records.
	CronString string `json:"cron_string,omitempty"`
}

// Exclusive reports whether the record is subject to the exclusivity slot.
func (j *Job) Exclusive() bool {
	return j.Type.Executable() && j.Concurrency.Mode == ModeExclusive
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.EndedAt != nil {
		t := *j.EndedAt
		cp.EndedAt = &t
	}
	if j.Output != nil {
		o := *j.Output
		if j.Output.Result != nil {
			o.Result = append(json.RawMessage(nil), j.Output.Result...)
		}
		if j.Output.SkipMetadata != nil {
			sm := *j.Output.SkipMetadata
			o.SkipMetadata = &sm
		}
		cp.Output = &o
	}
	if j.Payload != nil {
		cp.Payload = append(json.RawMessage(nil), j.Payload...)
	}
	return &cp
}

// NewSimple builds a pending simple job.
func NewSimple(name string, payload json.RawMessage, scheduledFor time.Time) *Job {
	now := time.Now().UTC()
	return &Job{
		Entity:       cadence.NewEntityAt(now),
		ID:           id.NewJobID(),
		Type:         TypeSimple,
		Name:         name,
		Status:       StatusPending,
		ScheduledFor: scheduledFor.UTC(),
		Payload:      payload,
		Concurrency:  Concurrency{Mode: ModeConcurrent},
	}
}

// NewCronTask builds a pending cron task.
func NewCronTask(name string, scheduledFor time.Time) *Job {
	now := time.Now().UTC()
	return &Job{
		Entity:       cadence.NewEntityAt(now),
		ID:           id.NewJobID(),
		Type:         TypeCronTask,
		Name:         name,
		Status:       StatusPending,
		ScheduledFor: scheduledFor.UTC(),
		Concurrency:  Concurrency{Mode: ModeConcurrent},
	}
}

// CrashedError is the output error of records reclaimed from dead workers.
const CrashedError = "Worker crashed unexpectedly"

// CrashedOutput returns the output stored on reclaimed records.
func CrashedOutput() *Output {
	return &Output{Duration: DurationUnknown, Error: CrashedError}
}
