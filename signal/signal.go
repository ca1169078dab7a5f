package signal

import (
	"errors"
	"time"

	"github.com/xraph/cadence/id"
)

// Type is the kind of a signal.
type Type string

// TypeKill requests the cancellation of a running job.
const TypeKill Type = "kill"

// ErrKilled is the cancellation cause of killed jobs.
var ErrKilled = errors.New("job killed")

// Signal is a durable request addressed to a worker.
type Signal struct {
	ID        id.SignalID `json:"id"`
	Type      Type        `json:"type"`
	JobID     id.JobID    `json:"job_id"`
	WorkerID  id.WorkerID `json:"worker_id"`
	Ack       bool        `json:"ack"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewKill builds an unacknowledged kill signal.
func NewKill(jobID id.JobID, workerID id.WorkerID, now time.Time) *Signal {
	return &Signal{
		ID:        id.NewSignalID(),
		Type:      TypeKill,
		JobID:     jobID,
		WorkerID:  workerID,
		CreatedAt: now.UTC(),
	}
}
