package cluster

import (
	"os"
	"time"

	"github.com/xraph/cadence/id"
)

// Worker is the liveness record of a worker process.
type Worker struct {
	ID       id.WorkerID `json:"id"`
	Hostname string      `json:"hostname"`
	LastSeen time.Time   `json:"last_seen"`
	// Tags is nil for a worker that executes every definition.
	Tags []string `json:"tags"`
}

// NewWorker creates a worker record for the current host.
func NewWorker(tags []string) *Worker {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &Worker{
		ID:       id.NewWorkerID(),
		Hostname: hostname,
		LastSeen: time.Now().UTC(),
		Tags:     tags,
	}
}
