package signal

import (
	"context"
	"sync"

	"github.com/xraph/cadence/id"
)

// Registry holds the in-process cancellation tokens of running jobs.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	tokens map[id.JobID]context.CancelCauseFunc
}

// NewRegistry creates an empty token registry.
func NewRegistry() *Registry {
	return &Registry{tokens: make(map[id.JobID]context.CancelCauseFunc)}
}

// Register derives a cancellable context for jobID from parent. The
// returned release removes the token and must be called when execution
// ends.
func (r *Registry) Register(parent context.Context, jobID id.JobID) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)

	r.mu.Lock()
	r.tokens[jobID] = cancel
	r.mu.Unlock()

	return ctx, func() {
		r.mu.Lock()
		delete(r.tokens, jobID)
		r.mu.Unlock()
		cancel(nil)
	}
}

// Cancel raises the token of jobID with ErrKilled. Returns false when no
// token is registered.
func (r *Registry) Cancel(jobID id.JobID) bool {
	r.mu.Lock()
	cancel, ok := r.tokens[jobID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	cancel(ErrKilled)
	return true
}

// Len returns the number of registered tokens.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}
