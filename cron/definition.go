package cron

import (
	"context"
	"fmt"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/job"
)

// Definition is a cron definition.
type Definition struct {
	// Name is the unique identifier for this cron.
	Name string

	// Schedule is a cron expression (e.g., "*/5 * * * *" or "@daily").
	Schedule string

	// Handler runs on each firing. The returned value is JSON-encoded into
	// the task output.
	Handler func(ctx context.Context) (any, error)

	// Opts configures concurrency, resumability, tag and exit hook.
	Opts job.Options
}

// NewDefinition creates a cron definition.
func NewDefinition(name, schedule string, handler func(ctx context.Context) (any, error), opts ...job.Option) *Definition {
	def := &Definition{
		Name:     name,
		Schedule: schedule,
		Handler:  handler,
		Opts:     job.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}

// RegisterDefinition validates the schedule and registers the definition's
// task handler.
func RegisterDefinition(r *job.Registry, def *Definition) error {
	if _, err := ParseSchedule(def.Schedule); err != nil {
		return fmt.Errorf("%w %q for cron %q: %w", cadence.ErrInvalidSchedule, def.Schedule, def.Name, err)
	}

	handler := def.Handler
	r.Register(&job.Entry{
		Type: job.TypeCronTask,
		Name: def.Name,
		Handler: func(ctx context.Context, _ *job.Job) (any, error) {
			return handler(ctx)
		},
		Opts:     def.Opts,
		Schedule: def.Schedule,
	})
	return nil
}
