package job

import (
	"context"
	"time"
)

// ExitHook is invoked with the final record once an execution ended,
// including crashes detected on another worker. Errors are logged.
type ExitHook func(ctx context.Context, j *Job) error

// Options configures per-definition behavior.
type Options struct {
	// Concurrency selects exclusive or concurrent instances. Default
	// concurrent.
	Concurrency ConcurrencyMode

	// Resumable marks jobs that pause on shutdown instead of erroring.
	Resumable bool

	// Tag restricts execution to workers whose tag list contains it.
	// Empty means any worker.
	Tag string

	// Timeout is the maximum duration a handler may run. Zero means
	// unlimited.
	Timeout time.Duration

	// OnJobExited is called after the job reached its final status.
	OnJobExited ExitHook
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Concurrency: ModeConcurrent,
	}
}

// Option is a functional option for configuring a definition.
type Option func(*Options)

// WithConcurrency sets the concurrency mode.
func WithConcurrency(m ConcurrencyMode) Option {
	return func(o *Options) {
		o.Concurrency = m
	}
}

// WithResumable marks the job as resumable across shutdowns.
func WithResumable() Option {
	return func(o *Options) {
		o.Resumable = true
	}
}

// WithTag restricts the job to workers carrying tag.
func WithTag(tag string) Option {
	return func(o *Options) {
		o.Tag = tag
	}
}

// WithTimeout sets the maximum execution duration for the handler.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithOnJobExited sets the exit hook.
func WithOnJobExited(h ExitHook) Option {
	return func(o *Options) {
		o.OnJobExited = h
	}
}
