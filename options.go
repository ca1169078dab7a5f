package cadence

import (
	"context"
	"log/slog"
	"time"
)

// Option configures a Processor.
type Option func(*Processor) error

// Storer is the minimal store interface held by the Processor.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is used in subsystem layers that don't create import
// cycles.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// runner is an internal interface for the processing loops.
type runner interface {
	Run(ctx context.Context) error
}

// Processor is the host-side handle of a cadence process: configuration,
// logger and store. The engine package wires the subsystems onto it.
type Processor struct {
	config Config
	logger *slog.Logger
	store  Storer
	runner runner
}

// New creates a new Processor with the given options.
func New(opts ...Option) (*Processor, error) {
	p := &Processor{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	if err := p.config.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Logger returns the processor's logger.
func (p *Processor) Logger() *slog.Logger { return p.logger }

// Store returns the processor's store.
func (p *Processor) Store() Storer { return p.store }

// Config returns a copy of the processor's configuration.
func (p *Processor) Config() Config { return p.config }

// SetRunner sets the processing loops (called by the engine package).
func (p *Processor) SetRunner(r runner) { p.runner = r }

// Run blocks running the processing loops until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	if p.store == nil || p.runner == nil {
		return ErrNoStore
	}
	return p.runner.Run(ctx)
}

// Close releases the store.
func (p *Processor) Close() error {
	if p.store != nil {
		return p.store.Close()
	}
	return nil
}

// WithConfig replaces the whole configuration.
func WithConfig(c Config) Option {
	return func(p *Processor) error {
		p.config = c
		return nil
	}
}

// WithLogger sets the structured logger for the processor.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) error {
		p.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the processor.
// The store must implement Storer at minimum; typically it will be a
// store.Store which embeds all subsystem store interfaces.
func WithStore(s Storer) Option {
	return func(p *Processor) error {
		p.store = s
		return nil
	}
}

// WithWorkerTags restricts this process to definitions without a tag or
// with a tag in the list. An empty list is rejected.
func WithWorkerTags(tags []string) Option {
	return func(p *Processor) error {
		if tags != nil && len(tags) == 0 {
			return ErrEmptyWorkerTags
		}
		p.config.WorkerTags = tags
		return nil
	}
}

// WithPollInterval overrides the idle sleep of the claim loop.
func WithPollInterval(d time.Duration) Option {
	return func(p *Processor) error {
		p.config.PollInterval = d
		return nil
	}
}

// WithTimezone sets the IANA location cron expressions are evaluated in.
func WithTimezone(tz string) Option {
	return func(p *Processor) error {
		p.config.Timezone = tz
		return nil
	}
}
