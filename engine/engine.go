package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	gu "github.com/xraph/go-utils/metrics"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/backoff"
	"github.com/xraph/cadence/cluster"
	"github.com/xraph/cadence/cron"
	"github.com/xraph/cadence/ext"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
	mw "github.com/xraph/cadence/middleware"
	"github.com/xraph/cadence/monitoring"
	"github.com/xraph/cadence/observability"
	"github.com/xraph/cadence/signal"
	"github.com/xraph/cadence/store"
	"github.com/xraph/cadence/worker"
)

// Notifier carries kill signals outside the store, e.g. redisnotify.
type Notifier interface {
	signal.Publisher
	signal.Subscriber
}

// Engine wires the subsystems of one cadence process.
// Use Build() to create one from a Processor.
type Engine struct {
	p          *cadence.Processor
	config     cadence.Config
	logger     *slog.Logger
	store      store.Store
	extensions *ext.Registry
	registry   *job.Registry
	mws        []mw.Middleware

	guard     *job.Guard
	tokens    *signal.Registry
	channel   *signal.Channel
	executor  *worker.Executor
	detector  *worker.CrashDetector
	scheduler *cron.Scheduler
	monitor   *monitoring.Service
	counters  *observability.CounterExtension

	// worker is the record kept alive by the worker-mode heartbeat; inline
	// is the reference-counted heartbeat of synchronous runs while the
	// processor is not started. Both share the worker ID.
	worker *cluster.Worker
	inline *cluster.InlineHeartbeat

	notifier Notifier
	onFatal  cluster.FatalFunc
	running  atomic.Bool

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	metricFactory gu.MetricFactory
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware to the engine's chain, after the
// default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithNotifier delivers kill signals through n in addition to the store.
// Without it the listener uses the store's own subscription when it has
// one and polls otherwise.
func WithNotifier(n Notifier) Option {
	return func(eng *Engine) {
		eng.notifier = n
	}
}

// WithOnFatal is called when the worker heartbeat gives up. Start returns
// an error wrapping cadence.ErrWorkerDied in any case.
func WithOnFatal(fn cluster.FatalFunc) Option {
	return func(eng *Engine) {
		eng.onFatal = fn
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider used by both the
// metrics middleware and the observability extension.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// WithMetricFactory sets the go-utils factory the lifecycle counters are
// created from, typically the host application's. Without it the engine
// keeps a private collector.
func WithMetricFactory(f gu.MetricFactory) Option {
	return func(eng *Engine) {
		eng.metricFactory = f
	}
}

// Build creates an Engine from a Processor and registers itself as the
// processor's runner. The Processor's store must implement store.Store.
func Build(p *cadence.Processor, opts ...Option) (*Engine, error) {
	logger := p.Logger()
	config := p.Config()

	if p.Store() == nil {
		return nil, cadence.ErrNoStore
	}
	s, ok := p.Store().(store.Store)
	if !ok {
		return nil, fmt.Errorf("cadence: store does not implement store.Store")
	}

	loc, err := config.Location()
	if err != nil {
		return nil, err
	}

	eng := &Engine{
		p:          p,
		config:     config,
		logger:     logger,
		store:      s,
		extensions: ext.NewRegistry(logger),
		registry:   job.NewRegistry(),
		tokens:     signal.NewRegistry(),
		worker:     cluster.NewWorker(config.WorkerTags),
	}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.onFatal == nil {
		eng.onFatal = func(err error) {
			logger.Error("worker heartbeat lost", slog.String("error", err.Error()))
		}
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer("github.com/xraph/cadence"))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter("github.com/xraph/cadence"))
		obsExt = observability.NewMetricsExtensionWithMeter(eng.meterProvider.Meter("github.com/xraph/cadence/observability"))
	} else {
		metricsMw = mw.Metrics()
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)
	if eng.metricFactory != nil {
		eng.counters = observability.NewCounterExtensionWithFactory(eng.metricFactory)
	} else {
		eng.counters = observability.NewCounterExtension()
	}
	eng.extensions.Register(eng.counters)

	// Default middleware stack: recover → tracing → metrics → logging → timeout.
	allMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Timeout(eng.registry, logger),
	}
	allMws = append(allMws, eng.mws...)

	self := eng.worker.ID
	eng.guard = job.NewGuard(s, eng.registry, eng.extensions, logger)

	channelOpts := []signal.ChannelOption{
		signal.WithRetry(backoff.NewConstant(config.KillRetryDelay), config.KillRetryWindow),
	}
	if eng.notifier != nil {
		channelOpts = append(channelOpts, signal.WithPublisher(eng.notifier))
	}
	eng.channel = signal.NewChannel(s, s, eng.tokens, self, logger, channelOpts...)

	eng.executor = worker.NewExecutor(eng.registry, eng.extensions, s, eng.tokens, logger,
		worker.WithMiddleware(allMws...),
		worker.WithKillGrace(config.KillGrace),
	)
	eng.detector = worker.NewCrashDetector(s, s, eng.registry, eng.extensions, logger,
		worker.WithCrashGrace(config.CrashGrace),
		worker.WithWorkerTTL(config.WorkerTTL),
	)
	eng.scheduler = cron.NewScheduler(s, eng.registry, eng.guard, eng.extensions, logger,
		cron.WithTickInterval(config.CronTickInterval),
		cron.WithLocation(loc),
	)
	eng.monitor = monitoring.New(s, monitoring.WithWorkerTTL(config.WorkerTTL))

	inlineWorker := *eng.worker
	eng.inline = cluster.NewInlineHeartbeat(s, &inlineWorker, logger, eng.heartbeatOptions()...)

	p.SetRunner(eng)
	return eng, nil
}

func (eng *Engine) heartbeatOptions() []cluster.HeartbeatOption {
	return []cluster.HeartbeatOption{
		cluster.WithInterval(eng.config.HeartbeatInterval),
		cluster.WithMaxFailures(eng.config.HeartbeatMaxFailures),
		cluster.WithTTL(eng.config.WorkerTTL),
		cluster.WithEmitter(eng.extensions),
		cluster.WithOnFatal(eng.onFatal),
	}
}

// ──────────────────────────────────────────────────
// Registration
// ──────────────────────────────────────────────────

// Register registers a typed job definition with the engine.
func Register[T any](eng *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(eng.registry, def)
}

// RegisterJob registers an untyped job definition whose handler receives
// the raw record.
func (eng *Engine) RegisterJob(name string, handler job.HandlerFunc, opts ...job.Option) {
	o := job.DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	eng.registry.Register(&job.Entry{
		Type:    job.TypeSimple,
		Name:    name,
		Handler: handler,
		Opts:    o,
	})
}

// RegisterCron validates and registers a cron definition. The cron record
// is reconciled with the store when the engine starts.
func (eng *Engine) RegisterCron(def *cron.Definition) error {
	return cron.RegisterDefinition(eng.registry, def)
}

// ──────────────────────────────────────────────────
// Job creation
// ──────────────────────────────────────────────────

// ScheduleJob queues a simple job for scheduledFor. A zero scheduledFor
// means now.
func ScheduleJob[T any](ctx context.Context, eng *Engine, name string, payload T, scheduledFor time.Time) (*job.Job, error) {
	data, err := marshalPayload(name, payload)
	if err != nil {
		return nil, err
	}
	return eng.ScheduleJobRaw(ctx, name, data, scheduledFor)
}

// ScheduleJobRaw queues a simple job with a pre-serialized payload.
func (eng *Engine) ScheduleJobRaw(ctx context.Context, name string, payload json.RawMessage, scheduledFor time.Time) (*job.Job, error) {
	if _, ok := eng.registry.Get(job.TypeSimple, name); !ok {
		return nil, fmt.Errorf("schedule %q: %w", name, cadence.ErrDefinitionNotFound)
	}
	if scheduledFor.IsZero() {
		scheduledFor = time.Now()
	}

	j, err := eng.guard.Create(ctx, job.NewSimple(name, payload, scheduledFor))
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", name, err)
	}
	if j.Status == job.StatusPending {
		eng.extensions.EmitJobScheduled(ctx, j)
	}
	return j, nil
}

// RunJob creates a simple job owned by this process and executes it
// before returning. The returned record is the final state; a job skipped
// for an active exclusive instance is returned without running.
func RunJob[T any](ctx context.Context, eng *Engine, name string, payload T) (*job.Job, worker.Outcome, error) {
	data, err := marshalPayload(name, payload)
	if err != nil {
		return nil, worker.OutcomeError, err
	}
	return eng.RunJobRaw(ctx, name, data)
}

// RunJobRaw runs a simple job with a pre-serialized payload.
func (eng *Engine) RunJobRaw(ctx context.Context, name string, payload json.RawMessage) (*job.Job, worker.Outcome, error) {
	if _, ok := eng.registry.Get(job.TypeSimple, name); !ok {
		return nil, worker.OutcomeError, fmt.Errorf("run %q: %w", name, cadence.ErrDefinitionNotFound)
	}

	now := time.Now().UTC()
	rec := job.NewSimple(name, payload, now)
	rec.Status = job.StatusRunning
	rec.Sync = true
	rec.WorkerID = eng.worker.ID
	rec.StartedAt = &now

	j, err := eng.guard.Create(ctx, rec)
	if err != nil {
		return nil, worker.OutcomeError, fmt.Errorf("run %q: %w", name, err)
	}
	if j.Status == job.StatusSkipped {
		return j, worker.OutcomeAborted, nil
	}

	// A started processor already keeps the worker record alive.
	if !eng.running.Load() {
		release, err := eng.inline.Acquire(ctx)
		if err != nil {
			return nil, worker.OutcomeError, fmt.Errorf("run %q: %w", name, err)
		}
		defer release()
	}

	outcome := eng.executor.Execute(ctx, j)

	final, err := eng.store.GetJob(context.WithoutCancel(ctx), j.ID)
	if err != nil {
		return nil, outcome, fmt.Errorf("run %q: reload: %w", name, err)
	}
	return final, outcome, nil
}

// AddJob queues the job when queued is true, otherwise runs it inline.
func AddJob[T any](ctx context.Context, eng *Engine, name string, payload T, queued bool) (*job.Job, error) {
	if queued {
		return ScheduleJob(ctx, eng, name, payload, time.Time{})
	}
	j, _, err := RunJob(ctx, eng, name, payload)
	return j, err
}

func marshalPayload[T any](name string, payload T) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for job %q: %w", name, err)
	}
	return data, nil
}

// ──────────────────────────────────────────────────
// Control and inspection
// ──────────────────────────────────────────────────

// KillJob requests the termination of a job, wherever it runs.
func (eng *Engine) KillJob(ctx context.Context, jobID id.JobID) error {
	return eng.channel.Kill(ctx, jobID)
}

// GetJob returns a job or cron task record.
func (eng *Engine) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return eng.store.GetJob(ctx, jobID)
}

// Status returns the full processor snapshot.
func (eng *Engine) Status(ctx context.Context) (*monitoring.ProcessorStatus, error) {
	return eng.monitor.Status(ctx)
}

// Healthcheck returns the light processor snapshot.
func (eng *Engine) Healthcheck(ctx context.Context) (*monitoring.Healthcheck, error) {
	return eng.monitor.Healthcheck(ctx)
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Run is Start; it lets the engine serve as the Processor's runner.
func (eng *Engine) Run(ctx context.Context) error { return eng.Start(ctx) }

// Start registers the worker, reconciles crons and blocks running the
// heartbeat, signal listener, cron scheduler and claim loops until ctx is
// done. An engine with no definitions skips the cron scheduler and claims
// nothing; crash detection and housekeeping still run. A lost heartbeat
// stops every loop and is returned wrapped in cadence.ErrWorkerDied.
func (eng *Engine) Start(ctx context.Context) error {
	if !eng.running.CompareAndSwap(false, true) {
		return fmt.Errorf("cadence: engine already started")
	}
	defer eng.running.Store(false)
	defer eng.extensions.EmitShutdown(context.WithoutCancel(ctx))

	// Inline runs still in flight must not remove the record this
	// heartbeat now owns.
	eng.inline.SetShared(true)
	defer eng.inline.SetShared(false)

	hb := cluster.NewHeartbeat(eng.store, eng.worker, eng.logger, eng.heartbeatOptions()...)
	if err := hb.Register(ctx); err != nil {
		return err
	}

	// Without definitions the process owns no crons and can run no jobs:
	// reconciling would delete every cron in the store and claiming would
	// error foreign jobs. It only keeps its worker record, serves kills
	// and reclaims crashed jobs.
	passive := eng.registry.Len() == 0
	if passive {
		eng.logger.Info("no job or cron definitions registered; running without scheduler or claims")
	} else if err := eng.scheduler.Init(ctx); err != nil {
		if rmErr := eng.store.RemoveWorker(context.WithoutCancel(ctx), eng.worker.ID); rmErr != nil {
			eng.logger.Warn("remove worker record error", slog.String("error", rmErr.Error()))
		}
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := hb.Run(gctx); err != nil {
			if errors.Is(err, cadence.ErrWorkerDied) {
				return err
			}
			return fmt.Errorf("%w: %w", cadence.ErrWorkerDied, err)
		}
		return nil
	})
	g.Go(func() error {
		return eng.listener().Run(gctx)
	})
	if !passive {
		g.Go(func() error {
			return eng.scheduler.Run(gctx)
		})
	}
	g.Go(func() error {
		return eng.processor().Run(gctx)
	})

	eng.logger.Info("cadence engine started",
		slog.String("worker_id", eng.worker.ID.String()),
		slog.Any("worker_tags", eng.config.WorkerTags),
	)

	err := g.Wait()
	eng.logger.Info("cadence engine stopped", slog.String("worker_id", eng.worker.ID.String()))
	return err
}

func (eng *Engine) listener() *signal.Listener {
	opts := []signal.ListenerOption{signal.WithPollInterval(eng.config.SignalPollInterval)}
	switch {
	case eng.notifier != nil:
		opts = append(opts, signal.WithSubscriber(eng.notifier))
	default:
		if sub, ok := eng.store.(signal.Subscriber); ok {
			opts = append(opts, signal.WithSubscriber(sub))
		}
	}
	return signal.NewListener(eng.store, eng.channel, eng.worker.ID, eng.logger, opts...)
}

func (eng *Engine) processor() *worker.Processor {
	// Nil tags scope every name, so an empty registry must scope nothing.
	var scope job.Scope
	if eng.registry.Len() > 0 {
		scope = eng.registry.Scope(eng.config.WorkerTags)
	}
	return worker.NewProcessor(eng.store, eng.executor, eng.detector, eng.worker.ID,
		scope, eng.logger,
		worker.WithPollInterval(eng.config.PollInterval),
		worker.WithClaimRate(eng.config.ClaimRate),
		worker.WithHousekeeping(eng.store, eng.config.HousekeepingInterval, eng.config.JobRetention, eng.config.SignalTTL),
	)
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// WorkerID returns the identifier of this process.
func (eng *Engine) WorkerID() id.WorkerID { return eng.worker.ID }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the job registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Processor returns the underlying Processor.
func (eng *Engine) Processor() *cadence.Processor { return eng.p }

// Store returns the engine's store.
func (eng *Engine) Store() store.Store { return eng.store }

// Scheduler returns the cron scheduler.
func (eng *Engine) Scheduler() *cron.Scheduler { return eng.scheduler }

// Counters returns the in-process lifecycle totals.
func (eng *Engine) Counters() *observability.CounterExtension { return eng.counters }

// Monitor returns the read model service.
func (eng *Engine) Monitor() *monitoring.Service { return eng.monitor }
