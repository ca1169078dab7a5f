package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/cadence/ext"
	"github.com/xraph/cadence/job"
	"github.com/xraph/cadence/middleware"
	"github.com/xraph/cadence/signal"
)

// Outcome is the result code of an execution.
type Outcome int

const (
	// OutcomeSuccess means the handler returned without error.
	OutcomeSuccess Outcome = 0
	// OutcomeError means the handler returned an error.
	OutcomeError Outcome = 1
	// OutcomeAborted means the job was killed or interrupted by shutdown.
	OutcomeAborted Outcome = 2
)

// Output error messages of interrupted jobs.
const (
	KilledError      = "Killed"
	InterruptedError = "Interrupted"
)

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMiddleware sets the middleware chain wrapped around every handler.
func WithMiddleware(mws ...middleware.Middleware) ExecutorOption {
	return func(e *Executor) { e.mw = middleware.Chain(mws...) }
}

// WithKillGrace bounds how long an interrupted handler may take to return
// before the job is finalized without it.
func WithKillGrace(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.killGrace = d }
}

// WithExecutorClock overrides the time source.
func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

// Executor runs a single claimed job through middleware and its handler,
// then finalizes the record, runs the exit hook and emits lifecycle events.
type Executor struct {
	registry   *job.Registry
	extensions *ext.Registry
	store      job.Store
	tokens     *signal.Registry
	mw         middleware.Middleware
	logger     *slog.Logger
	now        func() time.Time
	killGrace  time.Duration
}

// NewExecutor creates an Executor. Kill tokens are registered in tokens for
// the duration of every execution.
func NewExecutor(
	registry *job.Registry,
	extensions *ext.Registry,
	store job.Store,
	tokens *signal.Registry,
	logger *slog.Logger,
	opts ...ExecutorOption,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if extensions == nil {
		extensions = ext.NewRegistry(logger)
	}
	e := &Executor{
		registry:   registry,
		extensions: extensions,
		store:      store,
		tokens:     tokens,
		mw:         middleware.Chain(),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		killGrace:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type handlerResult struct {
	value any
	err   error
}

// Execute runs j, which must be running and owned by j.WorkerID. The
// handler observes ctx and the job's kill token. An interrupted handler
// gets the kill grace period to return; past it the job is finalized and
// the handler is left to finish on its own.
func (e *Executor) Execute(ctx context.Context, j *job.Job) Outcome {
	start := e.now()
	entry, ok := e.registry.Get(j.Type, j.Name)
	if !ok {
		err := fmt.Errorf("no handler registered for %s %q", j.Type, j.Name)
		e.finalize(ctx, j, nil, job.StatusErrored, &job.Output{Duration: since(start, e.now()), Error: err.Error()}, err)
		return OutcomeError
	}

	jobCtx, release := e.tokens.Register(ctx, j.ID)
	defer release()

	e.extensions.EmitJobClaimed(ctx, j)

	done := make(chan handlerResult, 1)
	go func() {
		value, err := e.mw(jobCtx, j, func(hctx context.Context) (any, error) {
			return entry.Handler(hctx, j)
		})
		done <- handlerResult{value: value, err: err}
	}()

	var (
		res      handlerResult
		returned bool
	)
	select {
	case res = <-done:
		returned = true
	case <-jobCtx.Done():
		timer := time.NewTimer(e.killGrace)
		select {
		case res = <-done:
			returned = true
		case <-timer.C:
			e.logger.Warn("job handler ignored cancellation, finalizing without it",
				slog.String("job_id", j.ID.String()),
				slog.String("job_name", j.Name),
				slog.Duration("grace", e.killGrace),
			)
		}
		timer.Stop()
	}

	duration := since(start, e.now())

	if cause := context.Cause(jobCtx); cause != nil {
		// A kill always wins. Otherwise a handler that returned keeps its
		// own result unless all it returned was the cancellation.
		if errors.Is(cause, signal.ErrKilled) || !returned || isCancellation(res.err, cause) {
			return e.interrupted(ctx, j, entry, cause, duration)
		}
	}

	if res.err != nil {
		out := &job.Output{Duration: duration, Error: RenderError(res.err)}
		e.finalize(ctx, j, entry, job.StatusErrored, out, res.err)
		return OutcomeError
	}

	result, err := json.Marshal(res.value)
	if err != nil {
		err = fmt.Errorf("encode result: %w", err)
		e.finalize(ctx, j, entry, job.StatusErrored, &job.Output{Duration: duration, Error: RenderError(err)}, err)
		return OutcomeError
	}
	e.finalize(ctx, j, entry, job.StatusFinished, &job.Output{Duration: duration, Result: result}, nil)
	return OutcomeSuccess
}

// isCancellation reports whether err is nothing more than the reason the
// job context ended.
func isCancellation(err, cause error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, cause) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// interrupted finalizes a job whose context ended before the handler
// completed: killed jobs end as killed; on shutdown resumable jobs pause
// and the others end as errored.
func (e *Executor) interrupted(ctx context.Context, j *job.Job, entry *job.Entry, cause error, duration string) Outcome {
	if errors.Is(cause, signal.ErrKilled) {
		e.finalize(ctx, j, entry, job.StatusKilled, &job.Output{Duration: duration, Error: KilledError}, nil)
		return OutcomeAborted
	}

	if entry.Opts.Resumable {
		e.finalize(ctx, j, entry, job.StatusPaused, nil, nil)
		return OutcomeAborted
	}
	e.finalize(ctx, j, entry, job.StatusErrored, &job.Output{Duration: duration, Error: InterruptedError}, cause)
	return OutcomeAborted
}

// finalize writes the terminal (or paused) state, conditional on the job
// still running for its owner, then runs the exit hook and emits events.
// entry is nil when no definition is registered.
func (e *Executor) finalize(ctx context.Context, j *job.Job, entry *job.Entry, status job.Status, out *job.Output, cause error) {
	// Finalization must survive process shutdown.
	ctx = context.WithoutCancel(ctx)

	now := e.now()
	f := job.Finalization{Status: status, Output: out, UpdatedAt: now}
	if status != job.StatusPaused {
		f.EndedAt = &now
	}

	ok, err := e.store.FinalizeJob(ctx, j.ID, j.WorkerID, f)
	if err != nil {
		e.logger.Error("finalize job error",
			slog.String("job_id", j.ID.String()),
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
		return
	}
	if !ok {
		// Killed before we could finalize, or reclaimed as crashed.
		e.logger.Info("job already finalized elsewhere",
			slog.String("job_id", j.ID.String()),
			slog.String("job_name", j.Name),
		)
		return
	}

	final, err := e.store.GetJob(ctx, j.ID)
	if err != nil {
		e.logger.Error("re-read finalized job error",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		final = j.Clone()
		final.Status = status
		final.Output = out
		final.EndedAt = f.EndedAt
	}

	switch status {
	case job.StatusFinished:
		e.extensions.EmitJobFinished(ctx, final, now.Sub(derefTime(final.StartedAt, now)))
	case job.StatusErrored:
		e.extensions.EmitJobErrored(ctx, final, cause)
	case job.StatusKilled:
		e.extensions.EmitJobKilled(ctx, final)
	case job.StatusPaused:
		e.extensions.EmitJobPaused(ctx, final)
		// Not exited: the job resumes on the next claim.
		return
	}

	if entry != nil {
		runExitHook(ctx, entry, final, e.logger)
	}
}

// runExitHook calls the definition's exit hook. Errors and panics are
// logged, never returned.
func runExitHook(ctx context.Context, entry *job.Entry, j *job.Job, logger *slog.Logger) {
	if entry.Opts.OnJobExited == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job exit hook panicked",
				slog.String("job_id", j.ID.String()),
				slog.Any("panic", r),
			)
		}
	}()
	if err := entry.Opts.OnJobExited(ctx, j); err != nil {
		logger.Error("job exit hook error",
			slog.String("job_id", j.ID.String()),
			slog.String("job_name", j.Name),
			slog.String("error", err.Error()),
		)
	}
}

func since(start, end time.Time) string {
	return end.Sub(start).Round(time.Millisecond).String()
}

func derefTime(t *time.Time, fallback time.Time) time.Time {
	if t == nil {
		return fallback
	}
	return *t
}
