package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/cadence/job"
)

// PanicError is the error a recovered handler panic is turned into. When the
// panic value is itself an error it is reachable through errors.Unwrap, so
// the rendered output keeps its cause chain.
type PanicError struct {
	Job   string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in job %s: %v", e.Job, e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// IsPanic reports whether err comes from a recovered handler panic.
func IsPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}

// Recover returns middleware that turns handler panics into a *PanicError
// and logs them with the stack.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (result any, err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			pe := &PanicError{Job: j.Name, Value: r, Stack: debug.Stack()}
			logger.ErrorContext(ctx, "job handler panicked",
				slog.String("job_id", j.ID.String()),
				slog.String("job_name", j.Name),
				slog.Any("panic", r),
				slog.String("stack", string(pe.Stack)),
			)
			result, err = nil, pe
		}()
		return next(ctx)
	}
}
