package catalog

import (
	"context"
	"errors"
	"time"

	stepflowerrors "github.com/tombee/stepflow/pkg/errors"
)

// LookupState is the observable state of an external lookup.
type LookupState string

const (
	LookupLoading LookupState = "loading"
	LookupLoaded  LookupState = "loaded"
	LookupError   LookupState = "error"
)

// Lookup is the result of an external fetch as seen by the engine. Loading
// means "defer judgement"; Error means "cannot verify, block with a reason".
type Lookup[T any] struct {
	State LookupState
	Value T
	Err   error
}

// Loaded wraps a successful fetch.
func Loaded[T any](v T) Lookup[T] {
	return Lookup[T]{State: LookupLoaded, Value: v}
}

// Loading marks a fetch that has not completed.
func Loading[T any]() Lookup[T] {
	return Lookup[T]{State: LookupLoading}
}

// Failed wraps a failed fetch.
func Failed[T any](err error) Lookup[T] {
	return Lookup[T]{State: LookupError, Err: err}
}

func (l Lookup[T]) IsLoaded() bool  { return l.State == LookupLoaded }
func (l Lookup[T]) IsLoading() bool { return l.State == LookupLoading || l.State == "" }
func (l Lookup[T]) IsError() bool   { return l.State == LookupError }

// Fetch runs fn with a timeout and wraps the outcome. A NotFoundError is an
// answer, not a failure, and yields a loaded zero value. A deadline becomes a
// TimeoutError; other failures are wrapped as UnavailableError for service.
func Fetch[T any](ctx context.Context, service string, timeout time.Duration, fn func(context.Context) (T, error)) Lookup[T] {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	v, err := fn(ctx)
	if err == nil {
		return Loaded(v)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Failed[T](&stepflowerrors.TimeoutError{Operation: service + " lookup", Duration: timeout, Cause: err})
	}
	var notFound *stepflowerrors.NotFoundError
	if errors.As(err, &notFound) {
		var zero T
		return Loaded(zero)
	}
	return Failed[T](&stepflowerrors.UnavailableError{Service: service, Cause: err})
}
