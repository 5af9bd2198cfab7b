// Package stage wraps one unit of pipeline work with the retry policy:
// invoke, classify the failure, back off, re-invoke, and report a tagged
// outcome instead of letting errors escape.
package stage

import (
	"context"
	"errors"
	"time"

	"vidscribe/internal/retry"
)

// Outcome tags the result of running a stage; callers branch on it rather
// than inspecting errors.
type Outcome int

const (
	Success Outcome = iota
	Exhausted
	Fatal
	Canceled
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Exhausted:
		return "retries_exhausted"
	case Fatal:
		return "fatal"
	case Canceled:
		return "canceled"
	}
	return "unknown"
}

// Result carries the stage value on success, or the last error and the
// number of attempts spent otherwise.
type Result[T any] struct {
	Outcome  Outcome
	Value    T
	Err      error
	Attempts int
}

// Recorder receives every failed attempt before the retry decision is made,
// so attempt state is observable mid-retry even if the process later stops.
// *model.VideoRecord satisfies it.
type Recorder interface {
	RecordAttempt(attempt int, kind, message string, at time.Time)
}

// Run invokes fn until it succeeds, the retry budget is exhausted, a fatal
// error is hit, or ctx is done. Backoff sleeps suspend only the calling
// goroutine. rec may be nil when no per-video bookkeeping applies.
func Run[T any](ctx context.Context, policy retry.Policy, rec Recorder, fn func(context.Context) (T, error)) Result[T] {
	var zero T
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result[T]{Outcome: Canceled, Value: zero, Err: err, Attempts: attempt - 1}
		}

		value, err := fn(ctx)
		if err == nil {
			return Result[T]{Outcome: Success, Value: value, Attempts: attempt}
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result[T]{Outcome: Canceled, Value: zero, Err: err, Attempts: attempt}
		}

		class := retry.Classify(err)
		if rec != nil {
			rec.RecordAttempt(attempt, class.String(), err.Error(), time.Now().UTC())
		}

		decision := policy.Decide(attempt, class)
		if !decision.Retry {
			outcome := Exhausted
			if class == retry.ClassFatal {
				outcome = Fatal
			}
			return Result[T]{Outcome: outcome, Value: zero, Err: err, Attempts: attempt}
		}

		select {
		case <-ctx.Done():
			return Result[T]{Outcome: Canceled, Value: zero, Err: err, Attempts: attempt}
		case <-time.After(decision.Delay):
		}
	}
}
