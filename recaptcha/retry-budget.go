package recaptcha

import (
	"context"
	"errors"
	"time"
)

// RetryBudget bounds a retry loop over an idempotent operation.
type RetryBudget struct {
	MaxAttempts int
	Delay       time.Duration
}

type stopError struct {
	err error
}

func (e *stopError) Error() string { return e.err.Error() }
func (e *stopError) Unwrap() error { return e.err }

// Stop marks err as permanent: Do returns it without further attempts.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

func (b RetryBudget) attempts() int {
	if b.MaxAttempts < 1 {
		return 1
	}
	return b.MaxAttempts
}

// Do calls fn until it succeeds, returns a Stop error, ctx ends or the budget is
// spent. It reports how many attempts ran and the last error.
func (b RetryBudget) Do(ctx context.Context, fn func(attempt int) error) (int, error) {
	var err error
	max := b.attempts()

	for attempt := 1; attempt <= max; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt - 1, ctxErr
		}

		if err = fn(attempt); err == nil {
			return attempt, nil
		}

		var stop *stopError
		if errors.As(err, &stop) {
			return attempt, stop.err
		}

		if attempt < max && b.Delay > 0 {
			if sleepErr := sleepContext(ctx, b.Delay); sleepErr != nil {
				return attempt, sleepErr
			}
		}
	}

	return max, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
