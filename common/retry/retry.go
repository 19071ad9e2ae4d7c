package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Policy describes how many times an operation runs and how long to wait between runs
type Policy struct {
	// MaxAttempts is the total number of tries, including the first
	MaxAttempts int

	// Backoff returns the delay after the given zero-based failed attempt
	Backoff func(attempt int) time.Duration
}

// Exponential returns base * 2^attempt
func Exponential(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	}
}

// Constant returns the same delay for every attempt
func Constant(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration {
		return d
	}
}

// DefaultPolicy is three attempts with 1s, 2s waits in between
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	Backoff:     Exponential(time.Second),
}

// Delays lists the waits the policy would apply between attempts
func (p Policy) Delays() []time.Duration {
	if p.MaxAttempts <= 1 || p.Backoff == nil {
		return nil
	}
	delays := make([]time.Duration, 0, p.MaxAttempts-1)
	for attempt := 0; attempt < p.MaxAttempts-1; attempt++ {
		delays = append(delays, p.Backoff(attempt))
	}
	return delays
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do runs op until it succeeds, returns a permanent error, the attempts run
// out, or ctx is done. The last error is returned wrapped with the attempt count.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value
func DoValue[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return zero, err
		}

		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		lastErr = err

		if attempt == attempts-1 || p.Backoff == nil {
			continue
		}

		timer := time.NewTimer(p.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		case <-timer.C:
		}
	}

	return zero, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
