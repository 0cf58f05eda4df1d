// Package retry runs an operation on a fixed interval until it succeeds, the
// attempt limit is reached or the overall time budget runs out.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultInterval = 50 * time.Millisecond
	DefaultTimeout  = 60 * time.Second
)

// Policy configures Do. Zero Interval and Timeout select the defaults; a
// MaxTries below one is treated as a single attempt.
type Policy struct {
	Interval time.Duration
	Timeout  time.Duration
	MaxTries int
	// OnRetry is called before each wait with the failed attempt number.
	OnRetry func(attempt int, err error, wait time.Duration)
}

func (p Policy) normalize() Policy {
	if p.Interval <= 0 {
		p.Interval = DefaultInterval
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	if p.MaxTries < 1 {
		p.MaxTries = 1
	}
	return p
}

// Error is returned when every permitted attempt failed. Last is the error of
// the final attempt.
type Error struct {
	Attempts int
	Last     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("retry: %d attempt(s) failed: %v", e.Attempts, e.Last)
}

func (e *Error) Unwrap() error { return e.Last }

// Cause returns the error of the final attempt when err came from Do, and
// err itself otherwise.
func Cause(err error) error {
	var re *Error
	if errors.As(err, &re) && re.Last != nil {
		return re.Last
	}
	return err
}

// Do calls fn until it returns a nil error. Every error is retried.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalize()

	var (
		attempts int
		lastErr  error
	)
	op := func() (T, error) {
		attempts++
		res, err := fn(ctx)
		if err != nil {
			lastErr = err
		}
		return res, err
	}

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Interval)),
		backoff.WithMaxTries(uint(p.MaxTries)),
		backoff.WithMaxElapsedTime(p.Timeout),
		backoff.WithNotify(func(err error, wait time.Duration) {
			if p.OnRetry != nil {
				p.OnRetry(attempts, err, wait)
			}
		}),
	)
	if err == nil {
		return res, nil
	}
	if lastErr == nil {
		lastErr = err
	}
	return res, &Error{Attempts: attempts, Last: lastErr}
}
