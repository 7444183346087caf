// Package retry runs a unit of work with exponential backoff between failed attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRetryBudgetExhausted matches every *RetryBudgetExhaustedError via errors.Is.
var ErrRetryBudgetExhausted = errors.New("retry budget exhausted")

// RetryBudgetExhaustedError is returned by Do once work has failed maxRetries+1 times.
type RetryBudgetExhaustedError struct {
	MaxRetries int
	Err        error
}

func (e *RetryBudgetExhaustedError) Error() string {
	return fmt.Sprintf("retry budget exhausted after %d retries: %v", e.MaxRetries, e.Err)
}

func (e *RetryBudgetExhaustedError) Unwrap() error {
	return e.Err
}

func (e *RetryBudgetExhaustedError) Is(target error) bool {
	return target == ErrRetryBudgetExhausted
}

// Attempt describes a failed invocation that is about to be retried.
type Attempt struct {
	Retry      int
	MaxRetries int
	Delay      time.Duration
	Err        error
}

type options struct {
	unit    time.Duration
	onRetry func(Attempt)
	sleep   func(ctx context.Context, d time.Duration) error
}

type Option func(*options)

// WithUnit sets the base delay. The wait before retry i is 2^i units.
func WithUnit(unit time.Duration) Option {
	return func(o *options) {
		if unit > 0 {
			o.unit = unit
		}
	}
}

// WithOnRetry registers a hook called before each wait.
func WithOnRetry(fn func(Attempt)) Option {
	return func(o *options) {
		o.onRetry = fn
	}
}

// WithSleep replaces the wait implementation.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) {
		if fn != nil {
			o.sleep = fn
		}
	}
}

// Delay returns the wait before the given 0-indexed retry.
func Delay(retry int, unit time.Duration) time.Duration {
	return unit << uint(retry)
}

// Do invokes work until it succeeds or has failed maxRetries+1 times.
func Do[T any](ctx context.Context, maxRetries int, work func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	o := options{
		unit:  time.Millisecond,
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	var zero T
	for retry := 0; ; retry++ {
		result, err := work(ctx)
		if err == nil {
			return result, nil
		}

		if retry >= maxRetries {
			return zero, &RetryBudgetExhaustedError{MaxRetries: maxRetries, Err: err}
		}

		delay := Delay(retry, o.unit)
		if o.onRetry != nil {
			o.onRetry(Attempt{Retry: retry, MaxRetries: maxRetries, Delay: delay, Err: err})
		}

		if err := o.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
