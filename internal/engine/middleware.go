package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy configures retry behavior.
type RetryPolicy struct {
	MaxAttempts int                                        // total attempts including initial try
	Delay       time.Duration                              // fixed delay between retries (used if DelayFunc nil)
	ShouldRetry func(error) bool                           // predicate; if nil, all errors retried
	DelayFunc   func(attempt int, err error) time.Duration // dynamic backoff; attempt is 1-based
}

type retryConsumer[T any] struct {
	inner  Consumer[T]
	policy RetryPolicy
}

// WithRetry wraps a Consumer with retry capability. The engine sees a single
// invocation per task however many attempts it took. ErrRetire and
// ErrInterrupted are never retried.
func WithRetry[T any](c Consumer[T], policy RetryPolicy) Consumer[T] {
	if policy.MaxAttempts <= 1 {
		return c // no retries needed
	}
	return &retryConsumer[T]{inner: c, policy: policy}
}

func (r *retryConsumer[T]) Consume(ctx context.Context, task T) error {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = r.inner.Consume(ctx, task)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrRetire) || errors.Is(lastErr, ErrInterrupted) {
			return lastErr
		}

		// Don't delay after the last attempt.
		if attempt < r.policy.MaxAttempts {
			if r.policy.ShouldRetry != nil && !r.policy.ShouldRetry(lastErr) {
				return lastErr
			}
			delay := r.policy.Delay
			if r.policy.DelayFunc != nil {
				delay = r.policy.DelayFunc(attempt, lastErr)
			}
			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				}
			}
		}
	}
	return lastErr
}

type loggingConsumer[T any] struct {
	inner  Consumer[T]
	logger *zap.Logger
}

// WithFailureLogging wraps a Consumer to log every failed invocation at warn
// level.
func WithFailureLogging[T any](c Consumer[T], logger *zap.Logger) Consumer[T] {
	if logger == nil {
		return c
	}
	return &loggingConsumer[T]{inner: c, logger: logger}
}

func (l *loggingConsumer[T]) Consume(ctx context.Context, task T) error {
	err := l.inner.Consume(ctx, task)
	if err != nil {
		l.logger.Warn("task failed", zap.Error(err))
	}
	return err
}
