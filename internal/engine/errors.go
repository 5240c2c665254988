package engine

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

var (
	// ErrInvalidConfig is matched by every ValidationError.
	ErrInvalidConfig = errors.New("invalid run configuration")

	// ErrInterrupted is returned by Run when the caller's context is cancelled
	// before the run completes. Producers and consumers may return it (wrapped
	// or not) to interrupt the whole run.
	ErrInterrupted = errors.New("load run interrupted")

	// ErrRetire may be returned by a producer or consumer to take its worker
	// goroutine out of the run. The remaining workers carry on.
	ErrRetire = errors.New("worker retired")

	// ErrNoConsumers is returned when every consumer retired while tasks were
	// still pending.
	ErrNoConsumers = errors.New("all consumers retired with tasks still pending")
)

// ValidationError lists every problem found in a run configuration.
type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (e ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// PanicError wraps a value recovered from a panicking producer or consumer.
// It matches ErrRetire: a worker whose callback panicked is retired.
type PanicError struct {
	Value any
	Stack []byte
}

func newPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("callback panicked: %v", e.Value)
}

func (e *PanicError) Is(target error) bool {
	return target == ErrRetire
}

func interrupted(cause error) error {
	switch {
	case cause == nil:
		return ErrInterrupted
	case errors.Is(cause, ErrInterrupted):
		return cause
	default:
		return fmt.Errorf("%w: %w", ErrInterrupted, cause)
	}
}
