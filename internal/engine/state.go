package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// StopReason names the condition that ended a run.
type StopReason string

const (
	StopReasonTime        StopReason = "time_limit"
	StopReasonRequests    StopReason = "request_limit"
	StopReasonDrained     StopReason = "drained"
	StopReasonInterrupted StopReason = "interrupted"
	StopReasonNoConsumers StopReason = "no_consumers"
)

// runState is the only cross-goroutine mutable state of a run. It is created
// by Run and never outlives it.
type runState struct {
	start time.Time

	claimed         atomic.Int64 // tasks produced and enqueued
	consumed        atomic.Int64 // consumer invocations, failed or not
	succeeded       atomic.Int64
	produceFailures atomic.Int64

	// ctx is cancelled exactly once, when the run is stopped or interrupted.
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	reason   StopReason
}

func newRunState(parent context.Context) *runState {
	ctx, cancel := context.WithCancel(parent)
	return &runState{start: time.Now(), ctx: ctx, cancel: cancel}
}

// stop sets the stopped flag. It reports whether this call was the one that
// set it.
func (s *runState) stop(reason StopReason) bool {
	first := false
	s.stopOnce.Do(func() {
		s.reason = reason
		first = true
		s.cancel()
	})
	return first
}

func (s *runState) stopped() bool {
	return s.ctx.Err() != nil
}

// stopReason must only be read after every worker has been joined. A run
// that ended without any limit firing is reported as drained.
func (s *runState) stopReason() StopReason {
	s.stop(StopReasonDrained)
	return s.reason
}

func (s *runState) elapsed() time.Duration {
	return time.Since(s.start)
}

func (s *runState) commit() {
	if s.claimed.Add(1) <= 0 {
		panic("engine: claimed counter overflow")
	}
}

// finish records one consumer invocation and returns the count the stop
// condition should see under the given policy.
func (s *runState) finish(failed bool, policy FailurePolicy) int64 {
	consumed := s.consumed.Add(1)
	if consumed <= 0 {
		panic("engine: consumed counter overflow")
	}
	if failed {
		if policy == CountSuccesses {
			return s.succeeded.Load()
		}
		return consumed
	}
	succeeded := s.succeeded.Add(1)
	if policy == CountSuccesses {
		return succeeded
	}
	return consumed
}
