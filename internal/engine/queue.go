package engine

import (
	"context"
	"sync"
	"sync/atomic"
)

// workQueue is the bounded handoff between producers and consumers. It is
// closed once every producer has exited; a closed and empty queue is the drain
// signal that lets consumers leave their loop.
type workQueue[T any] struct {
	ch        chan T
	closed    atomic.Bool
	closeOnce sync.Once
}

func newWorkQueue[T any](capacity int) *workQueue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &workQueue[T]{ch: make(chan T, capacity)}
}

// Put blocks while the queue is full. It refuses the task once ctx is done,
// even when there is room.
func (q *workQueue[T]) Put(ctx context.Context, task T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.ch <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Take blocks while the queue is empty and open. ok is false once the queue
// is closed and drained, or ctx is done.
func (q *workQueue[T]) Take(ctx context.Context) (task T, ok bool) {
	select {
	case task, ok = <-q.ch:
		return task, ok
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}

// Close must only be called after the last Put returned.
func (q *workQueue[T]) Close() {
	q.closeOnce.Do(func() {
		q.closed.Store(true)
		close(q.ch)
	})
}

func (q *workQueue[T]) drained() bool {
	return q.closed.Load() && len(q.ch) == 0
}

func (q *workQueue[T]) Len() int {
	return len(q.ch)
}
