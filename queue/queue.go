// Package queue provides a bounded FIFO queue that links two pipeline
// stages. A queue has exactly one producer and one consumer.
//
// Push blocks while the queue is full, which is how a slow consumer
// throttles its producer. Pop waits at most for the provided timeout so
// consumers can poll and still observe stop requests.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCancelled is returned when a queue is closed before or while a
// blocking operation waits on it.
var ErrCancelled = errors.New("queue cancelled")

// Queue is a bounded blocking FIFO of items.
type Queue[T any] struct {
	items chan T
	done  chan struct{}
	once  sync.Once
}

// New returns an empty queue. Capacity is at least one.
func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		items: make(chan T, capacity),
		done:  make(chan struct{}),
	}
}

// Push appends the item. It blocks until capacity is available. If the
// queue gets closed, ErrCancelled is returned and the item is not queued.
func (q *Queue[T]) Push(v T) error {
	select {
	case <-q.done:
		return ErrCancelled
	default:
	}
	select {
	case q.items <- v:
		return nil
	case <-q.done:
		return ErrCancelled
	}
}

// TryPush appends the item only if capacity is available right now.
func (q *Queue[T]) TryPush(v T) (bool, error) {
	select {
	case <-q.done:
		return false, ErrCancelled
	default:
	}
	select {
	case q.items <- v:
		return true, nil
	default:
		return false, nil
	}
}

// Pop returns the next item. If no item arrives within timeout, false is
// returned. A closed queue still returns its remaining items.
func (q *Queue[T]) Pop(timeout time.Duration) (T, bool) {
	var zero T
	select {
	case v := <-q.items:
		return v, true
	default:
	}
	if timeout <= 0 {
		return zero, false
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case v := <-q.items:
		return v, true
	case <-t.C:
	case <-q.done:
		select {
		case v := <-q.items:
			return v, true
		default:
		}
	}
	return zero, false
}

// PopContext blocks until an item is available, the context is done or
// the queue is closed and empty.
func (q *Queue[T]) PopContext(ctx context.Context) (T, error) {
	var zero T
	select {
	case v := <-q.items:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-q.done:
		select {
		case v := <-q.items:
			return v, nil
		default:
			return zero, ErrCancelled
		}
	}
}

// DrainAll removes every item queued at the moment of the call and
// returns them in FIFO order.
func (q *Queue[T]) DrainAll() []T {
	n := len(q.items)
	if n == 0 {
		return nil
	}
	drained := make([]T, 0, n)
	for i := 0; i < n; i++ {
		select {
		case v := <-q.items:
			drained = append(drained, v)
		default:
			return drained
		}
	}
	return drained
}

// Close abandons the queue. Blocked producers are released with
// ErrCancelled. It's safe to call Close multiple times.
func (q *Queue[T]) Close() {
	q.once.Do(func() {
		close(q.done)
	})
}

// Closed reports whether Close was called.
func (q *Queue[T]) Closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Cap returns the capacity of the queue.
func (q *Queue[T]) Cap() int {
	return cap(q.items)
}
