// Package fifo provides an unbounded first-in first-out queue shared by
// producers and consumers running in different goroutines.
package fifo

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO. Put never blocks; Get blocks until a value
// is available or the context is done.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	ready chan struct{}
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{ready: make(chan struct{}, 1)}
}

// Put appends v to the tail of the queue.
func (q *Queue[T]) Put(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.signal()
}

// Get removes and returns the head of the queue.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	for {
		if v, ok := q.TryGet(); ok {
			return v, nil
		}
		select {
		case <-q.ready:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// TryGet returns the head of the queue without waiting.
func (q *Queue[T]) TryGet() (T, bool) {
	var zero T
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	remaining := len(q.items)
	q.mu.Unlock()

	// Wake the next waiting consumer.
	if remaining > 0 {
		q.signal()
	}
	return v, true
}

// Len reports the number of queued values.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
