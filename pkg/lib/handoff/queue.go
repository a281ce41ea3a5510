// Package handoff bridges a blocking worker goroutine to a consumer loop.
//
// A Queue is an unbounded FIFO with exactly one producer and one consumer.
// The producer appends to the tail of a singly linked list and the consumer
// advances a head pointer; the two sides never write the same field, so the
// only synchronization is the atomic next pointer and a one-slot notifier.
package handoff

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

var (
	// ErrClosed is returned by Pop once the queue is closed and drained.
	ErrClosed = errors.New("handoff: queue closed")
	// ErrTimeout is returned by Pop when nothing arrived within the timeout.
	ErrTimeout = errors.New("handoff: receive timed out")
)

// node represents an element in the singly linked list.
// It carries a payload and an atomic pointer to the next node.
type node[T any] struct {
	data T
	next atomic.Pointer[node[T]]
}

// Queue is a single-producer/single-consumer unbounded FIFO.
//
// Push must only be called from the producer goroutine and Pop only from the
// consumer goroutine. Close may be called from either side.
type Queue[T any] struct {
	head *node[T] // last consumed node (sentinel until the first Pop); consumer-owned
	tail *node[T] // last appended node; producer-owned

	// notify has a buffer of 1 so a wakeup is never lost and stale
	// wakeups collapse into one.
	notify  chan struct{}
	closed  atomic.Bool
	pending atomic.Int64
}

// New creates a new, empty Queue.
func New[T any]() *Queue[T] {
	sentinel := &node[T]{}
	return &Queue[T]{
		head:   sentinel,
		tail:   sentinel,
		notify: make(chan struct{}, 1),
	}
}

// Push appends v to the queue. It returns false if the queue is closed.
func (q *Queue[T]) Push(v T) bool {
	if q.closed.Load() {
		return false
	}

	n := &node[T]{data: v}
	q.tail.next.Store(n)
	q.tail = n
	q.pending.Add(1)
	q.wake()

	return true
}

// Close marks the end of the stream. Items pushed before Close remain
// available to Pop. Closing twice is a no-op.
func (q *Queue[T]) Close() {
	if q.closed.CompareAndSwap(false, true) {
		q.wake()
	}
}

// wake signals the consumer without blocking; a pending wakeup absorbs it.
func (q *Queue[T]) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	return q.closed.Load()
}

// Len returns the number of items pushed but not yet popped.
func (q *Queue[T]) Len() int {
	return int(q.pending.Load())
}

// Pop removes the oldest item. It waits up to timeout for one to arrive
// (timeout <= 0 waits until ctx is done). It returns ErrClosed once the queue
// is closed and empty, ErrTimeout when the wait expires, or ctx.Err().
func (q *Queue[T]) Pop(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		if n := q.head.next.Load(); n != nil {
			q.head = n
			v := n.data
			n.data = zero
			q.pending.Add(-1)
			return v, nil
		}

		if q.closed.Load() {
			// A push that raced with Close may have landed after the first load.
			if q.head.next.Load() != nil {
				continue
			}
			return zero, ErrClosed
		}

		select {
		case <-q.notify:
		case <-expired:
			return zero, ErrTimeout
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}
