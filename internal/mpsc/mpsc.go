// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

// Package mpsc implements a many-producer, single-consumer FIFO queue with
// optional bounded capacity.
//
// Producers are counted: the queue starts with one registered producer, and
// the consumer sees end-of-stream once every producer has been dropped and the
// buffer is empty. The consumer may close the queue, after which sends fail
// but buffered values remain available.
package mpsc

import (
	"context"
	"errors"
	"sync"

	"github.com/creachadair/mds/queue"
)

// ErrClosed is reported by Send when the consumer has closed the queue, and
// by Recv when the queue is empty and can never receive another value.
var ErrClosed = errors.New("queue closed")

// A Queue is a many-producer, single-consumer FIFO queue.
type Queue[T any] struct {
	slots chan struct{} // one token per buffered value; nil if unbounded
	done  chan struct{} // closed when the consumer closes the queue
	wake  chan struct{} // buffered signal to the consumer

	μ       sync.Mutex
	items   *queue.Queue[*cell[T]]
	senders int  // live producer handles
	closed  bool // consumer has closed the queue
}

// A cell holds one buffered value. Cells are cleared when popped, so the
// buffer does not retain values the consumer has taken.
type cell[T any] struct{ v T }

// New constructs a queue with one registered producer. If capacity > 0, at
// most that many values are buffered and Send blocks while the buffer is full.
// If capacity == 0 the queue is unbounded. New panics if capacity < 0.
func New[T any](capacity int) *Queue[T] {
	if capacity < 0 {
		panic("mpsc: negative capacity")
	}
	q := &Queue[T]{
		done:    make(chan struct{}),
		wake:    make(chan struct{}, 1),
		items:   queue.New[*cell[T]](),
		senders: 1,
	}
	if capacity > 0 {
		q.slots = make(chan struct{}, capacity)
	}
	return q
}

// Cap reports the capacity of q, or 0 if q is unbounded.
func (q *Queue[T]) Cap() int { return cap(q.slots) }

// Len reports the number of values currently buffered in q.
func (q *Queue[T]) Len() int {
	q.μ.Lock()
	defer q.μ.Unlock()
	return q.items.Len()
}

// AddSender registers an additional producer.
func (q *Queue[T]) AddSender() {
	q.μ.Lock()
	defer q.μ.Unlock()
	q.senders++
}

// DropSender unregisters a producer. When the last producer is dropped, a
// consumer blocked in Recv is woken.
func (q *Queue[T]) DropSender() {
	q.μ.Lock()
	q.senders--
	last := q.senders == 0
	q.μ.Unlock()
	if last {
		q.signal()
	}
}

// Send adds v to the end of the queue. If q is bounded and full, Send blocks
// until space is available, the queue is closed, or ctx ends. It reports
// ErrClosed if the consumer closed the queue or no producer remains
// registered, or the context error.
func (q *Queue[T]) Send(ctx context.Context, v T) error {
	if q.slots != nil {
		select {
		case <-q.done:
			return ErrClosed
		default:
		}
		select {
		case q.slots <- struct{}{}:
		case <-q.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	q.μ.Lock()
	if q.closed || q.senders == 0 {
		q.μ.Unlock()
		q.release()
		return ErrClosed
	}
	q.items.Add(&cell[T]{v: v})
	q.μ.Unlock()
	q.signal()
	return nil
}

// TryRecv removes and returns the value at the front of the queue without
// blocking. If a value was available, it reports (v, true, nil). If the queue
// is empty but may still receive values, it reports (zero, false, nil). If the
// queue is empty and can receive no further values, it reports ErrClosed.
func (q *Queue[T]) TryRecv() (T, bool, error) {
	var zero T
	q.μ.Lock()
	c, ok := q.items.Pop()
	end := !ok && (q.closed || q.senders == 0)
	q.μ.Unlock()

	if ok {
		v := c.v
		c.v = zero
		q.release()
		return v, true, nil
	} else if end {
		return zero, false, ErrClosed
	}
	return zero, false, nil
}

// Recv removes and returns the value at the front of the queue, blocking until
// one is available. It reports ErrClosed if the queue is empty and can receive
// no further values, or the context error if ctx ends first.
func (q *Queue[T]) Recv(ctx context.Context) (T, error) {
	for {
		v, ok, err := q.TryRecv()
		if ok || err != nil {
			return v, err
		}
		select {
		case <-q.wake:
			// retry
		case <-ctx.Done():
			return v, ctx.Err()
		}
	}
}

// Close closes q to further sends. Values already buffered remain available
// to Recv, and a consumer blocked in Recv is woken. Close is idempotent.
func (q *Queue[T]) Close() {
	q.μ.Lock()
	first := !q.closed
	if first {
		q.closed = true
		close(q.done)
	}
	q.μ.Unlock()
	if first {
		q.signal()
	}
}

// Discard closes q and removes all buffered values, passing each to f in
// queue order.
func (q *Queue[T]) Discard(f func(T)) {
	q.Close()
	for {
		v, ok, _ := q.TryRecv()
		if !ok {
			return
		}
		f(v)
	}
}

// IsClosed reports whether the consumer has closed q.
func (q *Queue[T]) IsClosed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed when the consumer closes q.
func (q *Queue[T]) Done() <-chan struct{} { return q.done }

// release returns a capacity token, if q is bounded.
func (q *Queue[T]) release() {
	if q.slots != nil {
		<-q.slots
	}
}

// signal wakes the consumer, if it is waiting.
func (q *Queue[T]) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
