// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

// Package oneshot implements a single-value, single-use transfer between one
// sender and one receiver. Either side can abandon the transfer, and the other
// side observes that without polling.
package oneshot

import (
	"context"
	"sync/atomic"
	"time"
)

// Slot states. Every state other than pending is terminal for the sender.
const (
	pending  int32 = iota
	writing        // the sender has claimed the slot and is storing a value
	sent           // a value is available to the receiver
	txClosed       // the sender gave up without sending
	rxClosed       // the receiver gave up before a value arrived
	taken          // the receiver has consumed the value
)

// Status reports why a Recv did not return a value.
type Status int

const (
	OK       Status = iota // a value was delivered
	Dropped                // the sender closed without sending
	Consumed               // the value was already received
	Done                   // the context ended first
	Expired                // the timer fired first
)

// A Slot is the shared state of a reply pair.
type Slot[T any] struct {
	state atomic.Int32
	value T
	ready chan struct{} // closed once state leaves pending for the sender
}

// New constructs an empty pending slot.
func New[T any]() *Slot[T] {
	return &Slot[T]{ready: make(chan struct{})}
}

// Send stores v in s. It reports true if the value was stored. If the slot
// was not pending, Send reports false and the state that prevented delivery:
// rxClosed means the receiver is gone; anything else means a value was already
// sent or the sender already closed.
func (s *Slot[T]) Send(v T) (ok, peerClosed bool) {
	if !s.state.CompareAndSwap(pending, writing) {
		return false, s.state.Load() == rxClosed
	}
	s.value = v
	s.state.Store(sent)
	close(s.ready)
	return true, false
}

// CloseSender abandons the slot from the sending side, and reports whether
// it did so. It has no effect if a value was already sent or either side
// already closed.
func (s *Slot[T]) CloseSender() bool {
	if s.state.CompareAndSwap(pending, txClosed) {
		close(s.ready)
		return true
	}
	return false
}

// CloseReceiver abandons the slot from the receiving side, and reports
// whether a sender could still have delivered a value. Any value sent but not
// yet received is discarded.
func (s *Slot[T]) CloseReceiver() bool {
	for {
		switch s.state.Load() {
		case pending:
			if s.state.CompareAndSwap(pending, rxClosed) {
				return true
			}
		case sent:
			if s.state.CompareAndSwap(sent, taken) {
				var zero T
				s.value = zero
				return false
			}
		case writing:
			<-s.ready // the sender is about to publish; wait it out
		default:
			return false
		}
	}
}

// SenderClosed reports whether a Send on s can no longer succeed.
func (s *Slot[T]) SenderClosed() bool { return s.state.Load() != pending }

// ReceiverClosed reports whether the receiving side has abandoned s.
func (s *Slot[T]) ReceiverClosed() bool { return s.state.Load() == rxClosed }

// Recv waits for a value on s. If timeout > 0, it races the value against a
// timer of that duration. On any outcome other than OK the slot is closed for
// the receiver, so a later Send observes the peer as gone.
func (s *Slot[T]) Recv(ctx context.Context, timeout time.Duration) (T, Status) {
	var zero T
	switch s.state.Load() {
	case taken, rxClosed:
		return zero, Consumed
	}
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case <-s.ready:
		return s.take()
	case <-timer:
		return s.abandon(Expired)
	case <-ctx.Done():
		return s.abandon(Done)
	}
}

func (s *Slot[T]) take() (T, Status) {
	var zero T
	if s.state.CompareAndSwap(sent, taken) {
		v := s.value
		s.value = zero
		return v, OK
	}
	if s.state.Load() == txClosed {
		return zero, Dropped
	}
	return zero, Consumed
}

// abandon closes the receiving side after a timer or context fired. If a value
// won the race in the meantime, it is delivered anyway.
func (s *Slot[T]) abandon(why Status) (T, Status) {
	if s.state.CompareAndSwap(pending, rxClosed) {
		var zero T
		return zero, why
	}
	<-s.ready
	return s.take()
}
