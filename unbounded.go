// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package reqchan

import (
	"context"
	"runtime"
	"time"

	"github.com/creachadair/reqchan/internal/mpsc"
)

// NewUnbounded creates an unbounded request-response channel. Sends on an
// unbounded channel never block; requests are buffered until the receiver
// takes them.
func NewUnbounded[Req, Res any]() (*UnboundedSender[Req, Res], *Receiver[Req, Res]) {
	return newUnbounded[Req, Res](0)
}

// NewUnboundedWithTimeout creates an unbounded request-response channel as
// [NewUnbounded], in which every response is subject to the given deadline.
//
// NewUnboundedWithTimeout panics if timeout <= 0.
func NewUnboundedWithTimeout[Req, Res any](timeout time.Duration) (*UnboundedSender[Req, Res], *Receiver[Req, Res]) {
	if timeout <= 0 {
		panic("reqchan: timeout must be positive")
	}
	return newUnbounded[Req, Res](timeout)
}

func newUnbounded[Req, Res any](timeout time.Duration) (*UnboundedSender[Req, Res], *Receiver[Req, Res]) {
	q := mpsc.New[Payload[Req, Res]](0)
	return newUnboundedSender(newSender(q, timeout)), newReceiver(q)
}

// An UnboundedSender sends requests to the [Receiver] of an unbounded
// channel. It is safe for concurrent use by multiple goroutines, and may be
// cloned to obtain additional handles on the same channel.
type UnboundedSender[Req, Res any] struct {
	s       *sender[Req, Res]
	cleanup runtime.Cleanup
}

func newUnboundedSender[Req, Res any](s *sender[Req, Res]) *UnboundedSender[Req, Res] {
	h := &UnboundedSender[Req, Res]{s: s}
	h.cleanup = runtime.AddCleanup(h, (*sender[Req, Res]).drop, s)
	return h
}

// Send enqueues req and returns a [ResponseReceiver] for its response. Send
// does not block. If the receiver has closed the channel, Send reports a
// *[SendError] that returns req to the caller.
func (h *UnboundedSender[Req, Res]) Send(req Req) (*ResponseReceiver[Res], error) {
	defer runtime.KeepAlive(h)
	return h.s.send(context.Background(), req)
}

// SendReceive sends req and blocks until its response arrives or ctx ends.
// Any error it reports has concrete type *[RequestError].
func (h *UnboundedSender[Req, Res]) SendReceive(ctx context.Context, req Req) (Res, error) {
	defer runtime.KeepAlive(h)
	return h.s.sendReceive(ctx, req)
}

// IsClosed reports whether the receiver has closed the channel.
func (h *UnboundedSender[Req, Res]) IsClosed() bool { return h.s.isClosed() }

// Timeout reports the response deadline applied to requests sent by h, or 0
// if there is none.
func (h *UnboundedSender[Req, Res]) Timeout() time.Duration { return h.s.timeout }

// Clone returns a new handle on the same channel as h. Each handle must be
// closed separately. Clone panics if h is closed.
func (h *UnboundedSender[Req, Res]) Clone() *UnboundedSender[Req, Res] {
	defer runtime.KeepAlive(h)
	return newUnboundedSender(h.s.clone())
}

// Close releases h. Once every handle on a channel is closed, the receiver
// reports the end of the channel after draining buffered requests. Close is
// idempotent.
func (h *UnboundedSender[Req, Res]) Close() {
	h.cleanup.Stop()
	h.s.drop()
}
