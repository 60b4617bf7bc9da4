// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package reqchan

import (
	"context"
	"runtime"
	"time"

	"github.com/creachadair/reqchan/internal/mpsc"
)

// New creates a bounded request-response channel that buffers at most
// capacity requests. When the buffer is full, [Sender.Send] blocks until the
// receiver takes a request, which applies backpressure to the senders.
//
// New panics if capacity < 1.
func New[Req, Res any](capacity int) (*Sender[Req, Res], *Receiver[Req, Res]) {
	if capacity < 1 {
		panic("reqchan: capacity must be positive")
	}
	return newBounded[Req, Res](capacity, 0)
}

// NewWithTimeout creates a bounded request-response channel as [New], in
// which every response is subject to the given deadline: a requester that
// does not receive a response within timeout of calling Recv gets
// [ErrTimeout].
//
// NewWithTimeout panics if capacity < 1 or timeout <= 0.
func NewWithTimeout[Req, Res any](capacity int, timeout time.Duration) (*Sender[Req, Res], *Receiver[Req, Res]) {
	if capacity < 1 {
		panic("reqchan: capacity must be positive")
	} else if timeout <= 0 {
		panic("reqchan: timeout must be positive")
	}
	return newBounded[Req, Res](capacity, timeout)
}

func newBounded[Req, Res any](capacity int, timeout time.Duration) (*Sender[Req, Res], *Receiver[Req, Res]) {
	q := mpsc.New[Payload[Req, Res]](capacity)
	return newBoundedSender(newSender(q, timeout)), newReceiver(q)
}

// A Sender sends requests to the [Receiver] of a bounded channel. A Sender is
// safe for concurrent use by multiple goroutines, and may be cloned to obtain
// additional handles on the same channel.
//
// The receiver observes the end of the channel once every Sender handle has
// been closed. A handle that becomes unreachable without being closed is
// closed when it is collected.
type Sender[Req, Res any] struct {
	s       *sender[Req, Res]
	cleanup runtime.Cleanup
}

func newBoundedSender[Req, Res any](s *sender[Req, Res]) *Sender[Req, Res] {
	h := &Sender[Req, Res]{s: s}
	h.cleanup = runtime.AddCleanup(h, (*sender[Req, Res]).drop, s)
	return h
}

// Send enqueues req and returns a [ResponseReceiver] for its response. It
// does not wait for the response.
//
// If the channel is full, Send blocks until there is room, the receiver
// closes, or ctx ends. If req cannot be sent, Send reports a *[SendError]
// that returns req to the caller.
func (h *Sender[Req, Res]) Send(ctx context.Context, req Req) (*ResponseReceiver[Res], error) {
	defer runtime.KeepAlive(h)
	return h.s.send(ctx, req)
}

// SendReceive sends req and blocks until its response arrives. It combines
// [Sender.Send] and [ResponseReceiver.Recv]; any error it reports has
// concrete type *[RequestError].
func (h *Sender[Req, Res]) SendReceive(ctx context.Context, req Req) (Res, error) {
	defer runtime.KeepAlive(h)
	return h.s.sendReceive(ctx, req)
}

// IsClosed reports whether the receiver has closed the channel, so that no
// further request can be sent.
func (h *Sender[Req, Res]) IsClosed() bool { return h.s.isClosed() }

// Timeout reports the response deadline applied to requests sent by h, or 0
// if there is none.
func (h *Sender[Req, Res]) Timeout() time.Duration { return h.s.timeout }

// Clone returns a new handle on the same channel as h, with the same response
// deadline. Each handle must be closed separately. Clone panics if h is
// closed.
func (h *Sender[Req, Res]) Clone() *Sender[Req, Res] {
	defer runtime.KeepAlive(h)
	return newBoundedSender(h.s.clone())
}

// Close releases h. Once every handle on a channel is closed, the receiver
// reports the end of the channel after draining buffered requests. Sends on a
// closed handle fail with [ErrClosed]. Close is idempotent.
func (h *Sender[Req, Res]) Close() {
	h.cleanup.Stop()
	h.s.drop()
}
