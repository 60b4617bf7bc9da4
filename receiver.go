// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package reqchan

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/creachadair/reqchan/internal/mpsc"
)

// A Receiver receives requests from the senders of a channel. There is
// exactly one Receiver per channel, and it is not safe for concurrent use by
// multiple goroutines.
//
// A Receiver that becomes unreachable is treated as dropped: the channel is
// closed and any requests still buffered are answered with [ErrRecv].
type Receiver[Req, Res any] struct {
	q       *mpsc.Queue[Payload[Req, Res]]
	cleanup runtime.Cleanup
}

func newReceiver[Req, Res any](q *mpsc.Queue[Payload[Req, Res]]) *Receiver[Req, Res] {
	r := &Receiver[Req, Res]{q: q}
	r.cleanup = runtime.AddCleanup(r, dropQueue[Req, Res], q)
	return r
}

func dropQueue[Req, Res any](q *mpsc.Queue[Payload[Req, Res]]) {
	q.Discard(func(p Payload[Req, Res]) { p.Responder.Close() })
}

// Recv blocks until a request is available and returns it. The caller is
// responsible for the Responder of the payload: it must either respond or
// close it.
//
// Once every sender has been closed and all buffered requests have been
// received, Recv reports a [RequestError] of kind [RecvFailed], and will
// continue to do so on every later call. If ctx ends before a request
// arrives, Recv reports a [RequestError] of kind [Canceled].
func (r *Receiver[Req, Res]) Recv(ctx context.Context) (Payload[Req, Res], error) {
	// The receiver must outlive the wait, or its cleanup would close the
	// channel underneath it.
	defer runtime.KeepAlive(r)
	p, err := r.q.Recv(ctx)
	if err != nil {
		return p, recvError[Req](err)
	}
	metrics.reqRecv.Add(1)
	return p, nil
}

// TryRecv returns the next buffered request without blocking. It reports
// false if no request is available. Once the channel can deliver no further
// requests, it reports a [RequestError] of kind [RecvFailed].
func (r *Receiver[Req, Res]) TryRecv() (Payload[Req, Res], bool, error) {
	defer runtime.KeepAlive(r)
	p, ok, err := r.q.TryRecv()
	if err != nil {
		return p, false, recvError[Req](err)
	} else if ok {
		metrics.reqRecv.Add(1)
	}
	return p, ok, nil
}

func recvError[Req any](err error) error {
	if errors.Is(err, mpsc.ErrClosed) {
		return &RequestError[Req]{Kind: RecvFailed}
	}
	return &RequestError[Req]{Kind: Canceled, Err: err}
}

// Close closes the channel to further requests. Subsequent sends fail with
// [ErrClosed], but requests already buffered can still be received. Close is
// idempotent.
func (r *Receiver[Req, Res]) Close() {
	r.cleanup.Stop()
	r.q.Close()
}

// Discard closes the channel and closes the responder of every buffered
// request without answering it, so that the requesters observe [ErrRecv].
// Discard reports the number of requests discarded.
func (r *Receiver[Req, Res]) Discard() int {
	r.cleanup.Stop()
	var n int
	r.q.Discard(func(p Payload[Req, Res]) { p.Responder.Close(); n++ })
	return n
}

// Len reports the number of requests buffered in the channel.
func (r *Receiver[Req, Res]) Len() int { return r.q.Len() }

// Cap reports the capacity of the channel, or 0 if it is unbounded.
func (r *Receiver[Req, Res]) Cap() int { return r.q.Cap() }

// sender is the state shared by the bounded and unbounded sender handles. Its
// lifetime is tied to the handle by a cleanup, so it must not refer back to
// the handle.
type sender[Req, Res any] struct {
	q       *mpsc.Queue[Payload[Req, Res]]
	timeout time.Duration
	closed  atomic.Bool
}

func newSender[Req, Res any](q *mpsc.Queue[Payload[Req, Res]], timeout time.Duration) *sender[Req, Res] {
	return &sender[Req, Res]{q: q, timeout: timeout}
}

// clone registers and returns a new sender on the same queue. It panics if s
// is already closed.
func (s *sender[Req, Res]) clone() *sender[Req, Res] {
	if s.closed.Load() {
		panic("reqchan: clone of a closed sender")
	}
	s.q.AddSender()
	return newSender(s.q, s.timeout)
}

// drop unregisters s from its queue, if it has not already done so.
func (s *sender[Req, Res]) drop() {
	if s.closed.CompareAndSwap(false, true) {
		s.q.DropSender()
	}
}

// send enqueues req with a fresh responder and returns the receiver for its
// response. Any error has concrete type *SendError[Req].
func (s *sender[Req, Res]) send(ctx context.Context, req Req) (*ResponseReceiver[Res], error) {
	if s.closed.Load() {
		metrics.reqFailed.Add(1)
		return nil, &SendError[Req]{Request: req}
	}
	p, slot := newExchange[Req, Res](req)
	if err := s.q.Send(ctx, p); err != nil {
		p.Responder.discard()
		metrics.reqFailed.Add(1)
		if errors.Is(err, mpsc.ErrClosed) {
			err = nil
		}
		return nil, &SendError[Req]{Request: req, Err: err}
	}
	metrics.reqSent.Add(1)
	return newResponseReceiver(slot, s.timeout), nil
}

// sendReceive sends req and waits for its response. Any error has concrete
// type *RequestError[Req].
func (s *sender[Req, Res]) sendReceive(ctx context.Context, req Req) (Res, error) {
	rr, err := s.send(ctx, req)
	if err != nil {
		var zero Res
		return zero, AsRequestError[Req](err)
	}
	rsp, err := rr.Recv(ctx)
	if err != nil {
		return rsp, AsRequestError[Req](err)
	}
	return rsp, nil
}

func (s *sender[Req, Res]) isClosed() bool { return s.q.IsClosed() }
