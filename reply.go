// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package reqchan

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/creachadair/reqchan/internal/oneshot"
)

// A Payload is a request delivered to a [Receiver], paired with the
// [Responder] that answers it.
type Payload[Req, Res any] struct {
	Request   Req
	Responder *Responder[Res]
}

// Respond is shorthand for p.Responder.Respond(res).
func (p Payload[Req, Res]) Respond(res Res) error { return p.Responder.Respond(res) }

// A Responder delivers the response to a single request. At most one call to
// Respond succeeds; later calls report an [AlreadyReplied] error.
//
// Closing a Responder without responding tells the requester that no answer
// will come: its [ResponseReceiver.Recv] reports [ErrRecv]. A Responder that
// becomes unreachable without responding is closed when it is collected.
type Responder[Res any] struct {
	slot    *oneshot.Slot[Res]
	cleanup runtime.Cleanup
}

func newResponder[Res any](slot *oneshot.Slot[Res]) *Responder[Res] {
	r := &Responder[Res]{slot: slot}
	r.cleanup = runtime.AddCleanup(r, dropResponder[Res], slot)
	return r
}

func dropResponder[Res any](slot *oneshot.Slot[Res]) {
	if slot.CloseSender() {
		metrics.rspDropped.Add(1)
	}
}

// Respond delivers res to the requester. If the requester has stopped
// waiting, Respond reports a [ChannelClosed] error; if r was already used it
// reports an [AlreadyReplied] error. In both cases the error carries res.
func (r *Responder[Res]) Respond(res Res) error {
	defer runtime.KeepAlive(r)
	ok, peerClosed := r.slot.Send(res)
	if ok {
		r.cleanup.Stop()
		metrics.rspSent.Add(1)
		return nil
	} else if peerClosed {
		metrics.rspRejected.Add(1)
		return &RespondError[Res]{Kind: ChannelClosed, Response: res}
	}
	return &RespondError[Res]{Kind: AlreadyReplied, Response: res}
}

// IsClosed reports whether a call to Respond can no longer succeed, either
// because the requester is gone or because r was already used. A handler may
// check this to skip expensive work.
func (r *Responder[Res]) IsClosed() bool { return r.slot.SenderClosed() }

// Close discards r without responding. It has no effect if r was already
// used. Close is idempotent.
func (r *Responder[Res]) Close() {
	r.cleanup.Stop()
	dropResponder(r.slot)
}

// discard releases r for a request that was never delivered.
func (r *Responder[Res]) discard() {
	r.cleanup.Stop()
	r.slot.CloseSender()
}

// A ResponseReceiver waits for the response to a single request.
//
// Closing a ResponseReceiver abandons interest in the response; a later
// Respond by the peer reports [ChannelClosed]. A ResponseReceiver that becomes
// unreachable before receiving is closed when it is collected.
type ResponseReceiver[Res any] struct {
	*reply[Res]
	timeout time.Duration
	cleanup runtime.Cleanup
}

// reply is the state of a ResponseReceiver that is shared with its cleanup.
type reply[Res any] struct {
	slot     *oneshot.Slot[Res]
	resolved atomic.Bool
}

// resolve updates the pending gauge the first time it is called.
func (r *reply[Res]) resolve() {
	if r.resolved.CompareAndSwap(false, true) {
		metrics.reqPending.Add(-1)
	}
}

func dropReply[Res any](r *reply[Res]) {
	r.slot.CloseReceiver()
	r.resolve()
}

func newResponseReceiver[Res any](slot *oneshot.Slot[Res], timeout time.Duration) *ResponseReceiver[Res] {
	metrics.reqPending.Add(1)
	rr := &ResponseReceiver[Res]{reply: &reply[Res]{slot: slot}, timeout: timeout}
	rr.cleanup = runtime.AddCleanup(rr, dropReply[Res], rr.reply)
	return rr
}

// Timeout reports the response deadline for r, or 0 if it has none.
func (r *ResponseReceiver[Res]) Timeout() time.Duration { return r.timeout }

// Recv blocks until the response is available and returns it.
//
// If the responder was closed without responding, or the response was
// already received by a previous call, Recv reports [ErrRecv]. If r has a
// deadline and it elapses first, Recv reports [ErrTimeout] and abandons the
// response. If ctx ends first, Recv abandons the response and reports the
// context error.
func (r *ResponseReceiver[Res]) Recv(ctx context.Context) (Res, error) {
	v, st := r.slot.Recv(ctx, r.timeout)
	r.cleanup.Stop()
	r.resolve()

	var zero Res
	switch st {
	case oneshot.OK:
		return v, nil
	case oneshot.Expired:
		metrics.rspTimeout.Add(1)
		return zero, ErrTimeout
	case oneshot.Done:
		return zero, ctx.Err()
	default:
		return zero, ErrRecv
	}
}

// Close abandons interest in the response. Close is idempotent.
func (r *ResponseReceiver[Res]) Close() {
	r.cleanup.Stop()
	dropReply(r.reply)
}

// newExchange constructs the payload for req and the slot its response will
// be delivered through.
func newExchange[Req, Res any](req Req) (Payload[Req, Res], *oneshot.Slot[Res]) {
	slot := oneshot.New[Res]()
	return Payload[Req, Res]{Request: req, Responder: newResponder(slot)}, slot
}
