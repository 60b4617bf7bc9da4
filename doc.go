// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

// Package reqchan implements request-response channels for communicating
// between goroutines.
//
// A request-response channel carries requests from any number of senders to
// a single receiver, and carries each response back to the goroutine that
// sent the corresponding request. Responses are correlated per request, so
// concurrent callers never see each other's answers, and the receiver may
// answer requests in any order.
//
// # Channels
//
// To create a bounded channel that buffers up to 16 requests:
//
//	tx, rx := reqchan.New[int, int](16)
//
// When a bounded channel is full, sends block until the receiver takes a
// request. To create a channel whose sends never block, use [NewUnbounded].
// The [NewWithTimeout] and [NewUnboundedWithTimeout] constructors attach a
// deadline to every response; a requester that waits longer than the deadline
// gets [ErrTimeout].
//
// # Receiving
//
// The receiver takes requests with [Receiver.Recv], and answers each one
// using the [Responder] delivered with it:
//
//	go func() {
//	   for {
//	      p, err := rx.Recv(ctx)
//	      if err != nil {
//	         return // all senders are closed
//	      }
//	      p.Respond(p.Request * p.Request)
//	   }
//	}()
//
// A receiver can also be consumed as a sequence with [Receiver.Stream]:
//
//	for p := range rx.Stream().All(ctx) {
//	   p.Respond(p.Request * p.Request)
//	}
//
// A Responder can be used only once. If the receiver closes a Responder
// without responding, the requester gets [ErrRecv] instead of a value.
//
// # Sending
//
// To send a request and wait for its response, use SendReceive:
//
//	v, err := tx.SendReceive(ctx, 8)
//	if err != nil {
//	   log.Fatalf("Request failed: %v", err)
//	}
//
// Errors reported by SendReceive have concrete type *[RequestError]. To send
// a request without waiting, use Send, which returns a [ResponseReceiver]
// whose Recv method waits for the response later.
//
// Senders may be shared among goroutines, and cloned. Each clone must be
// closed when it is no longer needed; once all of them are closed the
// receiver sees the end of the channel:
//
//	tx2 := tx.Clone()
//	defer tx2.Close()
//
// # Closing
//
// Closing either end of a channel is a normal event, not a failure. Every
// handle type has a Close method, and a handle that becomes unreachable
// without being closed is closed when the garbage collector reclaims it.
// Operations that fail because the other side is gone report errors that
// return any request or response value that was not delivered.
//
// # Metrics
//
// Channels maintain a collection of metrics shared by all channels in the
// process. Use [Metrics] to obtain an [expvar.Map] containing them.
package reqchan
