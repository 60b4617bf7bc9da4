// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

// Package serve provides a concurrent service loop for the receiving side of
// a request-response channel.
package serve

import (
	"context"
	"errors"
	"fmt"

	"github.com/creachadair/reqchan"
	"github.com/creachadair/taskgroup"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// A Handler computes the response to a single request. If it reports an
// error, or panics, the request is closed without a response and the
// requester observes [reqchan.ErrRecv].
type Handler[Req, Res any] func(context.Context, Req) (Res, error)

// Func adapts a function f that computes a response without error to a
// [Handler].
func Func[Req, Res any](f func(context.Context, Req) Res) Handler[Req, Res] {
	return func(ctx context.Context, req Req) (Res, error) { return f(ctx, req), nil }
}

// Options control the behavior of [Loop]. A nil *Options is ready for use
// and provides default values.
type Options struct {
	// The maximum number of handlers that may run concurrently.
	// If zero, handlers run one at a time in the order received.
	Concurrency int

	// If non-nil, log events are written here. By default logs are discarded.
	Logger *zerolog.Logger
}

func (o *Options) concurrency() int64 {
	if o == nil || o.Concurrency <= 0 {
		return 1
	}
	return int64(o.Concurrency)
}

func (o *Options) logger() zerolog.Logger {
	if o == nil || o.Logger == nil {
		return zerolog.Nop()
	}
	return *o.Logger
}

// Loop receives requests from rx and answers each with h, running up to the
// configured number of handlers concurrently. Loop continues until every
// sender on the channel has closed or ctx ends.
//
// When the senders close, Loop waits for running handlers to finish and
// returns nil. When ctx ends, Loop closes rx, discards any requests still
// buffered, waits for running handlers, and returns the context error. The
// context passed to each handler is derived from ctx.
func Loop[Req, Res any](ctx context.Context, rx *reqchan.Receiver[Req, Res], h Handler[Req, Res], opts *Options) error {
	log := opts.logger()
	sem := semaphore.NewWeighted(opts.concurrency())
	g := taskgroup.New(nil)

	var nreq int
	for {
		p, err := rx.Recv(ctx)
		if err == nil {
			err = sem.Acquire(ctx, 1)
			if err != nil {
				p.Responder.Close()
			}
		}
		if err != nil {
			g.Wait()
			if errors.Is(err, reqchan.ErrRecv) {
				log.Debug().Int("requests", nreq).Msg("channel closed, service loop exiting")
				return nil
			}
			n := rx.Discard()
			log.Info().Err(err).Int("requests", nreq).Int("discarded", n).Msg("service loop stopped")
			return context.Cause(ctx)
		}

		nreq++
		id := nreq
		g.Go(func() error {
			defer sem.Release(1)
			handle(ctx, log.With().Int("request", id).Logger(), p, h)
			return nil
		})
	}
}

// handle runs h for a single payload and delivers its result.
func handle[Req, Res any](ctx context.Context, log zerolog.Logger, p reqchan.Payload[Req, Res], h Handler[Req, Res]) {
	if p.Responder.IsClosed() {
		log.Debug().Msg("requester gone, skipping handler")
		return
	}

	rsp, err := func() (_ Res, err error) {
		// Ensure a panic out of the handler is turned into a closed response.
		defer func() {
			if x := recover(); x != nil && err == nil {
				err = fmt.Errorf("handler panicked (recovered): %v", x)
			}
		}()
		return h(ctx, p.Request)
	}()
	if err != nil {
		log.Error().Err(err).Msg("handler failed")
		p.Responder.Close()
		return
	}
	if err := p.Respond(rsp); err != nil {
		log.Debug().Err(err).Msg("response not delivered")
	}
}
