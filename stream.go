// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package reqchan

import (
	"context"
	"iter"
)

// A RequestStream is a lazy, pull-based sequence of the requests delivered to
// a [Receiver]. The sequence ends when the receiver would report
// [RecvFailed], or when the context of a pull ends. Once ended, a stream
// stays ended.
type RequestStream[Req, Res any] struct {
	rx   *Receiver[Req, Res]
	err  error
	done bool
}

// Stream converts r into a [RequestStream]. The stream takes ownership of r;
// use [RequestStream.Receiver] to recover it.
func (r *Receiver[Req, Res]) Stream() *RequestStream[Req, Res] {
	return &RequestStream[Req, Res]{rx: r}
}

// Next blocks until the next request is available and returns it. It reports
// false if the stream has ended.
func (s *RequestStream[Req, Res]) Next(ctx context.Context) (Payload[Req, Res], bool) {
	if s.done {
		return Payload[Req, Res]{}, false
	}
	p, err := s.rx.Recv(ctx)
	if err != nil {
		s.done = true
		if rerr := AsRequestError[Req](err); rerr.Kind == Canceled {
			s.err = rerr.Err
		}
		return p, false
	}
	return p, true
}

// All returns an iterator over the remaining requests of s. Breaking out of
// the loop does not end the stream; a later call to All or Next resumes where
// the loop stopped.
func (s *RequestStream[Req, Res]) All(ctx context.Context) iter.Seq[Payload[Req, Res]] {
	return func(yield func(Payload[Req, Res]) bool) {
		for {
			p, ok := s.Next(ctx)
			if !ok || !yield(p) {
				return
			}
		}
	}
}

// Err reports the context error that ended s, if any. It returns nil if s has
// not ended or ended because the channel did.
func (s *RequestStream[Req, Res]) Err() error { return s.err }

// Ended reports whether s has ended because the channel did.
func (s *RequestStream[Req, Res]) Ended() bool { return s.done && s.err == nil }

// Close closes the underlying channel to further requests, as
// [Receiver.Close]. Requests already buffered remain available from s.
func (s *RequestStream[Req, Res]) Close() { s.rx.Close() }

// Receiver returns the underlying receiver of s. After calling Receiver the
// caller should not continue to use s.
func (s *RequestStream[Req, Res]) Receiver() *Receiver[Req, Res] { return s.rx }
