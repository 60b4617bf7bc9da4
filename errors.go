// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package reqchan

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrClosed is reported when a send fails because the receiving side of a
	// channel is gone, or a response fails because the requester is gone.
	ErrClosed = errors.New("channel closed")

	// ErrAlreadyReplied is reported when a Responder is used a second time.
	ErrAlreadyReplied = errors.New("response already sent")
)

// A ReceiveError is reported by [ResponseReceiver.Recv] when no response is
// delivered. Its values are comparable, so callers may use == or errors.Is.
type ReceiveError byte

const (
	// ErrRecv means no response will ever arrive: the responder was closed
	// without answering, or the response was already received.
	ErrRecv ReceiveError = 1 + iota

	// ErrTimeout means the request deadline elapsed before a response arrived.
	ErrTimeout
)

// Error satisfies the error interface.
func (e ReceiveError) Error() string {
	switch e {
	case ErrRecv:
		return "receive channel closed"
	case ErrTimeout:
		return "request timed out"
	}
	return fmt.Sprintf("receive error %d", byte(e))
}

// SendError is the concrete type of errors reported when a request cannot be
// enqueued. The undelivered request is returned in the Request field.
type SendError[T any] struct {
	Request T     // the request that was not sent
	Err     error // the cause; nil means the channel is closed
}

// Error satisfies the error interface.
func (e *SendError[T]) Error() string {
	if e.Err == nil || e.Err == ErrClosed {
		return "channel closed"
	}
	return fmt.Sprintf("send aborted: %v", e.Err)
}

// Unwrap reports the cause of e, which is [ErrClosed] unless the send was
// abandoned because its context ended.
func (e *SendError[T]) Unwrap() error {
	if e.Err == nil {
		return ErrClosed
	}
	return e.Err
}

// RequestError converts e into a [RequestError] of kind [SendFailed].
func (e *SendError[T]) RequestError() *RequestError[T] {
	return &RequestError[T]{Kind: SendFailed, Request: e.Request, Err: e.Err}
}

// RequestErrorKind classifies the failures of a request round trip.
type RequestErrorKind byte

const (
	RecvFailed   RequestErrorKind = 1 + iota // the other side of the channel is gone
	RecvTimedOut                             // the response deadline elapsed
	SendFailed                               // the request could not be enqueued
	Canceled                                 // the caller's context ended
)

func (k RequestErrorKind) String() string {
	switch k {
	case RecvFailed:
		return "RecvFailed"
	case RecvTimedOut:
		return "RecvTimedOut"
	case SendFailed:
		return "SendFailed"
	case Canceled:
		return "Canceled"
	}
	return fmt.Sprintf("RequestErrorKind(%d)", byte(k))
}

// RequestError is the concrete type of errors reported by
// [Sender.SendReceive], [UnboundedSender.SendReceive], and [Receiver.Recv].
type RequestError[T any] struct {
	Kind RequestErrorKind

	// Request is the undelivered request, for kind SendFailed. It is the zero
	// value for other kinds.
	Request T

	// Err is the underlying cause, for kinds SendFailed and Canceled.
	Err error
}

// Error satisfies the error interface.
func (e *RequestError[T]) Error() string {
	switch e.Kind {
	case RecvFailed:
		return "request channel closed"
	case RecvTimedOut:
		return "request timed out"
	case SendFailed:
		if e.Err != nil && e.Err != ErrClosed {
			return fmt.Sprintf("send aborted: %v", e.Err)
		}
		return "channel closed"
	case Canceled:
		return fmt.Sprintf("request canceled: %v", e.Err)
	}
	return e.Kind.String()
}

// Unwrap reports the sentinel matching the kind of e: [ErrRecv] for
// RecvFailed, [ErrTimeout] for RecvTimedOut, and [ErrClosed] or the cause for
// SendFailed and Canceled.
func (e *RequestError[T]) Unwrap() error {
	switch e.Kind {
	case RecvFailed:
		return ErrRecv
	case RecvTimedOut:
		return ErrTimeout
	case SendFailed:
		if e.Err == nil {
			return ErrClosed
		}
	}
	return e.Err
}

// AsRequestError converts an error reported by [ResponseReceiver.Recv] or a
// send into a *RequestError. It returns nil if err == nil. An error that
// already has type *RequestError[T] is returned unchanged; a *SendError[T]
// becomes kind SendFailed; ErrTimeout becomes RecvTimedOut; context errors
// become Canceled; anything else becomes RecvFailed.
func AsRequestError[T any](err error) *RequestError[T] {
	var rerr *RequestError[T]
	var serr *SendError[T]
	switch {
	case err == nil:
		return nil
	case errors.As(err, &rerr):
		return rerr
	case errors.As(err, &serr):
		return serr.RequestError()
	case errors.Is(err, ErrTimeout):
		return &RequestError[T]{Kind: RecvTimedOut}
	case isCanceled(err):
		return &RequestError[T]{Kind: Canceled, Err: err}
	default:
		return &RequestError[T]{Kind: RecvFailed}
	}
}

// RespondErrorKind classifies the failures of [Responder.Respond].
type RespondErrorKind byte

const (
	AlreadyReplied RespondErrorKind = 1 + iota // the responder was already used
	ChannelClosed                              // the requester is no longer waiting
)

func (k RespondErrorKind) String() string {
	switch k {
	case AlreadyReplied:
		return "AlreadyReplied"
	case ChannelClosed:
		return "ChannelClosed"
	}
	return fmt.Sprintf("RespondErrorKind(%d)", byte(k))
}

// RespondError is the concrete type of errors reported by [Responder.Respond].
// The undelivered response is returned in the Response field.
type RespondError[T any] struct {
	Kind     RespondErrorKind
	Response T
}

// Error satisfies the error interface.
func (e *RespondError[T]) Error() string {
	if e.Kind == AlreadyReplied {
		return "response already sent"
	}
	return "sender closed the response channel"
}

// Unwrap reports [ErrAlreadyReplied] or [ErrClosed] according to the kind of e.
func (e *RespondError[T]) Unwrap() error {
	if e.Kind == AlreadyReplied {
		return ErrAlreadyReplied
	}
	return ErrClosed
}

// RequestError converts e into a [RequestError] of kind SendFailed carrying
// the undelivered response. This is useful to a handler that forwards a
// response of the same type as its request.
func (e *RespondError[T]) RequestError() *RequestError[T] {
	return &RequestError[T]{Kind: SendFailed, Request: e.Response, Err: e.Unwrap()}
}

// isCanceled reports whether err reports a context termination.
func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
