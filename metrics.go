// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package reqchan

import "expvar"

// chanMetrics record channel activity counters.
type chanMetrics struct {
	reqSent     expvar.Int // requests enqueued by senders
	reqFailed   expvar.Int // requests that could not be enqueued
	reqRecv     expvar.Int // requests dequeued by receivers
	rspSent     expvar.Int // responses delivered by responders
	rspDropped  expvar.Int // responders closed without a response
	rspTimeout  expvar.Int // responses abandoned at the deadline
	reqPending  expvar.Int // response receivers not yet resolved
	rspRejected expvar.Int // responses offered after the requester left

	emap *expvar.Map
}

var metrics = newChanMetrics()

func newChanMetrics() *chanMetrics {
	m := &chanMetrics{emap: new(expvar.Map)}
	m.emap.Set("requests_sent", &m.reqSent)
	m.emap.Set("requests_failed", &m.reqFailed)
	m.emap.Set("requests_received", &m.reqRecv)
	m.emap.Set("requests_pending", &m.reqPending)
	m.emap.Set("responses_sent", &m.rspSent)
	m.emap.Set("responses_dropped", &m.rspDropped)
	m.emap.Set("responses_timed_out", &m.rspTimeout)
	m.emap.Set("responses_rejected", &m.rspRejected)
	return m
}

// Metrics returns the metrics map shared by all channels in the process. It
// is safe for the caller to add additional metrics to the map.
//
// The metrics currently exported include:
//
//   - requests_sent: counter of requests enqueued
//   - requests_failed: counter of requests that could not be enqueued
//   - requests_received: counter of requests dequeued by a receiver
//   - requests_pending: gauge of response receivers not yet resolved
//   - responses_sent: counter of responses delivered to a responder's peer
//   - responses_dropped: counter of responders closed without responding
//   - responses_timed_out: counter of responses abandoned at a deadline
//   - responses_rejected: counter of responses offered to a departed requester
func Metrics() *expvar.Map { return metrics.emap }
