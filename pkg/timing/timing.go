// Package timing provides performance measurement utilities for recorded exchanges.
package timing

import (
	"fmt"
	"time"
)

// Metrics captures phase timings for a single exchange, from the moment its
// request line was read to the moment its response finished writing.
type Metrics struct {
	// Handshake is the time spent performing the TLS handshake (0 if plaintext,
	// or if the handshake belongs to an earlier exchange on the same connection).
	Handshake time.Duration `json:"handshake"`

	// RequestBody is the time spent reading the request body off the wire.
	RequestBody time.Duration `json:"request_body"`

	// HeadersWrite is the time spent writing the response status line and headers,
	// including any configured headersDelay.
	HeadersWrite time.Duration `json:"headers_write"`

	// BodyWrite is the time spent writing the response body, including throttling.
	BodyWrite time.Duration `json:"body_write"`

	// TotalTime is the total end-to-end exchange time.
	TotalTime time.Duration `json:"total_time"`
}

// Timer measures the phases of a single exchange.
type Timer struct {
	start          time.Time
	handshakeStart time.Time
	handshakeEnd   time.Time
	reqBodyStart   time.Time
	reqBodyEnd     time.Time
	hdrStart       time.Time
	hdrEnd         time.Time
	bodyStart      time.Time
	bodyEnd        time.Time
}

// NewTimer starts a new exchange timing session.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// StartHandshake marks the beginning of the TLS handshake.
func (t *Timer) StartHandshake() { t.handshakeStart = time.Now() }

// EndHandshake marks the end of the TLS handshake.
func (t *Timer) EndHandshake() { t.handshakeEnd = time.Now() }

// StartRequestBody marks the beginning of request body reading.
func (t *Timer) StartRequestBody() { t.reqBodyStart = time.Now() }

// EndRequestBody marks the end of request body reading.
func (t *Timer) EndRequestBody() { t.reqBodyEnd = time.Now() }

// StartHeadersWrite marks the beginning of response header writing.
func (t *Timer) StartHeadersWrite() { t.hdrStart = time.Now() }

// EndHeadersWrite marks the end of response header writing.
func (t *Timer) EndHeadersWrite() { t.hdrEnd = time.Now() }

// StartBodyWrite marks the beginning of response body writing.
func (t *Timer) StartBodyWrite() { t.bodyStart = time.Now() }

// EndBodyWrite marks the end of response body writing.
func (t *Timer) EndBodyWrite() { t.bodyEnd = time.Now() }

// Metrics returns the calculated timing metrics.
func (t *Timer) Metrics() Metrics {
	m := Metrics{TotalTime: time.Since(t.start)}

	if !t.handshakeStart.IsZero() && !t.handshakeEnd.IsZero() {
		m.Handshake = t.handshakeEnd.Sub(t.handshakeStart)
	}
	if !t.reqBodyStart.IsZero() && !t.reqBodyEnd.IsZero() {
		m.RequestBody = t.reqBodyEnd.Sub(t.reqBodyStart)
	}
	if !t.hdrStart.IsZero() && !t.hdrEnd.IsZero() {
		m.HeadersWrite = t.hdrEnd.Sub(t.hdrStart)
	}
	if !t.bodyStart.IsZero() && !t.bodyEnd.IsZero() {
		m.BodyWrite = t.bodyEnd.Sub(t.bodyStart)
	}

	return m
}

// String provides a human-readable representation of the metrics.
func (m Metrics) String() string {
	return fmt.Sprintf("handshake=%v reqBody=%v headersWrite=%v bodyWrite=%v total=%v",
		m.Handshake, m.RequestBody, m.HeadersWrite, m.BodyWrite, m.TotalTime)
}
