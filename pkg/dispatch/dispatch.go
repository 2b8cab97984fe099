// Package dispatch provides the strategy interface the exchange engine uses
// to pick a MockResponse for each incoming request, per spec §4.8.
package dispatch

import (
	"sync"

	"github.com/square/okhttp-sub007/pkg/record"
	"github.com/square/okhttp-sub007/pkg/response"
)

// Dispatcher selects a response for each recorded request. Dispatch may
// block (e.g. a test-controlled dispatcher waiting for a signal). Peek must
// not block and must not consume: the exchange engine calls it before
// reading the request body, to learn about inTunnel/onRequestStart/
// informationalResponses ahead of time.
type Dispatcher interface {
	Dispatch(req *record.Request) (*response.MockResponse, error)
	Peek() *response.MockResponse
	Close() error
}

// keepOpen is the sentinel Peek result for a dispatcher that cannot predict
// its next response: "no pre-read effects, not in a tunnel".
var keepOpen = response.NewBuilder().Build()

// KeepOpenResponse returns the sentinel response a Dispatcher.Peek
// implementation should return when it cannot predict the next response.
func KeepOpenResponse() *response.MockResponse { return keepOpen }

// QueueDispatcher is the default dispatcher: a FIFO queue of enqueued
// responses. Dispatch pops the head; Peek returns the head without removing
// it. An empty queue dispatches fallback (or a 503 if fallback is nil).
type QueueDispatcher struct {
	mu       sync.Mutex
	queue    []*response.MockResponse
	fallback *response.MockResponse
	closed   bool
}

// NewQueueDispatcher creates an empty QueueDispatcher.
func NewQueueDispatcher() *QueueDispatcher {
	return &QueueDispatcher{}
}

// Enqueue appends resp to the tail of the dispatch queue.
func (d *QueueDispatcher) Enqueue(resp *response.MockResponse) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, resp)
}

// SetFallback sets the response returned by Dispatch when the queue is
// empty, instead of the default 503.
func (d *QueueDispatcher) SetFallback(resp *response.MockResponse) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallback = resp
}

// Dispatch pops and returns the head of the queue, or the fallback/503 if empty.
func (d *QueueDispatcher) Dispatch(req *record.Request) (*response.MockResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.queue) == 0 {
		if d.fallback != nil {
			return d.fallback, nil
		}
		return response.NewBuilder().Code(503).Build(), nil
	}
	resp := d.queue[0]
	d.queue = d.queue[1:]
	return resp, nil
}

// Peek returns the head of the queue without removing it, the fallback if
// the queue is empty and a fallback was set, or the keep-open sentinel.
func (d *QueueDispatcher) Peek() *response.MockResponse {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.queue) > 0 {
		return d.queue[0]
	}
	if d.fallback != nil {
		return d.fallback
	}
	return KeepOpenResponse()
}

// Close marks the dispatcher closed. Idempotent.
func (d *QueueDispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// FuncDispatcher adapts a plain function into a Dispatcher for tests that
// compute responses programmatically instead of pre-enqueuing them. Peek
// always returns the keep-open sentinel since a function can't be consulted
// without invoking it.
type FuncDispatcher struct {
	Func func(req *record.Request) (*response.MockResponse, error)
}

// NewFuncDispatcher wraps fn as a Dispatcher.
func NewFuncDispatcher(fn func(req *record.Request) (*response.MockResponse, error)) *FuncDispatcher {
	return &FuncDispatcher{Func: fn}
}

func (d *FuncDispatcher) Dispatch(req *record.Request) (*response.MockResponse, error) {
	return d.Func(req)
}

func (d *FuncDispatcher) Peek() *response.MockResponse {
	return KeepOpenResponse()
}

func (d *FuncDispatcher) Close() error { return nil }
