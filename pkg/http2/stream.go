package http2

import (
	"sync"

	"github.com/square/okhttp-sub007/pkg/errors"
	"github.com/square/okhttp-sub007/pkg/frame"
	"github.com/square/okhttp-sub007/pkg/hpack"
)

// StreamState is one of the five states an HTTP/2 stream moves through, per
// RFC 7540 §5.1 and spec §3's Http2Stream.
type StreamState int

const (
	StateIdle StreamState = iota
	StateOpen
	StateHalfClosedLocal
	StateHalfClosedRemote
	StateClosed
)

func (s StreamState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateHalfClosedLocal:
		return "half_closed_local"
	case StateHalfClosedRemote:
		return "half_closed_remote"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// window is a flow-control window guarded by its own mutex/cond pair, so a
// blocked writer can be woken either by a WINDOW_UPDATE credit or by the
// connection shutting down, per spec §4.4/§5.
type window struct {
	mu     sync.Mutex
	cond   *sync.Cond
	size   int64
	closed bool
}

func newWindow(initial int64) *window {
	w := &window{size: initial}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Reserve blocks until the window is positive, or the window is closed,
// then reserves up to n bytes, returning the number actually reserved (may
// be less than n).
func (w *window) Reserve(n int64) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.size <= 0 && !w.closed {
		w.cond.Wait()
	}
	if w.closed {
		return 0, errors.NewIOError("flow-control-window", nil)
	}
	reserved := n
	if reserved > w.size {
		reserved = w.size
	}
	w.size -= reserved
	return reserved, nil
}

// Credit adds delta (positive from WINDOW_UPDATE, or negative/positive from
// a SETTINGS INITIAL_WINDOW_SIZE change) and wakes any blocked Reserve.
func (w *window) Credit(delta int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.size += delta
	w.cond.Broadcast()
}

// Size returns the current window size.
func (w *window) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Close wakes every blocked Reserve so it returns an error instead of
// hanging past connection shutdown.
func (w *window) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.cond.Broadcast()
}

// ResponseHeaderField mirrors response.HeaderField without importing
// pkg/response, keeping pkg/http2 free of a dependency on the response
// script model; pkg/mockserver adapts between the two.
type ResponseHeaderField struct {
	Name  string
	Value string
}

// Stream is one HTTP/2 stream's server-side state: flow-control windows,
// header/data buffering, and the state machine in RFC 7540 §5.1.
type Stream struct {
	ID uint32

	conn *Connection

	mu    sync.Mutex
	state StreamState

	sendWindow *window
	recvWindow *window

	recvBytesUnacked int64

	requestHeaders  []hpack.HeaderField
	requestTrailers []hpack.HeaderField
	requestBody     []byte
	requestEnded    bool
	endedOnce       sync.Once
	endedCh         chan struct{}

	bodyTriggerAt    int64
	bodyTriggerFunc  func()
	bodyTriggerFired bool

	errorCode *frame.ErrCode
}

func newStream(id uint32, conn *Connection, sendInitial, recvInitial int64) *Stream {
	return &Stream{
		ID:         id,
		conn:       conn,
		state:      StateIdle,
		sendWindow: newWindow(sendInitial),
		recvWindow: newWindow(recvInitial),
		endedCh:    make(chan struct{}),
	}
}

// markRequestEnded records that END_STREAM has arrived (in headers or
// data) and wakes anyone waiting via RequestEndedSignal. Safe to call more
// than once.
func (s *Stream) markRequestEnded() {
	s.mu.Lock()
	s.requestEnded = true
	s.mu.Unlock()
	s.endedOnce.Do(func() { close(s.endedCh) })
}

// RequestEndedSignal returns a channel closed once the request's END_STREAM
// has been observed, so a StreamCallback can wait for the full body before
// dispatching.
func (s *Stream) RequestEndedSignal() <-chan struct{} { return s.endedCh }

// State returns the stream's current state.
func (s *Stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stream) setState(next StreamState) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	if next == StateClosed {
		s.sendWindow.Close()
		s.recvWindow.Close()
	}
}

// RequestHeaders returns the decoded request header block (pseudo-headers
// included), available once HEADERS with END_HEADERS has been received.
func (s *Stream) RequestHeaders() []hpack.HeaderField {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestHeaders
}

// RequestBody returns the accumulated DATA payload received so far.
func (s *Stream) RequestBody() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestBody
}

// RequestEnded reports whether END_STREAM has been received from the peer.
func (s *Stream) RequestEnded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestEnded
}

// SetRequestBodyTrigger arms a one-shot callback to fire once the
// accumulated request body reaches half of expectedSize, or immediately if
// expectedSize is negative ("unknown length"), mirroring
// buffer.TriggerSink's semantics for a scripted onRequestBody effect.
func (s *Stream) SetRequestBodyTrigger(expectedSize int64, onTrigger func()) {
	if expectedSize < 0 {
		onTrigger()
		return
	}
	s.mu.Lock()
	s.bodyTriggerAt = expectedSize / 2
	s.bodyTriggerFunc = onTrigger
	fire := !s.bodyTriggerFired && int64(len(s.requestBody)) >= s.bodyTriggerAt
	if fire {
		s.bodyTriggerFired = true
	}
	s.mu.Unlock()
	if fire {
		onTrigger()
	}
}

// WriteHeaders backs response.StreamSink (through pkg/mockserver's
// h2StreamSink adapter): encodes fields with the connection's HPACK writer
// and emits HEADERS (+ CONTINUATION if the block exceeds one frame).
func (s *Stream) WriteHeaders(fields []ResponseHeaderField, endStream bool) error {
	return s.conn.writeHeadersForStream(s.ID, fields, endStream)
}

// WriteData backs response.StreamSink through h2StreamSink.
func (s *Stream) WriteData(data []byte, endStream bool) error {
	return s.conn.writeDataForStream(s, data, endStream)
}

// WriteTrailers backs response.StreamSink through h2StreamSink: a second HEADERS frame with
// END_STREAM set and no pseudo-headers.
func (s *Stream) WriteTrailers(fields []ResponseHeaderField) error {
	return s.conn.writeHeadersForStream(s.ID, fields, true)
}
