// Package frame wraps golang.org/x/net/http2's Framer as the server's single
// point of contact with HTTP/2 wire framing. It adds nothing to frame parsing
// or serialization itself — that's the wrapped library's job — only a
// server-shaped surface (typed Settings, a single ReadFrame loop entry point,
// write helpers that take this package's own stream/header types). Frame
// writing goes only through this package; pkg/http2 still imports
// golang.org/x/net/http2 to type-switch on the concrete frames ReadFrame
// returns.
package frame

import (
	"io"

	"golang.org/x/net/http2"

	"github.com/square/okhttp-sub007/pkg/constants"
	"github.com/square/okhttp-sub007/pkg/errors"
)

// Frame re-exports the wrapped library's frame interface; callers type-switch
// on the concrete *http2.XxxFrame types returned by ReadFrame, same as any
// other consumer of golang.org/x/net/http2.
type Frame = http2.Frame

// Setting re-exports the wrapped library's settings entry type.
type Setting = http2.Setting

// Setting IDs, re-exported for callers that build SETTINGS frames.
const (
	SettingHeaderTableSize      = http2.SettingHeaderTableSize
	SettingEnablePush           = http2.SettingEnablePush
	SettingMaxConcurrentStreams = http2.SettingMaxConcurrentStreams
	SettingInitialWindowSize    = http2.SettingInitialWindowSize
	SettingMaxFrameSize         = http2.SettingMaxFrameSize
	SettingMaxHeaderListSize    = http2.SettingMaxHeaderListSize
)

// ErrCode re-exports the wrapped library's RST_STREAM / GOAWAY error codes.
type ErrCode = http2.ErrCode

const (
	ErrCodeNo                 = http2.ErrCodeNo
	ErrCodeProtocol           = http2.ErrCodeProtocol
	ErrCodeInternal           = http2.ErrCodeInternal
	ErrCodeFlowControl        = http2.ErrCodeFlowControl
	ErrCodeSettingsTimeout    = http2.ErrCodeSettingsTimeout
	ErrCodeStreamClosed       = http2.ErrCodeStreamClosed
	ErrCodeFrameSize          = http2.ErrCodeFrameSize
	ErrCodeRefusedStream      = http2.ErrCodeRefusedStream
	ErrCodeCancel             = http2.ErrCodeCancel
	ErrCodeCompression        = http2.ErrCodeCompression
	ErrCodeConnect            = http2.ErrCodeConnect
	ErrCodeEnhanceYourCalm    = http2.ErrCodeEnhanceYourCalm
	ErrCodeInadequateSecurity = http2.ErrCodeInadequateSecurity
	ErrCodeHTTP11Required     = http2.ErrCodeHTTP11Required
)

// PriorityParam re-exports the wrapped library's stream-dependency weighting.
type PriorityParam = http2.PriorityParam

// Conn serializes HTTP/2 frames onto rw via an underlying *http2.Framer,
// applying the server's frame-size ceiling from constants.
type Conn struct {
	framer *http2.Framer
}

// NewConn wraps rw (typically a *bufio.ReadWriter over a net.Conn) in a
// frame.Conn. maxReadFrameSize bounds frames this side will accept from a peer.
func NewConn(rw io.ReadWriter, maxReadFrameSize uint32) *Conn {
	f := http2.NewFramer(rw, rw)
	if maxReadFrameSize == 0 {
		maxReadFrameSize = constants.DefaultMaxFrameSize
	}
	f.SetMaxReadFrameSize(maxReadFrameSize)
	return &Conn{framer: f}
}

// ReadFrame blocks for the next frame off the wire.
func (c *Conn) ReadFrame() (Frame, error) {
	f, err := c.framer.ReadFrame()
	if err != nil {
		return nil, errors.NewProtocolError("frame-read", "failed to read frame", err)
	}
	return f, nil
}

// WriteData writes a DATA frame. endStream marks the final frame of the
// stream's response body.
func (c *Conn) WriteData(streamID uint32, endStream bool, data []byte) error {
	return wrap("frame-write-data", c.framer.WriteData(streamID, endStream, data))
}

// WriteHeaders writes a single HEADERS frame carrying a pre-encoded HPACK
// block. Callers that exceed one frame's worth of header block must split it
// themselves and follow up with WriteContinuation.
func (c *Conn) WriteHeaders(streamID uint32, endStream, endHeaders bool, block []byte, priority *PriorityParam) error {
	p := http2.HeadersFrameParam{
		StreamID:      streamID,
		BlockFragment: block,
		EndStream:     endStream,
		EndHeaders:    endHeaders,
	}
	if priority != nil {
		p.Priority = *priority
		p.PadLength = 0
	}
	return wrap("frame-write-headers", c.framer.WriteHeaders(p))
}

// WriteContinuation writes a CONTINUATION frame continuing a previously
// started HEADERS (or PUSH_PROMISE) block.
func (c *Conn) WriteContinuation(streamID uint32, endHeaders bool, block []byte) error {
	return wrap("frame-write-continuation", c.framer.WriteContinuation(streamID, endHeaders, block))
}

// WritePriority writes a PRIORITY frame.
func (c *Conn) WritePriority(streamID uint32, p PriorityParam) error {
	return wrap("frame-write-priority", c.framer.WritePriority(streamID, p))
}

// WriteRSTStream writes an RST_STREAM frame, aborting streamID.
func (c *Conn) WriteRSTStream(streamID uint32, code ErrCode) error {
	return wrap("frame-write-rststream", c.framer.WriteRSTStream(streamID, code))
}

// WriteSettings writes a (non-ACK) SETTINGS frame.
func (c *Conn) WriteSettings(settings ...Setting) error {
	return wrap("frame-write-settings", c.framer.WriteSettings(settings...))
}

// WriteSettingsAck writes a SETTINGS frame with the ACK flag set.
func (c *Conn) WriteSettingsAck() error {
	return wrap("frame-write-settings-ack", c.framer.WriteSettingsAck())
}

// WritePushPromise writes a PUSH_PROMISE frame announcing promisedStreamID.
func (c *Conn) WritePushPromise(streamID, promisedStreamID uint32, block []byte, endHeaders bool) error {
	return wrap("frame-write-pushpromise", c.framer.WritePushPromise(http2.PushPromiseParam{
		StreamID:      streamID,
		PromiseID:     promisedStreamID,
		BlockFragment: block,
		EndHeaders:    endHeaders,
	}))
}

// WritePing writes a PING frame. ack distinguishes a liveness probe from its
// reply.
func (c *Conn) WritePing(ack bool, payload [8]byte) error {
	return wrap("frame-write-ping", c.framer.WritePing(ack, payload))
}

// WriteGoAway writes a GOAWAY frame announcing lastStreamID as the highest
// stream this side will process.
func (c *Conn) WriteGoAway(lastStreamID uint32, code ErrCode, debugData []byte) error {
	return wrap("frame-write-goaway", c.framer.WriteGoAway(lastStreamID, code, debugData))
}

// WriteWindowUpdate writes a WINDOW_UPDATE frame incrementing streamID's flow
// control window (streamID 0 updates the connection window).
func (c *Conn) WriteWindowUpdate(streamID uint32, increment uint32) error {
	return wrap("frame-write-windowupdate", c.framer.WriteWindowUpdate(streamID, increment))
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.NewProtocolError(op, "failed to write frame", err)
}
