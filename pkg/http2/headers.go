package http2

import (
	xhttp2 "golang.org/x/net/http2"

	"github.com/square/okhttp-sub007/pkg/constants"
	"github.com/square/okhttp-sub007/pkg/errors"
	"github.com/square/okhttp-sub007/pkg/frame"
	"github.com/square/okhttp-sub007/pkg/hpack"
)

// headerAssembly accumulates a HEADERS + CONTINUATION* sequence for one
// stream until END_HEADERS, since HPACK state (the dynamic table) must see
// the whole block as one unit.
type headerAssembly struct {
	streamID  uint32
	block     []byte
	endStream bool
}

// handleHeaders processes a HEADERS frame: either it completes immediately
// (END_HEADERS set) or it starts a pending assembly continued by
// handleContinuation.
func (c *Connection) handleHeaders(f *xhttp2.HeadersFrame) error {
	if c.pendingHeaders != nil && c.pendingHeaders.streamID != f.StreamID {
		return errors.NewProtocolError("http2-headers", "interleaved HEADERS while a block is in progress", nil)
	}

	assembly := &headerAssembly{
		streamID:  f.StreamID,
		block:     append([]byte(nil), f.HeaderBlockFragment()...),
		endStream: f.StreamEnded(),
	}

	if !f.HeadersEnded() {
		c.pendingHeaders = assembly
		return nil
	}
	return c.finishHeaderBlock(assembly)
}

// handleContinuation appends to a pending header assembly and, once
// END_HEADERS is set, finishes it.
func (c *Connection) handleContinuation(f *xhttp2.ContinuationFrame) error {
	if c.pendingHeaders == nil || c.pendingHeaders.streamID != f.StreamID {
		return errors.NewProtocolError("http2-continuation", "CONTINUATION without a preceding HEADERS", nil)
	}
	c.pendingHeaders.block = append(c.pendingHeaders.block, f.HeaderBlockFragment()...)
	if !f.HeadersEnded() {
		return nil
	}
	assembly := c.pendingHeaders
	c.pendingHeaders = nil
	return c.finishHeaderBlock(assembly)
}

func (c *Connection) finishHeaderBlock(assembly *headerAssembly) error {
	fields, err := c.hpackReader.Decode(assembly.block)
	if err != nil {
		return err
	}

	c.streamsMu.Lock()
	s, exists := c.streams[assembly.streamID]
	if !exists {
		if assembly.streamID <= c.highestClientID {
			c.streamsMu.Unlock()
			return errors.NewProtocolError("http2-headers", "stream id reused", nil)
		}
		if len(c.streams) >= int(c.config.MaxConcurrentStreams) {
			c.streamsMu.Unlock()
			c.writeMu.Lock()
			werr := c.conn.WriteRSTStream(assembly.streamID, frame.ErrCodeRefusedStream)
			c.writeMu.Unlock()
			return werr
		}
		c.highestClientID = assembly.streamID
		s = newStream(assembly.streamID, c, int64(c.peerInitialWindowOrDefault()), int64(c.config.InitialWindowSize))
		c.streams[assembly.streamID] = s
	}
	c.streamsMu.Unlock()

	s.mu.Lock()
	s.requestHeaders = toHpackFields(fields)
	s.mu.Unlock()
	if assembly.endStream {
		s.markRequestEnded()
	}

	if assembly.endStream {
		s.setState(StateHalfClosedRemote)
	} else {
		s.setState(StateOpen)
	}

	if c.config.OnStream != nil {
		go c.config.OnStream(s)
	}
	return nil
}

func (c *Connection) peerInitialWindowOrDefault() uint32 {
	if v, ok := c.peerSetting(uint16(frame.SettingInitialWindowSize)); ok {
		return v
	}
	return 65535
}

func toHpackFields(fields []hpack.HeaderField) []hpack.HeaderField {
	return fields
}

// writeHeadersForStream encodes fields via the connection's single HPACK
// writer and emits HEADERS (+ CONTINUATION if the block exceeds one frame),
// all under the write mutex so HPACK state and frame order stay consistent.
func (c *Connection) writeHeadersForStream(streamID uint32, fields []ResponseHeaderField, endStream bool) error {
	hf := make([]hpack.HeaderField, len(fields))
	for i, f := range fields {
		hf[i] = hpack.HeaderField{Name: f.Name, Value: f.Value}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	block, err := c.hpackWriter.Encode(hf)
	if err != nil {
		return err
	}

	maxFrame := int(c.config.MaxFrameSize)
	if maxFrame <= 0 {
		maxFrame = constants.DefaultMaxFrameSize
	}

	if len(block) <= maxFrame {
		return c.conn.WriteHeaders(streamID, endStream, true, block, nil)
	}

	if err := c.conn.WriteHeaders(streamID, endStream, false, block[:maxFrame], nil); err != nil {
		return err
	}
	block = block[maxFrame:]
	for len(block) > maxFrame {
		if err := c.conn.WriteContinuation(streamID, false, block[:maxFrame]); err != nil {
			return err
		}
		block = block[maxFrame:]
	}
	return c.conn.WriteContinuation(streamID, true, block)
}
