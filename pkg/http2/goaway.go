package http2

import "github.com/square/okhttp-sub007/pkg/frame"

// goAwayAndClose sends GOAWAY advertising the highest stream id actually
// processed, then closes every stream: REFUSED_STREAM for ids above that
// watermark (the peer is told to retry them elsewhere, per RFC 7540 §6.8),
// CANCEL for the rest, then tears the connection down once the GOAWAY frame
// itself has been flushed.
func (c *Connection) goAwayAndClose(code frame.ErrCode) error {
	c.streamsMu.Lock()
	if c.shuttingDown {
		c.streamsMu.Unlock()
		return nil
	}
	c.shuttingDown = true
	lastGood := c.lastGoodStreamID
	if lastGood == 0 {
		lastGood = c.highestClientID
	}
	c.streamsMu.Unlock()

	c.writeMu.Lock()
	err := c.conn.WriteGoAway(lastGood, code, nil)
	c.writeMu.Unlock()

	c.streamsMu.Lock()
	for id, s := range c.streams {
		errCode := frame.ErrCodeCancel
		if id > lastGood {
			errCode = frame.ErrCodeRefusedStream
		}
		s.mu.Lock()
		ec := errCode
		s.errorCode = &ec
		s.mu.Unlock()
		s.setState(StateClosed)
	}
	c.streamsMu.Unlock()

	c.teardown()
	return err
}

// Shutdown begins a graceful GOAWAY shutdown of the connection, advertising
// NoError and refusing/cancelling in-flight streams per goAwayAndClose.
func (c *Connection) Shutdown() error {
	return c.goAwayAndClose(frame.ErrCodeNo)
}

// ResetStream sends RST_STREAM for streamID with code and transitions it to
// closed, for a scripted mid-exchange reset (spec §3's CloseStream effect).
// A no-op if the stream is unknown.
func (c *Connection) ResetStream(streamID uint32, code frame.ErrCode) error {
	c.streamsMu.Lock()
	s, exists := c.streams[streamID]
	c.streamsMu.Unlock()
	if !exists {
		return nil
	}

	c.writeMu.Lock()
	err := c.conn.WriteRSTStream(streamID, code)
	c.writeMu.Unlock()

	s.mu.Lock()
	ec := code
	s.errorCode = &ec
	s.mu.Unlock()
	s.setState(StateClosed)
	return err
}

// MarkGoodStream records streamID as one the server intends to fully serve,
// so a subsequent Shutdown's GOAWAY advertises at least that id as
// processed even if a higher-numbered stream arrived afterward but was never
// dispatched to a handler.
func (c *Connection) MarkGoodStream(streamID uint32) {
	c.streamsMu.Lock()
	if streamID > c.lastGoodStreamID {
		c.lastGoodStreamID = streamID
	}
	c.streamsMu.Unlock()
}
