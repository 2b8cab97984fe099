package http2

import (
	xhttp2 "golang.org/x/net/http2"

	"github.com/square/okhttp-sub007/pkg/errors"
	"github.com/square/okhttp-sub007/pkg/frame"
)

// handleData appends a DATA frame's payload to its stream's request body,
// crediting flow-control windows and sending WINDOW_UPDATEs once either the
// stream or connection's unacknowledged share exceeds half its window, per
// spec §4.4.
func (c *Connection) handleData(f *xhttp2.DataFrame) error {
	data := f.Data()

	c.streamsMu.Lock()
	s, exists := c.streams[f.StreamID]
	c.streamsMu.Unlock()
	if !exists {
		return errors.NewProtocolError("http2-data", "DATA on unknown stream", nil)
	}

	s.mu.Lock()
	s.requestBody = append(s.requestBody, data...)
	bodyLen := int64(len(s.requestBody))
	fire := s.bodyTriggerFunc != nil && !s.bodyTriggerFired && bodyLen >= s.bodyTriggerAt
	if fire {
		s.bodyTriggerFired = true
	}
	triggerFn := s.bodyTriggerFunc
	s.mu.Unlock()
	if fire {
		triggerFn()
	}

	n := int64(len(data))
	c.creditRecvWindow(s, n)

	if f.StreamEnded() {
		s.markRequestEnded()
		s.setState(StateHalfClosedRemote)
	}
	return nil
}

// creditRecvWindow tracks unacknowledged received bytes for both the stream
// and the connection, issuing WINDOW_UPDATE frames once half the respective
// window has been consumed.
func (c *Connection) creditRecvWindow(s *Stream, n int64) {
	s.mu.Lock()
	s.recvBytesUnacked += n
	streamThreshold := s.recvWindow.Size() / 2
	streamDue := s.recvBytesUnacked
	streamShouldUpdate := s.recvBytesUnacked > streamThreshold && streamThreshold > 0
	if streamShouldUpdate {
		s.recvBytesUnacked = 0
	}
	s.mu.Unlock()

	if streamShouldUpdate {
		c.writeMu.Lock()
		c.conn.WriteWindowUpdate(s.ID, uint32(streamDue))
		c.writeMu.Unlock()
	}

	c.connRecvUnackedMu.Lock()
	c.connRecvUnacked += n
	connThreshold := c.connRecvWindow.Size() / 2
	connDue := c.connRecvUnacked
	connShouldUpdate := c.connRecvUnacked > connThreshold && connThreshold > 0
	if connShouldUpdate {
		c.connRecvUnacked = 0
	}
	c.connRecvUnackedMu.Unlock()

	if connShouldUpdate {
		c.writeMu.Lock()
		c.conn.WriteWindowUpdate(0, uint32(connDue))
		c.writeMu.Unlock()
	}
}

// writeDataForStream blocks on both the stream and connection send windows,
// splitting data into MaxFrameSize-sized DATA frames as needed.
func (c *Connection) writeDataForStream(s *Stream, data []byte, endStream bool) error {
	maxFrame := int64(c.config.MaxFrameSize)
	if maxFrame <= 0 {
		maxFrame = 16384
	}

	if len(data) == 0 {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return c.conn.WriteData(s.ID, endStream, nil)
	}

	for len(data) > 0 {
		want := int64(len(data))
		if want > maxFrame {
			want = maxFrame
		}

		streamReserved, err := s.sendWindow.Reserve(want)
		if err != nil {
			return err
		}
		if streamReserved == 0 {
			continue
		}
		connReserved, err := c.connSendWindow.Reserve(streamReserved)
		if err != nil {
			return err
		}
		if connReserved < streamReserved {
			s.sendWindow.Credit(streamReserved - connReserved) // give back the unused remainder
		}
		if connReserved == 0 {
			continue
		}

		chunk := data[:connReserved]
		data = data[connReserved:]
		last := len(data) == 0 && endStream

		c.writeMu.Lock()
		err = c.conn.WriteData(s.ID, last, chunk)
		c.writeMu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// handleWindowUpdate credits a stream's (or, for streamID 0, the
// connection's) send window.
func (c *Connection) handleWindowUpdate(f *xhttp2.WindowUpdateFrame) error {
	if f.Increment == 0 {
		return errors.NewProtocolError("http2-window-update", "zero increment", nil)
	}
	if f.StreamID == 0 {
		c.connSendWindow.Credit(int64(f.Increment))
		return nil
	}
	c.streamsMu.Lock()
	s, exists := c.streams[f.StreamID]
	c.streamsMu.Unlock()
	if !exists {
		return nil // window update for an already-closed stream: ignore
	}
	s.sendWindow.Credit(int64(f.Increment))
	return nil
}

// handleRSTStream transitions a stream to closed and records the peer's
// error code.
func (c *Connection) handleRSTStream(f *xhttp2.RSTStreamFrame) error {
	c.streamsMu.Lock()
	s, exists := c.streams[f.StreamID]
	c.streamsMu.Unlock()
	if !exists {
		return nil
	}
	code := frame.ErrCode(f.ErrCode)
	s.mu.Lock()
	s.errorCode = &code
	s.mu.Unlock()
	s.setState(StateClosed)
	return nil
}
