package http2

import (
	"github.com/square/okhttp-sub007/pkg/frame"
	"github.com/square/okhttp-sub007/pkg/hpack"
)

// PushPromise sends a PUSH_PROMISE on parentStreamID for a synthetic request
// (method, path, headers), then returns the new push Stream so its response
// can be written with WriteHeaders/WriteData as usual. It is a no-op
// returning nil if the peer has disabled push via SETTINGS_ENABLE_PUSH.
func (c *Connection) PushPromise(parentStreamID uint32, method, path string, headers []ResponseHeaderField) (*Stream, error) {
	if v, ok := c.peerSetting(uint16(frame.SettingEnablePush)); ok && v == 0 {
		return nil, nil
	}

	c.streamsMu.Lock()
	pushID := c.nextPushStreamID
	c.nextPushStreamID += 2
	s := newStream(pushID, c, int64(c.peerInitialWindowOrDefault()), int64(c.config.InitialWindowSize))
	c.streams[pushID] = s
	c.streamsMu.Unlock()
	s.setState(StateHalfClosedRemote) // server-initiated: no request body will ever arrive

	fields := make([]hpack.HeaderField, 0, len(headers)+2)
	fields = append(fields, hpack.HeaderField{Name: ":method", Value: method})
	fields = append(fields, hpack.HeaderField{Name: ":path", Value: path})
	for _, h := range headers {
		fields = append(fields, hpack.HeaderField{Name: h.Name, Value: h.Value})
	}

	c.writeMu.Lock()
	block, err := c.hpackWriter.Encode(fields)
	c.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	maxFrame := int(c.config.MaxFrameSize)
	if maxFrame <= 0 {
		maxFrame = 16384
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if len(block) <= maxFrame {
		if err := c.conn.WritePushPromise(parentStreamID, pushID, block, true); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err := c.conn.WritePushPromise(parentStreamID, pushID, block[:maxFrame], false); err != nil {
		return nil, err
	}
	block = block[maxFrame:]
	for len(block) > maxFrame {
		if err := c.conn.WriteContinuation(pushID, false, block[:maxFrame]); err != nil {
			return nil, err
		}
		block = block[maxFrame:]
	}
	if err := c.conn.WriteContinuation(pushID, true, block); err != nil {
		return nil, err
	}
	return s, nil
}
