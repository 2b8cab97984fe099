package http2

import (
	xhttp2 "golang.org/x/net/http2"

	"github.com/square/okhttp-sub007/pkg/frame"
)

// handleSettings merges an incoming SETTINGS frame into peerSettings
// field-by-field (a non-present identifier is preserved), ACKs it, and
// applies any INITIAL_WINDOW_SIZE change to every open stream's send
// window, per spec §4.4.
func (c *Connection) handleSettings(f *xhttp2.SettingsFrame) error {
	if f.IsAck() {
		return nil
	}

	var windowDelta int64
	hasWindowChange := false

	c.peerSettingsMu.Lock()
	f.ForeachSetting(func(s xhttp2.Setting) error {
		id := uint16(s.ID)
		prev, had := c.peerSettings[id]
		c.peerSettings[id] = s.Val
		if s.ID == frame.SettingInitialWindowSize {
			if had {
				windowDelta = int64(s.Val) - int64(prev)
			} else {
				windowDelta = int64(s.Val) - int64(65535)
			}
			hasWindowChange = true
		}
		if s.ID == frame.SettingHeaderTableSize {
			c.hpackWriter.SetMaxDynamicTableSize(s.Val)
		}
		return nil
	})
	c.peerSettingsMu.Unlock()

	if hasWindowChange {
		c.streamsMu.Lock()
		for _, s := range c.streams {
			s.sendWindow.Credit(windowDelta)
		}
		c.streamsMu.Unlock()
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteSettingsAck()
}

// peerSetting returns a SETTINGS value the peer has sent, or ok=false if
// never advertised (callers should assume the RFC default).
func (c *Connection) peerSetting(id uint16) (uint32, bool) {
	c.peerSettingsMu.RLock()
	defer c.peerSettingsMu.RUnlock()
	v, ok := c.peerSettings[id]
	return v, ok
}
