// Package http2 implements the server side of the HTTP/2 connection and
// stream multiplexer: frame dispatch, stream lifecycle, flow control,
// settings negotiation, ping liveness, and GOAWAY shutdown sequencing, per
// spec §3/§4.4/§5. Wire framing and HPACK codec are delegated to
// pkg/frame and pkg/hpack, which themselves wrap golang.org/x/net/http2 and
// golang.org/x/net/http2/hpack.
package http2

import (
	"sync"
	"sync/atomic"
	"time"

	xhttp2 "golang.org/x/net/http2"

	"github.com/square/okhttp-sub007/pkg/constants"
	"github.com/square/okhttp-sub007/pkg/errors"
	"github.com/square/okhttp-sub007/pkg/frame"
	"github.com/square/okhttp-sub007/pkg/hpack"
)

// Preface is the client connection preface the server expects to read
// before any frame, per RFC 7540 §3.5.
const Preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// Settings mirrors response.Settings without importing pkg/response.
type Settings map[uint16]uint32

// StreamCallback is invoked when a complete request header block (HEADERS
// plus any CONTINUATION) arrives on a client-initiated stream. The request
// body may still be arriving; Stream.RequestEndedSignal reports END_STREAM.
// It runs on its own goroutine; the connection's reader continues servicing
// other streams concurrently.
type StreamCallback func(s *Stream)

// Config carries the connection's local settings and callbacks.
type Config struct {
	InitialWindowSize    uint32
	MaxFrameSize         uint32
	MaxConcurrentStreams uint32
	HeaderTableSize      uint32
	MaxHeaderListSize    uint32
	EnablePush           bool

	PingInterval        time.Duration
	DegradedPongTimeout time.Duration

	OnStream StreamCallback
}

// DefaultConfig returns the server's default HTTP/2 settings, per spec §4.4
// (16 MiB initial window for test throughput rather than RFC's 65535).
func DefaultConfig() Config {
	return Config{
		InitialWindowSize:    constants.DefaultInitialWindowSize,
		MaxFrameSize:         constants.DefaultMaxFrameSize,
		MaxConcurrentStreams: constants.DefaultMaxConcurrentStrms,
		HeaderTableSize:      constants.DefaultHpackTableSize,
		MaxHeaderListSize:    constants.DefaultMaxHeaderListSize,
		EnablePush:           true,
		PingInterval:         constants.DefaultPingInterval,
		DegradedPongTimeout:  constants.DegradedPongTimeout,
	}
}

// Connection is one server-side HTTP/2 connection: a reader goroutine
// driving the framer, a single write mutex serializing all outbound frames
// (including PING and WINDOW_UPDATE), and the stream table.
type Connection struct {
	conn   *frame.Conn
	config Config

	writeMu     sync.Mutex
	hpackWriter *hpack.Writer
	hpackReader *hpack.Reader

	streamsMu        sync.Mutex
	streams          map[uint32]*Stream
	nextPushStreamID uint32
	highestClientID  uint32
	lastGoodStreamID uint32
	shuttingDown     bool
	pendingHeaders   *headerAssembly

	connSendWindow *window
	connRecvWindow *window

	connRecvUnackedMu sync.Mutex
	connRecvUnacked   int64

	peerSettings Settings
	peerSettingsMu sync.RWMutex

	healthy int32 // atomic bool: 1 = healthy, 0 = degraded

	awaitPings     chan chan struct{} // FIFO of waiters for the next await-pong
	degradedPongCh chan struct{}
	pingMu         sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// NewConnection wraps fc (already past the client connection preface, which
// the caller consumes) as a Connection ready for Serve. The peer's first
// SETTINGS frame is read by Serve.
func NewConnection(fc *frame.Conn, config Config) *Connection {
	if config.InitialWindowSize == 0 {
		config = DefaultConfig()
	}
	c := &Connection{
		conn:           fc,
		config:         config,
		hpackWriter:    hpack.NewWriter(config.HeaderTableSize),
		hpackReader:    hpack.NewReader(config.HeaderTableSize),
		streams:        make(map[uint32]*Stream),
		connSendWindow: newWindow(int64(constants.RFCDefaultInitialWindow)),
		connRecvWindow: newWindow(int64(config.InitialWindowSize)),
		peerSettings:     make(Settings),
		nextPushStreamID: 2,
		healthy:          1,
		degradedPongCh:   make(chan struct{}, 1),
		awaitPings:       make(chan chan struct{}, 64),
		done:             make(chan struct{}),
	}
	return c
}

// Healthy reports whether every degraded-liveness ping so far was answered
// in time. Once false, it stays false: callers should treat the connection
// as dead.
func (c *Connection) Healthy() bool {
	return atomic.LoadInt32(&c.healthy) == 1
}

// WriteInitialSettings sends the connection's opening SETTINGS frame. Must
// be called once, before Serve.
func (c *Connection) WriteInitialSettings() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteSettings(
		frame.Setting{ID: frame.SettingHeaderTableSize, Val: c.config.HeaderTableSize},
		frame.Setting{ID: frame.SettingMaxConcurrentStreams, Val: c.config.MaxConcurrentStreams},
		frame.Setting{ID: frame.SettingInitialWindowSize, Val: c.config.InitialWindowSize},
		frame.Setting{ID: frame.SettingMaxFrameSize, Val: c.config.MaxFrameSize},
		frame.Setting{ID: frame.SettingMaxHeaderListSize, Val: c.config.MaxHeaderListSize},
	)
}

// Serve runs the reader loop until a frame read fails (typically because the
// underlying socket was closed) or a frame handler returns an error. The
// first frame read must be SETTINGS.
func (c *Connection) Serve() error {
	first, err := c.conn.ReadFrame()
	if err != nil {
		return err
	}
	if _, ok := first.(*xhttp2.SettingsFrame); !ok {
		c.goAwayAndClose(frame.ErrCodeProtocol)
		return errors.NewProtocolError("http2-serve", "first frame was not SETTINGS", nil)
	}
	if err := c.handleSettings(first.(*xhttp2.SettingsFrame)); err != nil {
		return err
	}

	if c.config.PingInterval > 0 {
		go c.pingLoop()
	}

	for {
		f, err := c.conn.ReadFrame()
		if err != nil {
			c.teardown()
			return err
		}
		if err := c.dispatchFrame(f); err != nil {
			c.teardown()
			return err
		}
	}
}

func (c *Connection) dispatchFrame(f frame.Frame) error {
	switch fr := f.(type) {
	case *xhttp2.SettingsFrame:
		return c.handleSettings(fr)
	case *xhttp2.HeadersFrame:
		return c.handleHeaders(fr)
	case *xhttp2.ContinuationFrame:
		return c.handleContinuation(fr)
	case *xhttp2.DataFrame:
		return c.handleData(fr)
	case *xhttp2.WindowUpdateFrame:
		return c.handleWindowUpdate(fr)
	case *xhttp2.PingFrame:
		return c.handlePing(fr)
	case *xhttp2.RSTStreamFrame:
		return c.handleRSTStream(fr)
	case *xhttp2.GoAwayFrame:
		c.teardown()
		return nil
	case *xhttp2.PriorityFrame:
		return nil // parsed, no state stored beyond acceptance
	default:
		return nil // unknown frame types are silently skipped by the framer itself
	}
}

func (c *Connection) teardown() {
	c.streamsMu.Lock()
	for _, s := range c.streams {
		s.setState(StateClosed)
	}
	c.streamsMu.Unlock()
	c.connSendWindow.Close()
	c.connRecvWindow.Close()
	c.closeOnce.Do(func() { close(c.done) })
}

// Done returns a channel closed once the connection's reader loop exits.
func (c *Connection) Done() <-chan struct{} { return c.done }
