package http2

import (
	"net"
	"testing"
	"time"

	xhttp2 "golang.org/x/net/http2"
	xhpack "golang.org/x/net/http2/hpack"

	"github.com/square/okhttp-sub007/pkg/frame"
)

// testClient drives the client side of an HTTP/2 connection over a net.Pipe
// using the raw golang.org/x/net/http2 framer directly, standing in for a
// real client so Connection's server-side behavior can be exercised without
// a full TLS/ALPN handshake.
type testClient struct {
	fr  *xhttp2.Framer
	enc *xhpack.Encoder
	buf *bytesBuf
}

// bytesBuf is a tiny growable buffer used as the hpack encoder's output sink.
type bytesBuf struct{ b []byte }

func (b *bytesBuf) Write(p []byte) (int, error) { b.b = append(b.b, p...); return len(p), nil }
func (b *bytesBuf) Bytes() []byte               { return b.b }
func (b *bytesBuf) Reset()                      { b.b = b.b[:0] }

func newTestClient(conn net.Conn) *testClient {
	buf := &bytesBuf{}
	return &testClient{
		fr:  xhttp2.NewFramer(conn, conn),
		enc: xhpack.NewEncoder(buf),
		buf: buf,
	}
}

func (tc *testClient) encode(fields [][2]string) []byte {
	tc.buf.Reset()
	for _, f := range fields {
		tc.enc.WriteField(xhpack.HeaderField{Name: f[0], Value: f[1]})
	}
	return append([]byte(nil), tc.buf.Bytes()...)
}

func newServerAndClient(t *testing.T, config Config) (*Connection, net.Conn) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	fc := frame.NewConn(serverSide, 0)
	c := NewConnection(fc, config)
	t.Cleanup(func() { serverSide.Close(); clientSide.Close() })
	return c, clientSide
}

func TestServeRejectsNonSettingsFirstFrame(t *testing.T) {
	config := DefaultConfig()
	config.PingInterval = 0
	c, clientConn := newServerAndClient(t, config)
	client := newTestClient(clientConn)

	done := make(chan error, 1)
	go func() { done <- c.Serve() }()

	// drain the server's GOAWAY: net.Pipe is unbuffered, so an unread write
	// would keep Serve from returning
	go func() {
		for {
			if _, err := client.fr.ReadFrame(); err != nil {
				return
			}
		}
	}()

	if err := client.fr.WritePing(false, [8]byte{}); err != nil {
		t.Fatalf("WritePing() error: %v", err)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("Serve() = nil, want protocol error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after a non-SETTINGS first frame")
	}
}

func TestServeHandlesSettingsAndHeaders(t *testing.T) {
	config := DefaultConfig()
	config.PingInterval = 0

	received := make(chan *Stream, 1)
	config.OnStream = func(s *Stream) { received <- s }

	c, clientConn := newServerAndClient(t, config)
	client := newTestClient(clientConn)

	go c.Serve()

	if err := client.fr.WriteSettings(); err != nil {
		t.Fatalf("WriteSettings() error: %v", err)
	}

	// drain the server's ACK of our SETTINGS (and anything written later) in the background
	go func() {
		for {
			if _, err := client.fr.ReadFrame(); err != nil {
				return
			}
		}
	}()

	block := client.encode([][2]string{
		{":method", "GET"},
		{":path", "/hello"},
		{":authority", "example.com"},
		{":scheme", "https"},
	})
	if err := client.fr.WriteHeaders(xhttp2.HeadersFrameParam{
		StreamID:      1,
		BlockFragment: block,
		EndHeaders:    true,
		EndStream:     true,
	}); err != nil {
		t.Fatalf("WriteHeaders() error: %v", err)
	}

	select {
	case s := <-received:
		if s.ID != 1 {
			t.Fatalf("stream ID = %d, want 1", s.ID)
		}
		if !s.RequestEnded() {
			t.Fatalf("RequestEnded() = false, want true")
		}
		var method, path string
		for _, f := range s.RequestHeaders() {
			switch f.Name {
			case ":method":
				method = f.Value
			case ":path":
				path = f.Value
			}
		}
		if method != "GET" || path != "/hello" {
			t.Fatalf("method=%q path=%q", method, path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnStream callback was not invoked")
	}
}

func TestStreamSendWindowCredit(t *testing.T) {
	config := DefaultConfig()
	config.PingInterval = 0
	c, _ := newServerAndClient(t, config)

	s := newStream(1, c, 65535, int64(config.InitialWindowSize))
	c.streams[1] = s

	before := s.sendWindow.Size()
	s.sendWindow.Credit(1000)
	if s.sendWindow.Size() != before+1000 {
		t.Fatalf("sendWindow.Size() = %d, want %d", s.sendWindow.Size(), before+1000)
	}
}

func TestWindowReserveBlocksUntilCredited(t *testing.T) {
	w := newWindow(0)
	done := make(chan int64, 1)
	go func() {
		n, err := w.Reserve(10)
		if err != nil {
			done <- -1
			return
		}
		done <- n
	}()

	select {
	case <-done:
		t.Fatal("Reserve() returned before any credit was available")
	case <-time.After(50 * time.Millisecond):
	}

	w.Credit(10)
	select {
	case n := <-done:
		if n != 10 {
			t.Fatalf("Reserve() = %d, want 10", n)
		}
	case <-time.After(time.Second):
		t.Fatal("Reserve() did not unblock after Credit")
	}
}

func TestWindowCloseWakesReserve(t *testing.T) {
	w := newWindow(0)
	done := make(chan error, 1)
	go func() {
		_, err := w.Reserve(10)
		done <- err
	}()

	w.Close()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Reserve() = nil error after Close, want error")
		}
	case <-time.After(time.Second):
		t.Fatal("Reserve() did not unblock after Close")
	}
}
