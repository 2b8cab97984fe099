package http2

import (
	"net"
	"testing"

	xhttp2 "golang.org/x/net/http2"

	"github.com/square/okhttp-sub007/pkg/frame"
)

// readFrameAs drains one frame off writerConn and type-asserts it.
func readFrameAs[T any](t *testing.T, fc *frame.Conn) T {
	t.Helper()
	f, err := fc.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error: %v", err)
	}
	v, ok := f.(T)
	if !ok {
		t.Fatalf("ReadFrame() = %T, want %T", f, v)
	}
	return v
}

func TestHandleDataAppendsBodyAndMarksEnded(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	clientFC := frame.NewConn(a, 0)
	serverFC := frame.NewConn(b, 0)

	c := NewConnection(serverFC, DefaultConfig())
	s := newStream(1, c, 65535, int64(c.config.InitialWindowSize))
	c.streams[1] = s
	s.setState(StateOpen)

	go clientFC.WriteData(1, true, []byte("hello"))
	df := readFrameAs[*xhttp2.DataFrame](t, serverFC)

	if err := c.handleData(df); err != nil {
		t.Fatalf("handleData() error: %v", err)
	}
	if string(s.RequestBody()) != "hello" {
		t.Fatalf("RequestBody() = %q, want %q", s.RequestBody(), "hello")
	}
	if !s.RequestEnded() {
		t.Fatal("RequestEnded() = false, want true")
	}
	if s.State() != StateHalfClosedRemote {
		t.Fatalf("State() = %v, want %v", s.State(), StateHalfClosedRemote)
	}
}

func TestHandleDataOnUnknownStreamErrors(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	clientFC := frame.NewConn(a, 0)
	serverFC := frame.NewConn(b, 0)
	c := NewConnection(serverFC, DefaultConfig())

	go clientFC.WriteData(7, true, []byte("x"))
	df := readFrameAs[*xhttp2.DataFrame](t, serverFC)

	if err := c.handleData(df); err == nil {
		t.Fatal("handleData() = nil, want error for unknown stream")
	}
}

func TestHandleWindowUpdateCreditsConnectionWindow(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	clientFC := frame.NewConn(a, 0)
	serverFC := frame.NewConn(b, 0)
	c := NewConnection(serverFC, DefaultConfig())

	before := c.connSendWindow.Size()
	go clientFC.WriteWindowUpdate(0, 500)
	wf := readFrameAs[*xhttp2.WindowUpdateFrame](t, serverFC)

	if err := c.handleWindowUpdate(wf); err != nil {
		t.Fatalf("handleWindowUpdate() error: %v", err)
	}
	if c.connSendWindow.Size() != before+500 {
		t.Fatalf("connSendWindow.Size() = %d, want %d", c.connSendWindow.Size(), before+500)
	}
}

func TestHandleWindowUpdateCreditsStreamWindow(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	clientFC := frame.NewConn(a, 0)
	serverFC := frame.NewConn(b, 0)
	c := NewConnection(serverFC, DefaultConfig())
	s := newStream(3, c, 0, int64(c.config.InitialWindowSize))
	c.streams[3] = s

	go clientFC.WriteWindowUpdate(3, 200)
	wf := readFrameAs[*xhttp2.WindowUpdateFrame](t, serverFC)

	if err := c.handleWindowUpdate(wf); err != nil {
		t.Fatalf("handleWindowUpdate() error: %v", err)
	}
	if s.sendWindow.Size() != 200 {
		t.Fatalf("sendWindow.Size() = %d, want 200", s.sendWindow.Size())
	}
}

func TestHandleRSTStreamClosesStream(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	clientFC := frame.NewConn(a, 0)
	serverFC := frame.NewConn(b, 0)
	c := NewConnection(serverFC, DefaultConfig())
	s := newStream(1, c, 65535, int64(c.config.InitialWindowSize))
	c.streams[1] = s
	s.setState(StateOpen)

	go clientFC.WriteRSTStream(1, frame.ErrCodeCancel)
	rf := readFrameAs[*xhttp2.RSTStreamFrame](t, serverFC)

	if err := c.handleRSTStream(rf); err != nil {
		t.Fatalf("handleRSTStream() error: %v", err)
	}
	if s.State() != StateClosed {
		t.Fatalf("State() = %v, want %v", s.State(), StateClosed)
	}
}

func TestWriteDataForStreamSplitsAcrossMaxFrameSize(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	clientFC := frame.NewConn(a, 0)
	serverFC := frame.NewConn(b, 0)

	config := DefaultConfig()
	config.MaxFrameSize = 4
	c := NewConnection(serverFC, config)
	s := newStream(1, c, 1<<20, int64(config.InitialWindowSize))
	c.streams[1] = s

	done := make(chan error, 1)
	go func() { done <- c.writeDataForStream(s, []byte("abcdefgh"), true) }()

	first := readFrameAs[*xhttp2.DataFrame](t, clientFC)
	if string(first.Data()) != "abcd" || first.StreamEnded() {
		t.Fatalf("first frame = %q endStream=%v", first.Data(), first.StreamEnded())
	}
	second := readFrameAs[*xhttp2.DataFrame](t, clientFC)
	if string(second.Data()) != "efgh" || !second.StreamEnded() {
		t.Fatalf("second frame = %q endStream=%v", second.Data(), second.StreamEnded())
	}
	if err := <-done; err != nil {
		t.Fatalf("writeDataForStream() error: %v", err)
	}
}
