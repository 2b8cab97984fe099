package http2

import (
	"net"
	"testing"
	"time"

	xhttp2 "golang.org/x/net/http2"

	"github.com/square/okhttp-sub007/pkg/frame"
)

func TestHandlePingAcksNonAckPing(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	clientFC := frame.NewConn(a, 0)
	serverFC := frame.NewConn(b, 0)
	c := NewConnection(serverFC, DefaultConfig())

	payload := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	go clientFC.WritePing(false, payload)
	pf := readFrameAs[*xhttp2.PingFrame](t, serverFC)

	done := make(chan error, 1)
	go func() { done <- c.handlePing(pf) }()

	ack := readFrameAs[*xhttp2.PingFrame](t, clientFC)
	if !ack.IsAck() || ack.Data != payload {
		t.Fatalf("ack frame = %+v, want ack echoing %v", ack, payload)
	}
	if err := <-done; err != nil {
		t.Fatalf("handlePing() error: %v", err)
	}
}

func TestHandlePingWakesAwaitWaiter(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	clientFC := frame.NewConn(a, 0)
	serverFC := frame.NewConn(b, 0)
	c := NewConnection(serverFC, DefaultConfig())

	awaitDone := make(chan error, 1)
	go func() { awaitDone <- c.AwaitPongs() }()

	pf := readFrameAs[*xhttp2.PingFrame](t, clientFC)
	if pf.IsAck() || pf.Data != awaitPingPayload {
		t.Fatalf("ping frame = %+v, want non-ack await-ping", pf)
	}

	go clientFC.WritePing(true, pf.Data)
	ack := readFrameAs[*xhttp2.PingFrame](t, serverFC)

	if err := c.handlePing(ack); err != nil {
		t.Fatalf("handlePing() error: %v", err)
	}

	select {
	case err := <-awaitDone:
		if err != nil {
			t.Fatalf("AwaitPongs() error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("AwaitPongs() did not return after matching pong")
	}
}

func TestHandlePingIgnoresUnsolicitedAck(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	clientFC := frame.NewConn(a, 0)
	serverFC := frame.NewConn(b, 0)
	c := NewConnection(serverFC, DefaultConfig())

	go clientFC.WritePing(true, [8]byte{9, 9, 9})
	pf := readFrameAs[*xhttp2.PingFrame](t, serverFC)

	if err := c.handlePing(pf); err != nil {
		t.Fatalf("handlePing() error: %v", err)
	}
}
