package mockserver

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/square/okhttp-sub007/pkg/errors"
	"github.com/square/okhttp-sub007/pkg/http2"
	"github.com/square/okhttp-sub007/pkg/record"
	"github.com/square/okhttp-sub007/pkg/tlsconfig"
)

// connState is one accepted connection: its socket, buffered I/O, and the
// handshake/exchange bookkeeping the engine needs across the connection's
// lifetime, per spec §4.6.
type connState struct {
	server *Server

	raw  net.Conn
	conn net.Conn // raw, or the *tls.Conn once upgraded
	br   *bufio.Reader
	bw   *bufio.Writer

	connectionIndex int
	exchangeSeq     int64 // atomic: next exchange ordinal on this connection

	handshake   *record.Handshake
	serverNames []string

	closeOnce sync.Once
	closedCh  chan struct{}
}

func newConnState(server *Server, raw net.Conn, index int) *connState {
	return &connState{
		server:          server,
		raw:             raw,
		conn:            raw,
		br:              bufio.NewReader(raw),
		bw:              bufio.NewWriter(raw),
		connectionIndex: index,
		closedCh:        make(chan struct{}),
	}
}

// nextExchangeIndex returns the next 0-based exchange ordinal on this
// connection, atomically: HTTP/1 exchanges run one at a time, but HTTP/2
// streams are dispatched concurrently on their own goroutines.
func (c *connState) nextExchangeIndex() int {
	return int(atomic.AddInt64(&c.exchangeSeq, 1) - 1)
}

// recordHandshakeFailure appends a bookkeeping request for a connection that
// never got past TLS negotiation, scripted (FailHandshake) or real, per
// spec §4.6.
func (c *connState) recordHandshakeFailure(err error) {
	c.server.requests.Append(&record.Request{
		ConnectionIndex: c.connectionIndex,
		ExchangeIndex:   c.nextExchangeIndex(),
		Failure:         err,
		Received:        time.Now(),
	})
}

// closed is a channel closed once this connection has been torn down,
// letting a blocked throttle or stall wake immediately.
func (c *connState) closed() <-chan struct{} { return c.closedCh }

func (c *connState) close() {
	c.closeOnce.Do(func() {
		close(c.closedCh)
		c.conn.Close()
	})
}

// halfCloseReader and halfCloseWriter match (*net.TCPConn) and (*tls.Conn)'s
// CloseRead/CloseWrite, letting closeSocket honor a CloseSocket effect's
// ShutdownInput/ShutdownOutput granularity instead of always tearing down
// the whole connection.
type halfCloseReader interface{ CloseRead() error }
type halfCloseWriter interface{ CloseWrite() error }

// closeSocket applies a scripted CloseSocket effect: a full close if neither
// half-close flag is set (or if both are), otherwise only the requested
// half, so e.g. a client can still read a response while its own writes
// start failing.
func (c *connState) closeSocket(shutdownInput, shutdownOutput bool) {
	if (!shutdownInput && !shutdownOutput) || (shutdownInput && shutdownOutput) {
		c.close()
		return
	}
	if shutdownInput {
		if r, ok := c.conn.(halfCloseReader); ok {
			r.CloseRead()
			return
		}
		c.close()
		return
	}
	if w, ok := c.conn.(halfCloseWriter); ok {
		w.CloseWrite()
		return
	}
	c.close()
}

func (s *Server) serveConnection(raw net.Conn, index int) {
	c := newConnState(s, raw, index)
	s.trackConn(c)
	defer s.untrackConn(c)
	defer c.close()

	protocol, err := c.negotiateProtocol()
	if err != nil {
		return
	}

	switch protocol {
	case negotiatedH2:
		s.serveHTTP2(c)
	default:
		s.serveHTTP1(c)
	}
}

type negotiatedProtocol int

const (
	negotiatedHTTP1 negotiatedProtocol = iota
	negotiatedH2
)

// negotiateProtocol performs the optional TLS handshake and ALPN
// negotiation (or detects HTTP/2 prior knowledge on a plaintext socket),
// mirroring the teacher's client-side upgradeTLS with tls.Server in place
// of tls.Client.
func (c *connState) negotiateProtocol() (negotiatedProtocol, error) {
	cfg := c.server.config

	if cfg.TLSConfig == nil {
		if usesH2PriorKnowledge(cfg.Protocols) {
			if ok, err := c.peekPreface(); err != nil {
				return negotiatedHTTP1, err
			} else if ok {
				return negotiatedH2, nil
			}
		}
		return negotiatedHTTP1, nil
	}

	addr := c.raw.RemoteAddr().String()

	if c.server.dispatcher.Peek().FailHandshake() {
		err := errors.NewHandshakeError(addr, nil)
		c.recordHandshakeFailure(err)
		return negotiatedHTTP1, err
	}

	tlsConn := tls.Server(c.raw, cfg.TLSConfig)
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		c.recordHandshakeFailure(errors.NewHandshakeError(addr, err))
		return negotiatedHTTP1, err
	}

	c.conn = tlsConn
	c.br = bufio.NewReader(tlsConn)
	c.bw = bufio.NewWriter(tlsConn)

	state := tlsConn.ConnectionState()
	c.serverNames = nil
	if state.ServerName != "" {
		c.serverNames = []string{state.ServerName}
	}
	c.handshake = &record.Handshake{
		Version:        tlsVersionName(state.Version),
		CipherSuite:    tls.CipherSuiteName(state.CipherSuite),
		ServerNameSent: state.ServerName,
	}
	for _, cert := range state.PeerCertificates {
		c.handshake.PeerCertificates = append(c.handshake.PeerCertificates, cert.Subject.String())
	}

	if state.NegotiatedProtocol == "h2" {
		return negotiatedH2, nil
	}
	return negotiatedHTTP1, nil
}

// peekPreface checks whether the next 24 bytes are the HTTP/2 connection
// preface without consuming them from anything but c.br's own buffer (br.Peek
// leaves the bytes available for the subsequent real read).
func (c *connState) peekPreface() (bool, error) {
	b, err := c.br.Peek(len(http2.Preface))
	if err != nil {
		return false, nil // short read: let the HTTP/1 path report the real error
	}
	return string(b) == http2.Preface, nil
}

func usesH2PriorKnowledge(protocols []tlsconfig.Protocol) bool {
	for _, p := range protocols {
		if p == tlsconfig.H2PriorKnowledge {
			return true
		}
	}
	return false
}

func tlsVersionName(v uint16) string {
	switch v {
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return "unknown"
	}
}
