// Package mockserver implements the server-side exchange engine (C6) and
// acceptor (C9): a scriptable in-process HTTP server that accepts
// connections, negotiates HTTP/1.1 or HTTP/2 (via ALPN or prior knowledge),
// and serves every request from a pkg/dispatch.Dispatcher, recording each
// one onto a pkg/record.Queue for later assertion, per spec §4.6/§4.9.
package mockserver

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/square/okhttp-sub007/pkg/constants"
	"github.com/square/okhttp-sub007/pkg/dispatch"
	"github.com/square/okhttp-sub007/pkg/http2"
	"github.com/square/okhttp-sub007/pkg/record"
	"github.com/square/okhttp-sub007/pkg/tlsconfig"
)

// Config controls how a Server accepts and serves connections.
type Config struct {
	// Protocols lists the ALPN protocols the server is willing to negotiate,
	// in preference order. Defaults to []Protocol{tlsconfig.HTTP1_1}.
	Protocols []tlsconfig.Protocol

	// TLSConfig, if non-nil, makes the server accept TLS connections
	// (useHttps). Certificate loading is the caller's responsibility.
	TLSConfig *tls.Config

	// BodyLimit caps how many request-body bytes are retained verbatim per
	// recorded exchange; 0 uses constants.DefaultBodyLimit.
	BodyLimit int64

	// HTTP2 carries the server's local HTTP/2 settings; the zero value uses
	// http2.DefaultConfig().
	HTTP2 http2.Config
}

// Server is a scriptable mock HTTP server: one Dispatcher, one Queue of
// recorded requests, and a TCP listener accepting connections on Start.
type Server struct {
	config Config

	dispatcher dispatch.Dispatcher
	requests   *record.Queue

	mu          sync.Mutex
	listener    net.Listener
	hostname    string
	port        int
	started     bool
	closeOnce   sync.Once
	connWG      sync.WaitGroup
	connIndex   int64
	shutdownReq int32 // atomic bool: set once a scripted response asks the server to shut down

	connsMu sync.Mutex
	conns   map[*connState]struct{}
}

// New creates a Server that dispatches via d, or a fresh QueueDispatcher if
// d is nil.
func New(d dispatch.Dispatcher, config Config) *Server {
	if d == nil {
		d = dispatch.NewQueueDispatcher()
	}
	if len(config.Protocols) == 0 {
		config.Protocols = []tlsconfig.Protocol{tlsconfig.HTTP1_1}
	}
	if config.BodyLimit <= 0 {
		config.BodyLimit = constants.DefaultBodyLimit
	}
	return &Server{
		config:     config,
		dispatcher: d,
		requests:   record.NewQueue(),
		conns:      make(map[*connState]struct{}),
	}
}

// Dispatcher returns the server's Dispatcher, for enqueuing scripted
// responses before or during a test.
func (s *Server) Dispatcher() dispatch.Dispatcher { return s.dispatcher }

// Requests returns the queue of recorded requests.
func (s *Server) Requests() *record.Queue { return s.requests }

// Start begins listening on host:port (port 0 picks an ephemeral port) and
// accepting connections in the background. Calling Start twice on an
// already-started Server is a no-op.
func (s *Server) Start(host string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	if host == "" {
		host = "127.0.0.1"
	}
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return err
	}

	if err := tlsconfig.ValidateProtocols(s.config.Protocols); err != nil {
		ln.Close()
		return err
	}

	s.listener = ln
	s.hostname = host
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.started = true

	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		idx := atomic.AddInt64(&s.connIndex, 1) - 1
		s.connWG.Add(1)
		go func() {
			defer s.connWG.Done()
			s.serveConnection(conn, int(idx))
		}()
	}
}

// Port returns the TCP port the server is listening on.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// HostName returns the host the server is listening on.
func (s *Server) HostName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hostname
}

// URL builds an absolute URL for path against this server, using "https" if
// a TLSConfig was configured.
func (s *Server) URL(path string) string {
	scheme := "http"
	if s.config.TLSConfig != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, s.HostName(), s.Port(), path)
}

// Close stops accepting new connections and waits up to
// constants.ShutdownQuiesce for in-flight exchanges to finish naturally,
// force-closing only whatever connections are still open once the quiesce
// window elapses. Idempotent.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		ln := s.listener
		s.mu.Unlock()
		if ln != nil {
			err = ln.Close()
		}

		done := make(chan struct{})
		go func() { s.connWG.Wait(); close(done) }()

		select {
		case <-done:
		case <-time.After(constants.ShutdownQuiesce):
			s.connsMu.Lock()
			for c := range s.conns {
				c.close()
			}
			s.connsMu.Unlock()
			<-done
		}

		s.requests.Close()
		s.dispatcher.Close()
	})
	return err
}

// requestShutdown marks the server for shutdown once the triggering
// exchange's response finishes writing; the acceptor itself is closed from
// a goroutine so the write completes first.
func (s *Server) requestShutdown() {
	if atomic.CompareAndSwapInt32(&s.shutdownReq, 0, 1) {
		go s.Close()
	}
}

func (s *Server) trackConn(c *connState) {
	s.connsMu.Lock()
	s.conns[c] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Server) untrackConn(c *connState) {
	s.connsMu.Lock()
	delete(s.conns, c)
	s.connsMu.Unlock()
}
