package mockserver

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/square/okhttp-sub007/pkg/constants"
	"github.com/square/okhttp-sub007/pkg/errors"
	"github.com/square/okhttp-sub007/pkg/frame"
	"github.com/square/okhttp-sub007/pkg/hpack"
	"github.com/square/okhttp-sub007/pkg/http2"
	"github.com/square/okhttp-sub007/pkg/record"
	"github.com/square/okhttp-sub007/pkg/response"
	"github.com/square/okhttp-sub007/pkg/timing"
)

// h2ReadWriter adapts a connection's buffered reader and raw socket into the
// io.ReadWriter frame.NewConn wants: reads go through c.br (so any bytes
// already buffered while peeking the preface are not lost), writes go
// straight to the raw conn since http2.Framer issues one Write per frame and
// has no separate flush step, unlike c.bw.
type h2ReadWriter struct {
	r io.Reader
	w io.Writer
}

func (rw h2ReadWriter) Read(p []byte) (int, error)  { return rw.r.Read(p) }
func (rw h2ReadWriter) Write(p []byte) (int, error) { return rw.w.Write(p) }

// serveHTTP2 consumes the connection preface (already peeked, never
// consumed, by negotiateProtocol) and runs the HTTP/2 connection to
// completion, dispatching one request per stream, per spec §4.4/§4.6.
func (s *Server) serveHTTP2(c *connState) {
	preface := make([]byte, len(http2.Preface))
	if _, err := io.ReadFull(c.br, preface); err != nil || string(preface) != http2.Preface {
		return
	}

	cfg := s.config.HTTP2
	if cfg.InitialWindowSize == 0 {
		cfg = http2.DefaultConfig()
	}

	var conn *http2.Connection
	cfg.OnStream = func(stream *http2.Stream) {
		s.handleHTTP2Stream(c, conn, stream)
	}

	fc := frame.NewConn(h2ReadWriter{r: c.br, w: c.conn}, cfg.MaxFrameSize)
	conn = http2.NewConnection(fc, cfg)

	if err := conn.WriteInitialSettings(); err != nil {
		return
	}
	conn.Serve()
}

// handleHTTP2Stream builds a record.Request from a fully-headered stream,
// waits for its body (unless the dispatcher claims the stream), dispatches,
// and writes the scripted response back onto the stream.
func (s *Server) handleHTTP2Stream(c *connState, conn *http2.Connection, stream *http2.Stream) {
	timer := timing.NewTimer()
	peek := s.dispatcher.Peek()

	if effect := peek.OnRequestStart(); effect != nil {
		s.applyHTTP2SocketEffect(c, conn, stream, effect)
		s.requests.Append(&record.Request{
			RequestLine:     record.RequestLine{Version: "HTTP/2"},
			ConnectionIndex: c.connectionIndex,
			ExchangeIndex:   c.nextExchangeIndex(),
			Handshake:       c.handshake,
			Received:        time.Now(),
			Failure:         errors.NewIOError("on-request-start", nil),
		})
		return
	}

	method, path, headers := splitHTTP2Headers(stream.RequestHeaders())

	req := &record.Request{
		RequestLine:          record.RequestLine{Method: method, Target: path, Version: "HTTP/2"},
		Headers:              headers,
		ConnectionIndex:      c.connectionIndex,
		ExchangeIndex:        c.nextExchangeIndex(),
		Handshake:            c.handshake,
		HandshakeServerNames: c.serverNames,
		Received:             time.Now(),
	}

	if !peek.DoNotReadRequestBody() {
		if effect := peek.OnRequestBody(); effect != nil {
			expected := int64(-1)
			if v, ok := headers.Get("Content-Length"); ok {
				if n, perr := strconv.ParseInt(v, 10, 64); perr == nil && n >= 0 {
					expected = n
				}
			}
			stream.SetRequestBodyTrigger(expected, func() { s.applyHTTP2SocketEffect(c, conn, stream, effect) })
		}
		timer.StartRequestBody()
		select {
		case <-stream.RequestEndedSignal():
		case <-c.closed():
			timer.EndRequestBody()
			return
		}
		timer.EndRequestBody()
		body := stream.RequestBody()
		req.Body = body
		req.BodySize = int64(len(body))
	}

	resp, err := s.dispatcher.Dispatch(req)
	if err != nil {
		req.Failure = err
	}
	s.requests.Append(req)
	if err != nil {
		return
	}

	for _, push := range resp.PushPromises() {
		pushStream, pushErr := conn.PushPromise(stream.ID, push.Method, push.Path, toHTTP2Fields(push.Headers))
		if pushErr != nil || pushStream == nil || push.Response == nil {
			continue
		}
		if err := response.WriteHTTP2(&h2StreamSink{pushStream}, push.Response, nil, nil); err != nil {
			return
		}
	}

	var triggerFired func()
	if effect := resp.OnResponseBody(); effect != nil {
		triggerFired = func() { s.applyHTTP2SocketEffect(c, conn, stream, effect) }
	}

	timer.StartHeadersWrite()
	timer.StartBodyWrite()
	werr := response.WriteHTTP2(&h2StreamSink{stream}, resp, nil, triggerFired)
	timer.EndBodyWrite()
	timer.EndHeadersWrite()
	m := timer.Metrics()
	req.Metrics = &m
	if werr != nil {
		return
	}

	if effect := resp.OnResponseEnd(); effect != nil {
		s.applyHTTP2SocketEffect(c, conn, stream, effect)
	}
	if resp.ShutdownServer() {
		s.requestShutdown()
	}
}

// applyHTTP2SocketEffect carries out a scripted adverse action at the
// stream or connection level, mirroring connState.applySocketEffect's
// HTTP/1 behavior but preferring a stream-scoped reset when possible.
func (s *Server) applyHTTP2SocketEffect(c *connState, conn *http2.Connection, stream *http2.Stream, effect *response.SocketEffect) {
	switch effect.Kind {
	case response.SocketEffectCloseStream:
		conn.ResetStream(stream.ID, frame.ErrCode(effect.Http2ErrorCode))
	case response.SocketEffectCloseSocket:
		c.closeSocket(effect.ShutdownInput, effect.ShutdownOutput)
	case response.SocketEffectShutdownConnection:
		conn.Shutdown()
		c.close()
	case response.SocketEffectStall:
		select {
		case <-c.closed():
		case <-time.After(constants.MaxStallDuration):
		}
	}
}

// splitHTTP2Headers separates HTTP/2 pseudo-headers (:method, :path,
// :authority, :scheme) from regular request headers, per RFC 7540 §8.1.2.3.
func splitHTTP2Headers(fields []hpack.HeaderField) (method, path string, headers record.Headers) {
	for _, f := range fields {
		if !strings.HasPrefix(f.Name, ":") {
			headers = append(headers, record.HeaderField{Name: f.Name, Value: f.Value})
			continue
		}
		switch f.Name {
		case ":method":
			method = f.Value
		case ":path":
			path = f.Value
		case ":authority":
			headers = append(headers, record.HeaderField{Name: "Host", Value: f.Value})
		}
	}
	return method, path, headers
}

func toHTTP2Fields(headers response.Headers) []http2.ResponseHeaderField {
	fields := make([]http2.ResponseHeaderField, len(headers))
	for i, h := range headers {
		fields[i] = http2.ResponseHeaderField{Name: h.Name, Value: h.Value}
	}
	return fields
}

// h2StreamSink adapts *http2.Stream to response.StreamSink, translating
// between response.HeaderField and http2.ResponseHeaderField so neither
// package needs to import the other.
type h2StreamSink struct {
	stream *http2.Stream
}

func (h *h2StreamSink) WriteHeaders(fields []response.HeaderField, endStream bool) error {
	return h.stream.WriteHeaders(toHTTP2Fields(response.Headers(fields)), endStream)
}

func (h *h2StreamSink) WriteData(data []byte, endStream bool) error {
	return h.stream.WriteData(data, endStream)
}

func (h *h2StreamSink) WriteTrailers(fields []response.HeaderField) error {
	return h.stream.WriteTrailers(toHTTP2Fields(response.Headers(fields)))
}
