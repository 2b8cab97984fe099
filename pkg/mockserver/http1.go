package mockserver

import (
	"strings"
	"time"

	"github.com/square/okhttp-sub007/pkg/buffer"
	"github.com/square/okhttp-sub007/pkg/constants"
	"github.com/square/okhttp-sub007/pkg/errors"
	"github.com/square/okhttp-sub007/pkg/record"
	"github.com/square/okhttp-sub007/pkg/request"
	"github.com/square/okhttp-sub007/pkg/response"
	"github.com/square/okhttp-sub007/pkg/timing"
	"github.com/square/okhttp-sub007/pkg/wsupgrade"
)

// serveHTTP1 runs the per-connection loop described in spec §4.6: read one
// request, dispatch it, serve the response, repeat until the connection
// closes or a scripted effect ends it.
func (s *Server) serveHTTP1(c *connState) {
	for {
		reuse, err := s.exchangeHTTP1(c)
		if err != nil || !reuse {
			return
		}
		select {
		case <-c.closed():
			return
		default:
		}
	}
}

// exchangeHTTP1 performs one request/response cycle, returning reuse=true
// if the connection should be read again for another exchange.
func (s *Server) exchangeHTTP1(c *connState) (reuse bool, err error) {
	timer := timing.NewTimer()
	peek := s.dispatcher.Peek()

	if effect := peek.OnRequestStart(); effect != nil {
		if applied := c.applySocketEffect(effect); applied {
			s.requests.Append(&record.Request{
				ConnectionIndex: c.connectionIndex,
				ExchangeIndex:   c.nextExchangeIndex(),
				Handshake:       c.handshake,
				Received:        time.Now(),
				Failure:         errors.NewIOError("on-request-start", nil),
			})
			return false, nil
		}
	}

	line, ok, err := request.ReadLine(c.br)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil // peer closed between exchanges
	}

	headers, err := request.ReadHeaders(c.br)
	if err != nil {
		return false, err
	}

	req := &record.Request{
		RequestLine:          record.RequestLine{Method: line.Method, Target: line.Target, Version: line.Version},
		Headers:              headers,
		ConnectionIndex:      c.connectionIndex,
		ExchangeIndex:        c.nextExchangeIndex(),
		Handshake:            c.handshake,
		HandshakeServerNames: c.serverNames,
		Received:             time.Now(),
	}

	if strings.EqualFold(line.Method, "CONNECT") {
		return s.handleConnect(c, req)
	}

	if !peek.DoNotReadRequestBody() {
		timer.StartRequestBody()
		err := s.readHTTP1Body(c, req, peek)
		timer.EndRequestBody()
		if err != nil {
			req.Failure = err
			s.requests.Append(req)
			return false, err
		}
	}

	resp, err := s.dispatcher.Dispatch(req)
	if err != nil {
		req.Failure = err
	}
	s.requests.Append(req)
	if err != nil {
		return false, err
	}

	if isWebSocketUpgrade(headers) && resp.BodyKind() == response.BodyKindWebSocket {
		return s.handleWebSocketUpgrade(c, headers, resp)
	}

	return s.writeHTTP1Response(c, req, resp, timer)
}

func (s *Server) readHTTP1Body(c *connState, req *record.Request, peek *response.MockResponse) error {
	headers := req.Headers
	chunked := request.IsChunked(headers)
	contentLength, hasLength := request.ContentLength(headers)
	if !chunked && (!hasLength || contentLength == 0 || !request.PermitsBody(req.RequestLine.Method)) {
		return nil
	}

	tb := request.NewTruncatingBuffer(s.config.BodyLimit)
	sink := buffer.Sink(buffer.NewWriterSink(tb, nil, nil))
	if bytesPerPeriod, period := peek.Throttle(); period > 0 {
		sink = buffer.NewThrottledSink(sink, int(bytesPerPeriod), period, c.closed())
	}
	if effect := peek.OnRequestBody(); effect != nil {
		triggerAt := int64(-1) // chunked: unknown total length, fire immediately
		if hasLength {
			triggerAt = contentLength / 2
		}
		sink = buffer.NewTriggerSink(sink, triggerAt, func() { c.applySocketEffect(effect) })
	}

	var result request.BodyResult
	var err error
	if chunked {
		result, err = request.ReadChunked(c.br, sink, tb)
	} else {
		result, err = request.ReadContentLength(c.br, contentLength, sink, tb)
	}
	if err != nil {
		return err
	}

	req.Body = result.Captured
	req.BodySize = result.BodySize
	req.ChunkSizes = result.ChunkSizes
	req.Trailers = result.Trailers
	return nil
}

func (s *Server) writeHTTP1Response(c *connState, req *record.Request, resp *response.MockResponse, timer *timing.Timer) (reuse bool, err error) {
	defer func() {
		m := timer.Metrics()
		req.Metrics = &m
	}()

	for _, info := range resp.InformationalResponses() {
		if err := response.WriteHTTP1(c.bw, info, c.closed(), nil, nil); err != nil {
			return false, err
		}
	}

	var triggerFired func()
	if effect := resp.OnResponseBody(); effect != nil {
		triggerFired = func() { c.applySocketEffect(effect) }
	}

	if effect := resp.OnResponseStart(); effect != nil {
		if applied := c.applySocketEffect(effect); applied {
			return false, nil
		}
	}

	timer.StartHeadersWrite()
	timer.StartBodyWrite()
	if err := response.WriteHTTP1(c.bw, resp, c.closed(), nil, triggerFired); err != nil {
		timer.EndBodyWrite()
		timer.EndHeadersWrite()
		return false, err
	}
	timer.EndBodyWrite()
	timer.EndHeadersWrite()

	if resp.BodyKind() == response.BodyKindStream && resp.StreamHandler() != nil {
		rw := &flusherConn{wsupgrade.NewFrameConn(c.conn, c.br), c.bw}
		if err := resp.StreamHandler()(rw); err != nil {
			return false, err
		}
		return false, nil
	}

	if effect := resp.OnResponseEnd(); effect != nil {
		c.applySocketEffect(effect)
	}
	if resp.ShutdownServer() {
		s.requestShutdown()
	}

	if v, ok := resp.Headers().Get("Connection"); ok && strings.EqualFold(v, "close") {
		return false, nil
	}
	return true, nil
}

// applySocketEffect carries out a scripted adverse action. It returns true
// if the effect ended the exchange (the caller should stop processing this
// request immediately); Stall blocks until the connection closes or
// constants.MaxStallDuration passes.
func (c *connState) applySocketEffect(effect *response.SocketEffect) bool {
	switch effect.Kind {
	case response.SocketEffectCloseSocket:
		c.closeSocket(effect.ShutdownInput, effect.ShutdownOutput)
		return true
	case response.SocketEffectShutdownConnection:
		c.close()
		return true
	case response.SocketEffectCloseStream:
		c.close()
		return true
	case response.SocketEffectStall:
		select {
		case <-c.closed():
		case <-time.After(constants.MaxStallDuration):
		}
		return true
	default:
		return false
	}
}

func isWebSocketUpgrade(headers record.Headers) bool {
	upgrade, ok := headers.Get("Upgrade")
	if !ok || !strings.EqualFold(strings.TrimSpace(upgrade), "websocket") {
		return false
	}
	conn, ok := headers.Get("Connection")
	return ok && strings.Contains(strings.ToLower(conn), "upgrade")
}

func (s *Server) handleWebSocketUpgrade(c *connState, headers record.Headers, resp *response.MockResponse) (bool, error) {
	key, _ := headers.Get("Sec-WebSocket-Key")
	accept := wsupgrade.Accept(key)

	upgradeResp := response.NewBuilder().
		Code(101).
		Message("Switching Protocols").
		AddHeader("Upgrade", "websocket").
		AddHeader("Connection", "Upgrade").
		AddHeader("Sec-WebSocket-Accept", accept).
		Build()

	if err := response.WriteHTTP1(c.bw, upgradeResp, c.closed(), nil, nil); err != nil {
		return false, err
	}

	listener := resp.WebSocketListener()
	if listener == nil {
		return false, nil
	}
	wsConn := wsupgrade.NewFrameConn(c.conn, c.br)
	go listener.OnOpen(&flusherConn{wsConn, c.bw})
	return false, nil
}

// flusherConn adapts a wsupgrade.FrameConn plus the connection's shared
// bufio.Writer into a response.ReadWriteFlusher for a streamHandler/
// WebSocketListener hand-off.
type flusherConn struct {
	*wsupgrade.FrameConn
	bw interface {
		Write(p []byte) (int, error)
		Flush() error
	}
}

func (f *flusherConn) Write(p []byte) (int, error) { return f.bw.Write(p) }
func (f *flusherConn) Flush() error                { return f.bw.Flush() }
