package mockserver

import (
	"github.com/square/okhttp-sub007/pkg/record"
	"github.com/square/okhttp-sub007/pkg/response"
)

// handleConnect serves a CONNECT tunnel request: the dispatcher still picks
// the response (so a test can script a tunnel failure). After a 2xx response
// marked InTunnel, protocol negotiation runs again on the same connection
// (the client is expected to start a TLS handshake, or plain HTTP/2,
// immediately after) and the exchange continues as HTTP/2 or HTTP/1, per
// spec §4.6. Any other response ends the connection.
func (s *Server) handleConnect(c *connState, req *record.Request) (reuse bool, err error) {
	resp, dispatchErr := s.dispatcher.Dispatch(req)
	if dispatchErr != nil {
		req.Failure = dispatchErr
	}
	s.requests.Append(req)
	if dispatchErr != nil {
		return false, dispatchErr
	}

	if err := response.WriteHTTP1(c.bw, resp, c.closed(), nil, nil); err != nil {
		return false, err
	}

	if resp.Code() < 200 || resp.Code() >= 300 || !resp.InTunnel() {
		return false, nil
	}

	// A successful CONNECT leaves the same socket open; the next call to
	// serveHTTP1's loop re-reads a request line, which now arrives either as
	// a TLS ClientHello (if server.negotiateProtocol runs again) or as plain
	// HTTP/2 prior knowledge. Re-run protocol negotiation since a tunneled
	// connection commonly upgrades straight to TLS after the 200.
	protocol, negotiateErr := c.negotiateProtocol()
	if negotiateErr != nil {
		return false, negotiateErr
	}
	if protocol == negotiatedH2 {
		s.serveHTTP2(c)
		return false, nil
	}
	return true, nil
}
