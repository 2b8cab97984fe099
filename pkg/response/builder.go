package response

import (
	"fmt"
	"strconv"
	"time"
)

// Builder constructs an immutable MockResponse. Zero value is a valid
// builder defaulting to "HTTP/1.1 200 OK" with no body.
type Builder struct {
	code    int
	status  string
	message string

	headers  Headers
	trailers Headers

	bodyKind          BodyKind
	body              []byte
	chunkedBody       []byte
	maxChunkSize      int
	streamHandler     StreamHandler
	webSocketListener WebSocketListener

	inTunnel               bool
	informationalResponses []*MockResponse

	throttleBytesPerPeriod int64
	throttlePeriod         time.Duration

	headersDelay  time.Duration
	bodyDelay     time.Duration
	trailersDelay time.Duration

	onRequestStart  *SocketEffect
	onRequestBody   *SocketEffect
	onResponseStart *SocketEffect
	onResponseBody  *SocketEffect
	onResponseEnd   *SocketEffect

	pushPromises []PushPromise
	settings     Settings
}

// NewBuilder returns a Builder defaulted to "HTTP/1.1 200 OK".
func NewBuilder() *Builder {
	return &Builder{code: 200}
}

// Code sets the numeric status code; the reason phrase is derived unless
// set with Message.
func (b *Builder) Code(code int) *Builder {
	b.code = code
	b.status = ""
	return b
}

// Message overrides the status line's reason phrase.
func (b *Builder) Message(message string) *Builder {
	b.message = message
	return b
}

// Status sets the status line verbatim, bypassing Code/Message.
func (b *Builder) Status(status string) *Builder {
	b.status = status
	return b
}

// AddHeader appends a header field, preserving duplicates.
func (b *Builder) AddHeader(name, value string) *Builder {
	b.headers = b.headers.Add(name, value)
	return b
}

// SetHeader replaces all existing entries for name with a single value.
func (b *Builder) SetHeader(name, value string) *Builder {
	b.headers = b.headers.Set(name, value)
	return b
}

// RemoveHeader removes all entries for name.
func (b *Builder) RemoveHeader(name string) *Builder {
	b.headers = b.headers.Remove(name)
	return b
}

// ClearHeaders removes every header field set so far.
func (b *Builder) ClearHeaders() *Builder {
	b.headers = nil
	return b
}

// Headers replaces the entire header multimap.
func (b *Builder) Headers(h Headers) *Builder {
	b.headers = h
	return b
}

// Trailers sets the trailer multimap, meaningful only with ChunkedBody.
func (b *Builder) Trailers(t Headers) *Builder {
	b.trailers = t
	return b
}

// Body sets a length-known byte body, clearing any streamHandler or
// webSocketListener previously set and adding a Content-Length header.
func (b *Builder) Body(body []byte) *Builder {
	b.clearBodyVariant()
	b.bodyKind = BodyKindBytes
	b.body = body
	b.headers = b.headers.Set("Content-Length", strconv.Itoa(len(body)))
	return b
}

// BodyString is a convenience wrapper around Body.
func (b *Builder) BodyString(body string) *Builder {
	return b.Body([]byte(body))
}

// ChunkedBody encodes body as a chunked transfer, strips any Content-Length,
// and sets Transfer-Encoding: chunked.
func (b *Builder) ChunkedBody(body []byte, maxChunkSize int) *Builder {
	b.clearBodyVariant()
	b.bodyKind = BodyKindChunked
	b.maxChunkSize = maxChunkSize
	b.body = body
	b.chunkedBody = ChunkEncode(body, maxChunkSize)
	b.headers = b.headers.Remove("Content-Length")
	b.headers = b.headers.Set("Transfer-Encoding", "chunked")
	return b
}

// StreamHandler claims the socket after headers are written.
func (b *Builder) StreamHandler(h StreamHandler) *Builder {
	b.clearBodyVariant()
	b.bodyKind = BodyKindStream
	b.streamHandler = h
	return b
}

// WebSocketUpgrade installs a 101 handshake response and hands the
// post-handshake connection to listener.
func (b *Builder) WebSocketUpgrade(listener WebSocketListener) *Builder {
	b.clearBodyVariant()
	b.bodyKind = BodyKindWebSocket
	b.webSocketListener = listener
	b.code = 101
	b.message = "Switching Protocols"
	return b
}

func (b *Builder) clearBodyVariant() {
	b.body = nil
	b.chunkedBody = nil
	b.streamHandler = nil
	b.webSocketListener = nil
	b.headers = b.headers.Remove("Content-Length")
	b.headers = b.headers.Remove("Transfer-Encoding")
}

// HeadersDelay sets the sleep applied before the status line is written.
func (b *Builder) HeadersDelay(d time.Duration) *Builder {
	b.headersDelay = d
	return b
}

// BodyDelay sets the sleep applied before the body is written.
func (b *Builder) BodyDelay(d time.Duration) *Builder {
	b.bodyDelay = d
	return b
}

// TrailersDelay sets the sleep applied before trailers are written.
func (b *Builder) TrailersDelay(d time.Duration) *Builder {
	b.trailersDelay = d
	return b
}

// ThrottleBody applies a symmetric throttle to both the request reader and
// the response writer.
func (b *Builder) ThrottleBody(bytesPerPeriod int64, period time.Duration) *Builder {
	b.throttleBytesPerPeriod = bytesPerPeriod
	b.throttlePeriod = period
	return b
}

// OnRequestStart sets the effect applied before the request is read.
func (b *Builder) OnRequestStart(effect SocketEffect) *Builder {
	b.onRequestStart = &effect
	return b
}

// OnRequestBody sets the effect applied partway through request body reading.
func (b *Builder) OnRequestBody(effect SocketEffect) *Builder {
	b.onRequestBody = &effect
	return b
}

// OnResponseStart sets the effect applied before the response is written.
func (b *Builder) OnResponseStart(effect SocketEffect) *Builder {
	b.onResponseStart = &effect
	return b
}

// OnResponseBody sets the effect applied partway through response body writing.
func (b *Builder) OnResponseBody(effect SocketEffect) *Builder {
	b.onResponseBody = &effect
	return b
}

// OnResponseEnd sets the effect applied after the response completes.
func (b *Builder) OnResponseEnd(effect SocketEffect) *Builder {
	b.onResponseEnd = &effect
	return b
}

// InTunnel marks this response as satisfying a CONNECT before the connection
// upgrades.
func (b *Builder) InTunnel() *Builder {
	b.inTunnel = true
	return b
}

// AddInformationalResponse appends a 1xx response to be served before this one.
func (b *Builder) AddInformationalResponse(r *MockResponse) *Builder {
	b.informationalResponses = append(b.informationalResponses, r)
	return b
}

// Add100Continue is a convenience wrapper for AddInformationalResponse(100 Continue).
func (b *Builder) Add100Continue() *Builder {
	return b.AddInformationalResponse(NewBuilder().Code(100).Message("Continue").Build())
}

// AddPush appends a server-initiated HTTP/2 push.
func (b *Builder) AddPush(push PushPromise) *Builder {
	b.pushPromises = append(b.pushPromises, push)
	return b
}

// HTTP2Settings sets the SETTINGS frame payload emitted before this response.
func (b *Builder) HTTP2Settings(s Settings) *Builder {
	b.settings = s
	return b
}

// Build finalizes the response. Safe to call multiple times; the result is
// never mutated afterward.
func (b *Builder) Build() *MockResponse {
	status := b.status
	code := b.code
	message := b.message

	if status == "" {
		if code == 0 {
			code = 200
		}
		if message == "" {
			message = defaultMessage(code)
		}
		status = statusLine(code, message)
	}

	r := &MockResponse{
		status:                 status,
		code:                   code,
		message:                message,
		headers:                append(Headers(nil), b.headers...),
		trailers:               append(Headers(nil), b.trailers...),
		bodyKind:               b.bodyKind,
		body:                   b.body,
		chunkedBody:            b.chunkedBody,
		maxChunkSize:           b.maxChunkSize,
		streamHandler:          b.streamHandler,
		webSocketListener:      b.webSocketListener,
		inTunnel:               b.inTunnel,
		informationalResponses: append([]*MockResponse(nil), b.informationalResponses...),
		throttleBytesPerPeriod: b.throttleBytesPerPeriod,
		throttlePeriod:         b.throttlePeriod,
		headersDelay:           b.headersDelay,
		bodyDelay:              b.bodyDelay,
		trailersDelay:          b.trailersDelay,
		onRequestStart:         b.onRequestStart,
		onRequestBody:          b.onRequestBody,
		onResponseStart:        b.onResponseStart,
		onResponseBody:         b.onResponseBody,
		onResponseEnd:          b.onResponseEnd,
		pushPromises:           append([]PushPromise(nil), b.pushPromises...),
		settings:               b.settings,
	}
	return r
}

// ChunkEncode produces pre-chunked wire bytes from body: each chunk is
// "hex-size CRLF bytes CRLF", terminated with "0 CRLF", per spec §4.7.
// WriteHTTP1 follows it with the trailer fields and the closing blank line.
// maxChunkSize <= 0 means "one chunk".
func ChunkEncode(body []byte, maxChunkSize int) []byte {
	if maxChunkSize <= 0 {
		maxChunkSize = len(body)
		if maxChunkSize == 0 {
			maxChunkSize = 1
		}
	}

	var out []byte
	for len(body) > 0 {
		n := maxChunkSize
		if n > len(body) {
			n = len(body)
		}
		out = append(out, []byte(fmt.Sprintf("%x\r\n", n))...)
		out = append(out, body[:n]...)
		out = append(out, '\r', '\n')
		body = body[n:]
	}
	out = append(out, '0', '\r', '\n')
	return out
}
