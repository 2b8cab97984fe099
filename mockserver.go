// Package okhttp provides a scriptable in-process mock HTTP server for Go,
// supporting HTTP/1.1 and HTTP/2 (prior-knowledge and ALPN), WebSocket
// handshakes, and adversarial socket behaviors for driving a client's error
// paths under test.
package okhttp

import (
	"github.com/square/okhttp-sub007/pkg/dispatch"
	"github.com/square/okhttp-sub007/pkg/http2"
	"github.com/square/okhttp-sub007/pkg/mockserver"
	"github.com/square/okhttp-sub007/pkg/record"
	"github.com/square/okhttp-sub007/pkg/response"
	"github.com/square/okhttp-sub007/pkg/tlsconfig"
)

// Version is the current version of this module.
const Version = "1.0.0"

// GetVersion returns the current version of this module.
func GetVersion() string {
	return Version
}

// Re-export the public surface so callers only need this one import.
type (
	// Server is a scriptable mock HTTP server.
	Server = mockserver.Server

	// ServerConfig controls how a Server accepts and serves connections.
	ServerConfig = mockserver.Config

	// Dispatcher selects a response for each recorded request.
	Dispatcher = dispatch.Dispatcher

	// QueueDispatcher is the default FIFO Dispatcher.
	QueueDispatcher = dispatch.QueueDispatcher

	// FuncDispatcher adapts a plain function into a Dispatcher.
	FuncDispatcher = dispatch.FuncDispatcher

	// Request is one recorded exchange.
	Request = record.Request

	// Headers is an ordered, duplicate-preserving header multimap.
	Headers = response.Headers

	// HeaderField is a single header entry.
	HeaderField = response.HeaderField

	// MockResponse is an immutable scripted response.
	MockResponse = response.MockResponse

	// ResponseBuilder constructs a MockResponse.
	ResponseBuilder = response.Builder

	// SocketEffect is an adverse action injected at a request/response phase.
	SocketEffect = response.SocketEffect

	// PushPromise describes a server-initiated HTTP/2 sub-stream.
	PushPromise = response.PushPromise

	// Settings is a sparse HTTP/2 SETTINGS payload.
	Settings = response.Settings

	// WebSocketListener receives the raw connection after a successful
	// WebSocket upgrade handshake.
	WebSocketListener = response.WebSocketListener

	// StreamHandler claims the raw socket after headers are written.
	StreamHandler = response.StreamHandler

	// ReadWriteFlusher is the minimal socket surface handed to a
	// StreamHandler or WebSocketListener.
	ReadWriteFlusher = response.ReadWriteFlusher

	// Protocol names an ALPN protocol a Server may negotiate.
	Protocol = tlsconfig.Protocol

	// HTTP2Config carries a Server's local HTTP/2 settings.
	HTTP2Config = http2.Config
)

// Re-export the recognized ALPN protocols.
const (
	HTTP1_1          = tlsconfig.HTTP1_1
	H2               = tlsconfig.H2
	H2PriorKnowledge = tlsconfig.H2PriorKnowledge
)

// Re-export the adverse-action constructors.
var (
	CloseSocket        = response.CloseSocket
	ShutdownConnection = response.ShutdownConnection
	CloseStream        = response.CloseStream
	Stall              = response.Stall
	NewBuilder         = response.NewBuilder
	NewQueueDispatcher = dispatch.NewQueueDispatcher
	NewFuncDispatcher  = dispatch.NewFuncDispatcher
	KeepOpenResponse   = dispatch.KeepOpenResponse
	DefaultHTTP2Config = http2.DefaultConfig
)

// NewServer creates a Server that dispatches via d (or a fresh
// QueueDispatcher if d is nil) using config.
func NewServer(d Dispatcher, config ServerConfig) *Server {
	return mockserver.New(d, config)
}
