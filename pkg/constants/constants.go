// Package constants defines magic numbers and default values used throughout the mock server.
package constants

import "time"

// Connection timeouts and limits.
const (
	DefaultIdleTimeout    = 90 * time.Second
	DefaultAcceptTimeout  = 10 * time.Second
	DefaultReadTimeout    = 30 * time.Second
	DefaultPingInterval   = 15 * time.Second
	DegradedPongTimeout   = 1 * time.Second
	ShutdownQuiesce       = 5 * time.Second
	MaxStallDuration      = 1 * time.Hour
)

// HTTP/2 limits.
const (
	MaxTotalStreams           = 10000
	SettingsAckTimeout        = 10 * time.Second
	DefaultHpackTableSize     = 4096
	DefaultMaxFrameSize       = 16384
	MaxFrameSizeCeiling       = 1<<24 - 1
	DefaultInitialWindowSize  = 16 * 1024 * 1024 // 16MiB, per spec §4.4 (test throughput, not RFC default)
	RFCDefaultInitialWindow   = 65535
	DefaultMaxConcurrentStrms = 100
	DefaultMaxHeaderListSize  = 10 * 1024 * 1024
)

// HTTP/1 limits.
const (
	MaxContentLength = 1024 * 1024 * 1024 * 1024 // 1TB
)

// Buffer limits.
const (
	DefaultBodyLimit = 1024 * 1024 // 1MB default captured-body prefix
	MaxChunkSize     = 16 * 1024 * 1024
)
