// Package tlsconfig provides helpers and constants for TLS configuration and
// ALPN protocol negotiation. Certificate loading and hostname verification
// are the caller's responsibility: this package only shapes the tls.Config
// the caller hands to useHttps — it never generates or loads certificates.
package tlsconfig

import (
	"crypto/tls"
	"fmt"
)

// Protocol identifies an application protocol a Server may negotiate.
type Protocol string

const (
	// HTTP1_1 negotiates plain HTTP/1.1, selectable via ALPN or as the default
	// when TLS is not configured at all.
	HTTP1_1 Protocol = "http/1.1"

	// H2 negotiates HTTP/2 via ALPN over TLS.
	H2 Protocol = "h2"

	// H2PriorKnowledge starts HTTP/2 immediately on a plaintext connection,
	// without an ALPN negotiation or an Upgrade handshake.
	H2PriorKnowledge Protocol = "h2_prior_knowledge"
)

// ValidateProtocols checks the server's configured ALPN protocol list.
// H2PriorKnowledge may not be combined with any other protocol, and the list
// must contain at least HTTP1_1 or H2PriorKnowledge.
func ValidateProtocols(protocols []Protocol) error {
	if len(protocols) == 0 {
		return fmt.Errorf("tlsconfig: protocols must not be empty")
	}

	hasPriorKnowledge := false
	hasOther := false
	hasHTTP1 := false
	for _, p := range protocols {
		switch p {
		case H2PriorKnowledge:
			hasPriorKnowledge = true
		case HTTP1_1:
			hasHTTP1 = true
			hasOther = true
		default:
			hasOther = true
		}
	}

	if hasPriorKnowledge && hasOther {
		return fmt.Errorf("tlsconfig: h2_prior_knowledge cannot be combined with any other protocol")
	}
	if !hasPriorKnowledge && !hasHTTP1 {
		return fmt.Errorf("tlsconfig: protocols must contain HTTP/1.1 or h2_prior_knowledge")
	}
	return nil
}

// ALPNProtocols returns the NextProtos list to install on a server tls.Config
// for the given configured protocols (h2_prior_knowledge never touches TLS).
func ALPNProtocols(protocols []Protocol) []string {
	var out []string
	for _, p := range protocols {
		switch p {
		case H2:
			out = append(out, "h2")
		case HTTP1_1:
			out = append(out, "http/1.1")
		}
	}
	return out
}

// SSL/TLS Protocol Versions.
const (
	VersionTLS10 uint16 = tls.VersionTLS10
	VersionTLS11 uint16 = tls.VersionTLS11
	VersionTLS12 uint16 = tls.VersionTLS12
	VersionTLS13 uint16 = tls.VersionTLS13
)

// VersionProfile is a pre-configured min/max TLS version range.
type VersionProfile struct {
	Min         uint16
	Max         uint16
	Description string
}

var (
	// ProfileModern negotiates TLS 1.3 only.
	ProfileModern = VersionProfile{Min: VersionTLS13, Max: VersionTLS13, Description: "TLS 1.3 only"}

	// ProfileSecure negotiates TLS 1.2 or 1.3.
	ProfileSecure = VersionProfile{Min: VersionTLS12, Max: VersionTLS13, Description: "TLS 1.2+"}

	// ProfileCompatible negotiates TLS 1.0 through 1.3, for legacy client tests.
	ProfileCompatible = VersionProfile{Min: VersionTLS10, Max: VersionTLS13, Description: "TLS 1.0+"}
)

// GetVersionName returns a human-readable name for a TLS version constant.
func GetVersionName(version uint16) string {
	switch version {
	case VersionTLS10:
		return "TLS 1.0"
	case VersionTLS11:
		return "TLS 1.1"
	case VersionTLS12:
		return "TLS 1.2"
	case VersionTLS13:
		return "TLS 1.3"
	default:
		return "Unknown"
	}
}

// ApplyVersionProfile applies a pre-configured version profile to a tls.Config.
func ApplyVersionProfile(config *tls.Config, profile VersionProfile) {
	config.MinVersion = profile.Min
	config.MaxVersion = profile.Max
}

// BuildServerConfig clones base (or starts from an empty tls.Config if base is
// nil), installs ALPN NextProtos for the requested protocol list, and leaves
// certificate/key material to the caller — this function never loads or
// generates a certificate.
func BuildServerConfig(base *tls.Config, protocols []Protocol) *tls.Config {
	var cfg *tls.Config
	if base != nil {
		cfg = base.Clone()
	} else {
		cfg = &tls.Config{MinVersion: VersionTLS12}
	}
	if next := ALPNProtocols(protocols); len(next) > 0 {
		cfg.NextProtos = next
	}
	return cfg
}
