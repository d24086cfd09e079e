package domain

import (
	"fmt"
	"strings"
)

// Provider selects the realtime service and its signaling protocol.
type Provider string

const (
	// ProviderPrimary exchanges SDP in a single HTTP request.
	ProviderPrimary Provider = "primary"
	// ProviderAlternate fetches an ephemeral key and signals over a websocket.
	ProviderAlternate Provider = "alternate"
)

// SignalingProtocol names how a provider negotiates the peer connection.
type SignalingProtocol string

const (
	SignalingHTTPSDP   SignalingProtocol = "http_sdp"
	SignalingWebSocket SignalingProtocol = "websocket"
)

// DefaultTurnDetection is the server-side voice activity policy.
const DefaultTurnDetection = "server_vad"

// ProviderProfile holds the static behavior of one provider.
type ProviderProfile struct {
	Name                      string
	BaseURL                   string
	Protocol                  SignalingProtocol
	DefaultModel              string
	DefaultVoice              string
	DefaultTranscriptionModel string
}

var providerProfiles = map[Provider]ProviderProfile{
	ProviderPrimary: {
		Name:                      "OpenAI",
		BaseURL:                   "https://api.openai.com/v1",
		Protocol:                  SignalingHTTPSDP,
		DefaultModel:              "gpt-4o-realtime-preview-2024-12-17",
		DefaultVoice:              "alloy",
		DefaultTranscriptionModel: "whisper-1",
	},
	// The alternate service has no public default host; it is configured
	// through REALTALK_ALT_API_BASE.
	ProviderAlternate: {
		Name:                      "Alternate",
		Protocol:                  SignalingWebSocket,
		DefaultModel:              "gpt-4o-realtime-preview",
		DefaultVoice:              "verse",
		DefaultTranscriptionModel: "whisper-1",
	},
}

// Providers lists every supported provider in display order.
func Providers() []Provider {
	return []Provider{ProviderPrimary, ProviderAlternate}
}

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	_, ok := providerProfiles[p]
	return ok
}

// Profile returns the static profile for p. Unknown providers get the zero profile.
func (p Provider) Profile() ProviderProfile {
	return providerProfiles[p]
}

// ParseProvider accepts the canonical names plus the vendor aliases used in
// configuration files.
func ParseProvider(value string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "primary", "openai":
		return ProviderPrimary, nil
	case "alternate", "alt", "wsrelay":
		return ProviderAlternate, nil
	default:
		return "", fmt.Errorf("unknown provider %q", value)
	}
}
