package wsrelay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"realtalk/internal/domain"
	"realtalk/internal/ports"
	"realtalk/internal/realtime"
)

const maxSessionResponseBytes = 1 << 20

// Config controls the alternate provider's session and signaling endpoints.
type Config struct {
	APIBaseURL string
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     *slog.Logger
}

// Signaler implements ports.Signaler with an ephemeral key request followed
// by a websocket ping/offer/answer exchange.
type Signaler struct {
	cfg Config
}

func NewSignaler(cfg Config) *Signaler {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = domain.ProviderAlternate.Profile().BaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Signaler{cfg: cfg}
}

func (s *Signaler) Negotiate(ctx context.Context, cfg domain.SessionConfig, offerSDP string, sink ports.CandidateSink) (string, error) {
	cfg = cfg.WithDefaults()
	key, err := s.FetchEphemeralKey(ctx, cfg.APIKey, cfg)
	if err != nil {
		return "", err
	}
	return s.Exchange(ctx, key, cfg.Model, offerSDP, sink)
}

type sessionResponse struct {
	ClientSecret *struct {
		Value string `json:"value"`
	} `json:"client_secret"`
}

// FetchEphemeralKey creates a session with the full configuration and
// returns its client secret.
func (s *Signaler) FetchEphemeralKey(ctx context.Context, apiKey string, cfg domain.SessionConfig) (string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return "", domain.NewStateError("REALTALK_ALT_API_KEY is not configured")
	}
	base, err := s.baseURL()
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(realtime.NewSessionRequest(cfg))
	if err != nil {
		return "", domain.NewTransportError("failed to encode session request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/realtime/sessions", bytes.NewReader(body))
	if err != nil {
		return "", domain.NewTransportError("failed to build session request", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", domain.NewTransportError("failed to request ephemeral key", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxSessionResponseBytes))
	if err != nil {
		return "", domain.NewTransportError("failed to read session response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := strings.TrimSpace(string(payload))
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return "", domain.NewProtocolError(resp.StatusCode, fmt.Sprintf("session request rejected: %s", message))
	}

	var decoded sessionResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", domain.NewProtocolError(resp.StatusCode, "session response is not valid JSON")
	}
	if decoded.ClientSecret == nil || strings.TrimSpace(decoded.ClientSecret.Value) == "" {
		return "", domain.NewProtocolError(resp.StatusCode, "session response has no client_secret.value")
	}
	return decoded.ClientSecret.Value, nil
}

// Exchange runs the websocket signaling round trip and returns the answer
// SDP. Remote candidates are forwarded to sink as they arrive. It returns
// exactly once: on answer, on a server error message, on a transport
// failure, or when ctx is done.
func (s *Signaler) Exchange(ctx context.Context, ephemeralKey string, model string, offerSDP string, sink ports.CandidateSink) (string, error) {
	wsURL, err := s.buildSignalingURL(ephemeralKey, model)
	if err != nil {
		return "", err
	}

	conn, resp, err := s.cfg.Dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return "", domain.NewProtocolError(resp.StatusCode, "signaling websocket handshake rejected")
		}
		return "", domain.NewTransportError("failed to connect to signaling websocket", err)
	}

	pending := newPendingExchange(conn, offerSDP, sink, s.cfg.Logger)
	go pending.run()

	select {
	case result := <-pending.result:
		_ = conn.Close()
		return result.sdp, result.err
	case <-ctx.Done():
		_ = conn.Close()
		return "", domain.NewTransportError("signaling exchange cancelled", ctx.Err())
	}
}

func (s *Signaler) baseURL() (string, error) {
	base := strings.TrimRight(strings.TrimSpace(s.cfg.APIBaseURL), "/")
	if base == "" {
		return "", domain.NewStateError("REALTALK_ALT_API_BASE is not configured")
	}
	return base, nil
}

func (s *Signaler) buildSignalingURL(ephemeralKey string, model string) (string, error) {
	base, err := s.baseURL()
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	wsURL, err := url.Parse(base + "/realtime/ws")
	if err != nil {
		return "", domain.NewTransportError("invalid alternate API base URL", err)
	}
	query := wsURL.Query()
	query.Set("client_secret", ephemeralKey)
	query.Set("model", model)
	wsURL.RawQuery = query.Encode()
	return wsURL.String(), nil
}
