package openai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"realtalk/internal/domain"
	"realtalk/internal/ports"
)

const maxAnswerBytes = 1 << 20

// Config controls the OpenAI realtime signaling endpoint.
type Config struct {
	APIBaseURL string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Signaler implements ports.Signaler with a single SDP-over-HTTP request.
type Signaler struct {
	cfg Config
}

func NewSignaler(cfg Config) *Signaler {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = domain.ProviderPrimary.Profile().BaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Signaler{cfg: cfg}
}

// Negotiate posts the offer and returns the answer SDP. Remote candidates
// are embedded in the answer, so sink is unused.
func (s *Signaler) Negotiate(ctx context.Context, cfg domain.SessionConfig, offerSDP string, _ ports.CandidateSink) (string, error) {
	cfg = cfg.WithDefaults()
	return s.ExchangeOffer(ctx, cfg.APIKey, cfg.Model, offerSDP)
}

// ExchangeOffer trades localSDP for the remote SDP answer. It never retries.
func (s *Signaler) ExchangeOffer(ctx context.Context, apiKey string, model string, localSDP string) (string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return "", domain.NewStateError("OpenAI API key is not configured")
	}

	endpoint, err := buildRealtimeURL(s.cfg.APIBaseURL, model)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(localSDP))
	if err != nil {
		return "", domain.NewTransportError("failed to build SDP request", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", domain.NewTransportError("failed to send SDP offer", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAnswerBytes))
	if err != nil {
		return "", domain.NewTransportError("failed to read SDP answer", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := strings.TrimSpace(string(body))
		if message == "" || !utf8.Valid(body) {
			message = http.StatusText(resp.StatusCode)
		}
		s.cfg.Logger.Warn("SDP exchange rejected", "status", resp.StatusCode, "model", model)
		return "", domain.NewProtocolError(resp.StatusCode, fmt.Sprintf("SDP exchange rejected: %s", message))
	}
	if !utf8.Valid(body) {
		return "", domain.NewProtocolError(resp.StatusCode, "SDP answer is not valid UTF-8")
	}
	if strings.TrimSpace(string(body)) == "" {
		return "", domain.NewProtocolError(resp.StatusCode, "SDP answer is empty")
	}

	s.cfg.Logger.Debug("SDP answer received", "status", resp.StatusCode, "bytes", len(body))
	return string(body), nil
}

func buildRealtimeURL(base string, model string) (string, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	endpoint, err := url.Parse(base + "/realtime")
	if err != nil {
		return "", domain.NewTransportError("invalid OpenAI API base URL", err)
	}
	query := endpoint.Query()
	query.Set("model", model)
	endpoint.RawQuery = query.Encode()
	return endpoint.String(), nil
}
