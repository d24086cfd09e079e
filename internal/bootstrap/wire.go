package bootstrap

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"realtalk/internal/audio"
	"realtalk/internal/config"
	"realtalk/internal/domain"
	"realtalk/internal/ports"
	"realtalk/internal/providers/openai"
	"realtalk/internal/providers/wsrelay"
	"realtalk/internal/rtc"
	"realtalk/internal/settings"
	"realtalk/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Config     config.Config
	Settings   *settings.Store
	Logger     *slog.Logger
}

// Build loads configuration and wires all backend dependencies.
func Build(eventSink ports.EventSink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	return Assemble(cfg, eventSink, os.Stderr), nil
}

// Assemble wires the runtime graph for an already loaded configuration.
// Logs are written to logOutput.
func Assemble(cfg config.Config, eventSink ports.EventSink, logOutput io.Writer) Services {
	logger := NewLogger(cfg.LogLevel, logOutput)

	signalers := map[domain.Provider]ports.Signaler{
		domain.ProviderPrimary: openai.NewSignaler(openai.Config{
			APIBaseURL: cfg.OpenAI.APIBaseURL,
			Logger:     logger.With("component", "signaling", "provider", domain.ProviderPrimary),
		}),
		domain.ProviderAlternate: wsrelay.NewSignaler(wsrelay.Config{
			APIBaseURL: cfg.Alternate.APIBaseURL,
			Logger:     logger.With("component", "signaling", "provider", domain.ProviderAlternate),
		}),
	}

	controller := usecase.NewSessionController(
		rtc.NewFactory(rtc.Config{ICEServers: cfg.WebRTC.ICEServers}, logger.With("component", "rtc")),
		audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
		signalers,
		eventSink,
		logger.With("component", "session"),
		usecase.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			DisableAudio:     cfg.Audio.Disabled,
			SignalingTimeout: cfg.Session.SignalingTimeout,
		},
	)

	return Services{
		Controller: controller,
		Config:     cfg,
		Settings:   settings.NewStore(cfg.Settings.Path),
		Logger:     logger,
	}
}

// SessionConfig merges environment configuration with stored settings. The
// API key always follows the resulting provider. A settings read error is
// returned alongside the environment-only configuration.
func (s Services) SessionConfig() (domain.SessionConfig, error) {
	base := s.Config.SessionConfig(s.Config.Provider)
	if s.Settings == nil {
		return base, nil
	}

	stored, err := s.Settings.Load()
	if err != nil {
		return base, err
	}
	merged := stored.Apply(base)
	merged.APIKey = s.Config.Credentials(merged.Provider).APIKey
	return merged, nil
}

// NewLogger returns a text logger at the named level (debug, info, warn,
// error). Unknown names select info.
func NewLogger(level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = io.Discard
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
