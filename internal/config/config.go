package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"realtalk/internal/domain"
)

// Config stores runtime configuration resolved from the environment.
type Config struct {
	Provider  domain.Provider
	OpenAI    ProviderConfig
	Alternate ProviderConfig
	Session   SessionConfig
	WebRTC    WebRTCConfig
	Audio     AudioConfig
	Settings  SettingsConfig
	LogLevel  string
}

type ProviderConfig struct {
	APIKey     string
	APIBaseURL string
}

type SessionConfig struct {
	Model              string
	Voice              string
	Instructions       string
	TranscriptionModel string
	TurnDetection      string
	SignalingTimeout   time.Duration
}

type WebRTCConfig struct {
	ICEServers []string
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
	Disabled        bool
}

type SettingsConfig struct {
	Path string
}

const (
	defaultSignalingTimeoutMS = 30000
	opusSampleRate            = 48000
)

// Load resolves configuration from an optional .env file, environment
// variables and defaults. Variables already set in the environment win over
// the .env file.
func Load() (Config, error) {
	if err := loadDotEnv(envOrDefault("REALTALK_ENV_FILE", ".env")); err != nil {
		return Config{}, err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	provider, err := domain.ParseProvider(os.Getenv("REALTALK_PROVIDER"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid REALTALK_PROVIDER: %w", err)
	}

	cfg := Config{
		Provider: provider,
		OpenAI: ProviderConfig{
			APIKey:     strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			APIBaseURL: envOrDefault("OPENAI_API_BASE", domain.ProviderPrimary.Profile().BaseURL),
		},
		Alternate: ProviderConfig{
			APIKey:     strings.TrimSpace(os.Getenv("REALTALK_ALT_API_KEY")),
			APIBaseURL: strings.TrimSpace(os.Getenv("REALTALK_ALT_API_BASE")),
		},
		Session: SessionConfig{
			Model:              strings.TrimSpace(os.Getenv("REALTALK_MODEL")),
			Voice:              strings.TrimSpace(os.Getenv("REALTALK_VOICE")),
			Instructions:       strings.TrimSpace(os.Getenv("REALTALK_INSTRUCTIONS")),
			TranscriptionModel: strings.TrimSpace(os.Getenv("REALTALK_TRANSCRIPTION_MODEL")),
			TurnDetection:      envOrDefault("REALTALK_TURN_DETECTION", domain.DefaultTurnDetection),
			SignalingTimeout:   time.Duration(envNonNegativeInt("REALTALK_SIGNALING_TIMEOUT_MS", defaultSignalingTimeoutMS)) * time.Millisecond,
		},
		WebRTC: WebRTCConfig{
			ICEServers: splitList(os.Getenv("REALTALK_ICE_SERVERS")),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("REALTALK_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("REALTALK_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice: firstNonEmpty(
				os.Getenv("REALTALK_AUDIO_INPUT_DEVICE"),
				os.Getenv("PULSE_SOURCE"),
				"default",
			),
			SampleRate: opusSampleRate,
			Channels:   envOrDefaultInt("REALTALK_CHANNELS", 1),
			Disabled:   envOrDefaultBool("REALTALK_DISABLE_AUDIO", false),
		},
		Settings: SettingsConfig{
			Path: envOrDefault("REALTALK_SETTINGS_FILE", filepath.Join(home, ".config", "realtalk", "settings.yaml")),
		},
		LogLevel: strings.ToLower(envOrDefault("REALTALK_LOG_LEVEL", "info")),
	}

	if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		cfg.Audio.Channels = 1
	}

	return cfg, nil
}

// Credentials returns the API key and base URL for provider.
func (c Config) Credentials(provider domain.Provider) ProviderConfig {
	if provider == domain.ProviderAlternate {
		return c.Alternate
	}
	return c.OpenAI
}

// SessionConfig builds the per-attempt session configuration for provider.
// Empty fields are filled from the provider profile when the session starts.
func (c Config) SessionConfig(provider domain.Provider) domain.SessionConfig {
	return domain.SessionConfig{
		Provider:           provider,
		APIKey:             c.Credentials(provider).APIKey,
		Model:              c.Session.Model,
		Voice:              c.Session.Voice,
		Instructions:       c.Session.Instructions,
		TranscriptionModel: c.Session.TranscriptionModel,
		TurnDetection:      c.Session.TurnDetection,
	}
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envNonNegativeInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
