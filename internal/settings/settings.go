package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"realtalk/internal/domain"
)

// Settings are the user preferences persisted between runs. API keys are
// never stored here.
type Settings struct {
	Provider     string `yaml:"provider,omitempty" json:"provider"`
	Model        string `yaml:"model,omitempty" json:"model"`
	Voice        string `yaml:"voice,omitempty" json:"voice"`
	Instructions string `yaml:"instructions,omitempty" json:"instructions"`
}

// Validate reports whether the provider name is known.
func (s Settings) Validate() error {
	if _, err := domain.ParseProvider(s.Provider); err != nil {
		return err
	}
	return nil
}

// Apply overlays non-empty settings onto cfg. The provider is only replaced
// when it parses.
func (s Settings) Apply(cfg domain.SessionConfig) domain.SessionConfig {
	if strings.TrimSpace(s.Provider) != "" {
		if provider, err := domain.ParseProvider(s.Provider); err == nil {
			cfg.Provider = provider
		}
	}
	if model := strings.TrimSpace(s.Model); model != "" {
		cfg.Model = model
	}
	if voice := strings.TrimSpace(s.Voice); voice != "" {
		cfg.Voice = voice
	}
	if instructions := strings.TrimSpace(s.Instructions); instructions != "" {
		cfg.Instructions = instructions
	}
	return cfg
}

// Store reads and writes Settings as a YAML file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load returns the stored settings. A missing file yields zero settings.
func (s *Store) Load() (Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Settings{}, nil
		}
		return Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}

	var out Settings
	if err := yaml.Unmarshal(data, &out); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings %s: %w", s.path, err)
	}
	return out, nil
}

// Save writes settings atomically, creating the parent directory.
func (s *Store) Save(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create settings file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace settings: %w", err)
	}
	return nil
}
