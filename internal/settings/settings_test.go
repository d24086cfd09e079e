package settings

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"realtalk/internal/domain"
)

func TestStoreLoadMissingFileReturnsZero(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "nope", "settings.yaml"))
	got, err := store.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got != (Settings{}) {
		t.Fatalf("expected zero settings, got %+v", got)
	}
}

func TestStoreSaveAndLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "realtalk", "settings.yaml")
	store := NewStore(path)
	want := Settings{Provider: "alternate", Model: "m1", Voice: "verse", Instructions: "Answer in French.\nKeep it short."}

	if err := store.Save(want); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	got, err := store.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("readdir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the settings file, found %d entries", len(entries))
	}
}

func TestStoreSaveRejectsUnknownProvider(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := NewStore(path).Save(Settings{Provider: "nope"}); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("invalid settings must not be written")
	}
}

func TestStoreLoadReportsMalformedYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("provider: [unterminated\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	_, err := NewStore(path).Load()
	if err == nil || !strings.Contains(err.Error(), "failed to parse settings") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestStoreNeverWritesAPIKeys(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := NewStore(path).Save(Settings{Provider: "primary", Voice: "alloy"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if strings.Contains(strings.ToLower(string(data)), "key") {
		t.Fatalf("settings file must not mention keys: %s", data)
	}
}

func TestSettingsApplyOverlaysNonEmptyFields(t *testing.T) {
	t.Parallel()

	base := domain.SessionConfig{Provider: domain.ProviderPrimary, APIKey: "sk", Model: "env-model", Voice: "alloy"}

	got := Settings{Provider: "alt", Voice: " verse ", Instructions: "Be kind."}.Apply(base)
	if got.Provider != domain.ProviderAlternate || got.Voice != "verse" || got.Instructions != "Be kind." {
		t.Fatalf("unexpected overlay: %+v", got)
	}
	if got.Model != "env-model" || got.APIKey != "sk" {
		t.Fatalf("empty settings must not clear fields: %+v", got)
	}

	kept := Settings{Provider: "bogus"}.Apply(base)
	if kept.Provider != domain.ProviderPrimary {
		t.Fatalf("unparseable provider must be ignored, got %s", kept.Provider)
	}
}
