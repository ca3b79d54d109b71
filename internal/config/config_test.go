package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	defaults := NewSettings()
	if cfg.ServerURL != defaults.ServerURL {
		t.Errorf("ServerURL = %q, want default %q", cfg.ServerURL, defaults.ServerURL)
	}
	if cfg.Subject != "General" {
		t.Errorf("Subject = %q, want General", cfg.Subject)
	}
	if !cfg.Notifications {
		t.Error("Notifications should default to true")
	}
	if cfg.PollInterval != 3*time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")

	cfg := NewSettings()
	cfg.ServerURL = "https://convert.example.com"
	cfg.Subject = "Chemistry"
	cfg.MaxConcurrent = 4
	cfg.PollInterval = 5 * time.Second
	cfg.AIProvider = "openai"
	cfg.AIAPIKey = "sk-test"
	cfg.AIModel = "gpt-4o"
	cfg.Notifications = false

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if *loaded != *cfg {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, cfg)
	}
}

func TestSaveRestrictsPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file mode check not applicable on Windows")
	}

	path := filepath.Join(t.TempDir(), "config")
	if err := Save(NewSettings(), path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		t.Errorf("config file mode = %o, want 0600", mode)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte("not an ini\n[unclosed"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr error
	}{
		{"defaults are valid", func(s *Settings) {}, nil},
		{"missing server url", func(s *Settings) { s.ServerURL = "  " }, ErrMissingServerURL},
		{"poll interval too small", func(s *Settings) { s.PollInterval = 100 * time.Millisecond }, ErrInvalidPollInterval},
		{"zero concurrency", func(s *Settings) { s.MaxConcurrent = 0 }, ErrInvalidConcurrency},
		{"concurrency too large", func(s *Settings) { s.MaxConcurrent = 64 }, ErrInvalidConcurrency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewSettings()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSetAndGet(t *testing.T) {
	cfg := NewSettings()

	sets := map[string]string{
		"server_url":     "https://convert.example.com/",
		"subject":        "Physics",
		"max_concurrent": "8",
		"poll_interval":  "1500ms",
		"ai_provider":    "anthropic",
		"ai_api_key":     "key-123",
		"ai_model":       "claude-sonnet",
		"notifications":  "false",
	}
	for key, value := range sets {
		if err := cfg.Set(key, value); err != nil {
			t.Fatalf("Set(%q, %q): %v", key, value, err)
		}
	}

	// trailing slash is stripped from the server URL
	if got, _ := cfg.Get("server_url"); got != "https://convert.example.com" {
		t.Errorf("server_url = %q", got)
	}
	if got, _ := cfg.Get("poll_interval"); got != "1.5s" {
		t.Errorf("poll_interval = %q", got)
	}
	if got, _ := cfg.Get("notifications"); got != "false" {
		t.Errorf("notifications = %q", got)
	}
	if cfg.MaxConcurrent != 8 {
		t.Errorf("MaxConcurrent = %d", cfg.MaxConcurrent)
	}
}

func TestMemStoreIsolatesCopies(t *testing.T) {
	store := NewMemStore(nil)

	cfg, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Subject = "Biology"
	if err := store.Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Mutating the caller's copy after Save must not leak into the store.
	cfg.Subject = "mutated"

	reloaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.Subject != "Biology" {
		t.Errorf("Subject = %q, want Biology", reloaded.Subject)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "config"))

	cfg := NewSettings()
	cfg.ServerURL = "https://store.example.com"
	if err := store.Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ServerURL != "https://store.example.com" {
		t.Errorf("ServerURL = %q", loaded.ServerURL)
	}
}

func TestSetRejectsInvalidValues(t *testing.T) {
	cfg := NewSettings()

	if err := cfg.Set("max_concurrent", "100"); !errors.Is(err, ErrInvalidConcurrency) {
		t.Errorf("Set max_concurrent=100 error = %v", err)
	}
	if err := cfg.Set("poll_interval", "10ms"); !errors.Is(err, ErrInvalidPollInterval) {
		t.Errorf("Set poll_interval=10ms error = %v", err)
	}
	if err := cfg.Set("notifications", "maybe"); err == nil {
		t.Error("Set notifications=maybe should fail")
	}
	if err := cfg.Set("no_such_key", "x"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Set unknown key error = %v", err)
	}
	if _, err := cfg.Get("no_such_key"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Get unknown key error = %v", err)
	}
}
