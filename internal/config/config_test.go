package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{
		DefaultProfile:     "work",
		ServerURL:          "https://chat.example.com",
		Token:              "tok",
		ReconnectAttempts:  5,
		ReconnectBaseDelay: 3,
		TypingIdleWindow:   2,
	}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultProfile != "work" {
		t.Errorf("DefaultProfile = %q, want %q", loaded.DefaultProfile, "work")
	}
	if loaded.ServerURL != "https://chat.example.com" {
		t.Errorf("ServerURL = %q", loaded.ServerURL)
	}
	if loaded.ReconnectDelay() != 3*time.Second {
		t.Errorf("ReconnectDelay() = %v, want 3s", loaded.ReconnectDelay())
	}
	if loaded.TypingWindow() != 2*time.Second {
		t.Errorf("TypingWindow() = %v, want 2s", loaded.TypingWindow())
	}
}

func TestMergeOverridesNonZero(t *testing.T) {
	base := &Config{
		ServerURL:         "https://chat.example.com",
		Token:             "global",
		ReconnectAttempts: 5,
	}
	merged := Merge(base, &Config{Token: "per-profile", TypingIdleWindow: 4})

	if merged.Token != "per-profile" {
		t.Errorf("Token = %q, want per-profile override", merged.Token)
	}
	if merged.ServerURL != "https://chat.example.com" {
		t.Errorf("ServerURL = %q, want base value kept", merged.ServerURL)
	}
	if merged.ReconnectAttempts != 5 {
		t.Errorf("ReconnectAttempts = %d, want base value kept", merged.ReconnectAttempts)
	}
	if merged.TypingIdleWindow != 4 {
		t.Errorf("TypingIdleWindow = %d, want 4", merged.TypingIdleWindow)
	}

	same := Merge(base, nil)
	if same.Token != "global" {
		t.Errorf("nil override changed base: %+v", same)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultProfile: "main", Token: "secret"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
