// Package config handles the engine's toml configuration.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents ~/.convo/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`

	ServerURL string `toml:"server_url"`
	Token     string `toml:"token"`
	UserID    string `toml:"user_id"`
	UserName  string `toml:"user_name"`

	ReconnectAttempts  int `toml:"reconnect_attempts"`
	ReconnectBaseDelay int `toml:"reconnect_base_delay_seconds"`
	TypingIdleWindow   int `toml:"typing_idle_window_seconds"`
}

// ReconnectDelay returns the configured base reconnect delay.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectBaseDelay) * time.Second
}

// TypingWindow returns the configured typing idle window.
func (c *Config) TypingWindow() time.Duration {
	return time.Duration(c.TypingIdleWindow) * time.Second
}

// Merge overlays the non-zero fields of override onto base.
func Merge(base, override *Config) *Config {
	out := *base
	if override == nil {
		return &out
	}
	if override.ServerURL != "" {
		out.ServerURL = override.ServerURL
	}
	if override.Token != "" {
		out.Token = override.Token
	}
	if override.UserID != "" {
		out.UserID = override.UserID
	}
	if override.UserName != "" {
		out.UserName = override.UserName
	}
	if override.ReconnectAttempts != 0 {
		out.ReconnectAttempts = override.ReconnectAttempts
	}
	if override.ReconnectBaseDelay != 0 {
		out.ReconnectBaseDelay = override.ReconnectBaseDelay
	}
	if override.TypingIdleWindow != 0 {
		out.TypingIdleWindow = override.TypingIdleWindow
	}
	return &out
}

// Load reads config from the given path. Returns error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
// The file holds the auth token, so it stays private to the user.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
