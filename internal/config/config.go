package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/calder/savewatch/internal/track"
)

// Config is the persistent application configuration
type Config struct {
	// Discovery settings
	Mode      string `json:"mode"` // "auto", "fixed", "peer"
	FixedPath string `json:"fixed_path,omitempty"`
	SavesRoot string `json:"saves_root"`

	// What is being tracked
	Category string `json:"category"`
	Version  string `json:"version,omitempty"`

	// Engine timing
	RefreshIntervalMs int `json:"refresh_interval_ms"`

	// LogLevel overrides the default "info" verbosity ("debug", "warn", ...)
	LogLevel string `json:"log_level,omitempty"`

	// Request scheduler knobs
	Requests RequestConfig `json:"requests"`

	// Co-op roles
	Host HostConfig `json:"host"`
	Peer PeerConfig `json:"peer"`
}

// RequestConfig holds the outbound request scheduler settings
type RequestConfig struct {
	MaxConcurrent   int `json:"max_concurrent"`
	PassCooldownMs  int `json:"pass_cooldown_ms"`
	RetryCooldownMs int `json:"retry_cooldown_ms"`
}

// HostConfig enables the outbound server role: forward each successful
// local read to connected clients
type HostConfig struct {
	Enabled bool   `json:"enabled"`
	Listen  string `json:"listen"`
}

// PeerConfig enables the client role: accept snapshots pushed by a host
type PeerConfig struct {
	Enabled  bool   `json:"enabled"`
	HostAddr string `json:"host_addr"`
	Listen   string `json:"listen"`
	Name     string `json:"name"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Mode:              "auto",
		SavesRoot:         filepath.Join(home, ".minecraft", "saves"),
		Category:          "all_advancements",
		RefreshIntervalMs: 1000,
		Requests: RequestConfig{
			MaxConcurrent:   4,
			PassCooldownMs:  500,
			RetryCooldownMs: 30000,
		},
		Host: HostConfig{Listen: "127.0.0.1:7820"},
		Peer: PeerConfig{Listen: "127.0.0.1:7821"},
	}
}

// ConfigPath returns the config file location
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".savewatch", "config.json")
}

// Load reads config from disk, or returns defaults
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads config from an explicit path, or returns defaults when the
// file does not exist
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes config to disk
func (c *Config) Save() error {
	path := ConfigPath()

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// TrackMode converts the configured mode string to a track.Mode
func (c *Config) TrackMode() (track.Mode, error) {
	switch c.Mode {
	case "auto", "":
		return track.ModeAutoDetect, nil
	case "fixed":
		return track.ModeFixedPath, nil
	case "peer":
		return track.ModePeerPush, nil
	default:
		return track.ModeAutoDetect, fmt.Errorf("unknown mode %q", c.Mode)
	}
}

// RefreshInterval returns the engine tick interval as a duration
func (c *Config) RefreshInterval() time.Duration {
	if c.RefreshIntervalMs <= 0 {
		return time.Second
	}
	return time.Duration(c.RefreshIntervalMs) * time.Millisecond
}

// PassCooldown returns the scheduler pass cadence as a duration
func (c *Config) PassCooldown() time.Duration {
	return time.Duration(c.Requests.PassCooldownMs) * time.Millisecond
}

// RetryCooldown returns the timed-out retry wait as a duration
func (c *Config) RetryCooldown() time.Duration {
	return time.Duration(c.Requests.RetryCooldownMs) * time.Millisecond
}
