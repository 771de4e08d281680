// Package config loads the TOML configuration file. Every field has a
// working default so the binary runs with no file at all.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	apperrors "github.com/fieldsync/backend/internal/errors"
)

// Config is the root configuration.
type Config struct {
	DataDir  string         `toml:"data_dir"`
	LogLevel string         `toml:"log_level"`
	API      APIConfig      `toml:"api"`
	Sync     SyncConfig     `toml:"sync"`
	Prefetch PrefetchConfig `toml:"prefetch"`
}

// APIConfig configures the HTTP gateway.
type APIConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// SyncConfig configures the background scheduler.
type SyncConfig struct {
	DrainIntervalSeconds int `toml:"drain_interval_seconds"`
	PollIntervalSeconds  int `toml:"poll_interval_seconds"`
}

// PrefetchConfig toggles invoice-details prefetching.
type PrefetchConfig struct {
	Enabled bool `toml:"enabled"`
}

// Timeout returns the gateway timeout as a duration.
func (a APIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// DrainInterval returns the periodic drain interval as a duration.
func (s SyncConfig) DrainInterval() time.Duration {
	return time.Duration(s.DrainIntervalSeconds) * time.Second
}

// PollInterval returns the connectivity poll interval as a duration.
func (s SyncConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSeconds) * time.Second
}

// Default returns the built-in configuration.
func Default() *Config {
	dataDir := "."
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".fieldsync")
	}
	return &Config{
		DataDir:  dataDir,
		LogLevel: "INFO",
		API: APIConfig{
			BaseURL:        "http://localhost:8000/api",
			TimeoutSeconds: 30,
		},
		Sync: SyncConfig{
			DrainIntervalSeconds: 60,
			PollIntervalSeconds:  30,
		},
		Prefetch: PrefetchConfig{Enabled: true},
	}
}

// Load reads the configuration at path, layered over the defaults. A missing
// file is not an error; a file that fails to parse is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to parse config file "+path, err)
	}

	if cfg.API.TimeoutSeconds <= 0 {
		cfg.API.TimeoutSeconds = 30
	}
	if cfg.Sync.DrainIntervalSeconds <= 0 {
		cfg.Sync.DrainIntervalSeconds = 60
	}
	if cfg.Sync.PollIntervalSeconds <= 0 {
		cfg.Sync.PollIntervalSeconds = 30
	}

	return cfg, nil
}
