// Package config loads archiver settings from a JSON5 file and overlays
// environment variables. The bot token is env-only and never persisted.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Config is the root configuration for the archiver.
type Config struct {
	// DBPath is the BadgerDB directory.
	DBPath string `json:"db_path"`
	// Listen is the HTTP bind address of the browsing interface.
	Listen string `json:"listen"`
	// MaxFileSizeBytes caps media blob downloads. Larger files archive as
	// records only.
	MaxFileSizeBytes int64 `json:"max_file_size_bytes"`
	// PollTimeoutSeconds is the long-poll window per update request.
	PollTimeoutSeconds int `json:"poll_timeout_seconds"`
	// RestartIntervalMS is the pause before a crashed worker loop respawns.
	RestartIntervalMS int `json:"restart_interval_ms"`

	// Token comes from TELEGRAM_API_TOKEN only.
	Token string `json:"-"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DBPath:             "./db",
		Listen:             "0.0.0.0:12525",
		MaxFileSizeBytes:   50 * 1024 * 1024,
		PollTimeoutSeconds: 60,
		RestartIntervalMS:  2000,
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing file
// is not an error; defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("TELEGRAM_API_TOKEN", &c.Token)
	envStr("CHATVAULT_DB_PATH", &c.DBPath)
	envStr("CHATVAULT_LISTEN", &c.Listen)

	if v := os.Getenv("CHATVAULT_MAX_FILE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.MaxFileSizeBytes = n
		}
	}
	if v := os.Getenv("CHATVAULT_RESTART_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RestartIntervalMS = n
		}
	}
}

// Validate checks the fields required to run the archiver.
func (c *Config) Validate() error {
	if c.Token == "" {
		return errors.New("TELEGRAM_API_TOKEN is not set")
	}
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if c.MaxFileSizeBytes <= 0 {
		return errors.New("max_file_size_bytes must be positive")
	}
	return nil
}
