// Package config holds runtime settings for the client-side sync engine.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config holds runtime settings for an embedded sync engine instance.
//
// Fields:
//   - ServerURL: base URL of the sync backend (scheme://host[:port]).
//   - DatabasePath: filesystem path of the local mirror database.
//   - OnlineCheckInterval: how often the client probes server reachability.
//   - CallTimeout: per-request bound applied to remote calls.
//   - RetryCap: push attempts per queued change before it is dropped.
type Config struct {
	ServerURL           string
	DatabasePath        string
	OnlineCheckInterval time.Duration
	CallTimeout         time.Duration
	RetryCap            int
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.DatabasePath = "localnotes.db"
	c.OnlineCheckInterval = 3 * time.Second
	c.CallTimeout = 15 * time.Second
	c.RetryCap = 5
}

// jsonConfig is a DTO used exclusively for JSON unmarshalling. Durations are
// given as strings like "3s".
type jsonConfig struct {
	ServerURL           string `json:"server_url"`
	DatabasePath        string `json:"database_path"`
	OnlineCheckInterval string `json:"online_check_interval"`
	CallTimeout         string `json:"call_timeout"`
	RetryCap            int    `json:"retry_cap"`
}

// Load constructs a Config from defaults, then overlays values from the JSON
// file at path (if non-empty), then from environment variables. Later sources
// take precedence.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := cfg.overlayJSON(path); err != nil {
		return nil, err
	}
	cfg.overlayEnv()
	return cfg, nil
}

func (c *Config) overlayJSON(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var jc jsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if jc.ServerURL != "" {
		c.ServerURL = jc.ServerURL
	}
	if jc.DatabasePath != "" {
		c.DatabasePath = jc.DatabasePath
	}
	if jc.RetryCap > 0 {
		c.RetryCap = jc.RetryCap
	}
	for _, d := range []struct {
		raw string
		dst *time.Duration
	}{
		{jc.OnlineCheckInterval, &c.OnlineCheckInterval},
		{jc.CallTimeout, &c.CallTimeout},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("failed to parse duration %q: %w", d.raw, err)
		}
		*d.dst = parsed
	}
	return nil
}

func (c *Config) overlayEnv() {
	if v := os.Getenv("LOCALNOTES_SERVER_URL"); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv("LOCALNOTES_DB_PATH"); v != "" {
		c.DatabasePath = v
	}
}
