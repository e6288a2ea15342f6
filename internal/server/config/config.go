// Package config loads runtime configuration for the sync backend daemon.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "NOTESYNC"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "notesync.db"
	defaultLogLevel     = "info"
	defaultTokenTTLMin  = 720
)

// AppConfig captures runtime configuration for the sync backend.
type AppConfig struct {
	HTTPAddress     string
	DatabasePath    string
	SigningSecret   string
	TokenTTLMinutes int
	LogLevel        string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	v := viper.New()
	ApplyDefaults(v)
	return v
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http.address", defaultHTTPAddress)
	v.SetDefault("database.path", defaultDatabasePath)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("token.ttl_minutes", defaultTokenTTLMin)
}

// Load parses runtime configuration from viper.
func Load(v *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     v.GetString("http.address"),
		DatabasePath:    v.GetString("database.path"),
		SigningSecret:   v.GetString("auth.signing_secret"),
		TokenTTLMinutes: v.GetInt("token.ttl_minutes"),
		LogLevel:        v.GetString("log.level"),
	}
	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.TokenTTLMinutes <= 0 {
		return fmt.Errorf("token.ttl_minutes must be positive")
	}
	return nil
}
