package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Malformed refresh directive policies.
const (
	MalformedRefreshError  = "error"
	MalformedRefreshIgnore = "ignore"
)

// Config holds all application configuration.
type Config struct {
	Loader  LoaderConfig
	HTTP    HTTPConfig
	Logging LogConfig
	Metrics MetricsConfig
}

// LoaderConfig controls the navigation orchestrator.
type LoaderConfig struct {
	FollowMetaRefresh bool   `envconfig:"LOADER_FOLLOW_META_REFRESH" default:"false"`
	MaxRefreshes      int    `envconfig:"LOADER_MAX_REFRESHES" default:"20"`
	MalformedRefresh  string `envconfig:"LOADER_MALFORMED_REFRESH" default:"error"`
}

// HTTPConfig holds download transport configuration.
type HTTPConfig struct {
	Timeout      time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	Retries      int           `envconfig:"HTTP_RETRIES" default:"3"`
	UserAgent    string        `envconfig:"HTTP_USER_AGENT" default:"docloader/1.0"`
	RateLimitRPS float64       `envconfig:"HTTP_RATE_LIMIT_RPS" default:"0"`
	MaxBodyBytes int64         `envconfig:"HTTP_MAX_BODY_BYTES" default:"10485760"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// MetricsConfig holds the metrics listener address; empty disables it.
type MetricsConfig struct {
	Addr string `envconfig:"METRICS_ADDR" default:""`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Loader: LoaderConfig{
			FollowMetaRefresh: false,
			MaxRefreshes:      20,
			MalformedRefresh:  MalformedRefreshError,
		},
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			Retries:      3,
			UserAgent:    "docloader/1.0",
			RateLimitRPS: 0,
			MaxBodyBytes: 10 << 20,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}

// Validate rejects values the loader cannot act on.
func (c *Config) Validate() error {
	switch c.Loader.MalformedRefresh {
	case MalformedRefreshError, MalformedRefreshIgnore:
	default:
		return fmt.Errorf("invalid LOADER_MALFORMED_REFRESH %q: want %q or %q",
			c.Loader.MalformedRefresh, MalformedRefreshError, MalformedRefreshIgnore)
	}
	if c.Loader.MaxRefreshes < 0 {
		return fmt.Errorf("LOADER_MAX_REFRESHES must not be negative, got %d", c.Loader.MaxRefreshes)
	}
	if c.HTTP.Retries < 0 {
		return fmt.Errorf("HTTP_RETRIES must not be negative, got %d", c.HTTP.Retries)
	}
	return nil
}
