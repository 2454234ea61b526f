// Package server provides configuration helpers that define runtime
// defaults, validation, and rate-limiting parameters for the chat relay
// service.
package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"RATE_LIMIT_BURST" envDefault:"5"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL" envDefault:"1s"`
}

// Config holds the server configuration settings, including the multicast
// relay parameters and security controls.
type Config struct {
	Port           string   `env:"SERVER_PORT" envDefault:":8080"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:8080"`
	MaxMessageSize int64    `env:"MAX_MESSAGE_SIZE" envDefault:"512"`
	RateLimit      RateLimitConfig

	MulticastGroup  string        `env:"MULTICAST_GROUP" envDefault:"224.0.0.1"`
	MulticastPort   int           `env:"MULTICAST_PORT" envDefault:"5007"`
	InboxCapacity   int           `env:"INBOX_CAPACITY" envDefault:"64"`
	ListenerBackoff time.Duration `env:"LISTENER_BACKOFF" envDefault:"1s"`

	DatabaseDSN    string `env:"DATABASE_DSN" envDefault:"file:campuschat.db"`
	UploadDir      string `env:"UPLOAD_DIR" envDefault:"temp_uploads"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"2097152"`
}

var (
	configMu      sync.RWMutex
	activeConfig  Config
	activeOrigins originPolicy
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	cfg := Config{}
	// Parsing an empty environment fills in the envDefault values.
	_ = env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}})
	return cfg
}

func sanitizeConfig(cfg Config) Config {
	defaults := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = defaults.Port
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaults.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaults.RateLimit.RefillInterval
	}
	if cfg.MulticastGroup == "" {
		cfg.MulticastGroup = defaults.MulticastGroup
	}
	if cfg.MulticastPort <= 0 || cfg.MulticastPort > 65535 {
		cfg.MulticastPort = defaults.MulticastPort
	}
	if cfg.InboxCapacity <= 0 {
		cfg.InboxCapacity = defaults.InboxCapacity
	}
	if cfg.ListenerBackoff <= 0 {
		cfg.ListenerBackoff = defaults.ListenerBackoff
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = defaults.UploadDir
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaults.MaxUploadBytes
	}

	policy, normalized := compileOriginPolicy(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalized

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	activeOrigins = policy

	return cfg
}

func currentOriginPolicy() originPolicy {
	configMu.RLock()
	defer configMu.RUnlock()
	return activeOrigins
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		sanitizeConfig(defaultConfig())
		return
	}

	sanitized := *cfg
	sanitized.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	sanitizeConfig(sanitized)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Unset variables fall back to their defaults.
func NewConfigFromEnv() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}
