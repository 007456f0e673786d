package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all bridge configuration.
type Config struct {
	Runtime     RuntimeConfig
	Permissions PermissionConfig
	Server      ServerConfig
	Logging     LogConfig
	RateLimit   RateLimitConfig
}

// RuntimeConfig holds executor and dispatch settings.
type RuntimeConfig struct {
	BlockingThreads int           `envconfig:"OPS_BLOCKING_THREADS" default:"512"`
	StrictContract  bool          `envconfig:"OPS_STRICT_CONTRACT" default:"true"`
	FailFast        bool          `envconfig:"OPS_FAIL_FAST" default:"true"`
	ScriptTimeout   time.Duration `envconfig:"OPS_SCRIPT_TIMEOUT" default:"0s"`
	Unstable        bool          `envconfig:"OPS_UNSTABLE" default:"false"`
}

// PermissionConfig holds the capabilities granted to scripts. Read and write
// entries are doublestar globs; net entries are host names (optionally with
// port).
type PermissionConfig struct {
	AllowAll   bool     `envconfig:"OPS_ALLOW_ALL" default:"false"`
	AllowRead  []string `envconfig:"OPS_ALLOW_READ"`
	AllowWrite []string `envconfig:"OPS_ALLOW_WRITE"`
	AllowNet   []string `envconfig:"OPS_ALLOW_NET"`
	AllowRun   bool     `envconfig:"OPS_ALLOW_RUN" default:"false"`
}

// ServerConfig holds the remote host channel settings.
type ServerConfig struct {
	Port    string `envconfig:"PORT" default:"8000"`
	Host    string `envconfig:"HOST" default:"127.0.0.1"`
	Enabled bool   `envconfig:"SERVER_ENABLED" default:"false"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration for the server.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Runtime.BlockingThreads <= 0 {
		return nil, fmt.Errorf("failed to load config: OPS_BLOCKING_THREADS must be positive, got %d", cfg.Runtime.BlockingThreads)
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
		Runtime: RuntimeConfig{
			BlockingThreads: 512,
			StrictContract:  true,
			FailFast:        true,
		},
		Server: ServerConfig{
			Port: "8000",
			Host: "127.0.0.1",
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
