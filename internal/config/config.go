// Package config loads the license server configuration from environment
// variables (CB_ prefix) layered over an optional YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Redis   RedisConfig   `yaml:"redis" envconfig:"REDIS"`
	License LicenseConfig `yaml:"license" envconfig:"LICENSE"`
	Usage   UsageConfig   `yaml:"usage" envconfig:"USAGE"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	AllowedOrigins  []string      `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST"`
}

// RedisConfig contains connection settings for the key-value store.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"ADDR"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	DB       int    `yaml:"db" envconfig:"DB"`
}

// LicenseConfig contains license issuance and validation settings.
type LicenseConfig struct {
	// Secret feeds key derivation; issuance refuses to run without it.
	Secret string `yaml:"secret" envconfig:"SECRET"`

	// DeviceWarnThreshold is the advisory device-set cardinality above
	// which verification emits an abuse warning. Observability only.
	DeviceWarnThreshold int64 `yaml:"device_warn_threshold" envconfig:"DEVICE_WARN_THRESHOLD"`
}

// UsageConfig contains free-tier quota settings.
type UsageConfig struct {
	DailyLimit int64 `yaml:"daily_limit" envconfig:"DAILY_LIMIT"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"`
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"*"},
			RateLimitRPS:    100,
			RateLimitBurst:  50,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		License: LicenseConfig{
			DeviceWarnThreshold: 5,
		},
		Usage: UsageConfig{
			DailyLimit: 3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load layers configuration: built-in defaults, then the YAML file named
// by CB_CONFIG_FILE (default config.yaml) if present, then environment
// variables. Later layers win; env vars touch only fields actually set.
func Load() (*Config, error) {
	cfg := Default()

	configFile := os.Getenv("CB_CONFIG_FILE")
	if configFile == "" {
		configFile = "config.yaml"
	}
	if _, err := os.Stat(configFile); err == nil {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process("CB", cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}
	if c.Usage.DailyLimit < 1 {
		return fmt.Errorf("usage daily limit must be at least 1, got %d", c.Usage.DailyLimit)
	}
	if c.License.DeviceWarnThreshold < 1 {
		return fmt.Errorf("device warn threshold must be at least 1, got %d", c.License.DeviceWarnThreshold)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	return nil
}
