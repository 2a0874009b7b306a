// Package config loads and validates service configuration from
// environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration for the watcher service.
type Config struct {
	Debug bool `envconfig:"APP_DEBUG" default:"false"` // controls log level and format

	Database DatabaseConfig
	Telegram TelegramConfig
	Earn     EarnConfig
	Watcher  WatcherConfig
	Redis    RedisConfig
	Server   ServerConfig
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL" required:"true"`
}

// TelegramConfig holds Bot API credentials and the notification target.
type TelegramConfig struct {
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	ChatID   string `envconfig:"TELEGRAM_CHAT_ID" required:"true"`
}

// EarnConfig holds the listings API settings.
type EarnConfig struct {
	BaseURL string        `envconfig:"EARN_API_URL" default:"https://superteam.fun/api"`
	Timeout time.Duration `envconfig:"EARN_API_TIMEOUT" default:"30s"`
}

// WatcherConfig holds the polling cycle settings.
type WatcherConfig struct {
	PollIntervalSeconds  int `envconfig:"POLL_INTERVAL_SECONDS" default:"600"`
	MaxNotifsPerRun      int `envconfig:"MAX_NOTIFS_PER_RUN" default:"10"`
	ForceCooldownSeconds int `envconfig:"FORCE_COOLDOWN_SECONDS" default:"60"`
}

// RedisConfig holds the optional metrics backend settings. An empty
// address disables Redis-backed metrics entirely.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:""`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// ServerConfig holds the status HTTP API settings.
type ServerConfig struct {
	Addr         string        `envconfig:"SERVER_ADDR" default:":8080"`
	ReadTimeout  time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
}

// PollInterval returns the cycle interval as a duration.
func (c *WatcherConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// ForceCooldown returns the minimum gap between forced runs.
func (c *WatcherConfig) ForceCooldown() time.Duration {
	return time.Duration(c.ForceCooldownSeconds) * time.Second
}

// Validate checks invariants that envconfig tags can not express.
func (c *Config) Validate() error {
	if c.Watcher.PollIntervalSeconds <= 0 {
		return fmt.Errorf("POLL_INTERVAL_SECONDS must be positive, got %d", c.Watcher.PollIntervalSeconds)
	}
	if c.Watcher.MaxNotifsPerRun <= 0 {
		return fmt.Errorf("MAX_NOTIFS_PER_RUN must be positive, got %d", c.Watcher.MaxNotifsPerRun)
	}
	if c.Watcher.ForceCooldownSeconds < 0 {
		return fmt.Errorf("FORCE_COOLDOWN_SECONDS must not be negative, got %d", c.Watcher.ForceCooldownSeconds)
	}
	if c.Earn.BaseURL == "" {
		return errors.New("EARN_API_URL must not be empty")
	}
	return nil
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
