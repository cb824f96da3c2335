// Package config loads application configuration from a YAML file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Log           LogConfig           `koanf:"log"`
	CORS          CORSConfig          `koanf:"cors"`
	SMTP          SMTPConfig          `koanf:"smtp"`
	Subscriptions SubscriptionsConfig `koanf:"subscriptions"`
	Newsletter    NewsletterConfig    `koanf:"newsletter"`
	Publisher     PublisherConfig     `koanf:"publisher"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// SMTPConfig contains the email gateway settings.
type SMTPConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	User        string        `koanf:"user"`
	Password    string        `koanf:"password"`
	FromAddress string        `koanf:"from_address"`
	DialTimeout time.Duration `koanf:"dial_timeout"`
	// SendRate caps outgoing messages per second. Zero disables the cap.
	SendRate float64 `koanf:"send_rate"`
}

// SubscriptionsConfig contains subscription flow settings.
type SubscriptionsConfig struct {
	// BaseURL is the public address confirmation links point at,
	// without a trailing slash.
	BaseURL string `koanf:"base_url"`
	// TokenTTL bounds confirmation token validity. Zero means tokens
	// never expire.
	TokenTTL time.Duration `koanf:"token_ttl"`
}

// NewsletterConfig contains dispatch settings.
type NewsletterConfig struct {
	NumWorkers        int           `koanf:"num_workers"`
	MaxAttempts       int           `koanf:"max_attempts"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
	PublishTimeout    time.Duration `koanf:"publish_timeout"`
}

// PublisherConfig contains the publisher API credential. PasswordHash is
// a bcrypt hash; the plaintext password is never stored in config.
type PublisherConfig struct {
	Username     string `koanf:"username"`
	PasswordHash string `koanf:"password_hash"`
}

// Load reads configuration from an optional YAML file, then overrides it
// with LETTERDROP_* environment variables. Nested keys use underscores:
// LETTERDROP_DATABASE__URL maps to database.url.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	err := k.Load(env.Provider("LETTERDROP_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "LETTERDROP_"))
		return strings.ReplaceAll(s, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	cfg := defaults()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.Subscriptions.BaseURL = strings.TrimRight(cfg.Subscriptions.BaseURL, "/")

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		SMTP: SMTPConfig{
			Port:        587,
			DialTimeout: 10 * time.Second,
		},
		Subscriptions: SubscriptionsConfig{
			TokenTTL: 48 * time.Hour,
		},
		Newsletter: NewsletterConfig{
			NumWorkers:        5,
			MaxAttempts:       3,
			InitialBackoff:    1 * time.Second,
			MaxBackoff:        30 * time.Second,
			BackoffMultiplier: 2.0,
			PublishTimeout:    5 * time.Minute,
		},
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.SMTP.Host == "" {
		return fmt.Errorf("smtp.host is required")
	}
	if c.SMTP.FromAddress == "" {
		return fmt.Errorf("smtp.from_address is required")
	}
	if c.Subscriptions.BaseURL == "" {
		return fmt.Errorf("subscriptions.base_url is required")
	}
	if c.Publisher.Username == "" || c.Publisher.PasswordHash == "" {
		return fmt.Errorf("publisher.username and publisher.password_hash are required")
	}
	return nil
}
