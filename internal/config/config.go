// ABOUTME: Configuration loading and parsing for intake-gateway.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend drivers and session backends.
const (
	BackendSQLite = "sqlite"
	BackendSheets = "sheets"

	SessionsRedis    = "redis"
	SessionsDatabase = "database"
)

// Config represents the complete intake-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Telegram TelegramConfig `yaml:"telegram"`
	Backend  BackendConfig  `yaml:"backend"`
	Sessions SessionsConfig `yaml:"sessions"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// TelegramConfig holds the bot credential and staff channel identity
type TelegramConfig struct {
	BotToken      string `yaml:"bot_token"`
	WebhookSecret string `yaml:"webhook_secret"`
	StaffChatID   string `yaml:"staff_chat_id"`
}

// BackendConfig selects where job records are persisted
type BackendConfig struct {
	// Driver is "sqlite" for the local database or "sheets" for the
	// spreadsheet web app.
	Driver string `yaml:"driver"`

	Sheets SheetsConfig `yaml:"sheets"`
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SheetsConfig holds the spreadsheet backend endpoint and credential
type SheetsConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// SQLiteConfig holds the local database path
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// SessionsConfig selects where dialogue sessions are kept
type SessionsConfig struct {
	// Backend is "redis" or "database". With "database" and the sheets
	// driver, sessions live in the spreadsheet backend too.
	Backend string `yaml:"backend"`

	Redis RedisConfig `yaml:"redis"`

	TTL time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TTLRaw string `yaml:"ttl"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.parseDurations(); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills fields that have a sensible single-node default.
func (c *Config) applyDefaults() {
	if c.Backend.Driver == "" {
		c.Backend.Driver = BackendSQLite
	}
	if c.Sessions.Backend == "" {
		c.Sessions.Backend = SessionsDatabase
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}

	switch c.Backend.Driver {
	case BackendSQLite:
		if c.Backend.SQLite.Path == "" {
			return fmt.Errorf("backend.sqlite.path is required for the sqlite driver")
		}
	case BackendSheets:
		if c.Backend.Sheets.URL == "" {
			return fmt.Errorf("backend.sheets.url is required for the sheets driver")
		}
		if c.Backend.Sheets.APIKey == "" {
			return fmt.Errorf("backend.sheets.api_key is required for the sheets driver")
		}
	default:
		return fmt.Errorf("backend.driver must be %q or %q, got %q", BackendSQLite, BackendSheets, c.Backend.Driver)
	}

	switch c.Sessions.Backend {
	case SessionsRedis:
		if c.Sessions.Redis.Addr == "" {
			return fmt.Errorf("sessions.redis.addr is required for the redis backend")
		}
	case SessionsDatabase:
	default:
		return fmt.Errorf("sessions.backend must be %q or %q, got %q", SessionsRedis, SessionsDatabase, c.Sessions.Backend)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func (c *Config) parseDurations() error {
	if c.Sessions.TTLRaw != "" {
		ttl, err := time.ParseDuration(c.Sessions.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing sessions.ttl %q: %w", c.Sessions.TTLRaw, err)
		}
		c.Sessions.TTL = ttl
	}
	return nil
}
