// ABOUTME: Tests for configuration loading, env expansion, and validation.
// ABOUTME: Uses temp config files to exercise the full Load path.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":8080"
telegram:
  bot_token: "123:abc"
  webhook_secret: "hook-secret"
  staff_chat_id: "-100200300"
backend:
  driver: sqlite
  sqlite:
    path: "/tmp/intake.db"
sessions:
  backend: redis
  ttl: 2h
  redis:
    addr: "localhost:6379"
    db: 3
logging:
  level: debug
  format: json
metrics:
  enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "123:abc", cfg.Telegram.BotToken)
	assert.Equal(t, "hook-secret", cfg.Telegram.WebhookSecret)
	assert.Equal(t, "-100200300", cfg.Telegram.StaffChatID)
	assert.Equal(t, BackendSQLite, cfg.Backend.Driver)
	assert.Equal(t, "/tmp/intake.db", cfg.Backend.SQLite.Path)
	assert.Equal(t, SessionsRedis, cfg.Sessions.Backend)
	assert.Equal(t, 2*time.Hour, cfg.Sessions.TTL)
	assert.Equal(t, "localhost:6379", cfg.Sessions.Redis.Addr)
	assert.Equal(t, 3, cfg.Sessions.Redis.DB)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "456:def")
	t.Setenv("TEST_SHEETS_KEY", "sekrit")

	path := writeConfig(t, `
server:
  http_addr: ":8080"
telegram:
  bot_token: "${TEST_BOT_TOKEN}"
backend:
  driver: sheets
  sheets:
    url: "https://script.example.com/exec"
    api_key: "${TEST_SHEETS_KEY}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "456:def", cfg.Telegram.BotToken)
	assert.Equal(t, "sekrit", cfg.Backend.Sheets.APIKey)
}

func TestLoadUnsetEnvVarBecomesEmpty(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":8080"
telegram:
  bot_token: "${DEFINITELY_NOT_SET_12345}"
backend:
  driver: sqlite
  sqlite:
    path: "/tmp/intake.db"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram.bot_token is required")
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":8080"
telegram:
  bot_token: "123:abc"
backend:
  sqlite:
    path: "/tmp/intake.db"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Backend.Driver)
	assert.Equal(t, SessionsDatabase, cfg.Sessions.Backend)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Zero(t, cfg.Sessions.TTL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoadBadTTL(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":8080"
telegram:
  bot_token: "123:abc"
backend:
  driver: sqlite
  sqlite:
    path: "/tmp/intake.db"
sessions:
  ttl: "not-a-duration"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing durations")
}

func TestValidateErrors(t *testing.T) {
	base := func() Config {
		return Config{
			Server:   ServerConfig{HTTPAddr: ":8080"},
			Telegram: TelegramConfig{BotToken: "123:abc"},
			Backend: BackendConfig{
				Driver: BackendSQLite,
				SQLite: SQLiteConfig{Path: "/tmp/intake.db"},
			},
			Sessions: SessionsConfig{Backend: SessionsDatabase},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing http addr",
			mutate:  func(c *Config) { c.Server.HTTPAddr = "" },
			wantErr: "server.http_addr is required",
		},
		{
			name:    "missing bot token",
			mutate:  func(c *Config) { c.Telegram.BotToken = "" },
			wantErr: "telegram.bot_token is required",
		},
		{
			name:    "sqlite without path",
			mutate:  func(c *Config) { c.Backend.SQLite.Path = "" },
			wantErr: "backend.sqlite.path is required",
		},
		{
			name: "sheets without url",
			mutate: func(c *Config) {
				c.Backend.Driver = BackendSheets
				c.Backend.Sheets.APIKey = "k"
			},
			wantErr: "backend.sheets.url is required",
		},
		{
			name: "sheets without api key",
			mutate: func(c *Config) {
				c.Backend.Driver = BackendSheets
				c.Backend.Sheets.URL = "https://script.example.com/exec"
			},
			wantErr: "backend.sheets.api_key is required",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Backend.Driver = "postgres" },
			wantErr: "backend.driver must be",
		},
		{
			name: "redis sessions without addr",
			mutate: func(c *Config) {
				c.Sessions.Backend = SessionsRedis
			},
			wantErr: "sessions.redis.addr is required",
		},
		{
			name:    "unknown session backend",
			mutate:  func(c *Config) { c.Sessions.Backend = "memcached" },
			wantErr: "sessions.backend must be",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
