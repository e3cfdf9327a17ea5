// ABOUTME: Tests for gateway wiring and HTTP endpoints.
// ABOUTME: Uses an in-memory SQLite backend end to end through the router.

package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OGJRx/intake-gateway/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Telegram: config.TelegramConfig{
			BotToken:      "123:abc",
			WebhookSecret: "hook-secret",
		},
		Backend: config.BackendConfig{
			Driver: config.BackendSQLite,
			SQLite: config.SQLiteConfig{Path: ":memory:"},
		},
		Sessions: config.SessionsConfig{Backend: config.SessionsDatabase},
		Metrics:  config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func newTestGateway(t *testing.T) (*Gateway, http.Handler) {
	t.Helper()
	gw, err := New(testConfig(), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.backend.Close() })
	return gw, gw.buildRouter()
}

func postUpdate(t *testing.T, router http.Handler, secret, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	if secret != "" {
		req.Header.Set("X-Telegram-Bot-Api-Secret-Token", secret)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	_, router := newTestGateway(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	_, router := newTestGateway(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	_, router := newTestGateway(t)

	rec := postUpdate(t, router, "wrong", `{"update_id":1}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhookStartConversation(t *testing.T) {
	_, router := newTestGateway(t)

	rec := postUpdate(t, router, "hook-secret", `{
		"update_id": 10,
		"message": {
			"message_id": 1,
			"from": {"id": 42, "first_name": "Ana"},
			"chat": {"id": 42},
			"text": "/start"
		}
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var reply struct {
		Method string `json:"method"`
		ChatID string `json:"chat_id"`
		Text   string `json:"text"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, "sendMessage", reply.Method)
	assert.Equal(t, "42", reply.ChatID)
	assert.NotEmpty(t, reply.Text)
}

func TestWebhookDuplicateDeliveryAcknowledged(t *testing.T) {
	_, router := newTestGateway(t)

	body := `{
		"update_id": 77,
		"message": {
			"message_id": 1,
			"from": {"id": 42, "first_name": "Ana"},
			"chat": {"id": 42},
			"text": "/start"
		}
	}`

	first := postUpdate(t, router, "hook-secret", body)
	require.Equal(t, http.StatusOK, first.Code)
	assert.NotEmpty(t, first.Body.String())

	second := postUpdate(t, router, "hook-secret", body)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Empty(t, second.Body.String())
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Backend.Driver = "postgres"
	_, err := New(cfg, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend driver")
}
