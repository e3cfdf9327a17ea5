// ABOUTME: Tests for the webhook handler: secret checks, dedupe, inline replies.
// ABOUTME: Uses a fake turn handler; no real Bot API involved.

package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OGJRx/intake-gateway/internal/dedupe"
	"github.com/OGJRx/intake-gateway/internal/intake"
)

type fakeTurnHandler struct {
	events []intake.Event
	reply  intake.Reply
	err    error
}

func (f *fakeTurnHandler) HandleEvent(_ context.Context, ev intake.Event) (intake.Reply, error) {
	f.events = append(f.events, ev)
	return f.reply, f.err
}

func newWebhook(handler TurnHandler, secret string) *Webhook {
	return NewWebhook(WebhookConfig{
		Handler: handler,
		Tracker: dedupe.NewTracker(time.Minute, 100),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Secret:  secret,
	})
}

func postUpdate(t *testing.T, wh *Webhook, update *Update, secret string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(update)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	if secret != "" {
		req.Header.Set(secretTokenHeader, secret)
	}
	rec := httptest.NewRecorder()
	wh.ServeHTTP(rec, req)
	return rec
}

func TestWebhook_ReplyRidesResponse(t *testing.T) {
	handler := &fakeTurnHandler{reply: intake.Reply{Text: "✅ Done!", Markdown: true}}
	wh := newWebhook(handler, "")

	rec := postUpdate(t, wh, update("Engine noise"), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out webhookReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "sendMessage", out.Method)
	assert.Equal(t, "555", out.ChatID)
	assert.Equal(t, "✅ Done!", out.Text)
	assert.Equal(t, "Markdown", out.ParseMode)

	require.Len(t, handler.events, 1)
	assert.Equal(t, "Engine noise", handler.events[0].Text)
}

func TestWebhook_DuplicateDeliveryDropped(t *testing.T) {
	handler := &fakeTurnHandler{reply: intake.Reply{Text: "hi"}}
	wh := newWebhook(handler, "")

	u := update("hello")
	postUpdate(t, wh, u, "")
	rec := postUpdate(t, wh, u, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String(), "duplicate gets an empty acknowledgment")
	assert.Len(t, handler.events, 1, "turn must run only once")
}

func TestWebhook_SecretRequired(t *testing.T) {
	handler := &fakeTurnHandler{}
	wh := newWebhook(handler, "hunter2")

	rec := postUpdate(t, wh, update("hello"), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, handler.events)

	rec = postUpdate(t, wh, update("hello"), "hunter2")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, handler.events, 1)
}

func TestWebhook_MalformedBody(t *testing.T) {
	wh := newWebhook(&fakeTurnHandler{}, "")

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte("{broken")))
	rec := httptest.NewRecorder()
	wh.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_UnactionableUpdateAcknowledged(t *testing.T) {
	handler := &fakeTurnHandler{}
	wh := newWebhook(handler, "")

	rec := postUpdate(t, wh, &Update{UpdateID: 9}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, handler.events)
}

func TestWebhook_HandlerErrorStillReplies(t *testing.T) {
	handler := &fakeTurnHandler{
		reply: intake.Reply{Text: "⚠️ Please try again in a moment."},
		err:   errors.New("backend unreachable"),
	}
	wh := newWebhook(handler, "")

	rec := postUpdate(t, wh, update("Engine noise"), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out webhookReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Contains(t, out.Text, "try again")
}

func TestWebhook_EmptyReplyMeansNoBody(t *testing.T) {
	handler := &fakeTurnHandler{}
	wh := newWebhook(handler, "")

	rec := postUpdate(t, wh, update("hello"), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}
