// ABOUTME: Webhook HTTP handler: secret check, dedupe, dispatch, inline reply.
// ABOUTME: Replies ride the webhook response as a sendMessage method payload.

package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/OGJRx/intake-gateway/internal/dedupe"
	"github.com/OGJRx/intake-gateway/internal/intake"
	"github.com/OGJRx/intake-gateway/internal/metrics"
)

// secretTokenHeader is set by Telegram when a webhook secret is configured.
const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// TurnHandler processes one intake event. Implemented by intake.Service.
type TurnHandler interface {
	HandleEvent(ctx context.Context, ev intake.Event) (intake.Reply, error)
}

// WebhookConfig collects the webhook handler dependencies.
type WebhookConfig struct {
	Handler TurnHandler
	Tracker *dedupe.Tracker
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// Secret, when non-empty, must match the secret token header on every
	// delivery. Telegram echoes the value configured on setWebhook.
	Secret string
}

// Webhook handles POST deliveries from the Bot API.
type Webhook struct {
	handler TurnHandler
	tracker *dedupe.Tracker
	metrics *metrics.Metrics
	logger  *slog.Logger
	secret  string
}

// NewWebhook creates the webhook handler.
func NewWebhook(cfg WebhookConfig) *Webhook {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Webhook{
		handler: cfg.Handler,
		tracker: cfg.Tracker,
		metrics: m,
		logger:  logger.With("component", "webhook"),
		secret:  cfg.Secret,
	}
}

// webhookReply is the inline answer to a delivery. Telegram executes the
// named method with the remaining fields, saving a round trip to the API.
type webhookReply struct {
	Method    string `json:"method"`
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// ServeHTTP implements http.Handler.
func (wh *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if wh.secret != "" && r.Header.Get(secretTokenHeader) != wh.secret {
		wh.logger.Warn("webhook delivery with bad secret token", "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var update Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		wh.logger.Warn("undecodable webhook payload", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	started := time.Now()
	defer func() {
		wh.metrics.TurnDuration.Observe(time.Since(started).Seconds())
	}()

	// Telegram redelivers updates whose response was lost; answer duplicates
	// with an empty 200 so the retry loop stops without reprocessing.
	deliveryID := fmt.Sprintf("telegram:%d", update.UpdateID)
	if wh.tracker != nil && wh.tracker.Seen(deliveryID) {
		wh.logger.Debug("duplicate delivery ignored", "update_id", update.UpdateID)
		wh.metrics.DedupeHitsTotal.Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	ev, ok := EventFromUpdate(&update)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}

	reply, err := wh.handler.HandleEvent(r.Context(), ev)
	if err != nil {
		// The reply already carries the user-facing retry message; the
		// error is recorded here for the operator.
		wh.logger.Error("turn failed", "update_id", update.UpdateID, "kind", ev.Kind(), "error", err)
	}

	if reply.Text == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	out := webhookReply{
		Method: "sendMessage",
		ChatID: ev.ChatID,
		Text:   reply.Text,
	}
	if reply.Markdown {
		out.ParseMode = "Markdown"
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		wh.logger.Error("encoding webhook reply", "error", err)
	}
}
