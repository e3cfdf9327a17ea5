// ABOUTME: Outbound Bot API client for sendMessage and setWebhook calls.
// ABOUTME: Backs the staff notifier; webhook replies don't need it.

package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const defaultAPIBase = "https://api.telegram.org"

// Client performs outbound Bot API calls. User replies ride the webhook
// response, so the client exists for staff notifications and for webhook
// registration at deploy time.
type Client struct {
	apiBase string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a Bot API client for the given token.
func NewClient(token string, logger *slog.Logger) *Client {
	return &Client{
		apiBase: defaultAPIBase,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With("component", "telegram"),
	}
}

// NewClientWithBase creates a client against a custom API base URL. Used by
// tests to point at a local server.
func NewClientWithBase(apiBase, token string, logger *slog.Logger) *Client {
	c := NewClient(token, logger)
	c.apiBase = apiBase
	return c
}

// apiResponse is the Bot API envelope.
type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// call posts a JSON payload to a Bot API method and checks the envelope.
func (c *Client) call(ctx context.Context, method string, payload map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.apiBase, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if !result.OK {
		return fmt.Errorf("%s rejected: %s", method, result.Description)
	}
	return nil
}

// SendMessage sends markdown text to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	return c.call(ctx, "sendMessage", map[string]string{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
}

// SetWebhook registers the public HTTPS URL Telegram should deliver updates
// to. The secret, when non-empty, is echoed back on every delivery and
// verified by the webhook handler.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	payload := map[string]string{"url": url}
	if secret != "" {
		payload["secret_token"] = secret
	}
	return c.call(ctx, "setWebhook", payload)
}

// StaffNotifier adapts the client to the intake notifier contract, targeting
// the configured staff channel.
type StaffNotifier struct {
	client *Client
	chatID string
}

// NewStaffNotifier creates a notifier for the staff chat. Returns nil when
// no staff chat is configured; the intake service treats a nil notifier as
// notifications disabled.
func NewStaffNotifier(client *Client, chatID string) *StaffNotifier {
	if chatID == "" {
		return nil
	}
	return &StaffNotifier{client: client, chatID: chatID}
}

// NotifyStaff sends the summary to the staff chat.
func (n *StaffNotifier) NotifyStaff(ctx context.Context, summary string) error {
	return n.client.SendMessage(ctx, n.chatID, summary)
}
