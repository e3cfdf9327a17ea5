// ABOUTME: HTTP JSON client for the spreadsheet backend (Apps Script web app).
// ABOUTME: Implements the job sink and session store contracts over POST actions.

// Package sheets talks to the shop's spreadsheet backend, an Apps Script web
// app that accepts a single POST endpoint with an action field. Every call
// carries the API key; responses use an {ok, result, error} envelope. The
// client classifies failures into the shared taxonomy: transport errors for
// unreachable backends, backend-logic errors for rejected requests, and
// malformed-response errors when the envelope or result does not parse. The
// last category is logged distinctly because it indicates a contract
// violation in the backend, not transience.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/OGJRx/intake-gateway/internal/flow"
	"github.com/OGJRx/intake-gateway/internal/job"
	"github.com/OGJRx/intake-gateway/internal/session"
)

// Backend actions.
const (
	actionReadSession  = "READ_SESSION"
	actionWriteSession = "WRITE_SESSION"
	actionSaveJob      = "SAVE_JOB"
	actionQueryJobs    = "QUERY_JOBS"
)

// Client implements job.Sink and session.Store against the backend endpoint.
type Client struct {
	url    string
	apiKey string
	http   *http.Client
	logger *slog.Logger
}

// Interface checks.
var (
	_ job.Sink      = (*Client)(nil)
	_ session.Store = (*Client)(nil)
)

// NewClient creates a client for the given endpoint and credential.
func NewClient(url, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		url:    url,
		apiKey: apiKey,
		http:   &http.Client{Timeout: 15 * time.Second},
		logger: logger.With("component", "sheets"),
	}
}

// envelope is the backend response wrapper.
type envelope struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// call performs one backend action and returns the raw result payload.
func (c *Client) call(ctx context.Context, action string, payload map[string]any) (json.RawMessage, error) {
	body := map[string]any{
		"apiKey": c.apiKey,
		"action": action,
	}
	for k, v := range payload {
		body[k] = v
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", job.ErrTransport, action, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s response: %v", job.ErrTransport, action, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s: HTTP %d", job.ErrTransport, action, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: %s: HTTP %d", job.ErrBackendLogic, action, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Error("backend returned non-conforming payload",
			"action", action, "error", err)
		return nil, fmt.Errorf("%w: decoding %s envelope: %v", job.ErrMalformedResponse, action, err)
	}
	if !env.OK {
		return nil, fmt.Errorf("%w: %s: %s", job.ErrBackendLogic, action, env.Error)
	}
	return env.Result, nil
}

// sheetJob is the backend's job row shape.
type sheetJob struct {
	ID          string `json:"ID"`
	ChatID      any    `json:"chat_id"` // backend stores numbers or strings
	ClientName  string `json:"client_name"`
	VehicleInfo string `json:"vehicle_info"`
	Status      string `json:"status"`
	Notes       string `json:"notes"`
	Progress    int    `json:"progress"`
	IsLead      bool   `json:"is_lead"`
	CreatedAt   string `json:"created_at,omitempty"`
}

func toSheetJob(rec *job.Record) sheetJob {
	return sheetJob{
		ID:          rec.ID,
		ChatID:      rec.ChatID,
		ClientName:  rec.ClientName,
		VehicleInfo: rec.VehicleInfo,
		Status:      string(rec.Status),
		Notes:       rec.Notes,
		Progress:    rec.Progress,
		IsLead:      rec.IsLead,
	}
}

func (j sheetJob) toRecord() *job.Record {
	return &job.Record{
		ID:          j.ID,
		ChatID:      fmt.Sprint(j.ChatID),
		ClientName:  j.ClientName,
		VehicleInfo: j.VehicleInfo,
		Notes:       j.Notes,
		Status:      job.Status(j.Status),
		Progress:    j.Progress,
		IsLead:      j.IsLead,
	}
}

// Save implements job.Sink.
func (c *Client) Save(ctx context.Context, rec *job.Record) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", job.ErrBackendLogic, err)
	}

	result, err := c.call(ctx, actionSaveJob, map[string]any{
		"jobData": toSheetJob(rec),
	})
	if err != nil {
		return "", err
	}

	var saved struct {
		ID string `json:"ID"`
	}
	if err := json.Unmarshal(result, &saved); err != nil {
		c.logger.Error("backend returned non-conforming save result", "error", err)
		return "", fmt.Errorf("%w: decoding save result: %v", job.ErrMalformedResponse, err)
	}

	rec.ID = saved.ID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return saved.ID, nil
}

// Query implements job.Sink. The backend returns rows in sheet order, which
// is insertion order; the status command relies on most-recent-last.
func (c *Client) Query(ctx context.Context, chatID string) ([]*job.Record, error) {
	result, err := c.call(ctx, actionQueryJobs, map[string]any{
		"chatId": chatID,
	})
	if err != nil {
		return nil, err
	}

	var rows []sheetJob
	if err := json.Unmarshal(result, &rows); err != nil {
		c.logger.Error("backend returned non-conforming query result", "error", err)
		return nil, fmt.Errorf("%w: decoding query result: %v", job.ErrMalformedResponse, err)
	}

	records := make([]*job.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toRecord())
	}
	return records, nil
}

// sheetSession is the backend's session row shape.
type sheetSession struct {
	CurrentStep string            `json:"current_step"`
	TempData    map[string]string `json:"temp_data"`
}

// Read implements session.Store. The backend answers with an empty step for
// users it has never seen, which maps to ErrNotFound.
func (c *Client) Read(ctx context.Context, userID string) (session.State, error) {
	result, err := c.call(ctx, actionReadSession, map[string]any{
		"userId": userID,
	})
	if err != nil {
		return session.State{}, err
	}

	var row sheetSession
	if err := json.Unmarshal(result, &row); err != nil {
		c.logger.Error("backend returned non-conforming session", "error", err)
		return session.State{}, fmt.Errorf("%w: decoding session: %v", job.ErrMalformedResponse, err)
	}
	if row.CurrentStep == "" {
		return session.State{}, session.ErrNotFound
	}

	state := session.State{Step: flow.Step(row.CurrentStep), Data: row.TempData}
	if state.Data == nil {
		state.Data = map[string]string{}
	}
	return state, nil
}

// Write implements session.Store.
func (c *Client) Write(ctx context.Context, userID string, state session.State) error {
	_, err := c.call(ctx, actionWriteSession, map[string]any{
		"userId":      userID,
		"currentStep": string(state.Step),
		"tempData":    state.Data,
		"isClear":     false,
	})
	return err
}

// Clear implements session.Store by writing the idle state with the clear
// flag, which lets the backend drop the row.
func (c *Client) Clear(ctx context.Context, userID string) error {
	_, err := c.call(ctx, actionWriteSession, map[string]any{
		"userId":      userID,
		"currentStep": string(flow.StepIdle),
		"tempData":    map[string]string{},
		"isClear":     true,
	})
	return err
}

// Ping verifies the backend answers a read. Used by the readiness endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Read(ctx, "healthcheck")
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return err
	}
	return nil
}

// Close implements the store contracts; the HTTP client holds no resources
// that outlive requests.
func (c *Client) Close() error {
	return nil
}
