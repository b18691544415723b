// Package business forwards confirmed actions to the maintenance platform's
// business API. Work orders and status queries are created there; this
// engine only decides that an action should happen.
package business

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fieldvoice/fieldvoice/internal/models"
)

// Dispatcher delivers structured actions downstream.
type Dispatcher interface {
	Dispatch(ctx context.Context, sessionID string, action models.Action) error
}

// HTTPDispatcher posts actions to the business API.
type HTTPDispatcher struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Dispatcher = (*HTTPDispatcher)(nil)

// NewHTTPDispatcher creates a dispatcher against the business API at baseURL.
func NewHTTPDispatcher(baseURL string, logger *slog.Logger) *HTTPDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPDispatcher{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

type actionPayload struct {
	SessionID string            `json:"session_id"`
	Type      string            `json:"type"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Dispatch posts one action. The action type selects the endpoint.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, sessionID string, action models.Action) error {
	body, err := json.Marshal(actionPayload{
		SessionID: sessionID,
		Type:      action.Type,
		Fields:    action.Fields,
	})
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}

	endpoint := d.baseURL + "/actions/" + action.Type
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", action.Type, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("dispatch %s: %s - %s", action.Type, resp.Status, string(respBody))
	}

	d.logger.Info("action dispatched", "session_id", sessionID, "type", action.Type)
	return nil
}

// LogDispatcher records actions without delivering them anywhere. Used in
// deployments without a business API and in tests.
type LogDispatcher struct {
	logger *slog.Logger
}

var _ Dispatcher = (*LogDispatcher)(nil)

// NewLogDispatcher creates a dispatcher that only logs.
func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger}
}

// Dispatch logs the action and succeeds.
func (d *LogDispatcher) Dispatch(_ context.Context, sessionID string, action models.Action) error {
	d.logger.Info("action recorded", "session_id", sessionID, "type", action.Type, "fields", action.Fields)
	return nil
}
