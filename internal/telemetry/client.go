// Package telemetry forwards locker events to the remote collector on a
// best-effort basis.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"laundry-locker/internal/model"
)

// ErrNotConfigured is returned when no collector URL is set.
var ErrNotConfigured = errors.New("remote server url is not configured")

// Poster sends one action to the remote collector.
type Poster interface {
	Post(ctx context.Context, action string, payload any) error
}

// Client talks to the remote collector over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
	now     func() time.Time
}

// NewClient creates a Client. Every request is bounded by timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

// Configured reports whether a collector URL is set.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

type envelope struct {
	Action    string `json:"action"`
	APIKey    string `json:"api_key"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

// Post sends payload as action to <baseURL>/<action>.
func (c *Client) Post(ctx context.Context, action string, payload any) error {
	body := envelope{
		Action:    action,
		APIKey:    c.apiKey,
		Timestamp: c.now().Format(time.RFC3339),
		Data:      payload,
	}
	_, err := c.do(ctx, action, body)
	return err
}

// FetchWashTypes asks the collector for its wash type catalog.
func (c *Client) FetchWashTypes(ctx context.Context) ([]model.WashType, error) {
	body, err := c.do(ctx, "get_wash_types", envelope{Action: "get_wash_types", APIKey: c.apiKey})
	if err != nil {
		return nil, err
	}

	var resp struct {
		WashTypes []model.WashType `json:"wash_types"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wash types: %w", err)
	}
	for i := range resp.WashTypes {
		if resp.WashTypes[i].ID == "" {
			resp.WashTypes[i].ID = "0"
		}
		if resp.WashTypes[i].Name == "" {
			resp.WashTypes[i].Name = "Unknown"
		}
	}
	return resp.WashTypes, nil
}

func (c *Client) do(ctx context.Context, action string, payload envelope) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", action, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+action, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
