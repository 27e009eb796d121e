// Package client is a typed HTTP client over the router sidecar's REST
// surface, bound to 127.0.0.1 by convention.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rcourtman/workbench-core/internal/wkerr"
)

// Client is a thin, JSON-over-HTTP wrapper around the router's endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// New constructs a Client bound to baseURL (typically
// "http://127.0.0.1:3456") with the given request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

// AIModel describes one model the router exposes.
type AIModel struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// ClaudeRequest is the body of POST /claude.
type ClaudeRequest struct {
	Prompt          string `json:"prompt"`
	SessionID       string `json:"sessionId,omitempty"`
	ProjectPath     string `json:"projectPath,omitempty"`
	ModelPreference string `json:"modelPreference,omitempty"`
	MaxTokens       int    `json:"maxTokens,omitempty"`
	Timestamp       int64  `json:"timestamp"`
}

// ClaudeResponse is the body of a successful POST /claude.
type ClaudeResponse struct {
	Content        string `json:"content"`
	ModelUsed      string `json:"modelUsed"`
	Provider       string `json:"provider"`
	TokenUsage     *struct {
		InputTokens  int `json:"inputTokens"`
		OutputTokens int `json:"outputTokens"`
	} `json:"tokenUsage,omitempty"`
	ResponseTimeMs int64 `json:"responseTimeMs,omitempty"`
}

// ActiveModel is the body of GET /active-model.
type ActiveModel struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func (c *Client) url(path string) string {
	return c.baseURL + path
}

// Health calls GET /health; a 2xx status is the sole success criterion.
func (c *Client) Health(ctx context.Context) error {
	return c.doNoBody(ctx, http.MethodGet, "/health", nil)
}

// Ping calls GET /ping and returns the round-trip latency.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := c.doNoBody(ctx, http.MethodGet, "/ping", nil); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// Claude calls POST /claude, retrying up to maxRetries times with linear
// backoff (attempt * 1s) on failure. maxRetries == 0 means a single
// attempt, no retry.
func (c *Client) Claude(ctx context.Context, req ClaudeRequest, maxRetries int) (ClaudeResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ClaudeResponse{}, wkerr.Timeout("router.client.claude.cancelled", ctx.Err())
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		var resp ClaudeResponse
		err := c.doJSON(ctx, http.MethodPost, "/claude", req, &resp)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return ClaudeResponse{}, lastErr
}

// Models calls GET /models.
func (c *Client) Models(ctx context.Context) ([]AIModel, error) {
	var models []AIModel
	if err := c.doJSON(ctx, http.MethodGet, "/models", nil, &models); err != nil {
		return nil, err
	}
	return models, nil
}

// SwitchModel calls POST /switch-model.
func (c *Client) SwitchModel(ctx context.Context, provider, model string) error {
	body := map[string]any{"provider": provider, "model": model, "timestamp": time.Now().UnixMilli()}
	return c.doJSON(ctx, http.MethodPost, "/switch-model", body, nil)
}

// Stats calls GET /stats, decoding into an opaque map (the shape is
// router-internal and not otherwise interpreted by the core).
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	var stats map[string]any
	if err := c.doJSON(ctx, http.MethodGet, "/stats", nil, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// ResetStats calls POST /stats/reset.
func (c *Client) ResetStats(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/stats/reset", nil, nil)
}

// ActiveModel calls GET /active-model.
func (c *Client) ActiveModel(ctx context.Context) (ActiveModel, error) {
	var am ActiveModel
	if err := c.doJSON(ctx, http.MethodGet, "/active-model", nil, &am); err != nil {
		return ActiveModel{}, err
	}
	return am, nil
}

// UpdateConfig calls POST /config/update with an opaque JSON body.
func (c *Client) UpdateConfig(ctx context.Context, body any) error {
	return c.doJSON(ctx, http.MethodPost, "/config/update", body, nil)
}

func (c *Client) doNoBody(ctx context.Context, method, path string, body any) error {
	return c.doJSON(ctx, method, path, body, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, reqBody any, respBody any) error {
	var bodyReader io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return wkerr.Parse("router.client.marshal_request", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), bodyReader)
	if err != nil {
		return wkerr.Network("router.client.new_request", err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return wkerr.Network("router.client.do", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return wkerr.Network(fmt.Sprintf("router.client.%s.status_%d", path, resp.StatusCode), fmt.Errorf("%s", string(data)))
	}

	if respBody == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil && err != io.EOF {
		return wkerr.Parse("router.client.decode_response", err)
	}
	return nil
}
