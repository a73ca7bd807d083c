package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client talks to the debug API of a running launcher. The API binds to
// loopback only, so the client speaks plain HTTP.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL string        // e.g. http://127.0.0.1:7878
	Timeout time.Duration // per-request timeout
	Logger  *slog.Logger  // optional logger for client operations
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:7878",
		Timeout: 5 * time.Second,
	}
}

// New creates a debug API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable reports whether a launcher answers on the configured
// address at all. A 503 from a still-probing launcher counts as
// reachable.
func (c *Client) IsReachable(ctx context.Context) bool {
	resp, err := c.get(ctx, "/healthz")
	if err != nil {
		c.logger.Debug("launcher unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode != http.StatusNotFound
}

// Health returns the health state string and whether the backend is
// ready. A 503 is a valid answer, not an error.
func (c *Client) Health(ctx context.Context) (string, bool, error) {
	resp, err := c.get(ctx, "/healthz")
	if err != nil {
		return "", false, err
	}
	defer func() { _ = resp.Body.Close() }()
	var hr healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		return "", false, fmt.Errorf("decode health response: %w", err)
	}
	return hr.Status, resp.StatusCode == http.StatusOK, nil
}

// Status fetches the full launch status.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	if err := c.getJSON(ctx, "/status", &st); err != nil {
		return Status{}, err
	}
	return st, nil
}

// Usage fetches the backend resource history. It fails when the
// launcher runs without usage sampling.
func (c *Client) Usage(ctx context.Context) (Usage, error) {
	var u Usage
	if err := c.getJSON(ctx, "/usage", &u); err != nil {
		return Usage{}, err
	}
	return u, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return c.apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// apiError extracts the error payload from a non-200 response.
func (c *Client) apiError(resp *http.Response) error {
	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Error == "" {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return fmt.Errorf("API error: %s", er.Error)
}
