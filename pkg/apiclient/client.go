// Package apiclient provides a client for the lockstep status API.
package apiclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/marmos91/lockstep/pkg/coordinator"
)

// Client is the lockstep status API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client for baseURL, e.g. "http://localhost:8080".
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithTimeout returns a copy of the client using timeout for every request.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	return &Client{
		baseURL:    c.baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Health reports whether the liveness probe succeeds.
func (c *Client) Health() error {
	return c.get("/health", nil)
}

// Ready reports whether the coordinator loop is running.
func (c *Client) Ready() error {
	return c.get("/health/ready", nil)
}

// GetStatus returns the coordinator snapshot.
func (c *Client) GetStatus() (*coordinator.Status, error) {
	var status coordinator.Status
	if err := c.get("/api/v1/coordinator", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListSessions returns every registered session in registration order.
func (c *Client) ListSessions() ([]coordinator.SessionInfo, error) {
	var sessions []coordinator.SessionInfo
	if err := c.get("/api/v1/sessions", &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetSession returns the session of the client at key ("host:port").
func (c *Client) GetSession(key string) (*coordinator.SessionInfo, error) {
	var info coordinator.SessionInfo
	if err := c.get("/api/v1/sessions/"+url.PathEscape(key), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// do performs an HTTP request and decodes the response.
func (c *Client) do(method, path string, result any) error {
	req, err := http.NewRequest(method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// get performs a GET request.
func (c *Client) get(path string, result any) error {
	return c.do(http.MethodGet, path, result)
}
