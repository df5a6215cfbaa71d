package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wricardo/session-relay/relay/service"
	"github.com/wricardo/session-relay/relay/session"
)

// Client implements service.RelayService against a running relay's REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ service.RelayService = (*Client)(nil)

// NewClient creates a client for the relay at baseURL, e.g. http://127.0.0.1:3000
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ListSessions fetches GET /api/sessions
func (c *Client) ListSessions(ctx context.Context) ([]*service.SessionInfo, error) {
	var response struct {
		Count    int                    `json:"count"`
		Sessions []*service.SessionInfo `json:"sessions"`
	}
	if err := c.apiCall(ctx, "/api/sessions", &response); err != nil {
		return nil, err
	}
	return response.Sessions, nil
}

// GetSession fetches GET /api/sessions/{id}. A 404 wraps session.ErrSessionNotFound.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*service.SessionInfo, error) {
	var info service.SessionInfo
	err := c.apiCall(ctx, "/api/sessions/"+url.PathEscape(sessionID), &info)
	if err != nil {
		if apiErr, ok := err.(*apiError); ok && apiErr.status == http.StatusNotFound {
			return nil, fmt.Errorf("session %s: %w", sessionID, session.ErrSessionNotFound)
		}
		return nil, err
	}
	return &info, nil
}

// Stats fetches GET /api/stats
func (c *Client) Stats(ctx context.Context) (*service.Stats, error) {
	var stats service.Stats
	if err := c.apiCall(ctx, "/api/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string {
	if e.message != "" {
		return e.message
	}
	return fmt.Sprintf("API error: %d", e.status)
}

func (c *Client) apiCall(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		return &apiError{status: resp.StatusCode, message: errResp["error"]}
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}
