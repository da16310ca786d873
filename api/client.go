// Package api is the HTTP client for the sync server. It performs no
// retries itself; callers wrap calls in the async backoff policy so that
// transport failures stay invisible to the rest of the engine.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultServerURL is the production sync server
const DefaultServerURL = "https://api.happy.engineering"

// Client talks to the sync server with bearer-token auth
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a Client for the given server and bearer token
func NewClient(serverURL, token string) *Client {
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	return &Client{
		baseURL:    serverURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// StatusError reports a non-2xx response. Retryable distinguishes server
// faults (retried by the backoff loop) from client errors.
type StatusError struct {
	Status int
	Body   string
}

// Error implements the error interface
func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Body)
}

// Retryable reports whether the failure is worth retrying
func (e *StatusError) Retryable() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Status: resp.StatusCode, Body: truncate(string(payload), 200)}
	}

	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ListSessions fetches the full session listing. Sessions absent from
// the result are treated as deleted by the store.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	var out struct {
		Sessions []Session `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/sessions", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// ListMachines fetches all machines known to the account
func (c *Client) ListMachines(ctx context.Context) ([]Machine, error) {
	var out struct {
		Machines []Machine `json:"machines"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/machines", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Machines, nil
}

// ListMessages fetches one page of a session's message log starting
// after cursor (empty cursor starts from the beginning)
func (c *Client) ListMessages(ctx context.Context, sessionID, cursor string) (*MessagesPage, error) {
	query := url.Values{}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	var out MessagesPage
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(sessionID)+"/messages", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage posts an encrypted message to a session
func (c *Client) SendMessage(ctx context.Context, sessionID string, req SendMessageRequest) error {
	return c.do(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/messages", nil, req, nil)
}

// AnswerPermission approves or denies a pending permission request
func (c *Client) AnswerPermission(ctx context.Context, sessionID, requestID string, approved bool) error {
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/permissions/" + url.PathEscape(requestID)
	return c.do(ctx, http.MethodPost, path, nil, PermissionDecision{Approved: approved}, nil)
}

// ListFeed fetches one page of the account activity feed
func (c *Client) ListFeed(ctx context.Context, cursor string) (*FeedPage, error) {
	query := url.Values{}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	var out FeedPage
	if err := c.do(ctx, http.MethodGet, "/v1/feed", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueryUsage aggregates usage records server-side
func (c *Client) QueryUsage(ctx context.Context, query UsageQuery) (*UsageReport, error) {
	var out UsageReport
	if err := c.do(ctx, http.MethodPost, "/v1/usage/query", nil, query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RegisterPushToken registers a push token so the server can wake this
// client on new activity
func (c *Client) RegisterPushToken(ctx context.Context, token, platform string) error {
	return c.do(ctx, http.MethodPost, "/v1/push-tokens", nil, PushTokenRequest{Token: token, Platform: platform}, nil)
}

// GetAccountSettings fetches the opaque synced settings blob
func (c *Client) GetAccountSettings(ctx context.Context) (*AccountSettings, error) {
	var out AccountSettings
	if err := c.do(ctx, http.MethodGet, "/v1/account/settings", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateAccountSettings pushes a new settings blob with its expected
// version; the server echoes the accepted state
func (c *Client) UpdateAccountSettings(ctx context.Context, settings AccountSettings) (*AccountSettings, error) {
	var out AccountSettings
	if err := c.do(ctx, http.MethodPost, "/v1/account/settings", nil, settings, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ApprovePairing posts a box-encrypted pairing approval for a device or
// terminal that presented the given public key
func (c *Client) ApprovePairing(ctx context.Context, approval PairingApproval) error {
	return c.do(ctx, http.MethodPost, "/v1/account/pairing/approve", nil, approval, nil)
}
