// Package transport performs authenticated requests against the quota API,
// selecting auth scheme from the shape of the credential rather than from
// explicit configuration.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/j-veylop/cascade-quota-engine/internal/logger"
)

// Wire paths. The local language server and the remote seat-management API
// expose the same GetUserStatus shape under different service prefixes.
const (
	LocalStatusPath  = "/exa.language_server_pb.LanguageServerService/GetUserStatus"
	HeartbeatPath    = "/exa.language_server_pb.LanguageServerService/Heartbeat"
	RemoteStatusPath = "/exa.seat_management_pb.SeatManagementService/GetUserStatus"

	// DefaultRemoteBase is the well-known remote endpoint used when the
	// operator supplies a token but no URL.
	DefaultRemoteBase = "https://server.codeium.com"
)

const (
	requestTimeout = 5 * time.Second

	// bearerPrefix marks OAuth-style tokens; anything else without a local
	// secret is sent as a basic-auth credential.
	bearerPrefix = "sk-"

	// maxErrorBody bounds how much of a failed response is kept for display.
	maxErrorBody = 512
)

// AuthMode selects how a request is authenticated.
type AuthMode int

const (
	// AuthLocalSecret sends the protocol-version and CSRF-token header pair
	// understood by the local language server.
	AuthLocalSecret AuthMode = iota
	// AuthBearer sends an Authorization: Bearer header with client
	// identification headers.
	AuthBearer
	// AuthBasic sends the credential as a basic-auth username.
	AuthBasic
)

// Config describes how to reach the quota API. Exactly one auth mode is
// active; it is derived structurally from the credential at construction.
type Config struct {
	BaseURL string
	Secret  string
	Mode    AuthMode
}

// NewLocal builds a config for a discovered local process endpoint.
func NewLocal(port int, secret string) *Config {
	return &Config{
		BaseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		Secret:  secret,
		Mode:    AuthLocalSecret,
	}
}

// NewRemote builds a config for a remote endpoint. Tokens carrying the
// recognizable OAuth prefix become bearer credentials, everything else basic.
func NewRemote(baseURL, token string) *Config {
	mode := AuthBasic
	if strings.HasPrefix(token, bearerPrefix) {
		mode = AuthBearer
	}
	return &Config{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Secret:  token,
		Mode:    mode,
	}
}

// StatusPath returns the GetUserStatus path for this target.
func (c *Config) StatusPath() string {
	if c.Mode == AuthLocalSecret {
		return LocalStatusPath
	}
	return RemoteStatusPath
}

// NetworkError wraps a transport-level failure (timeout, connection refused).
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// APIError reports a non-2xx response. Body is truncated.
type APIError struct {
	Body   string
	Status int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Body)
}

// Client issues requests against a single resolved target. Clients are
// created fresh per discovery attempt and discarded after use.
type Client struct {
	cfg  *Config
	http *http.Client
}

// NewClient creates a client for the given target.
func NewClient(cfg *Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: requestTimeout},
	}
}

// NewClientWithHTTP creates a client with a caller-supplied http.Client.
func NewClientWithHTTP(cfg *Config, hc *http.Client) *Client {
	return &Client{cfg: cfg, http: hc}
}

// Config returns the target this client was built for.
func (c *Client) Config() *Config {
	return c.cfg
}

// Fetch POSTs a JSON body to the given path and returns the raw response.
// A nil body sends an empty JSON object. Failures are either *NetworkError
// or *APIError; retry policy belongs to the caller.
func (c *Client) Fetch(ctx context.Context, path string, body any) ([]byte, error) {
	payload := []byte("{}")
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	url := c.cfg.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("failed to close response body", "error", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Body: truncate(string(raw), maxErrorBody)}
	}

	return raw, nil
}

// authorize applies the active auth mode to the request.
func (c *Client) authorize(req *http.Request) {
	switch c.cfg.Mode {
	case AuthLocalSecret:
		req.Header.Set("Connect-Protocol-Version", "1")
		req.Header.Set("X-Csrf-Token", c.cfg.Secret)
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+c.cfg.Secret)
		req.Header.Set("X-Client-Name", "cascade-quota-engine")
		req.Header.Set("X-Client-Version", "1")
	case AuthBasic:
		req.SetBasicAuth(c.cfg.Secret, "")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
