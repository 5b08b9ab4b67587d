package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

// MockRoundTripper implements http.RoundTripper for testing
type MockRoundTripper struct {
	RoundTripFunc func(req *http.Request) (*http.Response, error)
}

func (m *MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.RoundTripFunc(req)
}

func newTestClient(cfg *Config, rt http.RoundTripper) *Client {
	return NewClientWithHTTP(cfg, &http.Client{Transport: rt})
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

func TestNewRemoteAuthModeSelection(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  AuthMode
	}{
		{"oauth prefix", "sk-abc123", AuthBearer},
		{"opaque token", "abc123", AuthBasic},
		{"empty token", "", AuthBasic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewRemote("https://example.com", tt.token)
			if cfg.Mode != tt.want {
				t.Errorf("Mode = %v, want %v", cfg.Mode, tt.want)
			}
		})
	}
}

func TestLocalSecretHeaders(t *testing.T) {
	var captured *http.Request
	rt := &MockRoundTripper{RoundTripFunc: func(req *http.Request) (*http.Response, error) {
		captured = req
		return jsonResponse(http.StatusOK, `{}`), nil
	}}

	client := newTestClient(NewLocal(42100, "secret-tok"), rt)
	if _, err := client.Fetch(context.Background(), LocalStatusPath, nil); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if got := captured.Header.Get("X-Csrf-Token"); got != "secret-tok" {
		t.Errorf("X-Csrf-Token = %q, want %q", got, "secret-tok")
	}
	if got := captured.Header.Get("Connect-Protocol-Version"); got != "1" {
		t.Errorf("Connect-Protocol-Version = %q, want %q", got, "1")
	}
	if captured.Header.Get("Authorization") != "" {
		t.Error("local secret request must not carry an Authorization header")
	}
	if got := captured.URL.String(); got != "http://127.0.0.1:42100"+LocalStatusPath {
		t.Errorf("URL = %q", got)
	}
}

func TestBearerHeaders(t *testing.T) {
	var captured *http.Request
	rt := &MockRoundTripper{RoundTripFunc: func(req *http.Request) (*http.Response, error) {
		captured = req
		return jsonResponse(http.StatusOK, `{}`), nil
	}}

	client := newTestClient(NewRemote("https://example.com", "sk-tok"), rt)
	if _, err := client.Fetch(context.Background(), RemoteStatusPath, nil); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if got := captured.Header.Get("Authorization"); got != "Bearer sk-tok" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer sk-tok")
	}
	if captured.Header.Get("X-Client-Name") == "" {
		t.Error("bearer request missing client identification headers")
	}
}

func TestBasicAuth(t *testing.T) {
	var captured *http.Request
	rt := &MockRoundTripper{RoundTripFunc: func(req *http.Request) (*http.Response, error) {
		captured = req
		return jsonResponse(http.StatusOK, `{}`), nil
	}}

	client := newTestClient(NewRemote("https://example.com", "opaque"), rt)
	if _, err := client.Fetch(context.Background(), RemoteStatusPath, nil); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	user, _, ok := captured.BasicAuth()
	if !ok || user != "opaque" {
		t.Errorf("basic auth user = %q ok=%v, want %q", user, ok, "opaque")
	}
}

func TestFetchAPIError(t *testing.T) {
	longBody := strings.Repeat("x", 2000)
	rt := &MockRoundTripper{RoundTripFunc: func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusForbidden, longBody), nil
	}}

	client := newTestClient(NewLocal(42100, "tok"), rt)
	_, err := client.Fetch(context.Background(), LocalStatusPath, nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.Status != http.StatusForbidden {
		t.Errorf("Status = %d, want %d", apiErr.Status, http.StatusForbidden)
	}
	if len(apiErr.Body) != maxErrorBody {
		t.Errorf("Body length = %d, want truncated to %d", len(apiErr.Body), maxErrorBody)
	}
}

func TestFetchNetworkError(t *testing.T) {
	rt := &MockRoundTripper{RoundTripFunc: func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}}

	client := newTestClient(NewLocal(42100, "tok"), rt)
	_, err := client.Fetch(context.Background(), LocalStatusPath, nil)

	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("error type = %T, want *NetworkError", err)
	}
}

func TestStatusPath(t *testing.T) {
	if got := NewLocal(1, "tok").StatusPath(); got != LocalStatusPath {
		t.Errorf("local StatusPath() = %q", got)
	}
	if got := NewRemote("https://example.com", "sk-tok").StatusPath(); got != RemoteStatusPath {
		t.Errorf("remote StatusPath() = %q", got)
	}
}

func TestFetchMarshalsBody(t *testing.T) {
	var sent []byte
	rt := &MockRoundTripper{RoundTripFunc: func(req *http.Request) (*http.Response, error) {
		sent, _ = io.ReadAll(req.Body)
		return jsonResponse(http.StatusOK, `{}`), nil
	}}

	client := newTestClient(NewLocal(42100, "tok"), rt)
	if _, err := client.Fetch(context.Background(), LocalStatusPath, map[string]string{"a": "b"}); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(sent) != `{"a":"b"}` {
		t.Errorf("body = %q, want %q", sent, `{"a":"b"}`)
	}

	if _, err := client.Fetch(context.Background(), LocalStatusPath, nil); err != nil {
		t.Fatalf("Fetch(nil body) error = %v", err)
	}
	if string(sent) != `{}` {
		t.Errorf("nil body sent %q, want %q", sent, `{}`)
	}
}
