package broker

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/quintonwall/airbyte-token-manager/tokenmanager"
)

func newBroker(t *testing.T, configure bool) (*Broker, *atomic.Int64) {
	t.Helper()

	var refreshes atomic.Int64
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := refreshes.Add(1)
		fmt.Fprintf(w, `{"access_token":"token-%d","token_type":"Bearer","expires_in":3600}`, n)
	}))
	t.Cleanup(tokenServer.Close)

	m := tokenmanager.New(tokenmanager.WithEndpoints([]string{tokenServer.URL}))
	if configure {
		if err := m.Configure("id", "secret", "ws"); err != nil {
			t.Fatalf("Configure failed: %v", err)
		}
	}

	b, err := New(m)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return b, &refreshes
}

func TestBroker_Token(t *testing.T) {
	b, _ := newBroker(t, true)
	server := httptest.NewServer(b)
	defer server.Close()

	resp, err := http.Get(server.URL + "/v1/token")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Request-Id"); got == "" {
		t.Error("X-Request-Id header not set")
	}

	var reply tokenReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.Fatalf("decoding reply: %v", err)
	}
	if reply.AccessToken != "token-1" {
		t.Errorf("access_token = %q, want token-1", reply.AccessToken)
	}
	if reply.TokenType != "Bearer" {
		t.Errorf("token_type = %q, want Bearer", reply.TokenType)
	}
	if reply.ExpiresAt.IsZero() {
		t.Error("expires_at missing")
	}
}

func TestBroker_Header(t *testing.T) {
	b, _ := newBroker(t, true)
	server := httptest.NewServer(b)
	defer server.Close()

	resp, err := http.Get(server.URL + "/v1/header")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var header map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&header); err != nil {
		t.Fatalf("decoding reply: %v", err)
	}
	if got := header["Authorization"]; got != "Bearer token-1" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer token-1")
	}
}

func TestBroker_StatusAndInvalidate(t *testing.T) {
	b, refreshes := newBroker(t, true)
	server := httptest.NewServer(b)
	defer server.Close()

	// Status on a fresh broker must not trigger a refresh.
	resp, err := http.Get(server.URL + "/v1/status")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	var status tokenmanager.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	_ = resp.Body.Close()
	if status.HasToken || !status.Configured {
		t.Errorf("status = %+v, want configured without token", status)
	}
	if got := refreshes.Load(); got != 0 {
		t.Errorf("status endpoint triggered %d refreshes", got)
	}

	// Fetch a token, invalidate, fetch again: two refreshes.
	for _, path := range []string{"/v1/token", "/v1/token"} {
		resp, err := http.Get(server.URL + path)
		if err != nil {
			t.Fatalf("token request failed: %v", err)
		}
		_ = resp.Body.Close()
	}
	if got := refreshes.Load(); got != 1 {
		t.Fatalf("refreshes = %d, want 1 before invalidation", got)
	}

	resp, err = http.Post(server.URL+"/v1/invalidate", "", nil)
	if err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("invalidate status = %d, want 204", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/v1/token")
	if err != nil {
		t.Fatalf("token request failed: %v", err)
	}
	_ = resp.Body.Close()
	if got := refreshes.Load(); got != 2 {
		t.Errorf("refreshes = %d, want 2 after invalidation", got)
	}
}

func TestBroker_NotConfigured(t *testing.T) {
	b, _ := newBroker(t, false)
	server := httptest.NewServer(b)
	defer server.Close()

	resp, err := http.Get(server.URL + "/v1/token")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 for unconfigured manager", resp.StatusCode)
	}
}
