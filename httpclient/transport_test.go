package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/quintonwall/airbyte-token-manager/tokenmanager"
)

// newManager returns a configured manager whose token endpoint hands out
// "token-1", "token-2", ... on successive refreshes.
func newManager(t *testing.T) (*tokenmanager.Manager, *atomic.Int64) {
	t.Helper()

	var refreshes atomic.Int64
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := refreshes.Add(1)
		fmt.Fprintf(w, `{"access_token":"token-%d","token_type":"Bearer","expires_in":3600}`, n)
	}))
	t.Cleanup(tokenServer.Close)

	m := tokenmanager.New(tokenmanager.WithEndpoints([]string{tokenServer.URL}))
	if err := m.Configure("id", "secret", "ws"); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	return m, &refreshes
}

func TestTransport_InjectsAuthorization(t *testing.T) {
	m, _ := newManager(t)

	var authHeader string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer api.Close()

	client := &http.Client{Transport: New(m, nil)}
	resp, err := client.Get(api.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()

	if authHeader != "Bearer token-1" {
		t.Errorf("Authorization = %q, want %q", authHeader, "Bearer token-1")
	}
}

func TestTransport_DoesNotMutateOriginalRequest(t *testing.T) {
	m, _ := newManager(t)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer api.Close()

	req, err := http.NewRequest(http.MethodGet, api.URL, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	transport := New(m, nil)
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	_ = resp.Body.Close()

	if got := req.Header.Get("Authorization"); got != "" {
		t.Errorf("original request mutated: Authorization = %q", got)
	}
}

func TestTransport_RetriesOnceOn401(t *testing.T) {
	m, refreshes := newManager(t)

	var apiCalls atomic.Int64
	var seen []string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		seen = append(seen, r.Header.Get("Authorization"))
		if r.Header.Get("Authorization") == "Bearer token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"hello":"world"}` {
			t.Errorf("retried body = %q", body)
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer api.Close()

	client := &http.Client{Transport: New(m, nil)}
	resp, err := client.Post(api.URL, "application/json", strings.NewReader(`{"hello":"world"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 after retry", resp.StatusCode)
	}
	if got := apiCalls.Load(); got != 2 {
		t.Errorf("api calls = %d, want 2", got)
	}
	if got := refreshes.Load(); got != 2 {
		t.Errorf("refreshes = %d, want 2 (401 must invalidate the cache)", got)
	}
	if len(seen) != 2 || seen[1] != "Bearer token-2" {
		t.Errorf("authorization headers = %v, want retry with token-2", seen)
	}
}

func TestTransport_No401Loop(t *testing.T) {
	m, _ := newManager(t)

	var apiCalls atomic.Int64
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer api.Close()

	client := &http.Client{Transport: New(m, nil)}
	resp, err := client.Get(api.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()

	// A persistent 401 is surfaced after exactly one retry.
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	if got := apiCalls.Load(); got != 2 {
		t.Errorf("api calls = %d, want 2", got)
	}
}

func TestTransport_NilManager(t *testing.T) {
	transport := &Transport{}
	req, _ := http.NewRequest(http.MethodGet, "http://example.test", nil)

	if _, err := transport.RoundTrip(req); err == nil {
		t.Error("expected error for nil Manager")
	}
}
