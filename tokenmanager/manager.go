package tokenmanager

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// Default configuration values for a Manager.
const (
	// DefaultSafetyBuffer is subtracted from a token's reported expiry so a
	// token is never handed out when it could expire mid-request.
	DefaultSafetyBuffer = 5 * time.Minute
	// DefaultRequestTimeout bounds each token endpoint request.
	DefaultRequestTimeout = 30 * time.Second
)

// Manager owns one cached access token for one credential set and refreshes
// it lazily. All methods are safe for concurrent use; the refresh protocol
// runs under an exclusive lock with double-checked validity so concurrent
// callers share a single network round-trip.
type Manager struct {
	mu    sync.RWMutex
	creds *Credentials
	token *oauth2.Token // replaced wholesale, never mutated in place

	endpoints      []string
	safetyBuffer   time.Duration
	requestTimeout time.Duration
	classify       Classifier
	client         *http.Client
	now            func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithEndpoints replaces the ordered token endpoint candidate list.
func WithEndpoints(endpoints []string) Option {
	return func(m *Manager) {
		if len(endpoints) > 0 {
			m.endpoints = endpoints
		}
	}
}

// WithSafetyBuffer sets the margin subtracted from a token's expiry when
// deciding whether it is still usable.
func WithSafetyBuffer(d time.Duration) Option {
	return func(m *Manager) {
		m.safetyBuffer = d
	}
}

// WithRequestTimeout sets the per-candidate timeout for token requests.
func WithRequestTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.requestTimeout = d
		}
	}
}

// WithClassifier sets the response classification policy for the refresh
// protocol. Defaults to DefaultClassifier.
func WithClassifier(c Classifier) Option {
	return func(m *Manager) {
		if c != nil {
			m.classify = c
		}
	}
}

// WithHTTPClient sets the HTTP client used for token requests. The client's
// own timeout is left untouched; the per-candidate timeout still applies.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		if client != nil {
			m.client = client
		}
	}
}

// New creates an unconfigured Manager. Call Configure before requesting
// tokens.
func New(opts ...Option) *Manager {
	m := &Manager{
		endpoints:      DefaultEndpoints,
		safetyBuffer:   DefaultSafetyBuffer,
		requestTimeout: DefaultRequestTimeout,
		classify:       DefaultClassifier,
		client:         &http.Client{},
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Default returns the process-wide shared Manager, built with default options
// on first use.
var Default = sync.OnceValue(func() *Manager {
	return New()
})

// Configure atomically replaces the credential triple. Any cached token is
// cleared: a token minted for previous credentials must not outlive them.
// Returns a *ConfigurationError if any field is empty.
func (m *Manager) Configure(clientID, clientSecret, workspaceID string) error {
	creds := Credentials{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		WorkspaceID:  workspaceID,
	}
	if err := creds.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = &creds
	m.token = nil
	return nil
}

// IsConfigured reports whether Configure has been called successfully.
func (m *Manager) IsConfigured() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds != nil
}

// Token returns a valid access token, refreshing it first if the cached one
// is missing or inside the expiry safety buffer.
func (m *Manager) Token(ctx context.Context) (string, error) {
	tok, err := m.validToken(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// AuthHeader returns the Authorization header for API requests, e.g.
// {"Authorization": "Bearer <token>"}. Errors are the same as Token's.
func (m *Manager) AuthHeader(ctx context.Context) (map[string]string, error) {
	tok, err := m.validToken(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": tok.Type() + " " + tok.AccessToken}, nil
}

// Invalidate drops the cached token, forcing a refresh on the next Token
// call. Idempotent; safe to call at any time, e.g. after an API 401.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = nil
}

// Status describes the cached token without mutating it or triggering a
// refresh.
type Status struct {
	HasToken   bool      `json:"has_token"`
	TokenType  string    `json:"token_type,omitempty"`
	ExpiresAt  time.Time `json:"expires_at,omitzero"`
	IsValid    bool      `json:"is_valid"`
	Configured bool      `json:"configured"`
}

// Status returns the current token state. Repeated calls never change
// observable state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Status{Configured: m.creds != nil}
	if m.token != nil {
		s.HasToken = m.token.AccessToken != ""
		s.TokenType = m.token.Type()
		s.ExpiresAt = m.token.Expiry
		s.IsValid = m.tokenValid()
	}
	return s
}

// validToken returns a copy of the cached token, refreshing it first when
// necessary. Double-checked locking: the fast path takes only a read lock,
// and the write path re-checks validity before issuing any network request
// so concurrent callers share one refresh.
func (m *Manager) validToken(ctx context.Context) (oauth2.Token, error) {
	m.mu.RLock()
	if m.creds == nil {
		m.mu.RUnlock()
		return oauth2.Token{}, ErrNotConfigured
	}
	if m.tokenValid() {
		tok := *m.token
		m.mu.RUnlock()
		return tok, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.creds == nil {
		return oauth2.Token{}, ErrNotConfigured
	}
	if m.tokenValid() {
		return *m.token, nil
	}

	tok, err := m.refresh(ctx, *m.creds)
	if err != nil {
		// Cached state is untouched on failure.
		return oauth2.Token{}, err
	}
	m.token = tok
	return *tok, nil
}

// tokenValid reports whether the cached token is usable within the safety
// buffer. Callers must hold m.mu.
func (m *Manager) tokenValid() bool {
	if m.token == nil || m.token.AccessToken == "" {
		return false
	}
	if m.token.Expiry.IsZero() {
		// No expiry information: assume the token is still good until it is
		// invalidated explicitly.
		return true
	}
	return m.now().Before(m.token.Expiry.Add(-m.safetyBuffer))
}

// refresh exchanges credentials for a new token, trying each endpoint
// candidate in order. Callers must hold the write lock.
func (m *Manager) refresh(ctx context.Context, creds Credentials) (*oauth2.Token, error) {
	// Keep the refresh alive even if the triggering caller gives up: callers
	// blocked on the lock share its result (go waiters observe the updated
	// cache once the lock is released).
	ctx = context.WithoutCancel(ctx)

	payload := map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     creds.ClientID,
		"client_secret": creds.ClientSecret,
		"scope":         "workspace:" + creds.WorkspaceID,
	}

	attempts := make([]Attempt, 0, len(m.endpoints))
	for _, endpoint := range m.endpoints {
		tok, attempt := m.tryEndpoint(ctx, endpoint, payload)
		if tok != nil {
			slog.InfoContext(ctx, "access token obtained",
				"endpoint", endpoint,
				"token_type", tok.Type(),
				"expires_at", tok.Expiry)
			return tok, nil
		}

		var rejected *CredentialRejectedError
		if errors.As(attempt.Err, &rejected) {
			slog.WarnContext(ctx, "credentials rejected", "endpoint", endpoint, "status", rejected.StatusCode)
			return nil, rejected
		}

		slog.DebugContext(ctx, "token endpoint candidate failed",
			"endpoint", endpoint,
			"status", attempt.StatusCode,
			"error", attempt.Err)
		attempts = append(attempts, attempt)
	}

	return nil, &AcquisitionError{Attempts: attempts}
}

// tryEndpoint performs the token request against one candidate. On success
// the returned Attempt is zero; otherwise it records the failure.
func (m *Manager) tryEndpoint(ctx context.Context, endpoint string, payload map[string]string) (*oauth2.Token, Attempt) {
	ctx, cancel := context.WithTimeout(ctx, m.requestTimeout)
	defer cancel()

	status, body, err := m.post(ctx, endpoint, payload, false)
	if err != nil {
		return nil, Attempt{URL: endpoint, Err: err}
	}

	if status == http.StatusOK {
		return parseTokenResponse(endpoint, m.now(), body)
	}

	switch m.classify(status) {
	case OutcomeRejected:
		return nil, Attempt{URL: endpoint, StatusCode: status,
			Err: &CredentialRejectedError{URL: endpoint, StatusCode: status}}

	case OutcomeRetryForm:
		// Some deployments only accept the form-encoded variant.
		formStatus, formBody, err := m.post(ctx, endpoint, payload, true)
		if err != nil {
			return nil, Attempt{URL: endpoint, Err: err}
		}
		if formStatus == http.StatusOK {
			return parseTokenResponse(endpoint, m.now(), formBody)
		}
		return nil, Attempt{URL: endpoint, StatusCode: formStatus,
			Err: fmt.Errorf("unexpected status %d (json variant returned %d)", formStatus, status)}
	}

	return nil, Attempt{URL: endpoint, StatusCode: status,
		Err: fmt.Errorf("unexpected status %d", status)}
}

// post sends the token request and returns the status and response body.
// The error message never includes the payload.
func (m *Manager) post(ctx context.Context, endpoint string, payload map[string]string, asForm bool) (int, []byte, error) {
	var body io.Reader
	contentType := "application/json"
	if asForm {
		form := url.Values{}
		for k, v := range payload {
			form.Set(k, v)
		}
		body = bytes.NewBufferString(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	} else {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encoding token request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return 0, nil, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", contentType)

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("token request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Token responses are small; 1 MiB is far beyond any legitimate payload.
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("reading token response: %w", err)
	}
	return resp.StatusCode, data, nil
}

// tokenResponse is the wire shape of a successful token issuance response.
// expires_in is seconds-to-live; expires_at is an absolute timestamp (RFC
// 3339 string or unix seconds). Both normalize to an absolute expiry.
type tokenResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresIn   int64           `json:"expires_in"`
	ExpiresAt   json.RawMessage `json:"expires_at"`
}

// parseTokenResponse builds a token from a 200 response body. A well-formed
// 200 without an access token counts as an endpoint-shape failure so the
// refresh moves on to the next candidate.
func parseTokenResponse(endpoint string, now time.Time, body []byte) (*oauth2.Token, Attempt) {
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, Attempt{URL: endpoint, StatusCode: http.StatusOK,
			Err: fmt.Errorf("decoding token response: %w", err)}
	}
	if tr.AccessToken == "" {
		return nil, Attempt{URL: endpoint, StatusCode: http.StatusOK,
			Err: errors.New("no access token in response")}
	}

	tok := &oauth2.Token{
		AccessToken: tr.AccessToken,
		TokenType:   tr.TokenType, // Type() defaults to Bearer when empty
	}

	switch {
	case tr.ExpiresIn > 0:
		tok.Expiry = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	case len(tr.ExpiresAt) > 0:
		expiry, err := parseExpiresAt(tr.ExpiresAt)
		if err != nil {
			return nil, Attempt{URL: endpoint, StatusCode: http.StatusOK,
				Err: fmt.Errorf("decoding expires_at: %w", err)}
		}
		if !expiry.After(now) {
			return nil, Attempt{URL: endpoint, StatusCode: http.StatusOK,
				Err: fmt.Errorf("expires_at %s is not in the future", expiry.Format(time.RFC3339))}
		}
		tok.Expiry = expiry
	}

	return tok, Attempt{}
}

// parseExpiresAt accepts an RFC 3339 string or unix seconds.
func parseExpiresAt(raw json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return time.Parse(time.RFC3339, s)
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return time.Time{}, fmt.Errorf("unsupported expires_at value")
	}
	secs, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unsupported expires_at value")
	}
	return time.Unix(secs, 0), nil
}
