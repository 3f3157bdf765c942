// Package httpclient integrates the token manager with net/http. Transport
// injects the Authorization header on every request and reacts to upstream
// 401 responses by invalidating the cached token and retrying once.
package httpclient

import (
	"fmt"
	"io"
	"net/http"

	"github.com/quintonwall/airbyte-token-manager/tokenmanager"
)

// Transport is an http.RoundTripper that authenticates outgoing requests
// with tokens from a tokenmanager.Manager.
type Transport struct {
	// Base is the underlying transport. If nil, http.DefaultTransport is used.
	Base http.RoundTripper

	// Manager provides access tokens.
	Manager *tokenmanager.Manager
}

// Compile-time check that Transport implements http.RoundTripper.
var _ http.RoundTripper = (*Transport)(nil)

// New creates a Transport around the given manager. base may be nil.
func New(manager *tokenmanager.Manager, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		Base:    base,
		Manager: manager,
	}
}

// RoundTrip implements http.RoundTripper. It fetches a valid token, clones
// the request with the Authorization header set, and delegates to the base
// transport. A 401 from upstream invalidates the cached token and the
// request is retried once with a freshly acquired token; requests whose body
// cannot be replayed are returned as-is.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Manager == nil {
		return nil, fmt.Errorf("httpclient: Manager is nil")
	}

	resp, err := t.send(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// The upstream no longer accepts the token (revoked or expired server
	// side). Drop it and try once more with a fresh one.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil // body cannot be replayed
	}
	t.Manager.Invalidate()

	retry := req
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return resp, nil
		}
		retry = req.Clone(req.Context())
		retry.Body = body
	}

	// Drain so the underlying connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	return t.send(retry)
}

// send performs a single authenticated round-trip on a clone of req.
func (t *Transport) send(req *http.Request) (*http.Response, error) {
	header, err := t.Manager.AuthHeader(req.Context())
	if err != nil {
		return nil, fmt.Errorf("httpclient: failed to get token: %w", err)
	}

	// Clone to avoid mutating the caller's request.
	clone := req.Clone(req.Context())
	for k, v := range header {
		clone.Header.Set(k, v)
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}
