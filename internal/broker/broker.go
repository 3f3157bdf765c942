// Package broker exposes the token manager to co-processes over a localhost
// HTTP API. Scripts and sidecars fetch a valid token or the Authorization
// header without linking the library, and can invalidate the cache after an
// upstream 401.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/quintonwall/airbyte-token-manager/internal/observability/middleware"
	"github.com/quintonwall/airbyte-token-manager/tokenmanager"
)

// Broker is the local HTTP server fronting a token manager.
type Broker struct {
	manager *tokenmanager.Manager
	mux     *http.ServeMux
	server  *http.Server
}

// Compile-time check that Broker implements http.Handler
var _ http.Handler = (*Broker)(nil)

// New creates a broker for the given manager.
func New(manager *tokenmanager.Manager) (*Broker, error) {
	if manager == nil {
		return nil, fmt.Errorf("missing token manager")
	}

	b := &Broker{manager: manager}

	logger := slog.Default()

	mux := http.NewServeMux()
	mux.Handle("GET /v1/token", b.wrap(logger, b.handleToken))
	mux.Handle("GET /v1/header", b.wrap(logger, b.handleHeader))
	mux.Handle("GET /v1/status", b.wrap(logger, b.handleStatus))
	mux.Handle("POST /v1/invalidate", b.wrap(logger, b.handleInvalidate))
	b.mux = mux

	return b, nil
}

func (b *Broker) wrap(logger *slog.Logger, h http.HandlerFunc) http.Handler {
	return applyMiddlewares(h,
		middleware.Logging(logger),
		middleware.RequestID,
		Recovery,
	)
}

// ServeHTTP implements http.Handler interface
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mux.ServeHTTP(w, r)
}

// tokenReply is the wire shape of GET /v1/token.
type tokenReply struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
}

func (b *Broker) handleToken(w http.ResponseWriter, r *http.Request) {
	token, err := b.manager.Token(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := b.manager.Status()
	writeJSON(w, http.StatusOK, tokenReply{
		AccessToken: token,
		TokenType:   status.TokenType,
		ExpiresAt:   status.ExpiresAt,
	})
}

func (b *Broker) handleHeader(w http.ResponseWriter, r *http.Request) {
	header, err := b.manager.AuthHeader(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, header)
}

func (b *Broker) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, b.manager.Status())
}

func (b *Broker) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	b.manager.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps manager errors onto HTTP statuses: missing configuration is
// 503 (the broker is up but unusable), rejected credentials 401, exhausted
// endpoints 502. Error bodies never include token or credential material.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var rejected *tokenmanager.CredentialRejectedError
	var acquisition *tokenmanager.AcquisitionError
	switch {
	case errors.Is(err, tokenmanager.ErrNotConfigured):
		status = http.StatusServiceUnavailable
	case errors.As(err, &rejected):
		status = http.StatusUnauthorized
	case errors.As(err, &acquisition):
		status = http.StatusBadGateway
	}

	slog.ErrorContext(r.Context(), "token request failed", "status", status, "error", err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error
// channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (b *Broker) Start(ctx context.Context, address string) (<-chan error, error) {
	// Startup phase: Create listener synchronously to catch port-in-use errors immediately
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	b.server = &http.Server{
		Handler: b,
		// Requests either hit the cache or wait on one bounded refresh pass,
		// so generous-but-finite timeouts suffice.
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  90 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := b.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
// Returns error if shutdown fails or times out.
func (b *Broker) Shutdown(ctx context.Context) error {
	if b.server == nil {
		return nil
	}

	if err := b.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = b.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
