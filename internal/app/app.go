package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/quintonwall/airbyte-token-manager/internal/broker"
	"github.com/quintonwall/airbyte-token-manager/tokenmanager"
)

// App orchestrates the lifecycle of the token broker and related services.
type App struct {
	cfg    *Config
	broker *broker.Broker
}

// New creates a new App instance. Credentials are read from the configured
// store and the manager is configured before any service starts.
func New(ctx context.Context, cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	manager, err := NewManager(ctx, cfg)
	if err != nil {
		return nil, err
	}

	brokerServer, err := broker.New(manager)
	if err != nil {
		return nil, fmt.Errorf("failed to create broker: %w", err)
	}

	return &App{
		cfg:    cfg,
		broker: brokerServer,
	}, nil
}

// NewManager builds a token manager from configuration: credentials come
// from the configured store, endpoints and timings from the manager section.
func NewManager(ctx context.Context, cfg *Config) (*tokenmanager.Manager, error) {
	store, err := cfg.Credentials.NewStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create credential store: %w", err)
	}

	creds, err := store.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	manager := tokenmanager.New(
		tokenmanager.WithEndpoints(cfg.Manager.Endpoints),
		tokenmanager.WithSafetyBuffer(cfg.Manager.SafetyBuffer),
		tokenmanager.WithRequestTimeout(cfg.Manager.RequestTimeout),
	)
	if err := manager.Configure(creds.ClientID, creds.ClientSecret, creds.WorkspaceID); err != nil {
		return nil, fmt.Errorf("failed to configure token manager: %w", err)
	}
	return manager, nil
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection
// for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Server.Host + ":" + strconv.FormatUint(uint64(a.cfg.Server.Port), 10)
	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting token broker", "address", address)
	brokerErrCh, err := a.broker.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("broker startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.broker.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-brokerErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "broker runtime error", "error", err)
				return fmt.Errorf("broker: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", address)

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}
