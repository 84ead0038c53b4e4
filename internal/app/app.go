package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/florianilch/claudine-bridge/internal/anthropicadapter/openaichat"
	"github.com/florianilch/claudine-bridge/internal/backend"
	"github.com/florianilch/claudine-bridge/internal/proxy"
	"github.com/florianilch/claudine-bridge/internal/tokencount"
	"github.com/florianilch/claudine-bridge/internal/tokensource"
)

// App orchestrates the lifecycle of the proxy server and related services.
type App struct {
	cfg    *Config
	proxy  *proxy.Proxy
	health *Health
}

// New wires the backend client, translators and proxy server for cfg.
func New(ctx context.Context, cfg *Config) (*App, error) {
	clientOpts := []backend.Option{
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithMaxRetries(cfg.Backend.MaxRetries),
	}
	if len(cfg.Backend.ExtraBody) > 0 {
		clientOpts = append(clientOpts, backend.WithExtraBody(cfg.Backend.ExtraBody))
	}

	ts, err := newTokenSource(ctx, cfg.Auth)
	if err != nil {
		return nil, err
	}
	if ts != nil {
		clientOpts = append(clientOpts, backend.WithTokenSource(ts))
	}

	client, err := backend.New(cfg.Backend.BaseURL, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	translation := cfg.TranslationOptions()
	health := NewHealth()

	proxyServer, err := proxy.New(
		openaichat.NewCreateMessageAdapter(client, translation),
		openaichat.NewCountTokensAdapter(tokencount.NewTiktokenCounter(), translation),
		cfg.Models.Resolver(),
		health,
		proxy.WithMaxRequestBytes(cfg.Server.MaxRequestBytes),
		proxy.WithCORS(cfg.Server.CORS),
		proxy.WithReadHeaderTimeout(cfg.Server.ReadHeaderTimeout),
		proxy.WithWriteTimeout(cfg.Server.WriteTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}

	slog.InfoContext(ctx, "backend configured",
		"base_url", cfg.Backend.BaseURL,
		"big_model", cfg.Models.Big,
		"small_model", cfg.Models.Small,
		"auth", string(cfg.Auth.Storage),
	)

	return &App{
		cfg:    cfg,
		proxy:  proxyServer,
		health: health,
	}, nil
}

// newTokenSource checks that the configured store holds a key and returns a token
// source re-reading it. A missing environment variable leaves the backend
// unauthenticated, which local servers accept; a missing stored key is an error.
func newTokenSource(ctx context.Context, cfg AuthConfig) (oauth2.TokenSource, error) {
	store, err := cfg.NewTokenStore()
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, nil
	}

	if _, err := store.Read(ctx); err != nil {
		if !errors.Is(err, tokensource.ErrNotFound) {
			return nil, fmt.Errorf("failed to read API key: %w", err)
		}
		if cfg.Storage == TokenStorageTypeEnv {
			slog.WarnContext(ctx, "no API key found, backend requests are unauthenticated", "env_var", cfg.EnvVar)
			return nil, nil
		}
		return nil, fmt.Errorf("no API key stored in %s, run 'claudine-bridge auth login' first", cfg.Storage)
	}

	return tokensource.NewTokenSource(store), nil
}

// Health reports the readiness state served by the proxy.
func (a *App) Health() *Health {
	return a.health
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting proxy server")
	proxyErrCh, err := a.proxy.Start(gCtx, a.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("proxy startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.proxy.Shutdown)

	a.health.Serving()

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-proxyErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "proxy runtime error", "error", err)
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	runtimeErr := g.Wait()

	// Fail readiness first so load balancers stop routing new requests.
	a.health.Draining()
	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
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

	slog.InfoContext(shutdownCtx, "application stopped")
	return nil
}
