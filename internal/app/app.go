package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/solar-proxy/internal/auth"
	"github.com/florianilch/solar-proxy/internal/observability/metrics"
	"github.com/florianilch/solar-proxy/internal/proxy"
)

// App orchestrates the lifecycle of the proxy server and related services.
type App struct {
	proxy           *proxy.Proxy
	health          *Health
	addr            string
	shutdownTimeout time.Duration
}

// New creates a new App instance from a validated configuration.
// The default API key is read once from the configured key store.
func New(ctx context.Context, cfg *Config) (*App, error) {
	store, err := cfg.NewKeyStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create key store: %w", err)
	}

	defaultKey := cfg.Upstream.APIKey
	if defaultKey == "" {
		defaultKey, err = store.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read default API key: %w", err)
		}
	}
	if defaultKey == "" {
		slog.WarnContext(ctx, "no default API key configured; clients must send an Authorization header",
			"storage", cfg.Auth.Storage)
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	health := NewHealth()

	proxyServer, err := proxy.New(auth.NewResolver(defaultKey), health,
		proxy.WithUpstreamURL(cfg.Upstream.URL),
		proxy.WithPropagateUpstreamStatus(cfg.Upstream.PropagateStatus),
		proxy.WithMaxRequestBytes(cfg.Server.MaxRequestBytes),
		proxy.WithReadHeaderTimeout(cfg.Server.ReadHeaderTimeout),
		proxy.WithTrustProxyHeaders(cfg.Server.TrustProxyHeaders),
		proxy.WithRateLimit(cfg.RateLimit.Policy, cfg.RateLimit.Requests, cfg.RateLimit.Window),
		proxy.WithCORS(cfg.CORS.AllowedOrigins, cfg.CORS.AllowCredentials),
		proxy.WithMetrics(metrics.New(), metricsPath),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}

	return &App{
		proxy:           proxyServer,
		health:          health,
		addr:            cfg.Server.Addr,
		shutdownTimeout: cfg.Server.ShutdownTimeout,
	}, nil
}

// Addr returns the address the proxy listens on, or nil before Start.
func (a *App) Addr() net.Addr {
	return a.proxy.Addr()
}

// Health returns the readiness state shared with the proxy.
func (a *App) Health() *Health {
	return a.health
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting proxy server", "addr", a.addr)
	proxyErrCh, err := a.proxy.Start(gCtx, a.addr)
	if err != nil {
		return fmt.Errorf("proxy startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.proxy.Shutdown)

	a.health.SetReady(true)

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
	a.health.SetReady(false)

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
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
