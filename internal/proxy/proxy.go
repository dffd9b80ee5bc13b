package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/florianilch/solar-proxy/internal/auth"
	"github.com/florianilch/solar-proxy/internal/observability/metrics"
	"github.com/florianilch/solar-proxy/internal/observability/middleware"
	"github.com/florianilch/solar-proxy/internal/payload"
	"github.com/florianilch/solar-proxy/internal/ratelimit"
	"github.com/florianilch/solar-proxy/internal/upstream"
)

// Route paths served by the proxy.
const (
	SummaryPath        = "/summary"
	GoogleFCPath       = "/solar-google-fc"
	LivenessPath       = "/health/liveness"
	ReadinessPath      = "/health/readiness"
	DefaultMetricsPath = "/metrics"
)

// DefaultMaxRequestBytes limits request bodies unless overridden with WithMaxRequestBytes.
const DefaultMaxRequestBytes int64 = 1 << 20

// ReadinessChecker reports whether the application can serve traffic.
type ReadinessChecker interface {
	IsReady() bool
}

// Proxy is the HTTP server relaying completion requests to the Solar API.
type Proxy struct {
	handler           http.Handler
	readHeaderTimeout time.Duration

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
}

type options struct {
	transport         http.RoundTripper
	upstreamURL       string
	propagateStatus   bool
	maxRequestBytes   int64
	trustProxyHeaders bool
	readHeaderTimeout time.Duration

	ratelimitPolicy string
	ratelimitLimit  int
	ratelimitWindow time.Duration
	ratelimitOpts   []ratelimit.Option

	corsOrigins     []string
	corsCredentials bool

	metrics     *metrics.Collector
	metricsPath string
}

// Option configures a Proxy.
type Option func(*options)

// WithTransport sets the round tripper used for upstream requests.
func WithTransport(transport http.RoundTripper) Option {
	return func(o *options) {
		o.transport = transport
	}
}

// WithUpstreamURL overrides the chat completions URL requests are forwarded to.
func WithUpstreamURL(url string) Option {
	return func(o *options) {
		o.upstreamURL = url
	}
}

// WithPropagateUpstreamStatus returns upstream HTTP error codes to the client
// instead of collapsing them to 500.
func WithPropagateUpstreamStatus(enabled bool) Option {
	return func(o *options) {
		o.propagateStatus = enabled
	}
}

// WithMaxRequestBytes limits the size of request bodies.
func WithMaxRequestBytes(n int64) Option {
	return func(o *options) {
		o.maxRequestBytes = n
	}
}

// WithTrustProxyHeaders takes the client address from X-Forwarded-For or X-Real-IP.
// Only enable behind a reverse proxy that sets these headers.
func WithTrustProxyHeaders(enabled bool) Option {
	return func(o *options) {
		o.trustProxyHeaders = enabled
	}
}

// WithReadHeaderTimeout bounds the time allowed to read request headers.
func WithReadHeaderTimeout(d time.Duration) Option {
	return func(o *options) {
		o.readHeaderTimeout = d
	}
}

// WithRateLimit sets the per-endpoint rate limit. Each completion endpoint gets
// its own counters.
func WithRateLimit(policy string, limit int, window time.Duration, opts ...ratelimit.Option) Option {
	return func(o *options) {
		o.ratelimitPolicy = policy
		o.ratelimitLimit = limit
		o.ratelimitWindow = window
		o.ratelimitOpts = opts
	}
}

// WithCORS sets the allowed origins and whether credentials are allowed.
func WithCORS(origins []string, allowCredentials bool) Option {
	return func(o *options) {
		o.corsOrigins = origins
		o.corsCredentials = allowCredentials
	}
}

// WithMetrics records request metrics into c and serves them at path.
// An empty path records metrics without exposing them.
func WithMetrics(c *metrics.Collector, path string) Option {
	return func(o *options) {
		o.metrics = c
		o.metricsPath = path
	}
}

// New creates a Proxy. API keys are resolved per request by resolver.
func New(resolver *auth.Resolver, health ReadinessChecker, opts ...Option) (*Proxy, error) {
	if resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if health == nil {
		return nil, errors.New("readiness checker is required")
	}

	o := options{
		transport:         http.DefaultTransport,
		upstreamURL:       upstream.DefaultURL,
		maxRequestBytes:   DefaultMaxRequestBytes,
		readHeaderTimeout: 10 * time.Second,
		ratelimitPolicy:   ratelimit.PolicyFixedWindow,
		ratelimitLimit:    10,
		ratelimitWindow:   time.Minute,
		corsOrigins:       []string{"*"},
		corsCredentials:   true,
		metricsPath:       DefaultMetricsPath,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}

	client, err := upstream.NewClient(o.upstreamURL, upstream.WithTransport(o.transport))
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream client: %w", err)
	}

	r := chi.NewRouter()

	// Outermost first: client address and request identity must be settled
	// before anything logs.
	if o.trustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(
		middleware.RequestIDGeneration,
		middleware.Logging(slog.Default(), LivenessPath, ReadinessPath, o.metricsPath),
		middleware.RequestIDPropagation,
		middleware.TraceContextExtraction,
		Recovery,
		cors.Handler(cors.Options{
			AllowedOrigins:   o.corsOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"*"},
			ExposedHeaders:   []string{middleware.RequestIDHeader, "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
			AllowCredentials: o.corsCredentials,
			MaxAge:           300,
		}),
		RequestSizeLimit(o.maxRequestBytes),
	)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(r.Context(), w, errNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(r.Context(), w, errMethodNotAllowed)
	})

	r.Get("/", rootHandler())
	r.Get(LivenessPath, livenessHandler())
	r.Get(ReadinessPath, readinessHandler(health))
	if o.metricsPath != "" {
		r.Method(http.MethodGet, o.metricsPath, o.metrics.Handler())
	}

	endpoints := []struct {
		path  string
		rules payload.Rules
	}{
		{SummaryPath, payload.SummaryRules},
		{GoogleFCPath, payload.GoogleFCRules},
	}
	for _, ep := range endpoints {
		policy, err := ratelimit.New(o.ratelimitPolicy, o.ratelimitLimit, o.ratelimitWindow, o.ratelimitOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limit for %s: %w", ep.path, err)
		}

		handler := &CompletionsHandler{
			Endpoint:        ep.path,
			Rules:           ep.rules,
			Resolver:        resolver,
			Upstream:        client,
			Metrics:         o.metrics,
			PropagateStatus: o.propagateStatus,
		}

		r.With(
			o.metrics.Instrument(ep.path),
			ratelimit.Middleware(policy, ratelimit.ClientAddr, rejectRateLimited(ep.path, policy, o.metrics)),
		).Post(ep.path, handler.ServeHTTP)
	}

	return &Proxy{
		handler:           r,
		readHeaderTimeout: o.readHeaderTimeout,
	}, nil
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.handler.ServeHTTP(w, r)
}

// Start listens on addr and serves in the background. The returned channel
// receives a runtime error, if any, and is closed when the server stops.
func (p *Proxy) Start(ctx context.Context, addr string) (<-chan error, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.server != nil {
		return nil, errors.New("proxy already started")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           p.handler,
		ReadHeaderTimeout: p.readHeaderTimeout,
		// No write timeout: completion streams stay open as long as upstream sends.
		ErrorLog: slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}
	p.server = server
	p.addr = ln.Addr()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.InfoContext(ctx, "proxy listening", "addr", p.addr.String())
	return errCh, nil
}

// Addr returns the listening address, or nil before Start.
func (p *Proxy) Addr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addr
}

// Shutdown stops accepting connections and waits for in-flight requests.
// Streams still open when ctx expires are closed forcibly.
func (p *Proxy) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	server := p.server
	p.mu.Unlock()

	if server == nil {
		return nil
	}

	if err := server.Shutdown(ctx); err != nil {
		_ = server.Close()
		return fmt.Errorf("proxy shutdown: %w", err)
	}
	return nil
}

// rejectRateLimited writes the 429 response for endpoint.
func rejectRateLimited(endpoint string, policy ratelimit.Policy, collector *metrics.Collector) ratelimit.RejectFunc {
	return func(w http.ResponseWriter, r *http.Request, d ratelimit.Decision) {
		collector.RateLimited(endpoint)
		slog.WarnContext(r.Context(), "rate limit exceeded",
			"endpoint", endpoint,
			"client", ratelimit.ClientAddr(r),
			"retry_after", d.RetryAfter,
		)
		writeJSON(r.Context(), w, rateLimitResponse{
			Error: "Rate limit exceeded: " + policy.String(),
		}, http.StatusTooManyRequests)
	}
}
