package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Config controls logging output.
type Config struct {
	Level  slog.Level
	Format string // text|json

	// LogsExporter additionally ships logs via OpenTelemetry: none|stdout|otlp-grpc|otlp-http.
	LogsExporter string
	// Endpoint overrides the OTLP exporter endpoint (host:port). Empty uses the
	// exporter's default and the OTEL_EXPORTER_OTLP_* environment variables.
	Endpoint string
	// Insecure disables TLS for OTLP exporters.
	Insecure bool
}

// Instrument installs the default slog logger and the global W3C trace context
// propagator. The returned shutdown function flushes pending log exports; it is
// never nil.
func Instrument(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	handler, err := newStdoutHandler(cfg.Level, cfg.Format)
	if err != nil {
		return nil, err
	}
	handler = newContextHandler(handler)

	shutdown := func(context.Context) error { return nil }

	provider, err := newLoggerProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up log exporter: %w", err)
	}
	if provider != nil {
		handler = newFanoutHandler(handler, newOTelHandler(provider))
		shutdown = provider.Shutdown
	}

	slog.SetDefault(slog.New(handler))

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return shutdown, nil
}

// newStdoutHandler creates a handler for human-readable logs.
func newStdoutHandler(level slog.Level, logFormat string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	switch strings.ToLower(logFormat) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q (expected: json, text)", logFormat)
	}

	return handler, nil
}
