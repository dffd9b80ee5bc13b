package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// instrumentationName identifies this module as the log source in OpenTelemetry.
const instrumentationName = "github.com/florianilch/solar-proxy"

// Supported values for Config.LogsExporter.
const (
	LogsExporterNone     = "none"
	LogsExporterStdout   = "stdout"
	LogsExporterOTLPGRPC = "otlp-grpc"
	LogsExporterOTLPHTTP = "otlp-http"
)

// newLoggerProvider builds an OpenTelemetry logger provider for the configured
// exporter and registers it globally. Returns nil when export is disabled.
func newLoggerProvider(ctx context.Context, cfg Config) (*sdklog.LoggerProvider, error) {
	var (
		exporter sdklog.Exporter
		err      error
	)

	switch cfg.LogsExporter {
	case "", LogsExporterNone:
		return nil, nil
	case LogsExporterStdout:
		exporter, err = stdoutlog.New()
	case LogsExporterOTLPGRPC:
		var opts []otlploggrpc.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlploggrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlploggrpc.WithInsecure())
		}
		exporter, err = otlploggrpc.New(ctx, opts...)
	case LogsExporterOTLPHTTP:
		var opts []otlploghttp.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlploghttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		exporter, err = otlploghttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported logs exporter %q (expected: %s, %s, %s, %s)",
			cfg.LogsExporter, LogsExporterNone, LogsExporterStdout, LogsExporterOTLPGRPC, LogsExporterOTLPHTTP)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s exporter: %w", cfg.LogsExporter, err)
	}

	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), minSeverity(cfg.Level))
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))
	global.SetLoggerProvider(provider)

	return provider, nil
}

// newOTelHandler bridges slog records into the given logger provider.
func newOTelHandler(provider *sdklog.LoggerProvider) slog.Handler {
	return otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider))
}

// minSeverity maps a slog level to the OpenTelemetry severity filter.
func minSeverity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
