package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/solar-proxy/internal/keystore"
	"github.com/florianilch/solar-proxy/internal/observability"
	"github.com/florianilch/solar-proxy/internal/proxy"
	"github.com/florianilch/solar-proxy/internal/ratelimit"
	"github.com/florianilch/solar-proxy/internal/upstream"
)

// KeyStorageType selects where the default upstream API key is kept.
type KeyStorageType string

const (
	// KeyStorageTypeEnv reads the key from upstream.api_key (config file or environment). Read-only.
	KeyStorageTypeEnv KeyStorageType = "env"
	// KeyStorageTypeFile keeps the key in a file with owner-only permissions.
	KeyStorageTypeFile KeyStorageType = "file"
	// KeyStorageTypeKeyring keeps the key in the system keyring.
	KeyStorageTypeKeyring KeyStorageType = "keyring"
)

// Config is the complete application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Auth      AuthConfig      `koanf:"auth"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	CORS      CORSConfig      `koanf:"cors"`
	Log       LogConfig       `koanf:"log"`
	OTel      OTelConfig      `koanf:"otel"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr              string        `koanf:"addr" validate:"required,hostname_port"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	MaxRequestBytes   int64         `koanf:"max_request_bytes" validate:"gt=0"`
	// TrustProxyHeaders keys rate limits by X-Forwarded-For / X-Real-IP.
	TrustProxyHeaders bool `koanf:"trust_proxy_headers"`
}

// UpstreamConfig configures the Solar chat completions API.
type UpstreamConfig struct {
	URL             string `koanf:"url" validate:"required,http_url"`
	APIKey          string `koanf:"api_key"`
	PropagateStatus bool   `koanf:"propagate_status"`
}

// AuthConfig configures storage of the default API key.
type AuthConfig struct {
	Storage KeyStorageType `koanf:"storage" validate:"oneof=env file keyring"`
	File    string         `koanf:"file" validate:"required_if=Storage file"`
}

// RateLimitConfig configures the per-endpoint rate limit.
type RateLimitConfig struct {
	Policy   string        `koanf:"policy" validate:"oneof=fixed_window token_bucket"`
	Requests int           `koanf:"requests" validate:"gt=0"`
	Window   time.Duration `koanf:"window" validate:"gt=0"`
}

// CORSConfig configures cross-origin access.
type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins" validate:"dive,required"`
	AllowCredentials bool     `koanf:"allow_credentials"`
}

// LogConfig configures the stdout logger.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// OTelConfig configures OpenTelemetry log export.
type OTelConfig struct {
	LogsExporter string `koanf:"logs_exporter" validate:"oneof=none stdout otlp-grpc otlp-http"`
	Endpoint     string `koanf:"endpoint" validate:"omitempty,hostname_port"`
	Insecure     bool   `koanf:"insecure"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path" validate:"required_if=Enabled true,omitempty,startswith=/"`
}

// Defaults returns the default configuration as flat koanf keys.
func Defaults() map[string]any {
	return map[string]any{
		"server.addr":                "127.0.0.1:8000",
		"server.read_header_timeout": "10s",
		"server.shutdown_timeout":    "5s",
		"server.max_request_bytes":   proxy.DefaultMaxRequestBytes,
		"server.trust_proxy_headers": false,
		"upstream.url":               upstream.DefaultURL,
		"upstream.api_key":           "",
		"upstream.propagate_status":  false,
		"auth.storage":               string(KeyStorageTypeEnv),
		"auth.file":                  defaultKeyFile(),
		"ratelimit.policy":           ratelimit.PolicyFixedWindow,
		"ratelimit.requests":         10,
		"ratelimit.window":           "1m",
		"cors.allowed_origins":       []string{"*"},
		"cors.allow_credentials":     true,
		"log.level":                  "info",
		"log.format":                 "text",
		"otel.logs_exporter":         observability.LogsExporterNone,
		"otel.endpoint":              "",
		"otel.insecure":              false,
		"metrics.enabled":            true,
		"metrics.path":               proxy.DefaultMetricsPath,
	}
}

// defaultKeyFile returns the key file location under the user config directory.
func defaultKeyFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "solar-proxy", "api_key")
}

// Validate checks field constraints and returns all violations joined.
func (c *Config) Validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, fmt.Errorf("invalid config %s: failed %q check (value %v)",
			fieldPath(fe.Namespace()), fe.Tag(), fe.Value()))
	}
	return errors.Join(errs...)
}

// fieldPath turns "Config.Server.Addr" into "Server.Addr".
func fieldPath(namespace string) string {
	_, path, found := strings.Cut(namespace, ".")
	if !found {
		return namespace
	}
	return path
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}
	return level, nil
}

// Observability returns the logging configuration for observability.Instrument.
func (c *Config) Observability() (observability.Config, error) {
	level, err := c.LogLevel()
	if err != nil {
		return observability.Config{}, err
	}
	return observability.Config{
		Level:        level,
		Format:       c.Log.Format,
		LogsExporter: c.OTel.LogsExporter,
		Endpoint:     c.OTel.Endpoint,
		Insecure:     c.OTel.Insecure,
	}, nil
}

// NewKeyStore creates the key store selected by Auth.Storage.
func (c *Config) NewKeyStore() (keystore.Store, error) {
	switch c.Auth.Storage {
	case KeyStorageTypeEnv:
		return keystore.NewEnvStore(c.Upstream.APIKey), nil
	case KeyStorageTypeFile:
		if c.Auth.File == "" {
			return nil, errors.New("auth.file is required for file storage")
		}
		return keystore.NewFileStore(c.Auth.File), nil
	case KeyStorageTypeKeyring:
		return keystore.NewKeyringStore(keystore.DefaultKeyringService, keystore.DefaultKeyringUser), nil
	default:
		return nil, fmt.Errorf("unknown key storage %q", c.Auth.Storage)
	}
}
