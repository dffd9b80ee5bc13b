package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/solar-proxy/internal/app"
)

const (
	// envPrefix prefixes all configuration environment variables.
	// Nested keys use a double underscore: SOLARPROXY_SERVER__ADDR.
	envPrefix = "SOLARPROXY_"
	// legacyAPIKeyEnv is accepted as an alias for upstream.api_key.
	legacyAPIKeyEnv = "UPSTAGE_API_KEY"
)

// flagOverrides maps CLI flags to the config keys they override when set.
var flagOverrides = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
	"addr":       "server.addr",
}

// loadConfig layers defaults, the optional TOML file at path, the environment and
// explicitly set CLI flags, in increasing precedence, and validates the result.
func loadConfig(path string, cmd *cli.Command, environ func() []string) (*app.Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(app.Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Legacy variable first so the prefixed form wins when both are set.
	legacy := env.Provider(".", env.Opt{
		Prefix: legacyAPIKeyEnv,
		TransformFunc: func(k, v string) (string, any) {
			if k != legacyAPIKeyEnv {
				return "", nil
			}
			return "upstream.api_key", v
		},
		EnvironFunc: environ,
	})
	if err := k.Load(legacy, nil); err != nil {
		return nil, fmt.Errorf("loading %s: %w", legacyAPIKeyEnv, err)
	}

	prefixed := env.Provider(".", env.Opt{
		Prefix:        envPrefix,
		TransformFunc: envKey,
		EnvironFunc:   environ,
	})
	if err := k.Load(prefixed, nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	if cmd != nil {
		for flag, key := range flagOverrides {
			if cmd.IsSet(flag) {
				if err := k.Set(key, cmd.String(flag)); err != nil {
					return nil, fmt.Errorf("applying --%s: %w", flag, err)
				}
			}
		}
	}

	var cfg app.Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// envKey turns SOLARPROXY_SERVER__READ_HEADER_TIMEOUT into server.read_header_timeout.
// SOLARPROXY_CONFIG names the config file and is not a config key.
func envKey(k, v string) (string, any) {
	k = strings.TrimPrefix(k, envPrefix)
	if k == "" || k == "CONFIG" {
		return "", nil
	}
	return strings.ReplaceAll(strings.ToLower(k), "__", "."), v
}

// loadDotEnv loads variables from the given files into the process environment.
// Variables already set are kept, so earlier files take precedence over later ones.
// Missing files are skipped.
func loadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}
