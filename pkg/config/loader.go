package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes environment overrides, e.g. H64_SCAN_TIMEOUT=20s.
	EnvPrefix = "H64_"

	// EnvConfigFile names a YAML file to load when no explicit path is given.
	EnvConfigFile = "H64_CONFIG"
)

// LoadOptions selects the optional layers of Load.
type LoadOptions struct {
	// File is a YAML config path. Empty falls back to $H64_CONFIG.
	File string

	// Overrides are applied last, keyed by koanf tag. The CLI passes the
	// flags the user set explicitly.
	Overrides map[string]any
}

// Load builds a Config by layering, from low to high precedence:
//  1. `default` struct tags
//  2. the YAML file, if any
//  3. H64_* environment variables
//  4. explicit overrides
func Load(opts LoadOptions) (*Config, error) {
	cfg := New()
	k := koanf.New(".")

	path := opts.File
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	// H64_SCAN_TIMEOUT -> scan_timeout; underscores are kept to match the tags.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	for key, value := range opts.Overrides {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("override %s: %w", key, err)
		}
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
