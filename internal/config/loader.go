package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "mimicetl.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "mimicetl.yml"

// Default configuration values.
const (
	DefaultDatabase  = "data/mimiciv.duckdb"
	DefaultStateFile = ".mimicetl/state.db"
	DefaultSchema    = "main"
	DefaultOnExists  = "fail"
)

// findConfigFile finds the config file to use, returning "" when none
// exists. Priority: explicit path > mimicetl.yaml > mimicetl.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}
	if _, err := os.Stat(ConfigFileName); err == nil {
		return ConfigFileName
	}
	if _, err := os.Stat(ConfigFileNameAlt); err == nil {
		return ConfigFileNameAlt
	}
	return ""
}

// Load loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"duckdb.database":  DefaultDatabase,
		"ingest.schema":    DefaultSchema,
		"ingest.on_exists": DefaultOnExists,
		"state_path":       DefaultStateFile,
		"verbose":          false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	if path := findConfigFile(cfgFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	} else if cfgFile != "" {
		return nil, fmt.Errorf("config file not found: %s", cfgFile)
	}

	// 3. Environment variables (MIMICETL_ prefix).
	// Transform: MIMICETL_DUCKDB__DATABASE -> duckdb.database
	if err := k.Load(env.Provider("MIMICETL_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "MIMICETL_"))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags (highest priority)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")

			// The CLI uses short flag names for nested config keys.
			switch key {
			case "database":
				return "duckdb.database", posflag.FlagVal(flags, f)
			case "state":
				return "state_path", posflag.FlagVal(flags, f)
			case "ddl":
				return "ingest.ddl", posflag.FlagVal(flags, f)
			case "set":
				// Variable overrides are applied separately.
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &cfg, nil
}

// ApplyVariableOverrides applies --set NAME=VALUE overrides on top of the
// config file's variables. Overrides win over file values.
func ApplyVariableOverrides(cfg *Config, overrides []string) error {
	if len(overrides) == 0 {
		return nil
	}
	if cfg.Variables == nil {
		cfg.Variables = make(map[string]string, len(overrides))
	}
	for _, kv := range overrides {
		name, value, ok := strings.Cut(kv, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return fmt.Errorf("invalid variable override %q: expected NAME=VALUE", kv)
		}
		cfg.Variables[name] = value
	}
	return nil
}
