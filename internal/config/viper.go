package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MENTIONS_MAX_LENGTH.
const EnvPrefix = "MENTIONS"

// Bind registers the defaults and environment overrides on v. Nested keys
// use "_" in the environment: routes.base is MENTIONS_ROUTES_BASE.
func Bind(v *viper.Viper) error {
	data, err := json.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to marshal defaults: %w", err)
	}
	var defaults map[string]any
	if err := json.Unmarshal(data, &defaults); err != nil {
		return fmt.Errorf("failed to unmarshal defaults: %w", err)
	}
	setDefaults(v, "", defaults)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return nil
}

func setDefaults(v *viper.Viper, prefix string, m map[string]any) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			setDefaults(v, key, nested)
			continue
		}
		v.SetDefault(key, val)
	}
}

// FromViper reads the configuration from v's file, environment and
// defaults, in that order of precedence (flags bound on v come first).
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return cfg, cfg.Validate()
}
