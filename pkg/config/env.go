package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
)

// Load returns DefaultConfig overridden by the process environment, and
// validates the result.
func Load() (Config, error) {
	return LoadFrom(env.ToMap(os.Environ()))
}

// LoadFrom is Load over an explicit environment.
func LoadFrom(environment map[string]string) (Config, error) {
	cfg := DefaultConfig()
	if err := parseEnv(&cfg, environment); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// parseEnv populates cfg using caarlos0/env. Fields whose variables are
// unset keep their current value.
func parseEnv(cfg *Config, environment map[string]string) error {
	err := env.ParseWithOptions(cfg, env.Options{
		Prefix:      EnvPrefix,
		Environment: environment,
	})
	if err != nil {
		return fmt.Errorf("error getting env configs: %w", err)
	}
	return nil
}
