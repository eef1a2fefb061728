package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every variable name a struct tag declares, so
// `env:"MACROS_DB_PATH"` reads MACROTABLE_MACROS_DB_PATH.
const EnvPrefix = "MACROTABLE_"

// ParseEnv fills target, a struct pointer, from MACROTABLE_* variables and
// envDefault tags.
func ParseEnv(target any) error {
	return ParseEnvWithPrefix(target, EnvPrefix)
}

// ParseEnvWithPrefix is ParseEnv with a caller-chosen prefix.
func ParseEnvWithPrefix(target any, prefix string) error {
	if target == nil {
		return errors.New("parse env: target is required")
	}
	if err := env.ParseWithOptions(target, env.Options{Prefix: prefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
