package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Env holds process settings read from REFETCH_* environment variables.
type Env struct {
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string        `env:"LOG_FORMAT" envDefault:"console"`
	LogFile     string        `env:"LOG_FILE"`
	MetricsAddr string        `env:"METRICS_ADDR"`
	ConfigPath  string        `env:"CONFIG"`
	ConfigDir   string        `env:"CONFIG_DIR" envDefault:"."`
	StateDir    string        `env:"STATE_DIR"`
	Debounce    time.Duration `env:"RELOAD_DEBOUNCE" envDefault:"100ms"`
	NoStatus    bool          `env:"NO_STATUS"`
}

// EnvPrefix is prepended to every Env variable name.
const EnvPrefix = "REFETCH_"

// ParseEnv loads Env from the process environment.
func ParseEnv() (Env, error) {
	return parseEnv(env.Options{Prefix: EnvPrefix})
}

// ParseEnvFrom loads Env from the given variables instead of the process
// environment.
func ParseEnvFrom(vars map[string]string) (Env, error) {
	return parseEnv(env.Options{Prefix: EnvPrefix, Environment: vars})
}

func parseEnv(opts env.Options) (Env, error) {
	var e Env
	if err := env.ParseWithOptions(&e, opts); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}
