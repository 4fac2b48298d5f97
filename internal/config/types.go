package config

import (
	"time"

	"github.com/chr1sbest/refetch/internal/interval"
	"github.com/chr1sbest/refetch/internal/resilience"
)

// Config is the set of controllers a runner keeps alive, loaded from JSON or YAML.
type Config struct {
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	Controllers []ControllerConfig `json:"controllers" yaml:"controllers"`
}

// ControllerConfig defines one named controller whose action is a shell command.
type ControllerConfig struct {
	Name    string `json:"name" yaml:"name"`
	Command string `json:"command" yaml:"command"`
	Enabled *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// Retry configuration
	MaxTries        int     `json:"max_tries,omitempty" yaml:"max_tries,omitempty"`               // Attempts per trigger (0 = 1)
	RetryDelay      string  `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty"`           // Delay before the first retry (e.g., "1s", "500ms")
	RetryMultiplier float64 `json:"retry_multiplier,omitempty" yaml:"retry_multiplier,omitempty"` // > 1 grows the delay exponentially
	MaxRetryDelay   string  `json:"max_retry_delay,omitempty" yaml:"max_retry_delay,omitempty"`
	RetryJitter     float64 `json:"retry_jitter,omitempty" yaml:"retry_jitter,omitempty"`
	StopOnPermanent bool    `json:"stop_on_permanent,omitempty" yaml:"stop_on_permanent,omitempty"` // Skip retries for permanent failures

	// Interval configuration
	Interval string `json:"interval,omitempty" yaml:"interval,omitempty"` // Refetch period (empty = never)
	Strategy string `json:"strategy,omitempty" yaml:"strategy,omitempty"` // "reset" or "tick-dependency"

	// Timeout configuration
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"` // Command timeout (e.g., "30s", "5m")

	// Dependencies are pushed to the controller on every reload. A changed
	// list triggers a refetch; the command sees them as $REFETCH_DEPS.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// IsEnabled returns whether the controller is enabled (defaults to true).
func (c ControllerConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// GetRetryDelay parses and returns the retry delay duration.
func (c ControllerConfig) GetRetryDelay() time.Duration {
	return parseDuration(c.RetryDelay, time.Second)
}

// GetMaxRetryDelay parses the backoff cap. Zero means uncapped.
func (c ControllerConfig) GetMaxRetryDelay() time.Duration {
	return parseDuration(c.MaxRetryDelay, 0)
}

// GetInterval parses the refetch period. Zero disables the interval.
func (c ControllerConfig) GetInterval() time.Duration {
	return parseDuration(c.Interval, 0)
}

// GetTimeout parses and returns the timeout duration.
func (c ControllerConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 0)
}

// GetStrategy maps the strategy name. Unknown names fall back to reset.
func (c ControllerConfig) GetStrategy() interval.Strategy {
	if c.Strategy == interval.StrategyTickDependency.String() {
		return interval.StrategyTickDependency
	}
	return interval.StrategyReset
}

// RetryPolicy builds the resilience policy for the controller.
func (c ControllerConfig) RetryPolicy() resilience.RetryPolicy {
	p := resilience.RetryPolicy{
		Name:               c.Name,
		MaxTries:           c.MaxTries,
		TimeoutBeforeRetry: c.GetRetryDelay(),
		Multiplier:         c.RetryMultiplier,
		MaxDelay:           c.GetMaxRetryDelay(),
		Jitter:             c.RetryJitter,
	}
	if c.StopOnPermanent {
		p.ShouldRetry = func(err error) bool { return !resilience.IsPermanentError(err) }
	}
	return p.Normalize()
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
