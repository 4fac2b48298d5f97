package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/chr1sbest/refetch/internal/interval"
)

// ValidationError holds details about a configuration validation failure.
type ValidationError struct {
	Field   string
	Message string
	Context string
}

func (e ValidationError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (in %s)", e.Field, e.Message, e.Context)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	if len(errs) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, e := range errs {
		msgs = append(msgs, "  - "+e.Error())
	}
	return fmt.Sprintf("validation failed with %d error(s):\n%s", len(errs), strings.Join(msgs, "\n"))
}

// HasErrors returns true if there are any validation errors.
func (errs ValidationErrors) HasErrors() bool {
	return len(errs) > 0
}

var knownStrategies = []string{
	interval.StrategyReset.String(),
	interval.StrategyTickDependency.String(),
}

// Validate checks a config for errors and returns detailed validation errors.
func Validate(cfg *Config) ValidationErrors {
	var errs ValidationErrors

	if cfg.Name == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "config name is required",
		})
	}

	if len(cfg.Controllers) == 0 {
		errs = append(errs, ValidationError{
			Field:   "controllers",
			Message: "at least one controller is required",
		})
	}

	seenNames := make(map[string]bool)

	for i, c := range cfg.Controllers {
		ctx := fmt.Sprintf("controllers[%d]", i)
		add := func(field, msg string) {
			errs = append(errs, ValidationError{Field: field, Message: msg, Context: ctx})
		}

		if c.Name == "" {
			add("name", "controller name is required")
		} else {
			if seenNames[c.Name] {
				add("name", fmt.Sprintf("duplicate controller name %q", c.Name))
			}
			seenNames[c.Name] = true
		}

		if strings.TrimSpace(c.Command) == "" {
			add("command", "command is required")
		}
		if c.MaxTries < 0 {
			add("max_tries", "must not be negative")
		}
		if c.RetryJitter < 0 || c.RetryJitter > 1 {
			add("retry_jitter", "must be between 0 and 1")
		}
		if c.RetryMultiplier < 0 {
			add("retry_multiplier", "must not be negative")
		}

		for _, d := range []struct{ field, value string }{
			{"retry_delay", c.RetryDelay},
			{"max_retry_delay", c.MaxRetryDelay},
			{"interval", c.Interval},
			{"timeout", c.Timeout},
		} {
			if msg := checkDuration(d.value); msg != "" {
				add(d.field, msg)
			}
		}

		if c.Strategy != "" && !contains(knownStrategies, c.Strategy) {
			add("strategy", fmt.Sprintf("unknown strategy %q, known strategies: %s", c.Strategy, strings.Join(knownStrategies, ", ")))
		}
	}

	return errs
}

func checkDuration(s string) string {
	if s == "" {
		return ""
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Sprintf("invalid duration %q", s)
	}
	if d < 0 {
		return fmt.Sprintf("negative duration %q", s)
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ValidateConfig is a convenience function returning nil for a valid config.
func ValidateConfig(cfg *Config) error {
	errs := Validate(cfg)
	if errs.HasErrors() {
		return errs
	}
	return nil
}
