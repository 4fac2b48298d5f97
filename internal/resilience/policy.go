package resilience

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Defaults applied by RetryPolicy.Normalize.
const (
	DefaultMaxTries           = 1
	DefaultTimeoutBeforeRetry = time.Second
)

// RetryPolicy bounds how often a fetch controller re-runs a failed action and
// how long it waits in between.
//
// With Multiplier <= 1 the wait is the fixed TimeoutBeforeRetry. A larger
// Multiplier grows the wait exponentially from TimeoutBeforeRetry, capped at
// MaxDelay, with Jitter (0.0-1.0) of randomization.
type RetryPolicy struct {
	// Name identifies this policy for logging/debugging
	Name string

	// MaxTries counts the first attempt; 1 disables retries.
	MaxTries int

	TimeoutBeforeRetry time.Duration

	Multiplier float64
	MaxDelay   time.Duration
	Jitter     float64

	// ShouldRetry may veto a retry for a specific failure. Nil retries
	// every failure.
	ShouldRetry func(error) bool
}

// Predefined policies.
var (
	// Once runs the action a single time.
	Once = RetryPolicy{
		Name:               "once",
		MaxTries:           1,
		TimeoutBeforeRetry: DefaultTimeoutBeforeRetry,
	}

	// Steady retries twice after a fixed one second pause.
	Steady = RetryPolicy{
		Name:               "steady",
		MaxTries:           3,
		TimeoutBeforeRetry: time.Second,
	}

	// Patient backs off exponentially and skips failures that cannot heal.
	Patient = RetryPolicy{
		Name:               "patient",
		MaxTries:           5,
		TimeoutBeforeRetry: 500 * time.Millisecond,
		Multiplier:         2.0,
		MaxDelay:           30 * time.Second,
		Jitter:             0.1,
		ShouldRetry:        IsTransientError,
	}
)

// Normalize fills zero fields with defaults.
func (p RetryPolicy) Normalize() RetryPolicy {
	if p.MaxTries < 1 {
		p.MaxTries = DefaultMaxTries
	}
	if p.TimeoutBeforeRetry <= 0 {
		p.TimeoutBeforeRetry = DefaultTimeoutBeforeRetry
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Jitter > 1 {
		p.Jitter = 1
	}
	return p
}

// Allows reports whether err may be retried under this policy.
func (p RetryPolicy) Allows(err error) bool {
	if p.ShouldRetry == nil {
		return true
	}
	return p.ShouldRetry(err)
}

// NewBackOff returns the delay sequence for this policy. Attempt limits are
// enforced by the caller through MaxTries, so the sequence never stops.
func (p RetryPolicy) NewBackOff() backoff.BackOff {
	p = p.Normalize()
	if p.Multiplier <= 1 {
		return backoff.NewConstantBackOff(p.TimeoutBeforeRetry)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.TimeoutBeforeRetry
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = backoff.DefaultMaxInterval
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
