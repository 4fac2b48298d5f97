// Package interval re-runs a fetch controller on a fixed period.
package interval

import (
	"context"
	"sync"
	"time"

	"github.com/chr1sbest/refetch/internal/fetch"
	"github.com/chr1sbest/refetch/internal/indicator"
	"github.com/chr1sbest/refetch/internal/logger"
	"github.com/chr1sbest/refetch/internal/metrics"
	"github.com/chr1sbest/refetch/internal/scheduler"
)

// Strategy selects how a tick forces a new fetch.
type Strategy int

const (
	// StrategyReset calls Refetch on the fetch controller.
	StrategyReset Strategy = iota
	// StrategyTickDependency appends an incrementing counter to the
	// dependency list so the dependency comparison sees a change.
	StrategyTickDependency
)

func (s Strategy) String() string {
	switch s {
	case StrategyReset:
		return "reset"
	case StrategyTickDependency:
		return "tick-dependency"
	default:
		return "unknown"
	}
}

// Options configures a Controller.
type Options[R any] struct {
	fetch.Options[R]

	// Period between ticks. Zero or negative disables the timer.
	Period   time.Duration
	Strategy Strategy
}

// Controller is a fetch.Controller that refetches every Period while idle.
// The ticker runs only while the action is not loading, so a tick never
// resets a fetch in flight.
type Controller[R any] struct {
	*fetch.Controller[R]

	period   time.Duration
	strategy Strategy
	sched    scheduler.Scheduler
	log      logger.Logger
	metrics  *metrics.Recorder
	name     string

	mu          sync.Mutex
	ticker      scheduler.Timer
	ticks       uint64
	deps        []any
	closed      bool
	unsubscribe func()
}

// New creates a Controller. Like fetch.New it does nothing until
// SetDependencies or Execute is called.
func New[R any](ctx context.Context, fn func(ctx context.Context) (R, error), opts Options[R]) *Controller[R] {
	if opts.Scheduler == nil {
		opts.Scheduler = scheduler.System()
	}
	log := logger.OrNop(opts.Logger)
	if opts.Name != "" {
		log = log.WithFields(logger.F("controller", opts.Name))
	}

	c := &Controller[R]{
		Controller: fetch.New(ctx, fn, opts.Options),
		period:     opts.Period,
		strategy:   opts.Strategy,
		sched:      opts.Scheduler,
		log:        log,
		metrics:    opts.Metrics,
		name:       opts.Name,
	}
	if c.period > 0 {
		c.unsubscribe = c.Indicators().Subscribe(c.onIndicators)
		c.onIndicators(indicator.Indicators{})
	}
	return c
}

// SetDependencies records deps for the tick-dependency strategy and
// forwards them to the fetch controller.
func (c *Controller[R]) SetDependencies(deps ...any) bool {
	c.mu.Lock()
	c.deps = append([]any(nil), deps...)
	ticks := c.ticks
	c.mu.Unlock()

	if c.strategy == StrategyTickDependency {
		return c.Controller.SetDependencies(withTick(deps, ticks)...)
	}
	return c.Controller.SetDependencies(deps...)
}

// Period returns the configured period.
func (c *Controller[R]) Period() time.Duration {
	return c.period
}

// onIndicators arms the ticker while idle and disarms it while loading.
// Notifications from concurrent writers may arrive out of order, so the
// current value is read under c.mu instead of trusting the argument.
func (c *Controller[R]) onIndicators(indicator.Indicators) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	if c.Indicators().Get().IsLoading {
		if c.ticker != nil {
			c.ticker.Stop()
			c.ticker = nil
		}
		return
	}
	if c.ticker == nil {
		c.ticker = c.sched.Every(c.period, c.tick)
	}
}

func (c *Controller[R]) tick() {
	if c.Indicators().Get().IsLoading {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.ticks++
	ticks := c.ticks
	deps := c.deps
	c.mu.Unlock()

	c.metrics.IntervalTick(c.name)
	c.log.Debug("interval tick", logger.F("tick", ticks), logger.F("strategy", c.strategy.String()))

	if c.strategy == StrategyTickDependency {
		c.Controller.SetDependencies(withTick(deps, ticks)...)
		return
	}
	c.Refetch()
}

// Close stops the ticker and closes the fetch controller.
func (c *Controller[R]) Close() {
	c.mu.Lock()
	c.closed = true
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	unsubscribe := c.unsubscribe
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.Controller.Close()
}

func withTick(deps []any, tick uint64) []any {
	out := make([]any, 0, len(deps)+1)
	out = append(out, deps...)
	return append(out, tick)
}
