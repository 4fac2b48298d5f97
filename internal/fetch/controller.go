// Package fetch runs an action automatically: once when its dependencies
// change, and again after failures until the retry policy is exhausted.
//
// Unlike action.Handler, a Controller never returns the action's error to
// anyone. It is its own retry authority, so failures only show up in State
// and in the log.
package fetch

import (
	"context"
	"errors"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"github.com/chr1sbest/refetch/internal/action"
	"github.com/chr1sbest/refetch/internal/errstate"
	"github.com/chr1sbest/refetch/internal/indicator"
	"github.com/chr1sbest/refetch/internal/logger"
	"github.com/chr1sbest/refetch/internal/metrics"
	"github.com/chr1sbest/refetch/internal/resilience"
	"github.com/chr1sbest/refetch/internal/scheduler"
)

// Options configures a Controller. The zero value runs the action once with
// no retries on the system scheduler.
type Options[R any] struct {
	Name  string
	Retry resilience.RetryPolicy

	ProcessError errstate.Processor
	OnStart      func()
	OnSuccess    func(result R)
	OnError      func(err error)

	Scheduler scheduler.Scheduler
	Logger    logger.Logger
	Metrics   *metrics.Recorder
}

// State is the action state plus retry bookkeeping.
type State[R any] struct {
	action.State[R]
	Tries            int
	MaxTries         int
	IsInRetryTimeout bool
}

// Controller drives one action with retries and dependency tracking.
type Controller[R any] struct {
	ctx     context.Context
	name    string
	handler *action.Handler[struct{}, R]
	policy  resilience.RetryPolicy
	sched   scheduler.Scheduler
	log     logger.Logger
	metrics *metrics.Recorder

	mu         sync.Mutex
	idle       *sync.Cond
	tries      int
	attempting bool
	deps       Dependencies
	hasDeps    bool
	backoff    backoff.BackOff
	retryTimer scheduler.Timer
	retryGen   uint64
	closed     bool
}

// New creates a Controller for fn. ctx is passed to every attempt; nothing
// runs until SetDependencies or Execute is called.
func New[R any](ctx context.Context, fn func(ctx context.Context) (R, error), opts Options[R]) *Controller[R] {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.OrNop(opts.Logger)
	if opts.Name != "" {
		log = log.WithFields(logger.F("controller", opts.Name))
	}
	sched := opts.Scheduler
	if sched == nil {
		sched = scheduler.System()
	}
	policy := opts.Retry.Normalize()

	c := &Controller[R]{
		ctx:  ctx,
		name: opts.Name,
		handler: action.New(action.NoParam(fn), action.Options[R]{
			Name:         opts.Name,
			Strict:       true,
			ProcessError: opts.ProcessError,
			OnStart:      opts.OnStart,
			OnSuccess:    opts.OnSuccess,
			OnError:      opts.OnError,
			Logger:       opts.Logger,
			Metrics:      opts.Metrics,
		}),
		policy:  policy,
		sched:   sched,
		log:     log,
		metrics: opts.Metrics,
		backoff: policy.NewBackOff(),
	}
	c.idle = sync.NewCond(&c.mu)
	return c
}

// SetDependencies supplies the current dependency snapshot. The first call
// always triggers a fetch; later calls trigger only when the snapshot
// differs from the last one that triggered. A change that arrives while the
// action is loading is dropped and not remembered. A trigger is Reset
// followed by one attempt. It reports whether a fetch was triggered.
func (c *Controller[R]) SetDependencies(deps ...any) bool {
	next := Dependencies(deps).clone()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	if c.hasDeps && c.deps.Equal(next) {
		c.mu.Unlock()
		return false
	}
	if c.attempting || c.handler.Indicators().Get().IsLoading {
		c.mu.Unlock()
		c.log.Debug("dependencies changed while loading, refetch skipped")
		return false
	}
	c.deps, c.hasDeps = next, true
	c.mu.Unlock()

	if idx := next.NonBasic(); len(idx) > 0 {
		c.log.Warn("non-primitive dependencies are compared by reference: "+
			"a reused reference hides real changes and a new reference with equal content refetches every time",
			logger.F("indexes", idx))
	}

	c.Refetch()
	return true
}

// Dependencies returns the snapshot that last triggered a fetch.
func (c *Controller[R]) Dependencies() Dependencies {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deps.clone()
}

// Execute starts one attempt in the background unless the action is loading
// or already done. It increments Tries and reports whether it started.
func (c *Controller[R]) Execute() bool {
	c.mu.Lock()
	try, ok := c.startLocked()
	c.mu.Unlock()

	if ok {
		go c.attempt(try)
	}
	return ok
}

// startLocked claims the in-flight slot and counts the try.
func (c *Controller[R]) startLocked() (int, bool) {
	if c.closed || c.attempting {
		return 0, false
	}
	ind := c.handler.Indicators().Get()
	if ind.IsDone || ind.IsLoading {
		return 0, false
	}
	c.tries++
	c.attempting = true
	return c.tries, true
}

func (c *Controller[R]) attempt(try int) {
	log := c.log.WithFields(logger.F("try", try), logger.F("max_tries", c.policy.MaxTries))
	log.Debug("fetch attempt started")

	_, err := c.handler.Execute(c.ctx, struct{}{})
	switch {
	case err == nil:
		log.Debug("fetch attempt succeeded")
	case errors.Is(err, action.ErrNotExecuted):
		log.Debug("fetch attempt skipped", logger.F("reason", err))
	default:
		log.Error("fetch attempt failed", logger.F("error", err))
	}

	c.finishAttempt(err, log)
}

// finishAttempt clears the in-flight mark and arms a retry when the attempt
// failed and tries remain.
func (c *Controller[R]) finishAttempt(err error, log logger.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempting = false
	defer c.idle.Broadcast()

	if c.closed || c.retryTimer != nil || err == nil || errors.Is(err, action.ErrNotExecuted) {
		return
	}
	ind := c.handler.Indicators().Get()
	if ind.IsLoading || ind.IsDone {
		return
	}
	if c.tries == 0 {
		// Reset while the attempt was running.
		return
	}
	if c.tries >= c.policy.MaxTries {
		if c.policy.MaxTries > 1 {
			log.Warn("giving up, no tries left")
		}
		return
	}
	if !c.policy.Allows(err) {
		log.Info("not retrying, failure is not retryable")
		return
	}

	delay := c.backoff.NextBackOff()
	if delay == backoff.Stop {
		return
	}
	c.retryGen++
	gen := c.retryGen
	c.retryTimer = c.sched.AfterFunc(delay, func() { c.onRetryTimeout(gen) })
	c.metrics.RetryScheduled(c.name)
	log.Debug("retry scheduled", logger.F("delay", delay))
}

func (c *Controller[R]) onRetryTimeout(gen uint64) {
	c.mu.Lock()
	if gen != c.retryGen || c.retryTimer == nil {
		c.mu.Unlock()
		return
	}
	c.retryTimer = nil
	try, ok := c.startLocked()
	c.mu.Unlock()

	if ok {
		go c.attempt(try)
	}
}

func (c *Controller[R]) cancelRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.retryGen++
}

// Reset returns the action to idle, zeroes Tries, restarts the backoff
// sequence and cancels a pending retry. It does not start an attempt.
func (c *Controller[R]) Reset() {
	c.mu.Lock()
	c.tries = 0
	c.cancelRetryLocked()
	c.backoff.Reset()
	c.mu.Unlock()

	c.handler.Reset()
	c.metrics.Reset(c.name)
}

// Refetch is Reset followed by one attempt.
func (c *Controller[R]) Refetch() bool {
	c.Reset()
	return c.Execute()
}

// State returns the current state.
func (c *Controller[R]) State() State[R] {
	st := State[R]{State: c.handler.State()}
	c.mu.Lock()
	st.Tries = c.tries
	st.MaxTries = c.policy.MaxTries
	st.IsInRetryTimeout = c.retryTimer != nil
	c.mu.Unlock()
	return st
}

// Indicators exposes the loading/done cell of the wrapped handler.
func (c *Controller[R]) Indicators() *indicator.State {
	return c.handler.Indicators()
}

// Phase returns the wrapped handler's phase name.
func (c *Controller[R]) Phase() string {
	return c.handler.Phase()
}

// Name returns the configured name.
func (c *Controller[R]) Name() string {
	return c.name
}

// Busy reports whether an attempt is in flight or a retry is armed.
func (c *Controller[R]) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempting || c.retryTimer != nil
}

// Wait blocks until no attempt is in flight.
func (c *Controller[R]) Wait() {
	c.mu.Lock()
	for c.attempting {
		c.idle.Wait()
	}
	c.mu.Unlock()
}

// Close cancels a pending retry and stops future attempts. An attempt that
// is already running finishes in the background; use Wait to block on it.
func (c *Controller[R]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cancelRetryLocked()
}
