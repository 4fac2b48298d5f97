// Package action drives a single asynchronous operation through the idle,
// loading, done and errored phases.
//
// A Handler runs at most one execution of its action at a time. A second
// Execute while the first is loading is rejected with ErrBusy, and in strict
// mode an Execute after success is rejected with ErrBlocked unless retries
// after success are allowed. Failures of the action are recorded in the
// handler's error state and returned unchanged to the caller of Execute.
package action

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chr1sbest/refetch/internal/errstate"
	"github.com/chr1sbest/refetch/internal/indicator"
	"github.com/chr1sbest/refetch/internal/logger"
	"github.com/chr1sbest/refetch/internal/metrics"
)

// ErrNotExecuted is wrapped by every rejection that left the action unrun
// and the state untouched.
var ErrNotExecuted = errors.New("action not executed")

var (
	// ErrBusy is returned when Execute is called while the action is loading.
	ErrBusy = fmt.Errorf("%w: already loading", ErrNotExecuted)
	// ErrBlocked is returned by a strict handler that already succeeded.
	ErrBlocked = fmt.Errorf("%w: already done", ErrNotExecuted)
)

// ErrPanicked wraps the value of a panic raised inside the action. The panic
// is recorded like any other failure.
var ErrPanicked = errors.New("action panicked")

// Action is the operation managed by a Handler.
type Action[P, R any] func(ctx context.Context, param P) (R, error)

// NoParam adapts a parameterless operation.
func NoParam[R any](fn func(ctx context.Context) (R, error)) Action[struct{}, R] {
	return func(ctx context.Context, _ struct{}) (R, error) {
		return fn(ctx)
	}
}

// Options configures a Handler. The zero value is usable.
type Options[R any] struct {
	// Name labels logs and metrics.
	Name string

	// Strict blocks Execute once the action has succeeded.
	Strict bool
	// IsRetryAllowed lifts the Strict block. Tries are not reset by it.
	IsRetryAllowed bool

	// ProcessError overrides the process-wide error processor.
	ProcessError errstate.Processor

	OnStart   func()
	OnSuccess func(result R)
	OnError   func(err error)

	Logger  logger.Logger
	Metrics *metrics.Recorder
}

// State is a point-in-time view of a Handler.
type State[R any] struct {
	IsLoading bool
	IsDone    bool
	IsErrored bool
	Error     string
	// Data is set if and only if IsDone.
	Data *R
}

// Handler wraps one action with loading/done/error bookkeeping.
type Handler[P, R any] struct {
	action     Action[P, R]
	opts       Options[R]
	log        logger.Logger
	indicators *indicator.State
	errs       *errstate.State
	phase      *phaseMachine

	// data is guarded by the indicator cell: it is written only inside
	// indicators.Update and read inside indicators.View.
	data *R
}

// New creates an idle Handler for fn.
func New[P, R any](fn Action[P, R], opts Options[R]) *Handler[P, R] {
	log := logger.OrNop(opts.Logger)
	if opts.Name != "" {
		log = log.WithFields(logger.F("action", opts.Name))
	}
	return &Handler[P, R]{
		action:     fn,
		opts:       opts,
		log:        log,
		indicators: indicator.New(),
		errs:       errstate.New(opts.ProcessError),
		phase:      newPhaseMachine(log),
	}
}

// Execute runs the action with param and waits for it.
//
// When a guard rejects the call, Execute logs a warning and returns ErrBusy
// or ErrBlocked without touching the state. Otherwise the action's own
// result and error are returned.
func (h *Handler[P, R]) Execute(ctx context.Context, param P) (R, error) {
	var zero R

	// Claim the loading flag and drop the previous result in one write so
	// concurrent callers see IsLoading immediately.
	prev, ok := h.indicators.Update(func(cur indicator.Indicators) (indicator.Indicators, bool) {
		if cur.IsDone && h.opts.Strict && !h.opts.IsRetryAllowed {
			return cur, false
		}
		if cur.IsLoading {
			return cur, false
		}
		h.data = nil
		return indicator.Indicators{IsLoading: true}, true
	})
	if !ok {
		h.opts.Metrics.AttemptSkipped(h.opts.Name)
		if prev.IsLoading {
			h.log.Warn("action is loading already, ignoring execute")
			return zero, ErrBusy
		}
		h.log.Warn("action is blocked because it is done, execute ignored; possible leak")
		return zero, ErrBlocked
	}

	if h.errs.IsErrored() {
		h.errs.ResetError()
	}
	h.phase.fire(eventStart, PhaseLoading)
	if h.opts.OnStart != nil {
		h.opts.OnStart()
	}

	h.opts.Metrics.AttemptStarted(h.opts.Name)
	started := time.Now()
	result, err := h.run(ctx, param)
	h.opts.Metrics.AttemptFinished(h.opts.Name, err, time.Since(started))

	if err != nil {
		h.errs.SetError(err)
		h.indicators.Set(indicator.Loading(false))
		h.phase.fire(eventFail, PhaseErrored)
		if h.opts.OnError != nil {
			h.opts.OnError(err)
		}
		return zero, err
	}

	h.indicators.Update(func(cur indicator.Indicators) (indicator.Indicators, bool) {
		h.data = &result
		return indicator.Indicators{IsDone: true}, true
	})
	h.phase.fire(eventSucceed, PhaseDone)
	if h.opts.OnSuccess != nil {
		h.opts.OnSuccess(result)
	}
	return result, nil
}

// run calls the action and turns a panic into an ordinary failure.
func (h *Handler[P, R]) run(ctx context.Context, param P) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero R
			result = zero
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
			h.log.Error("action panicked", logger.F("panic", r))
		}
	}()
	return h.action(ctx, param)
}

// Reset returns the handler to idle.
//
// Reset during an execution proceeds anyway: the running action is not
// cancelled and its completion will still write its result or error over the
// freshly reset state.
func (h *Handler[P, R]) Reset() {
	if h.indicators.Get().IsLoading {
		h.log.Warn("reset called during an active action, its result may overwrite the reset state")
	}
	h.indicators.Update(func(indicator.Indicators) (indicator.Indicators, bool) {
		h.data = nil
		return indicator.Indicators{}, true
	})
	h.errs.ResetError()
	h.phase.fire(eventReset, PhaseIdle)
}

// State returns the current state.
func (h *Handler[P, R]) State() State[R] {
	var st State[R]
	h.indicators.View(func(ind indicator.Indicators) {
		st.IsLoading = ind.IsLoading
		st.IsDone = ind.IsDone
		if ind.IsDone {
			st.Data = h.data
		}
	})
	st.Error, st.IsErrored = h.errs.Snapshot()
	return st
}

// Indicators exposes the handler's indicator cell for Get and Subscribe.
func (h *Handler[P, R]) Indicators() *indicator.State {
	return h.indicators
}

// Phase returns the current phase name.
func (h *Handler[P, R]) Phase() string {
	return h.phase.current()
}

// Name returns the configured name.
func (h *Handler[P, R]) Name() string {
	return h.opts.Name
}
