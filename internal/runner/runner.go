// Package runner keeps one interval controller alive per configured command
// and reconciles them when the config changes.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chr1sbest/refetch/internal/action"
	"github.com/chr1sbest/refetch/internal/config"
	"github.com/chr1sbest/refetch/internal/fetch"
	"github.com/chr1sbest/refetch/internal/indicator"
	"github.com/chr1sbest/refetch/internal/interval"
	"github.com/chr1sbest/refetch/internal/logger"
	"github.com/chr1sbest/refetch/internal/metrics"
	"github.com/chr1sbest/refetch/internal/scheduler"
	"github.com/chr1sbest/refetch/internal/status"
	"github.com/chr1sbest/refetch/internal/tracker"
)

// ErrControllersFailed is returned by Settle when a controller ended errored.
var ErrControllersFailed = errors.New("controllers failed")

// Options configures a Runner. Every field is optional.
type Options struct {
	Logger    logger.Logger
	Metrics   *metrics.Recorder
	Scheduler scheduler.Scheduler
	Status    *status.Writer
	Tracker   *tracker.Writer
	RunID     string
	Shell     string

	// Once disables intervals so every controller settles after its
	// initial fetch and retries.
	Once bool

	// Refresh is how often Run repaints even without indicator changes,
	// which catches retry timers arming. Defaults to 500ms.
	Refresh time.Duration
}

type entry struct {
	name        string
	cfg         config.ControllerConfig
	ctrl        *interval.Controller[string]
	deps        atomic.Pointer[[]string]
	unsubscribe func()
}

// Runner owns the controllers built from a config.
type Runner struct {
	ctx     context.Context
	opts    Options
	log     logger.Logger
	changed chan struct{}
	started time.Time

	mu      sync.Mutex
	cfgName string
	entries map[string]*entry
	lastErr error
	closed  bool
}

// New creates an empty Runner. ctx is handed to every command.
func New(ctx context.Context, opts Options) *Runner {
	if opts.Scheduler == nil {
		opts.Scheduler = scheduler.System()
	}
	if opts.Refresh <= 0 {
		opts.Refresh = 500 * time.Millisecond
	}
	if opts.RunID == "" {
		opts.RunID = tracker.NewRunID()
	}
	return &Runner{
		ctx:     ctx,
		opts:    opts,
		log:     logger.OrNop(opts.Logger),
		changed: make(chan struct{}, 1),
		started: time.Now(),
		entries: make(map[string]*entry),
	}
}

// Apply reconciles the running controllers with cfg. New controllers start
// and fetch at once. A controller whose only change is its dependency list
// receives the new list through SetDependencies, which refetches when it
// differs. Any other change rebuilds the controller. Controllers missing
// from cfg, or disabled, are closed.
func (r *Runner) Apply(cfg *config.Config) error {
	if err := config.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("apply config: %w", err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.New("runner closed")
	}
	r.cfgName = cfg.Name

	wanted := make(map[string]config.ControllerConfig, len(cfg.Controllers))
	for _, cc := range cfg.Controllers {
		if cc.IsEnabled() {
			wanted[cc.Name] = cc
		}
	}

	var stale []*entry
	for name, e := range r.entries {
		cc, ok := wanted[name]
		if !ok || !sameOptions(e.cfg, cc) {
			stale = append(stale, e)
			delete(r.entries, name)
		}
	}

	var fresh []*entry
	updated := make(map[*entry][]string)
	for name, cc := range wanted {
		if e, ok := r.entries[name]; ok {
			e.cfg = cc
			updated[e] = cc.Dependencies
			continue
		}
		e := r.newEntry(cc)
		r.entries[name] = e
		fresh = append(fresh, e)
	}
	r.mu.Unlock()

	for _, e := range stale {
		r.closeEntry(e)
		r.log.Info("controller stopped", logger.F("controller", e.name))
	}
	for e, deps := range updated {
		if e.pushDeps(deps) {
			r.log.Info("dependencies changed, refetching", logger.F("controller", e.name))
		}
	}
	for _, e := range fresh {
		e.pushDeps(wanted[e.name].Dependencies)
		r.log.Info("controller started",
			logger.F("controller", e.name),
			logger.F("interval", e.ctrl.Period()),
			logger.F("max_tries", e.ctrl.State().MaxTries),
		)
	}

	r.notify()
	return nil
}

func (r *Runner) newEntry(cc config.ControllerConfig) *entry {
	e := &entry{name: cc.Name, cfg: cc}
	empty := []string{}
	e.deps.Store(&empty)

	cmd := CommandAction{
		Name:    cc.Name,
		Command: cc.Command,
		Timeout: cc.GetTimeout(),
		Shell:   r.opts.Shell,
	}
	period := cc.GetInterval()
	if r.opts.Once {
		period = 0
	}

	e.ctrl = interval.New(r.ctx, func(ctx context.Context) (string, error) {
		return cmd.Run(ctx, *e.deps.Load())
	}, interval.Options[string]{
		Options: fetch.Options[string]{
			Name:         cc.Name,
			Retry:        cc.RetryPolicy(),
			ProcessError: firstLine,
			Scheduler:    r.opts.Scheduler,
			Logger:       r.log,
			Metrics:      r.opts.Metrics,
		},
		Period:   period,
		Strategy: cc.GetStrategy(),
	})
	e.unsubscribe = e.ctrl.Indicators().Subscribe(func(indicator.Indicators) { r.notify() })
	return e
}

// pushDeps stores deps for the command and forwards them to the controller.
func (e *entry) pushDeps(deps []string) bool {
	cp := append([]string{}, deps...)
	e.deps.Store(&cp)

	vals := make([]any, len(cp))
	for i, d := range cp {
		vals[i] = d
	}
	return e.ctrl.SetDependencies(vals...)
}

func (r *Runner) closeEntry(e *entry) {
	e.unsubscribe()
	e.ctrl.Close()
	r.opts.Metrics.Forget(e.name)
}

// sameOptions reports whether a and b differ at most in their dependency list.
func sameOptions(a, b config.ControllerConfig) bool {
	a.Dependencies, b.Dependencies = nil, nil
	a.Enabled, b.Enabled = nil, nil
	return reflect.DeepEqual(a, b)
}

// firstLine keeps controller errors to one line; the full text is logged.
func firstLine(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		return msg[:i]
	}
	return msg
}

// Controller returns the live controller for name.
func (r *Runner) Controller(name string) (*interval.Controller[string], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.ctrl, true
}

// Snapshots returns the state of every controller, ordered by name.
func (r *Runner) Snapshots() []tracker.ControllerState {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	out := make([]tracker.ControllerState, 0, len(entries))
	for _, e := range entries {
		st := e.ctrl.State()
		cs := tracker.ControllerState{
			Name:             e.name,
			Phase:            e.ctrl.Phase(),
			Tries:            st.Tries,
			MaxTries:         st.MaxTries,
			IsInRetryTimeout: st.IsInRetryTimeout,
			Error:            st.Error,
		}
		if st.Data != nil {
			cs.Data = *st.Data
		}
		out = append(out, cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Run repaints status and persists state on every change, and applies
// config events, until ctx ends. A nil events channel disables reloads.
func (r *Runner) Run(ctx context.Context, events <-chan config.ConfigEvent) error {
	ticker := time.NewTicker(r.opts.Refresh)
	defer ticker.Stop()

	r.publish("running")
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			r.handleEvent(ev)

		case <-r.changed:
			r.publish("running")

		case <-ticker.C:
			r.publish("running")
		}
	}
}

func (r *Runner) handleEvent(ev config.ConfigEvent) {
	err := ev.Error
	if err == nil && ev.Config != nil {
		err = r.Apply(ev.Config)
		if err == nil {
			r.log.Info("config reloaded", logger.F("path", ev.Path))
		}
	}
	if err == nil {
		return
	}

	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()

	r.log.Warn("config reload failed, keeping current controllers", logger.F("path", ev.Path), logger.F("error", err))
	if r.opts.Status != nil {
		r.opts.Status.Persist(fmt.Sprintf("⚠ reload failed: %s", firstLine(err)))
	}
	r.notify()
}

// Settle blocks until no controller is loading or waiting for a retry. It
// returns ErrControllersFailed naming every controller that ended errored.
// Intervals keep ticking; Settle is meant for Once runners.
func (r *Runner) Settle(ctx context.Context) error {
	poll := time.NewTicker(20 * time.Millisecond)
	defer poll.Stop()

	for {
		if !r.busy() {
			var failed []string
			for _, s := range r.Snapshots() {
				if s.Phase == action.PhaseErrored {
					failed = append(failed, s.Name)
				}
			}
			r.publish("settled")
			if len(failed) > 0 {
				return fmt.Errorf("%w: %s", ErrControllersFailed, strings.Join(failed, ", "))
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-poll.C:
		}
	}
}

func (r *Runner) busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ctrl.Busy() {
			return true
		}
	}
	return false
}

// Close stops every controller and writes the final state.
func (r *Runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	for _, e := range entries {
		e.unsubscribe()
		e.ctrl.Close()
	}
	for _, e := range entries {
		e.ctrl.Wait()
	}
	r.publish("stopped")
}

func (r *Runner) notify() {
	select {
	case r.changed <- struct{}{}:
	default:
	}
}

// publish repaints the status writer and writes state.json.
func (r *Runner) publish(state string) {
	snaps := r.Snapshots()

	if r.opts.Status != nil {
		entries := make([]status.Entry, len(snaps))
		for i, s := range snaps {
			entries[i] = status.Entry(s)
		}
		r.opts.Status.Render(entries)
	}

	if r.opts.Tracker == nil {
		return
	}
	r.mu.Lock()
	rs := tracker.RunState{
		RunID:       r.opts.RunID,
		PID:         os.Getpid(),
		ConfigName:  r.cfgName,
		StartedAt:   r.started,
		UpdatedAt:   time.Now(),
		Status:      state,
		Controllers: snaps,
	}
	if r.lastErr != nil {
		rs.LastError = r.lastErr.Error()
	}
	r.mu.Unlock()

	if err := r.opts.Tracker.WriteRunState(rs); err != nil {
		r.log.Debug("failed to write run state", logger.F("error", err))
	}
}
