package fetch

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/chr1sbest/refetch/internal/logger"
	"github.com/chr1sbest/refetch/internal/resilience"
	"github.com/chr1sbest/refetch/internal/scheduler"
)

func newManual() *scheduler.Manual {
	return scheduler.NewManual(time.Unix(0, 0))
}

func TestController_ResolvesOnFirstDependencies(t *testing.T) {
	sched := newManual()
	c := New(context.Background(), func(ctx context.Context) (int, error) {
		return 42, nil
	}, Options[int]{Scheduler: sched})
	defer c.Close()

	if !c.SetDependencies() {
		t.Fatal("first dependency snapshot must trigger")
	}
	c.Wait()

	st := c.State()
	if !st.IsDone || st.Data == nil || *st.Data != 42 || st.Tries != 1 {
		t.Errorf("unexpected state %+v", st)
	}
	if st.MaxTries != 1 {
		t.Errorf("expected default MaxTries 1, got %d", st.MaxTries)
	}
	if sched.Pending() != 0 {
		t.Errorf("no timer expected after success, got %d", sched.Pending())
	}
}

func TestController_RetriesUntilMaxTries(t *testing.T) {
	sched := newManual()
	var calls atomic.Int32
	c := New(context.Background(), func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, errors.New("boom")
	}, Options[int]{
		Scheduler: sched,
		Retry:     resilience.RetryPolicy{MaxTries: 3, TimeoutBeforeRetry: 100 * time.Millisecond},
	})
	defer c.Close()

	c.SetDependencies()
	c.Wait()

	for want := 2; want <= 3; want++ {
		st := c.State()
		if !st.IsInRetryTimeout {
			t.Fatalf("expected a retry to be armed after try %d, state %+v", want-1, st)
		}
		sched.Advance(99 * time.Millisecond)
		if got := calls.Load(); int(got) != want-1 {
			t.Fatalf("retry fired early: %d calls", got)
		}
		sched.Advance(time.Millisecond)
		c.Wait()
	}

	st := c.State()
	if calls.Load() != 3 || st.Tries != 3 {
		t.Errorf("expected 3 executions and tries, got calls=%d tries=%d", calls.Load(), st.Tries)
	}
	if !st.IsErrored || st.IsDone || st.Error != "boom" {
		t.Errorf("unexpected final state %+v", st)
	}
	if st.IsInRetryTimeout || sched.Pending() != 0 {
		t.Errorf("no retry may remain armed, pending=%d", sched.Pending())
	}

	sched.Advance(time.Hour)
	c.Wait()
	if calls.Load() != 3 {
		t.Errorf("extra execution after exhausting tries: %d", calls.Load())
	}
}

func TestController_PanickingActionIsRetried(t *testing.T) {
	sched := newManual()
	var calls atomic.Int32
	c := New(context.Background(), func(ctx context.Context) (int, error) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return 1, nil
	}, Options[int]{
		Scheduler: sched,
		Retry:     resilience.RetryPolicy{MaxTries: 2, TimeoutBeforeRetry: 100 * time.Millisecond},
	})
	defer c.Close()

	c.SetDependencies(1)
	c.Wait()

	st := c.State()
	if st.IsLoading || !st.IsErrored || !strings.Contains(st.Error, "boom") {
		t.Fatalf("panic must leave an errored idle state, got %+v", st)
	}
	if !st.IsInRetryTimeout {
		t.Fatalf("expected a retry after the panic, got %+v", st)
	}

	sched.Advance(100 * time.Millisecond)
	c.Wait()
	st = c.State()
	if !st.IsDone || *st.Data != 1 || st.Tries != 2 {
		t.Errorf("unexpected state after retry %+v", st)
	}
}

func TestController_RetrySucceeds(t *testing.T) {
	sched := newManual()
	var calls atomic.Int32
	c := New(context.Background(), func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	}, Options[string]{
		Scheduler: sched,
		Retry:     resilience.RetryPolicy{MaxTries: 5, TimeoutBeforeRetry: time.Second},
	})
	defer c.Close()

	c.SetDependencies("a")
	c.Wait()
	sched.Advance(time.Second)
	c.Wait()

	st := c.State()
	if !st.IsDone || *st.Data != "ok" || st.IsErrored || st.Tries != 2 {
		t.Errorf("unexpected state %+v", st)
	}
	if sched.Pending() != 0 {
		t.Errorf("no retry expected after success")
	}
}

func TestController_DependencyLaw(t *testing.T) {
	sched := newManual()
	var calls atomic.Int32
	c := New(context.Background(), func(ctx context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}, Options[int]{Scheduler: sched})
	defer c.Close()

	c.SetDependencies(1)
	c.Wait()

	if c.SetDependencies(1) {
		t.Error("same snapshot must not trigger")
	}
	c.Wait()
	if calls.Load() != 1 {
		t.Fatalf("expected 1 execution, got %d", calls.Load())
	}

	if !c.SetDependencies(2) {
		t.Fatal("changed snapshot must trigger")
	}
	c.Wait()

	st := c.State()
	if calls.Load() != 2 {
		t.Errorf("expected exactly one new execution, got %d total", calls.Load())
	}
	if st.Tries != 1 || *st.Data != 2 {
		t.Errorf("expected tries=1 data=2, got %+v", st)
	}
	if got := c.Dependencies(); !got.Equal(Dependencies{2}) {
		t.Errorf("unexpected recorded dependencies %v", got)
	}
}

func TestController_DependencyChangeWhileLoadingIsDropped(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	var calls atomic.Int32
	c := New(context.Background(), func(ctx context.Context) (int, error) {
		calls.Add(1)
		entered <- struct{}{}
		<-release
		return 1, nil
	}, Options[int]{Scheduler: newManual()})
	defer c.Close()

	c.SetDependencies("a")
	<-entered

	if c.SetDependencies("b") {
		t.Error("change during flight must not trigger")
	}
	close(release)
	c.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected one execution, got %d", calls.Load())
	}
	// The dropped snapshot was not remembered, so supplying it again works.
	if !c.SetDependencies("b") {
		t.Error("expected the re-supplied snapshot to trigger")
	}
	c.Wait()
	if calls.Load() != 2 {
		t.Errorf("expected two executions, got %d", calls.Load())
	}
}

func TestController_WarnsOnNonPrimitiveDependencies(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	c := New(context.Background(), func(ctx context.Context) (int, error) {
		return 1, nil
	}, Options[int]{Scheduler: newManual(), Logger: logger.FromZap(zap.New(core)), Name: "deps"})
	defer c.Close()

	filter := map[string]string{"team": "a"}
	c.SetDependencies("id", filter)
	c.Wait()
	c.SetDependencies("id", filter)
	c.Wait()

	warnings := 0
	for _, e := range logs.All() {
		if strings.Contains(e.Message, "non-primitive") {
			warnings++
		}
	}
	if warnings != 1 {
		t.Errorf("expected one warning per triggered change, got %d", warnings)
	}
}

func TestController_ResetIdempotent(t *testing.T) {
	sched := newManual()
	c := New(context.Background(), func(ctx context.Context) (int, error) {
		return 0, errors.New("boom")
	}, Options[int]{
		Scheduler: sched,
		Retry:     resilience.RetryPolicy{MaxTries: 3, TimeoutBeforeRetry: time.Second},
	})
	defer c.Close()

	c.SetDependencies()
	c.Wait()
	if sched.Pending() != 1 {
		t.Fatalf("expected an armed retry")
	}

	for i := 0; i < 3; i++ {
		c.Reset()
		st := c.State()
		if st.IsLoading || st.IsDone || st.IsErrored || st.Data != nil || st.Tries != 0 || st.IsInRetryTimeout {
			t.Fatalf("reset %d: unexpected state %+v", i, st)
		}
	}
	if sched.Pending() != 0 {
		t.Errorf("reset must cancel the pending retry")
	}
}

func TestController_ExecuteGuards(t *testing.T) {
	c := New(context.Background(), func(ctx context.Context) (int, error) {
		return 7, nil
	}, Options[int]{Scheduler: newManual()})
	defer c.Close()

	if !c.Execute() {
		t.Fatal("expected first Execute to start")
	}
	c.Wait()
	if c.Execute() {
		t.Error("Execute after done must be a no-op")
	}
	if c.State().Tries != 1 {
		t.Errorf("no-op Execute must not count a try")
	}
	if !c.Refetch() {
		t.Error("Refetch must start a new attempt")
	}
	c.Wait()
	if st := c.State(); st.Tries != 1 || *st.Data != 7 {
		t.Errorf("unexpected state after refetch %+v", st)
	}
}

func TestController_ShouldRetryVeto(t *testing.T) {
	sched := newManual()
	c := New(context.Background(), func(ctx context.Context) (int, error) {
		return 0, resilience.Permanent(errors.New("bad request"))
	}, Options[int]{
		Scheduler: sched,
		Retry: resilience.RetryPolicy{
			MaxTries:           3,
			TimeoutBeforeRetry: time.Second,
			ShouldRetry:        resilience.IsTransientError,
		},
	})
	defer c.Close()

	c.SetDependencies()
	c.Wait()
	if sched.Pending() != 0 || c.State().IsInRetryTimeout {
		t.Error("permanent failure must not arm a retry")
	}
}

func TestController_ExponentialBackoff(t *testing.T) {
	sched := newManual()
	var calls atomic.Int32
	c := New(context.Background(), func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, errors.New("down")
	}, Options[int]{
		Scheduler: sched,
		Retry: resilience.RetryPolicy{
			MaxTries:           4,
			TimeoutBeforeRetry: 100 * time.Millisecond,
			Multiplier:         2,
			MaxDelay:           time.Second,
		},
	})
	defer c.Close()

	c.SetDependencies()
	c.Wait()

	for i, delay := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond} {
		before := calls.Load()
		sched.Advance(delay - time.Millisecond)
		if calls.Load() != before {
			t.Fatalf("retry %d fired before %v", i+1, delay)
		}
		sched.Advance(time.Millisecond)
		c.Wait()
		if calls.Load() != before+1 {
			t.Fatalf("retry %d did not fire at %v", i+1, delay)
		}
	}
	if sched.Pending() != 0 {
		t.Errorf("expected no retry after MaxTries")
	}
}

func TestController_CloseStopsRetries(t *testing.T) {
	sched := newManual()
	var calls atomic.Int32
	c := New(context.Background(), func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, errors.New("boom")
	}, Options[int]{
		Scheduler: sched,
		Retry:     resilience.RetryPolicy{MaxTries: 5, TimeoutBeforeRetry: time.Second},
	})

	c.SetDependencies()
	c.Wait()
	c.Close()

	if sched.Pending() != 0 {
		t.Errorf("Close must cancel the armed retry")
	}
	sched.Advance(time.Minute)
	if c.Execute() || c.SetDependencies("x") {
		t.Error("closed controller must not start attempts")
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single execution, got %d", calls.Load())
	}
}
