// Package metrics records controller activity as Prometheus series.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "refetch"

// Outcome labels for attempts.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Recorder holds the collectors for every controller in a process. The
// controller name is the label. All methods are safe on a nil *Recorder.
type Recorder struct {
	attempts      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	inFlight      *prometheus.GaugeVec
	retries       *prometheus.CounterVec
	intervalTicks *prometheus.CounterVec
	resets        *prometheus.CounterVec
}

// NewRecorder creates the collectors and registers them on reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &Recorder{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Action executions by outcome.",
			},
			[]string{"controller", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "attempt_duration_seconds",
				Help:      "Time spent inside the action.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"controller"},
		),
		inFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_flight",
				Help:      "1 while the controller's action is loading.",
			},
			[]string{"controller"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_scheduled_total",
				Help:      "Retry timers armed after a failed attempt.",
			},
			[]string{"controller"},
		),
		intervalTicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "interval_ticks_total",
				Help:      "Interval ticks that triggered a refetch.",
			},
			[]string{"controller"},
		),
		resets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resets_total",
				Help:      "Controller resets, including dependency changes.",
			},
			[]string{"controller"},
		),
	}

	for _, c := range []prometheus.Collector{r.attempts, r.duration, r.inFlight, r.retries, r.intervalTicks, r.resets} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// AttemptStarted marks the action as in flight.
func (r *Recorder) AttemptStarted(controller string) {
	if r == nil {
		return
	}
	r.inFlight.WithLabelValues(controller).Set(1)
}

// AttemptFinished records the outcome and duration of one execution.
func (r *Recorder) AttemptFinished(controller string, err error, took time.Duration) {
	if r == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	r.inFlight.WithLabelValues(controller).Set(0)
	r.attempts.WithLabelValues(controller, outcome).Inc()
	r.duration.WithLabelValues(controller).Observe(took.Seconds())
}

// AttemptSkipped counts an execute call rejected by a guard.
func (r *Recorder) AttemptSkipped(controller string) {
	if r == nil {
		return
	}
	r.attempts.WithLabelValues(controller, OutcomeSkipped).Inc()
}

// RetryScheduled counts an armed retry timer.
func (r *Recorder) RetryScheduled(controller string) {
	if r == nil {
		return
	}
	r.retries.WithLabelValues(controller).Inc()
}

// IntervalTick counts a periodic refetch.
func (r *Recorder) IntervalTick(controller string) {
	if r == nil {
		return
	}
	r.intervalTicks.WithLabelValues(controller).Inc()
}

// Reset counts a controller reset.
func (r *Recorder) Reset(controller string) {
	if r == nil {
		return
	}
	r.resets.WithLabelValues(controller).Inc()
}

// Forget drops the series of a controller that no longer exists.
func (r *Recorder) Forget(controller string) {
	if r == nil {
		return
	}
	labels := prometheus.Labels{"controller": controller}
	r.attempts.DeletePartialMatch(labels)
	r.duration.DeletePartialMatch(labels)
	r.inFlight.DeletePartialMatch(labels)
	r.retries.DeletePartialMatch(labels)
	r.intervalTicks.DeletePartialMatch(labels)
	r.resets.DeletePartialMatch(labels)
}
