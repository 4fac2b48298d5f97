package action

import (
	"context"
	"errors"

	"github.com/looplab/fsm"

	"github.com/chr1sbest/refetch/internal/logger"
)

// Phases of a Handler. Errored is idle with a message and can be re-entered.
const (
	PhaseIdle    = "idle"
	PhaseLoading = "loading"
	PhaseDone    = "done"
	PhaseErrored = "errored"
)

const (
	eventStart   = "start"
	eventSucceed = "succeed"
	eventFail    = "fail"
	eventReset   = "reset"
)

// phaseMachine mirrors the indicator flags as a named phase for logging and
// diagnostics. The indicator cell stays authoritative.
type phaseMachine struct {
	fsm *fsm.FSM
	log logger.Logger
}

func newPhaseMachine(log logger.Logger) *phaseMachine {
	m := &phaseMachine{log: log}
	m.fsm = fsm.NewFSM(
		PhaseIdle,
		fsm.Events{
			{Name: eventStart, Src: []string{PhaseIdle, PhaseDone, PhaseErrored}, Dst: PhaseLoading},
			{Name: eventSucceed, Src: []string{PhaseLoading}, Dst: PhaseDone},
			{Name: eventFail, Src: []string{PhaseLoading}, Dst: PhaseErrored},
			{Name: eventReset, Src: []string{PhaseLoading, PhaseDone, PhaseErrored}, Dst: PhaseIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.Debug("phase changed",
					logger.F("event", e.Event),
					logger.F("from", e.Src),
					logger.F("to", e.Dst),
				)
			},
		},
	)
	return m
}

func (m *phaseMachine) current() string {
	return m.fsm.Current()
}

// fire moves the machine along event. An event the current phase does not
// accept (a completion landing after a reset) forces the phase to target so
// it keeps matching the indicators.
func (m *phaseMachine) fire(event, target string) {
	err := m.fsm.Event(context.Background(), event)
	if err == nil {
		return
	}

	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return
	}

	var invalid fsm.InvalidEventError
	if errors.As(err, &invalid) {
		if m.fsm.Current() == target {
			return
		}
		m.log.Debug("forcing phase",
			logger.F("event", event),
			logger.F("from", m.fsm.Current()),
			logger.F("to", target),
		)
		m.fsm.SetState(target)
		return
	}

	m.log.Warn("phase transition failed", logger.F("event", event), logger.F("error", err))
}
