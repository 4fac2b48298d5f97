package errstate

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// ValueError wraps a non-error failure value so it can reach a Processor.
type ValueError struct {
	Value any
}

func (e *ValueError) Error() string {
	return fmt.Sprint(e.Value)
}

// State holds the normalized error message of one action.
type State struct {
	mu       sync.RWMutex
	override Processor
	message  string
	errored  bool
}

// New creates an empty State. A nil override means the process-wide
// processor is used.
func New(override Processor) *State {
	return &State{override: override}
}

// SetError records a failure. Empty values (nil, typed nil errors, "",
// false and numeric zero) clear the error instead.
func (s *State) SetError(v any) {
	err := toError(v)
	if err == nil {
		s.ResetError()
		return
	}

	msg := s.processor()(err)

	s.mu.Lock()
	s.message = msg
	s.errored = true
	s.mu.Unlock()
}

// ResetError clears both the message and the errored flag.
func (s *State) ResetError() {
	s.mu.Lock()
	s.message = ""
	s.errored = false
	s.mu.Unlock()
}

// Error returns the current message.
func (s *State) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.message
}

// IsErrored reports whether a failure is recorded.
func (s *State) IsErrored() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errored
}

// Snapshot returns message and flag from one read.
func (s *State) Snapshot() (message string, errored bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.message, s.errored
}

func (s *State) processor() Processor {
	if s.override != nil {
		return s.override
	}
	return ActiveProcessor()
}

func toError(v any) error {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		if x == "" {
			return nil
		}
		return errors.New(x)
	case error:
		if isNilPointer(x) {
			return nil
		}
		return x
	default:
		if isZeroBasic(v) {
			return nil
		}
		return &ValueError{Value: v}
	}
}

// isZeroBasic reports a zero bool or number, which clears like nil does.
func isZeroBasic(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return rv.IsZero()
	}
	return false
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
