package errstate

import (
	"errors"
	"sync/atomic"
)

// Processor turns a failure into the message shown to users.
type Processor func(err error) string

// messager is implemented by errors that carry a user-facing message
// separate from their Error() text.
type messager interface {
	Message() string
}

// DefaultMessage is the builtin processor. It prefers a Message() field and
// falls back to Error().
func DefaultMessage(err error) string {
	if err == nil {
		return ""
	}
	var m messager
	if errors.As(err, &m) {
		if msg := m.Message(); msg != "" {
			return msg
		}
	}
	return err.Error()
}

var defaultProcessor atomic.Pointer[Processor]

// SetDefaultProcessor replaces the process-wide processor. Instances without
// their own override read it on every normalization, so the swap is visible
// to instances created earlier. Passing nil restores DefaultMessage.
func SetDefaultProcessor(p Processor) {
	if p == nil {
		defaultProcessor.Store(nil)
		return
	}
	defaultProcessor.Store(&p)
}

// ActiveProcessor returns the current process-wide processor.
func ActiveProcessor() Processor {
	if p := defaultProcessor.Load(); p != nil {
		return *p
	}
	return DefaultMessage
}
