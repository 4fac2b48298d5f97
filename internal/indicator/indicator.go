package indicator

import (
	"sync"
)

// Indicators is the loading/done pair describing the progress of an action.
type Indicators struct {
	IsLoading bool
	IsDone    bool
}

// Patch mutates a subset of the indicator fields.
type Patch func(*Indicators)

// Loading sets the loading flag.
func Loading(v bool) Patch {
	return func(i *Indicators) { i.IsLoading = v }
}

// Done sets the done flag.
func Done(v bool) Patch {
	return func(i *Indicators) { i.IsDone = v }
}

// State is an owned cell holding Indicators.
//
// Get always returns the latest written value, so code resuming after a
// blocking call reads post-suspension flags rather than a stale copy.
// Subscribe gives a reactive view of the same cell.
type State struct {
	mu        sync.RWMutex
	value     Indicators
	listeners map[int]func(Indicators)
	nextID    int
}

// New creates a State with both flags cleared.
func New() *State {
	return &State{listeners: make(map[int]func(Indicators))}
}

// Get returns the current indicators.
func (s *State) Get() Indicators {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// View runs fn with the current value while holding the read lock. Owners
// use it to read state they only mutate inside Update. fn must not call
// back into s.
func (s *State) View(fn func(Indicators)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.value)
}

// Set applies all patches as a single write and notifies subscribers once.
func (s *State) Set(patches ...Patch) {
	s.Update(func(cur Indicators) (Indicators, bool) {
		for _, p := range patches {
			p(&cur)
		}
		return cur, true
	})
}

// Reset restores both flags to false.
func (s *State) Reset() {
	s.Set(Loading(false), Done(false))
}

// Update runs fn against the current value while holding the write lock.
// When fn returns true its result is stored and subscribers are notified.
// It returns the value seen by fn and whether the write happened.
func (s *State) Update(fn func(cur Indicators) (Indicators, bool)) (Indicators, bool) {
	s.mu.Lock()
	prev := s.value
	next, ok := fn(prev)
	if !ok {
		s.mu.Unlock()
		return prev, false
	}
	s.value = next
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	// Listeners run outside the lock so they may call back into the cell.
	if next != prev {
		for _, fn := range listeners {
			fn(next)
		}
	}
	return prev, true
}

// Subscribe registers fn to be called with the new value after every change.
// The returned function removes the subscription.
func (s *State) Subscribe(fn func(Indicators)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	if s.listeners == nil {
		s.listeners = make(map[int]func(Indicators))
	}
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *State) snapshotListeners() []func(Indicators) {
	if len(s.listeners) == 0 {
		return nil
	}
	out := make([]func(Indicators), 0, len(s.listeners))
	for _, fn := range s.listeners {
		out = append(out, fn)
	}
	return out
}
