package reactive

import "github.com/delaneyj/pumpkin/tinyset"

// source is the type-erased side of a signal seen from the effects
// observing it.
type source interface {
	unobserve(e *Effect)
}

// Signal holds a value and the effects whose last run read it.
type Signal[T any] struct {
	sys       *System
	value     T
	observers tinyset.Set[*Effect]
}

// NewSignal creates a signal holding value.
func NewSignal[T any](sys *System, value T) *Signal[T] {
	return &Signal[T]{sys: sys, value: value}
}

// Get returns the current value. While an effect is running, the read also
// records an edge between the signal and that effect.
func (s *Signal[T]) Get() T {
	if e := s.sys.current; e != nil && e.state&(stateRunning|stateDisposed) == stateRunning {
		if s.observers.Add(e) {
			e.observing.Add(s)
		}
	}
	return s.value
}

// Peek returns the current value without recording an edge.
func (s *Signal[T]) Peek() T {
	return s.value
}

// Set stores value and schedules every observing effect. There is no
// equality check: writing the same value notifies just the same.
//
// The observer set is emptied; effects that still read the signal on their
// next run will register again.
func (s *Signal[T]) Set(value T) {
	s.value = value
	if s.observers.Len() == 0 {
		return
	}

	observers := s.observers.Take()
	for e := range observers.All() {
		e.observing.Delete(s)
		e.notify()
	}

	// hand the emptied storage back unless a synchronous scheduler already
	// re-registered someone
	if s.observers.Len() == 0 {
		observers.Clear()
		s.observers = observers
	}
}

// Update is Set(fn(current value)).
func (s *Signal[T]) Update(fn func(T) T) {
	s.Set(fn(s.value))
}

// Observers returns how many effects currently depend on the signal.
func (s *Signal[T]) Observers() int {
	return s.observers.Len()
}

func (s *Signal[T]) unobserve(e *Effect) {
	s.observers.Delete(e)
}
