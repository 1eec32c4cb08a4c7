package reactive

// Scope is a captured value of the current-effect slot.
type Scope struct {
	sys    *System
	effect *Effect
}

// Capture records the current effect so that work done later, outside the
// effect's call stack, can be attributed to it.
func (s *System) Capture() Scope {
	return Scope{sys: s, effect: s.current}
}

// Effect returns the captured effect, or nil if nothing was running.
func (sc Scope) Effect() *Effect {
	return sc.effect
}

// Run calls fn with the captured effect as current. Child effects and
// cleanups created by fn belong to that effect; reads only create edges if
// the effect happens to be running.
func (sc Scope) Run(fn func()) {
	defer sc.sys.enter(sc.effect)()
	fn()
}

// Wrap returns a function that calls fn inside the scope current at the
// time Wrap was called. List reconcilers use it to create per-item effects
// from inside another effect without making them that effect's children.
func Wrap[A, R any](sys *System, fn func(A) R) func(A) R {
	sc := sys.Capture()
	return func(arg A) R {
		var result R
		sc.Run(func() {
			result = fn(arg)
		})
		return result
	}
}
