package reactive

import (
	"errors"
	"fmt"

	"github.com/delaneyj/pumpkin/tinyset"
)

type effectState uint8

const (
	statePending effectState = 1 << iota
	stateRunning
	stateDisposed
)

type cleanupKind uint8

const (
	cleanupFunc cleanupKind = iota
	cleanupChild
)

// cleanupEntry is either a user callback or a child effect to dispose.
type cleanupEntry struct {
	kind  cleanupKind
	fn    func()
	child *Effect
}

// Effect re-runs its body whenever a signal read during its previous run is
// written. Effects created while another effect runs are owned by it and
// are disposed before the owner's next run.
type Effect struct {
	sys   *System
	id    uint64
	state effectState
	fn    func() error

	// signals read during the last run
	observing tinyset.Set[source]
	// callbacks and children, torn down last-in first-out
	cleanups []cleanupEntry
}

// NewEffect creates an effect and runs it once before returning. An error
// from that first run is returned and the effect is torn down, leaving no
// edges or ownership behind. Errors from later runs go to the System's error
// handler.
func NewEffect(sys *System, fn func() error) (*Effect, error) {
	e := &Effect{
		sys: sys,
		id:  sys.nextID(),
		fn:  fn,
	}
	sys.effectsCreated.Add(1)
	owner := sys.current

	completed := false
	defer func() {
		// reached while a panic from fn unwinds; that panic wins over any
		// from the cleanups
		if !completed {
			e.dispose()
		}
	}()
	if err := e.run(); err != nil {
		completed = true
		if derr := e.dispose(); derr != nil {
			err = errors.Join(err, derr)
		}
		return nil, fmt.Errorf("reactive: initial effect run: %w", err)
	}
	completed = true

	if owner != nil {
		owner.adopt(e)
	}
	return e, nil
}

// ID returns a number unique within the effect's System.
func (e *Effect) ID() uint64 {
	return e.id
}

// IsPending reports whether the effect is waiting for a flush.
func (e *Effect) IsPending() bool {
	return e.state&statePending != 0
}

// Disposed reports whether Dispose has been called.
func (e *Effect) Disposed() bool {
	return e.state&stateDisposed != 0
}

// Dispose stops the effect: cleanups run, children are disposed and the
// effect is removed from every signal it observed. Disposing a pending
// effect drops it from the upcoming flush. Calling Dispose again is a no-op.
//
// A panicking cleanup does not stop the rest of the teardown; once every
// cleanup, child and edge has been dealt with, Dispose panics with the first
// failure wrapped in ErrEffectPanic.
func (e *Effect) Dispose() {
	if err := e.dispose(); err != nil {
		panic(err)
	}
}

func (e *Effect) dispose() error {
	if e.state&stateDisposed != 0 {
		return nil
	}
	if e.state&statePending != 0 {
		e.sys.pending.Add(-1)
	}
	e.state = stateDisposed
	e.sys.effectsDisposed.Add(1)
	return e.teardown()
}

func (e *Effect) adopt(child *Effect) {
	if e.state&stateDisposed != 0 {
		child.Dispose()
		return
	}
	e.cleanups = append(e.cleanups, cleanupEntry{kind: cleanupChild, child: child})
}

func (e *Effect) notify() {
	if e.state&(statePending|stateDisposed) != 0 {
		return
	}
	e.state |= statePending
	e.sys.enqueue(e)
}

func (e *Effect) run() error {
	sys := e.sys
	prev := sys.current
	sys.current = e
	if e.state&statePending != 0 {
		sys.pending.Add(-1)
	}
	e.state = (e.state &^ statePending) | stateRunning
	defer func() {
		e.state &^= stateRunning
		sys.current = prev
	}()

	sys.effectRuns.Add(1)
	return e.fn()
}

// rerun is a scheduled run. Panics from cleanups or the body become
// errors so the flush can carry on, and a failing cleanup does not keep
// the remaining cleanups or the body from running. A cleanup that disposes
// the effect itself cancels the run.
func (e *Effect) rerun() error {
	cleanupErr := e.teardown()
	if e.state&stateDisposed != 0 {
		return cleanupErr
	}
	var runErr error
	if err := catch(func() { runErr = e.run() }); err != nil {
		runErr = err
	}
	return errors.Join(cleanupErr, runErr)
}

// teardown runs cleanups newest first, disposing children through the whole
// subtree, and then drops every edge. A panicking cleanup is recovered so
// the rest still run; the first failure is returned.
func (e *Effect) teardown() (err error) {
	if cleanups := e.cleanups; len(cleanups) > 0 {
		e.cleanups = nil
		for i := len(cleanups) - 1; i >= 0; i-- {
			if cerr := cleanups[i].invoke(); cerr != nil && err == nil {
				err = cerr
			}
		}
		if e.cleanups == nil {
			clear(cleanups)
			e.cleanups = cleanups[:0]
		}
	}

	if e.observing.Len() > 0 {
		for src := range e.observing.All() {
			src.unobserve(e)
		}
		e.observing.Clear()
	}
	return err
}

func (c cleanupEntry) invoke() error {
	switch c.kind {
	case cleanupChild:
		return c.child.dispose()
	default:
		return catch(c.fn)
	}
}

func catch(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrEffectPanic, r)
		}
	}()
	fn()
	return nil
}
