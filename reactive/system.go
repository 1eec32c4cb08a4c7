package reactive

import (
	"log/slog"
	"sync/atomic"
)

// ErrorHandler receives errors raised by effect bodies during a flush.
type ErrorHandler func(from *Effect, err error)

// System holds the state shared by every signal and effect created with it:
// the currently running effect and the queue of effects waiting for the next
// flush. A System is confined to a single goroutine; nothing in it is
// synchronized except the counters behind Stats.
type System struct {
	// The effect whose body is executing, or whose scope is being replayed.
	current *Effect

	// Effects marked pending since the last flush. nil means no flush has
	// been requested from the scheduler yet.
	queue   []*Effect
	flushFn func()

	scheduler  Scheduler
	logger     *slog.Logger
	onError    ErrorHandler
	flushLimit int

	lastID uint64

	effectsCreated  atomic.Uint64
	effectRuns      atomic.Uint64
	flushes         atomic.Uint64
	effectErrors    atomic.Uint64
	effectsDisposed atomic.Uint64
	pending         atomic.Int64
}

// Option configures a System.
type Option func(*System)

// WithScheduler sets the deferred-execution primitive used to request
// flushes. The default is Manual, which leaves flushing to the caller.
func WithScheduler(scheduler Scheduler) Option {
	return func(s *System) {
		s.scheduler = scheduler
	}
}

// WithLogger sets the logger used by the default error handler.
func WithLogger(logger *slog.Logger) Option {
	return func(s *System) {
		s.logger = logger
	}
}

// WithErrorHandler replaces the default handler, which logs the error.
func WithErrorHandler(fn ErrorHandler) Option {
	return func(s *System) {
		s.onError = fn
	}
}

// WithFlushLimit bounds how many passes RunUntilIdle makes before giving up.
func WithFlushLimit(passes int) Option {
	return func(s *System) {
		if passes > 0 {
			s.flushLimit = passes
		}
	}
}

const defaultFlushLimit = 1000

// New creates a System.
func New(opts ...Option) *System {
	s := &System{
		scheduler:  Manual{},
		flushLimit: defaultFlushLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.onError == nil {
		s.onError = s.logError
	}
	s.flushFn = s.Flush
	return s
}

func (s *System) logError(from *Effect, err error) {
	s.logger.Error("effect failed", slog.Uint64("effect", from.id), slog.Any("err", err))
}

// reportError must not unwind a flush: the rest of the detached queue would
// stay marked pending and never be scheduled again.
func (s *System) reportError(from *Effect, err error) {
	s.effectErrors.Add(1)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("effect error handler panicked",
				slog.Uint64("effect", from.id), slog.Any("err", err), slog.Any("panic", r))
		}
	}()
	s.onError(from, &EffectError{EffectID: from.id, Err: err})
}

func (s *System) nextID() uint64 {
	s.lastID++
	return s.lastID
}

// Current returns the effect that is running, or nil.
func (s *System) Current() *Effect {
	return s.current
}

// enter makes e the current effect and returns a func restoring the
// previous one.
func (s *System) enter(e *Effect) (leave func()) {
	prev := s.current
	s.current = e
	return func() {
		s.current = prev
	}
}

// Untrack runs fn with no current effect: reads inside it create no edges,
// and effects or cleanups created inside it are not owned by the caller.
func (s *System) Untrack(fn func()) {
	defer s.enter(nil)()
	fn()
}

// OnCleanup registers fn with the current effect. It runs, in reverse
// registration order with the effect's children, before the next run and on
// disposal. Without a current effect the call does nothing. If the current
// scope is a replayed effect that was already disposed, fn runs immediately.
func (s *System) OnCleanup(fn func()) {
	owner := s.current
	if owner == nil || fn == nil {
		return
	}
	if owner.state&stateDisposed != 0 {
		fn()
		return
	}
	owner.cleanups = append(owner.cleanups, cleanupEntry{kind: cleanupFunc, fn: fn})
}

// Stats is a snapshot of a System's cumulative counters.
type Stats struct {
	EffectsCreated  uint64
	EffectRuns      uint64
	Flushes         uint64
	EffectErrors    uint64
	EffectsDisposed uint64
	Pending         int64
}

// Stats may be called from any goroutine.
func (s *System) Stats() Stats {
	return Stats{
		EffectsCreated:  s.effectsCreated.Load(),
		EffectRuns:      s.effectRuns.Load(),
		Flushes:         s.flushes.Load(),
		EffectErrors:    s.effectErrors.Load(),
		EffectsDisposed: s.effectsDisposed.Load(),
		Pending:         s.pending.Load(),
	}
}
