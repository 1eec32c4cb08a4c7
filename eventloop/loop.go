// Package eventloop runs tasks one at a time on a single goroutine and
// drains a microtask queue after each of them. It is the host for a
// reactive.System: every signal write happens inside a task, and the
// System's flush request lands in the microtask queue, so effects settle
// before the next task starts.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
)

var (
	// ErrLoopAlreadyRunning is returned when Run is called on a loop that is already running.
	ErrLoopAlreadyRunning = errors.New("eventloop: loop is already running")

	// ErrLoopTerminated is returned when operations are attempted on a stopped loop.
	ErrLoopTerminated = errors.New("eventloop: loop has been terminated")

	// ErrReentrantDo is returned when Do is called from a task on the loop,
	// which would wait on itself forever.
	ErrReentrantDo = errors.New("eventloop: cannot call Do from within the loop")

	// ErrTaskPanic wraps a value recovered from a task run through Do.
	ErrTaskPanic = errors.New("eventloop: task panicked")
)

type loopState int32

const (
	stateAwake loopState = iota
	stateRunning
	stateTerminated
)

const defaultMicrotaskBudget = 10_000

// Loop owns a goroutine once Run is called. Submit and Do are safe from any
// goroutine; Schedule may only be called from code running on the loop.
type Loop struct {
	logger          *slog.Logger
	microtaskBudget int

	ingressMu  sync.Mutex
	ingress    []func()
	ingressBuf []func()
	wake       chan struct{}

	// loop goroutine only
	microtasks []func()
	settled    []func()

	state       atomic.Int32
	goroutineID atomic.Uint64

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets where recovered task panics are logged.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithMicrotaskBudget bounds how many microtasks run back to back before the
// loop looks at new tasks and cancellation again. Microtasks that keep
// scheduling each other would otherwise starve everything else.
func WithMicrotaskBudget(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.microtaskBudget = n
		}
	}
}

// New creates a loop. Nothing runs until Run is called.
func New(opts ...Option) *Loop {
	l := &Loop{
		microtaskBudget: defaultMicrotaskBudget,
		wake:            make(chan struct{}, 1),
		microtasks:      make([]func(), 0, 64),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Run processes tasks until ctx is done or Stop is called. It returns
// ctx.Err() on cancellation and nil after Stop. Tasks still queued when the
// loop ends are dropped.
func (l *Loop) Run(ctx context.Context) error {
	if !l.state.CompareAndSwap(int32(stateAwake), int32(stateRunning)) {
		if loopState(l.state.Load()) == stateTerminated {
			return ErrLoopTerminated
		}
		return ErrLoopAlreadyRunning
	}
	l.goroutineID.Store(goroutineID())
	defer func() {
		l.goroutineID.Store(0)
		l.state.Store(int32(stateTerminated))
		close(l.done)
	}()

	for {
		l.drainMicrotasks()

		tasks := l.takeIngress()
		if len(tasks) == 0 && len(l.microtasks) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-l.stop:
				return nil
			case <-l.wake:
				continue
			}
		}

		for _, task := range tasks {
			l.safeCall(task)
			l.drainMicrotasks()
			l.runSettled()
		}
		clear(tasks)
		l.ingressBuf = tasks[:0]

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stop:
			return nil
		default:
		}
	}
}

// Schedule queues a microtask. It satisfies reactive.Scheduler.
func (l *Loop) Schedule(task func()) {
	l.microtasks = append(l.microtasks, task)
}

// Submit queues a task from any goroutine.
func (l *Loop) Submit(task func()) error {
	if loopState(l.state.Load()) == stateTerminated {
		return ErrLoopTerminated
	}

	l.ingressMu.Lock()
	l.ingress = append(l.ingress, task)
	l.ingressMu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Do runs fn as a task and waits for it and the microtasks it caused to
// finish. A panic in fn is returned as an error wrapping ErrTaskPanic.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	if id := l.goroutineID.Load(); id != 0 && id == goroutineID() {
		return ErrReentrantDo
	}

	result := make(chan error, 1)
	task := func() {
		err := catch(fn)
		l.settled = append(l.settled, func() { result <- err })
	}
	if err := l.Submit(task); err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		select {
		case err := <-result:
			return err
		default:
			return ErrLoopTerminated
		}
	}
}

// Stop ends Run after the current task. It is safe to call more than once
// and before Run.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
		if l.state.CompareAndSwap(int32(stateAwake), int32(stateTerminated)) {
			close(l.done)
		}
	})
}

// Done is closed once the loop has terminated.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) takeIngress() []func() {
	l.ingressMu.Lock()
	defer l.ingressMu.Unlock()
	tasks := l.ingress
	l.ingress = l.ingressBuf
	l.ingressBuf = nil
	return tasks
}

// drainMicrotasks runs detached batches until the queue is empty or the
// budget is spent. Microtasks queued by a batch run in the next batch.
func (l *Loop) drainMicrotasks() {
	ran := 0
	for len(l.microtasks) > 0 && ran < l.microtaskBudget {
		batch := l.microtasks
		l.microtasks = nil
		for _, task := range batch {
			l.safeCall(task)
		}
		ran += len(batch)
		if l.microtasks == nil {
			clear(batch)
			l.microtasks = batch[:0]
		}
	}
}

// runSettled reports Do results once the microtasks their tasks caused have
// drained.
func (l *Loop) runSettled() {
	if len(l.settled) == 0 {
		return
	}
	for _, fn := range l.settled {
		fn()
	}
	clear(l.settled)
	l.settled = l.settled[:0]
}

func (l *Loop) safeCall(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("eventloop task panicked", slog.Any("panic", r))
		}
	}()
	task()
}

func catch(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()
	return fn()
}

// goroutineID parses the current goroutine's id out of its stack header,
// which starts with "goroutine <id> ".
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)

	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] == ' ' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
