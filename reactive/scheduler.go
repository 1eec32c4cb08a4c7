package reactive

import "fmt"

// Scheduler is the host's deferred-execution primitive. Schedule must arrange
// for task to be called once, after the current synchronous work, on the
// goroutine that owns the System.
type Scheduler interface {
	Schedule(task func())
}

// SchedulerFunc adapts a plain function to Scheduler.
type SchedulerFunc func(task func())

func (f SchedulerFunc) Schedule(task func()) {
	f(task)
}

// Manual drops flush requests; the host calls System.Flush or
// System.RunUntilIdle at points of its choosing.
type Manual struct{}

func (Manual) Schedule(func()) {}

// enqueue adds a freshly pending effect. Only the first effect of a
// coalescing window asks the scheduler for a flush.
func (s *System) enqueue(e *Effect) {
	s.pending.Add(1)
	if s.queue != nil {
		s.queue = append(s.queue, e)
		return
	}
	s.queue = make([]*Effect, 1, 8)
	s.queue[0] = e
	s.scheduler.Schedule(s.flushFn)
}

// Pending returns the number of effects waiting to run. Effects disposed
// while pending are not counted.
func (s *System) Pending() int {
	return int(s.pending.Load())
}

// Flush makes one pass over the queued effects in the order they became
// pending. The queue is detached first, so effects made pending by this pass
// wait for the next one. Effects disposed or already re-run since being
// queued are skipped. Failures are reported to the error handler and do not
// stop the pass.
func (s *System) Flush() {
	queue := s.queue
	if queue == nil {
		return
	}
	s.queue = nil
	s.flushes.Add(1)

	for _, e := range queue {
		if e.state&statePending == 0 || e.state&stateDisposed != 0 {
			continue
		}
		if err := e.rerun(); err != nil {
			s.reportError(e, err)
		}
	}
}

// RunUntilIdle flushes until no effect is pending. A write-triggers-write
// cycle never settles; after the configured number of passes it returns
// ErrFlushLimit with the cycle still queued.
func (s *System) RunUntilIdle() error {
	for passes := 0; s.queue != nil; passes++ {
		if passes >= s.flushLimit {
			return fmt.Errorf("%w: %d passes, %d effects pending", ErrFlushLimit, passes, len(s.queue))
		}
		s.Flush()
	}
	return nil
}
