// Package reactive is a small fine-grained reactivity engine: signals hold
// values, effects re-run when the signals they read change.
//
//	sys := reactive.New()
//	count := reactive.NewSignal(sys, 0)
//	reactive.NewEffect(sys, func() error {
//	    fmt.Println("count is", count.Get())
//	    return nil
//	})
//	count.Set(1)
//	count.Set(2)
//	sys.Flush() // prints "count is 2" once
//
// Dependencies are discovered on every run: an effect observes exactly the
// signals it read the last time it ran. Writes never run effects
// synchronously. The first write of a burst asks the Scheduler for a flush,
// later writes only join the queue, and each pending effect runs once per
// flush with the latest values.
//
// Effects created inside a running effect are owned by it and disposed,
// together with callbacks registered through OnCleanup, newest first,
// before the owner runs again or is disposed.
//
// A System and everything created from it must be used from one goroutine.
// The eventloop package provides a host loop whose microtask queue can serve
// as the Scheduler.
package reactive
