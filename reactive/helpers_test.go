package reactive_test

import (
	"testing"

	"github.com/delaneyj/pumpkin/reactive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// microtasks stands in for a host's microtask queue.
type microtasks struct {
	tasks     []func()
	scheduled int
}

func (m *microtasks) Schedule(task func()) {
	m.scheduled++
	m.tasks = append(m.tasks, task)
}

// tick runs the tasks queued so far; tasks they queue wait for the next tick.
func (m *microtasks) tick() {
	tasks := m.tasks
	m.tasks = nil
	for _, task := range tasks {
		task()
	}
}

func (m *microtasks) runAll(t *testing.T) {
	t.Helper()
	for i := 0; len(m.tasks) > 0; i++ {
		require.Less(t, i, 100, "microtasks did not settle")
		m.tick()
	}
}

func newTestSystem(t *testing.T, opts ...reactive.Option) (*reactive.System, *microtasks) {
	t.Helper()
	mt := &microtasks{}
	opts = append([]reactive.Option{
		reactive.WithScheduler(mt),
		reactive.WithErrorHandler(func(from *reactive.Effect, err error) {
			assert.FailNow(t, err.Error())
		}),
	}, opts...)
	return reactive.New(opts...), mt
}

func mustEffect(t *testing.T, sys *reactive.System, fn func() error) *reactive.Effect {
	t.Helper()
	e, err := reactive.NewEffect(sys, fn)
	require.NoError(t, err)
	return e
}

// effect panics on a first-run error. It is used inside effect bodies, where
// require cannot stop the test.
func effect(sys *reactive.System, fn func()) *reactive.Effect {
	e, err := reactive.NewEffect(sys, func() error {
		fn()
		return nil
	})
	if err != nil {
		panic(err)
	}
	return e
}
