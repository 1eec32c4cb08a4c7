package reactive_test

import (
	"testing"

	"github.com/delaneyj/pumpkin/reactive"
	"github.com/stretchr/testify/assert"
)

func TestSingleSignal(t *testing.T) {
	sys, mt := newTestSystem(t)
	counter := reactive.NewSignal(sys, 0)

	events := []int{}
	effect(sys, func() {
		events = append(events, counter.Get())
	})

	assert.Equal(t, []int{0}, events)
	mt.runAll(t)
	assert.Equal(t, []int{0}, events)

	counter.Set(1)
	assert.Equal(t, []int{0}, events)
	mt.runAll(t)
	assert.Equal(t, []int{0, 1}, events)

	counter.Set(2)
	assert.Equal(t, []int{0, 1}, events)
	mt.runAll(t)
	assert.Equal(t, []int{0, 1, 2}, events)
}

func TestRepeatedSetCoalesces(t *testing.T) {
	sys, mt := newTestSystem(t)
	counter := reactive.NewSignal(sys, 0)

	events := []int{}
	effect(sys, func() {
		events = append(events, counter.Get())
	})

	counter.Set(1)
	counter.Set(2)
	assert.Equal(t, 1, mt.scheduled, "one flush request per burst")

	mt.runAll(t)
	assert.Equal(t, []int{0, 2}, events)
}

func TestConcurrentSet(t *testing.T) {
	sys, mt := newTestSystem(t)
	letter := reactive.NewSignal(sys, "A")
	number := reactive.NewSignal(sys, "1")

	events := []string{}
	effect(sys, func() {
		events = append(events, letter.Get()+number.Get())
	})

	letter.Set("B")
	number.Set("2")
	mt.runAll(t)
	assert.Equal(t, []string{"A1", "B2"}, events)
}

func TestSameValueStillNotifies(t *testing.T) {
	sys, mt := newTestSystem(t)
	s := reactive.NewSignal(sys, 7)

	runs := 0
	effect(sys, func() {
		s.Get()
		runs++
	})

	s.Set(7)
	mt.runAll(t)
	assert.Equal(t, 2, runs)
}

func TestUpdateMatchesSet(t *testing.T) {
	double := func(v int) int { return v * 2 }

	sys, mt := newTestSystem(t)
	a := reactive.NewSignal(sys, 21)
	b := reactive.NewSignal(sys, 21)

	var seenA, seenB []int
	effect(sys, func() { seenA = append(seenA, a.Get()) })
	effect(sys, func() { seenB = append(seenB, b.Get()) })

	a.Update(double)
	b.Set(double(b.Peek()))
	mt.runAll(t)

	assert.Equal(t, a.Peek(), b.Peek())
	assert.Equal(t, 42, a.Peek())
	assert.Equal(t, seenA, seenB)
}

func TestGetOutsideEffectDoesNotTrack(t *testing.T) {
	sys, _ := newTestSystem(t)
	s := reactive.NewSignal(sys, "x")
	assert.Equal(t, "x", s.Get())
	assert.Equal(t, 0, s.Observers())
}

func TestPeekAndUntrackDoNotTrack(t *testing.T) {
	sys, mt := newTestSystem(t)
	peeked := reactive.NewSignal(sys, 1)
	untracked := reactive.NewSignal(sys, 1)

	runs := 0
	effect(sys, func() {
		runs++
		peeked.Peek()
		sys.Untrack(func() {
			untracked.Get()
		})
	})

	assert.Equal(t, 0, peeked.Observers())
	assert.Equal(t, 0, untracked.Observers())

	peeked.Set(2)
	untracked.Set(2)
	mt.runAll(t)
	assert.Equal(t, 1, runs)
}

func TestReadingTwiceRegistersOnce(t *testing.T) {
	sys, mt := newTestSystem(t)
	s := reactive.NewSignal(sys, 0)

	runs := 0
	effect(sys, func() {
		runs++
		s.Get()
		s.Get()
	})
	assert.Equal(t, 1, s.Observers())

	s.Set(1)
	assert.Equal(t, 0, s.Observers(), "write clears the observer set")
	mt.runAll(t)
	assert.Equal(t, 2, runs)
	assert.Equal(t, 1, s.Observers())
}

func TestManyObservers(t *testing.T) {
	sys, mt := newTestSystem(t)
	s := reactive.NewSignal(sys, 0)

	const n = 100
	sum := 0
	for i := 0; i < n; i++ {
		effect(sys, func() {
			sum += s.Get()
		})
	}
	assert.Equal(t, n, s.Observers())

	s.Set(1)
	mt.runAll(t)
	assert.Equal(t, n, sum)
	assert.Equal(t, n, s.Observers())
}
