// Package tinyset provides a set optimized for holding zero, one or a handful
// of members. Reactive edges are overwhelmingly singletons, so the common
// case must not allocate.
package tinyset

import (
	"iter"

	mapset "github.com/deckarep/golang-set/v2"
)

// SmallLimit is the largest membership kept in the inline slice tier. Adding
// past it promotes the set to a hash set.
const SmallLimit = 32

type kind uint8

const (
	kindNone kind = iota
	kindSingle
	kindSmall
	kindFull
)

// Set is a tagged union over {none, single, small slice, full set}. The zero
// value is an empty set ready to use. A Set must not be copied after the
// first Add unless the copy replaces the original (see Take).
//
// Iteration follows insertion order for up to SmallLimit members; once
// promoted, order is unspecified.
type Set[T comparable] struct {
	kind kind
	one  T
	few  []T
	many mapset.Set[T]
}

// Len returns the number of members.
func (s *Set[T]) Len() int {
	switch s.kind {
	case kindSingle:
		return 1
	case kindSmall:
		return len(s.few)
	case kindFull:
		return s.many.Cardinality()
	default:
		return 0
	}
}

// Contains reports whether v is a member.
func (s *Set[T]) Contains(v T) bool {
	switch s.kind {
	case kindSingle:
		return s.one == v
	case kindSmall:
		for _, x := range s.few {
			if x == v {
				return true
			}
		}
		return false
	case kindFull:
		return s.many.Contains(v)
	default:
		return false
	}
}

// Add inserts v and reports whether it was not already present.
func (s *Set[T]) Add(v T) bool {
	switch s.kind {
	case kindNone:
		s.kind = kindSingle
		s.one = v
		return true

	case kindSingle:
		if s.one == v {
			return false
		}
		if s.few == nil {
			s.few = make([]T, 0, 4)
		}
		s.few = append(s.few[:0], s.one, v)
		var zero T
		s.one = zero
		s.kind = kindSmall
		return true

	case kindSmall:
		for _, x := range s.few {
			if x == v {
				return false
			}
		}
		if len(s.few) < SmallLimit {
			s.few = append(s.few, v)
			return true
		}
		s.many = mapset.NewThreadUnsafeSet[T](s.few...)
		s.many.Add(v)
		s.few = nil
		s.kind = kindFull
		return true

	default:
		return s.many.Add(v)
	}
}

// Delete removes v. Deleting an absent member is a no-op.
func (s *Set[T]) Delete(v T) {
	switch s.kind {
	case kindSingle:
		if s.one == v {
			var zero T
			s.one = zero
			s.kind = kindNone
		}

	case kindSmall:
		for i, x := range s.few {
			if x != v {
				continue
			}
			copy(s.few[i:], s.few[i+1:])
			var zero T
			s.few[len(s.few)-1] = zero
			s.few = s.few[:len(s.few)-1]
			switch len(s.few) {
			case 0:
				s.kind = kindNone
			case 1:
				s.one = s.few[0]
				s.few[0] = zero
				s.few = s.few[:0]
				s.kind = kindSingle
			}
			return
		}

	case kindFull:
		s.many.Remove(v)
	}
}

// Clear empties the set, keeping the small tier's backing array for reuse.
func (s *Set[T]) Clear() {
	var zero T
	s.one = zero
	clear(s.few)
	s.few = s.few[:0]
	s.many = nil
	s.kind = kindNone
}

// Take moves the members into a new Set and leaves s empty. Callers that
// must iterate while the original keeps changing use it to detach a
// snapshot without copying.
func (s *Set[T]) Take() Set[T] {
	taken := *s
	*s = Set[T]{}
	return taken
}

// All iterates the members. The set must not be modified during iteration.
func (s *Set[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		switch s.kind {
		case kindSingle:
			yield(s.one)
		case kindSmall:
			for _, x := range s.few {
				if !yield(x) {
					return
				}
			}
		case kindFull:
			for _, x := range s.many.ToSlice() {
				if !yield(x) {
					return
				}
			}
		}
	}
}

// Slice returns the members in iteration order.
func (s *Set[T]) Slice() []T {
	out := make([]T, 0, s.Len())
	for v := range s.All() {
		out = append(out, v)
	}
	return out
}
