package models

import "fmt"

// Handle is a generation-checked reference into an Arena. The zero Handle is
// never valid, so it doubles as "none".
type Handle struct {
	Index      uint32
	Generation uint32
}

// IsZero reports whether h is the empty handle.
func (h Handle) IsZero() bool { return h.Generation == 0 }

func (h Handle) String() string {
	if h.IsZero() {
		return "none"
	}
	return fmt.Sprintf("%d#%d", h.Index, h.Generation)
}

type slot[T any] struct {
	value      T
	generation uint32
	live       bool
}

// Arena stores values addressed by Handle. Removing a value bumps its slot
// generation so outstanding handles to it stop resolving. Freed slots are
// reused. Arena is not safe for concurrent use; it belongs to the tick goroutine.
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
	count int
}

// NewArena creates an empty arena.
func NewArena[T any]() *Arena[T] {
	return &Arena[T]{}
}

// Insert stores value and returns its handle.
func (a *Arena[T]) Insert(value T) Handle {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, slot[T]{})
	}
	s := &a.slots[idx]
	s.generation++
	s.value = value
	s.live = true
	a.count++
	return Handle{Index: idx, Generation: s.generation}
}

// Get resolves h. The boolean is false for stale or unknown handles.
func (a *Arena[T]) Get(h Handle) (T, bool) {
	if !a.Valid(h) {
		var zero T
		return zero, false
	}
	return a.slots[h.Index].value, true
}

// Valid reports whether h still refers to a live value.
func (a *Arena[T]) Valid(h Handle) bool {
	if h.IsZero() || int(h.Index) >= len(a.slots) {
		return false
	}
	s := a.slots[h.Index]
	return s.live && s.generation == h.Generation
}

// Remove releases the slot behind h. Removing a stale handle returns false.
func (a *Arena[T]) Remove(h Handle) bool {
	if !a.Valid(h) {
		return false
	}
	s := &a.slots[h.Index]
	var zero T
	s.value = zero
	s.live = false
	a.free = append(a.free, h.Index)
	a.count--
	return true
}

// Len returns the number of live values.
func (a *Arena[T]) Len() int { return a.count }

// Each visits live values in slot order until fn returns false.
func (a *Arena[T]) Each(fn func(Handle, T) bool) {
	for i := range a.slots {
		s := a.slots[i]
		if !s.live {
			continue
		}
		if !fn(Handle{Index: uint32(i), Generation: s.generation}, s.value) {
			return
		}
	}
}
