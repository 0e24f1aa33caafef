package generic

import "sync"

// Pool is a typed sync.Pool. The optional reset hook runs on Put so pooled
// values come back clean.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T) T
}

func NewPool[T any](generate func() T) *Pool[T] {
	return &Pool[T]{
		pool: sync.Pool{
			New: func() any {
				return generate()
			},
		},
	}
}

// NewResetPool creates a pool that passes values through reset before reuse.
func NewResetPool[T any](generate func() T, reset func(T) T) *Pool[T] {
	p := NewPool(generate)
	p.reset = reset
	return p
}

func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

func (p *Pool[T]) Put(value T) {
	if p.reset != nil {
		value = p.reset(value)
	}
	p.pool.Put(value)
}

// SlicePool pools slices by pointer to avoid an allocation on every Put.
type SlicePool[T any] struct {
	pool *Pool[*[]T]
}

// NewSlicePool creates a pool of slices with the given starting capacity.
func NewSlicePool[T any](capacity int) *SlicePool[T] {
	return &SlicePool[T]{pool: NewResetPool(
		func() *[]T {
			s := make([]T, 0, capacity)
			return &s
		},
		func(s *[]T) *[]T {
			clear(*s)
			*s = (*s)[:0]
			return s
		},
	)}
}

// Acquire returns an empty slice and its release function.
func (p *SlicePool[T]) Acquire() (*[]T, func()) {
	s := p.pool.Get()
	return s, func() { p.pool.Put(s) }
}
