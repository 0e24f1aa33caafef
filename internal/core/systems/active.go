package systems

// ActiveSet is the explicit set of components that want per-tick work. Owners
// write their enablement into it; tick loops poll it instead of visiting every
// component. Iteration follows insertion order.
type ActiveSet[K comparable] struct {
	index map[K]int
	keys  []K
}

// NewActiveSet creates an empty set.
func NewActiveSet[K comparable]() *ActiveSet[K] {
	return &ActiveSet[K]{index: make(map[K]int)}
}

// SetActive adds or removes k.
func (s *ActiveSet[K]) SetActive(k K, active bool) {
	i, ok := s.index[k]
	switch {
	case active && !ok:
		s.index[k] = len(s.keys)
		s.keys = append(s.keys, k)
	case !active && ok:
		copy(s.keys[i:], s.keys[i+1:])
		s.keys = s.keys[:len(s.keys)-1]
		delete(s.index, k)
		for j := i; j < len(s.keys); j++ {
			s.index[s.keys[j]] = j
		}
	}
}

// Contains reports whether k is active.
func (s *ActiveSet[K]) Contains(k K) bool {
	_, ok := s.index[k]
	return ok
}

// Len returns the number of active keys.
func (s *ActiveSet[K]) Len() int { return len(s.keys) }

// Snapshot copies the active keys so callers may mutate the set while iterating.
func (s *ActiveSet[K]) Snapshot() []K {
	out := make([]K, len(s.keys))
	copy(out, s.keys)
	return out
}
