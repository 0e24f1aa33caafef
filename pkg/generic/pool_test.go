package generic

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlicePool(t *testing.T) {
	p := NewSlicePool[int](4)

	s, release := p.Acquire()
	require.Empty(t, *s)
	*s = append(*s, 1, 2, 3)
	release()

	again, releaseAgain := p.Acquire()
	defer releaseAgain()
	require.Empty(t, *again)
}

func TestResetPool(t *testing.T) {
	resets := 0
	p := NewResetPool(func() []byte { return make([]byte, 0, 8) }, func(b []byte) []byte {
		resets++
		return b[:0]
	})
	b := p.Get()
	p.Put(append(b, 'x'))
	require.Equal(t, 1, resets)
}
