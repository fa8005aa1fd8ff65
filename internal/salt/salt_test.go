package salt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateLength(t *testing.T) {
	s, err := Generate()
	require.NoError(t, err)
	require.Len(t, s, saltLen)
	for _, c := range s {
		require.Contains(t, base62Alphabet, string(c))
	}
}

func TestRingNeverExceedsCapacity(t *testing.T) {
	r := NewRing(3)
	for i := 0; i < 10; i++ {
		s, err := Generate()
		require.NoError(t, err)
		r.Push(s)
		require.LessOrEqual(t, r.Len(), 3)
	}
	require.Equal(t, 3, r.Len())
}

func TestRingNewestFirstOrder(t *testing.T) {
	r := NewRing(2)
	r.Push("first")
	r.Push("second")
	r.Push("third")

	got := r.Snapshot()
	require.Equal(t, []string{"third", "second"}, got)
}

func TestRingZeroCapacityKeepsNothing(t *testing.T) {
	r := NewRing(0)
	r.Push("whatever")
	require.Equal(t, 0, r.Len())
}
