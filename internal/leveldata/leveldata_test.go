package leveldata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOffsetBijection(t *testing.T) {
	dims := Dimensions{X: 4, Y: 3, Z: 5}
	l := New(dims)

	seen := make(map[int]bool)
	for y := uint16(0); y < dims.Y; y++ {
		for z := uint16(0); z < dims.Z; z++ {
			for x := uint16(0); x < dims.X; x++ {
				off := l.Offset(x, y, z)
				require.False(t, seen[off], "offset %d reused for (%d,%d,%d)", off, x, y, z)
				require.GreaterOrEqual(t, off, 0)
				require.Less(t, off, dims.Volume())
				seen[off] = true
			}
		}
	}
	require.Len(t, seen, dims.Volume())
}

func TestSetGetRoundTrip(t *testing.T) {
	l := New(Dimensions{X: 2, Y: 2, Z: 2})
	l.Set(1, 1, 1, 42)
	v, ok := l.Get(1, 1, 1)
	require.True(t, ok)
	require.EqualValues(t, 42, v)
}

func TestOutOfBoundsIsSilent(t *testing.T) {
	l := New(Dimensions{X: 2, Y: 2, Z: 2})
	require.NotPanics(t, func() {
		l.Set(99, 0, 0, 1)
	})
	_, ok := l.Get(99, 0, 0)
	require.False(t, ok)
}

func TestFromRawRejectsMismatch(t *testing.T) {
	_, err := FromRaw(make([]byte, 5), Dimensions{X: 2, Y: 2, Z: 2})
	require.Error(t, err)
}
