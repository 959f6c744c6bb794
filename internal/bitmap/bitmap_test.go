package bitmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetClearTest(t *testing.T) {
	b := New(100)
	require.False(t, b.Test(42))

	b.Set(42)
	require.True(t, b.Test(42))

	b.Clear(42)
	require.False(t, b.Test(42))
}

func TestPopcountAcrossWordBoundary(t *testing.T) {
	b := New(128)
	for _, i := range []int{0, 1, 63, 64, 65, 127} {
		b.Set(i)
	}
	require.Equal(t, 6, b.Popcount())
}

func TestLenReportsRequestedBitCount(t *testing.T) {
	b := New(17)
	require.Equal(t, 17, b.Len())
}
