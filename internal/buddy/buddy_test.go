package buddy

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uviespace/flightos-sub001/internal/kerr"
)

func TestAllocZeroSizeReturnsNull(t *testing.T) {
	p, err := New(0, 16, 8)
	require.NoError(t, err)

	addr, err := p.Alloc(0)
	require.NoError(t, err)
	require.Equal(t, uintptr(0), addr)
}

func TestAllocSplitsDownToRequestedOrder(t *testing.T) {
	p, err := New(0, 16, 8)
	require.NoError(t, err)

	addr, err := p.Alloc(1 << 8)
	require.NoError(t, err)

	order, ok := p.AllocatedOrder(addr)
	require.True(t, ok)
	require.Equal(t, uint(8), order)
}

func TestFreeMergesBuddiesBackToSingleBlock(t *testing.T) {
	p, err := New(0, 10, 8)
	require.NoError(t, err)

	a, err := p.Alloc(1 << 8)
	require.NoError(t, err)
	b, err := p.Alloc(1 << 8)
	require.NoError(t, err)
	c, err := p.Alloc(1 << 9)
	require.NoError(t, err)

	require.NoError(t, p.Free(a))
	require.NoError(t, p.Free(b))
	require.NoError(t, p.Free(c))

	// pool should be back to a single free block at maxOrder, matching
	// "returns to all-free" invariant.
	addr, err := p.Alloc(1 << 10)
	require.NoError(t, err)
	order, ok := p.AllocatedOrder(addr)
	require.True(t, ok)
	require.Equal(t, uint(10), order)
}

func TestDoubleFreeIsRejected(t *testing.T) {
	p, err := New(0, 12, 8)
	require.NoError(t, err)

	addr, err := p.Alloc(1 << 8)
	require.NoError(t, err)
	require.NoError(t, p.Free(addr))

	err = p.Free(addr)
	require.Error(t, err)
	kind, ok := kerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, kerr.InvalidArgument, kind)
}

func TestAllocOverCapacityFails(t *testing.T) {
	p, err := New(0, 12, 8)
	require.NoError(t, err)

	_, err = p.Alloc(1 << 13)
	require.Error(t, err)
	kind, ok := kerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, kerr.OutOfMemory, kind)
}

func TestFreeOfForeignAddressIsRejected(t *testing.T) {
	p, err := New(0, 12, 8)
	require.NoError(t, err)

	err = p.Free(uintptr(1 << 20))
	require.Error(t, err)
}
