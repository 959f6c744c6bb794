package pagemap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPageAllocFreeRoundTrip(t *testing.T) {
	pm := New(4)
	require.NoError(t, pm.AddBank(0, 16, 16, 12))

	addr, err := pm.PageAlloc()
	require.NoError(t, err)

	require.NoError(t, pm.PageFree(addr))
}

func TestPageAllocFailsWhenNoNodesRegistered(t *testing.T) {
	pm := New(4)
	_, err := pm.PageAlloc()
	require.Error(t, err)
}

func TestReserveChunkPicksFirstSatisfyingNode(t *testing.T) {
	pm := New(1)
	require.NoError(t, pm.AddBank(0, 16, 16, 12))

	addr, err := pm.ReserveChunk(4 * PageSize)
	require.NoError(t, err)
	require.Equal(t, uintptr(0), addr)
}

func TestPageFreeOfUnownedAddressErrors(t *testing.T) {
	pm := New(4)
	require.NoError(t, pm.AddBank(0, 16, 16, 12))

	err := pm.PageFree(uintptr(1) << 40)
	require.Error(t, err)
}

func TestNodeRotatesToBackWhenLow(t *testing.T) {
	pm := New(2) // move threshold of 2 pages

	require.NoError(t, pm.AddBank(0, 2, 13, 12))  // 2 pages only
	require.NoError(t, pm.AddBank(16, 32, 16, 12)) // plenty of pages

	// drain the first bank below the threshold
	_, err := pm.PageAlloc()
	require.NoError(t, err)

	require.Equal(t, 2, pm.NodeCount())

	// the drained bank now sits behind the second one, so the next page
	// comes from the second bank's base
	addr, err := pm.PageAlloc()
	require.NoError(t, err)
	require.Equal(t, uintptr(16*PageSize), addr)
}
