package kheap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newHeap() *Heap {
	return New(NewBreak(0x1000))
}

func TestAllocGrowsBreakAndReportsSize(t *testing.T) {
	h := newHeap()

	hnd, err := h.Alloc(100)
	require.NoError(t, err)
	require.NotZero(t, hnd)

	size, err := h.Size(hnd)
	require.NoError(t, err)
	require.Equal(t, 104, size) // word-aligned up from 100
}

func TestFreeOfTailShrinksBreak(t *testing.T) {
	h := newHeap()

	before := h.BreakSpan()
	hnd, err := h.Alloc(64)
	require.NoError(t, err)
	require.Greater(t, h.BreakSpan(), before)

	require.NoError(t, h.Free(hnd))
	require.Equal(t, before, h.BreakSpan())
}

func TestDoubleFreeIsRejected(t *testing.T) {
	h := newHeap()
	hnd, err := h.Alloc(32)
	require.NoError(t, err)

	require.NoError(t, h.Free(hnd))
	require.Error(t, h.Free(hnd))
}

func TestFreeListReusesFreedChunk(t *testing.T) {
	h := newHeap()

	a, err := h.Alloc(256)
	require.NoError(t, err)
	b, err := h.Alloc(64)
	require.NoError(t, err)
	require.NoError(t, h.Free(a))

	spanBeforeReuse := h.BreakSpan()
	c, err := h.Alloc(64)
	require.NoError(t, err)
	require.Equal(t, spanBeforeReuse, h.BreakSpan(), "reusing a's freed chunk should not grow the break")

	require.NoError(t, h.Free(b))
	require.NoError(t, h.Free(c))
}

func TestReallocPreservesMinOfOldAndNewSize(t *testing.T) {
	h := newHeap()

	hnd, err := h.Alloc(128)
	require.NoError(t, err)

	newHnd, copyLen, err := h.Realloc(hnd, 32)
	require.NoError(t, err)
	require.Equal(t, 32, copyLen)
	require.NotZero(t, newHnd)
}

func TestLiveBytesTracksOnlyAllocatedChunks(t *testing.T) {
	h := newHeap()

	a, err := h.Alloc(100)
	require.NoError(t, err)
	_, err = h.Alloc(50)
	require.NoError(t, err)

	liveBefore := h.LiveBytes()
	require.NoError(t, h.Free(a))
	require.Less(t, h.LiveBytes(), liveBefore)
}

func TestCallocRejectsNonPositiveArgs(t *testing.T) {
	h := newHeap()
	_, err := h.Calloc(0, 10)
	require.Error(t, err)
}
