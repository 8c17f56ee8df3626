package arena

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocWithinBlock(t *testing.T) {
	a := New()
	b1 := a.Alloc(16)
	b2 := a.Alloc(16)
	require.Len(t, b1, 16)
	require.Len(t, b2, 16)

	// Writes to one allocation must not bleed into the other.
	for i := range b1 {
		b1[i] = 0xaa
	}
	for i := range b2 {
		b2[i] = 0xbb
	}
	for _, c := range b1 {
		require.Equal(t, byte(0xaa), c)
	}
	require.Equal(t, int64(BlockSize), a.MemoryUsage())
}

func TestAllocCrossesBlockBoundary(t *testing.T) {
	a := New()
	// Fill the first block with small allocations, leaving 10 bytes free.
	for i := 0; i < 4; i++ {
		a.Alloc(1000)
	}
	a.Alloc(BlockSize - 4000 - 10)
	b := a.Alloc(20)
	require.Len(t, b, 20)
	// The second allocation did not fit in the remaining 10 bytes of the
	// first block, so a new block was carved.
	require.Equal(t, int64(2*BlockSize), a.MemoryUsage())
}

func TestAllocLargeFallsBackToOwnBlock(t *testing.T) {
	a := New()
	big := a.Alloc(BlockSize)
	require.Len(t, big, BlockSize)
	require.Equal(t, int64(BlockSize), a.MemoryUsage())

	small := a.Alloc(8)
	require.Len(t, small, 8)
	require.Equal(t, int64(BlockSize+BlockSize), a.MemoryUsage())
}

func TestAllocAlignedRespectsAlignment(t *testing.T) {
	a := New()
	a.Alloc(3)
	b := a.AllocAligned(8, 8)
	require.Len(t, b, 8)
	padded := a.curOffset - 8
	require.Equal(t, 0, padded%8)
}
