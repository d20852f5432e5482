package alloc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestHeapAllocateFreeRoundTrip(t *testing.T) {
	h := NewHeap(0, 1<<20)

	ptr, err := h.Allocate(0, 8, 64)
	require.NoError(t, err)
	require.NotNil(t, ptr)

	header := HeaderOf(ptr)
	require.Equal(t, uint16(0), header.WorkerID)
	require.Equal(t, uint32(64), header.Size)

	require.NoError(t, h.FreeLocal(ptr))

	allocated, freed := h.Stats()
	require.EqualValues(t, 1, allocated)
	require.EqualValues(t, 1, freed)
	require.Equal(t, 1, h.BlockCount(0))
}

func TestHeapCoalescesAdjacentFrees(t *testing.T) {
	h := NewHeap(0, 1<<16)

	var ptrs []unsafe.Pointer
	for i := 0; i < 8; i++ {
		p, err := h.Allocate(0, 8, 128)
		require.NoError(t, err)
		ptrs = append(ptrs, p)
	}
	require.Equal(t, 1, h.BlockCount(0))

	for _, p := range ptrs {
		require.NoError(t, h.FreeLocal(p))
	}

	sizes := h.FreeRegionSizes(0, 0)
	require.Len(t, sizes, 1, "all regions should have coalesced back into one")
}

func TestHeapGrowsOnExhaustion(t *testing.T) {
	h := NewHeap(0, 512)

	_, err := h.Allocate(0, 8, 4096)
	require.NoError(t, err)
	require.GreaterOrEqual(t, h.BlockCount(0), 1)
}

// TestCrossWorkerFreeDrainsIntoOwner models S4: one worker allocates a
// batch of fixed-size blocks, several other workers free disjoint
// subsets of them, and after the owner drains its remote queues every
// allocation is reintegrated.
func TestCrossWorkerFreeDrainsIntoOwner(t *testing.T) {
	const (
		freers     = 4 // workers 1..4 do the freeing; worker 0 only allocates
		total      = 10000
		perFreer   = total / freers
		blockSize  = 4096
	)

	nodes := make([]int, freers+1)
	a := New(nodes, 64<<20)

	ptrs := make([]unsafe.Pointer, 0, total)
	for i := 0; i < total; i++ {
		p, err := a.Allocate(0, 0, 8, blockSize)
		require.NoError(t, err)
		ptrs = append(ptrs, p)
	}
	require.Equal(t, 1, a.Heap(0).BlockCount(0), "should all fit in the initial block")

	for i, p := range ptrs {
		freer := uint16(1 + (i/perFreer)%freers)
		require.NoError(t, a.Free(freer, p))
	}

	a.DrainRemoteFrees(0)

	sizes := a.Heap(0).FreeRegionSizes(0, 0)
	require.Len(t, sizes, 1, "after draining, worker 0's block should be one contiguous free region again")
}

func TestAllocatorOutOfRangeWorker(t *testing.T) {
	a := New([]int{0}, 0)
	_, err := a.Allocate(5, 0, 8, 16)
	require.Error(t, err)
}
