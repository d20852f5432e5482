package alloc

import (
	"fmt"
	"sync"
	"unsafe"
)

// DefaultBlockSize is the minimum size of a freshly mapped block, per
// the engine-wide configuration floor.
const DefaultBlockSize = 128 << 20 // 128 MiB

// Heap is one worker's private collection of NUMA-local blocks. Every
// method on Heap is only ever called by its owning worker, except
// RemoteQueueFor (called by any worker freeing this heap's memory).
// drainRemote and DrainAllRemote consume the headers pushed by those
// other workers' RemoteQueue producers.
type Heap struct {
	workerID     uint16
	blockSize    int
	blocksByNode map[int][]*Block

	// remoteMu guards remoteByNode itself (the map's key set), not the
	// RemoteQueues it holds: RemoteQueueFor is called by arbitrary
	// freeing workers (not just the owner), and may race the owner's own
	// drainRemote ranging over the same map, so both sides take this
	// lock around the map operation. Once a *RemoteQueue is fetched, all
	// further access to it is already lock-free (see remote.go).
	remoteMu     sync.Mutex
	remoteByNode map[int]*RemoteQueue // keyed by the freeing worker's NUMA node

	nextBlockID   uint32
	allocCount    int64
	freeCount     int64
	degradedNodes map[int]string
}

// NewHeap creates an empty heap for workerID. blockSize overrides
// DefaultBlockSize when non-zero (tests use small blocks to exercise
// the split/coalesce/refund paths without mapping hundreds of
// megabytes).
func NewHeap(workerID uint16, blockSize int) *Heap {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Heap{
		workerID:      workerID,
		blockSize:     blockSize,
		blocksByNode:  make(map[int][]*Block),
		remoteByNode:  make(map[int]*RemoteQueue),
		degradedNodes: make(map[int]string),
	}
}

// RemoteQueueFor returns (creating if needed) the queue other workers
// push into when they free memory owned by this heap and they
// themselves are homed on sourceNode. Called by any freeing worker, so
// the lookup-or-create against remoteByNode is guarded by remoteMu.
func (h *Heap) RemoteQueueFor(sourceNode int) *RemoteQueue {
	h.remoteMu.Lock()
	defer h.remoteMu.Unlock()
	q, ok := h.remoteByNode[sourceNode]
	if !ok {
		q = &RemoteQueue{}
		h.remoteByNode[sourceNode] = q
	}
	return q
}

// Allocate serves a request of the given alignment and size on NUMA
// node numaNode, following the scan-then-drain-then-grow algorithm:
// existing blocks are tried first (most recently added first), then
// every pending remote free (from all queues, see drainRemote) is
// reintegrated and the scan is retried once, and only then is a new
// block mapped.
func (h *Heap) Allocate(numaNode int, alignment uintptr, size uintptr) (unsafe.Pointer, error) {
	if p := h.tryAllocFromBlocks(numaNode, alignment, size); p != nil {
		return p, nil
	}

	h.drainRemote(numaNode)

	if p := h.tryAllocFromBlocks(numaNode, alignment, size); p != nil {
		return p, nil
	}

	if err := h.growBlock(numaNode, size); err != nil {
		return nil, err
	}

	if p := h.tryAllocFromBlocks(numaNode, alignment, size); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("allocator: node %d: no block could satisfy %d bytes even after growth", numaNode, size)
}

func (h *Heap) tryAllocFromBlocks(numaNode int, alignment, size uintptr) unsafe.Pointer {
	blocks := h.blocksByNode[numaNode]
	for i := len(blocks) - 1; i >= 0; i-- {
		b := blocks[i]
		index, pad, ok := b.findFit(alignment, size)
		if !ok {
			continue
		}
		total := HeaderSize + pad + size
		recorded := size
		if rem := b.free[index].size - total; rem <= splitThreshold {
			// take absorbs this remainder into the allocation; record it so
			// freeing the allocation returns it too.
			recorded += rem
		}
		headerPtr := b.take(index, pad, total)
		header := (*Header)(headerPtr)
		*header = Header{
			Size:           uint32(recorded),
			AlignPadBefore: uint16(pad),
			WorkerID:       h.workerID,
			NUMANode:       uint16(numaNode),
			BlockID:        b.ID,
		}
		h.allocCount++
		return userAddr(headerPtr, 0)
	}
	return nil
}

func nextMultiple(n, of uintptr) uintptr {
	if n%of == 0 {
		return n
	}
	return (n/of + 1) * of
}

func (h *Heap) growBlock(numaNode int, size uintptr) error {
	want := nextMultiple(size+uintptr(HeaderSize), 64)
	blockBytes := h.blockSize
	if int(want) > blockBytes {
		blockBytes = int(want)
	}

	b, why, err := newBlock(h.nextBlockID, numaNode, blockBytes)
	if err != nil {
		return fmt.Errorf("allocator: growing node %d by %d bytes: %w", numaNode, blockBytes, err)
	}
	h.nextBlockID++
	if !b.Bound() {
		h.degradedNodes[numaNode] = why
	}
	h.blocksByNode[numaNode] = append(h.blocksByNode[numaNode], b)
	return nil
}

// DegradedNodes returns, for each NUMA node where a block failed to
// bind to its requested node, the reason reported by the OS. Callers
// are expected to surface this, not swallow it.
func (h *Heap) DegradedNodes() map[int]string { return h.degradedNodes }

// FreeLocal returns an allocation owned by this heap to its block's
// free-region set, coalescing with neighbors.
func (h *Heap) FreeLocal(ptr unsafe.Pointer) error {
	header := headerAt(ptr)
	return h.freeHeader(header)
}

func (h *Heap) freeHeader(header *Header) error {
	blocks := h.blocksByNode[int(header.NUMANode)]
	var block *Block
	for _, b := range blocks {
		if b.ID == header.BlockID {
			block = b
			break
		}
	}
	if block == nil {
		return fmt.Errorf("allocator: free: block %d not found on worker %d node %d", header.BlockID, h.workerID, header.NUMANode)
	}

	headerAddr := uintptr(unsafe.Pointer(header))
	regionStart := headerAddr - uintptr(header.AlignPadBefore)
	totalSize := uintptr(header.AlignPadBefore) + HeaderSize + uintptr(header.Size)
	block.insertFree(block.offsetOf(regionStart), totalSize)
	h.freeCount++
	return nil
}

// drainRemote reintegrates every header pending on the remote queues
// into its own block's free-region set. numaNode identifies which
// queue triggered the drain (the node the current allocation request
// is for); all queues are drained regardless, since a header may
// belong to a different node than the one that happened to trigger it.
// The map's key set is snapshotted under remoteMu since RemoteQueueFor
// may be extending it concurrently from another worker; each queue's
// own DrainAll is then called outside the lock, since it's already
// safe for a single consumer racing concurrent producers.
func (h *Heap) drainRemote(numaNode int) {
	h.remoteMu.Lock()
	queues := make([]*RemoteQueue, 0, len(h.remoteByNode))
	for _, q := range h.remoteByNode {
		queues = append(queues, q)
	}
	h.remoteMu.Unlock()

	for _, q := range queues {
		for _, header := range q.DrainAll() {
			_ = h.freeHeader(header)
		}
	}
}

// DrainAllRemote reintegrates every pending remote free across all
// NUMA nodes this heap owns blocks on. Intended for the periodic
// maintenance pass, not the allocation hot path.
func (h *Heap) DrainAllRemote() {
	for node := range h.blocksByNode {
		h.drainRemote(node)
	}
}

// Stats reports coarse allocation counters for introspection/metrics.
func (h *Heap) Stats() (allocated, freed int64) { return h.allocCount, h.freeCount }

// BlockCount returns how many blocks this heap has mapped for numaNode,
// for tests asserting on growth/coalescing behavior.
func (h *Heap) BlockCount(numaNode int) int { return len(h.blocksByNode[numaNode]) }

// FreeRegionSizes returns the sizes of the free regions of the single
// block at blockIndex on numaNode, in address order — used by tests
// that assert a heap returned to its initial single-region layout.
func (h *Heap) FreeRegionSizes(numaNode, blockIndex int) []uintptr {
	blocks := h.blocksByNode[numaNode]
	if blockIndex < 0 || blockIndex >= len(blocks) {
		return nil
	}
	sizes := make([]uintptr, len(blocks[blockIndex].free))
	for i, r := range blocks[blockIndex].free {
		sizes[i] = r.size
	}
	return sizes
}

// Release unmaps every block this heap owns. Only valid once no
// resource references any allocation served by this heap.
func (h *Heap) Release() error {
	var firstErr error
	for _, blocks := range h.blocksByNode {
		for _, b := range blocks {
			if err := b.release(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	h.blocksByNode = make(map[int][]*Block)
	return firstErr
}
