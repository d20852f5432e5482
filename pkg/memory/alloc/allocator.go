package alloc

import (
	"fmt"
	"unsafe"
)

// Allocator fronts one Heap per worker and routes frees to the correct
// owning heap, queuing cross-worker frees instead of touching another
// worker's blocks directly.
type Allocator struct {
	heaps      []*Heap
	workerNode []int // workerNode[w] is the NUMA node worker w is homed on
}

// New creates an Allocator with one heap per worker. workerNode must
// have one entry per worker, giving the NUMA node that worker's
// default allocations (and its contribution to remote-free locality)
// are associated with. blockSize overrides DefaultBlockSize when
// non-zero.
func New(workerNode []int, blockSize int) *Allocator {
	a := &Allocator{
		heaps:      make([]*Heap, len(workerNode)),
		workerNode: append([]int(nil), workerNode...),
	}
	for w := range workerNode {
		a.heaps[w] = NewHeap(uint16(w), blockSize)
	}
	return a
}

// WorkerCount reports how many per-worker heaps this allocator manages.
func (a *Allocator) WorkerCount() int { return len(a.heaps) }

// Heap exposes the heap owned by workerID, for maintenance passes
// (periodic remote-free draining) driven by that worker's own
// goroutine.
func (a *Allocator) Heap(workerID uint16) *Heap {
	if int(workerID) >= len(a.heaps) {
		return nil
	}
	return a.heaps[workerID]
}

// Allocate serves a request issued by callingWorker for memory on
// numaNode. The allocation is always served from callingWorker's own
// heap — a worker only ever allocates into itself; resources destined
// for a different home worker are allocated here and then handed off
// by the resource builder via a tagged pointer naming that worker.
func (a *Allocator) Allocate(callingWorker uint16, numaNode int, alignment, size uintptr) (unsafe.Pointer, error) {
	if int(callingWorker) >= len(a.heaps) {
		return nil, fmt.Errorf("allocator: worker %d out of range (%d workers)", callingWorker, len(a.heaps))
	}
	return a.heaps[callingWorker].Allocate(numaNode, alignment, size)
}

// Free returns ptr to its owning heap. When callingWorker is not the
// owner, the allocation is parked on the owner's remote-free queue for
// callingWorker's NUMA node instead of being mutated in place.
func (a *Allocator) Free(callingWorker uint16, ptr unsafe.Pointer) error {
	if ptr == nil {
		return nil
	}
	header := HeaderOf(ptr)
	owner := header.WorkerID

	if int(owner) >= len(a.heaps) {
		return fmt.Errorf("allocator: free: owning worker %d out of range", owner)
	}

	if owner == callingWorker {
		return a.heaps[owner].FreeLocal(ptr)
	}

	sourceNode := 0
	if int(callingWorker) < len(a.workerNode) {
		sourceNode = a.workerNode[callingWorker]
	}
	a.heaps[owner].RemoteQueueFor(sourceNode).Push(header)
	return nil
}

// DrainRemoteFrees reintegrates every pending cross-worker free for
// workerID's own heap. Workers call this periodically (see the task
// runtime's maintenance pass) rather than on every allocation, so a
// burst of remote frees from many workers doesn't stall the owner.
func (a *Allocator) DrainRemoteFrees(workerID uint16) {
	if h := a.Heap(workerID); h != nil {
		h.DrainAllRemote()
	}
}

// Release unmaps every block owned by every heap. Only safe once the
// runtime has stopped and no resource references any served memory.
func (a *Allocator) Release() error {
	var firstErr error
	for _, h := range a.heaps {
		if err := h.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
