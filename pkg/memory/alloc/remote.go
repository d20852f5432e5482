package alloc

import (
	"sync/atomic"
	"unsafe"
)

// RemoteQueue is a lock-free multi-producer, single-consumer stack of
// freed allocation headers, keyed on the owning heap by the freeing
// worker's NUMA node. Push never allocates: it reuses the Next field
// already reserved in Header. Draining is LIFO, which is immaterial for
// reintegration — the allocator only cares that every pushed header is
// eventually observed exactly once.
type RemoteQueue struct {
	head atomic.Pointer[Header]
}

// Push parks h on the queue for later reintegration by the owning
// worker.
func (q *RemoteQueue) Push(h *Header) {
	for {
		old := q.head.Load()
		h.Next = uintptr(unsafe.Pointer(old))
		if q.head.CompareAndSwap(old, h) {
			return
		}
	}
}

// DrainAll atomically detaches every pending header and returns them in
// LIFO order. Safe to call only from the owning worker (single
// consumer); concurrent producers may keep pushing during a drain and
// will simply be picked up by the next drain.
func (q *RemoteQueue) DrainAll() []*Header {
	old := q.head.Swap(nil)
	var out []*Header
	for old != nil {
		out = append(out, old)
		old = (*Header)(unsafe.Pointer(old.Next))
	}
	return out
}
