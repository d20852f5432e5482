// Package alloc implements the worker-local dynamic allocator: every
// worker owns a private heap of large NUMA-local blocks, free regions
// within a block are tracked in address order for O(log n) coalescing,
// and a pointer freed by a worker other than its owner is handed back
// through a lock-free MPSC queue instead of touching the owning heap
// directly.
package alloc

import "unsafe"

// Header precedes every allocation returned to a caller. It carries
// enough information for a cross-worker free to find the owning heap,
// block and free-region entry without any global lookup table.
//
// Next is unused while the allocation is live; it is only written when
// the allocation is parked on a remote-free queue awaiting
// reintegration into its owning heap, reusing header memory that would
// otherwise sit idle so that a cross-worker free never allocates.
type Header struct {
	Size           uint32
	AlignPadBefore uint16
	WorkerID       uint16
	NUMANode       uint16
	BlockID        uint32
	Next           uintptr
}

// HeaderSize is the footprint of Header in bytes; allocation layout
// accounts for it explicitly so the returned address can be aligned
// independently of the header's own alignment.
const HeaderSize = unsafe.Sizeof(Header{})

// headerAt reinterprets the HeaderSize bytes immediately preceding addr
// as a *Header.
func headerAt(addr unsafe.Pointer) *Header {
	return (*Header)(unsafe.Pointer(uintptr(addr) - HeaderSize))
}

// HeaderOf exposes headerAt for callers outside this package (the
// top-level Allocator) that need to inspect ownership before deciding
// whether a free is local or must be queued remotely.
func HeaderOf(addr unsafe.Pointer) *Header { return headerAt(addr) }

// userAddr returns the address a caller should receive for an
// allocation whose header starts at headerAddr and that needed pad
// extra bytes to satisfy alignment.
func userAddr(headerAddr unsafe.Pointer, pad uint16) unsafe.Pointer {
	return unsafe.Pointer(uintptr(headerAddr) + HeaderSize + uintptr(pad))
}
