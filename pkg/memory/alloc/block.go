package alloc

import (
	"sort"
	"unsafe"

	"github.com/khryptorgraphics/mxtasking/pkg/numa"
)

// splitThreshold is the smallest remainder, in bytes, worth keeping as
// its own free region after a split; anything smaller is absorbed into
// the allocation instead.
const splitThreshold = 256

// freeRegion is a free byte range within a block, identified by its
// offset from the block's base address.
type freeRegion struct {
	offset uintptr
	size   uintptr
}

// Block is one large NUMA-local mapping owned by exactly one worker.
// Its free regions are kept sorted by offset so that coalescing with
// the left and right neighbor is a pair of binary searches.
type Block struct {
	ID       uint32
	NUMANode int
	raw      *numa.Block
	base     uintptr
	size     uintptr
	free     []freeRegion // sorted by offset, always non-overlapping
	bound    bool
}

func newBlock(id uint32, numaNode int, size int) (*Block, string, error) {
	raw, why, err := numa.AllocBlock(numaNode, size)
	if err != nil {
		return nil, "", err
	}
	base := uintptr(unsafe.Pointer(&raw.Data[0]))
	b := &Block{
		ID:       id,
		NUMANode: numaNode,
		raw:      raw,
		base:     base,
		size:     uintptr(len(raw.Data)),
		bound:    raw.Bound,
	}
	b.free = []freeRegion{{offset: 0, size: b.size}}
	return b, why, nil
}

// Bound reports whether the OS actually honored the NUMA placement
// request for this block.
func (b *Block) Bound() bool { return b.bound }

func (b *Block) release() error {
	return numa.FreeBlock(b.raw)
}

// findFit scans free regions in address order (the spec's "reverse
// insertion order" across blocks is implemented one level up, in Heap;
// within one block, first-fit is simply the first region, in address
// order, big enough to hold the request) and returns its index, or -1.
func (b *Block) findFit(alignment uintptr, size uintptr) (index int, padBefore uintptr, ok bool) {
	for i, r := range b.free {
		regionStart := b.base + r.offset
		unaligned := regionStart + HeaderSize
		aligned := alignUp(unaligned, alignment)
		pad := aligned - unaligned
		total := HeaderSize + pad + size
		if r.size >= total {
			return i, pad, true
		}
	}
	return -1, 0, false
}

// alignUp rounds addr up to the next multiple of alignment (alignment
// must be a power of two).
func alignUp(addr, alignment uintptr) uintptr {
	if alignment <= 1 {
		return addr
	}
	return (addr + alignment - 1) &^ (alignment - 1)
}

// take removes totalSize bytes (pad + header + payload) from the free
// region at index, splitting and reinserting the tail when the
// remainder exceeds splitThreshold, and returns the address at which
// the Header (not the user payload) should be constructed — pad bytes
// before it are simply left unused within the consumed span.
func (b *Block) take(index int, pad, totalSize uintptr) unsafe.Pointer {
	r := b.free[index]
	headerAddr := b.base + r.offset + pad
	remainder := r.size - totalSize

	if remainder > splitThreshold {
		b.free[index] = freeRegion{offset: r.offset + totalSize, size: remainder}
	} else {
		b.free = append(b.free[:index], b.free[index+1:]...)
	}
	return unsafe.Pointer(headerAddr)
}

// insertFree adds a newly freed range back into the block, coalescing
// with adjacent regions, and keeps the slice sorted by offset.
func (b *Block) insertFree(offset, size uintptr) {
	i := sort.Search(len(b.free), func(i int) bool { return b.free[i].offset >= offset })

	merged := freeRegion{offset: offset, size: size}

	// Merge with right neighbor if contiguous.
	if i < len(b.free) && merged.offset+merged.size == b.free[i].offset {
		merged.size += b.free[i].size
		b.free = append(b.free[:i], b.free[i+1:]...)
	}

	// Merge with left neighbor if contiguous.
	if i > 0 {
		left := b.free[i-1]
		if left.offset+left.size == merged.offset {
			merged.offset = left.offset
			merged.size += left.size
			i--
			b.free = append(b.free[:i], b.free[i+1:]...)
		}
	}

	b.free = append(b.free, freeRegion{})
	copy(b.free[i+1:], b.free[i:])
	b.free[i] = merged
}

// contains reports whether addr falls within this block's mapping.
func (b *Block) contains(addr uintptr) bool {
	return addr >= b.base && addr < b.base+b.size
}

// offsetOf converts an absolute address into this block's local offset.
func (b *Block) offsetOf(addr uintptr) uintptr { return addr - b.base }
