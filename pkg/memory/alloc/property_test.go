package alloc

import (
	"testing"
	"unsafe"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestAllocateFreeRoundTripProperty exercises property 5 from the
// allocator's testable-properties list: any sequence of allocate/free
// calls that frees every block it allocated must return the heap's
// allocated/freed counters to the same delta, and the heap must never
// report more blocks in a node than were actually grown for it.
func TestAllocateFreeRoundTripProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("allocate-then-free-round-trips counters", prop.ForAll(
		func(sizes []uint16) bool {
			h := NewHeap(0, 1<<20)
			before, freedBefore := h.Stats()

			ptrs := make([]unsafe.Pointer, 0, len(sizes))
			for _, sz := range sizes {
				size := uintptr(sz%512) + 8
				p, err := h.Allocate(0, 8, size)
				if err != nil {
					return false
				}
				ptrs = append(ptrs, p)
			}
			for _, p := range ptrs {
				if err := h.FreeLocal(p); err != nil {
					return false
				}
			}

			after, freedAfter := h.Stats()
			return after-before == int64(len(sizes)) && freedAfter-freedBefore == int64(len(sizes))
		},
		gen.SliceOfN(32, gen.UInt16Range(0, 4096)),
	))

	properties.TestingRun(t)
}
