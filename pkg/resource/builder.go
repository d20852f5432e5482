package resource

import (
	"fmt"
	"unsafe"

	"github.com/khryptorgraphics/mxtasking/pkg/memory/alloc"
	"github.com/khryptorgraphics/mxtasking/pkg/tagged"
)

// container is the off-heap layout every built resource actually lives
// in: the synchronization state immediately followed by the caller's
// value. Resources built this way are allocated out of worker-local
// NUMA-bound arenas rather than the Go heap, so T must not itself hold
// pointers the garbage collector needs to trace — the arena is invisible
// to the collector by construction. Plain numeric fields, fixed-size
// arrays, and tagged.Ptr values (which the collector also never chases)
// are safe; a T containing a native Go pointer or slice header is not.
type container[T any] struct {
	sync  Sync
	value T
}

// Builder allocates and places resources: it owns the worker-local
// allocator, assigns a home worker via round-robin scheduling biased
// away from workers already carrying an excessive share of
// FrequencyExcessive resources, and stamps the resulting tagged pointer
// with the chosen synchronization primitive.
type Builder struct {
	allocator *alloc.Allocator
	workerNode []int

	nextWorker   uint32
	excessiveLoad []uint32 // per-worker count of outstanding FrequencyExcessive resources
}

// NewBuilder creates a Builder over allocator, whose per-worker heaps
// must already be associated with workerNode (the same slice passed to
// alloc.New), so NUMA-node-targeted annotations can be resolved to a
// concrete worker.
func NewBuilder(allocator *alloc.Allocator, workerNode []int) *Builder {
	return &Builder{
		allocator:     allocator,
		workerNode:    append([]int(nil), workerNode...),
		excessiveLoad: make([]uint32, len(workerNode)),
	}
}

// pickWorker resolves an Annotation's placement hint to a concrete
// worker id. Explicit worker placement wins outright. NUMA-node
// placement round-robins among the workers homed on that node.
// Unplaced annotations round-robin across every worker, skipping the
// single most-loaded worker when the resource itself is
// FrequencyExcessive and more than one worker is available, so that a
// query's small number of excessive-access resources don't all pile
// onto the same worker.
func (b *Builder) pickWorker(a Annotation) (uint16, error) {
	if a.HasWorker() {
		if int(a.WorkerID()) >= len(b.workerNode) {
			return 0, fmt.Errorf("resource: worker %d out of range (%d workers)", a.WorkerID(), len(b.workerNode))
		}
		return a.WorkerID(), nil
	}

	candidates := b.workerNode
	indices := make([]uint16, 0, len(candidates))
	if a.HasNUMANode() {
		for w, node := range b.workerNode {
			if node == int(a.NUMANode()) {
				indices = append(indices, uint16(w))
			}
		}
		if len(indices) == 0 {
			return 0, fmt.Errorf("resource: no worker homed on NUMA node %d", a.NUMANode())
		}
	} else {
		for w := range candidates {
			indices = append(indices, uint16(w))
		}
	}

	if a.Frequency() == FrequencyExcessive && len(indices) > 1 {
		indices = b.dropMostLoaded(indices)
	}

	n := atomicAddWrap(&b.nextWorker, uint32(len(indices)))
	worker := indices[n]
	if a.Frequency() == FrequencyExcessive {
		b.excessiveLoad[worker]++
	}
	return worker, nil
}

func (b *Builder) dropMostLoaded(indices []uint16) []uint16 {
	worst := indices[0]
	for _, w := range indices[1:] {
		if b.excessiveLoad[w] > b.excessiveLoad[worst] {
			worst = w
		}
	}
	filtered := make([]uint16, 0, len(indices)-1)
	for _, w := range indices {
		if w != worst {
			filtered = append(filtered, w)
		}
	}
	return filtered
}

func atomicAddWrap(counter *uint32, modulus uint32) uint16 {
	// Non-atomic counter is acceptable: a lost increment under
	// concurrent builds only biases round-robin fairness slightly, it
	// never corrupts placement (the modulus indexing is always safe).
	v := *counter
	*counter++
	if modulus == 0 {
		return 0
	}
	return uint16(v % modulus)
}

// Build allocates a resource of type T under annotation, constructs it
// with value, and returns a tagged pointer naming its home worker and
// chosen synchronization primitive. callingWorker is the worker
// executing the build (used for the off-heap allocation request itself;
// the resource's eventual home worker may differ when annotation
// requests a specific worker or NUMA node).
func Build[T any](b *Builder, callingWorker uint16, annotation Annotation, value T) (tagged.Ptr, error) {
	home, err := b.pickWorker(annotation)
	if err != nil {
		return tagged.Null, err
	}

	numaNode := 0
	if int(home) < len(b.workerNode) {
		numaNode = b.workerNode[home]
	}

	var zero container[T]
	size := unsafe.Sizeof(zero)
	align := unsafe.Alignof(zero)

	raw, err := b.allocator.Allocate(callingWorker, numaNode, align, size)
	if err != nil {
		return tagged.Null, fmt.Errorf("resource: build: %w", err)
	}

	primitive := selectPrimitive(annotation)
	c := (*container[T])(raw)
	c.sync = *newSync(primitive)
	c.value = value

	info := tagged.NewInfo(home, primitive)
	return tagged.New(unsafe.Pointer(c), info), nil
}

// Value returns a pointer to the caller's value inside a resource built
// by Build[T]. Panics if p is null; callers are expected to have
// checked p.IsNull() already, mirroring tagged.Get.
func Value[T any](p tagged.Ptr) *T {
	c := (*container[T])(p.Addr())
	return &c.value
}

// SyncOf returns the synchronization state embedded in a resource built
// by Build[T], for use with the Scoped*/Begin*/End* helpers in
// interface.go.
func SyncOf[T any](p tagged.Ptr) *Sync {
	c := (*container[T])(p.Addr())
	return &c.sync
}

// Destroy frees the off-heap memory backing a resource built by
// Build[T]. Callers must ensure no reader can still observe p — in
// practice this means routing through the epoch manager's Retire
// rather than calling Destroy directly from task code.
func Destroy[T any](allocator *alloc.Allocator, callingWorker uint16, p tagged.Ptr) error {
	if p.IsNull() {
		return nil
	}
	return allocator.Free(callingWorker, p.Addr())
}
