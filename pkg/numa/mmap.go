package numa

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Block is a raw OS memory mapping, large enough to be carved up by a
// worker-local allocator. Bound reports whether the NUMA bind actually
// took effect, so the allocator can surface non-silent degradation.
type Block struct {
	Data  []byte
	Bound bool
}

// AllocBlock mmaps size bytes and attempts to bind them to nodeID via
// mbind(MPOL_BIND). On any platform or kernel where mbind is
// unavailable, the mapping still succeeds but Bound is false and why
// explains the reason — callers must log this, never swallow it.
func AllocBlock(nodeID int, size int) (*Block, string, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, "", fmt.Errorf("mmap %d bytes: %w", size, err)
	}

	bound, why := mbind(data, nodeID)
	return &Block{Data: data, Bound: bound}, why, nil
}

// FreeBlock releases a block back to the OS.
func FreeBlock(b *Block) error {
	if b == nil || b.Data == nil {
		return nil
	}
	return unix.Munmap(b.Data)
}

