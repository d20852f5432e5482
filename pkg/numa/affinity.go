//go:build linux

package numa

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// PinCallingThread pins the calling OS thread to a single logical CPU.
// The caller must have already called runtime.LockOSThread, since
// goroutines can otherwise migrate off the pinned thread between calls.
func PinCallingThread(cpuID int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("sched_setaffinity cpu %d: %w", cpuID, err)
	}
	return nil
}

// bindMemoryPolicy thread-locally restricts future allocations on this
// OS thread to the given NUMA node via set_mempolicy(MPOL_BIND). It is
// best-effort: the worker heap still honors the request explicitly
// through mmap + mbind in AllocBlock, this call only narrows the
// default policy the kernel uses for first-touch pages the allocator
// did not explicitly place.
func bindMemoryPolicy(nodeID int) error {
	if nodeID < 0 || nodeID >= 64 {
		return fmt.Errorf("node id %d out of range for mempolicy mask", nodeID)
	}
	runtime.LockOSThread()
	mask := uint64(1) << uint(nodeID)
	const modeBind = 2 // MPOL_BIND
	_, _, errno := unix.RawSyscall(unix.SYS_SET_MEMPOLICY, uintptr(modeBind), uintptr(unsafe.Pointer(&mask)), 64)
	if errno != 0 {
		return fmt.Errorf("set_mempolicy bind node %d: %w", nodeID, errno)
	}
	return nil
}
