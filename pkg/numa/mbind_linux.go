//go:build linux

package numa

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mbind restricts an already-mapped region to a single NUMA node via the
// mbind(2) syscall, MPOL_BIND mode. A failure (unsupported kernel,
// missing CAP_SYS_NICE-equivalent permission, non-NUMA hardware) is
// reported, never silently dropped.
func mbind(data []byte, nodeID int) (bound bool, why string) {
	if len(data) == 0 {
		return false, "empty mapping"
	}
	if nodeID < 0 || nodeID >= 64 {
		return false, fmt.Sprintf("node id %d out of range for mbind mask", nodeID)
	}
	mask := uint64(1) << uint(nodeID)
	const modeBind = 2 // MPOL_BIND
	const mbindFlags = 0
	_, _, errno := unix.Syscall6(
		unix.SYS_MBIND,
		uintptr(unsafe.Pointer(&data[0])),
		uintptr(len(data)),
		uintptr(modeBind),
		uintptr(unsafe.Pointer(&mask)),
		64,
		mbindFlags,
	)
	if errno != 0 {
		return false, fmt.Sprintf("mbind node %d: %s", nodeID, errno.Error())
	}
	return true, ""
}
