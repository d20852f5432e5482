//go:build !linux

package numa

import "fmt"

// PinCallingThread is unsupported outside Linux; callers must treat a
// non-nil error as "placement not honored," not as a fatal condition.
func PinCallingThread(cpuID int) error {
	return fmt.Errorf("cpu affinity pinning is not supported on this platform")
}

func bindMemoryPolicy(nodeID int) error {
	return fmt.Errorf("numa memory binding is not supported on this platform")
}
