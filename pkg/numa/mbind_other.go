//go:build !linux

package numa

import "fmt"

func mbind(data []byte, nodeID int) (bound bool, why string) {
	return false, fmt.Sprintf("mbind is not supported on this platform, requested node %d", nodeID)
}
