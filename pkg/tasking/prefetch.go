package tasking

import "unsafe"

// PrefetchMode selects how far ahead of the currently executing task a
// worker issues a prefetch touch for the next task's resource.
type PrefetchMode uint8

const (
	// PrefetchOff never prefetches ahead.
	PrefetchOff PrefetchMode = iota
	// PrefetchFixed always looks Config.PrefetchFixedDistance tasks
	// ahead in the local queue.
	PrefetchFixed
	// PrefetchAutomatic adapts the look-ahead distance to the worker's
	// recent queue depth: a deep queue affords looking further ahead
	// without risking prefetching work that gets stolen before it runs.
	PrefetchAutomatic
)

// Go has no portable intrinsic equivalent to PREFETCHT0; touchCacheLine
// approximates the effect by reading the first byte at addr, which
// pulls the containing cache line into the core's L1 on every
// mainstream architecture this runtime targets. It is a best-effort
// hint, not a guarantee, and the read result is discarded.
func touchCacheLine(addr unsafe.Pointer) {
	if addr == nil {
		return
	}
	_ = *(*byte)(addr)
}

// prefetchDistance computes how many tasks ahead to look, given the
// configured mode and the queue's current depth.
func prefetchDistance(mode PrefetchMode, fixed int, queueDepth int) int {
	switch mode {
	case PrefetchFixed:
		return fixed
	case PrefetchAutomatic:
		// A shallow queue risks prefetching a task that gets stolen
		// before the worker reaches it, wasting the touch; a deep queue
		// can safely look further ahead. This halves the queue depth,
		// capped to a sane maximum, as a simple proxy for "how much
		// slack exists before this worker runs dry."
		d := queueDepth / 2
		if d < 1 {
			return 1
		}
		if d > 8 {
			return 8
		}
		return d
	default:
		return 0
	}
}
