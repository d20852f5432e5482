package tasking

import "sync/atomic"

// runtimeMetrics collects counters Prometheus-facing code (see
// internal/metrics) pulls through Runtime.Stats rather than pushing
// into directly, keeping this package free of a metrics-library
// dependency.
type runtimeMetrics struct {
	reclaimedTotal  atomic.Uint64
	taskPanicsTotal atomic.Uint64
}

func (m *runtimeMetrics) recordReclaimed(workerID uint16, n int) {
	m.reclaimedTotal.Add(uint64(n))
}

func (m *runtimeMetrics) recordPanic() {
	m.taskPanicsTotal.Add(1)
}

// Stats is a point-in-time snapshot of runtime-wide and per-worker
// counters.
type Stats struct {
	ReclaimedTotal  uint64
	TaskPanicsTotal uint64
	EpochLag        int64
	Workers         []WorkerStats
}
