// Package reclamation implements epoch-based memory reclamation: a
// global monotonic epoch, one local epoch per worker, and a per-worker
// garbage list keyed by the epoch at which each entry was logically
// removed. An entry is only destructed once every worker's local epoch
// has advanced strictly past its remove-epoch, which guarantees no
// reader still mid-task can observe a reclaimed resource, provided
// readers publish their local epoch before loading a tagged pointer and
// writers publish the removal before stamping the remove-epoch.
package reclamation

import (
	"sync"
	"sync/atomic"
)

// Epoch is the reclamation engine's monotonically increasing counter
// type.
type Epoch uint64

// Quiescent is the local-epoch sentinel a worker publishes while it is
// not executing a task that might touch an optimistically synchronized
// resource. A quiescent worker never blocks the epoch from advancing.
const Quiescent Epoch = ^Epoch(0)

// Reclaimable is implemented by any resource that can be parked on a
// garbage list and later destructed once it is safe to do so.
type Reclaimable interface {
	OnReclaim()
}

type garbageEntry struct {
	resource    Reclaimable
	removeEpoch Epoch
}

// Manager owns the global epoch and every worker's local epoch cell and
// garbage list.
type Manager struct {
	global  atomic.Uint64
	locals  []atomic.Uint64 // one cache-line-distinct cell per worker, holding Epoch bits
	garbage []garbageMu
}

type garbageMu struct {
	mu    sync.Mutex
	items []garbageEntry
}

// New creates a Manager for the given worker count. The global epoch
// starts at 1 so that 0 can be used as an "unset" remove-epoch by
// callers that zero-initialize.
func New(workerCount int) *Manager {
	m := &Manager{
		locals:  make([]atomic.Uint64, workerCount),
		garbage: make([]garbageMu, workerCount),
	}
	m.global.Store(1)
	for i := range m.locals {
		m.locals[i].Store(uint64(Quiescent))
	}
	return m
}

// GlobalEpoch returns the current global epoch.
func (m *Manager) GlobalEpoch() Epoch { return Epoch(m.global.Load()) }

// EnterCriticalSection publishes the current global epoch as workerID's
// local epoch. Call this before a task body may dereference a tagged
// pointer to an optimistically-synchronized resource; memory ordering
// is sequentially consistent per the engine's publication contract.
func (m *Manager) EnterCriticalSection(workerID uint16) {
	m.locals[workerID].Store(uint64(m.GlobalEpoch()))
}

// ExitCriticalSection publishes the quiescent sentinel, signaling that
// workerID no longer holds a reference that depends on the current
// epoch.
func (m *Manager) ExitCriticalSection(workerID uint16) {
	m.locals[workerID].Store(uint64(Quiescent))
}

// LocalEpoch returns workerID's currently published local epoch (which
// may be Quiescent).
func (m *Manager) LocalEpoch(workerID uint16) Epoch {
	return Epoch(m.locals[workerID].Load())
}

// MinNonQuiescent returns the minimum local epoch across every worker
// that is not currently quiescent, or Quiescent itself if every worker
// is quiescent (meaning every garbage entry is reclaimable immediately).
func (m *Manager) MinNonQuiescent() Epoch {
	min := Quiescent
	for i := range m.locals {
		e := Epoch(m.locals[i].Load())
		if e != Quiescent && e < min {
			min = e
		}
	}
	return min
}

// Retire places resource on workerID's garbage list, stamped with the
// current global epoch. The resource is not destructed here; it becomes
// eligible once the global epoch advances far enough that
// MinNonQuiescent() exceeds this stamp.
func (m *Manager) Retire(workerID uint16, resource Reclaimable) {
	stamp := m.GlobalEpoch()
	g := &m.garbage[workerID]
	g.mu.Lock()
	g.items = append(g.items, garbageEntry{resource: resource, removeEpoch: stamp})
	g.mu.Unlock()
}

// AdvanceAndCollect advances the global epoch by one and destructs
// every entry on workerID's own garbage list whose remove-epoch is now
// strictly less than the minimum non-quiescent local epoch. It returns
// the number of resources destructed. Workers call this periodically
// (bounded by task count or wall-clock interval), never on every task.
func (m *Manager) AdvanceAndCollect(workerID uint16) int {
	m.global.Add(1)
	threshold := m.MinNonQuiescent()

	g := &m.garbage[workerID]
	g.mu.Lock()
	defer g.mu.Unlock()

	kept := g.items[:0]
	collected := 0
	for _, entry := range g.items {
		// threshold == Quiescent means every worker is currently
		// quiescent, so nothing bounds reclamation from below: every
		// pending entry is safe to collect immediately.
		if threshold == Quiescent || entry.removeEpoch < threshold {
			entry.resource.OnReclaim()
			collected++
			continue
		}
		kept = append(kept, entry)
	}
	g.items = kept
	return collected
}

// PendingCount reports how many entries sit on workerID's garbage list,
// awaiting a future collection pass. Used by metrics and tests.
func (m *Manager) PendingCount(workerID uint16) int {
	g := &m.garbage[workerID]
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.items)
}

// Lag reports GlobalEpoch() - MinNonQuiescent(), the reclamation-safety
// metric an operator watches to notice a stuck reader.
func (m *Manager) Lag() int64 {
	min := m.MinNonQuiescent()
	if min == Quiescent {
		return 0
	}
	return int64(m.GlobalEpoch()) - int64(min)
}
