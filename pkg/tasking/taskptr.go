package tasking

import "sync/atomic"

// taskPointer is a thin atomic.Pointer[Task] wrapper kept as a named
// type so remoteInbox reads like the allocator's remote free queue it
// mirrors.
type taskPointer struct {
	p atomic.Pointer[Task]
}

func (t *taskPointer) load() *Task                     { return t.p.Load() }
func (t *taskPointer) swap(n *Task) *Task               { return t.p.Swap(n) }
func (t *taskPointer) compareAndSwap(old, n *Task) bool { return t.p.CompareAndSwap(old, n) }
