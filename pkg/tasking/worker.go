package tasking

import (
	"math/rand"
	"runtime"
	"sync/atomic"

	"github.com/khryptorgraphics/mxtasking/pkg/numa"
)

// state is a worker's current phase, tracked for the admin surface and
// for tests that assert on scheduling behavior.
type state uint8

const (
	stateIdle state = iota
	stateRunning
	stateStealing
	stateStopping
	stateTerminated
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRunning:
		return "running"
	case stateStealing:
		return "stealing"
	case stateStopping:
		return "stopping"
	case stateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// WorkerStats is a snapshot of one worker's counters, exposed through
// the admin surface and Prometheus collectors.
type WorkerStats struct {
	WorkerID       uint16
	NUMANode       int
	State          string
	TasksExecuted  uint64
	StealsAttempted uint64
	StealsSucceeded uint64
	QueueDepth     [PriorityCount]int
}

type worker struct {
	id       uint16
	numaNode int
	queues   [PriorityCount]*localQueue
	inbox    *remoteInbox

	rt *Runtime

	state atomic.Uint32 // holds state

	tasksExecuted   atomic.Uint64
	stealsAttempted atomic.Uint64
	stealsSucceeded atomic.Uint64

	maintenanceCounter atomic.Uint64

	stop chan struct{}
	done chan struct{}
}

func newWorker(id uint16, numaNode int, rt *Runtime) *worker {
	w := &worker{
		id:       id,
		numaNode: numaNode,
		inbox:    newRemoteInbox(),
		rt:       rt,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for i := range w.queues {
		w.queues[i] = newLocalQueue()
	}
	w.state.Store(uint32(stateIdle))
	return w
}

func (w *worker) setState(s state) { w.state.Store(uint32(s)) }
func (w *worker) getState() state  { return state(w.state.Load()) }

func (w *worker) stats() WorkerStats {
	s := WorkerStats{
		WorkerID:        w.id,
		NUMANode:        w.numaNode,
		State:           w.getState().String(),
		TasksExecuted:   w.tasksExecuted.Load(),
		StealsAttempted: w.stealsAttempted.Load(),
		StealsSucceeded: w.stealsSucceeded.Load(),
	}
	for i := range w.queues {
		s.QueueDepth[i] = w.queues[i].len()
	}
	return s
}

// run is the worker's scheduling loop. It is launched as its own
// goroutine, locks that goroutine to its OS thread and, on Linux, pins
// the thread to one CPU of numaNode before entering the loop. It does
// not change the thread's memory policy.
func (w *worker) run() {
	defer close(w.done)

	if cpus, ok := w.rt.topology.NodeCPUs[w.numaNode]; ok && len(cpus) > 0 {
		runtime.LockOSThread()
		if err := numa.PinCallingThread(cpus[int(w.id)%len(cpus)]); err != nil {
			w.rt.logDegraded(w.id, "pin", err)
		}
	}

	w.setState(stateRunning)
	for {
		select {
		case <-w.stop:
			w.drainBeforeStop()
			w.setState(stateTerminated)
			return
		default:
		}

		t := w.nextTask()
		if t == nil {
			w.setState(stateStealing)
			t = w.trySteal()
		}
		if t == nil {
			w.setState(stateIdle)
			runMaintenance(w)
			continue
		}

		w.setState(stateRunning)
		w.execute(t)

		if c := w.maintenanceCounter.Add(1); c%uint64(w.rt.config.MaintenanceInterval) == 0 {
			runMaintenance(w)
		}
	}
}

// nextTask drains the remote inbox into the local queues (so
// cross-worker spawns get the same priority treatment as local ones),
// then pops the highest-priority local task, prefetching the task
// behind it according to the configured mode.
func (w *worker) nextTask() *Task {
	for _, t := range w.inbox.drainAll() {
		w.queues[t.Priority].push(t)
	}

	for p := 0; p < PriorityCount; p++ {
		q := w.queues[p]
		if t := q.popOwn(); t != nil {
			w.prefetchAhead(q)
			return t
		}
	}
	return nil
}

// prefetchAhead touches the resource of the task `dist` pops from now,
// where dist comes from prefetchDistance: PrefetchFixed always looks
// PrefetchFixedDistance tasks ahead, PrefetchAutomatic adapts to queue
// depth.
// A task dist pops away may not exist yet (queue shorter than dist) or
// may get stolen before the worker reaches it; either way peekAt
// returning nil or a now-stale task is harmless, since this is a
// best-effort cache warm-up, not a correctness dependency.
func (w *worker) prefetchAhead(q *localQueue) {
	if w.rt.config.PrefetchMode == PrefetchOff {
		return
	}
	dist := prefetchDistance(w.rt.config.PrefetchMode, w.rt.config.PrefetchFixedDistance, q.len())
	if dist <= 0 {
		return
	}
	if t := q.peekAt(dist - 1); t != nil && !t.Resource.IsNull() {
		touchCacheLine(t.Resource.Addr())
	}
}

// trySteal looks for work on NUMA-local peers first, falling back to
// any other worker, mirroring the preference for same-node theft that
// keeps stolen cache lines close.
func (w *worker) trySteal() *Task {
	peers := w.rt.workersOnNode(w.numaNode, w.id)
	if t := w.stealFrom(peers); t != nil {
		return t
	}
	others := w.rt.workersExcept(w.id, w.numaNode)
	return w.stealFrom(others)
}

func (w *worker) stealFrom(peers []*worker) *Task {
	if len(peers) == 0 {
		return nil
	}
	start := rand.Intn(len(peers))
	for i := 0; i < len(peers); i++ {
		peer := peers[(start+i)%len(peers)]
		for p := 0; p < PriorityCount; p++ {
			w.stealsAttempted.Add(1)
			if t := peer.queues[p].steal(); t != nil {
				w.stealsSucceeded.Add(1)
				return t
			}
		}
	}
	return nil
}

func (w *worker) execute(t *Task) {
	dispatch(w, t)
	w.tasksExecuted.Add(1)
}

func (w *worker) drainBeforeStop() {
	for _, t := range w.inbox.drainAll() {
		w.queues[t.Priority].push(t)
	}
}

// enqueueLocal places t on this worker's own queue.
func (w *worker) enqueueLocal(t *Task) { w.queues[t.Priority].push(t) }

// enqueueRemote hands t to this worker from a different worker.
func (w *worker) enqueueRemote(t *Task) { w.inbox.push(t) }
