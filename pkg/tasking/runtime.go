package tasking

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/khryptorgraphics/mxtasking/pkg/memory/alloc"
	"github.com/khryptorgraphics/mxtasking/pkg/memory/reclamation"
	"github.com/khryptorgraphics/mxtasking/pkg/numa"
	"github.com/khryptorgraphics/mxtasking/pkg/resource"
)

// Config controls how a Runtime lays out its workers and behaves at
// the scheduling boundary. Worker and NUMA-node counts are fixed for
// the Runtime's lifetime — growing or shrinking the pool mid-query is
// out of scope, matching how a single compiled query plan is handed a
// worker count once at submission time.
type Config struct {
	// WorkerCount is the total number of worker goroutines. Zero means
	// "one worker per CPU the topology reports."
	WorkerCount int

	// BlockSize overrides alloc.DefaultBlockSize for every worker's
	// heap when non-zero.
	BlockSize int

	// PrefetchMode selects the look-ahead strategy; default PrefetchOff.
	PrefetchMode PrefetchMode
	// PrefetchFixedDistance is used only when PrefetchMode is PrefetchFixed.
	PrefetchFixedDistance int

	// MaintenanceInterval is how many tasks a worker executes between
	// forced maintenance passes (remote-free drain, epoch advance),
	// independent of the idle-triggered pass. Must be at least 1.
	MaintenanceInterval int

	// RecoverTaskPanics installs a recover() shim around every task
	// body, turning a panicking task into a dropped task plus a logged
	// error instead of taking down the whole worker.
	RecoverTaskPanics bool

	Logger zerolog.Logger
}

func (c *Config) setDefaults(cpuCount int) {
	if c.WorkerCount <= 0 {
		c.WorkerCount = cpuCount
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = 256
	}
}

// Runtime owns every worker, the shared allocator, the epoch manager,
// and the resource builder, and drives the worker goroutines' lifetime.
type Runtime struct {
	config   Config
	topology *numa.Topology

	workers    []*worker
	workerNode []int

	allocator *alloc.Allocator
	epochs    *reclamation.Manager
	builder   *resource.Builder
	metrics   runtimeMetrics

	wg sync.WaitGroup

	mu    sync.Mutex
	state state
}

// New builds a Runtime from config and the discovered (or caller
// supplied) NUMA topology, but does not start any worker goroutines —
// call Start for that.
func New(config Config, topology *numa.Topology) *Runtime {
	if topology == nil {
		topology = numa.Discover()
	}
	config.setDefaults(topology.NumCPU())

	workerNode := make([]int, config.WorkerCount)
	nodes := topology.Nodes()
	for w := range workerNode {
		if len(nodes) == 0 {
			workerNode[w] = 0
			continue
		}
		workerNode[w] = nodes[w%len(nodes)]
	}

	blockSize := config.BlockSize
	if blockSize <= 0 {
		blockSize = alloc.DefaultBlockSize
	}

	rt := &Runtime{
		config:     config,
		topology:   topology,
		workerNode: workerNode,
		allocator:  alloc.New(workerNode, blockSize),
		epochs:     reclamation.New(config.WorkerCount),
	}
	rt.builder = resource.NewBuilder(rt.allocator, workerNode)

	rt.workers = make([]*worker, config.WorkerCount)
	for w := range rt.workers {
		rt.workers[w] = newWorker(uint16(w), workerNode[w], rt)
	}
	rt.state = stateIdle
	return rt
}

// Builder exposes the resource builder so callers can construct
// resources before the runtime starts handing out tasks that touch
// them.
func (rt *Runtime) Builder() *resource.Builder { return rt.builder }

// Allocator exposes the shared allocator directly, for callers
// building resources outside of a running task (e.g. at startup).
func (rt *Runtime) Allocator() *alloc.Allocator { return rt.allocator }

// WorkerCount reports how many workers this runtime drives.
func (rt *Runtime) WorkerCount() int { return len(rt.workers) }

// Start launches every worker goroutine. Safe to call once per Runtime.
func (rt *Runtime) Start() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.state == stateRunning {
		return fmt.Errorf("tasking: runtime already started")
	}
	for _, w := range rt.workers {
		rt.wg.Add(1)
		go func(w *worker) {
			defer rt.wg.Done()
			w.run()
		}(w)
	}
	rt.state = stateRunning
	return nil
}

// Stop signals every worker to finish its current task and exit, then
// waits for all of them. It does not release allocator memory — call
// Release afterward once no task could possibly still reference a
// built resource.
func (rt *Runtime) Stop() {
	rt.mu.Lock()
	if rt.state != stateRunning {
		rt.mu.Unlock()
		return
	}
	rt.state = stateStopping
	rt.mu.Unlock()

	for _, w := range rt.workers {
		close(w.stop)
	}
	rt.wg.Wait()
}

func (rt *Runtime) stopOne(workerID uint16) {
	w := rt.workers[workerID]
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
}

// Release tears down the allocator's memory arenas. Call only after
// Stop has returned.
func (rt *Runtime) Release() error { return rt.allocator.Release() }

// Spawn enqueues t from outside any running task (e.g. the CLI
// submitting the first task of a query). workerID picks which worker's
// queue receives it when t carries no home-bound resource.
func (rt *Runtime) Spawn(workerID uint16, t *Task) error {
	return rt.spawn(workerID, t)
}

// spawn routes t to the worker its resource is tagged to run on, when
// the primitive requires that, otherwise to callingWorker.
func (rt *Runtime) spawn(callingWorker uint16, t *Task) error {
	target := callingWorker
	if !t.Resource.IsNull() && t.Resource.Primitive().IsHomeBound() {
		target = t.Resource.WorkerID()
	}
	if int(target) >= len(rt.workers) {
		return fmt.Errorf("tasking: spawn: worker %d out of range (%d workers)", target, len(rt.workers))
	}

	w := rt.workers[target]
	if target == callingWorker {
		w.enqueueLocal(t)
	} else {
		w.enqueueRemote(t)
	}
	return nil
}

func (rt *Runtime) workersOnNode(node int, except uint16) []*worker {
	var out []*worker
	for _, w := range rt.workers {
		if w.id != except && w.numaNode == node {
			out = append(out, w)
		}
	}
	return out
}

func (rt *Runtime) workersExcept(except uint16, excludeNode int) []*worker {
	var out []*worker
	for _, w := range rt.workers {
		if w.id != except && w.numaNode != excludeNode {
			out = append(out, w)
		}
	}
	return out
}

func (rt *Runtime) onTaskPanic(workerID uint16, err error) {
	rt.metrics.recordPanic()
	rt.config.Logger.Error().Uint16("worker", workerID).Err(err).Msg("recovered task panic")
}

func (rt *Runtime) logDegraded(workerID uint16, op string, err error) {
	rt.config.Logger.Warn().Uint16("worker", workerID).Str("op", op).Err(err).Msg("degraded NUMA placement")
}

// Stats returns a point-in-time snapshot of runtime and per-worker
// counters.
func (rt *Runtime) Stats() Stats {
	s := Stats{
		ReclaimedTotal:  rt.metrics.reclaimedTotal.Load(),
		TaskPanicsTotal: rt.metrics.taskPanicsTotal.Load(),
		EpochLag:        rt.epochs.Lag(),
		Workers:         make([]WorkerStats, len(rt.workers)),
	}
	for i, w := range rt.workers {
		s.Workers[i] = w.stats()
	}
	return s
}
