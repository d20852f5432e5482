package dataflow

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/khryptorgraphics/mxtasking/pkg/numa"
	"github.com/khryptorgraphics/mxtasking/pkg/tasking"
)

func testRuntime(t *testing.T, workers int) *tasking.Runtime {
	t.Helper()
	cpus := make([]numa.CPU, workers)
	for i := range cpus {
		cpus[i] = numa.CPU{ID: i, Node: 0}
	}
	nodeCPUs := make([]int, workers)
	for i := range nodeCPUs {
		nodeCPUs[i] = i
	}
	topo := &numa.Topology{CPUs: cpus, NodeCPUs: map[int][]int{0: nodeCPUs}}

	rt := tasking.New(tasking.Config{WorkerCount: workers, BlockSize: 1 << 16, MaintenanceInterval: 4}, topo)
	require.NoError(t, rt.Start())
	t.Cleanup(func() {
		rt.Stop()
		require.NoError(t, rt.Release())
	})
	return rt
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition never became true within %s", timeout)
}

// sequentialIntGenerator hands out `total` tokens of value 1, one
// fixed-size batch at a time, from a single-producer task — never
// called concurrently, so the plain int counter is safe.
type sequentialIntGenerator struct {
	remaining int
}

func (g *sequentialIntGenerator) Generate(workerID uint16) []Token[int] {
	if g.remaining <= 0 {
		return nil
	}
	batch := g.remaining
	if batch > 8 {
		batch = 8
	}
	g.remaining -= batch
	out := make([]Token[int], batch)
	for i := range out {
		out[i] = NewToken(1)
	}
	return out
}

func (g *sequentialIntGenerator) Count() uint64 { return uint64(g.remaining) }

// perWorkerIntGenerator hands a fixed, disjoint share to each worker,
// so a parallel producer's concurrent Generate calls never race.
type perWorkerIntGenerator struct {
	perWorker int
}

func (g *perWorkerIntGenerator) Generate(workerID uint16) []Token[int] {
	out := make([]Token[int], g.perWorker)
	for i := range out {
		out[i] = NewToken(1)
	}
	return out
}

func (g *perWorkerIntGenerator) Count() uint64 { return 0 }

func TestSequentialPipelineSumsAllTokens(t *testing.T) {
	rt := testRuntime(t, 2)
	graph := NewGraph[int](rt)

	var sum atomic.Int64

	sink := NewTaskNode(rt, "sink", NewAnnotation[int](), func(workerID uint16, node Node[int], emitter Emitter[int], token Token[int]) {
		sum.Add(int64(token.Data))
	})
	source := NewTaskNode(rt, "source", NewAnnotation[int]().WithProducer(&sequentialIntGenerator{remaining: 100}), nil)
	source.SetOut(sink)
	sink.AddIn(source)

	graph.Register(source)
	graph.Register(sink)

	require.NoError(t, graph.Start(0, source))

	waitUntil(t, 3*time.Second, func() bool { return sum.Load() == 100 })
}

func TestParallelProducerFansOutAcrossWorkers(t *testing.T) {
	rt := testRuntime(t, 4)
	graph := NewGraph[int](rt)

	var count atomic.Int64
	sink := NewTaskNode(rt, "sink", NewAnnotation[int](), func(workerID uint16, node Node[int], emitter Emitter[int], token Token[int]) {
		count.Add(1)
	})
	source := NewTaskNode(rt, "source", NewAnnotation[int]().WithProducer(&perWorkerIntGenerator{perWorker: 10}).WithParallel(true), nil)
	source.SetOut(sink)
	sink.AddIn(source)

	graph.Register(source)
	graph.Register(sink)

	require.NoError(t, graph.Start(0, source))
	waitUntil(t, 3*time.Second, func() bool { return count.Load() == 40 })
}

func TestMakeEdgeWiresConsumerToProducer(t *testing.T) {
	rt := testRuntime(t, 2)
	graph := NewGraph[int](rt)

	var sum atomic.Int64
	sink := NewTaskNode(rt, "sink", NewAnnotation[int](), func(workerID uint16, node Node[int], emitter Emitter[int], token Token[int]) {
		sum.Add(int64(token.Data))
	})
	source := NewTaskNode(rt, "source", NewAnnotation[int]().WithProducer(&sequentialIntGenerator{remaining: 50}), nil)

	graph.MakeEdge(source, sink)
	graph.Register(source)
	graph.Register(sink)

	require.NoError(t, graph.Start(0, source))
	waitUntil(t, 3*time.Second, func() bool { return sum.Load() == 50 })
}

// oneShotIntGenerator hands out a single fixed token then stops,
// driving a single-node pipeline as its own producer.
type oneShotIntGenerator struct {
	value   int
	emitted bool
}

func (g *oneShotIntGenerator) Generate(workerID uint16) []Token[int] {
	if g.emitted {
		return nil
	}
	g.emitted = true
	return []Token[int]{NewToken(g.value)}
}

func (g *oneShotIntGenerator) Count() uint64 { return 1 }

// timedOneShotGenerator hands out a single token, stamping started/
// finished timestamps around the handoff so a test can check ordering
// against another pipeline's timestamps.
type timedOneShotGenerator struct {
	value             int
	emitted           bool
	started, finished chan time.Time
}

func (g *timedOneShotGenerator) Generate(workerID uint16) []Token[int] {
	if g.emitted {
		return nil
	}
	g.emitted = true
	g.started <- time.Now()
	g.finished <- time.Now()
	return []Token[int]{NewToken(g.value)}
}

func (g *timedOneShotGenerator) Count() uint64 { return 1 }

func TestPipelineDependencyGatesStart(t *testing.T) {
	rt := testRuntime(t, 2)
	graph := NewGraph[int](rt)

	buildGen := &timedOneShotGenerator{value: 1, started: make(chan time.Time, 1), finished: make(chan time.Time, 1)}
	probeGen := &timedOneShotGenerator{value: 2, started: make(chan time.Time, 1), finished: make(chan time.Time, 1)}

	build := NewTaskNode(rt, "build", NewAnnotation[int]().WithProducer(buildGen), nil)
	probe := NewTaskNode(rt, "probe", NewAnnotation[int]().WithProducer(probeGen), nil)

	buildPipe := NewPipeline[int]()
	buildPipe.Emplace(build)
	probePipe := NewPipeline[int]()
	probePipe.Emplace(probe)

	graph.AddPipeline(buildPipe)
	graph.AddPipeline(probePipe)
	require.NoError(t, graph.MakeDependency(probePipe, buildPipe))

	warmupRan := make(chan time.Time, 1)
	warmup := &tasking.Task{
		Body: func(ctx *tasking.Context) (*tasking.Task, tasking.Result) {
			warmupRan <- time.Now()
			return nil, tasking.Remove
		},
	}
	require.NoError(t, graph.AddPreparatory(buildPipe, []*tasking.Task{warmup}))

	require.NoError(t, graph.StartGraph(0))

	var warmupAt, buildFinishedAt, probeStartedAt time.Time
	select {
	case warmupAt = <-warmupRan:
	case <-time.After(3 * time.Second):
		t.Fatal("preparatory task never ran")
	}
	select {
	case <-buildGen.started:
	case <-time.After(3 * time.Second):
		t.Fatal("build pipeline never started")
	}
	select {
	case buildFinishedAt = <-buildGen.finished:
	case <-time.After(3 * time.Second):
		t.Fatal("build pipeline never finished")
	}
	select {
	case probeStartedAt = <-probeGen.started:
	case <-time.After(3 * time.Second):
		t.Fatal("probe pipeline never started")
	}

	require.False(t, probeStartedAt.Before(warmupAt), "probe must start after the preparatory task ran")
	require.False(t, probeStartedAt.Before(buildFinishedAt), "probe must not start before build's pipeline finalized")
}

func TestMakeDependencyRejectsCycle(t *testing.T) {
	rt := testRuntime(t, 1)
	graph := NewGraph[int](rt)

	a := NewTaskNode(rt, "a", NewAnnotation[int]().WithProducer(&oneShotIntGenerator{value: 1}), nil)
	b := NewTaskNode(rt, "b", NewAnnotation[int]().WithProducer(&oneShotIntGenerator{value: 2}), nil)

	pa := NewPipeline[int]()
	pa.Emplace(a)
	pb := NewPipeline[int]()
	pb.Emplace(b)

	graph.AddPipeline(pa)
	graph.AddPipeline(pb)

	require.NoError(t, graph.MakeDependency(pb, pa))
	require.Error(t, graph.MakeDependency(pa, pb))
}

func TestReduceTreeCombinesAllValues(t *testing.T) {
	rt := testRuntime(t, 4)

	values := []int{1, 2, 3, 4, 5}
	resultCh := SpawnReduceTree(rt, 0, values, func(a, b int) int { return a + b })

	select {
	case got := <-resultCh:
		require.Equal(t, 15, got)
	case <-time.After(3 * time.Second):
		t.Fatal("reduce tree never produced a result")
	}
}

func TestReduceTreeSingleValueShortCircuits(t *testing.T) {
	rt := testRuntime(t, 1)
	resultCh := SpawnReduceTree(rt, 0, []int{42}, func(a, b int) int { return a + b })
	select {
	case got := <-resultCh:
		require.Equal(t, 42, got)
	case <-time.After(time.Second):
		t.Fatal("single-value reduce never produced a result")
	}
}
