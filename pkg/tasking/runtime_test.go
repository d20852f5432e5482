package tasking

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/khryptorgraphics/mxtasking/pkg/numa"
	"github.com/khryptorgraphics/mxtasking/pkg/resource"
)

func testTopology(workers int) *numa.Topology {
	cpus := make([]numa.CPU, workers)
	for i := range cpus {
		cpus[i] = numa.CPU{ID: i, Node: 0}
	}
	return &numa.Topology{
		CPUs:     cpus,
		NodeCPUs: map[int][]int{0: rangeInts(workers)},
	}
}

func rangeInts(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func newTestRuntime(t *testing.T, workers int) *Runtime {
	t.Helper()
	rt := New(Config{WorkerCount: workers, BlockSize: 1 << 16, MaintenanceInterval: 4}, testTopology(workers))
	require.NoError(t, rt.Start())
	t.Cleanup(func() {
		rt.Stop()
		require.NoError(t, rt.Release())
	})
	return rt
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
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

func TestSpawnAndExecuteStatelessTask(t *testing.T) {
	rt := newTestRuntime(t, 2)

	var ran atomic.Bool
	require.NoError(t, rt.Spawn(0, &Task{
		Body: func(ctx *Context) (*Task, Result) {
			ran.Store(true)
			return nil, Remove
		},
	}))

	waitFor(t, time.Second, ran.Load)
}

func TestScheduleAllSerializesOnHomeWorker(t *testing.T) {
	rt := newTestRuntime(t, 4)

	type counter struct{ n int64 }
	p, err := resource.Build(rt.Builder(), 0, resource.New().
		WithIsolation(resource.IsolationExclusive).
		WithWorker(1), counter{})
	require.NoError(t, err)
	require.Equal(t, uint16(1), p.WorkerID())

	const spawns = 200
	var completed atomic.Int64
	var seenWorkers [4]atomic.Bool

	for i := 0; i < spawns; i++ {
		require.NoError(t, rt.Spawn(uint16(i%4), &Task{
			Resource: p,
			Body: func(ctx *Context) (*Task, Result) {
				seenWorkers[ctx.WorkerID()].Store(true)
				completed.Add(1)
				return nil, Remove
			},
		}))
	}

	waitFor(t, 3*time.Second, func() bool { return completed.Load() == spawns })
	require.True(t, seenWorkers[1].Load(), "ScheduleAll task must execute on its resource's home worker")
	require.False(t, seenWorkers[0].Load())
	require.False(t, seenWorkers[2].Load())
	require.False(t, seenWorkers[3].Load())
}

func TestWorkStealingDrainsAnOverloadedWorker(t *testing.T) {
	rt := newTestRuntime(t, 4)

	const n = 400
	var completed atomic.Int64
	for i := 0; i < n; i++ {
		require.NoError(t, rt.Spawn(0, &Task{
			Body: func(ctx *Context) (*Task, Result) {
				completed.Add(1)
				return nil, Remove
			},
		}))
	}

	waitFor(t, 3*time.Second, func() bool { return completed.Load() == n })

	stats := rt.Stats()
	var otherWorkersRan bool
	for _, w := range stats.Workers[1:] {
		if w.TasksExecuted > 0 {
			otherWorkersRan = true
		}
	}
	require.True(t, otherWorkersRan, "tasks spawned entirely on worker 0 should be stolen by idle peers")
}

func TestPanicRecoveryDropsTaskInstead(t *testing.T) {
	rt := New(Config{WorkerCount: 1, BlockSize: 1 << 16, MaintenanceInterval: 4, RecoverTaskPanics: true}, testTopology(1))
	require.NoError(t, rt.Start())
	defer func() {
		rt.Stop()
		require.NoError(t, rt.Release())
	}()

	require.NoError(t, rt.Spawn(0, &Task{
		Body: func(ctx *Context) (*Task, Result) {
			panic("boom")
		},
	}))

	var ran atomic.Bool
	require.NoError(t, rt.Spawn(0, &Task{
		Body: func(ctx *Context) (*Task, Result) {
			ran.Store(true)
			return nil, Remove
		},
	}))

	waitFor(t, time.Second, ran.Load)
	waitFor(t, time.Second, func() bool { return rt.Stats().TaskPanicsTotal == 1 })
}

func TestContinuationChainsThroughSucceed(t *testing.T) {
	rt := newTestRuntime(t, 1)

	var second atomic.Bool
	first := &Task{
		Body: func(ctx *Context) (*Task, Result) {
			return &Task{
				Body: func(ctx *Context) (*Task, Result) {
					second.Store(true)
					return nil, Remove
				},
			}, SucceedAndRemove
		},
	}
	require.NoError(t, rt.Spawn(0, first))
	waitFor(t, time.Second, second.Load)
}
