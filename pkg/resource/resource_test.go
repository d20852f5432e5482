package resource

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/khryptorgraphics/mxtasking/pkg/memory/alloc"
	"github.com/khryptorgraphics/mxtasking/pkg/tagged"
)

type point struct {
	X, Y int64
}

func newTestBuilder(workers int) (*Builder, *alloc.Allocator) {
	nodes := make([]int, workers)
	a := alloc.New(nodes, 1<<20)
	return NewBuilder(a, nodes), a
}

func TestBuildRoundTripsValue(t *testing.T) {
	b, a := newTestBuilder(4)
	defer a.Release()

	p, err := Build(b, 0, New(), point{X: 3, Y: 4})
	require.NoError(t, err)
	require.False(t, p.IsNull())

	got := Value[point](p)
	require.Equal(t, int64(3), got.X)
	require.Equal(t, int64(4), got.Y)
}

func TestSelectPrimitiveTable(t *testing.T) {
	cases := []struct {
		name string
		ann  Annotation
		want tagged.Primitive
	}{
		{"none", New().WithIsolation(IsolationNone), tagged.None},
		{"exclusive-default", New().WithIsolation(IsolationExclusive), tagged.ScheduleAll},
		{"exclusive-latch", New().WithIsolation(IsolationExclusive).WithProtocol(ProtocolLatch), tagged.ExclusiveLatch},
		{"exclusive-batched", New().WithIsolation(IsolationExclusive).WithProtocol(ProtocolBatched), tagged.Batched},
		{"exclusive-rtm", New().WithIsolation(IsolationExclusive).WithProtocol(ProtocolRTM), tagged.RTM},
		{"writer-default", New().WithIsolation(IsolationExclusiveWriter), tagged.ScheduleWriter},
		{"writer-olfit", New().WithIsolation(IsolationExclusiveWriter).WithProtocol(ProtocolOLFIT), tagged.OLFIT},
		{
			"writer-rw-latch",
			New().WithIsolation(IsolationExclusiveWriter).WithProtocol(ProtocolLatch).WithReadWriteRatio(MostlyRead),
			tagged.ReaderWriterLatch,
		},
		{
			"writer-optimistic",
			New().WithIsolation(IsolationExclusiveWriter).WithReadWriteRatio(HeavyRead),
			tagged.Optimistic,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, selectPrimitive(tc.ann))
		})
	}
}

func TestBuildHonorsExplicitWorker(t *testing.T) {
	b, a := newTestBuilder(4)
	defer a.Release()

	p, err := Build(b, 0, New().WithWorker(2), point{X: 1, Y: 1})
	require.NoError(t, err)
	require.Equal(t, uint16(2), p.WorkerID())
}

func TestBuildRejectsOutOfRangeWorker(t *testing.T) {
	b, a := newTestBuilder(2)
	defer a.Release()

	_, err := Build(b, 0, New().WithWorker(9), point{})
	require.Error(t, err)
}

func TestExcessiveFrequencySpreadsAcrossWorkers(t *testing.T) {
	b, a := newTestBuilder(3)
	defer a.Release()

	homes := make(map[uint16]int)
	for i := 0; i < 30; i++ {
		p, err := Build(b, 0, New().WithFrequency(FrequencyExcessive), point{})
		require.NoError(t, err)
		homes[p.WorkerID()]++
	}
	// With the single most-loaded worker dropped each round, no worker
	// should end up starved entirely given an even multiple of workers.
	require.Len(t, homes, 3)
}

func TestDestroyReturnsMemoryToOwner(t *testing.T) {
	b, a := newTestBuilder(2)
	defer a.Release()

	p, err := Build(b, 0, New().WithWorker(0), point{X: 7, Y: 8})
	require.NoError(t, err)

	require.NoError(t, Destroy[point](a, p.WorkerID(), p))
	allocated, freed := a.Heap(0).Stats()
	require.EqualValues(t, 1, allocated)
	require.EqualValues(t, 1, freed)
}

func TestScopedExclusiveLatchRoundTrip(t *testing.T) {
	b, a := newTestBuilder(1)
	defer a.Release()

	p, err := Build(b, 0, New().WithIsolation(IsolationExclusive).WithProtocol(ProtocolLatch), point{})
	require.NoError(t, err)

	s := SyncOf[point](p)
	unlock := ScopedExclusive(s)
	unlock()
}

func TestOptimisticVersionAdvancesOnWrite(t *testing.T) {
	s := newSync(tagged.Optimistic)
	v0 := s.BeginOptimisticRead()
	require.True(t, s.EndOptimisticRead(v0))

	writeStart := s.BeginOptimisticWrite()
	require.False(t, s.EndOptimisticRead(v0), "version must look unstable to readers while a writer is in flight")
	s.EndOptimisticWrite(writeStart)

	require.False(t, s.EndOptimisticRead(v0), "a concurrent write must invalidate a reader's earlier snapshot")
}
