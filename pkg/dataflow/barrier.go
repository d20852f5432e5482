package dataflow

import (
	"sync/atomic"

	"github.com/khryptorgraphics/mxtasking/pkg/tasking"
)

// SpawnFinalizationBarrier enqueues a barrier task on workerID. Graph's
// parallel producer path spawns one per worker's producer task, after
// that task has emitted its tokens. Once every such barrier has run
// (counter reaches zero), the last one to arrive tells the graph to
// finalize node, which propagates completion to node's successor. For a
// node in a registered pipeline the counter is the pipeline-wide
// Pipeline.FinalizationBarrierCounter, seeded with the runtime's worker
// count.
func SpawnFinalizationBarrier[T any](rt *tasking.Runtime, workerID uint16, counter *atomic.Int32, graph Emitter[T], node Node[T]) error {
	return rt.Spawn(workerID, &tasking.Task{
		Priority: tasking.PriorityHigh,
		Body: func(ctx *tasking.Context) (*tasking.Task, tasking.Result) {
			if counter.Add(-1) == 0 {
				graph.Finalize(ctx.WorkerID(), node)
			}
			return nil, tasking.Remove
		},
	})
}
