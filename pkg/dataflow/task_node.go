package dataflow

import (
	"sync/atomic"

	"github.com/khryptorgraphics/mxtasking/pkg/tasking"
)

// DataTask is the per-token work a TaskNode spawns a task for.
type DataTask[T any] func(workerID uint16, node Node[T], emitter Emitter[T], token Token[T])

// TaskNode is a ready-to-use Node that spawns one tasking.Task per
// incoming token to run fn, and — for join-shaped nodes with more than
// one predecessor — only finalizes itself once every predecessor has
// reported completion. This implements the FinalizeSequential
// discipline (count predecessors, not workers). A node annotated
// FinalizeParallel or FinalizeReduce should pair a custom Node
// implementation with SpawnFinalizationBarrier or SpawnReduceTree
// instead of relying on TaskNode's predecessor count.
type TaskNode[T any] struct {
	BaseNode[T]

	rt *tasking.Runtime
	fn DataTask[T]

	expectedIns  int32
	completedIns atomic.Int32
}

// NewTaskNode creates a TaskNode named name, driven by rt, running fn
// for every token it consumes.
func NewTaskNode[T any](rt *tasking.Runtime, name string, annotation Annotation[T], fn DataTask[T]) *TaskNode[T] {
	return &TaskNode[T]{
		BaseNode: NewBaseNode(name, annotation),
		rt:       rt,
		fn:       fn,
	}
}

// AddIn overrides BaseNode.AddIn to also count the predecessor, so
// InCompleted knows how many arrivals to wait for.
func (n *TaskNode[T]) AddIn(pred Node[T]) {
	n.expectedIns++
	n.BaseNode.AddIn(pred)
}

// Consume spawns a task running fn against token, steering it to the
// token's preferred worker when it has one.
func (n *TaskNode[T]) Consume(workerID uint16, emitter Emitter[T], token Token[T]) {
	target := workerID
	if token.HasPreferredWorker {
		target = token.PreferredWorker
	}

	fn := n.fn
	var self Node[T] = n
	_ = n.rt.Spawn(target, &tasking.Task{
		Body: func(ctx *tasking.Context) (*tasking.Task, tasking.Result) {
			fn(ctx.WorkerID(), self, emitter, token)
			return nil, tasking.Remove
		},
	})
}

// InCompleted counts one more finished predecessor, finalizing this
// node once every predecessor declared via AddIn has reported in. A
// node with no declared predecessors (a root producer with, unusually,
// a predecessor notification) finalizes immediately rather than
// waiting forever.
func (n *TaskNode[T]) InCompleted(workerID uint16, emitter Emitter[T], _ Node[T]) {
	if n.expectedIns == 0 || n.completedIns.Add(1) >= n.expectedIns {
		emitter.Finalize(workerID, n)
	}
}
