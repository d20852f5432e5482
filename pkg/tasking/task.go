// Package tasking implements the worker runtime: pinned worker
// goroutines, per-worker priority queues, NUMA-aware work stealing,
// prefetching ahead of the queue, and the dispatch rules that route a
// task according to the synchronization primitive tagged on the
// resource it targets.
package tasking

import (
	"github.com/khryptorgraphics/mxtasking/pkg/tagged"
)

// Result tells the runtime what to do with a task after its body runs.
type Result uint8

const (
	// Remove drops the task without rescheduling; used for one-shot work.
	Remove Result = iota
	// Succeed reschedules the task's continuation (set via SetNext)
	// without removing the task's own resource spawn slot.
	Succeed
	// SucceedAndRemove runs the task's continuation, if any, and then
	// drops the task itself.
	SucceedAndRemove
	// StopWorker asks the worker executing this task to shut down after
	// the current task finishes.
	StopWorker
)

// Task is a unit of schedulable work. Body runs with the resource's
// synchronization discipline already applied (the dispatcher acquires
// whatever latch the resource's primitive calls for before invoking
// Body, and releases it after). A task that wants to chain more work
// returns a non-nil *Task from Body; the runtime enqueues it as the
// continuation according to Result.
type Task struct {
	// Resource is the tagged pointer this task operates on. A zero
	// (Null) Resource means the task carries no synchronization
	// requirement and may run on whichever worker dequeues it (used for
	// stateless work like a dataflow barrier).
	Resource tagged.Ptr

	// Priority selects which of a worker's queues the task enters; 0 is
	// highest priority.
	Priority uint8

	// Annotated is true when this task's source resource requires
	// read-only optimistic access — used by the dispatcher to decide
	// whether to take the resource's writer latch before running Body.
	Annotated bool

	// Body is the task's executable work. It returns the next task to
	// run as part of the same spawn (or nil) and the Result telling the
	// runtime what to do with both.
	Body func(ctx *Context) (*Task, Result)

	next       *Task
	remoteNext *Task
}

// stealable reports whether t may be taken by a peer worker via work
// stealing. A task whose resource carries a home-bound primitive
// (ScheduleAll, ScheduleWriter, Batched) must execute on that
// resource's home worker — it may still sit in that worker's own
// local queue (enqueueLocal/enqueueRemote route it there), but a thief
// must never pop it off the tail.
func (t *Task) stealable() bool {
	return t.Resource.IsNull() || !t.Resource.Primitive().IsHomeBound()
}

// SetNext attaches a fallback continuation: when Body returns Succeed
// or SucceedAndRemove with a nil task, the runtime spawns n in its
// place, through the normal queues like any other continuation.
func (t *Task) SetNext(n *Task) { t.next = n }

// PriorityCount is the number of distinct priority queues each worker
// maintains. Matches the task runtime's three-level scheme: latency
// sensitive, normal, and background maintenance work.
const PriorityCount = 3

const (
	PriorityHigh    uint8 = 0
	PriorityNormal  uint8 = 1
	PriorityBackground uint8 = 2
)
