package tasking

import (
	"fmt"

	"github.com/khryptorgraphics/mxtasking/pkg/resource"
	"github.com/khryptorgraphics/mxtasking/pkg/tagged"
)

// dispatch runs t.Body under the synchronization discipline its
// resource (if any) is tagged with, then acts on the returned Result.
// ScheduleAll/ScheduleWriter/Batched resources are expected to already
// be running on their home worker by the time dispatch sees them — the
// runtime's spawn routing (runtime.go) guarantees that — so dispatch
// itself only needs to pick the right latch, never re-route.
func dispatch(w *worker, t *Task) {
	if t.Resource.IsNull() {
		runBody(w, t)
		return
	}

	switch t.Resource.Primitive() {
	case tagged.None:
		runBody(w, t)

	case tagged.ScheduleAll, tagged.Batched:
		// Spawn routing and stealable() keep every such task on the
		// resource's home worker, which runs one task at a time, so the
		// body already has exclusive access without a latch.
		runBody(w, t)

	case tagged.RTM:
		// RTM resources never get a hardware transaction in this
		// runtime; every RTM-tagged resource takes the exclusive latch,
		// the same fallback path a real aborted transaction would take.
		s := resource.SyncAt(t.Resource.Addr())
		unlock := resource.ScopedExclusive(s)
		runBody(w, t)
		unlock()

	case tagged.ScheduleWriter:
		s := resource.SyncAt(t.Resource.Addr())
		unlock := resource.ScopedWriter(s)
		runBody(w, t)
		unlock()

	case tagged.ExclusiveLatch:
		s := resource.SyncAt(t.Resource.Addr())
		unlock := resource.ScopedExclusive(s)
		runBody(w, t)
		unlock()

	case tagged.ReaderWriterLatch:
		s := resource.SyncAt(t.Resource.Addr())
		if t.Annotated {
			unlock := resource.ScopedReader(s)
			runBody(w, t)
			unlock()
		} else {
			unlock := resource.ScopedWriter(s)
			runBody(w, t)
			unlock()
		}

	case tagged.Optimistic, tagged.OLFIT:
		runOptimistic(w, t)

	default:
		runBody(w, t)
	}
}

// runOptimistic executes a read task without blocking a concurrent
// writer, bracketed by the epoch manager so any resource the task
// observes cannot be reclaimed mid-read, and re-executes the body in
// place until the resource's version is unchanged across one run. A
// writer task (Annotated false, matching the ReaderWriterLatch branch
// above) on an Optimistic/OLFIT resource instead takes the version-based
// write lock directly; a writer on another worker waits in
// BeginOptimisticWrite's compare-and-swap loop until the version is even
// again, so no retry loop is needed there.
func runOptimistic(w *worker, t *Task) {
	s := resource.SyncAt(t.Resource.Addr())

	if !t.Annotated {
		start := s.BeginOptimisticWrite()
		runBody(w, t)
		s.EndOptimisticWrite(start)
		return
	}

	w.rt.epochs.EnterCriticalSection(w.id)
	defer w.rt.epochs.ExitCriticalSection(w.id)

	// invokeBody must not be committed (continuation spawn, StopWorker,
	// panic-recovery bookkeeping) until a read is validated: an
	// unvalidated attempt may have observed torn data, and committing
	// its result anyway would spawn a continuation built from that torn
	// read, possibly more than once across retries. commitResult is
	// therefore called only for the one attempt whose read validated.
	for {
		v := s.BeginOptimisticRead()
		next, result := invokeBody(w, t)
		if s.EndOptimisticRead(v) {
			commitResult(w, t, next, result)
			return
		}
	}
}

// runBody invokes the task's body, recovering a panic into a no-op
// result when the runtime is configured to do so, and immediately
// commits the returned continuation per Result. Used by every dispatch
// path except the optimistic-read retry loop, which must defer the
// commit until a read is validated (see runOptimistic).
func runBody(w *worker, t *Task) {
	next, result := invokeBody(w, t)
	commitResult(w, t, next, result)
}

// invokeBody runs t.Body once, recovering a panic into a Remove result
// when the runtime is configured to do so, without committing any of
// its effects.
func invokeBody(w *worker, t *Task) (*Task, Result) {
	ctx := &Context{workerID: w.id, numaNode: w.numaNode, runtime: w.rt}

	var next *Task
	var result Result

	if w.rt.config.RecoverTaskPanics {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.rt.onTaskPanic(w.id, fmt.Errorf("task panic: %v", r))
					result = Remove
				}
			}()
			next, result = t.Body(ctx)
		}()
	} else {
		next, result = t.Body(ctx)
	}
	return next, result
}

// commitResult chains the task's continuation per result: Succeed and
// SucceedAndRemove spawn next (falling back to the task's own SetNext
// continuation when Body didn't return one), StopWorker asks this
// worker to shut down after the current task, Remove does nothing.
func commitResult(w *worker, t *Task, next *Task, result Result) {
	if next == nil {
		next = t.next
	}

	switch result {
	case Remove:
		return
	case StopWorker:
		w.rt.stopOne(w.id)
		return
	case Succeed, SucceedAndRemove:
		if next != nil {
			_ = w.rt.spawn(w.id, next)
		}
	}
}
