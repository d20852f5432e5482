package dataflow

import (
	"sync/atomic"

	"github.com/khryptorgraphics/mxtasking/pkg/tasking"
)

// SpawnReduceTree combines values pairwise across ceil(log2(len(values)))
// levels of tasks instead of funneling every worker's partial result
// through a single combine point. Each level's combine tasks run
// concurrently with each other; a level only starts once every combine
// task in the level below it has completed. The final value is sent on
// the returned channel, which is closed immediately after.
func SpawnReduceTree[T any](rt *tasking.Runtime, workerID uint16, values []T, reducer Reducer[T]) <-chan T {
	result := make(chan T, 1)

	if len(values) == 0 {
		close(result)
		return result
	}

	var step func(level []T)
	step = func(level []T) {
		if len(level) == 1 {
			result <- level[0]
			close(result)
			return
		}

		pairs := (len(level) + 1) / 2
		next := make([]T, pairs)
		var pending atomic.Int32
		pending.Store(int32(pairs))

		for i := 0; i < pairs; i++ {
			i := i
			if 2*i+1 >= len(level) {
				// Odd one out at this level carries forward unchanged.
				next[i] = level[2*i]
				if pending.Add(-1) == 0 {
					step(next)
				}
				continue
			}

			a, b := level[2*i], level[2*i+1]
			task := &tasking.Task{
				Priority: tasking.PriorityHigh,
				Body: func(ctx *tasking.Context) (*tasking.Task, tasking.Result) {
					next[i] = reducer(a, b)
					if pending.Add(-1) == 0 {
						step(next)
					}
					return nil, tasking.Remove
				},
			}
			if err := rt.Spawn(workerID, task); err != nil {
				// Scheduling can only fail for an out-of-range worker id,
				// a caller bug; run the combine inline rather than lose
				// the value.
				next[i] = reducer(a, b)
				if pending.Add(-1) == 0 {
					step(next)
				}
			}
		}
	}

	step(values)
	return result
}
