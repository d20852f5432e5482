// Package dataflow implements the graph of producing and consuming
// nodes a compiled query plan is expressed as: nodes connected by
// edges and grouped into pipelines. A producing node runs either as one
// sequential task or as one task per worker, each ending in a
// finalization barrier; SpawnReduceTree combines worker-local results
// in a logarithmic-depth reduce tree.
package dataflow

// Token carries one unit of data flowing along an edge between two
// nodes, plus an optional resource-placement hint a node's emit call
// can attach so the consuming task is scheduled close to the data.
type Token[T any] struct {
	Data T

	// PreferredWorker, when HasPreferredWorker is true, steers the
	// consuming task to a specific worker (e.g. "run this close to the
	// resource that produced it") independent of any resource the task
	// itself later touches.
	PreferredWorker    uint16
	HasPreferredWorker bool
}

// NewToken wraps data with no placement hint.
func NewToken[T any](data T) Token[T] { return Token[T]{Data: data} }

// WithWorker attaches a preferred worker to a token, returning the
// modified copy.
func (t Token[T]) WithWorker(workerID uint16) Token[T] {
	t.PreferredWorker = workerID
	t.HasPreferredWorker = true
	return t
}
