package dataflow

import "github.com/khryptorgraphics/mxtasking/pkg/tagged"

// FinalizationType labels how a node's work is finalized. The Annotation
// stores it and returns it from FinalizationType(), but the graph does
// not read it: Graph.Start picks a sequential or a parallel producer
// from IsParallel alone, and a reduce pass runs only where the caller
// invokes SpawnReduceTree itself.
type FinalizationType uint8

const (
	// FinalizeNone labels a node with no explicit finalization.
	FinalizeNone FinalizationType = iota
	// FinalizeSequential labels a node finalized by a single task.
	FinalizeSequential
	// FinalizeParallel labels a node whose producer runs on every
	// worker, each partition ending in its own finalization barrier.
	FinalizeParallel
	// FinalizeReduce labels a node whose worker-local partial results
	// are combined pairwise in a binary tree of depth
	// ceil(log2(workers)).
	FinalizeReduce
)

// TokenGenerator produces the tokens a producing node emits into the
// graph; Count reports how many tokens remain so the graph can decide
// how to fan work out across workers.
type TokenGenerator[T any] interface {
	Generate(workerID uint16) []Token[T]
	Count() uint64
}

// Reducer combines two partial results during a FinalizeReduce pass.
// It is supplied by the node, not the graph, since only the node knows
// how its own value type combines.
type Reducer[T any] func(a, b T) T

// Annotation carries a node's scheduling and finalization metadata.
type Annotation[T any] struct {
	isParallel bool
	generator  TokenGenerator[T]

	finalizationType FinalizationType
	finalizeSequence []tagged.Ptr
	reducer          Reducer[T]

	finalizesPipeline bool
	completionCheck   func() bool
}

// NewAnnotation returns an Annotation with FinalizeNone and no producer.
func NewAnnotation[T any]() Annotation[T] { return Annotation[T]{} }

func (a Annotation[T]) WithParallel(isParallel bool) Annotation[T] {
	a.isParallel = isParallel
	return a
}

func (a Annotation[T]) WithProducer(gen TokenGenerator[T]) Annotation[T] {
	a.generator = gen
	return a
}

func (a Annotation[T]) WithFinalization(t FinalizationType) Annotation[T] {
	a.finalizationType = t
	return a
}

func (a Annotation[T]) WithReducer(r Reducer[T]) Annotation[T] {
	a.reducer = r
	return a
}

func (a Annotation[T]) WithFinalizeSequence(resources []tagged.Ptr) Annotation[T] {
	a.finalizeSequence = resources
	return a
}

func (a Annotation[T]) WithFinalizesPipeline(v bool) Annotation[T] {
	a.finalizesPipeline = v
	return a
}

func (a Annotation[T]) WithCompletionCheck(fn func() bool) Annotation[T] {
	a.completionCheck = fn
	return a
}

func (a Annotation[T]) IsParallel() bool                { return a.isParallel }
func (a Annotation[T]) IsProducing() bool               { return a.generator != nil }
func (a Annotation[T]) Generator() TokenGenerator[T]     { return a.generator }
func (a Annotation[T]) FinalizationType() FinalizationType { return a.finalizationType }
func (a Annotation[T]) Reducer() Reducer[T]              { return a.reducer }
func (a Annotation[T]) FinalizeSequence() []tagged.Ptr   { return a.finalizeSequence }
func (a Annotation[T]) FinalizesPipeline() bool          { return a.finalizesPipeline }

func (a Annotation[T]) IsComplete() bool {
	if a.completionCheck == nil {
		return true
	}
	return a.completionCheck()
}
