package dataflow

import "sync/atomic"

// Pipeline groups an ordered chain of nodes, each wired as its
// predecessor's successor, and shares one finalization-barrier counter
// across every worker that contributed to the pipeline. Tokens still
// pass between consecutive stages through the graph's Emit, which
// spawns a new task for every token.
type Pipeline[T any] struct {
	nodes []Node[T]

	finalizationBarrier atomic.Int32
}

// NewPipeline creates an empty pipeline with room for a handful of
// stages, the same reserve-up-front sizing the original applies.
func NewPipeline[T any]() *Pipeline[T] {
	return &Pipeline[T]{nodes: make([]Node[T], 0, 16)}
}

// Emplace appends node as the pipeline's next stage, wiring it as the
// predecessor's successor when one already exists.
func (p *Pipeline[T]) Emplace(node Node[T]) {
	if n := len(p.nodes); n > 0 {
		p.nodes[n-1].SetOut(node)
		node.AddIn(p.nodes[n-1])
	}
	p.nodes = append(p.nodes, node)
}

// Nodes returns the pipeline's stages in order.
func (p *Pipeline[T]) Nodes() []Node[T] { return p.nodes }

// First/Last expose the pipeline's entry and exit stages, used by the
// graph to wire cross-pipeline edges and to kick off production.
func (p *Pipeline[T]) First() Node[T] {
	if len(p.nodes) == 0 {
		return nil
	}
	return p.nodes[0]
}

func (p *Pipeline[T]) Last() Node[T] {
	if len(p.nodes) == 0 {
		return nil
	}
	return p.nodes[len(p.nodes)-1]
}

// FinalizationBarrierCounter exposes the shared per-pipeline counter
// for barrier tasks spawned on behalf of any of its nodes.
func (p *Pipeline[T]) FinalizationBarrierCounter() *atomic.Int32 {
	return &p.finalizationBarrier
}
