package dataflow

import (
	"fmt"
	"sync/atomic"

	"github.com/khryptorgraphics/mxtasking/pkg/tasking"
)

// pipelineState tracks one registered Pipeline's place in the graph's
// dependency DAG: which pipelines it waits on, which pipelines wait on
// it, how many of its own dependencies are still outstanding, and the
// preparatory tasks that must finish before its first node starts.
type pipelineState[T any] struct {
	pipeline  *Pipeline[T]
	dependsOn []*pipelineState[T]
	waiters   []*pipelineState[T]

	remaining   atomic.Int32
	started     atomic.Bool
	preparatory []*tasking.Task
}

// Graph owns every node in a compiled plan and implements Emitter,
// routing emitted tokens into consume tasks on the runtime and
// propagating finalization from a node to its successor. It also owns
// the pipeline dependency DAG: pipelines added via AddPipeline don't
// start producing until every pipeline they depend on (via
// MakeDependency) has finalized.
type Graph[T any] struct {
	rt        *tasking.Runtime
	nodes     []Node[T]
	pipelines []*pipelineState[T]

	interrupted atomic.Bool
}

// NewGraph creates an empty graph driven by rt.
func NewGraph[T any](rt *tasking.Runtime) *Graph[T] {
	return &Graph[T]{rt: rt}
}

// Register adds node to the graph's node registry, which ForEachNode
// enumerates.
func (g *Graph[T]) Register(node Node[T]) {
	g.nodes = append(g.nodes, node)
}

func (g *Graph[T]) ForEachNode(fn func(Node[T])) {
	for _, n := range g.nodes {
		fn(n)
	}
}

// MakeEdge wires from as a predecessor of to for data flow: to
// consumes every token from emitted by from, and sees from's
// finalization via InCompleted. This is the same wiring Pipeline.Emplace
// performs between consecutive stages of one pipeline; MakeEdge exposes
// it directly for nodes that aren't grouped into a Pipeline together.
func (g *Graph[T]) MakeEdge(from, to Node[T]) {
	from.SetOut(to)
	to.AddIn(from)
}

// AddPipeline registers every node of p with the graph and starts
// tracking p's place in the dependency DAG. p has no unmet dependencies
// until MakeDependency says otherwise, so StartGraph will start it
// immediately unless a later MakeDependency call changes that.
func (g *Graph[T]) AddPipeline(p *Pipeline[T]) *Pipeline[T] {
	for _, n := range p.Nodes() {
		g.Register(n)
	}
	g.pipelines = append(g.pipelines, &pipelineState[T]{pipeline: p})
	return p
}

func (g *Graph[T]) stateFor(p *Pipeline[T]) *pipelineState[T] {
	for _, ps := range g.pipelines {
		if ps.pipeline == p {
			return ps
		}
	}
	return nil
}

// reaches reports whether from's dependency chain already reaches to,
// i.e. whether from already (transitively) depends on to.
func reaches[T any](from, to *pipelineState[T]) bool {
	if from == to {
		return true
	}
	for _, d := range from.dependsOn {
		if reaches(d, to) {
			return true
		}
	}
	return false
}

// MakeDependency declares that waiter must not start producing until
// waitedOn has finalized. Both pipelines must already have been added
// via AddPipeline. Because a Pipeline's own stages are always wired
// explicitly through Emplace, a dependency cycle can only arise across
// pipeline boundaries; MakeDependency rejects one rather than silently
// splitting a pipeline to break it, since there is no implicit pipeline
// boundary here left to split.
func (g *Graph[T]) MakeDependency(waiter, waitedOn *Pipeline[T]) error {
	ws := g.stateFor(waiter)
	ds := g.stateFor(waitedOn)
	if ws == nil || ds == nil {
		return fmt.Errorf("dataflow: MakeDependency: both pipelines must be added to the graph first")
	}
	if ws == ds {
		return fmt.Errorf("dataflow: MakeDependency: a pipeline cannot depend on itself")
	}
	if reaches(ds, ws) {
		return fmt.Errorf("dataflow: MakeDependency: %q -> %q would create a dependency cycle", waiter.Last().Name(), waitedOn.Last().Name())
	}

	ws.dependsOn = append(ws.dependsOn, ds)
	ds.waiters = append(ds.waiters, ws)
	ws.remaining.Add(1)
	return nil
}

// AddPreparatory queues tasks to run before p's first node starts
// producing; StartGraph (or a dependency becoming satisfied) won't
// start p's production until every preparatory task has completed.
func (g *Graph[T]) AddPreparatory(p *Pipeline[T], tasks []*tasking.Task) error {
	ps := g.stateFor(p)
	if ps == nil {
		return fmt.Errorf("dataflow: AddPreparatory: pipeline not added to this graph")
	}
	ps.preparatory = append(ps.preparatory, tasks...)
	return nil
}

// StartGraph starts every registered pipeline that has no unmet
// dependency. Pipelines gated behind a MakeDependency edge start later,
// as their dependencies finalize.
func (g *Graph[T]) StartGraph(workerID uint16) error {
	for _, ps := range g.pipelines {
		if ps.remaining.Load() == 0 {
			if err := g.startPipelineNow(workerID, ps); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Graph[T]) startPipelineNow(workerID uint16, ps *pipelineState[T]) error {
	if !ps.started.CompareAndSwap(false, true) {
		return nil
	}
	if len(ps.preparatory) == 0 {
		return g.Start(workerID, ps.pipeline.First())
	}

	remaining := &atomic.Int32{}
	remaining.Store(int32(len(ps.preparatory)))
	for _, task := range ps.preparatory {
		task := task
		body := task.Body
		task.Body = func(ctx *tasking.Context) (*tasking.Task, tasking.Result) {
			next, result := body(ctx)
			if remaining.Add(-1) == 0 {
				_ = g.Start(ctx.WorkerID(), ps.pipeline.First())
			}
			return next, result
		}
		if err := g.rt.Spawn(workerID, task); err != nil {
			return err
		}
	}
	return nil
}

// completePipeline is called once ps's last node has finalized; it
// releases any waiter whose last outstanding dependency was ps.
func (g *Graph[T]) completePipeline(workerID uint16, ps *pipelineState[T]) {
	for _, waiter := range ps.waiters {
		if waiter.remaining.Add(-1) == 0 {
			_ = g.startPipelineNow(workerID, waiter)
		}
	}
}

// Interrupt stops the graph from scheduling any further consume or
// producing tasks; already-spawned tasks still run to completion.
func (g *Graph[T]) Interrupt() {
	g.interrupted.Store(true)
}

// Emit spawns a consume task for node's successor, honoring a token's
// preferred worker when it carries one, otherwise keeping the
// continuation on the emitting worker to avoid an unnecessary hop.
func (g *Graph[T]) Emit(workerID uint16, node Node[T], token Token[T]) {
	if g.interrupted.Load() {
		return
	}
	out := node.Out()
	if out == nil {
		return
	}

	target := workerID
	if token.HasPreferredWorker {
		target = token.PreferredWorker
	}

	_ = g.rt.Spawn(target, &tasking.Task{
		Body: func(ctx *tasking.Context) (*tasking.Task, tasking.Result) {
			out.Consume(ctx.WorkerID(), g, token)
			return nil, tasking.Remove
		},
	})
}

// Finalize notifies node's successor that node has no more data to
// produce, and — if node is the last stage of a registered pipeline —
// releases any pipeline waiting on it via MakeDependency. A join-shaped
// successor (more than one predecessor) decides for itself, in
// InCompleted, whether every side has now arrived.
func (g *Graph[T]) Finalize(workerID uint16, node Node[T]) {
	if out := node.Out(); out != nil {
		out.InCompleted(workerID, g, node)
	}
	for _, ps := range g.pipelines {
		if ps.pipeline.Last() == node {
			g.completePipeline(workerID, ps)
		}
	}
}

// Start kicks off node's producer according to its annotation:
// sequential producers run as a single task looping Generate until it
// returns no more tokens; parallel producers run once per worker, each
// partition finishing with its own finalization barrier task, the last
// one to arrive triggering the node's own Finalize.
func (g *Graph[T]) Start(workerID uint16, node Node[T]) error {
	ann := node.Annotation()
	if !ann.IsProducing() {
		return fmt.Errorf("dataflow: node %q has no producer annotation", node.Name())
	}
	gen := ann.Generator()

	if ann.IsParallel() {
		return g.startParallel(workerID, node, gen)
	}
	return g.startSequential(workerID, node, gen)
}

func (g *Graph[T]) startSequential(workerID uint16, node Node[T], gen TokenGenerator[T]) error {
	return g.rt.Spawn(workerID, &tasking.Task{
		Body: func(ctx *tasking.Context) (*tasking.Task, tasking.Result) {
			for {
				if g.interrupted.Load() {
					break
				}
				batch := gen.Generate(ctx.WorkerID())
				if len(batch) == 0 {
					break
				}
				for _, tok := range batch {
					g.Emit(ctx.WorkerID(), node, tok)
				}
			}
			g.Finalize(ctx.WorkerID(), node)
			return nil, tasking.Remove
		},
	})
}

// barrierCounter returns the counter SpawnFinalizationBarrier should
// decrement for node: the owning pipeline's shared counter when node
// belongs to one (pre-seeded to workers, matching
// Pipeline.FinalizationBarrierCounter's documented contract), or a
// freshly allocated one otherwise.
func (g *Graph[T]) barrierCounter(node Node[T], workers int) *atomic.Int32 {
	for _, ps := range g.pipelines {
		for _, n := range ps.pipeline.Nodes() {
			if n == node {
				c := ps.pipeline.FinalizationBarrierCounter()
				c.Store(int32(workers))
				return c
			}
		}
	}
	c := &atomic.Int32{}
	c.Store(int32(workers))
	return c
}

func (g *Graph[T]) startParallel(workerID uint16, node Node[T], gen TokenGenerator[T]) error {
	workers := g.rt.WorkerCount()
	if workers == 0 {
		return fmt.Errorf("dataflow: runtime has no workers")
	}

	counter := g.barrierCounter(node, workers)

	for w := 0; w < workers; w++ {
		w := uint16(w)
		err := g.rt.Spawn(w, &tasking.Task{
			Body: func(ctx *tasking.Context) (*tasking.Task, tasking.Result) {
				for _, tok := range gen.Generate(w) {
					g.Emit(w, node, tok)
				}
				_ = SpawnFinalizationBarrier(g.rt, ctx.WorkerID(), counter, g, node)
				return nil, tasking.Remove
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}
