package dataflow

// Emitter is the callback surface a Node uses to push data onward, and
// to signal that it has no more data to push. The Graph is the only
// implementation; it exists as an interface so a Node's own code never
// depends on Graph directly.
type Emitter[T any] interface {
	Emit(workerID uint16, node Node[T], token Token[T])
	Finalize(workerID uint16, node Node[T])
	Interrupt()
	ForEachNode(fn func(Node[T]))
}

// Node is one stage of a dataflow graph. Consume is called once per
// token a predecessor emits; InCompleted is called once per predecessor
// that finalizes, so a node with multiple inputs (a join) can tell when
// every side has arrived.
type Node[T any] interface {
	Out() Node[T]
	SetOut(n Node[T])
	AddIn(n Node[T])
	In() []Node[T]

	Annotation() *Annotation[T]

	Consume(workerID uint16, emitter Emitter[T], token Token[T])
	InCompleted(workerID uint16, emitter Emitter[T], completed Node[T])

	// Name identifies the node for tracing and the admin surface; it
	// need not be unique, but should be stable for a given plan shape.
	Name() string
}

// BaseNode implements the bookkeeping every Node shares (successor,
// predecessors, annotation), leaving Consume/InCompleted/Name to the
// embedding type — mirroring how the original's NodeInterface carries
// default storage for _out/_in/_annotation while leaving consume()
// and in_completed() pure virtual.
type BaseNode[T any] struct {
	name       string
	out        Node[T]
	in         []Node[T]
	annotation Annotation[T]
}

func NewBaseNode[T any](name string, annotation Annotation[T]) BaseNode[T] {
	return BaseNode[T]{name: name, annotation: annotation}
}

func (n *BaseNode[T]) Name() string             { return n.name }
func (n *BaseNode[T]) Out() Node[T]             { return n.out }
func (n *BaseNode[T]) SetOut(next Node[T])      { n.out = next }
func (n *BaseNode[T]) AddIn(pred Node[T])       { n.in = append(n.in, pred) }
func (n *BaseNode[T]) In() []Node[T]            { return n.in }
func (n *BaseNode[T]) Annotation() *Annotation[T] { return &n.annotation }
