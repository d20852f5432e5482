package tasking

import (
	"github.com/khryptorgraphics/mxtasking/pkg/memory/alloc"
	"github.com/khryptorgraphics/mxtasking/pkg/memory/reclamation"
	"github.com/khryptorgraphics/mxtasking/pkg/resource"
)

// Context is passed to every Task.Body invocation, giving it access to
// the executing worker's identity and the runtime's shared services
// without a global.
type Context struct {
	workerID uint16
	numaNode int
	runtime  *Runtime
}

func (c *Context) WorkerID() uint16 { return c.workerID }
func (c *Context) NUMANode() int    { return c.numaNode }

// Spawn enqueues t on its resource's home worker when the resource
// carries a home-bound primitive, or on the calling worker otherwise.
// It is the only way task code should create new work; direct queue
// access is runtime-internal.
func (c *Context) Spawn(t *Task) error {
	return c.runtime.spawn(c.workerID, t)
}

// Allocator exposes the worker-local allocator for task bodies that
// build or destroy resources mid-execution.
func (c *Context) Allocator() *alloc.Allocator { return c.runtime.allocator }

// Builder exposes the resource builder for task bodies that construct
// new resources.
func (c *Context) Builder() *resource.Builder { return c.runtime.builder }

// Epochs exposes the reclamation manager so task bodies can Retire a
// resource they just logically removed, or bracket an optimistic read
// with Enter/ExitCriticalSection.
func (c *Context) Epochs() *reclamation.Manager { return c.runtime.epochs }
