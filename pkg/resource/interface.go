package resource

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/khryptorgraphics/mxtasking/pkg/tagged"
)

// Sync is embedded into every resource the builder constructs. It holds
// whichever concurrency-control state the selected primitive needs;
// fields unrelated to the active primitive simply sit unused, which
// costs a few words per resource in exchange for never needing a
// type switch on the synchronization kind at access time.
type Sync struct {
	primitive tagged.Primitive

	exclusive sync.Mutex   // ExclusiveLatch, RTM fallback
	rw        sync.RWMutex // ReaderWriterLatch
	version   atomic.Uint64 // Optimistic, OLFIT: even = stable, odd = writer in flight
}

func newSync(p tagged.Primitive) *Sync {
	return &Sync{primitive: p}
}

// Primitive reports which concurrency-control discipline this resource
// was built with.
func (s *Sync) Primitive() tagged.Primitive { return s.primitive }

// SyncAt reinterprets a tagged pointer's address as *Sync without
// knowing the resource's value type. This is safe because Build[T]
// always places Sync as the first field of container[T], at the same
// offset regardless of T, so the dispatcher can acquire and release the
// right latch purely from the tagged pointer's address and primitive
// tag, never needing the type parameter the resource was built with.
func SyncAt(addr unsafe.Pointer) *Sync {
	return (*Sync)(addr)
}

// LockExclusive acquires the resource for exclusive access, covering
// ExclusiveLatch and the RTM fallback (this
// runtime never attempts a hardware transaction; every RTM-tagged
// resource uses the same latch path as ExclusiveLatch).
func (s *Sync) LockExclusive() { s.exclusive.Lock() }

// UnlockExclusive releases a LockExclusive.
func (s *Sync) UnlockExclusive() { s.exclusive.Unlock() }

// LockWriter acquires the writer side of a ReaderWriterLatch or
// ScheduleWriter resource.
func (s *Sync) LockWriter() { s.rw.Lock() }

// UnlockWriter releases a LockWriter.
func (s *Sync) UnlockWriter() { s.rw.Unlock() }

// LockReader acquires the reader side of a ReaderWriterLatch resource.
func (s *Sync) LockReader() { s.rw.RLock() }

// UnlockReader releases a LockReader.
func (s *Sync) UnlockReader() { s.rw.RUnlock() }

// BeginOptimisticRead returns the current version stamp; a reader must
// re-validate against EndOptimisticRead before trusting anything it
// read between the two calls. If the returned version is odd, a writer
// is in flight and the caller should retry rather than read at all.
func (s *Sync) BeginOptimisticRead() uint64 {
	return s.version.Load()
}

// EndOptimisticRead reports whether the version is unchanged since
// startVersion, meaning the read the caller just performed is valid.
func (s *Sync) EndOptimisticRead(startVersion uint64) bool {
	return startVersion%2 == 0 && s.version.Load() == startVersion
}

// BeginOptimisticWrite marks the resource unstable (odd version) and
// returns the pre-write version for the matching EndOptimisticWrite
// call. Covers both Optimistic and OLFIT resources; OLFIT additionally
// expects readers to cross-check a parent link, which is a property of
// the resource's own fields, not of Sync.
func (s *Sync) BeginOptimisticWrite() uint64 {
	for {
		v := s.version.Load()
		if v%2 == 0 && s.version.CompareAndSwap(v, v+1) {
			return v
		}
	}
}

// EndOptimisticWrite publishes the write by advancing past the odd
// in-flight stamp back to an even, stable version.
func (s *Sync) EndOptimisticWrite(startVersion uint64) {
	s.version.Store(startVersion + 2)
}

// ScopedExclusive acquires the exclusive latch and returns a release
// function, letting call sites use `defer resource.ScopedExclusive(s)()`
// the way the teacher's codebase scopes its own mutex helpers.
func ScopedExclusive(s *Sync) func() {
	s.LockExclusive()
	return s.UnlockExclusive
}

// ScopedWriter is the writer-side equivalent of ScopedExclusive for
// reader-writer latched resources.
func ScopedWriter(s *Sync) func() {
	s.LockWriter()
	return s.UnlockWriter
}

// ScopedReader is the reader-side equivalent of ScopedExclusive.
func ScopedReader(s *Sync) func() {
	s.LockReader()
	return s.UnlockReader
}
