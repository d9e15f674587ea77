package ffi

import (
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/roach88/factdb/internal/engine"
)

// Buffers records which context each outstanding caller-owned buffer was
// returned to. Keys are buffer addresses. Safe for concurrent use.
type Buffers struct {
	owners *xsync.MapOf[uintptr, engine.Handle]
}

// NewBuffers creates an empty registry.
func NewBuffers() *Buffers {
	return &Buffers{owners: xsync.NewMapOf[uintptr, engine.Handle]()}
}

// Track records that the buffer at p now belongs to the caller of h.
func (b *Buffers) Track(h engine.Handle, p uintptr) {
	b.owners.Store(p, h)
}

// Release forgets p and reports whether it was tracked for h. A buffer
// tracked for another context stays tracked. Freeing the memory stays the
// caller's responsibility either way.
func (b *Buffers) Release(h engine.Handle, p uintptr) bool {
	released := false
	b.owners.Compute(p, func(owner engine.Handle, loaded bool) (engine.Handle, bool) {
		released = loaded && owner == h
		return owner, released || !loaded
	})
	return released
}

// Outstanding counts the buffers of h not yet released.
func (b *Buffers) Outstanding(h engine.Handle) int {
	n := 0
	b.owners.Range(func(_ uintptr, owner engine.Handle) bool {
		if owner == h {
			n++
		}
		return true
	})
	return n
}

// Forget drops every buffer of h and returns how many there were.
func (b *Buffers) Forget(h engine.Handle) int {
	n := 0
	b.owners.Range(func(p uintptr, owner engine.Handle) bool {
		if owner == h {
			b.owners.Delete(p)
			n++
		}
		return true
	})
	return n
}
