package main

import (
	"context"
	"unsafe"

	"github.com/roach88/factdb/internal/engine"
	"github.com/roach88/factdb/internal/ffi"
)

// allocator hands out NUL-terminated copies of text outside the Go heap.
type allocator interface {
	alloc(text string) unsafe.Pointer
	free(p unsafe.Pointer)
}

// deliverTo returns a deliver function that copies each result into a fresh
// buffer, passes it to read and frees it once read returns.
func deliverTo(mem allocator, read func(p unsafe.Pointer)) func(string) {
	return func(text string) {
		p := mem.alloc(text)
		defer mem.free(p)
		read(p)
	}
}

// handOver copies text into a buffer owned by the caller of h until
// releaseOwned.
func handOver(mem allocator, bufs *ffi.Buffers, h engine.Handle, text string) unsafe.Pointer {
	p := mem.alloc(text)
	bufs.Track(h, uintptr(p))
	return p
}

// releaseOwned frees p if it is outstanding for h and reports whether it
// was. A second release, or one under another context, frees nothing.
func releaseOwned(mem allocator, bufs *ffi.Buffers, h engine.Handle, p unsafe.Pointer) bool {
	if p == nil || !bufs.Release(h, uintptr(p)) {
		return false
	}
	mem.free(p)
	return true
}

// syncCall runs c on the caller's goroutine and hands the result over to
// the caller of h.
func syncCall(mem allocator, a *ffi.API, h engine.Handle, c ffi.Call) unsafe.Pointer {
	return handOver(mem, a.Buffers(), h, a.Exec(context.Background(), h, c))
}

// asyncCall queues c on the workers of h. read sees the result exactly once.
func asyncCall(mem allocator, a *ffi.API, h engine.Handle, c ffi.Call, read func(p unsafe.Pointer)) {
	a.Submit(h, c, deliverTo(mem, read))
}
