package main

/*
#include "factdb.h"

static inline void call_reader(output_reader reader, const char *output) {
	reader(output);
}
*/
import "C"

import (
	"unsafe"

	"github.com/roach88/factdb/internal/engine"
	"github.com/roach88/factdb/internal/ffi"
)

// cHeap allocates with malloc and frees with free.
type cHeap struct{}

func (cHeap) alloc(text string) unsafe.Pointer { return unsafe.Pointer(C.CString(text)) }
func (cHeap) free(p unsafe.Pointer) { C.free(p) }

// submit hands the result of c to a C reader. The buffer belongs to the
// library and is freed once the reader returns.
func submit(ctx C.uint64_t, c ffi.Call, reader C.output_reader) {
	asyncCall(cHeap{}, api, engine.Handle(ctx), c, func(p unsafe.Pointer) {
		C.call_reader(reader, (*C.char)(p))
	})
}

// execSync returns the result of c as a malloc'ed buffer owned by the
// caller until release_buffer.
func execSync(ctx C.uint64_t, c ffi.Call) *C.char {
	return (*C.char)(syncCall(cHeap{}, api, engine.Handle(ctx), c))
}

func release(ctx C.uint64_t, buf *C.char) {
	releaseOwned(cHeap{}, api.Buffers(), engine.Handle(ctx), unsafe.Pointer(buf))
}

func goString(s *C.char) string {
	if s == nil {
		return ""
	}
	return C.GoString(s)
}

func goStrings(n C.long, arr **C.char) []string {
	if n <= 0 || arr == nil {
		return nil
	}
	items := unsafe.Slice(arr, int(n))
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = goString(s)
	}
	return out
}

func inputs(n C.long, formats, raws **C.char) []ffi.Input {
	fs := goStrings(n, formats)
	rs := goStrings(n, raws)
	out := make([]ffi.Input, len(fs))
	for i := range fs {
		out[i] = ffi.Input{Format: fs[i], Raw: rs[i]}
	}
	return out
}
