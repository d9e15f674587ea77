// Package ffi maps engine operations onto the text contract of the C
// shared library.
//
// Every operation takes text in and gives text back. A Call names the
// operation and carries its arguments as text together with a format tag
// per argument; the result is rendered in the call's output format. Errors
// are rendered as
//
//	exception:<CODE>: <message>
//
// on both calling conventions, so hosts detect failure by the "exception:"
// prefix alone.
//
// Calling conventions:
//   - Exec runs the call on the caller's goroutine and returns the text.
//   - Submit queues the call on the context's workers and hands the text to
//     a deliver function exactly once. An invalid handle is delivered
//     immediately on the caller's goroutine.
//
// Input format tags select how a raw input is read:
//
//	db            raw is a configuration in the call's config format; the
//	              input is its current revision
//	history       as db, viewed with full history
//	since:<ms>    as db, viewed since a unix-millisecond instant
//	asof:<ms>     as db, viewed as of a unix-millisecond instant
//	edn json cbor raw is literal data in that format
//
// Buffer ownership belongs to the C layer (cmd/libfactdb). Buffers tracks
// which context a returned buffer belongs to. The C layer frees a buffer
// only when Release confirms it was outstanding, so a repeated release is
// ignored; buffers still outstanding at teardown are reported.
package ffi
