// Package engine manages execution contexts and database connections.
//
// An Engine hands out opaque Handles. Each handle names an execution
// context: a small pool of workers fed by a FIFO job queue, plus the
// in-memory databases created through it. Contexts are isolated from each
// other; a memory database created in one context is invisible to another.
//
// Durable databases (file and bolt backends) are different. One connection
// exists per storage location and every context that connects to it shares
// that connection. Each context holds at most one reference; the connection
// closes when the last referencing context is torn down or the database is
// deleted.
//
// Lifecycle:
//
//	e := engine.New(engine.WithLogger(logger))
//	h, _ := e.CreateContext()
//	_ = e.CreateDatabase(ctx, h, cfg)
//	report, _ := e.Transact(ctx, h, cfg, txData)
//	_ = e.TearDown(h)
//	_ = e.Shutdown()
//
// Handles are validated on every call. A stale handle, a handle from
// another Engine, or the zero Handle fails with ir.CodeInvalidContext.
//
// Each Engine keeps its own metrics set; WriteMetrics renders it in
// Prometheus text format.
package engine
