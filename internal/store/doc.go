// Package store provides durable datom logs for factdb databases.
//
// A log is an append-only sequence of committed transactions. Each record
// holds the transaction id, its instant, the entity-id high-water mark after
// the commit, and the datoms it asserted or retracted. The in-memory indexes
// of a database are rebuilt from the log at open.
//
// # Backends
//
//   - file:   SQLite database <path>/factdb.sqlite, one row per datom
//   - bolt:   bbolt database <path>/factdb.bolt, one key per transaction
//   - memory: process-local slice, lost when the database is closed
//
// # Critical Patterns
//
// Append-only:
//   - Records are never updated or deleted; Append is the only write
//   - Append is atomic: the whole record becomes durable or nothing does
//
// Integrity:
//   - Every record carries a SHA-256 checksum over its canonical payload
//     (see ir.TxChecksum)
//   - Load verifies every checksum; a mismatch fails with
//     ir.CodeInitialization for that database only
//
// Deterministic ordering:
//   - Records load in ascending tx order, datoms in commit order
//
// # SQLite Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
