// Package db implements the schema and transaction engine.
//
// A Conn owns one storage location. Every commit runs under the connection's
// commit mutex, is appended to the backend in one storage transaction, and is
// then published by swapping an atomic pointer to a new immutable revision
// (*DB). Readers load the pointer once and evaluate against that revision for
// their whole lifetime, so they never block writers and never observe a
// partial commit.
//
// A revision holds three btree indexes over the live datoms:
//   - EAVT: entity, attribute, value, tx
//   - AEVT: attribute, entity, value, tx
//   - AVET: attribute, value, entity, tx
//
// plus a history index of every assertion and retraction when the database
// keeps history. Publishing a revision clones the indexes (copy-on-write), so
// older revisions stay valid and unchanged.
//
// Schema lives in the database as datoms on attribute entities (:db/ident,
// :db/valueType, :db/cardinality, ...) and is derived from them whenever they
// change. How unknown attributes are treated is decided once, when the
// connection opens, by the configured schema flexibility.
package db
