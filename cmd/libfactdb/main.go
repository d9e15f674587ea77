// Command libfactdb builds the factdb C shared library:
//
//	go build -buildmode=c-shared -o libfactdb.so ./cmd/libfactdb
//
// Every operation has two entry points. The plain one takes an
// output_reader and returns immediately; the reader is called exactly once,
// on an engine worker, with a buffer the library frees after the reader
// returns, so readers must copy what they keep. The _sync variant returns a
// malloc'ed NUL-terminated buffer owned by the caller until release_buffer.
// release_buffer frees only buffers outstanding for its context; a second
// release of the same buffer is ignored.
//
// create_database, database_exists, delete_database and transact take a
// config_format after the configuration text: edn, json or yaml, with NULL
// or empty meaning edn. Database inputs of the other operations are edn.
//
// Failures are reported through the same channel as results, as text
// starting with "exception:".
package main

/*
#include "factdb.h"
*/
import "C"

import (
	"github.com/roach88/factdb/internal/engine"
	"github.com/roach88/factdb/internal/ffi"
	"github.com/roach88/factdb/internal/ir"
)

var api = ffi.New(engine.Default())

func main() {}

func configCall(op ffi.Op, dbConfig, configFormat, outputFormat *C.char) ffi.Call {
	return ffi.Call{
		Op:           op,
		Config:       goString(dbConfig),
		ConfigFormat: goString(configFormat),
		OutputFormat: goString(outputFormat),
	}
}

func transactCall(dbConfig, configFormat, txFormat, txData, outputFormat *C.char) ffi.Call {
	return ffi.Call{
		Op:           ffi.OpTransact,
		Config:       goString(dbConfig),
		ConfigFormat: goString(configFormat),
		DataFormat:   goString(txFormat),
		Data:         goString(txData),
		OutputFormat: goString(outputFormat),
	}
}

func queryCall(queryEDN *C.char, n C.long, formats, raws **C.char, outputFormat *C.char) ffi.Call {
	return ffi.Call{
		Op:           ffi.OpQuery,
		Query:        goString(queryEDN),
		Inputs:       inputs(n, formats, raws),
		OutputFormat: goString(outputFormat),
	}
}

func sourceCall(op ffi.Op, inputFormat, rawInput, outputFormat *C.char) ffi.Call {
	return ffi.Call{
		Op:           op,
		Inputs:       []ffi.Input{{Format: goString(inputFormat), Raw: goString(rawInput)}},
		OutputFormat: goString(outputFormat),
	}
}

func pullCall(inputFormat, rawInput, selector *C.char, eid C.long, outputFormat *C.char) ffi.Call {
	c := sourceCall(ffi.OpPull, inputFormat, rawInput, outputFormat)
	c.Selector = goString(selector)
	c.EID = ir.Int(int64(eid))
	return c
}

func pullManyCall(inputFormat, rawInput, selector, eids, outputFormat *C.char) ffi.Call {
	c := sourceCall(ffi.OpPullMany, inputFormat, rawInput, outputFormat)
	c.Selector = goString(selector)
	c.EIDs = goString(eids)
	return c
}

func entityCall(inputFormat, rawInput *C.char, eid C.long, outputFormat *C.char) ffi.Call {
	c := sourceCall(ffi.OpEntity, inputFormat, rawInput, outputFormat)
	c.EID = ir.Int(int64(eid))
	return c
}

func datomsCall(inputFormat, rawInput, index, outputFormat *C.char) ffi.Call {
	c := sourceCall(ffi.OpDatoms, inputFormat, rawInput, outputFormat)
	c.Index = goString(index)
	return c
}

//export factdb_create_context
func factdb_create_context() C.uint64_t {
	h, err := api.CreateContext()
	if err != nil {
		return 0
	}
	return C.uint64_t(h)
}

//export factdb_teardown_context
func factdb_teardown_context(ctx C.uint64_t) C.int {
	if err := api.TearDown(engine.Handle(ctx)); err != nil {
		return 1
	}
	return 0
}

//export release_buffer
func release_buffer(ctx C.uint64_t, buf *C.char) {
	release(ctx, buf)
}

//export create_database
func create_database(ctx C.uint64_t, dbConfig, configFormat, outputFormat *C.char, reader C.output_reader) {
	submit(ctx, configCall(ffi.OpCreateDatabase, dbConfig, configFormat, outputFormat), reader)
}

//export create_database_sync
func create_database_sync(ctx C.uint64_t, dbConfig, configFormat, outputFormat *C.char) *C.char {
	return execSync(ctx, configCall(ffi.OpCreateDatabase, dbConfig, configFormat, outputFormat))
}

//export database_exists
func database_exists(ctx C.uint64_t, dbConfig, configFormat, outputFormat *C.char, reader C.output_reader) {
	submit(ctx, configCall(ffi.OpDatabaseExists, dbConfig, configFormat, outputFormat), reader)
}

//export database_exists_sync
func database_exists_sync(ctx C.uint64_t, dbConfig, configFormat, outputFormat *C.char) *C.char {
	return execSync(ctx, configCall(ffi.OpDatabaseExists, dbConfig, configFormat, outputFormat))
}

//export delete_database
func delete_database(ctx C.uint64_t, dbConfig, configFormat, outputFormat *C.char, reader C.output_reader) {
	submit(ctx, configCall(ffi.OpDeleteDatabase, dbConfig, configFormat, outputFormat), reader)
}

//export delete_database_sync
func delete_database_sync(ctx C.uint64_t, dbConfig, configFormat, outputFormat *C.char) *C.char {
	return execSync(ctx, configCall(ffi.OpDeleteDatabase, dbConfig, configFormat, outputFormat))
}

//export transact
func transact(ctx C.uint64_t, dbConfig, configFormat, txFormat, txData, outputFormat *C.char, reader C.output_reader) {
	submit(ctx, transactCall(dbConfig, configFormat, txFormat, txData, outputFormat), reader)
}

//export transact_sync
func transact_sync(ctx C.uint64_t, dbConfig, configFormat, txFormat, txData, outputFormat *C.char) *C.char {
	return execSync(ctx, transactCall(dbConfig, configFormat, txFormat, txData, outputFormat))
}

//export query
func query(ctx C.uint64_t, queryEDN *C.char, numInputs C.long, inputFormats, rawInputs **C.char, outputFormat *C.char, reader C.output_reader) {
	submit(ctx, queryCall(queryEDN, numInputs, inputFormats, rawInputs, outputFormat), reader)
}

//export query_sync
func query_sync(ctx C.uint64_t, queryEDN *C.char, numInputs C.long, inputFormats, rawInputs **C.char, outputFormat *C.char) *C.char {
	return execSync(ctx, queryCall(queryEDN, numInputs, inputFormats, rawInputs, outputFormat))
}

//export q
func q(ctx C.uint64_t, queryEDN *C.char, numInputs C.long, inputFormats, rawInputs **C.char, outputFormat *C.char, reader C.output_reader) {
	query(ctx, queryEDN, numInputs, inputFormats, rawInputs, outputFormat, reader)
}

//export q_sync
func q_sync(ctx C.uint64_t, queryEDN *C.char, numInputs C.long, inputFormats, rawInputs **C.char, outputFormat *C.char) *C.char {
	return query_sync(ctx, queryEDN, numInputs, inputFormats, rawInputs, outputFormat)
}

//export pull
func pull(ctx C.uint64_t, inputFormat, rawInput, selectorEDN *C.char, eid C.long, outputFormat *C.char, reader C.output_reader) {
	submit(ctx, pullCall(inputFormat, rawInput, selectorEDN, eid, outputFormat), reader)
}

//export pull_sync
func pull_sync(ctx C.uint64_t, inputFormat, rawInput, selectorEDN *C.char, eid C.long, outputFormat *C.char) *C.char {
	return execSync(ctx, pullCall(inputFormat, rawInput, selectorEDN, eid, outputFormat))
}

//export pull_many
func pull_many(ctx C.uint64_t, inputFormat, rawInput, selectorEDN, eidsEDN, outputFormat *C.char, reader C.output_reader) {
	submit(ctx, pullManyCall(inputFormat, rawInput, selectorEDN, eidsEDN, outputFormat), reader)
}

//export pull_many_sync
func pull_many_sync(ctx C.uint64_t, inputFormat, rawInput, selectorEDN, eidsEDN, outputFormat *C.char) *C.char {
	return execSync(ctx, pullManyCall(inputFormat, rawInput, selectorEDN, eidsEDN, outputFormat))
}

//export entity
func entity(ctx C.uint64_t, inputFormat, rawInput *C.char, eid C.long, outputFormat *C.char, reader C.output_reader) {
	submit(ctx, entityCall(inputFormat, rawInput, eid, outputFormat), reader)
}

//export entity_sync
func entity_sync(ctx C.uint64_t, inputFormat, rawInput *C.char, eid C.long, outputFormat *C.char) *C.char {
	return execSync(ctx, entityCall(inputFormat, rawInput, eid, outputFormat))
}

//export datoms
func datoms(ctx C.uint64_t, inputFormat, rawInput, indexEDN, outputFormat *C.char, reader C.output_reader) {
	submit(ctx, datomsCall(inputFormat, rawInput, indexEDN, outputFormat), reader)
}

//export datoms_sync
func datoms_sync(ctx C.uint64_t, inputFormat, rawInput, indexEDN, outputFormat *C.char) *C.char {
	return execSync(ctx, datomsCall(inputFormat, rawInput, indexEDN, outputFormat))
}

//export schema
func schema(ctx C.uint64_t, inputFormat, rawInput, outputFormat *C.char, reader C.output_reader) {
	submit(ctx, sourceCall(ffi.OpSchema, inputFormat, rawInput, outputFormat), reader)
}

//export schema_sync
func schema_sync(ctx C.uint64_t, inputFormat, rawInput, outputFormat *C.char) *C.char {
	return execSync(ctx, sourceCall(ffi.OpSchema, inputFormat, rawInput, outputFormat))
}

//export reverse_schema
func reverse_schema(ctx C.uint64_t, inputFormat, rawInput, outputFormat *C.char, reader C.output_reader) {
	submit(ctx, sourceCall(ffi.OpReverseSchema, inputFormat, rawInput, outputFormat), reader)
}

//export reverse_schema_sync
func reverse_schema_sync(ctx C.uint64_t, inputFormat, rawInput, outputFormat *C.char) *C.char {
	return execSync(ctx, sourceCall(ffi.OpReverseSchema, inputFormat, rawInput, outputFormat))
}

//export metrics
func metrics(ctx C.uint64_t, inputFormat, rawInput, outputFormat *C.char, reader C.output_reader) {
	submit(ctx, sourceCall(ffi.OpMetrics, inputFormat, rawInput, outputFormat), reader)
}

//export metrics_sync
func metrics_sync(ctx C.uint64_t, inputFormat, rawInput, outputFormat *C.char) *C.char {
	return execSync(ctx, sourceCall(ffi.OpMetrics, inputFormat, rawInput, outputFormat))
}
