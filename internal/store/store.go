package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/roach88/factdb/internal/config"
	"github.com/roach88/factdb/internal/edn"
	"github.com/roach88/factdb/internal/ir"
)

// TxRecord is one committed transaction as persisted.
type TxRecord struct {
	TxID     int64
	Instant  time.Time
	MaxEID   int64 // entity-id high-water mark after this commit
	Datoms   []ir.Datom
	Checksum string
}

// Backend is an append-only transaction log.
//
// Implementations must be safe for one writer and concurrent Load calls.
type Backend interface {
	// Load returns every record in ascending tx order after verifying its
	// checksum.
	Load(ctx context.Context) ([]TxRecord, error)

	// Append durably adds one record. Either the whole record is stored or
	// nothing is.
	Append(ctx context.Context, rec TxRecord) error

	// Close releases the backend. The log remains on disk for durable backends.
	Close() error
}

// Seal computes and sets the record checksum.
func (r *TxRecord) Seal() {
	r.Checksum = ir.TxChecksum(r.TxID, r.Payload())
}

// Verify checks the record checksum.
func (r *TxRecord) Verify() error {
	if !ir.VerifyTxChecksum(r.TxID, r.Payload(), r.Checksum) {
		return ir.Errorf(ir.CodeInitialization, "checksum mismatch for transaction %d", r.TxID).
			With("tx", fmt.Sprint(r.TxID))
	}
	return nil
}

// Payload returns the canonical text of the record:
//
//	[#inst "..." max-eid [[e a v tx added] ...]]
func (r *TxRecord) Payload() []byte {
	return []byte(edn.Print(r.payloadValue()))
}

// marshal returns the payload for writing. Unlike Payload it refuses
// datoms whose text would not read back unchanged.
func (r *TxRecord) marshal() ([]byte, error) {
	text, err := edn.Marshal(r.payloadValue())
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

func (r *TxRecord) payloadValue() ir.Vector {
	datoms := make(ir.Vector, len(r.Datoms))
	for i, d := range r.Datoms {
		datoms[i] = d.Vector()
	}
	return ir.Vector{ir.Inst(r.Instant.UTC()), ir.Int(r.MaxEID), datoms}
}

// decodePayload rebuilds a record from its canonical text.
func decodePayload(txID int64, payload []byte, checksum string) (TxRecord, error) {
	v, err := edn.Read(string(payload))
	if err != nil {
		return TxRecord{}, corrupt(txID, err)
	}
	parts, ok := v.(ir.Vector)
	if !ok || len(parts) != 3 {
		return TxRecord{}, corrupt(txID, errors.New("payload is not [instant max-eid datoms]"))
	}
	inst, ok1 := parts[0].(ir.Inst)
	maxEID, ok2 := parts[1].(ir.Int)
	rows, ok3 := parts[2].(ir.Vector)
	if !ok1 || !ok2 || !ok3 {
		return TxRecord{}, corrupt(txID, errors.New("payload has wrong field types"))
	}

	rec := TxRecord{TxID: txID, Instant: inst.Time(), MaxEID: int64(maxEID), Checksum: checksum}
	rec.Datoms = make([]ir.Datom, 0, len(rows))
	for _, row := range rows {
		d, err := datomFromVector(row)
		if err != nil {
			return TxRecord{}, corrupt(txID, err)
		}
		rec.Datoms = append(rec.Datoms, d)
	}
	return rec, nil
}

func datomFromVector(v ir.Value) (ir.Datom, error) {
	row, ok := v.(ir.Vector)
	if !ok || len(row) != 5 {
		return ir.Datom{}, fmt.Errorf("datom is not [e a v tx added]: %s", edn.Print(v))
	}
	e, ok1 := row[0].(ir.Int)
	a, ok2 := row[1].(ir.Keyword)
	tx, ok3 := row[3].(ir.Int)
	added, ok4 := row[4].(ir.Bool)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return ir.Datom{}, fmt.Errorf("datom has wrong field types: %s", edn.Print(v))
	}
	return ir.Datom{E: int64(e), A: a, V: row[2], Tx: int64(tx), Added: bool(added)}, nil
}

func corrupt(txID int64, err error) error {
	return &ir.Error{
		Code:    ir.CodeInitialization,
		Message: fmt.Sprintf("corrupt record for transaction %d", txID),
		Err:     err,
	}
}

// Exists reports whether a durable database exists at the configured
// location. It never creates or modifies anything.
func Exists(cfg *config.Config) (bool, error) {
	path, err := dataFile(cfg)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, &ir.Error{Code: ir.CodeInitialization, Message: "stat database", Err: err}
	}
}

// Create initializes a new durable database and returns its open log.
// Fails with ir.CodeAlreadyExists when a database is already present.
func Create(ctx context.Context, cfg *config.Config) (Backend, error) {
	exists, err := Exists(cfg)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ir.Errorf(ir.CodeAlreadyExists, "database already exists at %s", cfg.Key())
	}
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, &ir.Error{Code: ir.CodeInitialization, Message: "create database directory", Err: err}
	}
	return open(ctx, cfg)
}

// Open opens an existing durable database.
// Fails with ir.CodeNotFound when no database is present.
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	exists, err := Exists(cfg)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ir.Errorf(ir.CodeNotFound, "no database at %s", cfg.Key())
	}
	return open(ctx, cfg)
}

func open(ctx context.Context, cfg *config.Config) (Backend, error) {
	path, err := dataFile(cfg)
	if err != nil {
		return nil, err
	}
	var b Backend
	switch cfg.Backend {
	case config.BackendFile:
		b, err = OpenSQLite(ctx, path)
	case config.BackendBolt:
		b, err = OpenBolt(path)
	}
	if err != nil {
		return nil, ir.Wrap(ir.CodeInitialization, err, "open %s", cfg.Key())
	}
	return b, nil
}

// Delete removes a durable database. Deleting a missing database is a no-op.
// The caller must close every open Backend for the location first.
func Delete(cfg *config.Config) error {
	path, err := dataFile(cfg)
	if err != nil {
		return err
	}
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return &ir.Error{Code: ir.CodeInitialization, Message: "delete database", Err: err}
		}
	}
	// Only an empty directory is removed.
	_ = os.Remove(cfg.Path)
	return nil
}

// dataFile returns the backend file inside the configured directory.
func dataFile(cfg *config.Config) (string, error) {
	switch cfg.Backend {
	case config.BackendFile:
		return sqliteFile(cfg.Path), nil
	case config.BackendBolt:
		return boltFile(cfg.Path), nil
	default:
		return "", ir.Errorf(ir.CodeConfig, "backend %q has no durable location", cfg.Backend)
	}
}
