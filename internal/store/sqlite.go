package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/factdb/internal/edn"
	"github.com/roach88/factdb/internal/ir"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added idx_datoms_ea for entity lookups
const currentSchemaVersion = 1

// formatVersion identifies the on-disk record layout.
const formatVersion = "factdb/1"

func sqliteFile(dir string) string {
	return filepath.Join(dir, "factdb.sqlite")
}

// SQLite is the file backend: a WAL-mode SQLite database with one row per
// transaction and one row per datom.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite creates or opens a SQLite log at the given file path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	// Open database (creates file if doesn't exist)
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection works
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append inserts one transaction and its datoms in a single SQL transaction.
func (s *SQLite) Append(ctx context.Context, rec TxRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append tx %d: begin: %w", rec.TxID, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (tx, instant, max_eid, checksum)
		VALUES (?, ?, ?, ?)
	`, rec.TxID, rec.Instant.UTC().Format(edn.InstLayout), rec.MaxEID, rec.Checksum)
	if err != nil {
		return fmt.Errorf("append tx %d: %w", rec.TxID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO datoms (tx, seq, e, a, v, added)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("append tx %d: prepare: %w", rec.TxID, err)
	}
	defer stmt.Close()

	for i, d := range rec.Datoms {
		v, err := edn.Marshal(d.V)
		if err == nil {
			_, err = edn.Marshal(d.A)
		}
		if err != nil {
			return fmt.Errorf("append tx %d datom %d: %w", rec.TxID, i, err)
		}
		if _, err := stmt.ExecContext(ctx, rec.TxID, i, d.E, string(d.A), v, d.Added); err != nil {
			return fmt.Errorf("append tx %d datom %d: %w", rec.TxID, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append tx %d: commit: %w", rec.TxID, err)
	}
	return nil
}

// Load reads every transaction in tx order.
// Results are ordered deterministically: ORDER BY tx ASC, seq ASC.
func (s *SQLite) Load(ctx context.Context) ([]TxRecord, error) {
	recs, err := s.loadTransactions(ctx)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return recs, nil
	}

	byTx := make(map[int64]int, len(recs))
	for i, r := range recs {
		byTx[r.TxID] = i
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tx, e, a, v, added
		FROM datoms
		ORDER BY tx ASC, seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query datoms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			txID, e int64
			a, v    string
			added   bool
		)
		if err := rows.Scan(&txID, &e, &a, &v, &added); err != nil {
			return nil, fmt.Errorf("scan datom: %w", err)
		}
		i, ok := byTx[txID]
		if !ok {
			return nil, corrupt(txID, fmt.Errorf("datom without transaction"))
		}
		val, err := edn.Read(v)
		if err != nil {
			return nil, corrupt(txID, err)
		}
		recs[i].Datoms = append(recs[i].Datoms, ir.Datom{E: e, A: ir.Keyword(a), V: val, Tx: txID, Added: added})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate datoms: %w", err)
	}

	for i := range recs {
		if err := recs[i].Verify(); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

func (s *SQLite) loadTransactions(ctx context.Context) ([]TxRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tx, instant, max_eid, checksum
		FROM transactions
		ORDER BY tx ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	recs := []TxRecord{}
	for rows.Next() {
		var (
			rec     TxRecord
			instant string
		)
		if err := rows.Scan(&rec.TxID, &instant, &rec.MaxEID, &rec.Checksum); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		rec.Instant, err = time.Parse(edn.InstLayout, instant)
		if err != nil {
			return nil, corrupt(rec.TxID, err)
		}
		rec.Instant = rec.Instant.UTC()
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return recs, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if _, err := db.Exec(`INSERT INTO meta (key, value) VALUES ('format', ?) ON CONFLICT(key) DO NOTHING`, formatVersion); err != nil {
		return fmt.Errorf("failed to write format marker: %w", err)
	}

	var format string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key = 'format'`).Scan(&format); err != nil {
		return fmt.Errorf("failed to read format marker: %w", err)
	}
	if format != formatVersion {
		return ir.Errorf(ir.CodeInitialization, "unsupported storage format %q", format)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the (e, a) index for logs created before it existed.
func migrateToV1(db *sql.DB) error {
	// CREATE INDEX IF NOT EXISTS is safe - no-op if index exists
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_datoms_ea ON datoms(e, a)`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLite) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
