package db

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/factdb/internal/config"
	"github.com/roach88/factdb/internal/ir"
	"github.com/roach88/factdb/internal/store"
)

// Clock supplies transaction instants.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Conn is a live connection to one storage location.
//
// Transact calls are serialized by the commit mutex and form a total order.
// DB never blocks: it returns the revision published by the last commit.
type Conn struct {
	cfg     *config.Config
	backend store.Backend
	unknown unknownAttrs
	clock   Clock
	logger  *slog.Logger

	mu      sync.Mutex // serializes commits
	closed  bool
	current atomic.Pointer[DB]
}

// Option configures a Conn.
type Option func(*Conn)

// WithClock sets the source of transaction instants.
func WithClock(c Clock) Option {
	return func(conn *Conn) { conn.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(conn *Conn) { conn.logger = l }
}

// Open replays the backend's log into a connection. The connection owns the
// backend from here on and closes it in Close, also when Open fails.
//
// A log that fails verification yields an ir.CodeInitialization error for
// this database only.
func Open(ctx context.Context, cfg *config.Config, backend store.Backend, opts ...Option) (*Conn, error) {
	c := &Conn{
		cfg:     cfg,
		backend: backend,
		unknown: strategyFor(cfg.SchemaFlexibility),
		clock:   systemClock{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}

	recs, err := backend.Load(ctx)
	if err != nil {
		backend.Close()
		return nil, ir.Wrap(ir.CodeInitialization, err, "load %s", cfg.Key())
	}

	db := empty(cfg.KeepHistory)
	for _, rec := range recs {
		if rec.TxID <= db.basisT || rec.MaxEID < db.maxEID {
			backend.Close()
			return nil, ir.Errorf(ir.CodeInitialization, "log of %s is out of order at transaction %d", cfg.Key(), rec.TxID)
		}
		db = db.commit(txEntry{id: rec.TxID, instant: rec.Instant, datoms: rec.Datoms}, rec.MaxEID)
	}
	c.current.Store(db)

	c.logger.Debug("connection opened",
		"db", cfg.Key(),
		"transactions", len(recs),
		"basis_t", db.basisT)
	return c, nil
}

// Config returns the configuration the connection was opened with.
func (c *Conn) Config() *config.Config { return c.cfg }

// DB returns the current revision.
func (c *Conn) DB() *DB {
	return c.current.Load()
}

// Transact commits transaction data and returns the report.
//
// On any error nothing is stored and the current revision is unchanged.
func (c *Conn) Transact(ctx context.Context, txData ir.Value) (*ir.TxReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ir.Errorf(ir.CodeTransaction, "connection to %s is closed", c.cfg.Key())
	}

	base := c.current.Load()
	instant := c.clock.Now().UTC()
	if n := len(base.txs); n > 0 && instant.Before(base.txs[n-1].instant) {
		instant = base.txs[n-1].instant
	}

	b, datoms, err := build(base, c.unknown, txData, instant)
	if err != nil {
		c.logger.Debug("transaction rejected", "db", c.cfg.Key(), "error", err)
		return nil, err
	}

	rec := store.TxRecord{TxID: b.txID, Instant: instant, MaxEID: b.maxEID, Datoms: datoms}
	rec.Seal()
	if err := c.backend.Append(ctx, rec); err != nil {
		c.logger.Warn("append failed", "db", c.cfg.Key(), "tx", b.txID, "error", err)
		return nil, ir.Wrap(ir.CodeTransaction, err, "commit transaction %d", b.txID)
	}

	next := base.commit(txEntry{id: b.txID, instant: instant, datoms: datoms}, b.maxEID)
	c.current.Store(next)

	report := &ir.TxReport{
		TxID:      b.txID,
		TxInstant: instant,
		Tempids:   b.reportedTempids(),
	}
	for _, d := range datoms {
		if d.Added {
			report.Added = append(report.Added, d)
		} else {
			report.Retracted = append(report.Retracted, d)
		}
	}

	c.logger.Debug("transaction committed",
		"db", c.cfg.Key(),
		"tx", b.txID,
		"added", len(report.Added),
		"retracted", len(report.Retracted))
	return report, nil
}

// Close releases the backend. Revisions obtained earlier stay readable.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.backend.Close()
}
