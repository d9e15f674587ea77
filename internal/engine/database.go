package engine

import (
	"context"
	"time"

	"github.com/roach88/factdb/internal/config"
	"github.com/roach88/factdb/internal/db"
	"github.com/roach88/factdb/internal/ir"
	"github.com/roach88/factdb/internal/query"
	"github.com/roach88/factdb/internal/store"
)

// sharedConn is a durable connection referenced by one or more contexts.
// All fields are guarded by Engine.connMu.
type sharedConn struct {
	conn   *db.Conn
	refs   int
	closed bool
}

func (s *sharedConn) close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

func (e *Engine) connOptions() []db.Option {
	opts := []db.Option{db.WithLogger(e.logger)}
	if e.clock != nil {
		opts = append(opts, db.WithClock(e.clock))
	}
	return opts
}

// hold records that c references s. Callers hold connMu.
func (c *execContext) hold(key string, s *sharedConn) {
	if c.held == nil {
		return
	}
	if _, ok := c.held[key]; ok {
		return
	}
	c.held[key] = s
	s.refs++
}

// release drops one reference to s and closes it with the last one.
// Callers hold connMu.
func (e *Engine) release(key string, s *sharedConn) {
	s.refs--
	if s.refs > 0 || s.closed {
		return
	}
	if err := s.close(); err != nil {
		e.logger.Warn("close connection failed", "db", key, "error", err)
	}
	if cur, ok := e.conns.Load(key); ok && cur == s {
		e.conns.Delete(key)
	}
	e.logger.Debug("connection closed", "db", key)
}

// CreateDatabase creates the database cfg describes. It fails with
// ir.CodeAlreadyExists when one exists at that identity, for every backend.
// The new database stays connected to the context.
func (e *Engine) CreateDatabase(ctx context.Context, h Handle, cfg *config.Config) error {
	c, err := e.lookup(h)
	if err != nil {
		return err
	}
	key := cfg.Key()

	if !cfg.Backend.Durable() {
		if _, ok := c.memory.Load(key); ok {
			return alreadyExists(key)
		}
		conn, err := db.Open(ctx, cfg, store.NewMemory(), e.connOptions()...)
		if err != nil {
			return err
		}
		if _, loaded := c.memory.LoadOrStore(key, conn); loaded {
			conn.Close()
			return alreadyExists(key)
		}
		e.logger.Debug("database created", "context", h, "db", key)
		return nil
	}

	e.connMu.Lock()
	defer e.connMu.Unlock()
	if _, ok := e.conns.Load(key); ok {
		return alreadyExists(key)
	}
	backend, err := store.Create(ctx, cfg)
	if err != nil {
		return err
	}
	conn, err := db.Open(ctx, cfg, backend, e.connOptions()...)
	if err != nil {
		return err
	}
	s := &sharedConn{conn: conn}
	e.conns.Store(key, s)
	c.hold(key, s)
	e.logger.Debug("database created", "context", h, "db", key)
	return nil
}

// DatabaseExists reports whether the database cfg describes exists. It
// never creates or modifies anything.
func (e *Engine) DatabaseExists(ctx context.Context, h Handle, cfg *config.Config) (bool, error) {
	c, err := e.lookup(h)
	if err != nil {
		return false, err
	}
	key := cfg.Key()
	if !cfg.Backend.Durable() {
		_, ok := c.memory.Load(key)
		return ok, nil
	}
	if _, ok := e.conns.Load(key); ok {
		return true, nil
	}
	return store.Exists(cfg)
}

// DeleteDatabase closes every connection to the database and removes its
// storage. Deleting a missing database is a no-op.
func (e *Engine) DeleteDatabase(ctx context.Context, h Handle, cfg *config.Config) error {
	c, err := e.lookup(h)
	if err != nil {
		return err
	}
	key := cfg.Key()

	if !cfg.Backend.Durable() {
		if conn, ok := c.memory.LoadAndDelete(key); ok {
			conn.Close()
			e.logger.Debug("database deleted", "context", h, "db", key)
		}
		return nil
	}

	e.connMu.Lock()
	defer e.connMu.Unlock()
	if s, ok := e.conns.LoadAndDelete(key); ok {
		if err := s.close(); err != nil {
			e.logger.Warn("close connection failed", "db", key, "error", err)
		}
	}
	if err := store.Delete(cfg); err != nil {
		return err
	}
	e.logger.Debug("database deleted", "context", h, "db", key)
	return nil
}

// Connect returns the connection to the database cfg describes, opening it
// on first use. A missing database fails with ir.CodeNotFound.
//
// Durable connections are shared by every context that connects to the
// same location; the configuration of the first connect applies.
func (e *Engine) Connect(ctx context.Context, h Handle, cfg *config.Config) (*db.Conn, error) {
	c, err := e.lookup(h)
	if err != nil {
		return nil, err
	}
	key := cfg.Key()

	if !cfg.Backend.Durable() {
		conn, ok := c.memory.Load(key)
		if !ok {
			return nil, notFound(key)
		}
		return conn, nil
	}

	e.connMu.Lock()
	defer e.connMu.Unlock()
	if c.held == nil {
		return nil, invalidContext(h)
	}
	if s, ok := c.held[key]; ok {
		if !s.closed {
			return s.conn, nil
		}
		delete(c.held, key)
	}

	s, ok := e.conns.Load(key)
	if !ok {
		backend, err := store.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		conn, err := db.Open(ctx, cfg, backend, e.connOptions()...)
		if err != nil {
			return nil, err
		}
		s = &sharedConn{conn: conn}
		e.conns.Store(key, s)
		e.logger.Debug("connection opened", "db", key)
	}
	c.hold(key, s)
	return s.conn, nil
}

// DB returns the current revision of the database cfg describes.
func (e *Engine) DB(ctx context.Context, h Handle, cfg *config.Config) (*db.DB, error) {
	conn, err := e.Connect(ctx, h, cfg)
	if err != nil {
		return nil, err
	}
	return conn.DB(), nil
}

// Transact connects to the database cfg describes and commits txData.
func (e *Engine) Transact(ctx context.Context, h Handle, cfg *config.Config, txData ir.Value) (*ir.TxReport, error) {
	conn, err := e.Connect(ctx, h, cfg)
	if err != nil {
		return nil, err
	}
	report, err := conn.Transact(ctx, txData)
	e.metrics.transacted(err)
	if err != nil {
		e.logger.Debug("transaction failed", "context", h, "db", cfg.Key(), "error", err)
		return nil, err
	}
	return report, nil
}

// Query evaluates q in the context h. Inputs are passed to query.Run.
func (e *Engine) Query(ctx context.Context, h Handle, q ir.Value, inputs ...any) (ir.Value, error) {
	if _, err := e.lookup(h); err != nil {
		return nil, err
	}
	start := time.Now()
	out, err := query.Run(ctx, q, inputs...)
	e.metrics.queried(start, err)
	if err != nil {
		e.logger.Debug("query failed", "context", h, "error", err)
		return nil, err
	}
	return out, nil
}
