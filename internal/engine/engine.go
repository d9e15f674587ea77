package engine

import (
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/roach88/factdb/internal/db"
)

// DefaultWorkers is the number of workers each context starts when no
// WithWorkers option is given.
const DefaultWorkers = 2

// Engine owns every execution context and every shared durable connection
// of a process.
//
// Thread-safety model:
//   - every exported method is safe from any goroutine
//   - operations on different contexts never wait on each other, except
//     while a durable connection is opened or closed
//   - TearDown must not be called from a job running on the same context
type Engine struct {
	logger  *slog.Logger
	clock   db.Clock
	workers int

	handles  *handleSeq
	contexts *xsync.MapOf[Handle, *execContext]

	connMu sync.Mutex // guards opening, releasing and deleting durable connections
	conns  *xsync.MapOf[string, *sharedConn]

	metrics  *engineMetrics
	shutdown atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine and the connections it opens.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithWorkers sets the number of workers per context. Values below 1 are
// raised to 1.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = max(n, 1) }
}

// WithClock sets the source of transaction instants for every connection
// the engine opens.
func WithClock(c db.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// New creates an isolated engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		workers:  min(DefaultWorkers, runtime.GOMAXPROCS(0)),
		handles:  newHandleSeq(),
		contexts: xsync.NewMapOf[Handle, *execContext](),
		conns:    xsync.NewMapOf[string, *sharedConn](),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.metrics = newEngineMetrics(e)
	return e
}

var (
	defaultOnce   sync.Once
	defaultEngine *Engine
)

// Default returns the process-wide engine, creating it on first use.
func Default() *Engine {
	defaultOnce.Do(func() {
		defaultEngine = New()
	})
	return defaultEngine
}

// execContext is one unit of isolation: its own workers and its own memory
// databases. Durable connections are shared through the engine.
type execContext struct {
	handle Handle
	queue  *jobQueue
	done   sync.WaitGroup
	memory *xsync.MapOf[string, *db.Conn]
	held   map[string]*sharedConn // guarded by Engine.connMu
}

// CreateContext starts a new execution context and returns its handle.
// It fails with ir.CodeInitialization once the engine is shut down.
func (e *Engine) CreateContext() (Handle, error) {
	if e.shutdown.Load() {
		return 0, ErrShutdown
	}

	c := &execContext{
		handle: e.handles.next(),
		queue:  newJobQueue(),
		memory: xsync.NewMapOf[string, *db.Conn](),
		held:   make(map[string]*sharedConn),
	}
	for i := 0; i < e.workers; i++ {
		c.done.Add(1)
		go func() {
			defer c.done.Done()
			c.queue.run()
		}()
	}
	e.contexts.Store(c.handle, c)

	// Shutdown may have swept the registry before the Store above.
	if e.shutdown.Load() {
		e.TearDown(c.handle)
		return 0, ErrShutdown
	}

	e.logger.Debug("context created", "context", c.handle, "workers", e.workers)
	return c.handle, nil
}

// lookup validates a handle.
func (e *Engine) lookup(h Handle) (*execContext, error) {
	if !e.handles.issued(h) {
		return nil, invalidContext(h)
	}
	c, ok := e.contexts.Load(h)
	if !ok {
		return nil, invalidContext(h)
	}
	return c, nil
}

// Valid reports whether h names a live context.
func (e *Engine) Valid(h Handle) bool {
	_, err := e.lookup(h)
	return err == nil
}

// Submit queues fn on one of the context's workers. Jobs start in
// submission order; with more than one worker they may run concurrently.
func (e *Engine) Submit(h Handle, fn func()) error {
	c, err := e.lookup(h)
	if err != nil {
		return err
	}
	if !c.queue.Enqueue(fn) {
		return invalidContext(h)
	}
	e.metrics.jobs.Inc()
	return nil
}

// TearDown stops a context: queued jobs run to completion, its memory
// databases are closed and its references to durable connections are
// released. The handle is invalid afterwards.
func (e *Engine) TearDown(h Handle) error {
	if !e.handles.issued(h) {
		return invalidContext(h)
	}
	c, ok := e.contexts.LoadAndDelete(h)
	if !ok {
		return invalidContext(h)
	}

	c.queue.Close()
	c.done.Wait()

	c.memory.Range(func(key string, conn *db.Conn) bool {
		if err := conn.Close(); err != nil {
			e.logger.Warn("close memory database failed", "context", h, "db", key, "error", err)
		}
		return true
	})
	c.memory.Clear()

	e.connMu.Lock()
	for key, s := range c.held {
		e.release(key, s)
	}
	c.held = nil
	e.connMu.Unlock()

	e.logger.Debug("context torn down", "context", h)
	return nil
}

// Shutdown tears down every context and closes every durable connection.
// Later calls do nothing.
func (e *Engine) Shutdown() error {
	if !e.shutdown.CompareAndSwap(false, true) {
		return nil
	}

	var handles []Handle
	e.contexts.Range(func(h Handle, _ *execContext) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		_ = e.TearDown(h)
	}

	e.connMu.Lock()
	defer e.connMu.Unlock()
	var firstErr error
	e.conns.Range(func(key string, s *sharedConn) bool {
		if err := s.close(); err != nil && firstErr == nil {
			firstErr = err
		}
		e.conns.Delete(key)
		return true
	})

	e.logger.Debug("engine shut down", "contexts", len(handles))
	return firstErr
}
