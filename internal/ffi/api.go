package ffi

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/factdb/internal/codec"
	"github.com/roach88/factdb/internal/db"
	"github.com/roach88/factdb/internal/edn"
	"github.com/roach88/factdb/internal/engine"
	"github.com/roach88/factdb/internal/ir"
)

// API serves boundary calls against one Engine.
type API struct {
	engine  *engine.Engine
	logger  *slog.Logger
	buffers *Buffers
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger for call tracing.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// New creates an API over e.
func New(e *engine.Engine, opts ...Option) *API {
	a := &API{
		engine:  e,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		buffers: NewBuffers(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Engine returns the engine the API serves.
func (a *API) Engine() *engine.Engine { return a.engine }

// Buffers returns the registry of buffers handed to callers.
func (a *API) Buffers() *Buffers { return a.buffers }

// CreateContext starts an execution context.
func (a *API) CreateContext() (engine.Handle, error) {
	return a.engine.CreateContext()
}

// TearDown stops an execution context. Buffers the caller never released
// are logged and forgotten.
func (a *API) TearDown(h engine.Handle) error {
	if n := a.buffers.Forget(h); n > 0 {
		a.logger.Warn("context torn down with unreleased buffers", "context", h, "buffers", n)
	}
	return a.engine.TearDown(h)
}

// Do runs c on the caller's goroutine and returns the rendered result.
func (a *API) Do(ctx context.Context, h engine.Handle, c Call) (string, error) {
	start := time.Now()
	v, err := a.dispatch(ctx, h, c)
	if err == nil {
		var f codec.Format
		if f, err = codec.ParseFormat(c.OutputFormat); err == nil {
			var text string
			if text, err = codec.Encode(v, f); err == nil {
				a.logger.Debug("call", "op", c.Op, "context", h, "duration", time.Since(start))
				return text, nil
			}
		}
	}
	a.logger.Debug("call failed", "op", c.Op, "context", h, "error", err)
	return "", err
}

// Exec runs c on the caller's goroutine. Failures come back as exception
// text.
func (a *API) Exec(ctx context.Context, h engine.Handle, c Call) string {
	text, err := a.Do(ctx, h, c)
	if err != nil {
		return EncodeError(err)
	}
	return text
}

// Submit runs c on one of the context's workers and calls deliver exactly
// once with the result text. When h is not a live context, deliver runs on
// the caller's goroutine with the error.
func (a *API) Submit(h engine.Handle, c Call, deliver func(string)) {
	err := a.engine.Submit(h, func() {
		deliver(a.Exec(context.Background(), h, c))
	})
	if err != nil {
		deliver(EncodeError(err))
	}
}

func (a *API) dispatch(ctx context.Context, h engine.Handle, c Call) (ir.Value, error) {
	switch c.Op {
	case OpCreateDatabase:
		cfg, err := resolveConfig(c.Config, c.ConfigFormat)
		if err != nil {
			return nil, err
		}
		if err := a.engine.CreateDatabase(ctx, h, cfg); err != nil {
			return nil, err
		}
		return ir.String(""), nil

	case OpDatabaseExists:
		cfg, err := resolveConfig(c.Config, c.ConfigFormat)
		if err != nil {
			return nil, err
		}
		ok, err := a.engine.DatabaseExists(ctx, h, cfg)
		if err != nil {
			return nil, err
		}
		return ir.Bool(ok), nil

	case OpDeleteDatabase:
		cfg, err := resolveConfig(c.Config, c.ConfigFormat)
		if err != nil {
			return nil, err
		}
		if err := a.engine.DeleteDatabase(ctx, h, cfg); err != nil {
			return nil, err
		}
		return ir.String(""), nil

	case OpTransact:
		cfg, err := resolveConfig(c.Config, c.ConfigFormat)
		if err != nil {
			return nil, err
		}
		txData, err := decodeData(c.Data, c.DataFormat)
		if err != nil {
			return nil, err
		}
		report, err := a.engine.Transact(ctx, h, cfg, txData)
		if err != nil {
			return nil, err
		}
		return report.ToValue(), nil

	case OpQuery:
		q, err := edn.Read(c.Query)
		if err != nil {
			return nil, err
		}
		inputs, err := a.loadInputs(ctx, h, c.Inputs, c.ConfigFormat)
		if err != nil {
			return nil, err
		}
		return a.engine.Query(ctx, h, q, inputs...)

	case OpPull, OpPullMany, OpEntity, OpDatoms, OpSchema, OpReverseSchema, OpMetrics:
		src, err := a.source(ctx, h, c)
		if err != nil {
			return nil, err
		}
		return a.inspect(src, c)
	}
	return nil, ir.Errorf(ir.CodeParse, "unknown operation %q", c.Op)
}

// inspect runs the read operations that take one database.
func (a *API) inspect(src *db.DB, c Call) (ir.Value, error) {
	switch c.Op {
	case OpPull, OpPullMany:
		selector, err := edn.Read(c.Selector)
		if err != nil {
			return nil, err
		}
		if c.Op == OpPull {
			return src.Pull(selector, entityArg(c.EID))
		}
		eids, err := edn.Read(c.EIDs)
		if err != nil {
			return nil, err
		}
		return src.PullMany(selector, eids)

	case OpEntity:
		return src.Entity(entityArg(c.EID))

	case OpDatoms:
		var components []ir.Value
		if strings.TrimSpace(c.Components) != "" {
			v, err := edn.Read(c.Components)
			if err != nil {
				return nil, err
			}
			items, ok := ir.Seq(v)
			if !ok {
				return nil, ir.Errorf(ir.CodeQuery, "datoms components must be a vector, got %s", edn.Print(v))
			}
			components = items
		}
		index := db.Index(strings.TrimPrefix(strings.TrimSpace(c.Index), ":"))
		datoms, err := src.Datoms(index, components...)
		if err != nil {
			return nil, err
		}
		out := make(ir.Vector, len(datoms))
		for i, d := range datoms {
			out[i] = d.Vector()
		}
		return out, nil

	case OpSchema:
		return src.SchemaValue(), nil
	case OpReverseSchema:
		return src.ReverseSchema(), nil
	default:
		return src.Metrics(), nil
	}
}

func entityArg(v ir.Value) ir.Value {
	if v == nil {
		return ir.Nil{}
	}
	return v
}
