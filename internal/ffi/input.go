package ffi

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/factdb/internal/codec"
	"github.com/roach88/factdb/internal/config"
	"github.com/roach88/factdb/internal/db"
	"github.com/roach88/factdb/internal/engine"
	"github.com/roach88/factdb/internal/ir"
)

func resolveConfig(raw, format string) (*config.Config, error) {
	f, err := codec.ParseFormat(format)
	if err != nil {
		return nil, &ir.Error{Code: ir.CodeConfig, Message: "configuration format", Err: err}
	}
	return config.Resolve(raw, f)
}

func decodeData(raw, format string) (ir.Value, error) {
	f, err := codec.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	return codec.Decode(raw, f)
}

// loadInput reads one tagged input. Database tags yield a *db.DB, data tags
// an ir.Value. The raw text of a database tag is a configuration in
// configFormat.
func (a *API) loadInput(ctx context.Context, h engine.Handle, in Input, configFormat string) (any, error) {
	tag, arg, hasArg := strings.Cut(in.Format, ":")
	switch tag {
	case "edn", "json", "cbor":
		if hasArg {
			break
		}
		return codec.Decode(in.Raw, codec.Format(tag))
	case "db", "history", "since", "asof":
		return a.loadDB(ctx, h, tag, arg, hasArg, in.Raw, configFormat)
	}
	return nil, ir.Errorf(ir.CodeParse, "unsupported input format %q", in.Format)
}

func (a *API) loadDB(ctx context.Context, h engine.Handle, tag, arg string, hasArg bool, raw, configFormat string) (*db.DB, error) {
	timed := tag == "since" || tag == "asof"
	if timed != hasArg {
		return nil, ir.Errorf(ir.CodeParse, "input format %q: malformed tag", tag+":"+arg)
	}
	var at time.Time
	if timed {
		ms, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, &ir.Error{Code: ir.CodeParse, Message: "input format " + tag + ": instant must be unix milliseconds", Err: err}
		}
		at = time.UnixMilli(ms)
	}

	cfg, err := resolveConfig(raw, configFormat)
	if err != nil {
		return nil, err
	}
	current, err := a.engine.DB(ctx, h, cfg)
	if err != nil {
		return nil, err
	}
	switch tag {
	case "history":
		return current.History()
	case "since":
		return current.Since(at)
	case "asof":
		return current.AsOf(at)
	default:
		return current, nil
	}
}

func (a *API) loadInputs(ctx context.Context, h engine.Handle, ins []Input, configFormat string) ([]any, error) {
	out := make([]any, len(ins))
	for i, in := range ins {
		v, err := a.loadInput(ctx, h, in, configFormat)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// source loads the single database input of pull, entity, datoms, schema,
// reverse-schema and metrics.
func (a *API) source(ctx context.Context, h engine.Handle, c Call) (*db.DB, error) {
	if len(c.Inputs) != 1 {
		return nil, ir.Errorf(ir.CodeQuery, "%s takes one database input, got %d", c.Op, len(c.Inputs))
	}
	v, err := a.loadInput(ctx, h, c.Inputs[0], c.ConfigFormat)
	if err != nil {
		return nil, err
	}
	src, ok := v.(*db.DB)
	if !ok {
		return nil, ir.Errorf(ir.CodeQuery, "%s: input format %q is not a database", c.Op, c.Inputs[0].Format)
	}
	return src, nil
}
