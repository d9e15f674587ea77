// Package config resolves database configuration text into a Config.
//
// A configuration names a storage backend, its location or identity, and the
// schema-flexibility mode:
//
//	{:store {:backend :file :path "/tmp/x"} :schema-flexibility :write}
//
// Configurations may be written in edn, json or yaml. They are validated
// against an embedded CUE schema (schema.cue); missing required keys and
// unknown keys both fail with ir.CodeConfig.
package config

import (
	_ "embed"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/factdb/internal/codec"
	"github.com/roach88/factdb/internal/edn"
	"github.com/roach88/factdb/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// Backend identifies a storage backend.
type Backend string

const (
	BackendFile   Backend = "file"
	BackendBolt   Backend = "bolt"
	BackendMemory Backend = "memory"
)

// Durable reports whether the backend persists across processes.
func (b Backend) Durable() bool {
	return b == BackendFile || b == BackendBolt
}

// Flexibility is the schema-flexibility mode.
type Flexibility string

const (
	// FlexibilityRead rejects transactions that reference attributes absent
	// from the schema.
	FlexibilityRead Flexibility = "read"

	// FlexibilityWrite admits unseen attributes by installing them on the fly.
	FlexibilityWrite Flexibility = "write"
)

// Config is a validated database configuration.
type Config struct {
	Backend           Backend
	Path              string // absolute; file and bolt only
	ID                string // memory only
	SchemaFlexibility Flexibility
	KeepHistory       bool
	Name              string
}

// Key returns the canonical connection key. Two configurations with the same
// key address the same storage location.
func (c *Config) Key() string {
	if c.Backend.Durable() {
		return string(c.Backend) + ":" + c.Path
	}
	return string(c.Backend) + ":" + c.ID
}

// Value renders the configuration in its canonical map form.
func (c *Config) Value() ir.Map {
	store := []ir.MapEntry{ir.E(ir.KW("backend"), ir.KW(string(c.Backend)))}
	if c.Backend.Durable() {
		store = append(store, ir.E(ir.KW("path"), ir.String(c.Path)))
	} else {
		store = append(store, ir.E(ir.KW("id"), ir.String(c.ID)))
	}
	entries := []ir.MapEntry{
		ir.E(ir.KW("store"), ir.NewMap(store...)),
		ir.E(ir.KW("schema-flexibility"), ir.KW(string(c.SchemaFlexibility))),
		ir.E(ir.KW("keep-history?"), ir.Bool(c.KeepHistory)),
	}
	if c.Name != "" {
		entries = append(entries, ir.E(ir.KW("name"), ir.String(c.Name)))
	}
	return ir.NewMap(entries...)
}

// String returns the configuration as edn text.
func (c *Config) String() string {
	return edn.Print(c.Value())
}

// Resolve parses and validates configuration text.
func Resolve(raw string, format codec.Format) (*Config, error) {
	if format == codec.FormatCBOR {
		return nil, ir.Errorf(ir.CodeConfig, "configuration format %q is not supported", format)
	}
	v, err := codec.Decode(raw, format)
	if err != nil {
		return nil, &ir.Error{Code: ir.CodeConfig, Message: "parse configuration", Err: err}
	}
	return FromValue(v)
}

// FromValue validates an already-decoded configuration value.
func FromValue(v ir.Value) (*Config, error) {
	if _, ok := v.(ir.Map); !ok {
		return nil, ir.Errorf(ir.CodeConfig, "configuration must be a map, got %s", v.Kind())
	}

	def, err := schemaDef()
	if err != nil {
		return nil, err
	}

	// A cue.Context is not safe for concurrent use.
	schemaMu.Lock()
	defer schemaMu.Unlock()

	data := def.Context().Encode(toCUEInput(v))
	unified := def.Unify(data)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var doc struct {
		Store struct {
			Backend string `json:"backend"`
			Path    string `json:"path"`
			ID      string `json:"id"`
		} `json:"store"`
		SchemaFlexibility string `json:"schema-flexibility"`
		KeepHistory       *bool  `json:"keep-history?"`
		Name              string `json:"name"`
	}
	if err := unified.Decode(&doc); err != nil {
		return nil, formatCUEError(err)
	}

	cfg := &Config{
		Backend:           Backend(doc.Store.Backend),
		ID:                doc.Store.ID,
		SchemaFlexibility: Flexibility(doc.SchemaFlexibility),
		KeepHistory:       true,
		Name:              doc.Name,
	}
	if cfg.Backend == "mem" {
		cfg.Backend = BackendMemory
	}
	if doc.KeepHistory != nil {
		cfg.KeepHistory = *doc.KeepHistory
	}
	if cfg.Backend.Durable() {
		abs, err := filepath.Abs(doc.Store.Path)
		if err != nil {
			return nil, &ir.Error{Code: ir.CodeConfig, Message: "resolve store path", Err: err}
		}
		cfg.Path = filepath.Clean(abs)
	}
	return cfg, nil
}

var (
	schemaMu   sync.Mutex
	schemaOnce sync.Once
	schemaVal  cue.Value
	schemaErr  error
)

// schemaDef compiles the embedded schema once per process.
func schemaDef() (cue.Value, error) {
	schemaOnce.Do(func() {
		ctx := cuecontext.New()
		v := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile configuration schema: %w", err)
			return
		}
		schemaVal = v.LookupPath(cue.ParsePath("#Config"))
	})
	return schemaVal, schemaErr
}

// toCUEInput converts a decoded value into plain Go data for CUE. Keywords
// become their names, so :file and "file" are equivalent.
func toCUEInput(v ir.Value) any {
	switch val := v.(type) {
	case ir.Map:
		out := make(map[string]any, val.Len())
		for _, e := range val.Entries() {
			out[keyName(e.Key)] = toCUEInput(e.Value)
		}
		return out
	case ir.Keyword:
		return string(val)
	case ir.String:
		return string(val)
	case ir.Symbol:
		return string(val)
	case ir.Bool:
		return bool(val)
	case ir.Int:
		return int64(val)
	case ir.Float:
		return float64(val)
	case ir.Nil:
		return nil
	}
	if items, ok := ir.Seq(v); ok {
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = toCUEInput(item)
		}
		return out
	}
	return edn.Print(v)
}

func keyName(k ir.Value) string {
	switch key := k.(type) {
	case ir.Keyword:
		return string(key)
	case ir.String:
		return strings.TrimPrefix(string(key), ":")
	default:
		return edn.Print(k)
	}
}

// formatCUEError converts CUE validation errors into a ConfigError carrying
// the first message and its path.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ir.Error{Code: ir.CodeConfig, Message: "invalid configuration", Err: err}
	}

	first := errs[0]
	format, args := first.Msg()
	fe := ir.Errorf(ir.CodeConfig, "invalid configuration: %s", fmt.Sprintf(format, args...))
	if path := first.Path(); len(path) > 0 {
		fe.With("path", strings.Join(path, "."))
	}
	return fe
}
