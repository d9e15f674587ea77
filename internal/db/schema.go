package db

import (
	"maps"
	"sort"

	"github.com/roach88/factdb/internal/edn"
	"github.com/roach88/factdb/internal/ir"
)

// Schema attribute idents.
const (
	attrIdent       ir.Keyword = "db/ident"
	attrValueType   ir.Keyword = "db/valueType"
	attrCardinality ir.Keyword = "db/cardinality"
	attrUnique      ir.Keyword = "db/unique"
	attrIndex       ir.Keyword = "db/index"
	attrNoHistory   ir.Keyword = "db/noHistory"
	attrDoc         ir.Keyword = "db/doc"
	attrTxInstant   ir.Keyword = "db/txInstant"
	attrID          ir.Keyword = "db/id"
)

// systemAttrs are built in and never stored as entities.
var systemAttrs = map[ir.Keyword]ir.Attribute{
	attrIdent:       {Ident: attrIdent, ValueType: ir.TypeKeyword, Cardinality: ir.CardinalityOne, Unique: ir.UniqueIdentity},
	attrValueType:   {Ident: attrValueType, ValueType: ir.TypeKeyword, Cardinality: ir.CardinalityOne},
	attrCardinality: {Ident: attrCardinality, ValueType: ir.TypeKeyword, Cardinality: ir.CardinalityOne},
	attrUnique:      {Ident: attrUnique, ValueType: ir.TypeKeyword, Cardinality: ir.CardinalityOne},
	attrIndex:       {Ident: attrIndex, ValueType: ir.TypeBoolean, Cardinality: ir.CardinalityOne},
	attrNoHistory:   {Ident: attrNoHistory, ValueType: ir.TypeBoolean, Cardinality: ir.CardinalityOne},
	attrDoc:         {Ident: attrDoc, ValueType: ir.TypeString, Cardinality: ir.CardinalityOne},
	attrTxInstant:   {Ident: attrTxInstant, ValueType: ir.TypeInstant, Cardinality: ir.CardinalityOne, Index: true},
}

// isSchemaAttr reports whether datoms of a define schema.
func isSchemaAttr(a ir.Keyword) bool {
	_, ok := systemAttrs[a]
	return ok && a != attrTxInstant
}

func isSystemAttr(a ir.Keyword) bool {
	_, ok := systemAttrs[a]
	return ok
}

// Schema is the set of installed attributes and idents of a revision.
// It is immutable; derive returns a modified copy.
type Schema struct {
	attrs  map[ir.Keyword]ir.Attribute
	idents map[ir.Keyword]int64
	byID   map[int64]ir.Keyword
}

func newSchema() *Schema {
	return &Schema{
		attrs:  map[ir.Keyword]ir.Attribute{},
		idents: map[ir.Keyword]int64{},
		byID:   map[int64]ir.Keyword{},
	}
}

// Attr returns the definition of a system or installed attribute.
func (s *Schema) Attr(a ir.Keyword) (ir.Attribute, bool) {
	if attr, ok := systemAttrs[a]; ok {
		return attr, true
	}
	attr, ok := s.attrs[a]
	return attr, ok
}

// Ident resolves an ident keyword to its entity id.
func (s *Schema) Ident(k ir.Keyword) (int64, bool) {
	e, ok := s.idents[k]
	return e, ok
}

// Attributes returns the installed attributes ordered by ident.
func (s *Schema) Attributes() []ir.Attribute {
	out := make([]ir.Attribute, 0, len(s.attrs))
	for _, a := range s.attrs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ident < out[j].Ident })
	return out
}

// derive rebuilds the definitions of the given entities from the schema
// datoms live in db.
func (s *Schema) derive(db *DB, entities []int64) *Schema {
	next := &Schema{
		attrs:  maps.Clone(s.attrs),
		idents: maps.Clone(s.idents),
		byID:   maps.Clone(s.byID),
	}
	for _, e := range entities {
		if old, ok := next.byID[e]; ok {
			delete(next.byID, e)
			// Another entity may already have taken the ident over.
			if next.idents[old] == e {
				delete(next.idents, old)
				delete(next.attrs, old)
			}
		}
		if attr, ok := attributeOf(db, e); ok {
			next.byID[e] = attr.Ident
			next.idents[attr.Ident] = e
			if attr.Cardinality != "" {
				next.attrs[attr.Ident] = attr
			}
		}
	}
	return next
}

// attributeOf reads the schema datoms of entity e. An entity with an ident
// but neither value type nor cardinality is a plain ident (enum) entity and
// comes back with an empty Cardinality.
func attributeOf(db *DB, e int64) (ir.Attribute, bool) {
	attr := ir.Attribute{ID: e}
	var defined bool
	db.eavt.AscendGreaterOrEqual(ir.Datom{E: e}, func(d ir.Datom) bool {
		if d.E != e {
			return false
		}
		switch d.A {
		case attrIdent:
			attr.Ident, _ = d.V.(ir.Keyword)
		case attrValueType:
			if k, ok := d.V.(ir.Keyword); ok {
				attr.ValueType = ir.ValueType(k)
			}
			defined = true
		case attrCardinality:
			if k, ok := d.V.(ir.Keyword); ok {
				attr.Cardinality = ir.Cardinality(k)
			}
			defined = true
		case attrUnique:
			if k, ok := d.V.(ir.Keyword); ok {
				attr.Unique = ir.Uniqueness(k)
			}
		case attrIndex:
			attr.Index = d.V == ir.Bool(true)
		case attrNoHistory:
			attr.NoHistory = d.V == ir.Bool(true)
		case attrDoc:
			if str, ok := d.V.(ir.String); ok {
				attr.Doc = string(str)
			}
		}
		return true
	})
	if attr.Ident == "" {
		return ir.Attribute{}, false
	}
	if defined && attr.Cardinality == "" {
		attr.Cardinality = ir.CardinalityOne
	}
	if !defined {
		attr.Cardinality = ""
	}
	return attr, true
}

// validateSchemaValue checks the value of a schema datom.
func validateSchemaValue(a ir.Keyword, v ir.Value) error {
	k, _ := v.(ir.Keyword)
	switch a {
	case attrValueType:
		if !ir.ValidValueTypes[ir.ValueType(k)] {
			return ir.Errorf(ir.CodeSchemaViolation, "invalid :db/valueType %v", v)
		}
	case attrCardinality:
		if c := ir.Cardinality(k); c != ir.CardinalityOne && c != ir.CardinalityMany {
			return ir.Errorf(ir.CodeSchemaViolation, "invalid :db/cardinality %v", v)
		}
	case attrUnique:
		if u := ir.Uniqueness(k); u != ir.UniqueIdentity && u != ir.UniqueValue {
			return ir.Errorf(ir.CodeSchemaViolation, "invalid :db/unique %v", v)
		}
	case attrIdent:
		if k == "" {
			return ir.Errorf(ir.CodeSchemaViolation, ":db/ident must be a keyword, got %v", v)
		}
		if k.Namespace() == "db" {
			return ir.Errorf(ir.CodeSchemaViolation, "ident %s is in the reserved :db namespace", k)
		}
	}
	return nil
}

// checkRedefinitions rejects changes to the value type or cardinality of an
// attribute. Every attribute in after is compared with the definition base
// holds under the same ident and with the one its entity held before a
// rename. An ident base does not define must fit the values still stored
// under it.
func checkRedefinitions(base *DB, after *Schema) error {
	before := base.schema
	for _, now := range after.Attributes() {
		old, defined := before.attrs[now.Ident]
		if defined {
			if err := compareDefinitions(old, now); err != nil {
				return err
			}
		}
		if prev, ok := before.byID[now.ID]; ok && prev != now.Ident {
			if renamed, ok := before.attrs[prev]; ok {
				if err := compareDefinitions(renamed, now); err != nil {
					return err
				}
			}
		}
		if !defined {
			if err := checkStoredValues(base, now); err != nil {
				return err
			}
		}
	}
	return nil
}

func compareDefinitions(old, now ir.Attribute) error {
	if now.ValueType != old.ValueType {
		return ir.Errorf(ir.CodeSchemaViolation, "cannot change :db/valueType of %s from %s to %s",
			now.Ident, typeName(old.ValueType), typeName(now.ValueType)).With("attribute", now.Ident.String())
	}
	if now.Cardinality != old.Cardinality {
		return ir.Errorf(ir.CodeSchemaViolation, "cannot change :db/cardinality of %s from %s to %s",
			now.Ident, old.Cardinality, now.Cardinality).With("attribute", now.Ident.String())
	}
	return nil
}

// checkStoredValues rejects a definition that live datoms left behind by an
// earlier, retracted definition of the same ident do not satisfy.
func checkStoredValues(base *DB, attr ir.Attribute) error {
	var err error
	last := int64(-1)
	base.aevt.AscendGreaterOrEqual(ir.Datom{A: attr.Ident}, func(d ir.Datom) bool {
		if d.A != attr.Ident {
			return false
		}
		if v, cerr := coerce(attr, d.V); cerr != nil || !ir.Equal(v, d.V) {
			err = ir.Errorf(ir.CodeSchemaViolation, "stored value %s of entity %d does not fit %s as %s",
				edn.Print(d.V), d.E, attr.Ident, typeName(attr.ValueType)).With("attribute", attr.Ident.String())
			return false
		}
		if !attr.Many() && d.E == last {
			err = ir.Errorf(ir.CodeSchemaViolation, "entity %d holds several values of %s",
				d.E, attr.Ident).With("attribute", attr.Ident.String())
			return false
		}
		last = d.E
		return true
	})
	return err
}

func typeName(t ir.ValueType) string {
	if t == ir.TypeAny {
		return "untyped"
	}
	return string(t)
}
