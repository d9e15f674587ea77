package db

import (
	"strings"

	"github.com/roach88/factdb/internal/edn"
	"github.com/roach88/factdb/internal/ir"
)

// ResolveEntity turns an entity reference into an id: a positive integer,
// an ident keyword, or a lookup ref [unique-attr value]. The boolean is false
// when the reference is well formed but names no entity.
func (db *DB) ResolveEntity(v ir.Value) (int64, bool, error) {
	r, ok := parseRef(v)
	if !ok || r.kind == refTemp {
		return 0, false, ir.Errorf(ir.CodeQuery, "invalid entity reference %s", edn.Print(v))
	}
	switch r.kind {
	case refIdent:
		e, ok := db.schema.Ident(r.attr)
		return e, ok, nil
	case refLookup:
		attr, ok := db.schema.Attr(r.attr)
		if !ok || attr.Unique == ir.UniqueNone {
			return 0, false, ir.Errorf(ir.CodeQuery, "lookup ref attribute %s is not unique", r.attr)
		}
		val, err := coerce(attr, r.val)
		if err != nil {
			return 0, false, nil
		}
		e, ok := db.owner(r.attr, val)
		return e, ok, nil
	default:
		return r.id, true, nil
	}
}

// LookupValue converts a constant to the representation stored for
// attribute a: ref values resolve as entity references and typed values are
// coerced. ok is false when no datom of a can hold v.
func (db *DB) LookupValue(a ir.Keyword, v ir.Value) (ir.Value, bool) {
	attr, known := db.schema.Attr(a)
	if !known {
		return v, true
	}
	if attr.IsRef() {
		e, ok, err := db.ResolveEntity(v)
		if err != nil || !ok {
			return nil, false
		}
		return ir.Int(e), true
	}
	out, err := coerce(attr, v)
	if err != nil {
		return nil, false
	}
	return out, true
}

// Pull returns the attributes of an entity selected by a pull pattern.
//
// A selector is a vector of:
//   - *                  every attribute
//   - :db/id             the entity id
//   - :attr              one attribute
//   - :ns/_attr          entities referencing this one through :ns/attr
//   - {:attr selector}   a ref attribute, pulling the referenced entities
//
// Missing attributes are omitted; cardinality-many values come back as
// vectors. Pull returns nil when nothing is selected.
func (db *DB) Pull(selector ir.Value, eid ir.Value) (ir.Value, error) {
	pattern, err := parseSelector(selector)
	if err != nil {
		return nil, err
	}
	e, ok, err := db.ResolveEntity(eid)
	if err != nil {
		return nil, err
	}
	if !ok {
		return ir.Nil{}, nil
	}
	return db.pull(pattern, e), nil
}

// PullMany pulls each entity of eids, in order.
func (db *DB) PullMany(selector ir.Value, eids ir.Value) (ir.Value, error) {
	pattern, err := parseSelector(selector)
	if err != nil {
		return nil, err
	}
	items, ok := ir.Seq(eids)
	if !ok {
		return nil, ir.Errorf(ir.CodeQuery, "pull-many expects a collection of entities, got %s", edn.Print(eids))
	}
	out := make(ir.Vector, 0, len(items))
	for _, item := range items {
		e, ok, err := db.ResolveEntity(item)
		if err != nil {
			return nil, err
		}
		if !ok {
			out = append(out, ir.Nil{})
			continue
		}
		out = append(out, db.pull(pattern, e))
	}
	return out, nil
}

// Entity returns every attribute of an entity together with its :db/id.
func (db *DB) Entity(eid ir.Value) (ir.Value, error) {
	return db.Pull(ir.Vector{ir.Symbol("*")}, eid)
}

type pullAttr struct {
	key     ir.Keyword // as written in the selector
	attr    ir.Keyword
	reverse bool
	sub     *selector
}

type selector struct {
	wildcard bool
	id       bool
	attrs    []pullAttr
}

func parseSelector(v ir.Value) (*selector, error) {
	items, ok := ir.Seq(v)
	if !ok {
		return nil, ir.Errorf(ir.CodeQuery, "pull selector must be a vector, got %s", edn.Print(v))
	}
	sel := &selector{}
	for _, item := range items {
		switch x := item.(type) {
		case ir.Symbol:
			if x != "*" {
				return nil, ir.Errorf(ir.CodeQuery, "unknown pull selector symbol %s", x)
			}
			sel.wildcard = true
		case ir.String:
			if x != "*" {
				return nil, ir.Errorf(ir.CodeQuery, "unknown pull selector %q", string(x))
			}
			sel.wildcard = true
		case ir.Keyword:
			if x == attrID {
				sel.id = true
				continue
			}
			sel.attrs = append(sel.attrs, pullKey(x, nil))
		case ir.Map:
			for _, entry := range x.Entries() {
				k, ok := entry.Key.(ir.Keyword)
				if !ok {
					return nil, ir.Errorf(ir.CodeQuery, "pull map key must be a keyword, got %s", edn.Print(entry.Key))
				}
				sub, err := parseSelector(entry.Value)
				if err != nil {
					return nil, err
				}
				sel.attrs = append(sel.attrs, pullKey(k, sub))
			}
		default:
			return nil, ir.Errorf(ir.CodeQuery, "invalid pull selector element %s", edn.Print(item))
		}
	}
	return sel, nil
}

func pullKey(k ir.Keyword, sub *selector) pullAttr {
	if name := k.Name(); strings.HasPrefix(name, "_") {
		forward := ir.Keyword(name[1:])
		if ns := k.Namespace(); ns != "" {
			forward = ir.Keyword(ns + "/" + name[1:])
		}
		return pullAttr{key: k, attr: forward, reverse: true, sub: sub}
	}
	return pullAttr{key: k, attr: k, sub: sub}
}

func (db *DB) pull(sel *selector, e int64) ir.Value {
	var entries []ir.MapEntry

	grouped := map[ir.Keyword][]ir.Value{}
	var order []ir.Keyword
	db.Search(Pattern{E: e}, func(d ir.Datom) bool {
		if !d.Added {
			return true
		}
		if _, ok := grouped[d.A]; !ok {
			order = append(order, d.A)
		}
		grouped[d.A] = append(grouped[d.A], d.V)
		return true
	})

	explicit := map[ir.Keyword]bool{}
	for _, pa := range sel.attrs {
		if pa.reverse {
			if v, ok := db.pullReverse(pa, e); ok {
				entries = append(entries, ir.E(pa.key, v))
			}
			continue
		}
		explicit[pa.attr] = true
		vals, ok := grouped[pa.attr]
		if !ok {
			continue
		}
		entries = append(entries, ir.E(pa.attr, db.pullValues(pa.attr, vals, pa.sub)))
	}
	if sel.wildcard {
		for _, a := range order {
			if !explicit[a] {
				entries = append(entries, ir.E(a, db.pullValues(a, grouped[a], nil)))
			}
		}
	}

	if len(entries) == 0 {
		return ir.Nil{}
	}
	if sel.id || sel.wildcard {
		entries = append(entries, ir.E(attrID, ir.Int(e)))
	}
	return ir.NewMap(entries...)
}

func (db *DB) pullValues(a ir.Keyword, vals []ir.Value, sub *selector) ir.Value {
	attr, _ := db.schema.Attr(a)
	out := make(ir.Vector, len(vals))
	for i, v := range vals {
		out[i] = db.pullRef(attr, v, sub)
	}
	if attr.Many() {
		return out
	}
	return out[0]
}

func (db *DB) pullRef(attr ir.Attribute, v ir.Value, sub *selector) ir.Value {
	target, ok := v.(ir.Int)
	if !attr.IsRef() || !ok {
		return v
	}
	if sub == nil {
		return ir.NewMap(ir.E(attrID, target))
	}
	if pulled := db.pull(sub, int64(target)); pulled != (ir.Nil{}) {
		return pulled
	}
	return ir.NewMap(ir.E(attrID, target))
}

func (db *DB) pullReverse(pa pullAttr, e int64) (ir.Value, bool) {
	var out ir.Vector
	db.Search(Pattern{A: pa.attr, V: ir.Int(e)}, func(d ir.Datom) bool {
		if !d.Added {
			return true
		}
		if pa.sub == nil {
			out = append(out, ir.NewMap(ir.E(attrID, ir.Int(d.E))))
		} else if pulled := db.pull(pa.sub, d.E); pulled != (ir.Nil{}) {
			out = append(out, pulled)
		}
		return true
	})
	return out, len(out) > 0
}
