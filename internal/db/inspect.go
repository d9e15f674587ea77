package db

import (
	"slices"

	"github.com/google/btree"

	"github.com/roach88/factdb/internal/edn"
	"github.com/roach88/factdb/internal/ir"
)

// Datoms returns the visible datoms of an index whose leading components
// equal the given ones, in index order. Components are values in index
// order: e a v tx for EAVT, a e v tx for AEVT, a v e tx for AVET. Entity
// components may be idents or lookup refs.
func (db *DB) Datoms(index Index, components ...ir.Value) ([]ir.Datom, error) {
	var order []string
	var tree *btree.BTreeG[ir.Datom]
	switch index {
	case IndexEAVT:
		order, tree = []string{"e", "a", "v", "tx"}, db.eavt
	case IndexAEVT:
		order, tree = []string{"a", "e", "v", "tx"}, db.aevt
	case IndexAVET:
		order, tree = []string{"a", "v", "e", "tx"}, db.avet
	default:
		return nil, ir.Errorf(ir.CodeQuery, "unknown index %q", index)
	}
	if len(components) > len(order) {
		return nil, ir.Errorf(ir.CodeQuery, "index %s takes at most %d components", index, len(order))
	}

	var p Pattern
	for i, c := range components {
		switch order[i] {
		case "e":
			e, ok, err := db.ResolveEntity(c)
			if err != nil {
				return nil, err
			}
			if !ok {
				return []ir.Datom{}, nil
			}
			p.E = e
		case "a":
			a, ok := c.(ir.Keyword)
			if !ok {
				return nil, ir.Errorf(ir.CodeQuery, "attribute component must be a keyword, got %s", edn.Print(c))
			}
			p.A = a
		case "v":
			p.V = c
			if attr, ok := db.schema.Attr(p.A); ok && p.A != "" {
				if v, err := coerce(attr, c); err == nil {
					p.V = v
				}
			}
		case "tx":
			tx, ok := c.(ir.Int)
			if !ok {
				return nil, ir.Errorf(ir.CodeQuery, "tx component must be an integer, got %s", edn.Print(c))
			}
			p.Tx = int64(tx)
		}
	}

	prefix := order[:len(components)]
	inPrefix := func(d ir.Datom) bool {
		for _, c := range prefix {
			switch {
			case c == "e" && d.E != p.E,
				c == "a" && d.A != p.A,
				c == "v" && !ir.Equal(d.V, p.V),
				c == "tx" && d.Tx != p.Tx:
				return false
			}
		}
		return true
	}
	pivot := ir.Datom{E: p.E, A: p.A, V: p.V, Tx: p.Tx}

	out := []ir.Datom{}
	visit := func(d ir.Datom) bool {
		if !inPrefix(d) {
			return false
		}
		if db.view != viewSince || d.Tx > db.viewTx {
			out = append(out, d)
		}
		return true
	}
	if db.view == viewHistory {
		if index == IndexEAVT {
			db.hist.AscendGreaterOrEqual(pivot, visit)
			return out, nil
		}
		// The history tree is in EAVT order only.
		db.hist.Ascend(func(d ir.Datom) bool {
			if inPrefix(d) {
				out = append(out, d)
			}
			return true
		})
		sortDatoms(out, index)
		return out, nil
	}
	tree.AscendGreaterOrEqual(pivot, visit)
	return out, nil
}

func sortDatoms(ds []ir.Datom, index Index) {
	less := lessAEVT
	if index == IndexAVET {
		less = lessAVET
	}
	slices.SortFunc(ds, func(a, b ir.Datom) int {
		switch {
		case less(a, b):
			return -1
		case less(b, a):
			return 1
		case a.Added == b.Added:
			return 0
		case !a.Added:
			return -1
		default:
			return 1
		}
	})
}

// SchemaValue renders the installed attributes as {ident {attr-map}}.
func (db *DB) SchemaValue() ir.Map {
	attrs := db.schema.Attributes()
	entries := make([]ir.MapEntry, len(attrs))
	for i, a := range attrs {
		entries[i] = ir.E(a.Ident, a.ToMap())
	}
	return ir.NewMap(entries...)
}

// ReverseSchema renders {property #{idents}} for the installed attributes.
// Every attribute appears under :db/ident.
func (db *DB) ReverseSchema() ir.Map {
	groups := map[ir.Keyword][]ir.Value{}
	add := func(k ir.Keyword, ident ir.Keyword) {
		groups[k] = append(groups[k], ident)
	}
	for _, a := range db.schema.Attributes() {
		add(attrIdent, a.Ident)
		if a.Unique != ir.UniqueNone {
			add(attrUnique, a.Ident)
			add(ir.Keyword(a.Unique), a.Ident)
		}
		if a.Index {
			add(attrIndex, a.Ident)
		}
		if a.Many() {
			add(ir.Keyword(ir.CardinalityMany), a.Ident)
		}
		if a.IsRef() {
			add(ir.Keyword(ir.TypeRef), a.Ident)
		}
		if a.NoHistory {
			add(attrNoHistory, a.Ident)
		}
	}
	entries := make([]ir.MapEntry, 0, len(groups))
	for k, idents := range groups {
		entries = append(entries, ir.E(k, ir.NewSet(idents...)))
	}
	return ir.NewMap(entries...)
}

// Metrics summarizes the datoms visible in the revision's view:
//
//	{:count n :avet-count n :per-attr-counts {a n} :per-entity-counts {e n} :temporal-count n}
//
// Every attribute is indexed in AVET, so :avet-count equals :count.
// :temporal-count counts the history datoms the view can see and is 0 when
// history is not kept.
func (db *DB) Metrics() ir.Map {
	perAttr := map[ir.Keyword]int64{}
	perEntity := map[int64]int64{}
	var count int64
	db.Search(Pattern{}, func(d ir.Datom) bool {
		perAttr[d.A]++
		perEntity[d.E]++
		count++
		return true
	})

	attrEntries := make([]ir.MapEntry, 0, len(perAttr))
	for a, n := range perAttr {
		attrEntries = append(attrEntries, ir.E(a, ir.Int(n)))
	}
	entityEntries := make([]ir.MapEntry, 0, len(perEntity))
	for e, n := range perEntity {
		entityEntries = append(entityEntries, ir.E(ir.Int(e), ir.Int(n)))
	}

	var temporal int64
	if db.hist != nil {
		db.hist.Ascend(func(d ir.Datom) bool {
			if db.view != viewSince || d.Tx > db.viewTx {
				temporal++
			}
			return true
		})
	}
	return ir.NewMap(
		ir.E(ir.KW("count"), ir.Int(count)),
		ir.E(ir.KW("avet-count"), ir.Int(count)),
		ir.E(ir.KW("per-attr-counts"), ir.NewMap(attrEntries...)),
		ir.E(ir.KW("per-entity-counts"), ir.NewMap(entityEntries...)),
		ir.E(ir.KW("temporal-count"), ir.Int(temporal)),
	)
}
