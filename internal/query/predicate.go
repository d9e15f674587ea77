package query

import (
	"cmp"

	"github.com/roach88/factdb/internal/db"
	"github.com/roach88/factdb/internal/edn"
	"github.com/roach88/factdb/internal/ir"
)

func evalPredicate(p Predicate, args []ir.Value, src *db.DB) (bool, error) {
	switch p.Op {
	case "=":
		for _, a := range args[1:] {
			if !ir.Equal(args[0], a) {
				return false, nil
			}
		}
		return true, nil
	case "!=", "not=":
		for _, a := range args[1:] {
			if !ir.Equal(args[0], a) {
				return true, nil
			}
		}
		return false, nil
	case "<", "<=", ">", ">=":
		for i := 1; i < len(args); i++ {
			if !ordered(p.Op, args[i-1], args[i]) {
				return false, nil
			}
		}
		return true, nil
	case "missing?":
		return missing(src, args[0], args[1])
	}
	return false, queryErr("unknown predicate %s", p.Op)
}

// ordered compares a and b with op. Values of unrelated kinds never
// satisfy a comparison.
func ordered(op string, a, b ir.Value) bool {
	if !orderable(a, b) {
		return false
	}
	c := ir.Compare(a, b)
	if a.Kind() != b.Kind() {
		c = cmp.Compare(toFloat(a), toFloat(b))
	}
	switch op {
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	default:
		return c >= 0
	}
}

func orderable(a, b ir.Value) bool {
	numeric := func(v ir.Value) bool {
		k := v.Kind()
		return k == ir.KindInt || k == ir.KindFloat
	}
	if numeric(a) && numeric(b) {
		return !ir.IsNaN(a) && !ir.IsNaN(b)
	}
	return a.Kind() == b.Kind()
}

func toFloat(v ir.Value) float64 {
	if i, ok := v.(ir.Int); ok {
		return float64(i)
	}
	return float64(v.(ir.Float))
}

func missing(src *db.DB, e, a ir.Value) (bool, error) {
	attr, ok := a.(ir.Keyword)
	if !ok {
		return false, queryErr("missing? takes an attribute keyword, got %s", edn.Print(a))
	}
	eid, ok, err := src.ResolveEntity(e)
	if err != nil || !ok {
		return true, nil
	}
	found := false
	src.Search(db.Pattern{E: eid, A: attr}, func(d ir.Datom) bool {
		if d.Added {
			found = true
		}
		return !found
	})
	return !found, nil
}
