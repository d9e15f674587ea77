package query

import (
	"github.com/roach88/factdb/internal/db"
	"github.com/roach88/factdb/internal/edn"
	"github.com/roach88/factdb/internal/ir"
)

// project turns the final relation into the shape :find asks for.
//
// The relation is first reduced to the set of distinct tuples over the
// :find and :with variables. Without aggregates each tuple yields one result.
// With aggregates the tuples are grouped by the non-aggregate elements and
// each aggregate folds over its group, so :with variables keep otherwise
// equal tuples apart.
func (q *Query) project(rel *relation, sources map[ir.Symbol]*db.DB) (ir.Value, error) {
	var columns []Var
	seen := map[Var]bool{}
	addColumn := func(v Var) {
		if !seen[v] {
			seen[v] = true
			columns = append(columns, v)
		}
	}
	hasAggregate := false
	for _, elem := range q.Find {
		switch x := elem.(type) {
		case Var:
			addColumn(x)
		case Pull:
			addColumn(x.Var)
		case Aggregate:
			addColumn(x.Arg)
			hasAggregate = true
		}
	}
	for _, v := range q.With {
		addColumn(v)
	}
	at := make(map[Var]int, len(columns))
	for i, v := range columns {
		at[v] = i
	}

	projected := make([]ir.Value, 0, len(rel.rows))
	for _, row := range rel.rows {
		tuple := make(ir.Vector, len(columns))
		for i, v := range columns {
			tuple[i] = row[rel.cols[v]]
		}
		projected = append(projected, tuple)
	}
	distinct := ir.NewSet(projected...).Items()

	var results []ir.Vector
	if hasAggregate {
		var err error
		if results, err = q.aggregate(distinct, at); err != nil {
			return nil, err
		}
	} else {
		for _, item := range distinct {
			tuple := item.(ir.Vector)
			out := make(ir.Vector, len(q.Find))
			for i, elem := range q.Find {
				switch x := elem.(type) {
				case Var:
					out[i] = tuple[at[x]]
				case Pull:
					out[i] = tuple[at[x.Var]]
				}
			}
			results = append(results, out)
		}
	}

	for _, r := range results {
		for i, elem := range q.Find {
			if p, ok := elem.(Pull); ok {
				pulled, err := sources[p.Src].Pull(p.Selector, r[i])
				if err != nil {
					return nil, err
				}
				r[i] = pulled
			}
		}
	}

	return q.shape(results), nil
}

type group struct {
	key  ir.Vector
	rows []ir.Vector
}

func (q *Query) aggregate(tuples []ir.Value, at map[Var]int) ([]ir.Vector, error) {
	var groups []*group
	index := map[string]*group{}
	for _, item := range tuples {
		tuple := item.(ir.Vector)
		key := ir.Vector{}
		for _, elem := range q.Find {
			switch x := elem.(type) {
			case Var:
				key = append(key, tuple[at[x]])
			case Pull:
				key = append(key, tuple[at[x.Var]])
			}
		}
		k := edn.Print(key)
		g, ok := index[k]
		if !ok {
			g = &group{key: key}
			index[k] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, tuple)
	}

	out := make([]ir.Vector, 0, len(groups))
	for _, g := range groups {
		result := make(ir.Vector, len(q.Find))
		k := 0
		for i, elem := range q.Find {
			agg, ok := elem.(Aggregate)
			if !ok {
				result[i] = g.key[k]
				k++
				continue
			}
			vals := make([]ir.Value, len(g.rows))
			for j, row := range g.rows {
				vals[j] = row[at[agg.Arg]]
			}
			v, err := fold(agg.Fn, vals)
			if err != nil {
				return nil, err
			}
			result[i] = v
		}
		out = append(out, result)
	}
	return out, nil
}

// fold applies an aggregate function to the values of one group.
func fold(fn string, vals []ir.Value) (ir.Value, error) {
	switch fn {
	case "count":
		return ir.Int(len(vals)), nil
	case "count-distinct":
		return ir.Int(ir.NewSet(vals...).Len()), nil
	case "distinct":
		return ir.NewSet(vals...), nil
	case "min", "max":
		best := vals[0]
		for _, v := range vals[1:] {
			c := ir.Compare(v, best)
			if (fn == "min" && c < 0) || (fn == "max" && c > 0) {
				best = v
			}
		}
		return best, nil
	case "sum", "avg":
		var isum int64
		var fsum float64
		floating := false
		for _, v := range vals {
			switch x := v.(type) {
			case ir.Int:
				isum += int64(x)
			case ir.Float:
				fsum += float64(x)
				floating = true
			default:
				return nil, queryErr("%s over non-numeric value %s", fn, edn.Print(v))
			}
		}
		if fn == "avg" {
			return ir.Float((float64(isum) + fsum) / float64(len(vals))), nil
		}
		if floating {
			return ir.Float(float64(isum) + fsum), nil
		}
		return ir.Int(isum), nil
	}
	return nil, queryErr("unknown aggregate %s", fn)
}

// shape renders results for the find kind. Results come sorted, so the
// single-result kinds pick the smallest tuple.
func (q *Query) shape(results []ir.Vector) ir.Value {
	switch q.Kind {
	case FindScalar:
		if len(results) == 0 {
			return ir.Nil{}
		}
		return sortedTuples(results)[0][0]
	case FindTuple:
		if len(results) == 0 {
			return ir.Nil{}
		}
		return sortedTuples(results)[0]
	case FindColl:
		vals := make([]ir.Value, len(results))
		for i, r := range results {
			vals[i] = r[0]
		}
		return ir.Vector(ir.NewSet(vals...).Items())
	default:
		items := make([]ir.Value, len(results))
		for i, r := range results {
			items[i] = r
		}
		return ir.NewSet(items...)
	}
}

func sortedTuples(results []ir.Vector) []ir.Vector {
	items := make([]ir.Value, len(results))
	for i, r := range results {
		items[i] = r
	}
	ir.SortValues(items)
	out := make([]ir.Vector, len(items))
	for i, item := range items {
		out[i] = item.(ir.Vector)
	}
	return out
}
