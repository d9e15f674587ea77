package query

import (
	"context"

	"github.com/roach88/factdb/internal/db"
	"github.com/roach88/factdb/internal/edn"
	"github.com/roach88/factdb/internal/ir"
)

// Run parses q and evaluates it. inputs supply the :in bindings in order:
// a *db.DB for every source, an ir.Value for every other binding.
func Run(ctx context.Context, q ir.Value, inputs ...any) (ir.Value, error) {
	parsed, err := Parse(q)
	if err != nil {
		return nil, err
	}
	return parsed.Eval(ctx, inputs...)
}

// Eval evaluates the query against inputs, as Run does.
func (q *Query) Eval(ctx context.Context, inputs ...any) (ir.Value, error) {
	if len(inputs) != len(q.In) {
		return nil, queryErr("query takes %d inputs for :in, got %d", len(q.In), len(inputs))
	}

	sources := map[ir.Symbol]*db.DB{}
	rel := newRelation()
	for i, b := range q.In {
		if src, ok := b.(Source); ok {
			d, ok := inputs[i].(*db.DB)
			if !ok || d == nil {
				return nil, queryErr("input %d for source %s is not a database", i, src.Name)
			}
			sources[src.Name] = d
			continue
		}
		v, ok := inputs[i].(ir.Value)
		if !ok || v == nil {
			return nil, queryErr("input %d is not a value", i)
		}
		var err error
		if rel, err = rel.bind(b, v); err != nil {
			return nil, err
		}
	}

	var pending []Predicate
	runReady := func() error {
		kept := pending[:0]
		for _, p := range pending {
			if !rel.binds(p.Args) {
				kept = append(kept, p)
				continue
			}
			var err error
			if rel, err = rel.filter(p, sources); err != nil {
				return err
			}
		}
		pending = kept
		return nil
	}

	for _, c := range q.Where {
		if err := ctx.Err(); err != nil {
			return nil, ir.Wrap(ir.CodeQuery, err, "query interrupted")
		}
		switch x := c.(type) {
		case Predicate:
			pending = append(pending, x)
		case DataPattern:
			rel = rel.join(sources[x.Src], x)
		}
		if err := runReady(); err != nil {
			return nil, err
		}
	}
	if len(pending) > 0 {
		return nil, queryErr("insufficient bindings for predicate %s", pending[0].Op)
	}

	return q.project(rel, sources)
}

// relation is a set of bindings: one column per bound variable.
type relation struct {
	cols map[Var]int
	rows [][]ir.Value
}

func newRelation() *relation {
	return &relation{cols: map[Var]int{}, rows: [][]ir.Value{{}}}
}

func (r *relation) binds(terms []Term) bool {
	for _, v := range vars(terms) {
		if _, ok := r.cols[v]; !ok {
			return false
		}
	}
	return true
}

// value returns the value of a term in row, or false for an unbound term.
func (r *relation) value(row []ir.Value, t Term) (ir.Value, bool) {
	switch x := t.(type) {
	case Blank:
		return nil, false
	case Var:
		i, ok := r.cols[x]
		if !ok {
			return nil, false
		}
		return row[i], true
	default:
		return t.(ir.Value), true
	}
}

// extend returns a relation with the given new columns and no rows.
func (r *relation) extend(newVars []Var) *relation {
	next := &relation{cols: make(map[Var]int, len(r.cols)+len(newVars))}
	for v, i := range r.cols {
		next.cols[v] = i
	}
	for _, v := range newVars {
		next.cols[v] = len(next.cols)
	}
	return next
}

// bind multiplies the relation by one :in binding.
func (r *relation) bind(b Binding, v ir.Value) (*relation, error) {
	var newVars []Var
	var tuples [][]ir.Value
	switch x := b.(type) {
	case Scalar:
		newVars = []Var{x.Var}
		tuples = [][]ir.Value{{v}}
	case Collection:
		items, ok := ir.Seq(v)
		if !ok {
			return nil, queryErr("input for [%s ...] must be a collection, got %s", x.Var, edn.Print(v))
		}
		newVars = []Var{x.Var}
		for _, item := range items {
			tuples = append(tuples, []ir.Value{item})
		}
	case Relation:
		items, ok := ir.Seq(v)
		if !ok {
			return nil, queryErr("relation input must be a collection of tuples, got %s", edn.Print(v))
		}
		keep := make([]int, 0, len(x.Vars))
		for i, name := range x.Vars {
			if name != "" {
				newVars = append(newVars, name)
				keep = append(keep, i)
			}
		}
		for _, item := range items {
			tuple, ok := ir.Seq(item)
			if !ok || len(tuple) != len(x.Vars) {
				return nil, queryErr("relation input tuple %s does not have %d elements", edn.Print(item), len(x.Vars))
			}
			row := make([]ir.Value, len(keep))
			for j, i := range keep {
				row[j] = tuple[i]
			}
			tuples = append(tuples, row)
		}
	}

	next := r.extend(newVars)
	for _, row := range r.rows {
		for _, t := range tuples {
			next.rows = append(next.rows, appendRow(row, t...))
		}
	}
	return next, nil
}

func appendRow(row []ir.Value, vals ...ir.Value) []ir.Value {
	out := make([]ir.Value, len(row), len(row)+len(vals))
	copy(out, row)
	return append(out, vals...)
}

// positions of a data pattern.
const (
	posE = iota
	posA
	posV
	posTx
	posAdded
)

func datomAt(d ir.Datom, pos int) ir.Value {
	switch pos {
	case posE:
		return ir.Int(d.E)
	case posA:
		return d.A
	case posV:
		return d.V
	case posTx:
		return ir.Int(d.Tx)
	default:
		return ir.Bool(d.Added)
	}
}

// join extends every row with the datoms of src matching the pattern under
// that row's bindings.
func (r *relation) join(src *db.DB, p DataPattern) *relation {
	var newVars []Var
	for _, v := range vars(p.Terms) {
		if _, ok := r.cols[v]; !ok {
			newVars = append(newVars, v)
		}
	}
	next := r.extend(newVars)

	for _, row := range r.rows {
		search, ok := r.searchPattern(src, p, row)
		if !ok {
			continue
		}
		src.Search(search, func(d ir.Datom) bool {
			if vals, ok := r.unify(p, row, d, len(newVars)); ok {
				next.rows = append(next.rows, appendRow(row, vals...))
			}
			return true
		})
	}
	return next
}

// searchPattern substitutes the row's bindings into p. ok is false when a
// bound term can never match a stored datom.
func (r *relation) searchPattern(src *db.DB, p DataPattern, row []ir.Value) (db.Pattern, bool) {
	var out db.Pattern
	for pos, t := range p.Terms {
		v, bound := r.value(row, t)
		if !bound {
			continue
		}
		switch pos {
		case posE:
			e, ok, err := src.ResolveEntity(v)
			if err != nil || !ok {
				return out, false
			}
			out.E = e
		case posA:
			a, ok := v.(ir.Keyword)
			if !ok {
				return out, false
			}
			out.A = a
		case posV:
			out.V = v
		case posTx:
			tx, ok := v.(ir.Int)
			if !ok || tx <= 0 {
				return out, false
			}
			out.Tx = int64(tx)
		case posAdded:
			if _, ok := v.(ir.Bool); !ok {
				return out, false
			}
		}
	}
	if out.V != nil && out.A != "" {
		v, ok := src.LookupValue(out.A, out.V)
		if !ok {
			return out, false
		}
		out.V = v
	}
	return out, true
}

// unify checks d against the terms a db.Pattern cannot express (repeated
// new variables and the added flag) and returns the values of the
// pattern's new variables, in column order.
func (r *relation) unify(p DataPattern, row []ir.Value, d ir.Datom, n int) ([]ir.Value, bool) {
	vals := make([]ir.Value, 0, n)
	local := map[Var]ir.Value{}
	for pos, t := range p.Terms {
		got := datomAt(d, pos)
		switch x := t.(type) {
		case Blank:
			continue
		case Var:
			if i, ok := r.cols[x]; ok {
				if pos == posAdded && !ir.Equal(row[i], got) {
					return nil, false
				}
				continue
			}
			if prev, ok := local[x]; ok {
				if !ir.Equal(prev, got) {
					return nil, false
				}
				continue
			}
			local[x] = got
			vals = append(vals, got)
		default:
			if pos == posAdded && !ir.Equal(x.(ir.Value), got) {
				return nil, false
			}
		}
	}
	return vals, true
}

// filter keeps the rows satisfying a predicate.
func (r *relation) filter(p Predicate, sources map[ir.Symbol]*db.DB) (*relation, error) {
	next := r.extend(nil)
	for _, row := range r.rows {
		args := make([]ir.Value, len(p.Args))
		for i, t := range p.Args {
			args[i], _ = r.value(row, t)
		}
		ok, err := evalPredicate(p, args, sources[p.Src])
		if err != nil {
			return nil, err
		}
		if ok {
			next.rows = append(next.rows, row)
		}
	}
	return next, nil
}
