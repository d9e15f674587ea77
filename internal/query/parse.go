package query

import (
	"github.com/roach88/factdb/internal/edn"
	"github.com/roach88/factdb/internal/ir"
)

var aggregates = map[string]bool{
	"count":          true,
	"count-distinct": true,
	"sum":            true,
	"min":            true,
	"max":            true,
	"avg":            true,
	"distinct":       true,
}

var predicates = map[string]bool{
	"=":        true,
	"!=":       true,
	"not=":     true,
	"<":        true,
	"<=":       true,
	">":        true,
	">=":       true,
	"missing?": true,
}

func queryErr(format string, args ...any) *ir.Error {
	return ir.Errorf(ir.CodeQuery, format, args...)
}

// ParseString reads query text and parses it.
func ParseString(text string) (*Query, error) {
	v, err := edn.Read(text)
	if err != nil {
		return nil, err
	}
	return Parse(v)
}

// Parse builds a query from its vector or map form and validates it.
func Parse(v ir.Value) (*Query, error) {
	sections, err := splitSections(v)
	if err != nil {
		return nil, err
	}

	q := &Query{}
	find, ok := sections["find"]
	if !ok || len(find) == 0 {
		return nil, queryErr("query has no :find clause")
	}
	if err := q.parseFind(find); err != nil {
		return nil, err
	}
	for _, w := range sections["with"] {
		s, ok := w.(ir.Symbol)
		if !ok || !s.IsVariable() {
			return nil, queryErr(":with takes variables, got %s", edn.Print(w))
		}
		q.With = append(q.With, Var(s))
	}

	in, ok := sections["in"]
	if !ok {
		in = []ir.Value{DefaultSource}
	}
	for _, item := range in {
		b, err := parseBinding(item)
		if err != nil {
			return nil, err
		}
		q.In = append(q.In, b)
	}

	for _, item := range sections["where"] {
		c, err := parseClause(item)
		if err != nil {
			return nil, err
		}
		q.Where = append(q.Where, c)
	}

	if err := validate(q); err != nil {
		return nil, err
	}
	return q, nil
}

// splitSections returns the items of each :find, :with, :in and :where
// section.
func splitSections(v ir.Value) (map[string][]ir.Value, error) {
	sections := map[string][]ir.Value{}

	if m, ok := v.(ir.Map); ok {
		for _, e := range m.Entries() {
			k, ok := e.Key.(ir.Keyword)
			if !ok || !knownSection(k) {
				return nil, queryErr("unknown query section %s", edn.Print(e.Key))
			}
			items, ok := ir.Seq(e.Value)
			if !ok {
				return nil, queryErr("query section %s must be a vector", k)
			}
			sections[string(k)] = items
		}
		return sections, nil
	}

	items, ok := ir.Seq(v)
	if !ok {
		return nil, queryErr("query must be a vector or a map, got %s", edn.Print(v))
	}
	var current string
	for _, item := range items {
		if k, ok := item.(ir.Keyword); ok {
			if !knownSection(k) {
				return nil, queryErr("unknown query section %s", k)
			}
			if _, dup := sections[string(k)]; dup {
				return nil, queryErr("query section %s appears twice", k)
			}
			current = string(k)
			sections[current] = []ir.Value{}
			continue
		}
		if current == "" {
			return nil, queryErr("query must start with :find, got %s", edn.Print(item))
		}
		sections[current] = append(sections[current], item)
	}
	return sections, nil
}

func knownSection(k ir.Keyword) bool {
	switch k {
	case "find", "with", "in", "where":
		return true
	}
	return false
}

func (q *Query) parseFind(items []ir.Value) error {
	switch {
	case len(items) == 2 && items[1] == ir.Symbol("."):
		q.Kind = FindScalar
		items = items[:1]
	case len(items) == 1:
		if inner, ok := items[0].(ir.Vector); ok {
			if len(inner) == 2 && inner[1] == ir.Symbol("...") {
				q.Kind = FindColl
				items = inner[:1]
			} else {
				q.Kind = FindTuple
				items = inner
			}
		}
	}
	if len(items) == 0 {
		return queryErr(":find has no elements")
	}
	for _, item := range items {
		elem, err := parseFindElem(item)
		if err != nil {
			return err
		}
		q.Find = append(q.Find, elem)
	}
	return nil
}

func parseFindElem(v ir.Value) (FindElem, error) {
	switch x := v.(type) {
	case ir.Symbol:
		if !x.IsVariable() {
			return nil, queryErr(":find element %s is not a variable", x)
		}
		return Var(x), nil
	case ir.List:
		if len(x) == 0 {
			return nil, queryErr("empty :find expression")
		}
		fn, ok := x[0].(ir.Symbol)
		if !ok {
			return nil, queryErr("invalid :find expression %s", edn.Print(x))
		}
		if fn == "pull" {
			return parsePull(x)
		}
		if !aggregates[string(fn)] {
			return nil, queryErr("unknown aggregate %s", fn)
		}
		if len(x) != 2 {
			return nil, queryErr("aggregate %s takes one variable", fn)
		}
		arg, ok := x[1].(ir.Symbol)
		if !ok || !arg.IsVariable() {
			return nil, queryErr("aggregate %s takes one variable, got %s", fn, edn.Print(x[1]))
		}
		return Aggregate{Fn: string(fn), Arg: Var(arg)}, nil
	}
	return nil, queryErr("invalid :find element %s", edn.Print(v))
}

func parsePull(x ir.List) (FindElem, error) {
	args := x[1:]
	p := Pull{Src: DefaultSource}
	if len(args) == 3 {
		src, ok := args[0].(ir.Symbol)
		if !ok || !src.IsSource() {
			return nil, queryErr("pull source must be a $ symbol, got %s", edn.Print(args[0]))
		}
		p.Src = src
		args = args[1:]
	}
	if len(args) != 2 {
		return nil, queryErr("pull takes a variable and a selector, got %s", edn.Print(x))
	}
	e, ok := args[0].(ir.Symbol)
	if !ok || !e.IsVariable() {
		return nil, queryErr("pull takes a variable, got %s", edn.Print(args[0]))
	}
	p.Var = Var(e)
	p.Selector = args[1]
	return p, nil
}

func parseBinding(v ir.Value) (Binding, error) {
	switch x := v.(type) {
	case ir.Symbol:
		switch {
		case x.IsSource():
			return Source{Name: x}, nil
		case x.IsVariable():
			return Scalar{Var: Var(x)}, nil
		}
	case ir.Vector:
		if len(x) == 2 && x[1] == ir.Symbol("...") {
			s, ok := x[0].(ir.Symbol)
			if ok && s.IsVariable() {
				return Collection{Var: Var(s)}, nil
			}
		}
		if len(x) == 1 {
			if inner, ok := x[0].(ir.Vector); ok && len(inner) > 0 {
				rel := Relation{}
				for _, item := range inner {
					s, ok := item.(ir.Symbol)
					switch {
					case ok && s == "_":
						rel.Vars = append(rel.Vars, "")
					case ok && s.IsVariable():
						rel.Vars = append(rel.Vars, Var(s))
					default:
						return nil, queryErr("invalid relation binding %s", edn.Print(x))
					}
				}
				return rel, nil
			}
		}
	}
	return nil, queryErr("invalid :in binding %s", edn.Print(v))
}

func parseClause(v ir.Value) (Clause, error) {
	items, ok := v.(ir.Vector)
	if !ok || len(items) == 0 {
		if l, isList := v.(ir.List); isList && len(l) > 0 {
			return nil, queryErr("unsupported clause %s: rules and or/not are not available", edn.Print(v))
		}
		return nil, queryErr("where clause must be a non-empty vector, got %s", edn.Print(v))
	}

	if call, ok := items[0].(ir.List); ok {
		if len(items) != 1 {
			return nil, queryErr("function bindings are not supported: %s", edn.Print(v))
		}
		return parsePredicate(call)
	}

	p := DataPattern{Src: DefaultSource}
	if s, ok := items[0].(ir.Symbol); ok && s.IsSource() {
		p.Src = s
		items = items[1:]
	}
	if len(items) == 0 || len(items) > 5 {
		return nil, queryErr("data pattern takes one to five terms, got %s", edn.Print(v))
	}
	for _, item := range items {
		t, err := parseTerm(item)
		if err != nil {
			return nil, err
		}
		p.Terms = append(p.Terms, t)
	}
	return p, nil
}

func parsePredicate(call ir.List) (Clause, error) {
	if len(call) == 0 {
		return nil, queryErr("empty predicate")
	}
	op, ok := call[0].(ir.Symbol)
	if !ok || !predicates[string(op)] {
		return nil, queryErr("unknown predicate %s", edn.Print(call[0]))
	}
	p := Predicate{Op: string(op)}
	args := call[1:]
	if op == "missing?" {
		p.Src = DefaultSource
		if len(args) > 0 {
			if s, ok := args[0].(ir.Symbol); ok && s.IsSource() {
				p.Src = s
				args = args[1:]
			}
		}
		if len(args) != 2 {
			return nil, queryErr("missing? takes a source, an entity and an attribute")
		}
	} else if len(args) < 2 {
		return nil, queryErr("predicate %s takes at least two arguments", op)
	}
	for _, a := range args {
		t, err := parseTerm(a)
		if err != nil {
			return nil, err
		}
		if _, blank := t.(Blank); blank {
			return nil, queryErr("predicate %s cannot take _", op)
		}
		p.Args = append(p.Args, t)
	}
	return p, nil
}

func parseTerm(v ir.Value) (Term, error) {
	s, ok := v.(ir.Symbol)
	if !ok {
		return v, nil
	}
	switch {
	case s == "_":
		return Blank{}, nil
	case s.IsVariable():
		return Var(s), nil
	case s.IsSource():
		return nil, queryErr("source %s is only valid at the start of a clause", s)
	}
	return v, nil
}
