package query

import "github.com/roach88/factdb/internal/ir"

// validate checks that every variable the query reads is bound by an :in
// binding or a data pattern, and that every named source is declared.
func validate(q *Query) error {
	sources := map[ir.Symbol]bool{}
	bound := map[Var]bool{}

	bind := func(v Var) error {
		if v == "" {
			return nil
		}
		if bound[v] {
			return queryErr("variable %s is bound twice in :in", v)
		}
		bound[v] = true
		return nil
	}
	for _, b := range q.In {
		switch x := b.(type) {
		case Source:
			if sources[x.Name] {
				return queryErr("source %s is bound twice in :in", x.Name)
			}
			sources[x.Name] = true
		case Scalar:
			if err := bind(x.Var); err != nil {
				return err
			}
		case Collection:
			if err := bind(x.Var); err != nil {
				return err
			}
		case Relation:
			for _, v := range x.Vars {
				if err := bind(v); err != nil {
					return err
				}
			}
		}
	}

	for _, c := range q.Where {
		switch x := c.(type) {
		case DataPattern:
			if !sources[x.Src] {
				return queryErr("unknown source %s", x.Src)
			}
			for _, v := range vars(x.Terms) {
				bound[v] = true
			}
		case Predicate:
			if x.Src != "" && !sources[x.Src] {
				return queryErr("unknown source %s", x.Src)
			}
		}
	}

	for _, c := range q.Where {
		if p, ok := c.(Predicate); ok {
			for _, v := range vars(p.Args) {
				if !bound[v] {
					return queryErr("insufficient bindings: %s in predicate %s is never bound", v, p.Op)
				}
			}
		}
	}

	for _, elem := range q.Find {
		switch x := elem.(type) {
		case Var:
			if !bound[x] {
				return queryErr("unbound :find variable %s", x)
			}
		case Aggregate:
			if !bound[x.Arg] {
				return queryErr("unbound :find variable %s in (%s %s)", x.Arg, x.Fn, x.Arg)
			}
		case Pull:
			if !bound[x.Var] {
				return queryErr("unbound :find variable %s in pull", x.Var)
			}
			if !sources[x.Src] {
				return queryErr("unknown source %s", x.Src)
			}
		}
	}
	for _, v := range q.With {
		if !bound[v] {
			return queryErr("unbound :with variable %s", v)
		}
	}
	return nil
}
