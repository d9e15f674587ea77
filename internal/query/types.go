package query

import "github.com/roach88/factdb/internal/ir"

// DefaultSource is the source a pattern reads when it names none.
const DefaultSource ir.Symbol = "$"

// FindKind is the shape of a query result.
type FindKind int

const (
	// FindRel returns a set of tuples: [:find ?a ?b].
	FindRel FindKind = iota
	// FindColl returns a collection of single values: [:find [?a ...]].
	FindColl
	// FindScalar returns one value: [:find ?a .].
	FindScalar
	// FindTuple returns one tuple: [:find [?a ?b]].
	FindTuple
)

// Query is a parsed query.
type Query struct {
	Kind  FindKind
	Find  []FindElem
	With  []Var
	In    []Binding
	Where []Clause
}

// FindElem is one element of :find. Sealed to this package.
//
// Element types:
//   - Var: a variable, ?x
//   - Aggregate: (fn ?x)
//   - Pull: (pull ?e [selector]) or (pull $src ?e [selector])
type FindElem interface {
	findElem()
}

// Var is a query variable such as ?e.
type Var ir.Symbol

// Aggregate applies Fn to the values of Arg within each group.
type Aggregate struct {
	Fn  string
	Arg Var
}

// Pull renders the entity bound to Var with a pull selector.
type Pull struct {
	Src      ir.Symbol
	Var      Var
	Selector ir.Value
}

func (Var) findElem()       {}
func (Aggregate) findElem() {}
func (Pull) findElem()      {}

// Binding is one element of :in. Sealed to this package.
//
// Binding types:
//   - Source: $ or $name, bound to a revision
//   - Scalar: ?x
//   - Collection: [?x ...]
//   - Relation: [[?a ?b]]
type Binding interface {
	binding()
}

// Source binds a database revision.
type Source struct {
	Name ir.Symbol
}

// Scalar binds one value.
type Scalar struct {
	Var Var
}

// Collection binds each member of a collection in turn.
type Collection struct {
	Var Var
}

// Relation binds each tuple of a collection of tuples in turn. A blank
// position is written _ and is stored as "".
type Relation struct {
	Vars []Var
}

func (Source) binding()     {}
func (Scalar) binding()     {}
func (Collection) binding() {}
func (Relation) binding()   {}

// Clause is one element of :where. Sealed to this package.
//
// Clause types:
//   - DataPattern: [$src? e a v tx? added?]
//   - Predicate: [(op args...)]
type Clause interface {
	clause()
}

// Term is a pattern or predicate position: a Var, Blank, or a constant
// ir.Value.
type Term any

// Blank is the placeholder _, matching anything without binding.
type Blank struct{}

// DataPattern matches datoms of a source. Terms holds e, a, v, tx and added
// in order; trailing positions may be absent.
type DataPattern struct {
	Src   ir.Symbol
	Terms []Term
}

// Predicate filters the relation. Args are variables or constants; the
// missing? predicate takes a source as its first argument.
type Predicate struct {
	Op   string
	Src  ir.Symbol
	Args []Term
}

func (DataPattern) clause() {}
func (Predicate) clause()   {}

// vars returns the variables of the terms, in order, without repeats.
func vars(terms []Term) []Var {
	var out []Var
	seen := map[Var]bool{}
	for _, t := range terms {
		if v, ok := t.(Var); ok && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
