package db

import (
	"fmt"
	"slices"
	"time"

	"github.com/roach88/factdb/internal/edn"
	"github.com/roach88/factdb/internal/ir"
)

type eaKey struct {
	e int64
	a ir.Keyword
}

type eavKey struct {
	e int64
	a ir.Keyword
	v string
}

// txState tracks the live values a transaction sees while it emits datoms,
// so that redundant assertions vanish and a retraction of a value asserted
// earlier in the same transaction cancels the assertion.
type txState struct {
	base    *DB
	txID    int64
	datoms  []ir.Datom
	dropped []bool
	live    map[eaKey][]ir.Value
	added   map[eavKey]int
}

func newTxState(base *DB, txID int64) *txState {
	return &txState{
		base:  base,
		txID:  txID,
		live:  map[eaKey][]ir.Value{},
		added: map[eavKey]int{},
	}
}

func (s *txState) values(e int64, a ir.Keyword) []ir.Value {
	k := eaKey{e, a}
	vals, ok := s.live[k]
	if !ok {
		vals = s.base.values(e, a)
		s.live[k] = vals
	}
	return vals
}

func indexOf(vals []ir.Value, v ir.Value) int {
	return slices.IndexFunc(vals, func(x ir.Value) bool { return ir.Equal(x, v) })
}

func (s *txState) emit(d ir.Datom) {
	s.datoms = append(s.datoms, d)
	s.dropped = append(s.dropped, false)
}

// assert makes v a live value of (e, a). For cardinality one the previous
// value is retracted.
func (s *txState) assert(e int64, a ir.Keyword, v ir.Value, many bool) {
	vals := s.values(e, a)
	if indexOf(vals, v) >= 0 {
		return
	}
	if !many {
		for _, old := range slices.Clone(vals) {
			s.retract(e, a, old)
		}
	}
	k := eaKey{e, a}
	s.live[k] = append(slices.Clip(s.live[k]), v)
	s.added[eavKey{e, a, edn.Print(v)}] = len(s.datoms)
	s.emit(ir.Datom{E: e, A: a, V: v, Tx: s.txID, Added: true})
}

// retract removes v from the live values of (e, a); a value that is not
// live is ignored.
func (s *txState) retract(e int64, a ir.Keyword, v ir.Value) {
	vals := s.values(e, a)
	i := indexOf(vals, v)
	if i < 0 {
		return
	}
	s.live[eaKey{e, a}] = slices.Delete(slices.Clone(vals), i, i+1)

	key := eavKey{e, a, edn.Print(v)}
	if idx, ok := s.added[key]; ok {
		s.dropped[idx] = true
		delete(s.added, key)
		return
	}
	s.emit(ir.Datom{E: e, A: a, V: v, Tx: s.txID, Added: false})
}

func (s *txState) retractAttr(e int64, a ir.Keyword) {
	for _, v := range slices.Clone(s.values(e, a)) {
		s.retract(e, a, v)
	}
}

// retractEntity retracts every live datom of e and every reference to e.
func (s *txState) retractEntity(e int64, schema *Schema) {
	attrs := map[ir.Keyword]bool{}
	s.base.eavt.AscendGreaterOrEqual(ir.Datom{E: e}, func(d ir.Datom) bool {
		if d.E != e {
			return false
		}
		attrs[d.A] = true
		return true
	})
	for k := range s.live {
		if k.e == e {
			attrs[k.a] = true
		}
	}
	for _, a := range sortedKeywords(attrs) {
		s.retractAttr(e, a)
	}

	target := ir.Int(e)
	for _, attr := range schema.Attributes() {
		if !attr.IsRef() {
			continue
		}
		var holders []int64
		s.base.avet.AscendGreaterOrEqual(ir.Datom{A: attr.Ident, V: target}, func(d ir.Datom) bool {
			if d.A != attr.Ident || !ir.Equal(d.V, target) {
				return false
			}
			holders = append(holders, d.E)
			return true
		})
		for k, vals := range s.live {
			if k.a == attr.Ident && indexOf(vals, target) >= 0 {
				holders = append(holders, k.e)
			}
		}
		slices.Sort(holders)
		for _, h := range slices.Compact(holders) {
			s.retract(h, attr.Ident, target)
		}
	}
}

func sortedKeywords(set map[ir.Keyword]bool) []ir.Keyword {
	out := make([]ir.Keyword, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// result returns the emitted datoms that survived cancellation.
func (s *txState) result() []ir.Datom {
	out := make([]ir.Datom, 0, len(s.datoms))
	for i, d := range s.datoms {
		if !s.dropped[i] {
			out = append(out, d)
		}
	}
	return out
}

// build computes the datoms of a transaction against base. The returned
// builder carries the resolved tempids and the entity-id high-water mark.
func build(base *DB, policy unknownAttrs, txData ir.Value, instant time.Time) (*txBuilder, []ir.Datom, error) {
	forms, ok := ir.Seq(txData)
	if !ok {
		return nil, nil, ir.Errorf(ir.CodeParse, "transaction data must be a sequence of forms, got %s", edn.Print(txData))
	}

	b := newTxBuilder(base, policy)
	if err := b.expand(forms); err != nil {
		return nil, nil, err
	}
	if err := b.resolve(); err != nil {
		return nil, nil, err
	}

	ops := make([]rop, 0, len(b.ops))
	for _, o := range b.ops {
		r, err := b.resolveOp(o)
		if err != nil {
			return nil, nil, err
		}
		ops = append(ops, r)
	}

	state := newTxState(base, b.txID)

	// Schema datoms first, so the data datoms are checked against the
	// schema this transaction produces.
	for _, attr := range b.newAttrs {
		state.assert(attr.ID, attrIdent, attr.Ident, false)
		state.assert(attr.ID, attrCardinality, ir.Keyword(ir.CardinalityOne), false)
	}
	for _, o := range ops {
		if !isSystemAttr(o.a) {
			continue
		}
		if o.a == attrTxInstant {
			return nil, nil, txErr(o.form, "form %d: %s is set by the transactor", o.form, attrTxInstant)
		}
		if err := applyOp(state, o, systemAttrs[o.a]); err != nil {
			return nil, nil, err
		}
	}

	scratch := base.withDatoms(state.result())
	if err := checkRedefinitions(base, scratch.schema); err != nil {
		return nil, nil, err
	}

	for _, o := range ops {
		if isSystemAttr(o.a) {
			continue
		}
		if o.kind == opRetractEntity {
			state.retractEntity(o.e, scratch.schema)
			continue
		}
		attr, ok := scratch.schema.Attr(o.a)
		if !ok {
			if o.kind != opAdd {
				continue
			}
			return nil, nil, unknownAttr(o.a)
		}
		if err := applyOp(state, o, attr); err != nil {
			return nil, nil, err
		}
	}

	datoms := state.result()
	for _, d := range datoms {
		if err := printable(d); err != nil {
			return nil, nil, err
		}
	}
	if err := checkUnique(base, state, scratch.schema, datoms); err != nil {
		return nil, nil, err
	}
	datoms = append(datoms, ir.Datom{E: b.txID, A: attrTxInstant, V: ir.Inst(instant), Tx: b.txID, Added: true})
	return b, datoms, nil
}

// printable rejects datoms whose text form would not read back from a
// durable log.
func printable(d ir.Datom) error {
	if err := edn.Check(d.A); err != nil {
		return err
	}
	return edn.Check(d.V)
}

// applyOp validates one resolved op against its attribute and emits datoms.
func applyOp(s *txState, o rop, attr ir.Attribute) error {
	if o.kind == opRetractAttr {
		s.retractAttr(o.e, o.a)
		return nil
	}

	v, err := coerce(attr, o.v)
	if err != nil {
		if o.kind == opRetract {
			// A value of the wrong type was never stored.
			return nil
		}
		return txErr(o.form, "form %d: %v", o.form, err)
	}
	if o.kind == opRetract {
		s.retract(o.e, o.a, v)
		return nil
	}
	if isSchemaAttr(o.a) {
		if err := validateSchemaValue(o.a, v); err != nil {
			return err
		}
	}
	s.assert(o.e, o.a, v, attr.Many())
	return nil
}

// checkUnique rejects a unique value held by two entities.
func checkUnique(base *DB, s *txState, schema *Schema, datoms []ir.Datom) error {
	seen := map[eavKey]int64{}
	for _, d := range datoms {
		if !d.Added {
			continue
		}
		attr, ok := schema.Attr(d.A)
		if !ok || attr.Unique == ir.UniqueNone {
			continue
		}
		key := eavKey{a: d.A, v: edn.Print(d.V)}
		if other, ok := seen[key]; ok && other != d.E {
			return uniqueErr(d, other)
		}
		seen[key] = d.E
		if owner, ok := base.owner(d.A, d.V); ok && owner != d.E && indexOf(s.values(owner, d.A), d.V) >= 0 {
			return uniqueErr(d, owner)
		}
	}
	return nil
}

func uniqueErr(d ir.Datom, owner int64) error {
	return ir.Errorf(ir.CodeUniqueConstraint, "unique value %s of %s already held by entity %d",
		edn.Print(d.V), d.A, owner).
		With("attribute", d.A.String()).
		With("entity", fmt.Sprint(d.E))
}
