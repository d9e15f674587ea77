package db

import (
	"strconv"

	"github.com/roach88/factdb/internal/edn"
	"github.com/roach88/factdb/internal/ir"
)

type opKind int

const (
	opAdd opKind = iota
	opRetract
	opRetractAttr
	opRetractEntity
)

type refKind int

const (
	refID refKind = iota
	refTemp
	refLookup
	refIdent
)

// eref is an unresolved reference to an entity.
type eref struct {
	kind refKind
	id   int64
	temp string
	attr ir.Keyword // lookup attribute, or the ident for refIdent
	val  ir.Value   // lookup value
}

func (r eref) String() string {
	switch r.kind {
	case refID:
		return strconv.FormatInt(r.id, 10)
	case refTemp:
		return strconv.Quote(r.temp)
	case refIdent:
		return r.attr.String()
	default:
		return edn.Print(ir.Vector{r.attr, r.val})
	}
}

// op is one expanded transaction operation.
type op struct {
	kind opKind
	e    eref
	a    ir.Keyword
	v    ir.Value
	ref  *eref // v names an entity
	form int
}

// parseRef reads an entity reference: a positive id, a negative or string
// tempid, an ident keyword, or a lookup ref [attr value].
func parseRef(v ir.Value) (eref, bool) {
	switch x := v.(type) {
	case ir.Int:
		switch {
		case x > 0:
			return eref{kind: refID, id: int64(x)}, true
		case x < 0:
			return eref{kind: refTemp, temp: strconv.FormatInt(int64(x), 10)}, true
		}
	case ir.String:
		return eref{kind: refTemp, temp: string(x)}, true
	case ir.Keyword:
		return eref{kind: refIdent, attr: x}, true
	case ir.Vector:
		return lookupRef(x)
	case ir.List:
		return lookupRef(x)
	}
	return eref{}, false
}

func lookupRef(items []ir.Value) (eref, bool) {
	if len(items) != 2 {
		return eref{}, false
	}
	a, ok := items[0].(ir.Keyword)
	if !ok {
		return eref{}, false
	}
	return eref{kind: refLookup, attr: a, val: items[1]}, true
}

// anonPrefix marks tempids generated for maps without :db/id. They are
// resolved like any tempid but never reported.
const anonPrefix = "\x00anon-"

// txBuilder turns transaction data into datoms against a base revision.
type txBuilder struct {
	base   *DB
	policy unknownAttrs
	txID   int64
	maxEID int64

	defined  map[ir.Keyword]ir.Attribute // attributes defined by map forms
	newAttrs []ir.Attribute              // admitted by the flexibility strategy
	ops      []op

	anon      int
	tempOrder []string
	tempSeen  map[string]bool
	tempids   map[string]int64
	txIdents  map[ir.Keyword]eref // idents asserted in this transaction
}

func newTxBuilder(base *DB, policy unknownAttrs) *txBuilder {
	return &txBuilder{
		base:     base,
		policy:   policy,
		txID:     base.basisT + 1,
		maxEID:   base.maxEID,
		defined:  map[ir.Keyword]ir.Attribute{},
		tempSeen: map[string]bool{},
		tempids:  map[string]int64{},
		txIdents: map[ir.Keyword]eref{},
	}
}

// attr returns the definition an attribute has while this transaction is
// being expanded.
func (b *txBuilder) attr(a ir.Keyword) (ir.Attribute, bool) {
	if attr, ok := b.base.schema.Attr(a); ok {
		return attr, true
	}
	attr, ok := b.defined[a]
	return attr, ok
}

// admit resolves the attribute of an assertion, consulting the flexibility
// strategy for unknown ones.
func (b *txBuilder) admit(a ir.Keyword) (ir.Attribute, error) {
	if attr, ok := b.attr(a); ok {
		return attr, nil
	}
	attr, err := b.policy.assert(a)
	if err != nil {
		return ir.Attribute{}, err
	}
	b.newAttrs = append(b.newAttrs, attr)
	b.defined[a] = attr
	return attr, nil
}

func (b *txBuilder) see(r eref) {
	if r.kind == refTemp && !b.tempSeen[r.temp] {
		b.tempSeen[r.temp] = true
		b.tempOrder = append(b.tempOrder, r.temp)
	}
}

func parseErr(form int, format string, args ...any) error {
	return ir.Errorf(ir.CodeParse, format, args...).With("form", strconv.Itoa(form))
}

func txErr(form int, format string, args ...any) error {
	return ir.Errorf(ir.CodeTransaction, format, args...).With("form", strconv.Itoa(form))
}

// define records attributes declared by schema maps so that later forms of
// the same transaction can use them.
func (b *txBuilder) define(forms []ir.Value) {
	for _, f := range forms {
		m, ok := f.(ir.Map)
		if !ok {
			continue
		}
		identV, ok := m.GetKeyword(attrIdent)
		if !ok {
			continue
		}
		ident, ok := identV.(ir.Keyword)
		if !ok {
			continue
		}
		vt, hasType := m.GetKeyword(attrValueType)
		card, hasCard := m.GetKeyword(attrCardinality)
		if !hasType && !hasCard {
			continue
		}
		attr := ir.Attribute{Ident: ident, Cardinality: ir.CardinalityOne}
		if k, ok := vt.(ir.Keyword); ok {
			attr.ValueType = ir.ValueType(k)
		}
		if k, ok := card.(ir.Keyword); ok && hasCard {
			attr.Cardinality = ir.Cardinality(k)
		}
		if u, ok := m.GetKeyword(attrUnique); ok {
			if k, ok := u.(ir.Keyword); ok {
				attr.Unique = ir.Uniqueness(k)
			}
		}
		if _, exists := b.base.schema.Attr(ident); !exists {
			b.defined[ident] = attr
		}
	}
}

// expand turns every form into ops.
func (b *txBuilder) expand(forms []ir.Value) error {
	b.define(forms)
	for i, f := range forms {
		var err error
		switch x := f.(type) {
		case ir.Map:
			_, err = b.expandMap(x, i)
		case ir.Vector:
			err = b.expandTuple(x, i)
		case ir.List:
			err = b.expandTuple(x, i)
		default:
			err = parseErr(i, "form %d: expected a map or an operation vector, got %s", i, edn.Print(f))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *txBuilder) expandMap(m ir.Map, form int) (eref, error) {
	var e eref
	if idv, ok := m.GetKeyword(attrID); ok {
		var valid bool
		if e, valid = parseRef(idv); !valid {
			return eref{}, parseErr(form, "form %d: invalid :db/id %s", form, edn.Print(idv))
		}
	} else {
		b.anon++
		e = eref{kind: refTemp, temp: anonPrefix + strconv.Itoa(b.anon)}
	}
	attrs := m.Len()
	if _, ok := m.GetKeyword(attrID); ok {
		attrs--
	}
	if attrs > 0 {
		b.see(e)
	}

	for _, entry := range m.Entries() {
		a, ok := entry.Key.(ir.Keyword)
		if !ok {
			return eref{}, parseErr(form, "form %d: attribute must be a keyword, got %s", form, edn.Print(entry.Key))
		}
		if a == attrID {
			continue
		}
		attr, err := b.admit(a)
		if err != nil {
			return eref{}, err
		}
		values := []ir.Value{entry.Value}
		if attr.Many() {
			if items, ok := ir.Seq(entry.Value); ok && !b.isLookupRef(attr, entry.Value) {
				values = items
			}
		}
		for _, v := range values {
			if err := b.addValue(opAdd, e, attr, v, form); err != nil {
				return eref{}, err
			}
		}
	}
	return e, nil
}

// isLookupRef reports whether v is a lookup ref for a ref attribute, as
// opposed to a collection of references.
func (b *txBuilder) isLookupRef(attr ir.Attribute, v ir.Value) bool {
	if !attr.IsRef() {
		return false
	}
	if _, isSet := v.(ir.Set); isSet {
		return false
	}
	items, _ := ir.Seq(v)
	if len(items) != 2 {
		return false
	}
	a, ok := items[0].(ir.Keyword)
	if !ok {
		return false
	}
	target, ok := b.attr(a)
	return ok && target.Unique != ir.UniqueNone
}

// addValue appends an op for one value, expanding nested maps and entity
// references of ref attributes.
func (b *txBuilder) addValue(kind opKind, e eref, attr ir.Attribute, v ir.Value, form int) error {
	o := op{kind: kind, e: e, a: attr.Ident, v: v, form: form}
	if attr.IsRef() {
		if nested, ok := v.(ir.Map); ok {
			if kind != opAdd {
				return txErr(form, "form %d: nested maps can only be asserted", form)
			}
			r, err := b.expandMap(nested, form)
			if err != nil {
				return err
			}
			o.ref = &r
		} else if r, ok := parseRef(v); ok {
			if kind == opAdd {
				b.see(r)
			}
			o.ref = &r
		}
	}
	if kind == opAdd && attr.Ident == attrIdent {
		if k, ok := v.(ir.Keyword); ok {
			b.txIdents[k] = e
		}
	}
	b.ops = append(b.ops, o)
	return nil
}

func (b *txBuilder) expandTuple(t []ir.Value, form int) error {
	if len(t) == 0 {
		return parseErr(form, "form %d: empty operation", form)
	}
	name, ok := t[0].(ir.Keyword)
	if !ok {
		return parseErr(form, "form %d: operation must be a keyword, got %s", form, edn.Print(t[0]))
	}

	var want []int
	switch name {
	case "db/add":
		want = []int{4}
	case "db/retract":
		want = []int{3, 4}
	case "db/retractEntity":
		want = []int{2}
	default:
		return parseErr(form, "form %d: unknown operation %s", form, name)
	}
	arityOK := false
	for _, n := range want {
		arityOK = arityOK || len(t) == n
	}
	if !arityOK {
		return parseErr(form, "form %d: wrong number of arguments to %s", form, name)
	}

	e, ok := parseRef(t[1])
	if !ok {
		return parseErr(form, "form %d: invalid entity %s", form, edn.Print(t[1]))
	}
	if name == "db/retractEntity" {
		b.ops = append(b.ops, op{kind: opRetractEntity, e: e, form: form})
		return nil
	}

	a, ok := t[2].(ir.Keyword)
	if !ok || a == attrID {
		return parseErr(form, "form %d: invalid attribute %s", form, edn.Print(t[2]))
	}

	if name == "db/add" {
		b.see(e)
		attr, err := b.admit(a)
		if err != nil {
			return err
		}
		return b.addValue(opAdd, e, attr, t[3], form)
	}

	attr, ok := b.attr(a)
	if !ok {
		// Nothing can be stored under an unknown attribute.
		return b.policy.retract(a)
	}
	if len(t) == 3 {
		b.ops = append(b.ops, op{kind: opRetractAttr, e: e, a: a, form: form})
		return nil
	}
	return b.addValue(opRetract, e, attr, t[3], form)
}

// resolve assigns entity ids: admitted attributes first, then tempids in
// order of first use. A tempid asserting an existing unique-identity value
// resolves to the entity that holds it.
func (b *txBuilder) resolve() error {
	for i := range b.newAttrs {
		b.maxEID++
		b.newAttrs[i].ID = b.maxEID
	}

	asserted := map[string]bool{}
	for _, o := range b.ops {
		if o.e.kind == refTemp {
			if o.kind != opAdd {
				return txErr(o.form, "form %d: cannot retract tempid %s", o.form, o.e)
			}
			asserted[o.e.temp] = true
		}
	}

	for _, t := range b.tempOrder {
		if !asserted[t] {
			return ir.Errorf(ir.CodeTransaction, "tempid %q is used only as a value", t)
		}
		id, err := b.upsert(t)
		if err != nil {
			return err
		}
		if id == 0 {
			b.maxEID++
			id = b.maxEID
		}
		b.tempids[t] = id
	}
	return nil
}

// upsert finds an existing entity for a tempid through its unique-identity
// assertions. It returns 0 when there is none.
func (b *txBuilder) upsert(temp string) (int64, error) {
	var found int64
	for _, o := range b.ops {
		if o.kind != opAdd || o.e.kind != refTemp || o.e.temp != temp || o.ref != nil {
			continue
		}
		attr, ok := b.attr(o.a)
		if !ok || attr.Unique != ir.UniqueIdentity {
			continue
		}
		v, err := coerce(attr, o.v)
		if err != nil {
			return 0, txErr(o.form, "form %d: %v", o.form, err)
		}
		owner, ok := b.base.owner(o.a, v)
		if !ok {
			continue
		}
		if found != 0 && found != owner {
			return 0, ir.Errorf(ir.CodeUniqueConstraint,
				"tempid %q upserts to both entity %d and entity %d", temp, found, owner)
		}
		found = owner
	}
	return found, nil
}

// entity resolves a reference to an entity id.
func (b *txBuilder) entity(r eref, form int) (int64, error) {
	switch r.kind {
	case refTemp:
		id, ok := b.tempids[r.temp]
		if !ok {
			return 0, txErr(form, "form %d: unresolved tempid %s", form, r)
		}
		return id, nil
	case refIdent:
		if e, ok := b.base.schema.Ident(r.attr); ok {
			return e, nil
		}
		if target, ok := b.txIdents[r.attr]; ok && target.kind != refIdent {
			return b.entity(target, form)
		}
		return 0, txErr(form, "form %d: no entity with ident %s", form, r.attr)
	case refLookup:
		attr, ok := b.attr(r.attr)
		if !ok || attr.Unique == ir.UniqueNone {
			return 0, txErr(form, "form %d: lookup ref attribute %s is not unique", form, r.attr)
		}
		v, err := coerce(attr, r.val)
		if err != nil {
			return 0, txErr(form, "form %d: %v", form, err)
		}
		e, ok := b.base.owner(r.attr, v)
		if !ok {
			return 0, txErr(form, "form %d: no entity for lookup ref %s", form, r)
		}
		return e, nil
	default:
		if r.id > b.base.maxEID && (r.id <= ir.TxBase || r.id > b.base.basisT) {
			return 0, txErr(form, "form %d: entity %d does not exist", form, r.id)
		}
		return r.id, nil
	}
}

// rop is an op with its entity and value resolved.
type rop struct {
	kind opKind
	e    int64
	a    ir.Keyword
	v    ir.Value
	form int
}

func (b *txBuilder) resolveOp(o op) (rop, error) {
	e, err := b.entity(o.e, o.form)
	if err != nil {
		return rop{}, err
	}
	r := rop{kind: o.kind, e: e, a: o.a, v: o.v, form: o.form}
	if o.ref != nil {
		target, err := b.entity(*o.ref, o.form)
		if err != nil {
			return rop{}, err
		}
		r.v = ir.Int(target)
	}
	return r, nil
}

// reportedTempids returns the caller-visible tempid mapping.
func (b *txBuilder) reportedTempids() map[string]int64 {
	out := make(map[string]int64, len(b.tempids))
	for t, id := range b.tempids {
		if len(t) >= len(anonPrefix) && t[:len(anonPrefix)] == anonPrefix {
			continue
		}
		out[t] = id
	}
	return out
}
