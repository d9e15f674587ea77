package db

import (
	"cmp"
	"sort"
	"time"

	"github.com/google/btree"

	"github.com/roach88/factdb/internal/ir"
)

// btreeDegree is the branching factor of every index.
const btreeDegree = 32

// Index names a sort order over datoms.
type Index string

const (
	IndexEAVT Index = "eavt"
	IndexAEVT Index = "aevt"
	IndexAVET Index = "avet"
	// IndexScan is a full EAVT walk with no usable prefix.
	IndexScan Index = "scan"
)

func lessEAVT(a, b ir.Datom) bool {
	if c := cmp.Compare(a.E, b.E); c != 0 {
		return c < 0
	}
	if c := cmp.Compare(a.A, b.A); c != 0 {
		return c < 0
	}
	if c := ir.Compare(a.V, b.V); c != 0 {
		return c < 0
	}
	return a.Tx < b.Tx
}

func lessAEVT(a, b ir.Datom) bool {
	if c := cmp.Compare(a.A, b.A); c != 0 {
		return c < 0
	}
	if c := cmp.Compare(a.E, b.E); c != 0 {
		return c < 0
	}
	if c := ir.Compare(a.V, b.V); c != 0 {
		return c < 0
	}
	return a.Tx < b.Tx
}

func lessAVET(a, b ir.Datom) bool {
	if c := cmp.Compare(a.A, b.A); c != 0 {
		return c < 0
	}
	if c := ir.Compare(a.V, b.V); c != 0 {
		return c < 0
	}
	if c := cmp.Compare(a.E, b.E); c != 0 {
		return c < 0
	}
	return a.Tx < b.Tx
}

// lessHistory orders every assertion and retraction; a retraction sorts
// before an assertion in the same transaction.
func lessHistory(a, b ir.Datom) bool {
	if lessEAVT(a, b) {
		return true
	}
	if lessEAVT(b, a) {
		return false
	}
	return !a.Added && b.Added
}

type viewKind int

const (
	viewCurrent viewKind = iota
	viewAsOf
	viewSince
	viewHistory
)

// txEntry records one committed transaction in the revision's log.
type txEntry struct {
	id      int64
	instant time.Time
	datoms  []ir.Datom
}

// DB is an immutable database revision.
//
// A DB is safe for concurrent use. Views derived from it (AsOf, Since,
// History) are DBs as well and share its indexes.
type DB struct {
	basisT      int64
	maxEID      int64
	keepHistory bool
	schema      *Schema

	eavt *btree.BTreeG[ir.Datom]
	aevt *btree.BTreeG[ir.Datom]
	avet *btree.BTreeG[ir.Datom]
	hist *btree.BTreeG[ir.Datom] // nil unless history is kept

	// txs is a length-bounded view of the connection's append-only log.
	txs []txEntry

	view   viewKind
	viewTx int64
}

// empty returns the revision of a database with no transactions.
func empty(keepHistory bool) *DB {
	db := &DB{
		basisT:      ir.TxBase,
		keepHistory: keepHistory,
		schema:      newSchema(),
		eavt:        btree.NewG(btreeDegree, lessEAVT),
		aevt:        btree.NewG(btreeDegree, lessAEVT),
		avet:        btree.NewG(btreeDegree, lessAVET),
	}
	if keepHistory {
		db.hist = btree.NewG(btreeDegree, lessHistory)
	}
	return db
}

// BasisT returns the id of the last transaction visible in this revision,
// or ir.TxBase for an empty database.
func (db *DB) BasisT() int64 { return db.basisT }

// MaxEID returns the entity-id high-water mark.
func (db *DB) MaxEID() int64 { return db.maxEID }

// KeepHistory reports whether the database records retracted datoms.
func (db *DB) KeepHistory() bool { return db.keepHistory }

// IsHistory reports whether this is a history view.
func (db *DB) IsHistory() bool { return db.view == viewHistory }

// Attribute returns the schema definition of an attribute.
func (db *DB) Attribute(a ir.Keyword) (ir.Attribute, bool) {
	return db.schema.Attr(a)
}

// withDatoms returns a new revision with the datoms applied to the indexes
// and the schema re-derived for every attribute entity they touch. The log
// is left unchanged.
func (db *DB) withDatoms(datoms []ir.Datom) *DB {
	next := *db
	next.eavt = db.eavt.Clone()
	next.aevt = db.aevt.Clone()
	next.avet = db.avet.Clone()
	if db.hist != nil {
		next.hist = db.hist.Clone()
	}

	var touched []int64
	for _, d := range datoms {
		live, wasLive := ir.Datom{}, false
		if d.Added {
			next.eavt.ReplaceOrInsert(d)
			next.aevt.ReplaceOrInsert(d)
			next.avet.ReplaceOrInsert(d)
		} else if live, wasLive = next.liveDatom(d.E, d.A, d.V); wasLive {
			next.eavt.Delete(live)
			next.aevt.Delete(live)
			next.avet.Delete(live)
		}
		if next.hist != nil {
			// History of a :db/noHistory attribute holds its live
			// assertions only.
			attr, ok := db.schema.Attr(d.A)
			switch {
			case !ok || !attr.NoHistory || d.Added:
				next.hist.ReplaceOrInsert(d)
			case wasLive:
				next.hist.Delete(live)
			}
		}
		if isSchemaAttr(d.A) {
			touched = append(touched, d.E)
		}
	}
	if len(touched) > 0 {
		next.schema = db.schema.derive(&next, touched)
	}
	return &next
}

// commit returns the revision after a whole transaction, log included.
// Callers serialize commits; older revisions keep their shorter log view.
func (db *DB) commit(e txEntry, maxEID int64) *DB {
	next := db.withDatoms(e.datoms)
	next.basisT = e.id
	next.maxEID = maxEID
	next.txs = append(db.txs, e)
	return next
}

// liveDatom finds the live datom for (e, a, v), whatever its tx.
func (db *DB) liveDatom(e int64, a ir.Keyword, v ir.Value) (ir.Datom, bool) {
	var found ir.Datom
	var ok bool
	db.eavt.AscendGreaterOrEqual(ir.Datom{E: e, A: a, V: v}, func(d ir.Datom) bool {
		if d.E == e && d.A == a && ir.Equal(d.V, v) {
			found, ok = d, true
		}
		return false
	})
	return found, ok
}

// values returns the live values of (e, a) in index order.
func (db *DB) values(e int64, a ir.Keyword) []ir.Value {
	var out []ir.Value
	db.eavt.AscendGreaterOrEqual(ir.Datom{E: e, A: a}, func(d ir.Datom) bool {
		if d.E != e || d.A != a {
			return false
		}
		out = append(out, d.V)
		return true
	})
	return out
}

// owner returns the entity holding the live value v for attribute a.
func (db *DB) owner(a ir.Keyword, v ir.Value) (int64, bool) {
	var e int64
	var ok bool
	db.avet.AscendGreaterOrEqual(ir.Datom{A: a, V: v}, func(d ir.Datom) bool {
		if d.A == a && ir.Equal(d.V, v) {
			e, ok = d.E, true
		}
		return false
	})
	return e, ok
}

// Pattern selects datoms. Zero fields are unbound.
type Pattern struct {
	E  int64
	A  ir.Keyword
	V  ir.Value
	Tx int64
}

// Index returns the index a search for the pattern walks: EAVT when the
// entity is bound, AVET when attribute and value are, AEVT when only the
// attribute is, and a full scan otherwise.
func (p Pattern) Index() Index {
	switch {
	case p.E != 0:
		return IndexEAVT
	case p.A != "" && p.V != nil:
		return IndexAVET
	case p.A != "":
		return IndexAEVT
	default:
		return IndexScan
	}
}

func (p Pattern) matches(d ir.Datom) bool {
	if p.E != 0 && d.E != p.E {
		return false
	}
	if p.A != "" && d.A != p.A {
		return false
	}
	if p.V != nil && !ir.Equal(d.V, p.V) {
		return false
	}
	if p.Tx != 0 && d.Tx != p.Tx {
		return false
	}
	return true
}

// Search calls fn for every visible datom matching p, in the order of the
// chosen index, until fn returns false.
//
// History views return assertions and retractions; every other view returns
// live datoms only.
func (db *DB) Search(p Pattern, fn func(ir.Datom) bool) {
	visit := func(d ir.Datom) bool {
		if !p.matches(d) {
			return true
		}
		if db.view == viewSince && d.Tx <= db.viewTx {
			return true
		}
		return fn(d)
	}

	if db.view == viewHistory {
		if p.E != 0 {
			db.hist.AscendGreaterOrEqual(ir.Datom{E: p.E, A: p.A}, func(d ir.Datom) bool {
				if d.E != p.E || (p.A != "" && d.A != p.A) {
					return false
				}
				return visit(d)
			})
			return
		}
		db.hist.Ascend(visit)
		return
	}

	switch p.Index() {
	case IndexEAVT:
		db.eavt.AscendGreaterOrEqual(ir.Datom{E: p.E, A: p.A, V: p.V}, func(d ir.Datom) bool {
			if d.E != p.E || (p.A != "" && d.A != p.A) {
				return false
			}
			return visit(d)
		})
	case IndexAVET:
		db.avet.AscendGreaterOrEqual(ir.Datom{A: p.A, V: p.V}, func(d ir.Datom) bool {
			if d.A != p.A || !ir.Equal(d.V, p.V) {
				return false
			}
			return visit(d)
		})
	case IndexAEVT:
		db.aevt.AscendGreaterOrEqual(ir.Datom{A: p.A}, func(d ir.Datom) bool {
			if d.A != p.A {
				return false
			}
			return visit(d)
		})
	default:
		db.eavt.Ascend(visit)
	}
}

// Collect returns every datom matching p.
func (db *DB) Collect(p Pattern) []ir.Datom {
	var out []ir.Datom
	db.Search(p, func(d ir.Datom) bool {
		out = append(out, d)
		return true
	})
	return out
}

// History returns a view over every assertion and retraction.
func (db *DB) History() (*DB, error) {
	if !db.keepHistory {
		return nil, ir.Errorf(ir.CodeQuery, "history is not kept for this database")
	}
	h := *db
	h.view = viewHistory
	return &h, nil
}

// AsOf returns the database as it was after the last transaction committed
// at or before t.
func (db *DB) AsOf(t time.Time) (*DB, error) {
	return db.AsOfTx(db.txAt(t))
}

// AsOfTx returns the database as it was after transaction tx.
func (db *DB) AsOfTx(tx int64) (*DB, error) {
	if !db.keepHistory {
		return nil, ir.Errorf(ir.CodeQuery, "as-of requires a database that keeps history")
	}
	past := empty(db.keepHistory)
	for _, e := range db.txs {
		if e.id > tx {
			break
		}
		past = past.commit(e, db.maxEID)
	}
	past.view = viewAsOf
	past.viewTx = tx
	return past, nil
}

// Since returns a view of the live datoms asserted by transactions committed
// after t.
func (db *DB) Since(t time.Time) (*DB, error) {
	return db.SinceTx(db.txAt(t))
}

// SinceTx returns a view of the live datoms asserted after transaction tx.
func (db *DB) SinceTx(tx int64) (*DB, error) {
	if !db.keepHistory {
		return nil, ir.Errorf(ir.CodeQuery, "since requires a database that keeps history")
	}
	s := *db
	s.view = viewSince
	s.viewTx = tx
	return &s, nil
}

// txAt returns the last transaction committed at or before t, or ir.TxBase
// when there is none.
func (db *DB) txAt(t time.Time) int64 {
	i := sort.Search(len(db.txs), func(i int) bool {
		return db.txs[i].instant.After(t)
	})
	if i == 0 {
		return ir.TxBase
	}
	return db.txs[i-1].id
}
