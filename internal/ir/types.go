package ir

import (
	"fmt"
	"time"
)

// TxBase is the first transaction id. Transaction ids live in their own
// range so they never collide with entity ids.
const TxBase int64 = 536870912

// Datom is the fundamental unit of storage: a single immutable fact.
type Datom struct {
	E     int64   `json:"e"`
	A     Keyword `json:"a"`
	V     Value   `json:"v"`
	Tx    int64   `json:"tx"`
	Added bool    `json:"added"`
}

// String returns a printable representation of the datom.
func (d Datom) String() string {
	return fmt.Sprintf("#datom [%d %s %v %d %t]", d.E, d.A, d.V, d.Tx, d.Added)
}

// Vector renders the datom as [e a v tx added].
func (d Datom) Vector() Vector {
	return Vector{Int(d.E), d.A, d.V, Int(d.Tx), Bool(d.Added)}
}

// ValueType enumerates attribute value types.
// The zero value (TypeAny) accepts every value and is used for attributes
// admitted on the fly under schema-on-write flexibility.
type ValueType string

const (
	TypeAny     ValueType = ""
	TypeString  ValueType = "db.type/string"
	TypeLong    ValueType = "db.type/long"
	TypeDouble  ValueType = "db.type/double"
	TypeBoolean ValueType = "db.type/boolean"
	TypeInstant ValueType = "db.type/instant"
	TypeUUID    ValueType = "db.type/uuid"
	TypeRef     ValueType = "db.type/ref"
	TypeKeyword ValueType = "db.type/keyword"
	TypeSymbol  ValueType = "db.type/symbol"
)

// ValidValueTypes lists the value types accepted in schema declarations.
var ValidValueTypes = map[ValueType]bool{
	TypeString:  true,
	TypeLong:    true,
	TypeDouble:  true,
	TypeBoolean: true,
	TypeInstant: true,
	TypeUUID:    true,
	TypeRef:     true,
	TypeKeyword: true,
	TypeSymbol:  true,
}

// Cardinality controls how many live values an entity may hold for an attribute.
type Cardinality string

const (
	CardinalityOne  Cardinality = "db.cardinality/one"
	CardinalityMany Cardinality = "db.cardinality/many"
)

// Uniqueness of attribute values across entities.
type Uniqueness string

const (
	UniqueNone     Uniqueness = ""
	UniqueIdentity Uniqueness = "db.unique/identity"
	UniqueValue    Uniqueness = "db.unique/value"
)

// Attribute is a schema attribute definition.
type Attribute struct {
	ID          int64       `json:"id"`
	Ident       Keyword     `json:"ident"`
	ValueType   ValueType   `json:"value_type,omitempty"`
	Cardinality Cardinality `json:"cardinality"`
	Unique      Uniqueness  `json:"unique,omitempty"`
	Index       bool        `json:"index,omitempty"`
	NoHistory   bool        `json:"no_history,omitempty"`
	Doc         string      `json:"doc,omitempty"`
}

// Many reports whether the attribute is cardinality many.
func (a Attribute) Many() bool { return a.Cardinality == CardinalityMany }

// IsRef reports whether values of this attribute are entity references.
func (a Attribute) IsRef() bool { return a.ValueType == TypeRef }

// ToMap renders the attribute the way schema queries return it.
func (a Attribute) ToMap() Map {
	entries := []MapEntry{
		E(KW("db/id"), Int(a.ID)),
		E(KW("db/ident"), a.Ident),
		E(KW("db/cardinality"), Keyword(a.Cardinality)),
	}
	if a.ValueType != TypeAny {
		entries = append(entries, E(KW("db/valueType"), Keyword(a.ValueType)))
	}
	if a.Unique != UniqueNone {
		entries = append(entries, E(KW("db/unique"), Keyword(a.Unique)))
	}
	if a.Index {
		entries = append(entries, E(KW("db/index"), Bool(true)))
	}
	if a.NoHistory {
		entries = append(entries, E(KW("db/noHistory"), Bool(true)))
	}
	if a.Doc != "" {
		entries = append(entries, E(KW("db/doc"), String(a.Doc)))
	}
	return NewMap(entries...)
}

// TxReport is the result of a successful commit.
type TxReport struct {
	TxID      int64
	TxInstant time.Time
	Added     []Datom
	Retracted []Datom
	Tempids   map[string]int64
}

// ToValue renders the report as a map:
//
//	{:tx-id 536870913 :tx-instant #inst "..." :datoms-added [...] :datoms-retracted [...] :tempids {...}}
func (r *TxReport) ToValue() Map {
	added := make(Vector, len(r.Added))
	for i, d := range r.Added {
		added[i] = d.Vector()
	}
	retracted := make(Vector, len(r.Retracted))
	for i, d := range r.Retracted {
		retracted[i] = d.Vector()
	}
	tempids := make([]MapEntry, 0, len(r.Tempids))
	for k, v := range r.Tempids {
		tempids = append(tempids, E(String(k), Int(v)))
	}
	return NewMap(
		E(KW("tx-id"), Int(r.TxID)),
		E(KW("tx-instant"), Inst(r.TxInstant)),
		E(KW("datoms-added"), added),
		E(KW("datoms-retracted"), retracted),
		E(KW("tempids"), NewMap(tempids...)),
	)
}
