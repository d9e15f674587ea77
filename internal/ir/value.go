package ir

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the concrete type behind a Value.
// The numeric order is the cross-kind sort order used by Compare.
type Kind int

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindChar
	KindString
	KindKeyword
	KindSymbol
	KindUUID
	KindInst
	KindVector
	KindList
	KindSet
	KindMap
	KindTagged
)

var kindNames = [...]string{
	KindNil:     "nil",
	KindBool:    "boolean",
	KindInt:     "long",
	KindFloat:   "double",
	KindChar:    "char",
	KindString:  "string",
	KindKeyword: "keyword",
	KindSymbol:  "symbol",
	KindUUID:    "uuid",
	KindInst:    "instant",
	KindVector:  "vector",
	KindList:    "list",
	KindSet:     "set",
	KindMap:     "map",
	KindTagged:  "tagged",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Value is a sealed interface representing every datum factdb can store,
// query or serialize. Only the types in this package implement it.
type Value interface {
	Kind() Kind
	value() // Sealed
}

// Nil is the absent value.
type Nil struct{}

// Bool is a boolean value.
type Bool bool

// Int is a 64-bit integer ("long").
type Int int64

// Float is a 64-bit floating point number ("double").
type Float float64

// Char is a single unicode character.
type Char rune

// String is a UTF-8 string.
type String string

// Symbol is a bare identifier such as a query variable ("?e") or an
// operator name ("count").
type Symbol string

// UUID is an RFC 4122 identifier.
type UUID uuid.UUID

// Inst is a point in time.
type Inst time.Time

// Vector is an ordered, indexed sequence.
type Vector []Value

// List is an ordered sequence written with parentheses.
type List []Value

// Tagged is a tagged literal whose tag is not known to factdb.
// It round-trips through the tagged-literal format untouched.
type Tagged struct {
	Tag   string
	Value Value
}

func (Nil) Kind() Kind     { return KindNil }
func (Bool) Kind() Kind    { return KindBool }
func (Int) Kind() Kind     { return KindInt }
func (Float) Kind() Kind   { return KindFloat }
func (Char) Kind() Kind    { return KindChar }
func (String) Kind() Kind  { return KindString }
func (Keyword) Kind() Kind { return KindKeyword }
func (Symbol) Kind() Kind  { return KindSymbol }
func (UUID) Kind() Kind    { return KindUUID }
func (Inst) Kind() Kind    { return KindInst }
func (Vector) Kind() Kind  { return KindVector }
func (List) Kind() Kind    { return KindList }
func (Set) Kind() Kind     { return KindSet }
func (Map) Kind() Kind     { return KindMap }
func (Tagged) Kind() Kind  { return KindTagged }

func (Nil) value()     {}
func (Bool) value()    {}
func (Int) value()     {}
func (Float) value()   {}
func (Char) value()    {}
func (String) value()  {}
func (Keyword) value() {}
func (Symbol) value()  {}
func (UUID) value()    {}
func (Inst) value()    {}
func (Vector) value()  {}
func (List) value()    {}
func (Set) value()     {}
func (Map) value()     {}
func (Tagged) value()  {}

// Time returns the instant as a time.Time.
func (i Inst) Time() time.Time { return time.Time(i) }

// String returns the canonical hyphenated form.
func (u UUID) String() string { return uuid.UUID(u).String() }

// NewInst creates an Inst from a time.Time.
func NewInst(t time.Time) Inst { return Inst(t) }

// IsVariable reports whether the symbol names a query variable.
func (s Symbol) IsVariable() bool {
	return strings.HasPrefix(string(s), "?")
}

// IsSource reports whether the symbol names a query data source ("$", "$hist").
func (s Symbol) IsSource() bool {
	return strings.HasPrefix(string(s), "$")
}

// Keyword is a namespaced identifier stored without its leading colon,
// e.g. Keyword("db/ident") for :db/ident.
type Keyword string

// KW creates a keyword, stripping a leading colon if present.
func KW(s string) Keyword {
	return Keyword(strings.TrimPrefix(s, ":"))
}

// Namespace returns the part before the slash, or "" for plain keywords.
func (k Keyword) Namespace() string {
	if i := strings.IndexByte(string(k), '/'); i > 0 {
		return string(k[:i])
	}
	return ""
}

// Name returns the part after the slash.
func (k Keyword) Name() string {
	if i := strings.IndexByte(string(k), '/'); i > 0 {
		return string(k[i+1:])
	}
	return string(k)
}

// String returns the printed form with the leading colon.
func (k Keyword) String() string {
	return ":" + string(k)
}

// Set is an unordered collection without duplicates. The zero value is the
// empty set. Items are kept sorted by Compare for deterministic encoding.
type Set struct {
	items []Value
}

// NewSet builds a set, discarding duplicate values.
func NewSet(items ...Value) Set {
	sorted := make([]Value, len(items))
	copy(sorted, items)
	SortValues(sorted)

	out := sorted[:0]
	for i, v := range sorted {
		if i > 0 && Equal(out[len(out)-1], v) {
			continue
		}
		out = append(out, v)
	}
	return Set{items: out}
}

// Items returns the members in canonical order. Callers must not modify it.
func (s Set) Items() []Value { return s.items }

// Len returns the number of members.
func (s Set) Len() int { return len(s.items) }

// Contains reports whether v is a member.
func (s Set) Contains(v Value) bool {
	i := searchValues(s.items, v)
	return i < len(s.items) && Equal(s.items[i], v)
}

// MapEntry is a single key/value association.
type MapEntry struct {
	Key   Value
	Value Value
}

// Map is an associative collection with unique keys. Entries are kept
// sorted by key.
type Map struct {
	entries []MapEntry
}

// NewMap builds a map. When a key repeats, the last entry wins.
func NewMap(entries ...MapEntry) Map {
	sorted := make([]MapEntry, 0, len(entries))
	for _, e := range entries {
		i := searchEntries(sorted, e.Key)
		if i < len(sorted) && Equal(sorted[i].Key, e.Key) {
			sorted[i] = e
			continue
		}
		sorted = append(sorted, MapEntry{})
		copy(sorted[i+1:], sorted[i:])
		sorted[i] = e
	}
	return Map{entries: sorted}
}

// Entries returns the entries in key order. Callers must not modify it.
func (m Map) Entries() []MapEntry { return m.entries }

// Len returns the number of entries.
func (m Map) Len() int { return len(m.entries) }

// Get returns the value stored under key.
func (m Map) Get(key Value) (Value, bool) {
	i := searchEntries(m.entries, key)
	if i < len(m.entries) && Equal(m.entries[i].Key, key) {
		return m.entries[i].Value, true
	}
	return nil, false
}

// GetKeyword is Get for keyword keys.
func (m Map) GetKeyword(k Keyword) (Value, bool) {
	return m.Get(k)
}

// Assoc returns a new map with key set to val.
func (m Map) Assoc(key, val Value) Map {
	entries := make([]MapEntry, len(m.entries), len(m.entries)+1)
	copy(entries, m.entries)
	i := searchEntries(entries, key)
	if i < len(entries) && Equal(entries[i].Key, key) {
		entries[i] = MapEntry{Key: key, Value: val}
		return Map{entries: entries}
	}
	entries = append(entries, MapEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = MapEntry{Key: key, Value: val}
	return Map{entries: entries}
}

// E is a shorthand for MapEntry.
// Example: NewMap(E(KW("name"), String("Alice")))
func E(key, val Value) MapEntry {
	return MapEntry{Key: key, Value: val}
}

// Seq returns the elements of any sequential collection (vector, list, set).
func Seq(v Value) ([]Value, bool) {
	switch val := v.(type) {
	case Vector:
		return val, true
	case List:
		return val, true
	case Set:
		return val.items, true
	default:
		return nil, false
	}
}

// IsNaN reports whether the value is a floating point NaN.
func IsNaN(v Value) bool {
	f, ok := v.(Float)
	return ok && math.IsNaN(float64(f))
}
