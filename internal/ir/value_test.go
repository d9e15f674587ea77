package ir

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	// Verify all types implement Value (compile-time check via assignment)
	var _ Value = Nil{}
	var _ Value = Bool(true)
	var _ Value = Int(42)
	var _ Value = Float(1.5)
	var _ Value = Char('x')
	var _ Value = String("test")
	var _ Value = KW("name")
	var _ Value = Symbol("?e")
	var _ Value = UUID(uuid.Nil)
	var _ Value = Inst(time.Unix(0, 0))
	var _ Value = Vector{Int(1)}
	var _ Value = List{Int(1)}
	var _ Value = NewSet(Int(1))
	var _ Value = NewMap(E(KW("a"), Int(1)))
	var _ Value = Tagged{Tag: "my/tag", Value: Int(1)}
}

func TestKeyword(t *testing.T) {
	tests := []struct {
		in        string
		namespace string
		name      string
		printed   string
	}{
		{":db/ident", "db", "ident", ":db/ident"},
		{"db/ident", "db", "ident", ":db/ident"},
		{":name", "", "name", ":name"},
		{"person.address/zip", "person.address", "zip", ":person.address/zip"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			k := KW(tt.in)
			assert.Equal(t, tt.namespace, k.Namespace())
			assert.Equal(t, tt.name, k.Name())
			assert.Equal(t, tt.printed, k.String())
		})
	}
}

func TestSymbolClassification(t *testing.T) {
	assert.True(t, Symbol("?e").IsVariable())
	assert.False(t, Symbol("?e").IsSource())
	assert.True(t, Symbol("$").IsSource())
	assert.True(t, Symbol("$hist").IsSource())
	assert.False(t, Symbol("count").IsVariable())
}

func TestSetDeduplicatesAndSorts(t *testing.T) {
	s := NewSet(Int(3), String("a"), Int(1), Int(3), KW("k"), Int(1))

	require.Equal(t, 4, s.Len())
	assert.Equal(t, []Value{Int(1), Int(3), String("a"), KW("k")}, s.Items())
	assert.True(t, s.Contains(Int(3)))
	assert.False(t, s.Contains(Int(2)))
	assert.False(t, s.Contains(Float(3)), "Int and Float are distinct members")
}

func TestSetEqualityIgnoresInsertionOrder(t *testing.T) {
	a := NewSet(Vector{Int(2), String("Alice")}, Vector{Int(3), String("Bob")})
	b := NewSet(Vector{Int(3), String("Bob")}, Vector{Int(2), String("Alice")})
	assert.True(t, Equal(a, b))
}

func TestMapLastWinsAndLookup(t *testing.T) {
	m := NewMap(
		E(KW("b"), Int(1)),
		E(KW("a"), Int(2)),
		E(KW("b"), Int(3)),
	)

	require.Equal(t, 2, m.Len())
	v, ok := m.GetKeyword(KW("b"))
	require.True(t, ok)
	assert.Equal(t, Int(3), v)

	_, ok = m.Get(String("b"))
	assert.False(t, ok, "string key must not match keyword key")

	entries := m.Entries()
	assert.Equal(t, KW("a"), entries[0].Key)
	assert.Equal(t, KW("b"), entries[1].Key)
}

func TestMapAssocIsPersistent(t *testing.T) {
	m := NewMap(E(KW("a"), Int(1)))
	m2 := m.Assoc(KW("b"), Int(2))
	m3 := m2.Assoc(KW("a"), Int(9))

	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 2, m2.Len())
	v, _ := m2.Get(KW("a"))
	assert.Equal(t, Int(1), v)
	v, _ = m3.Get(KW("a"))
	assert.Equal(t, Int(9), v)
}

func TestSeq(t *testing.T) {
	items, ok := Seq(Vector{Int(1), Int(2)})
	require.True(t, ok)
	assert.Len(t, items, 2)

	items, ok = Seq(NewSet(Int(1), Int(1)))
	require.True(t, ok)
	assert.Len(t, items, 1)

	_, ok = Seq(String("abc"))
	assert.False(t, ok)
}

func TestCompareTotalOrder(t *testing.T) {
	ordered := []Value{
		Nil{},
		Bool(false),
		Bool(true),
		Float(math.Inf(-1)),
		Int(-5),
		Int(1),
		Float(1),
		Float(1.5),
		Int(2),
		Float(math.NaN()),
		Char('a'),
		String("a"),
		String("b"),
		KW("a"),
		KW("a/b"),
		Symbol("x"),
		UUID(uuid.MustParse("00000000-0000-0000-0000-000000000001")),
		Inst(time.Unix(0, 0).UTC()),
		Inst(time.Unix(1, 0).UTC()),
		Vector{},
		Vector{Int(1)},
		Vector{Int(1), Int(2)},
		List{Int(1)},
		NewSet(Int(1)),
		NewMap(E(KW("a"), Int(1))),
		Tagged{Tag: "x/y", Value: Int(1)},
	}

	for i := range ordered {
		for j := range ordered {
			got := Compare(ordered[i], ordered[j])
			switch {
			case i < j:
				assert.Equal(t, -1, got, "Compare(%v, %v)", ordered[i], ordered[j])
			case i > j:
				assert.Equal(t, 1, got, "Compare(%v, %v)", ordered[i], ordered[j])
			default:
				assert.Equal(t, 0, got, "Compare(%v, %v)", ordered[i], ordered[j])
			}
		}
	}
}

func TestEqualNaN(t *testing.T) {
	assert.True(t, Equal(Float(math.NaN()), Float(math.NaN())))
	assert.True(t, IsNaN(Float(math.NaN())))
	assert.False(t, IsNaN(Int(0)))
}

func TestCompareNilInterface(t *testing.T) {
	assert.Equal(t, 0, Compare(nil, Nil{}))
	assert.Equal(t, -1, Compare(nil, Int(0)))
}

func TestSortValues(t *testing.T) {
	vals := []Value{String("b"), Int(2), Nil{}, Int(1)}
	SortValues(vals)
	assert.Equal(t, []Value{Nil{}, Int(1), Int(2), String("b")}, vals)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "long", Int(1).Kind().String())
	assert.Equal(t, "keyword", KW("a").Kind().String())
	assert.Equal(t, "unknown", Kind(99).String())
}
