package ir

import (
	"bytes"
	"cmp"
	"math"
	"slices"
	"sort"
	"strings"
)

// rank groups kinds for cross-kind ordering. Int and Float share a rank so
// that numbers order numerically regardless of representation.
func rank(k Kind) int {
	switch k {
	case KindNil:
		return 0
	case KindBool:
		return 1
	case KindInt, KindFloat:
		return 2
	default:
		return int(k)
	}
}

// Compare defines a total order over values.
//
// Values of different kinds order by kind, except that Int and Float compare
// numerically; when an Int and a Float are numerically equal the Int sorts
// first, so Int(1) and Float(1) remain distinct. NaN sorts after every other
// float and equals itself.
//
// Returns -1, 0 or 1.
func Compare(a, b Value) int {
	if a == nil {
		a = Nil{}
	}
	if b == nil {
		b = Nil{}
	}
	ka, kb := a.Kind(), b.Kind()
	if ra, rb := rank(ka), rank(kb); ra != rb {
		return cmp.Compare(ra, rb)
	}

	switch va := a.(type) {
	case Nil:
		return 0
	case Bool:
		vb := b.(Bool)
		switch {
		case va == vb:
			return 0
		case !bool(va):
			return -1
		default:
			return 1
		}
	case Int:
		switch vb := b.(type) {
		case Int:
			return cmp.Compare(va, vb)
		case Float:
			return compareIntFloat(int64(va), float64(vb))
		}
	case Float:
		switch vb := b.(type) {
		case Float:
			return compareFloat(float64(va), float64(vb))
		case Int:
			return -compareIntFloat(int64(vb), float64(va))
		}
	case Char:
		return cmp.Compare(va, b.(Char))
	case String:
		return strings.Compare(string(va), string(b.(String)))
	case Keyword:
		return strings.Compare(string(va), string(b.(Keyword)))
	case Symbol:
		return strings.Compare(string(va), string(b.(Symbol)))
	case UUID:
		vb := b.(UUID)
		return bytes.Compare(va[:], vb[:])
	case Inst:
		return va.Time().Compare(b.(Inst).Time())
	case Vector:
		return compareSeq(va, b.(Vector))
	case List:
		return compareSeq(va, b.(List))
	case Set:
		return compareSeq(va.items, b.(Set).items)
	case Map:
		return compareEntries(va.entries, b.(Map).entries)
	case Tagged:
		vb := b.(Tagged)
		if c := strings.Compare(va.Tag, vb.Tag); c != 0 {
			return c
		}
		return Compare(va.Value, vb.Value)
	}
	return 0
}

// Equal reports whether two values are identical under Compare.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

// SortValues sorts a slice of values in place by Compare.
func SortValues(vals []Value) {
	slices.SortFunc(vals, Compare)
}

func compareFloat(a, b float64) int {
	an, bn := math.IsNaN(a), math.IsNaN(b)
	switch {
	case an && bn:
		return 0
	case an:
		return 1
	case bn:
		return -1
	}
	return cmp.Compare(a, b)
}

func compareIntFloat(i int64, f float64) int {
	if math.IsNaN(f) {
		return -1
	}
	if c := cmp.Compare(float64(i), f); c != 0 {
		return c
	}
	// Numerically equal: Int sorts before Float.
	return -1
}

func compareSeq(a, b []Value) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}

func compareEntries(a, b []MapEntry) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if c := Compare(a[i].Key, b[i].Key); c != 0 {
			return c
		}
		if c := Compare(a[i].Value, b[i].Value); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}

// searchValues returns the insertion index of v in a sorted slice.
func searchValues(sorted []Value, v Value) int {
	return sort.Search(len(sorted), func(i int) bool {
		return Compare(sorted[i], v) >= 0
	})
}

// searchEntries returns the insertion index of key in key-sorted entries.
func searchEntries(sorted []MapEntry, key Value) int {
	return sort.Search(len(sorted), func(i int) bool {
		return Compare(sorted[i].Key, key) >= 0
	})
}
