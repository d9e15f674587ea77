// Package ir provides the canonical in-memory data model for factdb.
//
// This package contains the value union, datoms, attribute definitions and
// the error taxonomy. All other internal packages import ir; ir imports
// nothing internal. This keeps ir the foundational layer with no circular
// dependencies.
//
// Key design constraints:
//   - Value is a sealed interface; only the types in this package implement it
//   - Values are immutable once constructed (Set and Map are built through
//     constructors that sort and deduplicate)
//   - Compare defines a total order over all values, so every collection has a
//     deterministic encoding
//   - Keywords are stored without the leading colon ("db/ident")
package ir
