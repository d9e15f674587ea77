// Package edn reads and prints the tagged-literal text format.
//
// The format is extensible data notation: scalars (nil, booleans, integers,
// floats, strings, characters, keywords, symbols), composites written as
// [vector], (list), {map} and #{set}, and tagged literals introduced by '#'.
// The built-in tags #uuid and #inst decode to ir.UUID and ir.Inst; any other
// tag decodes to ir.Tagged and prints back unchanged.
//
// Print is the inverse of Read for every ir.Value:
//
//	v, _ := edn.Read(edn.Print(x))  // ir.Equal(v, x)
//
// Read never returns a partial value. Malformed or truncated text fails with
// an *ir.Error carrying ir.CodeParse.
package edn
