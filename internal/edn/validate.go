package edn

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/roach88/factdb/internal/ir"
)

// Marshal prints v like Print, but fails with ir.CodeParse instead of
// producing text that would not read back as v.
func Marshal(v ir.Value) (string, error) {
	if err := Check(v); err != nil {
		return "", err
	}
	return Print(v), nil
}

// Check reports the first part of v that has no faithful printed form:
// a keyword or symbol outside the token syntax, a string that is not valid
// UTF-8, a character that is not a valid code point, or a malformed tag.
func Check(v ir.Value) error {
	switch val := v.(type) {
	case ir.Keyword:
		if !ValidKeyword(string(val)) {
			return ir.Errorf(ir.CodeParse, "keyword %q cannot be printed", ":"+string(val))
		}
	case ir.Symbol:
		if !ValidSymbol(string(val)) {
			return ir.Errorf(ir.CodeParse, "symbol %q cannot be printed", string(val))
		}
	case ir.String:
		if !utf8.ValidString(string(val)) {
			return ir.Errorf(ir.CodeParse, "string %q is not valid UTF-8", string(val))
		}
	case ir.Char:
		if !utf8.ValidRune(rune(val)) {
			return ir.Errorf(ir.CodeParse, "character %U is not a valid code point", rune(val))
		}
	case ir.Vector:
		return checkAll(val)
	case ir.List:
		return checkAll(val)
	case ir.Set:
		return checkAll(val.Items())
	case ir.Map:
		for _, e := range val.Entries() {
			if err := Check(e.Key); err != nil {
				return err
			}
			if err := Check(e.Value); err != nil {
				return err
			}
		}
	case ir.Tagged:
		if !validTag(val.Tag) {
			return ir.Errorf(ir.CodeParse, "tag %q cannot be printed", "#"+val.Tag)
		}
		return Check(val.Value)
	}
	return nil
}

func checkAll(items []ir.Value) error {
	for _, item := range items {
		if err := Check(item); err != nil {
			return err
		}
	}
	return nil
}

// ValidKeyword reports whether name, printed after a colon, reads back as
// the keyword with that name.
func ValidKeyword(name string) bool {
	if !validToken(name) {
		return false
	}
	return !strings.HasPrefix(name, ":") && !strings.HasSuffix(name, "/")
}

// ValidSymbol reports whether name reads back as the symbol with that name.
func ValidSymbol(name string) bool {
	if !validToken(name) {
		return false
	}
	switch name {
	case "nil", "true", "false":
		return false
	case "/":
		return true
	}
	switch name[0] {
	case ':', '#', '\\':
		return false
	}
	return !isNumberStart(name) && !strings.HasSuffix(name, "/")
}

func validTag(tag string) bool {
	return ValidSymbol(tag) && unicode.IsLetter(rune(tag[0]))
}

// validToken reports whether s is a non-empty run the reader consumes as a
// single token.
func validToken(s string) bool {
	if s == "" || !utf8.ValidString(s) {
		return false
	}
	for _, c := range s {
		if isDelimiter(c) {
			return false
		}
	}
	return true
}
