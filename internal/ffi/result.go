package ffi

import (
	"strings"

	"github.com/roach88/factdb/internal/ir"
)

// ExceptionPrefix starts every error result.
const ExceptionPrefix = "exception:"

// EncodeError renders err as exception text. Errors without a code are
// reported as INITIALIZATION failures.
func EncodeError(err error) string {
	code := ir.CodeOf(err)
	if code == "" {
		err = &ir.Error{Code: ir.CodeInitialization, Message: "internal failure", Err: err}
	}
	return ExceptionPrefix + err.Error()
}

// ParseResult splits result text into a value or the error it encodes.
func ParseResult(text string) (string, error) {
	rest, ok := strings.CutPrefix(text, ExceptionPrefix)
	if !ok {
		return text, nil
	}
	code, msg, found := strings.Cut(rest, ": ")
	if !found {
		return "", &ir.Error{Code: ir.CodeInitialization, Message: rest}
	}
	return "", &ir.Error{Code: ir.Code(code), Message: msg}
}
