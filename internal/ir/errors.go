package ir

import (
	"errors"
	"fmt"
)

// Code categorizes factdb errors. Codes are stable strings: they cross the
// FFI boundary verbatim as part of the "exception:" encoding.
type Code string

const (
	// CodeInitialization indicates a context or database could not start.
	// Storage corruption detected at open is reported with this code.
	CodeInitialization Code = "INITIALIZATION"

	// CodeInvalidContext indicates a stale or unknown context handle.
	CodeInvalidContext Code = "INVALID_CONTEXT"

	// CodeConfig indicates a malformed or incomplete database configuration.
	CodeConfig Code = "CONFIG"

	// CodeParse indicates malformed or truncated input text.
	CodeParse Code = "PARSE"

	// CodeSchemaViolation indicates an unknown attribute under schema-on-read,
	// or an attempt to redefine an installed attribute.
	CodeSchemaViolation Code = "SCHEMA_VIOLATION"

	// CodeUniqueConstraint indicates a duplicate value for a unique attribute.
	CodeUniqueConstraint Code = "UNIQUE_CONSTRAINT"

	// CodeTransaction indicates a type, cardinality or entity-resolution
	// failure during transact.
	CodeTransaction Code = "TRANSACTION"

	// CodeQuery indicates a malformed query or a failed evaluation.
	CodeQuery Code = "QUERY"

	// CodeAlreadyExists indicates createDatabase on an existing database.
	CodeAlreadyExists Code = "ALREADY_EXISTS"

	// CodeNotFound indicates a connection attempt to a missing database.
	CodeNotFound Code = "NOT_FOUND"
)

// Error is the structured error returned by every factdb operation.
//
// Error includes structured fields for diagnostics:
//   - Code classifies the failure (see the Code constants)
//   - Message is a human-readable description
//   - Details carries optional key/value context (attribute, entity, ...)
//   - Err is the underlying cause, if any
type Error struct {
	Code    Code
	Message string
	Details map[string]string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// With returns the error with an additional detail attached.
func (e *Error) With(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Errorf creates an Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error with the given code around a cause.
// A cause that is already an *Error is returned unchanged so that the
// innermost classification wins.
func Wrap(code Code, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "" when err
// carries no classification.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
