package engine

import (
	"github.com/roach88/factdb/internal/ir"
)

// ErrShutdown is returned by operations on an engine after Shutdown.
var ErrShutdown = ir.Errorf(ir.CodeInitialization, "engine is shut down")

// invalidContext reports an unknown or torn-down handle.
func invalidContext(h Handle) *ir.Error {
	return ir.Errorf(ir.CodeInvalidContext, "unknown execution context %s", h).
		With("context", h.String())
}

// IsInvalidContext reports whether err is an invalid-context error.
func IsInvalidContext(err error) bool {
	return ir.IsCode(err, ir.CodeInvalidContext)
}

// notFound reports a database that does not exist.
func notFound(key string) *ir.Error {
	return ir.Errorf(ir.CodeNotFound, "database %s does not exist", key).With("db", key)
}

// alreadyExists reports a database that exists already.
func alreadyExists(key string) *ir.Error {
	return ir.Errorf(ir.CodeAlreadyExists, "database %s already exists", key).With("db", key)
}
