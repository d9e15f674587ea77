package db

import (
	"github.com/roach88/factdb/internal/config"
	"github.com/roach88/factdb/internal/ir"
)

// unknownAttrs decides what a transaction may do with an attribute that is
// not in the schema. One strategy is chosen per connection when it opens.
type unknownAttrs interface {
	// assert is called for an assertion; it returns the definition to
	// install or an error.
	assert(a ir.Keyword) (ir.Attribute, error)
	// retract is called for a retraction; a nil error makes it a no-op.
	retract(a ir.Keyword) error
}

// autoExtend installs unseen attributes as untyped, cardinality one.
type autoExtend struct{}

func (autoExtend) assert(a ir.Keyword) (ir.Attribute, error) {
	if a.Namespace() == "db" {
		return ir.Attribute{}, ir.Errorf(ir.CodeSchemaViolation, "unknown attribute %s in the reserved :db namespace", a)
	}
	return ir.Attribute{Ident: a, Cardinality: ir.CardinalityOne}, nil
}

func (autoExtend) retract(ir.Keyword) error { return nil }

// rejectUnknown fails every transaction naming an unknown attribute.
type rejectUnknown struct{}

func (rejectUnknown) assert(a ir.Keyword) (ir.Attribute, error) {
	return ir.Attribute{}, unknownAttr(a)
}

func (rejectUnknown) retract(a ir.Keyword) error {
	return unknownAttr(a)
}

func unknownAttr(a ir.Keyword) error {
	return ir.Errorf(ir.CodeSchemaViolation, "attribute %s is not in the schema", a).
		With("attribute", a.String())
}

func strategyFor(f config.Flexibility) unknownAttrs {
	if f == config.FlexibilityRead {
		return rejectUnknown{}
	}
	return autoExtend{}
}
