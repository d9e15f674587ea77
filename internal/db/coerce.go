package db

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/factdb/internal/edn"
	"github.com/roach88/factdb/internal/ir"
)

// coerce converts v to the value type of attr. Strings are accepted for
// instants and uuids when they parse, integers for doubles.
func coerce(attr ir.Attribute, v ir.Value) (ir.Value, error) {
	if v == nil || v.Kind() == ir.KindNil {
		return nil, fmt.Errorf("nil is not a valid value for %s", attr.Ident)
	}
	if ir.IsNaN(v) {
		return nil, fmt.Errorf("NaN is not a valid value for %s", attr.Ident)
	}

	switch attr.ValueType {
	case ir.TypeAny:
		return v, nil
	case ir.TypeString:
		if _, ok := v.(ir.String); ok {
			return v, nil
		}
	case ir.TypeLong, ir.TypeRef:
		if _, ok := v.(ir.Int); ok {
			return v, nil
		}
	case ir.TypeDouble:
		switch x := v.(type) {
		case ir.Float:
			return v, nil
		case ir.Int:
			return ir.Float(float64(x)), nil
		}
	case ir.TypeBoolean:
		if _, ok := v.(ir.Bool); ok {
			return v, nil
		}
	case ir.TypeKeyword:
		if _, ok := v.(ir.Keyword); ok {
			return v, nil
		}
	case ir.TypeSymbol:
		if _, ok := v.(ir.Symbol); ok {
			return v, nil
		}
	case ir.TypeInstant:
		switch x := v.(type) {
		case ir.Inst:
			return ir.Inst(x.Time().UTC()), nil
		case ir.String:
			if t, err := edn.ParseInst(string(x)); err == nil {
				return ir.Inst(t), nil
			}
		}
	case ir.TypeUUID:
		switch x := v.(type) {
		case ir.UUID:
			return v, nil
		case ir.String:
			if u, err := uuid.Parse(string(x)); err == nil {
				return ir.UUID(u), nil
			}
		}
	}
	return nil, fmt.Errorf("value %s does not match %s of %s", edn.Print(v), attr.ValueType, attr.Ident)
}
