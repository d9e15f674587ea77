package codec

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/roach88/factdb/internal/edn"
	"github.com/roach88/factdb/internal/ir"
)

// CBOR tag numbers for types without a native CBOR representation.
const (
	tagKeyword = 39  // identifier
	tagSet     = 258 // mathematical finite set
	tagUUID    = 37  // binary UUID
	tagSymbol  = 280 // symbol, carried as text
	tagChar    = 281 // single character, carried as text
	tagLiteral = 282 // unknown tagged literal, carried as its edn text
)

// CBOR major types used for container heads.
const (
	majorArray = 4
	majorMap   = 5
	majorTag   = 6
)

var cborEnc = mustEncMode()

var cborDec = mustDecMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.EncOptions{
		Time:    cbor.TimeRFC3339Nano,
		TimeTag: cbor.EncTagRequired,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: cbor enc mode: %v", err))
	}
	return em
}

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: cbor dec mode: %v", err))
	}
	return dm
}

// EncodeCBOR renders v as standard base64 text of a single CBOR data item.
//
// Mapping: keywords use tag 39 over text, sets tag 258 over an array, UUIDs
// tag 37 over 16 bytes, instants tag 0 (RFC 3339 text). Vectors and lists are
// arrays; maps keep their canonical key order.
func EncodeCBOR(v ir.Value) (string, error) {
	data, err := appendCBOR(nil, v)
	if err != nil {
		return "", ir.Wrap(ir.CodeParse, err, "encode cbor")
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func appendCBOR(dst []byte, v ir.Value) ([]byte, error) {
	var item any
	switch val := v.(type) {
	case nil, ir.Nil:
		item = nil
	case ir.Bool:
		item = bool(val)
	case ir.Int:
		item = int64(val)
	case ir.Float:
		item = float64(val)
	case ir.String:
		item = string(val)
	case ir.Char:
		item = cbor.Tag{Number: tagChar, Content: string(rune(val))}
	case ir.Keyword:
		item = cbor.Tag{Number: tagKeyword, Content: string(val)}
	case ir.Symbol:
		item = cbor.Tag{Number: tagSymbol, Content: string(val)}
	case ir.UUID:
		item = cbor.Tag{Number: tagUUID, Content: val[:]}
	case ir.Inst:
		item = val.Time().UTC()
	case ir.Tagged:
		item = cbor.Tag{Number: tagLiteral, Content: edn.Print(val)}
	case ir.Vector:
		return appendCBORSeq(appendHead(dst, majorArray, uint64(len(val))), val)
	case ir.List:
		return appendCBORSeq(appendHead(dst, majorArray, uint64(len(val))), val)
	case ir.Set:
		dst = appendHead(dst, majorTag, tagSet)
		return appendCBORSeq(appendHead(dst, majorArray, uint64(val.Len())), val.Items())
	case ir.Map:
		dst = appendHead(dst, majorMap, uint64(val.Len()))
		var err error
		for _, e := range val.Entries() {
			if dst, err = appendCBOR(dst, e.Key); err != nil {
				return nil, err
			}
			if dst, err = appendCBOR(dst, e.Value); err != nil {
				return nil, err
			}
		}
		return dst, nil
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}

	data, err := cborEnc.Marshal(item)
	if err != nil {
		return nil, err
	}
	return append(dst, data...), nil
}

func appendCBORSeq(dst []byte, items []ir.Value) ([]byte, error) {
	var err error
	for _, item := range items {
		if dst, err = appendCBOR(dst, item); err != nil {
			return nil, err
		}
	}
	return dst, nil
}

// appendHead writes a CBOR initial byte with its argument (RFC 8949 §3).
func appendHead(dst []byte, major byte, n uint64) []byte {
	m := major << 5
	switch {
	case n < 24:
		return append(dst, m|byte(n))
	case n <= math.MaxUint8:
		return append(dst, m|24, byte(n))
	case n <= math.MaxUint16:
		return binary.BigEndian.AppendUint16(append(dst, m|25), uint16(n))
	case n <= math.MaxUint32:
		return binary.BigEndian.AppendUint32(append(dst, m|26), uint32(n))
	default:
		return binary.BigEndian.AppendUint64(append(dst, m|27), n)
	}
}

// DecodeCBOR parses base64 text holding one CBOR data item.
// Map keys must be scalars or tagged scalars.
func DecodeCBOR(text string) (ir.Value, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(text))
	if err != nil {
		return nil, ir.Wrap(ir.CodeParse, err, "decode cbor base64")
	}
	var raw any
	if err := cborDec.Unmarshal(data, &raw); err != nil {
		return nil, ir.Wrap(ir.CodeParse, err, "decode cbor")
	}
	v, err := fromCBOR(raw)
	if err != nil {
		return nil, ir.Wrap(ir.CodeParse, err, "decode cbor")
	}
	return v, nil
}

func fromCBOR(raw any) (ir.Value, error) {
	switch val := raw.(type) {
	case nil:
		return ir.Nil{}, nil
	case bool:
		return ir.Bool(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d out of range", val)
		}
		return ir.Int(int64(val)), nil
	case int64:
		return ir.Int(val), nil
	case float64:
		return ir.Float(val), nil
	case float32:
		return ir.Float(float64(val)), nil
	case string:
		return ir.String(val), nil
	case []byte:
		return ir.String(string(val)), nil
	case time.Time:
		return ir.Inst(val.UTC()), nil
	case []any:
		vec := make(ir.Vector, len(val))
		for i, item := range val {
			v, err := fromCBOR(item)
			if err != nil {
				return nil, err
			}
			vec[i] = v
		}
		return vec, nil
	case map[any]any:
		entries := make([]ir.MapEntry, 0, len(val))
		for k, item := range val {
			key, err := fromCBOR(k)
			if err != nil {
				return nil, err
			}
			v, err := fromCBOR(item)
			if err != nil {
				return nil, err
			}
			entries = append(entries, ir.E(key, v))
		}
		return ir.NewMap(entries...), nil
	case cbor.Tag:
		return fromCBORTag(val)
	}
	return nil, fmt.Errorf("unsupported cbor item %T", raw)
}

func fromCBORTag(t cbor.Tag) (ir.Value, error) {
	switch t.Number {
	case tagKeyword, tagSymbol, tagChar, tagLiteral:
		s, ok := t.Content.(string)
		if !ok {
			return nil, fmt.Errorf("tag %d expects text", t.Number)
		}
		switch t.Number {
		case tagKeyword:
			if !edn.ValidKeyword(s) {
				return nil, fmt.Errorf("tag %d: %q is not a keyword", t.Number, s)
			}
			return ir.Keyword(s), nil
		case tagSymbol:
			if !edn.ValidSymbol(s) {
				return nil, fmt.Errorf("tag %d: %q is not a symbol", t.Number, s)
			}
			return ir.Symbol(s), nil
		case tagChar:
			r := []rune(s)
			if len(r) != 1 {
				return nil, fmt.Errorf("tag %d expects a single character", t.Number)
			}
			return ir.Char(r[0]), nil
		default:
			return edn.Read(s)
		}
	case tagUUID:
		b, ok := t.Content.([]byte)
		if !ok {
			return nil, fmt.Errorf("tag %d expects bytes", t.Number)
		}
		u, err := uuid.FromBytes(b)
		if err != nil {
			return nil, err
		}
		return ir.UUID(u), nil
	case tagSet:
		items, ok := t.Content.([]any)
		if !ok {
			return nil, fmt.Errorf("tag %d expects an array", t.Number)
		}
		vals := make([]ir.Value, len(items))
		for i, item := range items {
			v, err := fromCBOR(item)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		return ir.NewSet(vals...), nil
	case 0:
		s, ok := t.Content.(string)
		if !ok {
			return nil, fmt.Errorf("tag 0 expects text")
		}
		ts, err := edn.ParseInst(s)
		if err != nil {
			return nil, err
		}
		return ir.Inst(ts), nil
	}
	inner, err := fromCBOR(t.Content)
	if err != nil {
		return nil, err
	}
	return ir.Tagged{Tag: fmt.Sprintf("cbor/%d", t.Number), Value: inner}, nil
}
