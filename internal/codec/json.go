package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/factdb/internal/edn"
	"github.com/roach88/factdb/internal/ir"
)

// EncodeJSON renders v as JSON using the lossy conventional mapping:
//
//	set, list, vector -> array
//	keyword           -> ":ns/name" string (map keys drop the colon)
//	uuid, instant     -> string
//	char, symbol      -> string
//	tagged literal    -> its tagged-literal text as a string
//	NaN, ±Inf         -> "##NaN", "##Inf", "##-Inf"
//
// Object keys are sorted; strings are NFC normalized; HTML characters are not
// escaped. Floats always carry a fraction or exponent so that they decode
// back as floats.
func EncodeJSON(v ir.Value) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(toJSON(v)); err != nil {
		return "", ir.Wrap(ir.CodeParse, err, "encode json")
	}
	// json.Encoder adds trailing newline, remove it
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func toJSON(v ir.Value) any {
	switch val := v.(type) {
	case nil, ir.Nil:
		return nil
	case ir.Bool:
		return bool(val)
	case ir.Int:
		return int64(val)
	case ir.Float:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return edn.Print(val)
		}
		s := strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return json.Number(s)
	case ir.String:
		return norm.NFC.String(string(val))
	case ir.Char:
		return string(rune(val))
	case ir.Keyword:
		return val.String()
	case ir.Symbol:
		return string(val)
	case ir.UUID:
		return val.String()
	case ir.Inst:
		return val.Time().UTC().Format(edn.InstLayout)
	case ir.Map:
		obj := make(map[string]any, val.Len())
		for _, e := range val.Entries() {
			obj[jsonKey(e.Key)] = toJSON(e.Value)
		}
		return obj
	case ir.Tagged:
		return edn.Print(val)
	}
	if items, ok := ir.Seq(v); ok {
		arr := make([]any, len(items))
		for i, item := range items {
			arr[i] = toJSON(item)
		}
		return arr
	}
	return nil
}

// jsonKey renders a map key as an object key.
func jsonKey(k ir.Value) string {
	switch key := k.(type) {
	case ir.Keyword:
		return string(key)
	case ir.String:
		return norm.NFC.String(string(key))
	case ir.Symbol:
		return string(key)
	default:
		return edn.Print(k)
	}
}

// DecodeJSON parses JSON text. Object keys become keywords (a leading colon
// is optional) and must be valid keyword names. Strings starting with ':'
// become keywords when the rest is a valid keyword name and stay strings
// otherwise. Numbers without a fraction or exponent become Int, all other
// numbers Float.
func DecodeJSON(text string) (ir.Value, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, ir.Wrap(ir.CodeParse, err, "decode json")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, ir.Errorf(ir.CodeParse, "decode json: unexpected trailing content")
	}
	return fromJSON(raw)
}

func fromJSON(raw any) (ir.Value, error) {
	switch val := raw.(type) {
	case nil:
		return ir.Nil{}, nil
	case bool:
		return ir.Bool(val), nil
	case json.Number:
		s := val.String()
		if !strings.ContainsAny(s, ".eE") {
			n, err := strconv.ParseInt(s, 10, 64)
			if err == nil {
				return ir.Int(n), nil
			}
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, ir.Wrap(ir.CodeParse, err, "decode json number %s", s)
		}
		return ir.Float(f), nil
	case string:
		if len(val) > 1 && val[0] == ':' && edn.ValidKeyword(val[1:]) {
			return ir.Keyword(val[1:]), nil
		}
		return ir.String(val), nil
	case []any:
		vec := make(ir.Vector, len(val))
		for i, item := range val {
			v, err := fromJSON(item)
			if err != nil {
				return nil, err
			}
			vec[i] = v
		}
		return vec, nil
	case map[string]any:
		entries := make([]ir.MapEntry, 0, len(val))
		for k, item := range val {
			v, err := fromJSON(item)
			if err != nil {
				return nil, err
			}
			key := ir.KW(k)
			if !edn.ValidKeyword(string(key)) {
				return nil, ir.Errorf(ir.CodeParse, "decode json: object key %q is not a keyword", k)
			}
			entries = append(entries, ir.E(key, v))
		}
		return ir.NewMap(entries...), nil
	}
	return nil, ir.Errorf(ir.CodeParse, "decode json: unsupported value %T", raw)
}
