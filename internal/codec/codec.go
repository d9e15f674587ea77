// Package codec converts values to and from the external text formats.
//
// Supported formats:
//   - edn:  tagged-literal text, lossless (see package edn)
//   - json: conventional records, lossy (sets and lists become arrays)
//   - cbor: base64 text of a CBOR item with keyword/set/uuid tags
//   - yaml: decode only, used for configuration files
//
// Every format is selectable independently per input and per output.
// Decode fails with ir.CodeParse on malformed or truncated text and never
// returns a partial value.
package codec

import (
	"strings"

	"github.com/roach88/factdb/internal/edn"
	"github.com/roach88/factdb/internal/ir"
)

// Format names an external text format.
type Format string

const (
	FormatEDN  Format = "edn"
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name. Names are case-insensitive; an empty
// name selects edn.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case "":
		return FormatEDN, nil
	case FormatEDN, FormatJSON, FormatCBOR, FormatYAML:
		return f, nil
	default:
		return "", ir.Errorf(ir.CodeParse, "unknown format %q", name)
	}
}

// Encode renders v as text in the given format.
func Encode(v ir.Value, format Format) (string, error) {
	switch format {
	case FormatEDN, "":
		return edn.Marshal(v)
	case FormatJSON:
		return EncodeJSON(v)
	case FormatCBOR:
		return EncodeCBOR(v)
	case FormatYAML:
		return "", ir.Errorf(ir.CodeParse, "format yaml is decode-only")
	default:
		return "", ir.Errorf(ir.CodeParse, "unknown format %q", format)
	}
}

// Decode parses text in the given format.
func Decode(text string, format Format) (ir.Value, error) {
	switch format {
	case FormatEDN, "":
		return edn.Read(text)
	case FormatJSON:
		return DecodeJSON(text)
	case FormatCBOR:
		return DecodeCBOR(text)
	case FormatYAML:
		return DecodeYAML(text)
	default:
		return nil, ir.Errorf(ir.CodeParse, "unknown format %q", format)
	}
}
