package edn

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/roach88/factdb/internal/ir"
)

// InstLayout is the printed form of #inst literals. Instants print in UTC.
const InstLayout = time.RFC3339Nano

// Print renders a value as tagged-literal text. It never fails: invalid
// UTF-8 in strings prints as U+FFFD and keywords or symbols outside the
// token syntax print verbatim. Use Marshal where the text must read back.
func Print(v ir.Value) string {
	var sb strings.Builder
	write(&sb, v)
	return sb.String()
}

// Append appends the printed form of v to dst.
func Append(dst []byte, v ir.Value) []byte {
	var sb strings.Builder
	write(&sb, v)
	return append(dst, sb.String()...)
}

func write(sb *strings.Builder, v ir.Value) {
	switch val := v.(type) {
	case nil, ir.Nil:
		sb.WriteString("nil")
	case ir.Bool:
		sb.WriteString(strconv.FormatBool(bool(val)))
	case ir.Int:
		sb.WriteString(strconv.FormatInt(int64(val), 10))
	case ir.Float:
		writeFloat(sb, float64(val))
	case ir.Char:
		writeChar(sb, rune(val))
	case ir.String:
		writeString(sb, string(val))
	case ir.Keyword:
		sb.WriteByte(':')
		sb.WriteString(string(val))
	case ir.Symbol:
		sb.WriteString(string(val))
	case ir.UUID:
		sb.WriteString(`#uuid "`)
		sb.WriteString(val.String())
		sb.WriteByte('"')
	case ir.Inst:
		sb.WriteString(`#inst "`)
		sb.WriteString(val.Time().UTC().Format(InstLayout))
		sb.WriteByte('"')
	case ir.Vector:
		writeSeq(sb, "[", "]", val)
	case ir.List:
		writeSeq(sb, "(", ")", val)
	case ir.Set:
		writeSeq(sb, "#{", "}", val.Items())
	case ir.Map:
		sb.WriteByte('{')
		for i, e := range val.Entries() {
			if i > 0 {
				sb.WriteString(", ")
			}
			write(sb, e.Key)
			sb.WriteByte(' ')
			write(sb, e.Value)
		}
		sb.WriteByte('}')
	case ir.Tagged:
		sb.WriteByte('#')
		sb.WriteString(val.Tag)
		sb.WriteByte(' ')
		write(sb, val.Value)
	}
}

func writeSeq(sb *strings.Builder, open, closing string, items []ir.Value) {
	sb.WriteString(open)
	for i, item := range items {
		if i > 0 {
			sb.WriteByte(' ')
		}
		write(sb, item)
	}
	sb.WriteString(closing)
}

// writeFloat always prints a decimal point or exponent so that the text
// reads back as a float, never as an integer.
func writeFloat(sb *strings.Builder, f float64) {
	switch {
	case math.IsNaN(f):
		sb.WriteString("##NaN")
		return
	case math.IsInf(f, 1):
		sb.WriteString("##Inf")
		return
	case math.IsInf(f, -1):
		sb.WriteString("##-Inf")
		return
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	sb.WriteString(s)
	if !strings.ContainsAny(s, ".eE") {
		sb.WriteString(".0")
	}
}

func writeString(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for _, c := range s {
		switch c {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		case '\b':
			sb.WriteString(`\b`)
		case '\f':
			sb.WriteString(`\f`)
		default:
			if c < 0x20 || c == utf8.RuneError {
				writeUnicodeEscape(sb, `\u`, c)
				continue
			}
			sb.WriteRune(c)
		}
	}
	sb.WriteByte('"')
}

var charNames = map[rune]string{
	'\n': "newline",
	' ':  "space",
	'\t': "tab",
	'\r': "return",
	'\b': "backspace",
	'\f': "formfeed",
}

func writeChar(sb *strings.Builder, c rune) {
	sb.WriteByte('\\')
	if name, ok := charNames[c]; ok {
		sb.WriteString(name)
		return
	}
	if !unicode.IsPrint(c) && c <= 0xFFFF {
		writeUnicodeEscape(sb, "u", c)
		return
	}
	sb.WriteRune(c)
}

func writeUnicodeEscape(sb *strings.Builder, prefix string, c rune) {
	hex := strconv.FormatInt(int64(c), 16)
	sb.WriteString(prefix)
	for i := len(hex); i < 4; i++ {
		sb.WriteByte('0')
	}
	sb.WriteString(hex)
}
