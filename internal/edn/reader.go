package edn

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/roach88/factdb/internal/ir"
)

// Read parses exactly one value from text. Leading and trailing whitespace
// and comments are ignored; any other trailing content is an error.
func Read(text string) (ir.Value, error) {
	r := newReader(text)
	v, err := r.readValue()
	if err != nil {
		return nil, err
	}
	r.skipWhitespace()
	if r.pos < len(r.input) {
		return nil, r.errorf("unexpected trailing content %q", r.rest(16))
	}
	return v, nil
}

// ReadAll parses every top-level value in text.
func ReadAll(text string) ([]ir.Value, error) {
	r := newReader(text)
	var out []ir.Value
	for {
		r.skipWhitespace()
		if r.pos >= len(r.input) {
			return out, nil
		}
		v, err := r.readValue()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

// reader is a single-pass recursive descent parser over the input string.
type reader struct {
	input string
	pos   int
}

func newReader(input string) *reader {
	return &reader{input: input}
}

func (r *reader) errorf(format string, args ...any) *ir.Error {
	line := 1 + strings.Count(r.input[:min(r.pos, len(r.input))], "\n")
	return ir.Errorf(ir.CodeParse, format, args...).With("line", strconv.Itoa(line))
}

func (r *reader) rest(n int) string {
	s := r.input[r.pos:]
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

func (r *reader) peek() (rune, int) {
	if r.pos >= len(r.input) {
		return utf8.RuneError, 0
	}
	return utf8.DecodeRuneInString(r.input[r.pos:])
}

func isWhitespace(c rune) bool {
	return c == ',' || unicode.IsSpace(c)
}

func isDelimiter(c rune) bool {
	switch c {
	case '(', ')', '[', ']', '{', '}', '"', ';':
		return true
	}
	return isWhitespace(c)
}

// skipWhitespace skips whitespace, commas and ; comments.
func (r *reader) skipWhitespace() {
	for r.pos < len(r.input) {
		c, size := r.peek()
		switch {
		case isWhitespace(c):
			r.pos += size
		case c == ';':
			for r.pos < len(r.input) && r.input[r.pos] != '\n' {
				r.pos++
			}
		default:
			return
		}
	}
}

// token reads a run of non-delimiter characters.
func (r *reader) token() string {
	start := r.pos
	for r.pos < len(r.input) {
		c, size := r.peek()
		if isDelimiter(c) {
			break
		}
		r.pos += size
	}
	return r.input[start:r.pos]
}

func (r *reader) readValue() (ir.Value, error) {
	r.skipWhitespace()
	if r.pos >= len(r.input) {
		return nil, r.errorf("unexpected end of input")
	}

	c, size := r.peek()
	switch c {
	case '[':
		r.pos += size
		items, err := r.readSeq(']')
		if err != nil {
			return nil, err
		}
		return ir.Vector(items), nil
	case '(':
		r.pos += size
		items, err := r.readSeq(')')
		if err != nil {
			return nil, err
		}
		return ir.List(items), nil
	case '{':
		r.pos += size
		return r.readMap()
	case ')', ']', '}':
		return nil, r.errorf("unmatched delimiter %q", c)
	case '"':
		r.pos += size
		s, err := r.readString()
		if err != nil {
			return nil, err
		}
		return ir.String(s), nil
	case '\\':
		r.pos += size
		return r.readChar()
	case ':':
		r.pos += size
		tok := r.token()
		if tok == "" || strings.HasPrefix(tok, ":") || strings.HasSuffix(tok, "/") {
			return nil, r.errorf("invalid keyword %q", ":"+tok)
		}
		return ir.Keyword(tok), nil
	case '#':
		r.pos += size
		return r.readDispatch()
	}

	tok := r.token()
	if tok == "" {
		return nil, r.errorf("unexpected character %q", c)
	}
	return r.parseAtom(tok)
}

// readSeq reads values until the closing delimiter.
func (r *reader) readSeq(closing byte) ([]ir.Value, error) {
	items := []ir.Value{}
	for {
		r.skipWhitespace()
		if r.pos >= len(r.input) {
			return nil, r.errorf("unexpected end of input, expected %q", closing)
		}
		if r.input[r.pos] == closing {
			r.pos++
			return items, nil
		}
		if r.input[r.pos] == '#' && strings.HasPrefix(r.input[r.pos:], "#_") {
			if err := r.discard(); err != nil {
				return nil, err
			}
			continue
		}
		v, err := r.readValue()
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
}

func (r *reader) readMap() (ir.Value, error) {
	items, err := r.readSeq('}')
	if err != nil {
		return nil, err
	}
	if len(items)%2 != 0 {
		return nil, r.errorf("map literal must contain an even number of forms")
	}
	entries := make([]ir.MapEntry, 0, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		entries = append(entries, ir.E(items[i], items[i+1]))
	}
	m := ir.NewMap(entries...)
	if m.Len() != len(entries) {
		return nil, r.errorf("duplicate key in map literal")
	}
	return m, nil
}

func (r *reader) discard() error {
	r.pos += 2 // "#_"
	_, err := r.readValue()
	return err
}

// readDispatch handles everything after '#'.
func (r *reader) readDispatch() (ir.Value, error) {
	if r.pos >= len(r.input) {
		return nil, r.errorf("unexpected end of input after #")
	}
	switch r.input[r.pos] {
	case '{':
		r.pos++
		items, err := r.readSeq('}')
		if err != nil {
			return nil, err
		}
		s := ir.NewSet(items...)
		if s.Len() != len(items) {
			return nil, r.errorf("duplicate element in set literal")
		}
		return s, nil
	case '_':
		r.pos--
		if err := r.discard(); err != nil {
			return nil, err
		}
		return r.readValue()
	case '#':
		r.pos++
		switch tok := r.token(); tok {
		case "Inf":
			return ir.Float(math.Inf(1)), nil
		case "-Inf":
			return ir.Float(math.Inf(-1)), nil
		case "NaN":
			return ir.Float(math.NaN()), nil
		default:
			return nil, r.errorf("unknown symbolic value ##%s", tok)
		}
	}

	tag := r.token()
	if tag == "" || !unicode.IsLetter(rune(tag[0])) {
		return nil, r.errorf("invalid tag %q", "#"+tag)
	}
	v, err := r.readValue()
	if err != nil {
		return nil, err
	}
	return r.applyTag(tag, v)
}

func (r *reader) applyTag(tag string, v ir.Value) (ir.Value, error) {
	switch tag {
	case "uuid":
		s, ok := v.(ir.String)
		if !ok {
			return nil, r.errorf("#uuid expects a string, got %s", v.Kind())
		}
		u, err := uuid.Parse(string(s))
		if err != nil {
			return nil, r.errorf("invalid #uuid %q: %v", string(s), err)
		}
		return ir.UUID(u), nil
	case "inst":
		s, ok := v.(ir.String)
		if !ok {
			return nil, r.errorf("#inst expects a string, got %s", v.Kind())
		}
		t, err := ParseInst(string(s))
		if err != nil {
			return nil, r.errorf("invalid #inst %q", string(s))
		}
		return ir.Inst(t), nil
	}
	return ir.Tagged{Tag: tag, Value: v}, nil
}

// instLayouts are the accepted #inst forms, most precise first.
var instLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseInst parses an RFC 3339 timestamp, accepting the truncated forms
// allowed for #inst literals. Instants are normalized to UTC.
func ParseInst(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range instLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func (r *reader) readString() (string, error) {
	var sb strings.Builder
	for {
		if r.pos >= len(r.input) {
			return "", r.errorf("unterminated string")
		}
		c, size := r.peek()
		r.pos += size
		switch c {
		case '"':
			return sb.String(), nil
		case '\\':
			if r.pos >= len(r.input) {
				return "", r.errorf("unterminated string escape")
			}
			e := r.input[r.pos]
			r.pos++
			switch e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case 'b':
				sb.WriteByte('\b')
			case 'f':
				sb.WriteByte('\f')
			case '"', '\\', '/':
				sb.WriteByte(e)
			case 'u':
				u, err := r.readHex4()
				if err != nil {
					return "", err
				}
				sb.WriteRune(u)
			default:
				return "", r.errorf("invalid string escape \\%c", e)
			}
		default:
			sb.WriteRune(c)
		}
	}
}

func (r *reader) readHex4() (rune, error) {
	if r.pos+4 > len(r.input) {
		return 0, r.errorf("truncated unicode escape")
	}
	n, err := strconv.ParseUint(r.input[r.pos:r.pos+4], 16, 32)
	if err != nil {
		return 0, r.errorf("invalid unicode escape %q", r.input[r.pos:r.pos+4])
	}
	r.pos += 4
	return rune(n), nil
}

var namedChars = map[string]rune{
	"newline":   '\n',
	"space":     ' ',
	"tab":       '\t',
	"return":    '\r',
	"backspace": '\b',
	"formfeed":  '\f',
}

func (r *reader) readChar() (ir.Value, error) {
	if r.pos >= len(r.input) {
		return nil, r.errorf("unexpected end of input after \\")
	}
	// The first character is taken literally, so \( and \space both work.
	_, size := r.peek()
	start := r.pos
	r.pos += size
	r.token()
	tok := r.input[start:r.pos]

	if utf8.RuneCountInString(tok) == 1 {
		c, _ := utf8.DecodeRuneInString(tok)
		return ir.Char(c), nil
	}
	if c, ok := namedChars[tok]; ok {
		return ir.Char(c), nil
	}
	if len(tok) == 5 && tok[0] == 'u' {
		n, err := strconv.ParseUint(tok[1:], 16, 32)
		if err == nil {
			return ir.Char(rune(n)), nil
		}
	}
	return nil, r.errorf("invalid character literal \\%s", tok)
}

// parseAtom classifies a bare token as nil, boolean, number or symbol.
func (r *reader) parseAtom(tok string) (ir.Value, error) {
	switch tok {
	case "nil":
		return ir.Nil{}, nil
	case "true":
		return ir.Bool(true), nil
	case "false":
		return ir.Bool(false), nil
	}

	if isNumberStart(tok) {
		return r.parseNumber(tok)
	}
	if strings.HasSuffix(tok, "/") && tok != "/" {
		return nil, r.errorf("invalid symbol %q", tok)
	}
	return ir.Symbol(tok), nil
}

func isNumberStart(tok string) bool {
	c := tok[0]
	if c >= '0' && c <= '9' {
		return true
	}
	return (c == '+' || c == '-') && len(tok) > 1 && tok[1] >= '0' && tok[1] <= '9'
}

func (r *reader) parseNumber(tok string) (ir.Value, error) {
	switch {
	case strings.HasSuffix(tok, "M"):
		f, err := strconv.ParseFloat(strings.TrimPrefix(tok[:len(tok)-1], "+"), 64)
		if err != nil {
			return nil, r.errorf("invalid number %q", tok)
		}
		return ir.Float(f), nil
	case strings.HasSuffix(tok, "N"):
		n, err := strconv.ParseInt(tok[:len(tok)-1], 10, 64)
		if err != nil {
			return nil, r.errorf("integer out of range %q", tok)
		}
		return ir.Int(n), nil
	case strings.ContainsAny(tok, ".eE"):
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, r.errorf("invalid number %q", tok)
		}
		return ir.Float(f), nil
	}
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return nil, r.errorf("invalid integer %q", tok)
	}
	return ir.Int(n), nil
}

// MustRead is like Read but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRead(text string) ir.Value {
	v, err := Read(text)
	if err != nil {
		panic(fmt.Sprintf("edn.MustRead(%q): %v", text, err))
	}
	return v
}
