package convert

import (
	"encoding/hex"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// scanLines runs a PDF content stream through a small operand/operator
// tokenizer and returns the text lines it shows, in stream order.
//
// Text showing: Tj, TJ, ' and ". Line structure: T*, ', ", a Td/TD with a
// vertical component, or a Tm that moves to another baseline. Large negative
// TJ adjustments (word gaps in justified text) become spaces.
func scanLines(data []byte) []string {
	s := &scanner{data: data}
	var b lineBuilder
	var stack []operand
	var arrStarts []int

	for {
		tok, ok := s.next()
		if !ok {
			break
		}
		switch tok.kind {
		case tokArrayStart:
			arrStarts = append(arrStarts, len(stack))
		case tokArrayEnd:
			if len(arrStarts) == 0 {
				continue
			}
			start := arrStarts[len(arrStarts)-1]
			arrStarts = arrStarts[:len(arrStarts)-1]
			arr := append([]operand(nil), stack[start:]...)
			stack = append(stack[:start], operand{kind: opArray, arr: arr})
		case tokOperator:
			if tok.op == "ID" {
				s.skipInlineImage()
			} else {
				b.apply(tok.op, stack)
			}
			stack = stack[:0]
			arrStarts = arrStarts[:0]
		default:
			stack = append(stack, tok.operand)
		}
	}
	b.newline()
	return b.lines
}

// --- line assembly ---

type lineBuilder struct {
	lines []string
	cur   strings.Builder
	lastY float64
	haveY bool
}

func (b *lineBuilder) newline() {
	if line := cleanLine(b.cur.String()); line != "" {
		b.lines = append(b.lines, line)
	}
	b.cur.Reset()
}

func (b *lineBuilder) space() {
	if n := b.cur.Len(); n > 0 && !strings.HasSuffix(b.cur.String(), " ") {
		b.cur.WriteByte(' ')
	}
}

func (b *lineBuilder) show(o operand) {
	if o.kind == opString {
		b.cur.WriteString(decodeText(o.str))
	}
}

func (b *lineBuilder) apply(op string, ops []operand) {
	switch op {
	case "Td", "TD":
		if len(ops) < 2 {
			return
		}
		tx, ty := ops[len(ops)-2].num, ops[len(ops)-1].num
		if ty != 0 {
			b.newline()
			if b.haveY {
				b.lastY += ty
			}
		} else if tx != 0 {
			b.space()
		}
	case "Tm":
		if len(ops) < 6 {
			return
		}
		y := ops[len(ops)-1].num
		if b.haveY && y != b.lastY {
			b.newline()
		} else if b.haveY {
			b.space()
		}
		b.lastY, b.haveY = y, true
	case "T*":
		b.newline()
	case "Tj":
		if len(ops) > 0 {
			b.show(ops[len(ops)-1])
		}
	case "'":
		b.newline()
		if len(ops) > 0 {
			b.show(ops[len(ops)-1])
		}
	case `"`:
		b.newline()
		if len(ops) > 0 {
			b.show(ops[len(ops)-1])
		}
	case "TJ":
		if len(ops) == 0 || ops[len(ops)-1].kind != opArray {
			return
		}
		for _, el := range ops[len(ops)-1].arr {
			switch el.kind {
			case opString:
				b.show(el)
			case opNumber:
				if el.num < -200 {
					b.space()
				}
			}
		}
	}
}

// cleanLine drops non-printable runes and collapses whitespace runs.
func cleanLine(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		} else if unicode.IsPrint(r) {
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}

// decodeText maps a PDF string to UTF-8. UTF-16BE strings (with BOM) are
// decoded as such; everything else is read as WinAnsiEncoding, the usual
// encoding of simple fonts.
func decodeText(s []byte) string {
	if len(s) >= 2 && s[0] == 0xFE && s[1] == 0xFF {
		u := make([]uint16, 0, (len(s)-2)/2)
		for i := 2; i+1 < len(s); i += 2 {
			u = append(u, uint16(s[i])<<8|uint16(s[i+1]))
		}
		return string(utf16.Decode(u))
	}
	var sb strings.Builder
	for _, c := range s {
		r := charmap.Windows1252.DecodeByte(c)
		if r == utf8.RuneError || (r >= 0x80 && r < 0xA0) {
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// --- tokenizer ---

type tokKind int

const (
	tokOperand tokKind = iota
	tokOperator
	tokArrayStart
	tokArrayEnd
)

type opKind int

const (
	opNumber opKind = iota
	opString
	opName
	opArray
)

type operand struct {
	kind opKind
	num  float64
	str  []byte
	arr  []operand
}

type token struct {
	kind    tokKind
	op      string
	operand operand
}

type scanner struct {
	data []byte
	pos  int
}

func isPDFSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isNumberChar(c byte) bool {
	return (c >= '0' && c <= '9') || c == '+' || c == '-' || c == '.'
}

func (s *scanner) next() (token, bool) {
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		switch {
		case isPDFSpace(c):
			s.pos++
		case c == '%':
			for s.pos < len(s.data) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
		case c == '(':
			return token{kind: tokOperand, operand: operand{kind: opString, str: s.literal()}}, true
		case c == '<':
			if s.pos+1 < len(s.data) && s.data[s.pos+1] == '<' {
				s.pos += 2
				continue
			}
			return token{kind: tokOperand, operand: operand{kind: opString, str: s.hexString()}}, true
		case c == '>' || c == ')' || c == '{' || c == '}':
			s.pos++
		case c == '[':
			s.pos++
			return token{kind: tokArrayStart}, true
		case c == ']':
			s.pos++
			return token{kind: tokArrayEnd}, true
		case c == '/':
			s.pos++
			return token{kind: tokOperand, operand: operand{kind: opName, str: s.regular()}}, true
		case isNumberChar(c):
			word := s.regular()
			if f, err := strconv.ParseFloat(string(word), 64); err == nil {
				return token{kind: tokOperand, operand: operand{kind: opNumber, num: f}}, true
			}
			return token{kind: tokOperator, op: string(word)}, true
		default:
			return token{kind: tokOperator, op: string(s.regular())}, true
		}
	}
	return token{}, false
}

// regular reads a run of regular (non-space, non-delimiter) characters.
func (s *scanner) regular() []byte {
	start := s.pos
	for s.pos < len(s.data) && !isPDFSpace(s.data[s.pos]) && !isDelimiter(s.data[s.pos]) {
		s.pos++
	}
	if s.pos == start && s.pos < len(s.data) {
		s.pos++
	}
	return s.data[start:s.pos]
}

// literal reads a (...) string, resolving escapes and balanced parentheses.
func (s *scanner) literal() []byte {
	s.pos++ // opening paren
	var out []byte
	depth := 1
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= len(s.data) {
				return out
			}
			e := s.data[s.pos]
			s.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if s.pos < len(s.data) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					val := int(e - '0')
					for i := 0; i < 2 && s.pos < len(s.data) && s.data[s.pos] >= '0' && s.data[s.pos] <= '7'; i++ {
						val = val*8 + int(s.data[s.pos]-'0')
						s.pos++
					}
					out = append(out, byte(val))
				} else {
					out = append(out, e)
				}
			}
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return out
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return out
}

// hexString reads a <...> string.
func (s *scanner) hexString() []byte {
	s.pos++ // '<'
	var digits []byte
	for s.pos < len(s.data) && s.data[s.pos] != '>' {
		c := s.data[s.pos]
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') {
			digits = append(digits, c)
		}
		s.pos++
	}
	s.pos++ // '>'
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, len(digits)/2)
	if _, err := hex.Decode(out, digits); err != nil {
		return nil
	}
	return out
}

// skipInlineImage moves past the binary data of an inline image (BI ... ID
// <data> EI).
func (s *scanner) skipInlineImage() {
	for i := s.pos; i+1 < len(s.data); i++ {
		if s.data[i] != 'E' || s.data[i+1] != 'I' {
			continue
		}
		before := i == 0 || isPDFSpace(s.data[i-1])
		after := i+2 >= len(s.data) || isPDFSpace(s.data[i+2])
		if before && after {
			s.pos = i + 2
			return
		}
	}
	s.pos = len(s.data)
}
