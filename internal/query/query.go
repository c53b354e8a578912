// Package query implements the single-condition rule language used by
// compliance rules:
//
//	<field> <operator> <value>
//	contains(<field>, <value>)
//
// Only the first condition at the start of the text is read; anything after
// it is ignored. The language has no connectives and no way to reach code or
// files, so evaluation only ever reads the supplied fact mapping.
package query

import (
	"regexp"
	"strings"
)

// Operator is one of the closed set of comparison operators.
type Operator string

const (
	OpAssign   Operator = "="
	OpEqual    Operator = "=="
	OpNotEqual Operator = "!="
	OpGreater  Operator = ">"
	OpLess     Operator = "<"
	OpGreaterE Operator = ">="
	OpLessE    Operator = "<="
	OpContains Operator = "contains"
)

// symbolic operators, longest first so "==" is not read as "=".
var symbolOperators = []Operator{OpEqual, OpNotEqual, OpGreaterE, OpLessE, OpAssign, OpGreater, OpLess}

// callPattern catches text shaped like a call to something that could run
// code or touch the host. Such text is refused outright.
var callPattern = regexp.MustCompile(`(?i)(eval|exec|execfile|__import__|compile|open|getattr|setattr|delattr|globals|locals|vars|system|popen|subprocess|input)\s*\(`)

// Query is a parsed condition.
type Query struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
	// Quoted is set when Value came from a quoted literal.
	Quoted bool `json:"quoted"`
}

func (q Query) String() string {
	v := q.Value
	if q.Quoted {
		v = `"` + v + `"`
	}
	return q.Field + " " + string(q.Operator) + " " + v
}

// Parse reads the condition at the start of text. It returns false when text
// does not start with a valid condition or looks like an attempt to call
// code.
func Parse(text string) (Query, bool) {
	if callPattern.MatchString(text) {
		return Query{}, false
	}
	s := &scanner{src: text}
	s.skipSpace()
	if q, ok, matched := s.containsCall(); matched {
		return q, ok
	}

	field, ok := s.ident()
	if !ok {
		return Query{}, false
	}
	s.skipSpace()
	op, ok := s.operator()
	if !ok {
		return Query{}, false
	}
	s.skipSpace()
	value, quoted, ok := s.literal()
	if !ok {
		return Query{}, false
	}
	return Query{Field: field, Operator: op, Value: value, Quoted: quoted}, true
}

type scanner struct {
	src string
	pos int
}

func (s *scanner) rest() string {
	return s.src[s.pos:]
}

func (s *scanner) skipSpace() {
	for s.pos < len(s.src) && (s.src[s.pos] == ' ' || s.src[s.pos] == '\t') {
		s.pos++
	}
}

func (s *scanner) peek() byte {
	if s.pos >= len(s.src) {
		return 0
	}
	return s.src[s.pos]
}

func isIdentStart(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || ('0' <= c && c <= '9')
}

// isWordChar covers bare literals: identifiers, numbers, versions, MACs.
func isWordChar(c byte) bool {
	return isIdentChar(c) || c == '.' || c == '-' || c == ':'
}

func (s *scanner) ident() (string, bool) {
	start := s.pos
	if !isIdentStart(s.peek()) {
		return "", false
	}
	for s.pos < len(s.src) && isIdentChar(s.src[s.pos]) {
		s.pos++
	}
	return s.src[start:s.pos], true
}

func (s *scanner) operator() (Operator, bool) {
	rest := s.rest()
	if strings.HasPrefix(rest, string(OpContains)) {
		after := rest[len(OpContains):]
		if after == "" || !isIdentChar(after[0]) {
			s.pos += len(OpContains)
			return OpContains, true
		}
		return "", false
	}
	for _, op := range symbolOperators {
		if strings.HasPrefix(rest, string(op)) {
			s.pos += len(op)
			return op, true
		}
	}
	return "", false
}

// literal reads a quoted string or a bare word. Quoted literals may not span
// lines or contain backticks.
func (s *scanner) literal() (string, bool, bool) {
	c := s.peek()
	if c == '\'' || c == '"' {
		end := strings.IndexByte(s.src[s.pos+1:], c)
		if end < 0 {
			return "", false, false
		}
		value := s.src[s.pos+1 : s.pos+1+end]
		if strings.ContainsAny(value, "`\n\r") {
			return "", false, false
		}
		s.pos += end + 2
		return value, true, true
	}
	if c == 0 || !isIdentChar(c) {
		return "", false, false
	}
	start := s.pos
	for s.pos < len(s.src) && isWordChar(s.src[s.pos]) {
		s.pos++
	}
	return s.src[start:s.pos], false, true
}

// containsCall handles the keyword form contains(field, value). matched is
// false when the text does not start with that form at all.
func (s *scanner) containsCall() (q Query, ok bool, matched bool) {
	rest := s.rest()
	if !strings.HasPrefix(rest, string(OpContains)) {
		return Query{}, false, false
	}
	after := strings.TrimLeft(rest[len(OpContains):], " \t")
	if !strings.HasPrefix(after, "(") {
		return Query{}, false, false
	}
	s.pos = len(s.src) - len(after) + 1
	s.skipSpace()
	field, ok := s.ident()
	if !ok {
		return Query{}, false, true
	}
	s.skipSpace()
	if s.peek() != ',' {
		return Query{}, false, true
	}
	s.pos++
	s.skipSpace()
	value, quoted, ok := s.literal()
	if !ok {
		return Query{}, false, true
	}
	s.skipSpace()
	if s.peek() != ')' {
		return Query{}, false, true
	}
	s.pos++
	return Query{Field: field, Operator: OpContains, Value: value, Quoted: quoted}, true, true
}
