package query

import (
	"math/big"
	"slices"
	"strings"

	"github.com/sloppy/lynistracker/internal/report"
)

// Evaluate parses text and applies it to facts. known is false when text is
// rejected, the field is absent, or the operator cannot be applied to the
// value it finds.
func Evaluate(facts *report.Facts, text string) (result, known bool) {
	q, ok := Parse(text)
	if !ok {
		return false, false
	}
	return q.Eval(facts)
}

// Eval applies q to facts.
func (q Query) Eval(facts *report.Facts) (result, known bool) {
	v, ok := facts.Get(q.Field)
	if !ok {
		return false, false
	}
	switch q.Operator {
	case OpAssign, OpEqual:
		return equal(v, q.Value), true
	case OpNotEqual:
		return !equal(v, q.Value), true
	case OpGreater, OpLess, OpGreaterE, OpLessE:
		return order(v, q.Operator, q.Value)
	case OpContains:
		return contains(v, q.Value)
	}
	return false, false
}

// integer returns s as an integer when it is one. Literals may be longer than
// any machine integer.
func integer(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	return new(big.Int).SetString(s, 10)
}

func factInteger(v report.Value) (*big.Int, bool) {
	if n, ok := v.Int(); ok {
		return big.NewInt(n), true
	}
	if s, ok := v.Str(); ok {
		return integer(s)
	}
	return nil, false
}

// equal compares numerically when both sides are integers and textually
// otherwise. A list never equals a literal.
func equal(v report.Value, literal string) bool {
	if v.Kind() == report.KindList {
		return false
	}
	if a, ok := factInteger(v); ok {
		if b, ok := integer(literal); ok {
			return a.Cmp(b) == 0
		}
	}
	return v.Text() == literal
}

func order(v report.Value, op Operator, literal string) (bool, bool) {
	a, ok := factInteger(v)
	if !ok {
		return false, false
	}
	b, ok := integer(literal)
	if !ok {
		return false, false
	}
	c := a.Cmp(b)
	switch op {
	case OpGreater:
		return c > 0, true
	case OpLess:
		return c < 0, true
	case OpGreaterE:
		return c >= 0, true
	default:
		return c <= 0, true
	}
}

// contains checks list membership. A string fact is searched as text so that
// rules written against single-valued facts keep a definite answer.
func contains(v report.Value, literal string) (bool, bool) {
	if items, ok := v.List(); ok {
		return slices.Contains(items, literal), true
	}
	if s, ok := v.Str(); ok {
		return strings.Contains(s, literal), true
	}
	return false, false
}
