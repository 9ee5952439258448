package expr

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/conneroisu/tagfill/internal/errors"
	"github.com/conneroisu/tagfill/internal/value"
)

// OperandKind classifies an operand token.
type OperandKind int

const (
	KindInvalid OperandKind = iota
	KindBool
	KindString
	KindVariable
	KindNumber
)

func (k OperandKind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindVariable:
		return "variable"
	case KindNumber:
		return "number"
	default:
		return "invalid"
	}
}

// Operand is one side of a comparison.
type Operand struct {
	Raw   string
	Kind  OperandKind
	Value any    // literal value for bool, string and number operands
	Name  string // variable name for KindVariable
}

// numberPrefix matches the longest leading numeric literal, as a lenient
// float parser would accept it: "3px" is 3.
var numberPrefix = regexp.MustCompile(`^[+-]?(Infinity|(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?)`)

// parseOperand classifies raw as, in order: a boolean literal, a quoted
// string, a {{ name }} reference or a number.
func parseOperand(raw string) Operand {
	op := Operand{Raw: raw}
	switch {
	case raw == "true":
		op.Kind, op.Value = KindBool, true
	case raw == "false":
		op.Kind, op.Value = KindBool, false
	case isQuoted(raw):
		op.Kind, op.Value = KindString, raw[1:len(raw)-1]
	case strings.HasPrefix(raw, "{{") && strings.HasSuffix(raw, "}}") && len(raw) >= 4:
		op.Kind, op.Name = KindVariable, strings.TrimSpace(raw[2:len(raw)-2])
	default:
		if f, ok := parseNumberPrefix(raw); ok {
			op.Kind, op.Value = KindNumber, f
		}
	}
	return op
}

func isQuoted(s string) bool {
	if len(s) < 2 {
		return false
	}
	first, last := s[0], s[len(s)-1]
	return first == last && (first == '\'' || first == '"')
}

func parseNumberPrefix(s string) (float64, bool) {
	m := numberPrefix.FindString(s)
	if m == "" {
		return math.NaN(), false
	}
	// out of range literals come back as ±Inf with a range error
	f, _ := strconv.ParseFloat(m, 64)
	return f, true
}

func (o Operand) check() error {
	if o.Kind == KindInvalid {
		return errors.NewGrammarError(
			errors.ErrCodeInvalidOperand,
			fmt.Sprintf("cannot determine the type of %q: wrap variables in {{ }} and strings in quotes", o.Raw),
		).WithContext("operand", o.Raw)
	}
	return nil
}

// Resolve returns the operand's value. Variables are looked up in ctx and
// fail when undefined; falsy values are allowed.
func (o Operand) Resolve(ctx value.Context) (any, error) {
	switch o.Kind {
	case KindVariable:
		v, ok := ctx.Lookup(o.Name)
		if !ok {
			return nil, errors.NewReferenceError(
				errors.ErrCodeUndefinedVariable,
				fmt.Sprintf("cannot evaluate condition: variable %q is not defined", o.Name),
			).WithContext("variable", o.Name)
		}
		return v, nil
	case KindInvalid:
		return nil, o.check()
	}
	return o.Value, nil
}
