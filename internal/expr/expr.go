// Package expr implements the restricted condition language used by the if
// directive.
//
// A condition is a flat chain of comparisons joined by && and ||:
//
//	{{ count }} > 3 && {{ status }} == 'open' || {{ admin }}
//
// Each comparison has at most one operator from === !== == != >= <= > < and
// operands that are boolean literals, quoted strings, {{ name }} variable
// references or numbers. There is no negation, grouping, arithmetic or
// member access: any of ! ( ) [ ] . , + - * / anywhere in the condition
// rejects it before parsing.
//
// Every comparison is evaluated before the chain is reduced, and the chain is
// folded strictly left to right with no precedence between && and ||. See
// Sequence.Reduce.
package expr

import (
	"fmt"
	"strings"

	"github.com/conneroisu/tagfill/internal/errors"
	"github.com/conneroisu/tagfill/internal/value"
)

// BannedCharacters may not appear anywhere in a condition.
const BannedCharacters = "!()[].,+-*/"

// Operator is a comparison operator.
type Operator string

const (
	OpStrictEqual    Operator = "==="
	OpStrictNotEqual Operator = "!=="
	OpEqual          Operator = "=="
	OpNotEqual       Operator = "!="
	OpGreaterOrEqual Operator = ">="
	OpLessOrEqual    Operator = "<="
	OpGreater        Operator = ">"
	OpLess           Operator = "<"
)

// operators in search order. The first one found anywhere in a comparison
// wins, so longer operators come before their prefixes.
var operators = []Operator{
	OpStrictEqual,
	OpStrictNotEqual,
	OpEqual,
	OpNotEqual,
	OpGreaterOrEqual,
	OpLessOrEqual,
	OpGreater,
	OpLess,
}

func (op Operator) apply(left, right any) bool {
	switch op {
	case OpStrictEqual:
		return value.StrictEqual(left, right)
	case OpStrictNotEqual:
		return !value.StrictEqual(left, right)
	case OpEqual:
		return value.LooseEqual(left, right)
	case OpNotEqual:
		return !value.LooseEqual(left, right)
	case OpGreaterOrEqual:
		return value.GreaterOrEqual(left, right)
	case OpLessOrEqual:
		return value.LessOrEqual(left, right)
	case OpGreater:
		return value.Greater(left, right)
	case OpLess:
		return value.Less(left, right)
	}
	return false
}

// Comparison is a single clause of a condition. Op is empty when the clause
// is a bare operand tested for truthiness, in which case Right is nil.
type Comparison struct {
	Source string
	Left   Operand
	Op     Operator
	Right  *Operand
}

func parseComparison(src string) Comparison {
	c := Comparison{Source: src}
	for _, op := range operators {
		if i := strings.Index(src, string(op)); i >= 0 {
			right := parseOperand(strings.TrimSpace(src[i+len(op):]))
			c.Left = parseOperand(strings.TrimSpace(src[:i]))
			c.Op = op
			c.Right = &right
			return c
		}
	}
	c.Left = parseOperand(src)
	return c
}

// Eval resolves the operands against ctx and applies the operator.
func (c Comparison) Eval(ctx value.Context) (bool, error) {
	left, err := c.Left.Resolve(ctx)
	if err != nil {
		return false, err
	}
	if c.Right == nil {
		return value.Truthy(left), nil
	}
	right, err := c.Right.Resolve(ctx)
	if err != nil {
		return false, err
	}
	return c.Op.apply(left, right), nil
}

func (c Comparison) String() string {
	if c.Right == nil {
		return c.Left.Raw
	}
	return fmt.Sprintf("%s %s %s", c.Left.Raw, c.Op, c.Right.Raw)
}

// Expression is a parsed condition.
type Expression struct {
	Source     string
	Clauses    []Comparison
	Connectors []Connector
}

// Parse splits cond into comparisons and connectors. It fails only on banned
// characters; operands that cannot be classified are reported when the
// expression is evaluated or checked, in clause order.
func Parse(cond string) (*Expression, error) {
	if i := strings.IndexAny(cond, BannedCharacters); i >= 0 {
		return nil, errors.NewGrammarError(
			errors.ErrCodeBannedCharacter,
			fmt.Sprintf("condition %q contains banned character %q", cond, cond[i]),
		).WithContext("condition", cond)
	}

	clauses, connectors := split(cond)
	e := &Expression{
		Source:     cond,
		Clauses:    make([]Comparison, len(clauses)),
		Connectors: connectors,
	}
	for i, clause := range clauses {
		e.Clauses[i] = parseComparison(clause)
	}
	return e, nil
}

// split cuts cond at every && and ||, returning the trimmed clauses and the
// connectors between them.
func split(cond string) ([]string, []Connector) {
	var (
		clauses    []string
		connectors []Connector
		start      int
	)
	for i := 0; i+1 < len(cond); i++ {
		var conn Connector
		switch cond[i : i+2] {
		case "&&":
			conn = And
		case "||":
			conn = Or
		default:
			continue
		}
		clauses = append(clauses, strings.TrimSpace(cond[start:i]))
		connectors = append(connectors, conn)
		start = i + 2
		i++
	}
	clauses = append(clauses, strings.TrimSpace(cond[start:]))
	return clauses, connectors
}

// Check reports the first operand that is neither a literal nor a variable
// reference. It needs no data.
func (e *Expression) Check() error {
	for _, c := range e.Clauses {
		if err := c.Left.check(); err != nil {
			return err
		}
		if c.Right != nil {
			if err := c.Right.check(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Variables returns the variable names referenced by the expression, in
// order of first appearance.
func (e *Expression) Variables() []string {
	var names []string
	seen := make(map[string]bool)
	add := func(op *Operand) {
		if op != nil && op.Kind == KindVariable && !seen[op.Name] {
			seen[op.Name] = true
			names = append(names, op.Name)
		}
	}
	for i := range e.Clauses {
		add(&e.Clauses[i].Left)
		add(e.Clauses[i].Right)
	}
	return names
}

// Sequence evaluates every clause against ctx, in order, and returns the
// resulting logic sequence. The first failing clause aborts evaluation.
func (e *Expression) Sequence(ctx value.Context) (Sequence, error) {
	seq := Sequence{
		Values:     make([]bool, 0, len(e.Clauses)),
		Connectors: e.Connectors,
	}
	for _, c := range e.Clauses {
		v, err := c.Eval(ctx)
		if err != nil {
			return Sequence{}, err
		}
		seq.Values = append(seq.Values, v)
	}
	return seq, nil
}

// Eval evaluates the expression against ctx.
func (e *Expression) Eval(ctx value.Context) (bool, error) {
	seq, err := e.Sequence(ctx)
	if err != nil {
		return false, err
	}
	return seq.Reduce(), nil
}

// Evaluate parses and evaluates cond against ctx.
func Evaluate(cond string, ctx value.Context) (bool, error) {
	e, err := Parse(cond)
	if err != nil {
		return false, err
	}
	return e.Eval(ctx)
}
