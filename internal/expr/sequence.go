package expr

import "strings"

// Connector joins two clauses of a condition.
type Connector int

const (
	And Connector = iota + 1
	Or
)

func (c Connector) String() string {
	switch c {
	case And:
		return "AND"
	case Or:
		return "OR"
	default:
		return "?"
	}
}

// Sequence is an evaluated condition: one boolean per clause and the
// connectors between them, len(Connectors) == len(Values)-1.
type Sequence struct {
	Values     []bool
	Connectors []Connector
}

// Reduce folds the sequence left to right. An AND whose sides are not both
// true, or an OR whose sides are both false, makes the whole sequence false
// immediately; otherwise the running value becomes true. As a consequence
// "a && b || c" is false whenever a && b is, regardless of c.
func (s Sequence) Reduce() bool {
	if len(s.Values) == 0 {
		return false
	}
	current := s.Values[0]
	for i, conn := range s.Connectors {
		if i+1 >= len(s.Values) {
			break
		}
		next := s.Values[i+1]
		switch conn {
		case And:
			if !current || !next {
				return false
			}
		case Or:
			if !current && !next {
				return false
			}
		}
		current = true
	}
	return current
}

// String renders the sequence as e.g. "[true AND false OR true]".
func (s Sequence) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range s.Values {
		if i > 0 && i-1 < len(s.Connectors) {
			b.WriteByte(' ')
			b.WriteString(s.Connectors[i-1].String())
			b.WriteByte(' ')
		}
		if v {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	}
	b.WriteByte(']')
	return b.String()
}
