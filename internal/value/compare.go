package value

import (
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"
)

type class int

const (
	classUndefined class = iota
	classBool
	classNumber
	classString
	classObject
)

func classOf(v any) class {
	switch v.(type) {
	case nil:
		return classUndefined
	case bool:
		return classBool
	case float64:
		return classNumber
	case string:
		return classString
	}
	return classObject
}

var decimalLiteral = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// ToNumber converts v to a number. Strings are trimmed and must be a complete
// decimal, hex, octal or binary literal (the empty string is 0); anything
// else is NaN.
func ToNumber(v any) float64 {
	switch n := Normalize(v).(type) {
	case nil:
		return math.NaN()
	case bool:
		if n {
			return 1
		}
		return 0
	case float64:
		return n
	case string:
		return stringToNumber(n)
	}
	if _, ok := Iterate(v); ok {
		return stringToNumber(String(v))
	}
	return math.NaN()
}

func stringToNumber(s string) float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return 0
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}

	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			u, err := strconv.ParseUint(s[2:], base, 64)
			if err != nil {
				return math.NaN()
			}
			return float64(u)
		}
	}

	if !decimalLiteral.MatchString(s) {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// out of range literals still carry a sign
		if strings.HasPrefix(s, "-") {
			return math.Inf(-1)
		}
		return math.Inf(1)
	}
	return f
}

// toPrimitive collapses objects to their string form.
func toPrimitive(v any) any {
	v = Normalize(v)
	if classOf(v) == classObject {
		return String(v)
	}
	return v
}

// StrictEqual compares without coercion: values of different types are never
// equal, NaN is not equal to itself and objects compare by identity.
func StrictEqual(a, b any) bool {
	a, b = Normalize(a), Normalize(b)
	ca, cb := classOf(a), classOf(b)
	if ca != cb {
		return false
	}
	switch ca {
	case classUndefined:
		return true
	case classObject:
		return sameReference(a, b)
	}
	return a == b
}

// LooseEqual compares with coercion: a number and a string compare
// numerically, booleans become numbers and objects are compared through
// their string form.
func LooseEqual(a, b any) bool {
	a, b = Normalize(a), Normalize(b)
	ca, cb := classOf(a), classOf(b)

	switch {
	case ca == cb:
		return StrictEqual(a, b)
	case ca == classUndefined || cb == classUndefined:
		return false
	case ca == classBool:
		return LooseEqual(ToNumber(a), b)
	case cb == classBool:
		return LooseEqual(a, ToNumber(b))
	case ca == classNumber && cb == classString:
		return a.(float64) == stringToNumber(b.(string))
	case ca == classString && cb == classNumber:
		return stringToNumber(a.(string)) == b.(float64)
	case ca == classObject:
		return LooseEqual(toPrimitive(a), b)
	case cb == classObject:
		return LooseEqual(a, toPrimitive(b))
	}
	return false
}

// Less reports a < b.
func Less(a, b any) bool {
	less, ok := relate(a, b)
	return ok && less
}

// Greater reports a > b.
func Greater(a, b any) bool {
	less, ok := relate(b, a)
	return ok && less
}

// LessOrEqual reports a <= b. Comparisons involving NaN are false.
func LessOrEqual(a, b any) bool {
	greater, ok := relate(b, a)
	return ok && !greater
}

// GreaterOrEqual reports a >= b. Comparisons involving NaN are false.
func GreaterOrEqual(a, b any) bool {
	less, ok := relate(a, b)
	return ok && !less
}

// relate computes a < b. Two strings are ordered by UTF-16 code units,
// everything else numerically. ok is false when either side is NaN.
func relate(a, b any) (less bool, ok bool) {
	pa, pb := toPrimitive(a), toPrimitive(b)

	sa, aIsString := pa.(string)
	sb, bIsString := pb.(string)
	if aIsString && bIsString {
		return compareUTF16(sa, sb) < 0, true
	}

	na, nb := ToNumber(pa), ToNumber(pb)
	if math.IsNaN(na) || math.IsNaN(nb) {
		return false, false
	}
	return na < nb, true
}

func compareUTF16(a, b string) int {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			if ua[i] < ub[i] {
				return -1
			}
			return 1
		}
	}
	return len(ua) - len(ub)
}

func sameReference(a, b any) bool {
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Kind() != rb.Kind() || ra.Type() != rb.Type() {
		return false
	}
	switch ra.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Func, reflect.Chan:
		return ra.Pointer() == rb.Pointer()
	case reflect.Slice:
		return ra.Pointer() == rb.Pointer() && ra.Len() == rb.Len()
	}
	if ra.Type().Comparable() {
		return a == b
	}
	return false
}
