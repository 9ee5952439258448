// Package value defines the data model templates are rendered against and the
// loosely typed coercion rules used when values are printed or compared.
//
// A Context maps variable names to values. Values are plain Go data: strings,
// any numeric kind (normalized to float64 on access), bools, nil for
// undefined, slices and arrays, *Set, and string-keyed maps for nested
// objects. Coercions follow the rules of a dynamically typed scripting
// language so that a template written against one data source keeps its
// meaning when the same data arrives from JSON, YAML or Go code.
package value

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Context is the mapping a template is rendered against.
type Context map[string]any

// Lookup returns the normalized value bound to name. The boolean is false when
// the name is absent or bound to nil, both of which mean undefined.
func (c Context) Lookup(name string) (any, bool) {
	v, ok := c[name]
	if !ok || v == nil {
		return nil, false
	}
	return Normalize(v), true
}

// Keys returns the context keys in sorted order.
func (c Context) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AsContext converts v into a Context when v is a mapping with string keys.
// Arrays, sets, primitives and untyped nil are rejected.
func AsContext(v any) (Context, bool) {
	switch m := v.(type) {
	case Context:
		return m, true
	case map[string]any:
		return Context(m), true
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	ctx := make(Context, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		ctx[iter.Key().String()] = iter.Value().Interface()
	}
	return ctx, true
}

// Normalize converts every numeric kind to float64 and leaves other values
// untouched.
func Normalize(v any) any {
	switch n := v.(type) {
	case nil, string, bool, float64:
		return v
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case float32:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	}
	return v
}

// Iterate returns the elements of an array, slice or *Set in iteration order.
// The boolean is false for every other value, strings included.
func Iterate(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case *Set:
		if s == nil {
			return nil, false
		}
		return s.Values(), true
	case nil, string:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

// Truthy reports whether v counts as true in a boolean position. false, 0,
// NaN, the empty string and undefined are falsy; everything else, including
// empty arrays and objects, is truthy.
func Truthy(v any) bool {
	switch n := Normalize(v).(type) {
	case nil:
		return false
	case bool:
		return n
	case float64:
		return n != 0 && !math.IsNaN(n)
	case string:
		return n != ""
	}
	return true
}

// String converts v to its display form. Numbers print without a trailing
// fraction when integral, arrays join their elements with commas, and
// objects print as an opaque marker.
func String(v any) string {
	switch n := Normalize(v).(type) {
	case nil:
		return "undefined"
	case string:
		return n
	case bool:
		return strconv.FormatBool(n)
	case float64:
		return FormatNumber(n)
	case *Set:
		return "[object Set]"
	case fmt.Stringer:
		return n.String()
	}

	if items, ok := Iterate(v); ok {
		parts := make([]string, len(items))
		for i, item := range items {
			if item != nil {
				parts[i] = String(item)
			}
		}
		return strings.Join(parts, ",")
	}
	if reflect.ValueOf(v).Kind() == reflect.Map {
		return "[object Object]"
	}
	return fmt.Sprint(v)
}

// FormatNumber formats f the way a script engine prints a number: integers
// without a fraction, exponent notation outside [1e-6, 1e21).
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}

	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mantissa, exp, _ := strings.Cut(s, "e")
		sign := exp[:1]
		digits := strings.TrimLeft(exp[1:], "0")
		return mantissa + "e" + sign + digits
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
