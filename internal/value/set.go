package value

import (
	"math"
	"reflect"
)

// Set is an insertion-ordered collection of unique values. Primitives are
// compared by value (all numeric kinds are normalized first, NaN equals NaN)
// and maps, slices and pointers by identity. Other non-comparable values are
// always added.
type Set struct {
	items []any
	index map[any]struct{}
}

type nanKey struct{}

type refKey struct {
	kind reflect.Kind
	ptr  uintptr
	len  int
}

// NewSet creates a set holding items in order, dropping duplicates.
func NewSet(items ...any) *Set {
	s := &Set{index: make(map[any]struct{}, len(items))}
	for _, item := range items {
		s.Add(item)
	}
	return s
}

// Add inserts v and reports whether it was not already present.
func (s *Set) Add(v any) bool {
	if s.index == nil {
		s.index = make(map[any]struct{})
	}
	v = Normalize(v)
	key := setKey(v)
	if _, exists := s.index[key]; exists {
		return false
	}
	s.index[key] = struct{}{}
	s.items = append(s.items, v)
	return true
}

// Has reports whether v is in the set.
func (s *Set) Has(v any) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[setKey(Normalize(v))]
	return ok
}

// Len returns the number of elements.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Values returns a copy of the elements in insertion order.
func (s *Set) Values() []any {
	if s == nil {
		return nil
	}
	out := make([]any, len(s.items))
	copy(out, s.items)
	return out
}

func setKey(v any) any {
	if f, ok := v.(float64); ok && math.IsNaN(f) {
		return nanKey{}
	}
	if v == nil {
		return nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Func, reflect.Chan:
		return refKey{kind: rv.Kind(), ptr: rv.Pointer()}
	case reflect.Slice:
		return refKey{kind: rv.Kind(), ptr: rv.Pointer(), len: rv.Len()}
	}
	if !rv.Type().Comparable() {
		// never deduplicated
		return new(byte)
	}
	return v
}
