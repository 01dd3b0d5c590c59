// Package jdiff turns arbitrary Go values into canonical JSON trees and
// renders side-by-side HTML diffs between two of them.
package jdiff

import (
	"slices"
	"strings"
)

// D represents a canonical mapping, defined as an ordered collection of
// key-value pairs. Each entry in the mapping is represented by an E.
type D []E

// A represents a canonical sequence, defined as a slice of canonical values.
type A []any

// E represents a single entry in a D. It consists of a string key and an
// associated canonical value.
type E struct {
	Key   string
	Value any
}

// Get returns the value of the first entry named key.
func (d D) Get(key string) (any, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Map flattens d into a map. Nested values are left untouched and later
// entries win over earlier entries with the same key.
func (d D) Map() map[string]any {
	m := make(map[string]any, len(d))
	for _, e := range d {
		m[e.Key] = e.Value
	}
	return m
}

// Sorted returns a copy of d with entries ordered by key, descending into
// nested D and A values. Entries with equal keys keep their relative order.
func (d D) Sorted() D {
	out := make(D, len(d))
	for i, e := range d {
		out[i] = E{Key: e.Key, Value: sortValue(e.Value)}
	}
	slices.SortStableFunc(out, func(a, b E) int { return strings.Compare(a.Key, b.Key) })
	return out
}

// Sorted returns a copy of a with every nested D sorted by key. The order of
// the sequence itself is preserved.
func (a A) Sorted() A {
	out := make(A, len(a))
	for i, v := range a {
		out[i] = sortValue(v)
	}
	return out
}

// sortValue sorts the D values inside v, descending through D, A and the
// plain map[string]any and []any containers.
func sortValue(v any) any {
	switch vv := v.(type) {
	case D:
		return vv.Sorted()
	case A:
		return vv.Sorted()
	case []any:
		out := make([]any, len(vv))
		for i, e := range vv {
			out[i] = sortValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(vv))
		for k, e := range vv {
			out[k] = sortValue(e)
		}
		return out
	default:
		return v
	}
}
