package jdiff

import (
	"fmt"
	"reflect"
	"sync"
)

type hookEntry struct {
	fn  reflect.Value
	typ reflect.Type
}

// Registry holds type hooks: functions that replace values of one concrete
// type before any built-in canonicalization rule runs. A hook's result is
// canonicalized again, so hooks may return any shape the rules understand.
type Registry struct {
	mu      sync.RWMutex
	entries map[reflect.Type]hookEntry
}

func newRegistry() *Registry {
	return &Registry{entries: make(map[reflect.Type]hookEntry)}
}

func validateHookSignature(fn any) (reflect.Value, reflect.Type, error) {
	fnVal := reflect.ValueOf(fn)
	if fnVal.Kind() != reflect.Func {
		return fnVal, nil, fmt.Errorf("hook invalid function signature (got %T)", fn)
	}
	typ := fnVal.Type()
	if typ.NumIn() != 1 || typ.NumOut() != 1 {
		return fnVal, nil, fmt.Errorf("hook invalid function signature (expected 1 input, 1 output; got %d, %d)", typ.NumIn(), typ.NumOut())
	}
	if typ.IsVariadic() {
		return fnVal, nil, fmt.Errorf("hook invalid function signature (variadic %s)", typ)
	}
	arg := typ.In(0)
	if arg.Kind() == reflect.Interface {
		return fnVal, nil, fmt.Errorf("hook invalid function signature (param must be a concrete type; got %s)", arg)
	}
	return fnVal, arg, nil
}

// Register adds fn as the hook for the type of its single parameter. fn must
// be a non-variadic function with one concrete-typed parameter and one
// result. Registering a second hook for the same type is an error.
func (r *Registry) Register(fn any) error {
	fnVal, typ, err := validateHookSignature(fn)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[typ]; exists {
		return fmt.Errorf("hook for %s already registered", typ)
	}
	r.entries[typ] = hookEntry{fn: fnVal, typ: typ}
	return nil
}

// Len reports the number of registered hooks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Has reports whether a hook is registered for t.
func (r *Registry) Has(t reflect.Type) bool {
	_, ok := r.lookup(t)
	return ok
}

func (r *Registry) lookup(t reflect.Type) (hookEntry, bool) {
	if r == nil || t == nil {
		return hookEntry{}, false
	}
	r.mu.RLock()
	ent, ok := r.entries[t]
	r.mu.RUnlock()
	return ent, ok
}

// call runs the hook registered for rv's type. The bool result is false when
// no hook applies.
func (r *Registry) call(rv reflect.Value) (any, bool) {
	ent, ok := r.lookup(rv.Type())
	if !ok || !rv.CanInterface() {
		return nil, false
	}
	out := ent.fn.Call([]reflect.Value{rv})
	return out[0].Interface(), true
}
