package jdiff

import (
	"cmp"
	"encoding"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/cockroachdb/apd/v2"
	"github.com/go-json-experiment/json/jsontext"
)

// ErrCycle is returned by a Canonicalizer with cycle detection enabled when a
// value contains itself.
var ErrCycle = errors.New("cyclic structure")

// Dumper is implemented by models that can render themselves as a plain
// structure. The result is canonicalized again.
type Dumper interface {
	ModelDump() any
}

// Dicter is the older form of Dumper. Dumper wins when a value implements
// both.
type Dicter interface {
	Dict() map[string]any
}

// Enum is implemented by enumerated values that store something other than
// their Go underlying value.
type Enum interface {
	EnumValue() any
}

// Attributer is implemented by opaque objects that expose their state as a
// set of named attributes. Attributes whose name starts with an underscore
// are private and never emitted.
type Attributer interface {
	Attributes() map[string]any
}

// Option configures a Canonicalizer.
type Option func(c *Canonicalizer) error

// WithRegistrations applies type hook registrations to the canonicalizer's
// registry.
func WithRegistrations(regs ...Registration) Option {
	return func(c *Canonicalizer) error { return Apply(c.registry, regs...) }
}

// WithCycleDetection makes Canonicalize fail with ErrCycle instead of
// recursing forever on self-referencing values.
func WithCycleDetection() Option {
	return func(c *Canonicalizer) error {
		c.detectCycles = true
		return nil
	}
}

// Canonicalizer converts arbitrary values into canonical values: nil, bool,
// Go numbers, string, A and D. It is safe for concurrent use.
type Canonicalizer struct {
	registry     *Registry
	detectCycles bool
}

// New returns a Canonicalizer with an empty hook registry, configured by opts.
func New(opts ...Option) (*Canonicalizer, error) {
	c := &Canonicalizer{registry: newRegistry()}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

var defaultCanonicalizer = &Canonicalizer{registry: MustNewRegistry(Stdlib())}

// Default returns the canonicalizer used by the package-level functions. It
// carries the Stdlib hooks and no cycle detection.
func Default() *Canonicalizer { return defaultCanonicalizer }

// Canonicalize converts v with the default canonicalizer. It never fails; a
// value that contains itself exhausts the stack.
func Canonicalize(v any) any {
	out, _ := defaultCanonicalizer.Canonicalize(v)
	return out
}

// Canonicalize converts v into a canonical value. The only possible error is
// ErrCycle, and only when cycle detection is enabled.
//
// Rules are tried in this order, first match wins:
//
//  1. structs with exported fields (other than the date and decimal types
//     below and models implementing Dumper or Dicter): those fields in
//     declaration order, named by their json tag
//  2. Dumper
//  3. Dicter
//  4. D (values only), slices and arrays, and maps with struct{} elements
//     (sets)
//  5. maps, with keys canonicalized and stringified
//  6. Enum, and named bool, numeric and string types
//  7. time.Time, civil.Date and civil.DateTime as ISO-8601 strings
//  8. apd.Decimal, big.Float, big.Rat and big.Int as exact strings
//  9. Attributer, minus underscore-prefixed attributes
//  10. strings and byte strings, decoded when they hold a JSON object or array
//  11. bool, numbers and Number, unchanged
//  12. anything else as text
//
// Registered type hooks run before all of them, except on nil pointers,
// which are always null.
func (c *Canonicalizer) Canonicalize(v any) (any, error) {
	if c == nil {
		c = defaultCanonicalizer
	}
	w := &walker{c: c}
	if c.detectCycles {
		w.visiting = make(map[visitKey]struct{})
	}
	return w.walk(reflect.ValueOf(v))
}

// Func returns c.Canonicalize as a total function, dropping errors. Useful
// where a plain func(any) any is expected.
func (c *Canonicalizer) Func() func(any) any {
	return func(v any) any {
		out, _ := c.Canonicalize(v)
		return out
	}
}

var (
	timeType          = reflect.TypeFor[time.Time]()
	civilDateType     = reflect.TypeFor[civil.Date]()
	civilDateTimeType = reflect.TypeFor[civil.DateTime]()
	civilTimeType     = reflect.TypeFor[civil.Time]()
	decimalType       = reflect.TypeFor[apd.Decimal]()
	bigIntType        = reflect.TypeFor[big.Int]()
	bigFloatType      = reflect.TypeFor[big.Float]()
	bigRatType        = reflect.TypeFor[big.Rat]()
	docType           = reflect.TypeFor[D]()
	numberType        = reflect.TypeFor[Number]()
	dumperType        = reflect.TypeFor[Dumper]()
	dicterType        = reflect.TypeFor[Dicter]()
	bytesType         = reflect.TypeFor[[]byte]()
	jsonValueType     = reflect.TypeFor[jsontext.Value]()
)

// isScalarStruct reports whether t is a struct type that stands for a single
// value and must not be rendered field by field.
func isScalarStruct(t reflect.Type) bool {
	switch t {
	case timeType, civilDateType, civilDateTimeType, civilTimeType,
		decimalType, bigIntType, bigFloatType, bigRatType:
		return true
	}
	return false
}

// isModel reports whether t or *t implements Dumper or Dicter.
func isModel(t reflect.Type) bool {
	pt := reflect.PointerTo(t)
	return t.Implements(dumperType) || t.Implements(dicterType) ||
		pt.Implements(dumperType) || pt.Implements(dicterType)
}

// isRecord reports whether t is a struct rendered field by field: one with
// at least one exported field, or no fields at all. Structs holding only
// unexported state are opaque and fall through to the later rules, and
// models render through their dump instead.
func isRecord(t reflect.Type) bool {
	if t.Kind() != reflect.Struct || isScalarStruct(t) || isModel(t) {
		return false
	}
	if t.NumField() == 0 {
		return true
	}
	for i := range t.NumField() {
		if t.Field(i).IsExported() {
			return true
		}
	}
	return false
}

func isByteString(t reflect.Type) bool {
	return t == bytesType || t == jsonValueType
}

func isSet(t reflect.Type) bool {
	return t.Kind() == reflect.Map && t.Elem().Kind() == reflect.Struct && t.Elem().NumField() == 0
}

var builtinTypes = map[reflect.Kind]reflect.Type{
	reflect.Bool:    reflect.TypeFor[bool](),
	reflect.Int:     reflect.TypeFor[int](),
	reflect.Int8:    reflect.TypeFor[int8](),
	reflect.Int16:   reflect.TypeFor[int16](),
	reflect.Int32:   reflect.TypeFor[int32](),
	reflect.Int64:   reflect.TypeFor[int64](),
	reflect.Uint:    reflect.TypeFor[uint](),
	reflect.Uint8:   reflect.TypeFor[uint8](),
	reflect.Uint16:  reflect.TypeFor[uint16](),
	reflect.Uint32:  reflect.TypeFor[uint32](),
	reflect.Uint64:  reflect.TypeFor[uint64](),
	reflect.Uintptr: reflect.TypeFor[uintptr](),
	reflect.Float32: reflect.TypeFor[float32](),
	reflect.Float64: reflect.TypeFor[float64](),
	reflect.String:  reflect.TypeFor[string](),
}

// underlying returns the builtin type a named bool, numeric or string type is
// defined over.
func underlying(t reflect.Type) (reflect.Type, bool) {
	b, ok := builtinTypes[t.Kind()]
	if !ok || t == b {
		return nil, false
	}
	return b, true
}

// as reports whether rv or its address implements T. A value that is not
// addressable is copied when only its pointer type implements T.
func as[T any](rv reflect.Value) (T, bool) {
	if rv.CanInterface() {
		if v, ok := rv.Interface().(T); ok {
			return v, true
		}
	}
	if rv.CanAddr() {
		if rv.Addr().CanInterface() {
			if v, ok := rv.Addr().Interface().(T); ok {
				return v, true
			}
		}
	} else if rv.CanInterface() && reflect.PointerTo(rv.Type()).Implements(reflect.TypeFor[T]()) {
		p := reflect.New(rv.Type())
		p.Elem().Set(rv)
		if v, ok := p.Interface().(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// addrOf returns a pointer to the T held by rv, copying only when rv is not
// addressable.
func addrOf[T any](rv reflect.Value) *T {
	if rv.CanAddr() {
		return rv.Addr().Interface().(*T)
	}
	v := rv.Interface().(T)
	return &v
}

type visitKey struct {
	typ reflect.Type
	ptr uintptr
	len int
}

type walker struct {
	c        *Canonicalizer
	visiting map[visitKey]struct{} // nil unless cycle detection is on
}

func noop() {}

// enter marks a reference value as being visited. The returned func must be
// called once the value is done.
func (w *walker) enter(rv reflect.Value) (func(), error) {
	if w.visiting == nil {
		return noop, nil
	}
	var k visitKey
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map:
		k = visitKey{typ: rv.Type(), ptr: rv.Pointer()}
	case reflect.Slice:
		if rv.Len() == 0 {
			return noop, nil
		}
		k = visitKey{typ: rv.Type(), ptr: rv.Pointer(), len: rv.Len()}
	default:
		return noop, nil
	}
	if _, ok := w.visiting[k]; ok {
		return nil, fmt.Errorf("%w: %s refers to itself", ErrCycle, rv.Type())
	}
	w.visiting[k] = struct{}{}
	return func() { delete(w.visiting, k) }, nil
}

func (w *walker) walk(rv reflect.Value) (any, error) {
	for {
		if !rv.IsValid() {
			return nil, nil
		}
		kind := rv.Kind()
		isRef := kind == reflect.Interface || kind == reflect.Pointer
		if isRef && rv.IsNil() {
			return nil, nil
		}
		if out, ok := w.c.registry.call(rv); ok {
			return w.walk(reflect.ValueOf(out))
		}
		if !isRef {
			return w.dispatch(rv)
		}
		if kind == reflect.Pointer {
			leave, err := w.enter(rv)
			if err != nil {
				return nil, err
			}
			defer leave()
		}
		rv = rv.Elem()
	}
}

func (w *walker) dispatch(rv reflect.Value) (any, error) {
	t := rv.Type()

	if isRecord(t) {
		return w.record(rv)
	}
	if m, ok := as[Dumper](rv); ok {
		return w.walk(reflect.ValueOf(m.ModelDump()))
	}
	if m, ok := as[Dicter](rv); ok {
		return w.walk(reflect.ValueOf(m.Dict()))
	}

	switch {
	case t == docType:
		return w.document(rv)
	case t.Kind() == reflect.Slice && !isByteString(t), t.Kind() == reflect.Array:
		return w.sequence(rv)
	case isSet(t):
		return w.set(rv)
	case t.Kind() == reflect.Map:
		return w.mapping(rv)
	}

	if t == numberType {
		return rv.Interface(), nil
	}
	if e, ok := as[Enum](rv); ok {
		return w.walk(reflect.ValueOf(e.EnumValue()))
	}
	if b, ok := underlying(t); ok {
		return w.walk(rv.Convert(b))
	}

	switch t {
	case timeType:
		return rv.Interface().(time.Time).Format(time.RFC3339Nano), nil
	case civilDateType:
		return rv.Interface().(civil.Date).String(), nil
	case civilDateTimeType:
		return rv.Interface().(civil.DateTime).String(), nil
	case decimalType:
		return addrOf[apd.Decimal](rv).String(), nil
	case bigFloatType:
		return addrOf[big.Float](rv).Text('g', -1), nil
	case bigRatType:
		return addrOf[big.Rat](rv).RatString(), nil
	case bigIntType:
		return addrOf[big.Int](rv).String(), nil
	}

	if a, ok := as[Attributer](rv); ok {
		return w.attributes(a.Attributes())
	}

	switch t.Kind() {
	case reflect.String:
		return sniffString(rv.String()), nil
	case reflect.Slice: // byte strings
		b := rv.Bytes()
		if v, ok := sniffJSON(b); ok {
			return v, nil
		}
		return string(b), nil
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return rv.Interface(), nil
	}

	return fallback(rv), nil
}

func sniffString(s string) any {
	if v, ok := sniffJSON([]byte(s)); ok {
		return v
	}
	return s
}

func (w *walker) record(rv reflect.Value) (any, error) {
	d := D{}
	if err := w.appendFields(&d, rv); err != nil {
		return nil, err
	}
	return d, nil
}

// appendFields appends the exported fields of the struct rv to d, flattening
// untagged embedded structs. Unexported embedded structs only contribute
// their promoted fields.
func (w *walker) appendFields(d *D, rv reflect.Value) error {
	t := rv.Type()
	for i := range t.NumField() {
		sf := t.Field(i)
		exported := sf.IsExported()
		if !exported && !sf.Anonymous {
			continue
		}
		name, tagged, skip := fieldName(sf)
		if skip {
			continue
		}
		fv := rv.Field(i)
		if sf.Anonymous && !tagged {
			flattened, err := w.flatten(d, fv)
			if err != nil {
				return err
			}
			if flattened {
				continue
			}
		}
		if !exported {
			continue
		}
		v, err := w.walk(fv)
		if err != nil {
			return fmt.Errorf("field %s: %w", sf.Name, err)
		}
		*d = append(*d, E{Key: name, Value: v})
	}
	return nil
}

// flatten promotes the fields of an embedded struct into d. It reports false
// when the embedded value is not a plain struct and must be emitted as a
// field of its own.
func (w *walker) flatten(d *D, fv reflect.Value) (bool, error) {
	if fv.Kind() == reflect.Pointer {
		if w.c.registry.Has(fv.Type()) {
			return false, nil
		}
		if fv.IsNil() {
			return isRecord(fv.Type().Elem()), nil
		}
		leave, err := w.enter(fv)
		if err != nil {
			return false, err
		}
		defer leave()
		fv = fv.Elem()
	}
	if !isRecord(fv.Type()) || w.c.registry.Has(fv.Type()) {
		return false, nil
	}
	return true, w.appendFields(d, fv)
}

func fieldName(sf reflect.StructField) (name string, tagged, skip bool) {
	tag := sf.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	if n, _, _ := strings.Cut(tag, ","); n != "" {
		return n, true, false
	}
	return sf.Name, false, false
}

func (w *walker) sequence(rv reflect.Value) (any, error) {
	if rv.Kind() == reflect.Slice {
		if rv.IsNil() {
			return A{}, nil
		}
		leave, err := w.enter(rv)
		if err != nil {
			return nil, err
		}
		defer leave()
	}
	out := make(A, 0, rv.Len())
	for i := range rv.Len() {
		v, err := w.walk(rv.Index(i))
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// document canonicalizes the values of a D, keeping its keys and order.
func (w *walker) document(rv reflect.Value) (any, error) {
	if rv.IsNil() {
		return D{}, nil
	}
	leave, err := w.enter(rv)
	if err != nil {
		return nil, err
	}
	defer leave()

	d := rv.Interface().(D)
	out := make(D, 0, len(d))
	for _, e := range d {
		v, err := w.walk(reflect.ValueOf(e.Value))
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", e.Key, err)
		}
		out = append(out, E{Key: e.Key, Value: v})
	}
	return out, nil
}

// set renders a map[K]struct{} as a sequence of its canonicalized keys. The
// keys are ordered by their JSON text since map order is random.
func (w *walker) set(rv reflect.Value) (any, error) {
	if rv.IsNil() {
		return A{}, nil
	}
	leave, err := w.enter(rv)
	if err != nil {
		return nil, err
	}
	defer leave()

	items := make(D, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k, err := w.walk(iter.Key())
		if err != nil {
			return nil, err
		}
		items = append(items, E{Key: keyString(k), Value: k})
	}
	slices.SortStableFunc(items, func(a, b E) int { return cmp.Compare(a.Key, b.Key) })

	out := make(A, len(items))
	for i, e := range items {
		out[i] = e.Value
	}
	return out, nil
}

func (w *walker) mapping(rv reflect.Value) (any, error) {
	if rv.IsNil() {
		return D{}, nil
	}
	leave, err := w.enter(rv)
	if err != nil {
		return nil, err
	}
	defer leave()

	out := make(D, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k, err := w.walk(iter.Key())
		if err != nil {
			return nil, err
		}
		key := keyString(k)
		v, err := w.walk(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		out = append(out, E{Key: key, Value: v})
	}
	slices.SortStableFunc(out, func(a, b E) int { return cmp.Compare(a.Key, b.Key) })
	return out, nil
}

func (w *walker) attributes(attrs map[string]any) (any, error) {
	out := make(D, 0, len(attrs))
	for k, v := range attrs {
		if strings.HasPrefix(k, "_") {
			continue
		}
		cv, err := w.walk(reflect.ValueOf(v))
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		out = append(out, E{Key: k, Value: cv})
	}
	slices.SortFunc(out, func(a, b E) int { return cmp.Compare(a.Key, b.Key) })
	return out, nil
}

// keyString turns a canonical value into a mapping key: strings are kept and
// everything else becomes its compact JSON text.
func keyString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func fallback(rv reflect.Value) string {
	if tm, ok := as[encoding.TextMarshaler](rv); ok {
		if b, err := tm.MarshalText(); err == nil {
			return string(b)
		}
	}
	if e, ok := as[error](rv); ok {
		return e.Error()
	}
	if s, ok := as[fmt.Stringer](rv); ok {
		return s.String()
	}
	if rv.CanInterface() {
		return fmt.Sprint(rv.Interface())
	}
	return rv.String()
}
