package jdiff

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// Number is a JSON integer too large for int64 and uint64, kept as its
// literal text. Marshal writes it back unchanged.
type Number string

// Unmarshalers returns the jdiff unmarshalers allowing decoding into:
//   - any/interface{} -> objects as D, arrays as A, integers as int64, uint64
//     or Number, other numbers as float64, remaining primitives as json/v2
//     does
//   - *D              -> direct ordered object decoding
//   - *A              -> direct array decoding
func Unmarshalers() *json.Unmarshalers {
	return json.JoinUnmarshalers(
		unmarshalValue(),
		unmarshalDocument(),
		unmarshalCollection(),
	)
}

// Unmarshal decodes a JSON document into canonical values, keeping object
// member order and repeated member names. Trailing data after the top-level
// value is an error.
func Unmarshal(data []byte) (any, error) {
	var out any
	opts := json.JoinOptions(
		json.WithUnmarshalers(Unmarshalers()),
		jsontext.AllowDuplicateNames(true),
		jsontext.AllowInvalidUTF8(true),
	)
	if err := json.Unmarshal(data, &out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// sniffJSON reports whether s is JSON object or array text, returning the
// decoded tree when it is. Anything that does not start with '{' or '[' after
// trimming whitespace, or fails to parse, yields ok == false.
func sniffJSON(s []byte) (any, bool) {
	s = bytes.TrimSpace(s)
	if len(s) == 0 || (s[0] != '{' && s[0] != '[') {
		return nil, false
	}
	v, err := Unmarshal(s)
	if err != nil {
		return nil, false
	}
	return v, true
}

// unmarshalValue wraps JSON objects as D (ordered) rather than
// map[string]any, and JSON arrays as A so callers can distinguish them from
// []any. Numbers go through parseNumber so integers stay exact. Other
// primitive JSON values are left to the default logic by returning
// json.SkipFunc.
//
// Empty objects ({}) produce an empty D; empty arrays ([]) produce an empty A.
func unmarshalValue() *json.Unmarshalers {
	return json.UnmarshalFromFunc(func(dec *jsontext.Decoder, v *any) error {
		switch dec.PeekKind() {
		case '{':
			d, err := decodeObject(dec)
			if err != nil {
				return err
			}
			*v = d
			return nil
		case '[':
			arr, err := decodeArray(dec)
			if err != nil {
				return err
			}
			*v = arr
			return nil
		case '0':
			raw, err := dec.ReadValue()
			if err != nil {
				return fmt.Errorf("read number: %w", err)
			}
			n, err := parseNumber(string(raw))
			if err != nil {
				return err
			}
			*v = n
			return nil
		default:
			return json.SkipFunc
		}
	})
}

// parseNumber converts JSON number text. Integers become int64, then uint64,
// then Number when they fit neither; anything with a fraction or exponent
// becomes float64.
func parseNumber(s string) (any, error) {
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return u, nil
		}
		return Number(s), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("parse number %s: %w", s, err)
	}
	return f, nil
}

// unmarshalDocument provides decoding of a JSON object into a *D when the
// target type is *D.
func unmarshalDocument() *json.Unmarshalers {
	return json.UnmarshalFromFunc(func(dec *jsontext.Decoder, v *D) error {
		if dec.PeekKind() != '{' {
			return json.SkipFunc
		}
		d, err := decodeObject(dec)
		if err != nil {
			return err
		}
		*v = d
		return nil
	})
}

// unmarshalCollection provides decoding of a JSON array into an *A when the
// target type is *A.
func unmarshalCollection() *json.Unmarshalers {
	return json.UnmarshalFromFunc(func(dec *jsontext.Decoder, v *A) error {
		if dec.PeekKind() != '[' {
			return json.SkipFunc
		}
		arr, err := decodeArray(dec)
		if err != nil {
			return err
		}
		*v = arr
		return nil
	})
}

// decodeObject decodes a JSON object into a D. Member values are decoded as
// any, so nested objects and arrays come back through unmarshalValue.
func decodeObject(dec *jsontext.Decoder) (D, error) {
	if _, err := dec.ReadToken(); err != nil { // '{'
		return nil, fmt.Errorf("read object open: %w", err)
	}
	res := D{}
	for dec.PeekKind() != '}' {
		var k string
		if err := json.UnmarshalDecode(dec, &k); err != nil {
			return nil, fmt.Errorf("read object key: %w", err)
		}
		var vv any
		if err := json.UnmarshalDecode(dec, &vv); err != nil {
			return nil, fmt.Errorf("read object value for key %q: %w", k, err)
		}
		res = append(res, E{Key: k, Value: vv})
	}
	if _, err := dec.ReadToken(); err != nil { // '}'
		return nil, fmt.Errorf("read object close: %w", err)
	}
	return res, nil
}

// decodeArray decodes a JSON array into A.
func decodeArray(dec *jsontext.Decoder) (A, error) {
	if _, err := dec.ReadToken(); err != nil { // '['
		return nil, fmt.Errorf("read array open: %w", err)
	}
	arr := A{}
	for dec.PeekKind() != ']' {
		var elem any
		if err := json.UnmarshalDecode(dec, &elem); err != nil {
			return nil, fmt.Errorf("read array element: %w", err)
		}
		arr = append(arr, elem)
	}
	if _, err := dec.ReadToken(); err != nil { // ']'
		return nil, fmt.Errorf("read array close: %w", err)
	}
	return arr, nil
}
