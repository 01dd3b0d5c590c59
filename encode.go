package jdiff

import (
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

type encodeConfig struct {
	indent string
	sorted bool
}

// EncodeOption configures Marshal.
type EncodeOption func(*encodeConfig)

// WithIndent makes Marshal emit multi-line output, indenting each nesting
// level by indent.
func WithIndent(indent string) EncodeOption {
	return func(c *encodeConfig) { c.indent = indent }
}

// WithSortedKeys makes Marshal order the members of every object by name.
func WithSortedKeys() EncodeOption {
	return func(c *encodeConfig) { c.sorted = true }
}

// Marshal encodes a canonical value as JSON. D keeps its entry order unless
// WithSortedKeys is given. Values that are not canonical are encoded with the
// default json/v2 rules; run them through Canonicalize first.
//
// Repeated keys in a D are written as they are, mirroring what a mapping with
// colliding stringified keys looks like.
func Marshal(v any, opts ...EncodeOption) ([]byte, error) {
	var cfg encodeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sorted {
		v = sortValue(v)
	}
	jopts := []json.Options{
		json.WithMarshalers(json.JoinMarshalers(marshalDocument(), marshalNumber())),
		json.Deterministic(true),
		jsontext.AllowDuplicateNames(true),
		jsontext.AllowInvalidUTF8(true),
	}
	if cfg.indent != "" {
		jopts = append(jopts, jsontext.WithIndent(cfg.indent))
	}
	return json.Marshal(v, jopts...)
}

// marshalDocument writes a D as a JSON object in entry order.
func marshalDocument() *json.Marshalers {
	return json.MarshalToFunc(func(enc *jsontext.Encoder, d D) error {
		if err := enc.WriteToken(jsontext.BeginObject); err != nil {
			return err
		}
		for _, e := range d {
			if err := enc.WriteToken(jsontext.String(e.Key)); err != nil {
				return err
			}
			if err := json.MarshalEncode(enc, e.Value); err != nil {
				return err
			}
		}
		return enc.WriteToken(jsontext.EndObject)
	})
}

// marshalNumber writes a Number as the literal it was decoded from.
func marshalNumber() *json.Marshalers {
	return json.MarshalToFunc(func(enc *jsontext.Encoder, n Number) error {
		return enc.WriteValue(jsontext.Value(n))
	})
}
