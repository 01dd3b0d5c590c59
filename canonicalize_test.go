package jdiff

import (
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/url"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/cockroachdb/apd/v2"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inner struct {
	C string `json:"c"`
}

type outer struct {
	A int     `json:"a"`
	B []inner `json:"b"`
}

type color string

const red color = "red"

type priority int

type payload string

type level struct{ n int }

func (l level) EnumValue() any {
	if l.n > 5 {
		return "high"
	}
	return "low"
}

// session is opaque: it has no exported fields, so it is not a record.
type session struct{ attrs map[string]any }

func (s session) Attributes() map[string]any { return s.attrs }

type recordWithAttrs struct {
	Name   string
	hidden int
}

func (recordWithAttrs) Attributes() map[string]any { return map[string]any{"other": 1} }

type model struct{ fields map[string]any }

func (m model) ModelDump() any { return m.fields }

type legacyModel struct{ fields map[string]any }

func (m legacyModel) Dict() map[string]any { return m.fields }

type dualModel struct{ id int }

func (dualModel) ModelDump() any       { return "dump" }
func (dualModel) Dict() map[string]any { return map[string]any{"dict": true} }

type ptrModel struct{ v int }

func (m *ptrModel) ModelDump() any { return map[string]any{"v": m.v} }

type legacyMap map[string]int

// account is a validated model: its exported fields are raw input and its
// dump is the normalized view.
type account struct {
	Name   string
	secret string
}

func (a account) ModelDump() any {
	return map[string]any{"name": a.Name, "dumped": true}
}

type ptrAccount struct {
	Name string
}

func (a *ptrAccount) ModelDump() any { return map[string]any{"name": a.Name} }

type legacyAccount struct {
	Name string
}

func (a legacyAccount) Dict() map[string]any { return map[string]any{"legacy": a.Name} }

type outerWith struct {
	Owner account      `json:"owner"`
	Items []ptrAccount `json:"items"`
}

type withAccount struct {
	account
	ID int `json:"id"`
}

type audit struct {
	Actor string `json:"actor"`
}

type withHiddenAudit struct {
	audit
	Name string `json:"name"`
}

type withHiddenAuditPtr struct {
	*audit
	Name string `json:"name"`
}

type hiddenCount int

type withHiddenScalar struct {
	hiddenCount
	Name string `json:"name"`
}

func (legacyMap) Dict() map[string]any { return map[string]any{"legacy": true} }

type Base struct {
	ID int `json:"id"`
}

type withBase struct {
	Base
	Name string `json:"name"`
}

type withTaggedBase struct {
	Base `json:"base"`
	Name string `json:"name"`
}

type withPtrBase struct {
	*Base
	Name string `json:"name"`
}

type tagged struct {
	Kept    string `json:"kept,omitempty"`
	Skipped string `json:"-"`
	Plain   bool
	private string
}

type opaqueStringer struct{ id int }

func (o opaqueStringer) String() string { return fmt.Sprintf("opaque-%d", o.id) }

type opaqueText struct{ v string }

func (o opaqueText) MarshalText() ([]byte, error) { return []byte("text:" + o.v), nil }

type opaqueErr struct{ msg string }

func (e opaqueErr) Error() string { return e.msg }

type node struct {
	Name string
	Next *node
}

func mustDecimal(t *testing.T, s string) *apd.Decimal {
	t.Helper()
	d, _, err := apd.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestCanonicalize_Primitives(t *testing.T) {
	t.Run("primitives pass through unchanged", func(t *testing.T) {
		for _, v := range []any{1, int64(-7), uint8(3), 2.5, float32(1.5), true, false, "plain ascii"} {
			require.Equal(t, v, Canonicalize(v))
		}
	})

	t.Run("nil is null", func(t *testing.T) {
		require.Nil(t, Canonicalize(nil))
	})

	t.Run("nil pointer is null", func(t *testing.T) {
		var p *inner
		require.Nil(t, Canonicalize(p))
	})

	t.Run("pointer to primitive is dereferenced", func(t *testing.T) {
		n := 42
		require.Equal(t, 42, Canonicalize(&n))
	})
}

func TestCanonicalize_Collections(t *testing.T) {
	t.Run("slice round trips", func(t *testing.T) {
		require.Equal(t, A{1, "a", 2.5}, Canonicalize([]any{1, "a", 2.5}))
	})

	t.Run("string keyed map round trips", func(t *testing.T) {
		require.Equal(t, D{{Key: "k", Value: 1}}, Canonicalize(map[string]any{"k": 1}))
	})

	t.Run("array is a sequence", func(t *testing.T) {
		require.Equal(t, A{1, 2}, Canonicalize([2]int{1, 2}))
	})

	t.Run("nil slice and nil map are empty", func(t *testing.T) {
		require.Equal(t, A{}, Canonicalize([]int(nil)))
		require.Equal(t, D{}, Canonicalize(map[string]int(nil)))
	})

	t.Run("map entries are ordered by key", func(t *testing.T) {
		got := Canonicalize(map[string]int{"b": 2, "c": 3, "a": 1})
		require.Equal(t, D{{Key: "a", Value: 1}, {Key: "b", Value: 2}, {Key: "c", Value: 3}}, got)
	})

	t.Run("non string keys are stringified", func(t *testing.T) {
		require.Equal(t, D{{Key: "1", Value: "a"}, {Key: "2", Value: "b"}}, Canonicalize(map[int]string{2: "b", 1: "a"}))
		require.Equal(t, D{{Key: "true", Value: 1}}, Canonicalize(map[bool]int{true: 1}))
	})

	t.Run("struct keys become compact json", func(t *testing.T) {
		got := Canonicalize(map[inner]int{{C: "x"}: 1})
		require.Equal(t, D{{Key: `{"c":"x"}`, Value: 1}}, got)
	})

	t.Run("keys are canonicalized before stringifying", func(t *testing.T) {
		got := Canonicalize(map[color]int{red: 1})
		require.Equal(t, D{{Key: "red", Value: 1}}, got)
	})

	t.Run("set becomes ordered sequence", func(t *testing.T) {
		got := Canonicalize(map[string]struct{}{"b": {}, "a": {}, "c": {}})
		require.Equal(t, A{"a", "b", "c"}, got)
	})

	t.Run("d input keeps order and canonicalizes values", func(t *testing.T) {
		in := D{{Key: "z", Value: red}, {Key: "a", Value: []int{1}}}
		require.Equal(t, D{{Key: "z", Value: "red"}, {Key: "a", Value: A{1}}}, Canonicalize(in))
	})

	t.Run("canonical trees are stable", func(t *testing.T) {
		once := Canonicalize(outer{A: 1, B: []inner{{C: "x"}}})
		require.Equal(t, once, Canonicalize(once))
	})
}

func TestCanonicalize_Records(t *testing.T) {
	t.Run("nested records", func(t *testing.T) {
		got := Canonicalize(outer{A: 1, B: []inner{{C: "x"}}})
		want := D{
			{Key: "a", Value: 1},
			{Key: "b", Value: A{D{{Key: "c", Value: "x"}}}},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("Canonicalize() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("pointer to record", func(t *testing.T) {
		require.Equal(t, D{{Key: "c", Value: "y"}}, Canonicalize(&inner{C: "y"}))
	})

	t.Run("json tags rename and skip fields", func(t *testing.T) {
		got := Canonicalize(tagged{Kept: "k", Skipped: "s", Plain: true, private: "p"})
		require.Equal(t, D{{Key: "kept", Value: "k"}, {Key: "Plain", Value: true}}, got)
	})

	t.Run("embedded struct is flattened", func(t *testing.T) {
		got := Canonicalize(withBase{Base: Base{ID: 1}, Name: "x"})
		require.Equal(t, D{{Key: "id", Value: 1}, {Key: "name", Value: "x"}}, got)
	})

	t.Run("tagged embedded struct is nested", func(t *testing.T) {
		got := Canonicalize(withTaggedBase{Base: Base{ID: 1}, Name: "x"})
		require.Equal(t, D{{Key: "base", Value: D{{Key: "id", Value: 1}}}, {Key: "name", Value: "x"}}, got)
	})

	t.Run("embedded pointer is flattened and nil contributes nothing", func(t *testing.T) {
		got := Canonicalize(withPtrBase{Base: &Base{ID: 2}, Name: "x"})
		require.Equal(t, D{{Key: "id", Value: 2}, {Key: "name", Value: "x"}}, got)

		got = Canonicalize(withPtrBase{Name: "x"})
		require.Equal(t, D{{Key: "name", Value: "x"}}, got)
	})

	t.Run("unexported embedded struct promotes its fields", func(t *testing.T) {
		got := Canonicalize(withHiddenAudit{audit: audit{Actor: "bob"}, Name: "x"})
		require.Equal(t, D{{Key: "actor", Value: "bob"}, {Key: "name", Value: "x"}}, got)
	})

	t.Run("unexported embedded pointer promotes its fields", func(t *testing.T) {
		got := Canonicalize(withHiddenAuditPtr{audit: &audit{Actor: "amy"}, Name: "x"})
		require.Equal(t, D{{Key: "actor", Value: "amy"}, {Key: "name", Value: "x"}}, got)

		got = Canonicalize(withHiddenAuditPtr{Name: "x"})
		require.Equal(t, D{{Key: "name", Value: "x"}}, got)
	})

	t.Run("unexported embedded non struct is skipped", func(t *testing.T) {
		got := Canonicalize(withHiddenScalar{hiddenCount: 3, Name: "x"})
		require.Equal(t, D{{Key: "name", Value: "x"}}, got)
	})

	t.Run("embedded model promotes its dump", func(t *testing.T) {
		got := Canonicalize(withAccount{account: account{Name: "a"}, ID: 1})
		require.Equal(t, D{{Key: "dumped", Value: true}, {Key: "name", Value: "a"}}, got)
	})

	t.Run("empty struct is an empty mapping", func(t *testing.T) {
		require.Equal(t, D{}, Canonicalize(struct{}{}))
	})

	t.Run("record wins over attributes", func(t *testing.T) {
		got := Canonicalize(recordWithAttrs{Name: "n", hidden: 3})
		require.Equal(t, D{{Key: "Name", Value: "n"}}, got)
	})
}

func TestCanonicalize_Models(t *testing.T) {
	t.Run("model dump is canonicalized", func(t *testing.T) {
		got := Canonicalize(model{fields: map[string]any{"b": red, "a": 1}})
		require.Equal(t, D{{Key: "a", Value: 1}, {Key: "b", Value: "red"}}, got)
	})

	t.Run("nested model of models", func(t *testing.T) {
		m := model{fields: map[string]any{"child": model{fields: map[string]any{"x": 1}}}}
		require.Equal(t, D{{Key: "child", Value: D{{Key: "x", Value: 1}}}}, Canonicalize(m))
	})

	t.Run("legacy dict is used", func(t *testing.T) {
		got := Canonicalize(legacyModel{fields: map[string]any{"k": "v"}})
		require.Equal(t, D{{Key: "k", Value: "v"}}, got)
	})

	t.Run("dump wins over dict", func(t *testing.T) {
		require.Equal(t, "dump", Canonicalize(dualModel{}))
	})

	t.Run("pointer receiver dump is found", func(t *testing.T) {
		require.Equal(t, D{{Key: "v", Value: 7}}, Canonicalize(&ptrModel{v: 7}))
	})

	t.Run("dump wins over exported fields", func(t *testing.T) {
		got := Canonicalize(account{Name: "x", secret: "s"})
		require.Equal(t, D{{Key: "dumped", Value: true}, {Key: "name", Value: "x"}}, got)
	})

	t.Run("pointer receiver dump wins over exported fields", func(t *testing.T) {
		require.Equal(t, D{{Key: "name", Value: "p"}}, Canonicalize(&ptrAccount{Name: "p"}))
		require.Equal(t, D{{Key: "name", Value: "v"}}, Canonicalize(ptrAccount{Name: "v"}))
	})

	t.Run("dict wins over exported fields", func(t *testing.T) {
		require.Equal(t, D{{Key: "legacy", Value: "l"}}, Canonicalize(legacyAccount{Name: "l"}))
	})

	t.Run("models inside records use their dump", func(t *testing.T) {
		got := Canonicalize(outerWith{Owner: account{Name: "o"}, Items: []ptrAccount{{Name: "i"}}})
		want := D{
			{Key: "owner", Value: D{{Key: "dumped", Value: true}, {Key: "name", Value: "o"}}},
			{Key: "items", Value: A{D{{Key: "name", Value: "i"}}}},
		}
		require.Equal(t, want, got)
	})

	t.Run("dict wins over mapping", func(t *testing.T) {
		require.Equal(t, D{{Key: "legacy", Value: true}}, Canonicalize(legacyMap{"a": 1}))
	})
}

func TestCanonicalize_Enums(t *testing.T) {
	t.Run("named string yields stored value", func(t *testing.T) {
		got := Canonicalize(red)
		require.Equal(t, "red", got)
		require.IsType(t, "", got)
	})

	t.Run("named int yields builtin int", func(t *testing.T) {
		got := Canonicalize(priority(3))
		require.Equal(t, 3, got)
	})

	t.Run("enum interface value is used", func(t *testing.T) {
		require.Equal(t, "high", Canonicalize(level{n: 9}))
		require.Equal(t, "low", Canonicalize(level{n: 1}))
	})

	t.Run("stored value is treated as fresh input", func(t *testing.T) {
		got := Canonicalize(payload(`{"a": 1}`))
		require.Equal(t, D{{Key: "a", Value: int64(1)}}, got)
	})
}

func TestCanonicalize_Dates(t *testing.T) {
	t.Run("time is rfc3339 and parses back", func(t *testing.T) {
		ts := time.Date(2024, 1, 2, 3, 4, 5, 123456789, time.FixedZone("X", 2*3600))
		got := Canonicalize(ts)
		require.Equal(t, "2024-01-02T03:04:05.123456789+02:00", got)

		back, err := time.Parse(time.RFC3339Nano, got.(string))
		require.NoError(t, err)
		require.True(t, ts.Equal(back))
	})

	t.Run("pointer to time", func(t *testing.T) {
		ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
		require.Equal(t, "2024-01-02T00:00:00Z", Canonicalize(&ts))
	})

	t.Run("civil date and datetime", func(t *testing.T) {
		d := civil.Date{Year: 2024, Month: time.March, Day: 9}
		require.Equal(t, "2024-03-09", Canonicalize(d))

		dt := civil.DateTime{Date: d, Time: civil.Time{Hour: 10, Minute: 30}}
		require.Equal(t, "2024-03-09T10:30:00", Canonicalize(dt))
	})

	t.Run("civil time falls back to text", func(t *testing.T) {
		require.Equal(t, "07:08:09", Canonicalize(civil.Time{Hour: 7, Minute: 8, Second: 9}))
	})

	t.Run("time inside record", func(t *testing.T) {
		type event struct {
			At time.Time `json:"at"`
		}
		got := Canonicalize(event{At: time.Date(2020, 5, 6, 7, 8, 9, 0, time.UTC)})
		require.Equal(t, D{{Key: "at", Value: "2020-05-06T07:08:09Z"}}, got)
	})
}

func TestCanonicalize_Decimals(t *testing.T) {
	t.Run("decimal keeps exact digits", func(t *testing.T) {
		require.Equal(t, "10.005", Canonicalize(mustDecimal(t, "10.005")))
	})

	t.Run("decimal by value", func(t *testing.T) {
		require.Equal(t, "0.1", Canonicalize(*mustDecimal(t, "0.1")))
	})

	t.Run("decimal in record is not split into fields", func(t *testing.T) {
		type price struct {
			Amount *apd.Decimal `json:"amount"`
		}
		got := Canonicalize(price{Amount: mustDecimal(t, "19.99")})
		require.Equal(t, D{{Key: "amount", Value: "19.99"}}, got)
	})

	t.Run("big numbers are exact strings", func(t *testing.T) {
		i, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
		require.True(t, ok)
		require.Equal(t, "123456789012345678901234567890", Canonicalize(i))

		require.Equal(t, "1/3", Canonicalize(big.NewRat(1, 3)))
		require.Equal(t, "2.5", Canonicalize(big.NewFloat(2.5)))
	})
}

func TestCanonicalize_Attributes(t *testing.T) {
	t.Run("underscore attributes are excluded", func(t *testing.T) {
		got := Canonicalize(session{attrs: map[string]any{"x": 1, "_y": 2}})
		require.Equal(t, D{{Key: "x", Value: 1}}, got)
	})

	t.Run("attribute values are canonicalized", func(t *testing.T) {
		got := Canonicalize(session{attrs: map[string]any{"c": red, "b": []priority{1}}})
		require.Equal(t, D{{Key: "b", Value: A{1}}, {Key: "c", Value: "red"}}, got)
	})
}

func TestCanonicalize_Strings(t *testing.T) {
	t.Run("json object text is decoded", func(t *testing.T) {
		require.Equal(t, D{{Key: "a", Value: int64(1)}}, Canonicalize(`{"a": 1}`))
	})

	t.Run("json array text with whitespace is decoded", func(t *testing.T) {
		require.Equal(t, A{int64(1), "x"}, Canonicalize("  [1, \"x\"]\n"))
	})

	t.Run("decoded objects keep member order", func(t *testing.T) {
		got := Canonicalize(`{"z": 1, "a": {"y": 2, "b": 3}}`)
		want := D{{Key: "z", Value: int64(1)}, {Key: "a", Value: D{{Key: "y", Value: int64(2)}, {Key: "b", Value: int64(3)}}}}
		require.Equal(t, want, got)
	})

	t.Run("decoded integers keep every digit", func(t *testing.T) {
		got := Canonicalize(`{"id": 12345678901234567891, "n": [9007199254740993]}`)
		b, err := Marshal(got)
		require.NoError(t, err)
		require.Equal(t, `{"id":12345678901234567891,"n":[9007199254740993]}`, string(b))
	})

	t.Run("ids differing past float precision stay distinct", func(t *testing.T) {
		require.NotEqual(t, Canonicalize(`[9007199254740992]`), Canonicalize(`[9007199254740993]`))
	})

	t.Run("number literal is kept", func(t *testing.T) {
		require.Equal(t, Number("123456789012345678901234"), Canonicalize(Number("123456789012345678901234")))
	})

	t.Run("malformed json is kept", func(t *testing.T) {
		require.Equal(t, "{not json", Canonicalize("{not json"))
	})

	t.Run("trailing data is kept", func(t *testing.T) {
		require.Equal(t, `{"a":1} tail`, Canonicalize(`{"a":1} tail`))
	})

	t.Run("json scalars are not decoded", func(t *testing.T) {
		require.Equal(t, "42", Canonicalize("42"))
		require.Equal(t, `"quoted"`, Canonicalize(`"quoted"`))
	})

	t.Run("byte strings are read as text", func(t *testing.T) {
		require.Equal(t, D{{Key: "k", Value: "v"}}, Canonicalize([]byte(`{"k":"v"}`)))
		require.Equal(t, "raw", Canonicalize([]byte("raw")))
		require.Equal(t, A{true}, Canonicalize(jsontext.Value(`[true]`)))
	})
}

func TestCanonicalize_Fallback(t *testing.T) {
	t.Run("stringer", func(t *testing.T) {
		require.Equal(t, "opaque-1", Canonicalize(opaqueStringer{id: 1}))
	})

	t.Run("text marshaler wins over stringer", func(t *testing.T) {
		require.Equal(t, "text:v", Canonicalize(opaqueText{v: "v"}))
	})

	t.Run("error", func(t *testing.T) {
		require.Equal(t, "boom", Canonicalize(opaqueErr{msg: "boom"}))
	})

	t.Run("anything else is printed", func(t *testing.T) {
		require.Equal(t, "(1+2i)", Canonicalize(complex(1, 2)))
	})
}

func TestCanonicalize_Stdlib(t *testing.T) {
	t.Run("default canonicalizer applies stdlib hooks", func(t *testing.T) {
		u, err := url.Parse("https://example.com/x?y=1")
		require.NoError(t, err)

		require.Equal(t, "1m30s", Canonicalize(90*time.Second))
		require.Equal(t, "10.0.0.1", Canonicalize(net.ParseIP("10.0.0.1")))
		require.Equal(t, "https://example.com/x?y=1", Canonicalize(u))
		require.Equal(t, "UTC", Canonicalize(time.UTC))
	})

	t.Run("bare canonicalizer treats duration as its integer value", func(t *testing.T) {
		c, err := New()
		require.NoError(t, err)
		got, err := c.Canonicalize(2 * time.Nanosecond)
		require.NoError(t, err)
		require.Equal(t, int64(2), got)
	})
}

func TestCanonicalizer_Hooks(t *testing.T) {
	type money struct {
		Cents int64
	}

	t.Run("hook runs before record rule", func(t *testing.T) {
		c, err := New(WithRegistrations(NewEncoder(func(m money) string {
			return fmt.Sprintf("$%d.%02d", m.Cents/100, m.Cents%100)
		})))
		require.NoError(t, err)

		got, err := c.Canonicalize(D{{Key: "total", Value: &money{Cents: 1250}}})
		require.NoError(t, err)
		require.Equal(t, D{{Key: "total", Value: "$12.50"}}, got)
	})

	t.Run("hook result is canonicalized", func(t *testing.T) {
		c, err := New(WithRegistrations(NewEncoder(func(m money) map[string]color {
			return map[string]color{"currency": "usd"}
		})))
		require.NoError(t, err)

		got, err := c.Canonicalize(money{})
		require.NoError(t, err)
		require.Equal(t, D{{Key: "currency", Value: "usd"}}, got)
	})

	t.Run("nil pointer skips pointer hook", func(t *testing.T) {
		c, err := New(WithRegistrations(NewEncoder(func(m *money) string {
			return fmt.Sprintf("%d cents", m.Cents)
		})))
		require.NoError(t, err)

		got, err := c.Canonicalize(D{{Key: "none", Value: (*money)(nil)}, {Key: "some", Value: &money{Cents: 5}}})
		require.NoError(t, err)
		require.Equal(t, D{{Key: "none", Value: nil}, {Key: "some", Value: "5 cents"}}, got)
	})

	t.Run("registration error fails construction", func(t *testing.T) {
		_, err := New(WithRegistrations(Registration(func(*Registry) error { return assert.AnError })))
		require.ErrorIs(t, err, assert.AnError)
	})

	t.Run("func drops errors", func(t *testing.T) {
		c, err := New()
		require.NoError(t, err)
		require.Equal(t, A{1}, c.Func()([]int{1}))
	})
}

func TestCanonicalizer_Cycles(t *testing.T) {
	c, err := New(WithCycleDetection())
	require.NoError(t, err)

	t.Run("self referencing pointer", func(t *testing.T) {
		n := &node{Name: "a"}
		n.Next = n
		_, err := c.Canonicalize(n)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrCycle))
		assert.Contains(t, err.Error(), "Next")
	})

	t.Run("indirect cycle", func(t *testing.T) {
		a := &node{Name: "a"}
		b := &node{Name: "b", Next: a}
		a.Next = b
		_, err := c.Canonicalize(a)
		require.ErrorIs(t, err, ErrCycle)
	})

	t.Run("self containing map", func(t *testing.T) {
		m := map[string]any{}
		m["self"] = m
		_, err := c.Canonicalize(m)
		require.ErrorIs(t, err, ErrCycle)
	})

	t.Run("shared reference is not a cycle", func(t *testing.T) {
		shared := &inner{C: "s"}
		got, err := c.Canonicalize([]*inner{shared, shared})
		require.NoError(t, err)
		require.Equal(t, A{D{{Key: "c", Value: "s"}}, D{{Key: "c", Value: "s"}}}, got)
	})

	t.Run("acyclic chain", func(t *testing.T) {
		got, err := c.Canonicalize(&node{Name: "a", Next: &node{Name: "b"}})
		require.NoError(t, err)
		want := D{
			{Key: "Name", Value: "a"},
			{Key: "Next", Value: D{{Key: "Name", Value: "b"}, {Key: "Next", Value: nil}}},
		}
		require.Equal(t, want, got)
	})
}
