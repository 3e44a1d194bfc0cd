package expr

import (
	"encoding/json"
	"strconv"

	"github.com/evalgo/eve-build/expr/exhash"
)

// None is the unit / missing value. The zero value is ready to use; there
// is exactly one logical None, but equality is by hash so distinct
// instances still compare equal.
type NoneValue struct {
	memo
}

// None returns the unit value.
func None() Value { return &NoneValue{} }

func (n *NoneValue) Kind() Kind         { return KindNone }
func (n *NoneValue) TypeString() string { return "none" }
func (n *NoneValue) IsCacheable() bool  { return true }
func (n *NoneValue) Equal(o Value) bool { return equalByHash(n, o) }

func (n *NoneValue) ToHash() exhash.Digest {
	return n.getHash(func() exhash.Digest { return hashScalarJSON([]byte("null")) })
}
func (n *NoneValue) ToIdentifier() string { return n.ToHash().String() }

func (n *NoneValue) ToJSON(JSONMode) ([]byte, error) { return []byte("null"), nil }
func (n *NoneValue) ToString() string                { return "null" }
func (n *NoneValue) ToAbbrevString(limit int) string { return toAbbrev("null", limit) }

// BoolValue is the two-valued truth variant.
type BoolValue struct {
	memo
	V bool
}

func Bool(v bool) Value { return &BoolValue{V: v} }

func (b *BoolValue) Kind() Kind         { return KindBool }
func (b *BoolValue) TypeString() string { return "bool" }
func (b *BoolValue) IsCacheable() bool  { return true }
func (b *BoolValue) Equal(o Value) bool { return equalByHash(b, o) }

func (b *BoolValue) ToHash() exhash.Digest {
	return b.getHash(func() exhash.Digest {
		data, _ := json.Marshal(b.V)
		return hashScalarJSON(data)
	})
}
func (b *BoolValue) ToIdentifier() string { return b.ToHash().String() }

func (b *BoolValue) ToJSON(JSONMode) ([]byte, error) { return json.Marshal(b.V) }
func (b *BoolValue) ToString() string                { return strconv.FormatBool(b.V) }
func (b *BoolValue) ToAbbrevString(limit int) string { return toAbbrev(b.ToString(), limit) }

// NumberValue is a double-precision floating point scalar.
type NumberValue struct {
	memo
	V float64
}

func Number(v float64) Value { return &NumberValue{V: v} }

func (n *NumberValue) Kind() Kind         { return KindNumber }
func (n *NumberValue) TypeString() string { return "number" }
func (n *NumberValue) IsCacheable() bool  { return true }
func (n *NumberValue) Equal(o Value) bool { return equalByHash(n, o) }

func (n *NumberValue) ToHash() exhash.Digest {
	return n.getHash(func() exhash.Digest {
		data, _ := json.Marshal(n.V)
		return hashScalarJSON(data)
	})
}
func (n *NumberValue) ToIdentifier() string { return n.ToHash().String() }

func (n *NumberValue) ToJSON(JSONMode) ([]byte, error) { return json.Marshal(n.V) }
func (n *NumberValue) ToString() string                { data, _ := json.Marshal(n.V); return string(data) }
func (n *NumberValue) ToAbbrevString(limit int) string { return toAbbrev(n.ToString(), limit) }

// StringValue is a UTF-8 string scalar.
type StringValue struct {
	memo
	V string
}

func String(v string) Value { return &StringValue{V: v} }

func (s *StringValue) Kind() Kind         { return KindString }
func (s *StringValue) TypeString() string { return "string" }
func (s *StringValue) IsCacheable() bool  { return true }
func (s *StringValue) Equal(o Value) bool { return equalByHash(s, o) }

func (s *StringValue) ToHash() exhash.Digest {
	return s.getHash(func() exhash.Digest {
		data, _ := json.Marshal(s.V)
		return hashScalarJSON(data)
	})
}
func (s *StringValue) ToIdentifier() string { return s.ToHash().String() }

func (s *StringValue) ToJSON(JSONMode) ([]byte, error) { return json.Marshal(s.V) }
func (s *StringValue) ToString() string                { data, _ := json.Marshal(s.V); return string(data) }
func (s *StringValue) ToAbbrevString(limit int) string { return toAbbrev(s.ToString(), limit) }

// Type-checked access to a Value's payload lives in expr/eval
// (requireString, requireList), which reports a type mismatch as an
// error rather than a panic.

// Truthy implements the value-truthiness coercion rule from §4.6: none is
// false; bool is itself; number is nonzero; string/list/map are
// non-empty; every other value is true.
func Truthy(v Value) bool {
	switch t := v.(type) {
	case *NoneValue:
		return false
	case *BoolValue:
		return t.V
	case *NumberValue:
		return t.V != 0
	case *StringValue:
		return t.V != ""
	case *ListValue:
		return len(t.Items) != 0
	case *MapValue:
		return t.Map.Size() != 0
	default:
		return true
	}
}
