// Package value implements the tagged, order-preserving document value
// that flows from the wire (JSON/MsgPack) into the schema walk and back out
// as stored data.
package value

import "fmt"

// Kind identifies which variant a Value currently holds.
type Kind int

const (
	KindNil Kind = iota
	KindBool
	KindIntS
	KindIntU
	KindFloat
	KindString
	KindBytes
	KindArray
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindIntS:
		return "int"
	case KindIntU:
		return "uint"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a recursive tagged value: Nil, Bool, IntS, IntU, Float, String,
// Bytes, Array or Map. Only one of the fields is meaningful, selected by
// Kind. Map preserves key insertion order via *OrderedMap, since the schema
// tree itself is represented with this type and relies on ordered iteration.
type Value struct {
	kind Kind
	b    bool
	i    int64
	u    uint64
	f    float64
	s    string
	by   []byte
	arr  []Value
	m    *OrderedMap
}

func Nil() Value                 { return Value{kind: KindNil} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func IntS(i int64) Value         { return Value{kind: KindIntS, i: i} }
func IntU(u uint64) Value        { return Value{kind: KindIntU, u: u} }
func Float(f float64) Value      { return Value{kind: KindFloat, f: f} }
func String(s string) Value      { return Value{kind: KindString, s: s} }
func Bytes(b []byte) Value       { return Value{kind: KindBytes, by: b} }
func Array(vs []Value) Value     { return Value{kind: KindArray, arr: vs} }
func Map(m *OrderedMap) Value    { return Value{kind: KindMap, m: m} }
func NewMap() Value              { return Value{kind: KindMap, m: NewOrderedMap()} }

func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsNil() bool   { return v.kind == KindNil }

func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) IntS() (int64, bool) {
	switch v.kind {
	case KindIntS:
		return v.i, true
	case KindIntU:
		return int64(v.u), true
	}
	return 0, false
}

func (v Value) IntU() (uint64, bool) {
	switch v.kind {
	case KindIntU:
		return v.u, true
	case KindIntS:
		return uint64(v.i), true
	}
	return 0, false
}

func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindIntS:
		return float64(v.i), true
	case KindIntU:
		return float64(v.u), true
	}
	return 0, false
}

func (v Value) String() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

func (v Value) Bytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.by, true
}

func (v Value) Array() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

func (v Value) Map() (*OrderedMap, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return v.m, true
}

// AsNumber coerces any numeric-kinded value to a float64, for range
// comparisons and accuracy bucketing.
func (v Value) AsNumber() (float64, error) {
	switch v.kind {
	case KindIntS:
		return float64(v.i), nil
	case KindIntU:
		return float64(v.u), nil
	case KindFloat:
		return v.f, nil
	}
	return 0, fmt.Errorf("value: kind %s is not numeric", v.kind)
}

// Equal reports deep structural equality, used by idempotence and
// round-trip tests.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNil:
		return true
	case KindBool:
		return a.b == b.b
	case KindIntS:
		return a.i == b.i
	case KindIntU:
		return a.u == b.u
	case KindFloat:
		return a.f == b.f
	case KindString:
		return a.s == b.s
	case KindBytes:
		if len(a.by) != len(b.by) {
			return false
		}
		for i := range a.by {
			if a.by[i] != b.by[i] {
				return false
			}
		}
		return true
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		return a.m.Equal(b.m)
	}
	return false
}
