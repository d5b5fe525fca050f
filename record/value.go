package record

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unique"
)

// Kind identifies the concrete type stored in a Value.
type Kind uint8

const (
	// KindInvalid represents an invalid kind.
	KindInvalid Kind = iota
	// KindNull represents a null value.
	KindNull
	// KindInt represents an integer value.
	KindInt
	// KindFloat represents a float value.
	KindFloat
	// KindString represents a string value.
	KindString
	// KindBool represents a boolean value.
	KindBool
	// KindArray represents an array value.
	KindArray
)

var kindNames = [...]string{"invalid", "null", "int", "float", "string", "bool", "array"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a small typed value.
//
// NOTE: The binary encoding is persisted; keep it stable.
type Value struct {
	Kind Kind
	I64  int64
	F64  float64
	s    unique.Handle[string]
	B    bool
	A    []Value
}

// Null returns a null Value.
func Null() Value { return Value{Kind: KindNull} }

// Int returns an int64 Value.
func Int(v int64) Value { return Value{Kind: KindInt, I64: v} }

// Float returns a float64 Value.
func Float(v float64) Value { return Value{Kind: KindFloat, F64: v} }

// String returns a string Value.
func String(v string) Value { return Value{Kind: KindString, s: unique.Make(v)} }

// Bool returns a boolean Value.
func Bool(v bool) Value { return Value{Kind: KindBool, B: v} }

// Array returns an array Value.
func Array(v ...Value) Value { return Value{Kind: KindArray, A: v} }

// Strings returns an array Value of strings.
func Strings(v ...string) Value {
	a := make([]Value, len(v))
	for i, s := range v {
		a[i] = String(s)
	}
	return Array(a...)
}

// Of converts a Go value into a Value. Supported: nil, Value, bool, string,
// signed and unsigned integers, float32/64 and slices of those.
func Of(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return Value{}, fmt.Errorf("record: uint64 %d overflows int64", x)
		}
		return Int(int64(x)), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case []string:
		return Strings(x...), nil
	case []Value:
		return Array(x...), nil
	case []any:
		a := make([]Value, len(x))
		for i, item := range x {
			iv, err := Of(item)
			if err != nil {
				return Value{}, err
			}
			a[i] = iv
		}
		return Array(a...), nil
	default:
		return Value{}, fmt.Errorf("record: unsupported value type %T", v)
	}
}

// IsNull reports whether v is null or unset.
func (v Value) IsNull() bool {
	return v.Kind == KindNull || v.Kind == KindInvalid
}

// IsNumber reports whether v is an int or a float.
func (v Value) IsNumber() bool {
	return v.Kind == KindInt || v.Kind == KindFloat
}

// StringValue returns the string value if Kind is KindString, otherwise empty string.
func (v Value) StringValue() string {
	if v.Kind == KindString {
		return v.s.Value()
	}
	return ""
}

// AsInt64 returns the int64 value if Kind is KindInt.
func (v Value) AsInt64() (int64, bool) {
	if v.Kind != KindInt {
		return 0, false
	}
	return v.I64, true
}

// AsFloat64 returns the numeric value of an int or float.
func (v Value) AsFloat64() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.I64), true
	case KindFloat:
		return v.F64, true
	default:
		return 0, false
	}
}

// AsString returns the string value if Kind is KindString.
func (v Value) AsString() (string, bool) {
	if v.Kind != KindString {
		return "", false
	}
	return v.s.Value(), true
}

// AsBool returns the boolean value if Kind is KindBool.
func (v Value) AsBool() (bool, bool) {
	if v.Kind != KindBool {
		return false, false
	}
	return v.B, true
}

// AsArray returns the array value if Kind is KindArray.
func (v Value) AsArray() ([]Value, bool) {
	if v.Kind != KindArray {
		return nil, false
	}
	return v.A, true
}

// Key returns a stable string representation for use as a map key and as the
// persisted identifier key. Ints and floats with the same numeric value map to
// different keys; identifiers are compared by exact kind.
func (v Value) Key() string {
	switch v.Kind {
	case KindInvalid, KindNull:
		return "null"
	case KindInt:
		return "i:" + strconv.FormatInt(v.I64, 10)
	case KindFloat:
		return "f:" + strconv.FormatUint(math.Float64bits(v.F64), 16)
	case KindString:
		return "s:" + v.s.Value()
	case KindBool:
		if v.B {
			return "b:1"
		}
		return "b:0"
	case KindArray:
		parts := make([]string, len(v.A))
		for i := range v.A {
			parts[i] = v.A[i].Key()
		}
		return "a:" + strings.Join(parts, "\x1f")
	default:
		return "invalid"
	}
}

// String renders v for diagnostics.
func (v Value) String() string {
	switch v.Kind {
	case KindInvalid, KindNull:
		return "null"
	case KindInt:
		return strconv.FormatInt(v.I64, 10)
	case KindFloat:
		return strconv.FormatFloat(v.F64, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s.Value())
	case KindBool:
		return strconv.FormatBool(v.B)
	case KindArray:
		parts := make([]string, len(v.A))
		for i := range v.A {
			parts[i] = v.A[i].String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return "invalid"
	}
}

// Equal reports whether a and b hold the same value. Ints and floats compare
// numerically; null equals only null.
func Equal(a, b Value) bool {
	if a.IsNull() || b.IsNull() {
		return a.IsNull() && b.IsNull()
	}
	if a.IsNumber() && b.IsNumber() {
		if a.Kind == KindInt && b.Kind == KindInt {
			return a.I64 == b.I64
		}
		af, _ := a.AsFloat64()
		bf, _ := b.AsFloat64()
		return af == bf
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindString:
		return a.s == b.s
	case KindBool:
		return a.B == b.B
	case KindArray:
		if len(a.A) != len(b.A) {
			return false
		}
		for i := range a.A {
			if !Equal(a.A[i], b.A[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// rank orders kinds for Compare: null < bool < number < string < array.
func rank(v Value) int {
	switch v.Kind {
	case KindInvalid, KindNull:
		return 0
	case KindBool:
		return 1
	case KindInt, KindFloat:
		return 2
	case KindString:
		return 3
	default:
		return 4
	}
}

// Compare returns -1, 0 or +1. It is a total order usable for sorting:
// values of different kinds order by kind rank, numbers compare numerically,
// strings lexically and arrays element-wise.
func Compare(a, b Value) int {
	if ra, rb := rank(a), rank(b); ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch a.Kind {
	case KindInvalid, KindNull:
		return 0
	case KindBool:
		switch {
		case a.B == b.B:
			return 0
		case !a.B:
			return -1
		default:
			return 1
		}
	case KindInt, KindFloat:
		if a.Kind == KindInt && b.Kind == KindInt {
			return cmp.Compare(a.I64, b.I64)
		}
		af, _ := a.AsFloat64()
		bf, _ := b.AsFloat64()
		return cmp.Compare(af, bf)
	case KindString:
		return strings.Compare(a.s.Value(), b.s.Value())
	default:
		for i := range min(len(a.A), len(b.A)) {
			if c := Compare(a.A[i], b.A[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(a.A), len(b.A))
	}
}

// Comparable reports whether a and b can be ordered against each other by
// the ordering operators: both numbers, both strings or both bools.
func Comparable(a, b Value) bool {
	switch {
	case a.IsNumber() && b.IsNumber():
		return true
	case a.Kind == KindString && b.Kind == KindString:
		return true
	case a.Kind == KindBool && b.Kind == KindBool:
		return true
	default:
		return false
	}
}

func (v Value) clone() Value {
	if v.Kind != KindArray || len(v.A) == 0 {
		return v
	}
	a := make([]Value, len(v.A))
	for i := range v.A {
		a[i] = v.A[i].clone()
	}
	v.A = a
	return v
}
