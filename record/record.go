package record

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"
	"unique"
)

// Record holds the attribute values of one stored entity.
type Record map[string]Value

// Get returns the value of attribute, or null if absent.
func (r Record) Get(attribute string) Value {
	if v, ok := r[attribute]; ok {
		return v
	}
	return Null()
}

// Clone creates a deep copy.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	c := make(Record, len(r))
	for k, v := range r {
		c[k] = v.clone()
	}
	return c
}

// MarshalBinary implements encoding.BinaryMarshaler. Attributes are written
// in name order so equal records encode identically.
func (r Record) MarshalBinary() ([]byte, error) {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	buf := make([]byte, 0, 4+len(r)*16)
	buf = binary.AppendUvarint(buf, uint64(len(r)))
	for _, k := range keys {
		buf = binary.AppendUvarint(buf, uint64(len(k)))
		buf = append(buf, k...)

		var err error
		if buf, err = AppendValue(buf, r[k]); err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
	}
	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (r *Record) UnmarshalBinary(data []byte) error {
	count, n := binary.Uvarint(data)
	if n <= 0 {
		return errors.New("invalid record length")
	}
	data = data[n:]

	if *r == nil {
		*r = make(Record, count)
	}
	for range count {
		kLen, n := binary.Uvarint(data)
		if n <= 0 {
			return errors.New("invalid attribute name length")
		}
		data = data[n:]
		if uint64(len(data)) < kLen {
			return errors.New("short buffer for attribute name")
		}
		key := string(data[:kLen])
		data = data[kLen:]

		v, rest, err := ParseValue(data)
		if err != nil {
			return fmt.Errorf("attribute %q: %w", key, err)
		}
		(*r)[key] = v
		data = rest
	}
	return nil
}

// AppendValue appends the binary encoding of v to buf.
func AppendValue(buf []byte, v Value) ([]byte, error) {
	buf = append(buf, byte(v.Kind))

	switch v.Kind {
	case KindNull:
	case KindInt:
		buf = binary.AppendVarint(buf, v.I64)
	case KindFloat:
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.F64))
	case KindString:
		s := v.s.Value()
		buf = binary.AppendUvarint(buf, uint64(len(s)))
		buf = append(buf, s...)
	case KindBool:
		if v.B {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case KindArray:
		buf = binary.AppendUvarint(buf, uint64(len(v.A)))
		for _, item := range v.A {
			var err error
			if buf, err = AppendValue(buf, item); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.Kind)
	}
	return buf, nil
}

// ParseValue decodes one value and returns the remaining bytes.
func ParseValue(data []byte) (Value, []byte, error) {
	if len(data) == 0 {
		return Value{}, nil, errors.New("short buffer for value kind")
	}
	v := Value{Kind: Kind(data[0])}
	data = data[1:]

	switch v.Kind {
	case KindNull:
	case KindInt:
		i, n := binary.Varint(data)
		if n <= 0 {
			return v, nil, errors.New("invalid int value")
		}
		v.I64 = i
		data = data[n:]
	case KindFloat:
		if len(data) < 8 {
			return v, nil, errors.New("short buffer for float")
		}
		v.F64 = math.Float64frombits(binary.LittleEndian.Uint64(data))
		data = data[8:]
	case KindString:
		sLen, n := binary.Uvarint(data)
		if n <= 0 {
			return v, nil, errors.New("invalid string length")
		}
		data = data[n:]
		if uint64(len(data)) < sLen {
			return v, nil, errors.New("short buffer for string")
		}
		v.s = unique.Make(string(data[:sLen]))
		data = data[sLen:]
	case KindBool:
		if len(data) == 0 {
			return v, nil, errors.New("short buffer for bool")
		}
		v.B = data[0] != 0
		data = data[1:]
	case KindArray:
		aLen, n := binary.Uvarint(data)
		if n <= 0 {
			return v, nil, errors.New("invalid array length")
		}
		data = data[n:]
		if aLen > uint64(len(data)) {
			return v, nil, errors.New("short buffer for array")
		}
		v.A = make([]Value, aLen)
		for i := range aLen {
			item, rest, err := ParseValue(data)
			if err != nil {
				return v, nil, err
			}
			v.A[i] = item
			data = rest
		}
	default:
		return v, nil, fmt.Errorf("unknown value kind %d", v.Kind)
	}
	return v, data, nil
}
