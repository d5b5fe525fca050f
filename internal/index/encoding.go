package index

import (
	"encoding/binary"
	"math"

	"github.com/hupe1980/refdb/record"
)

// Kind tags. Their order matches record.Compare.
const (
	tagEnd    byte = 0x00
	tagNull   byte = 0x01
	tagBool   byte = 0x02
	tagNumber byte = 0x03
	tagString byte = 0x04
	tagArray  byte = 0x05
)

// Encode appends the order-preserving encoding of v to dst.
func Encode(dst []byte, v record.Value) []byte {
	switch v.Kind {
	case record.KindBool:
		if v.B {
			return append(dst, tagBool, 1)
		}
		return append(dst, tagBool, 0)
	case record.KindInt, record.KindFloat:
		f, _ := v.AsFloat64()
		bits := math.Float64bits(f)
		if f == 0 {
			bits = 0 // -0 sorts with +0
		}
		if bits&(1<<63) != 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		dst = append(dst, tagNumber)
		return binary.BigEndian.AppendUint64(dst, bits)
	case record.KindString:
		dst = append(dst, tagString)
		s := v.StringValue()
		for i := 0; i < len(s); i++ {
			if s[i] == 0x00 {
				dst = append(dst, 0x00, 0xFF)
				continue
			}
			dst = append(dst, s[i])
		}
		return append(dst, 0x00, 0x01)
	case record.KindArray:
		dst = append(dst, tagArray)
		for _, e := range v.A {
			dst = Encode(dst, e)
		}
		return append(dst, tagEnd)
	default:
		return append(dst, tagNull)
	}
}

func tag(v record.Value) byte {
	return Encode(nil, v)[0]
}

func entryKey(v record.Value, id uint64) []byte {
	return binary.BigEndian.AppendUint64(Encode(nil, v), id)
}

func split(key []byte) ([]byte, uint64) {
	n := len(key) - 8
	return key[:n], binary.BigEndian.Uint64(key[n:])
}
