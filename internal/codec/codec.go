// Package codec encodes attribute values in big-endian framing modelled on
// the HLA 1516e basic and array data types.
//
//	Int32        HLAinteger32BE
//	Bool         HLAboolean (HLAinteger32BE, 0 or 1)
//	String       HLAunicodeString (int32 count of UTF-16BE code units)
//	FloatVector  HLAvariableArray of HLAfloat64BE
//	IntMatrix    HLAvariableArray of HLAvariableArray of HLAinteger32BE
//	StringVector HLAvariableArray of HLAunicodeString
//
// Strings round-trip exactly when they are valid UTF-8. Invalid bytes
// encode as U+FFFD; model.New rejects such names and labels before they
// reach the bus.
//
// Elements are packed without alignment padding. Decoders reject truncated
// input, trailing bytes and negative counts with a fault.KindProtocol error.
package codec

import (
	"encoding/binary"
	"math"
	"unicode/utf16"

	"github.com/dyluth/collab/internal/fault"
)

// EncodeInt32 encodes a single 32-bit integer.
func EncodeInt32(v int32) []byte {
	return binary.BigEndian.AppendUint32(nil, uint32(v))
}

// DecodeInt32 decodes a single 32-bit integer.
func DecodeInt32(data []byte) (int32, error) {
	r := reader{op: "codec.DecodeInt32", buf: data}
	v := r.int32()
	return v, r.finish()
}

// EncodeBool encodes a boolean as 0 or 1.
func EncodeBool(v bool) []byte {
	if v {
		return EncodeInt32(1)
	}
	return EncodeInt32(0)
}

// DecodeBool decodes a boolean.
func DecodeBool(data []byte) (bool, error) {
	r := reader{op: "codec.DecodeBool", buf: data}
	v := r.int32()
	if err := r.finish(); err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fault.Protocol(r.op, "invalid boolean value %d", v)
	}
}

// EncodeString encodes a unicode string.
func EncodeString(s string) []byte {
	return appendString(nil, s)
}

// DecodeString decodes a unicode string.
func DecodeString(data []byte) (string, error) {
	r := reader{op: "codec.DecodeString", buf: data}
	s := r.string()
	return s, r.finish()
}

// EncodeFloatVector encodes a variable-length float64 vector.
func EncodeFloatVector(v []float64) []byte {
	buf := make([]byte, 0, 4+8*len(v))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(v)))
	for _, x := range v {
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(x))
	}
	return buf
}

// DecodeFloatVector decodes a variable-length float64 vector.
func DecodeFloatVector(data []byte) ([]float64, error) {
	r := reader{op: "codec.DecodeFloatVector", buf: data}
	n := r.count(8)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(r.uint64())
	}
	if err := r.finish(); err != nil {
		return nil, err
	}
	return out, nil
}

// EncodeIntMatrix encodes a jagged matrix of 32-bit integers.
func EncodeIntMatrix(m [][]int) []byte {
	buf := binary.BigEndian.AppendUint32(nil, uint32(len(m)))
	for _, row := range m {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(row)))
		for _, v := range row {
			buf = binary.BigEndian.AppendUint32(buf, uint32(int32(v)))
		}
	}
	return buf
}

// DecodeIntMatrix decodes a jagged matrix of 32-bit integers.
func DecodeIntMatrix(data []byte) ([][]int, error) {
	r := reader{op: "codec.DecodeIntMatrix", buf: data}
	rows := r.count(4)
	out := make([][]int, rows)
	for i := range out {
		n := r.count(4)
		out[i] = make([]int, n)
		for j := range out[i] {
			out[i][j] = int(r.int32())
		}
	}
	if err := r.finish(); err != nil {
		return nil, err
	}
	return out, nil
}

// EncodeStringVector encodes a variable-length vector of unicode strings.
func EncodeStringVector(v []string) []byte {
	buf := binary.BigEndian.AppendUint32(nil, uint32(len(v)))
	for _, s := range v {
		buf = appendString(buf, s)
	}
	return buf
}

// DecodeStringVector decodes a variable-length vector of unicode strings.
func DecodeStringVector(data []byte) ([]string, error) {
	r := reader{op: "codec.DecodeStringVector", buf: data}
	n := r.count(4)
	out := make([]string, n)
	for i := range out {
		out[i] = r.string()
	}
	if err := r.finish(); err != nil {
		return nil, err
	}
	return out, nil
}

func appendString(buf []byte, s string) []byte {
	units := utf16.Encode([]rune(s))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(units)))
	for _, u := range units {
		buf = binary.BigEndian.AppendUint16(buf, u)
	}
	return buf
}

// reader consumes a buffer and records the first decoding failure.
// Reads after a failure return zero values.
type reader struct {
	op  string
	buf []byte
	pos int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n > len(r.buf)-r.pos {
		r.err = fault.Protocol(r.op, "truncated input: need %d bytes at offset %d, have %d", n, r.pos, len(r.buf)-r.pos)
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) int32() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (r *reader) uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// count reads an element count and checks that at least minSize bytes per
// element remain.
func (r *reader) count(minSize int) int {
	at := r.pos
	n := r.int32()
	if r.err != nil {
		return 0
	}
	if n < 0 {
		r.err = fault.Protocol(r.op, "negative element count %d at offset %d", n, at)
		return 0
	}
	if int(n) > (len(r.buf)-r.pos)/minSize {
		r.err = fault.Protocol(r.op, "element count %d at offset %d exceeds remaining %d bytes", n, at, len(r.buf)-r.pos)
		return 0
	}
	return int(n)
}

func (r *reader) string() string {
	n := r.count(2)
	b := r.take(2 * n)
	if b == nil {
		return ""
	}
	units := make([]uint16, n)
	for i := range units {
		units[i] = binary.BigEndian.Uint16(b[2*i:])
	}
	return string(utf16.Decode(units))
}

func (r *reader) finish() error {
	if r.err != nil {
		return r.err
	}
	if r.pos != len(r.buf) {
		return fault.Protocol(r.op, "%d trailing bytes after offset %d", len(r.buf)-r.pos, r.pos)
	}
	return nil
}
