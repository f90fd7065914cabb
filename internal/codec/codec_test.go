package codec

import (
	"math"
	"testing"

	"github.com/dyluth/collab/internal/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloatVectorRoundTrip(t *testing.T) {
	vectors := [][]float64{
		{},
		{0},
		{1.5, -2.25, 3e-12, math.MaxFloat64, math.SmallestNonzeroFloat64},
		{math.Inf(1), math.Inf(-1), math.Copysign(0, -1)},
	}
	for _, v := range vectors {
		got, err := DecodeFloatVector(EncodeFloatVector(v))
		require.NoError(t, err)
		require.Len(t, got, len(v))
		for i := range v {
			assert.Equal(t, math.Float64bits(v[i]), math.Float64bits(got[i]))
		}
	}
}

func TestIntMatrixRoundTrip(t *testing.T) {
	matrices := [][][]int{
		{},
		{{}, {}, {}},
		{{0, 2}, {1}, {3, 4, 5}},
		{{math.MaxInt32, math.MinInt32, -1}},
	}
	for _, m := range matrices {
		got, err := DecodeIntMatrix(EncodeIntMatrix(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
}

func TestStringVectorRoundTrip(t *testing.T) {
	vectors := [][]string{
		{},
		{""},
		{"Speed", "Température", "压力", "🎛 knob"},
	}
	for _, v := range vectors {
		got, err := DecodeStringVector(EncodeStringVector(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestScalarRoundTrip(t *testing.T) {
	for _, s := range []string{"", "Ready...", "Complete!", "модель 𝔸"} {
		got, err := DecodeString(EncodeString(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	for _, b := range []bool{true, false} {
		got, err := DecodeBool(EncodeBool(b))
		require.NoError(t, err)
		assert.Equal(t, b, got)
	}
	for _, i := range []int32{0, 7, -1, math.MaxInt32, math.MinInt32} {
		got, err := DecodeInt32(EncodeInt32(i))
		require.NoError(t, err)
		assert.Equal(t, i, got)
	}
}

func TestInvalidUTF8String(t *testing.T) {
	got, err := DecodeString(EncodeString("a\xffb"))
	require.NoError(t, err)
	assert.Equal(t, "a\uFFFDb", got)
}

func TestWireFormat(t *testing.T) {
	assert.Equal(t, []byte{0, 0, 0, 1}, EncodeBool(true))
	assert.Equal(t, []byte{0, 0, 0, 2, 0, 'H', 0, 'i'}, EncodeString("Hi"))
	assert.Equal(t,
		[]byte{0, 0, 0, 1, 0x3f, 0xf0, 0, 0, 0, 0, 0, 0},
		EncodeFloatVector([]float64{1}))
	assert.Equal(t,
		[]byte{0, 0, 0, 2, 0, 0, 0, 1, 0, 0, 0, 5, 0, 0, 0, 0},
		EncodeIntMatrix([][]int{{5}, {}}))
}

func TestDecodeErrors(t *testing.T) {
	testCases := []struct {
		name   string
		decode func([]byte) error
		data   []byte
		errMsg string
	}{
		{
			name:   "empty int32",
			decode: func(b []byte) error { _, err := DecodeInt32(b); return err },
			data:   nil,
			errMsg: "truncated input",
		},
		{
			name:   "trailing bytes",
			decode: func(b []byte) error { _, err := DecodeInt32(b); return err },
			data:   []byte{0, 0, 0, 1, 9},
			errMsg: "1 trailing bytes after offset 4",
		},
		{
			name:   "invalid bool",
			decode: func(b []byte) error { _, err := DecodeBool(b); return err },
			data:   []byte{0, 0, 0, 2},
			errMsg: "invalid boolean value 2",
		},
		{
			name:   "negative count",
			decode: func(b []byte) error { _, err := DecodeFloatVector(b); return err },
			data:   []byte{0xff, 0xff, 0xff, 0xff},
			errMsg: "negative element count -1",
		},
		{
			name:   "count exceeds data",
			decode: func(b []byte) error { _, err := DecodeFloatVector(b); return err },
			data:   []byte{0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0, 0},
			errMsg: "element count 2 at offset 0 exceeds remaining 8 bytes",
		},
		{
			name:   "truncated matrix row",
			decode: func(b []byte) error { _, err := DecodeIntMatrix(b); return err },
			data:   []byte{0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0, 1},
			errMsg: "element count 2 at offset 4",
		},
		{
			name:   "truncated string",
			decode: func(b []byte) error { _, err := DecodeString(b); return err },
			data:   []byte{0, 0, 0, 3, 0, 'a'},
			errMsg: "element count 3",
		},
		{
			name:   "string vector with short element",
			decode: func(b []byte) error { _, err := DecodeStringVector(b); return err },
			data:   []byte{0, 0, 0, 1, 0, 0},
			errMsg: "exceeds remaining 2 bytes",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.decode(tc.data)
			require.Error(t, err)
			assert.True(t, fault.Is(err, fault.KindProtocol))
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}
