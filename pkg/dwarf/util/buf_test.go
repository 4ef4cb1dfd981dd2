package util

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFixedWidthReads(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f}
	b := NewBuf(data, binary.LittleEndian)

	v8, err := b.Uint8()
	require.NoError(t, err)
	require.Equal(t, uint8(0x01), v8)

	v16, err := b.Uint16()
	require.NoError(t, err)
	require.Equal(t, uint16(0x0302), v16)

	v32, err := b.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(0x07060504), v32)

	v64, err := b.Uint64()
	require.NoError(t, err)
	require.Equal(t, uint64(0x0f0e0d0c0b0a0908), v64)

	require.Equal(t, 0, b.Len())

	_, err = b.Uint8()
	require.ErrorIs(t, err, ErrOutOfBounds)
}

func TestBigEndian(t *testing.T) {
	b := NewBuf([]byte{0x12, 0x34, 0x56, 0x78}, binary.BigEndian)
	v, err := b.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(0x12345678), v)
}

func TestULEB(t *testing.T) {
	tests := []struct {
		in   []byte
		want uint64
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x7f}, 127},
		{[]byte{0x80, 0x01}, 128},
		{[]byte{0xe5, 0x8e, 0x26}, 624485},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}, 0xffffffffffffffff},
	}
	for _, tt := range tests {
		b := NewBuf(tt.in, binary.LittleEndian)
		got, err := b.ULEB()
		require.NoError(t, err)
		require.Equal(t, tt.want, got)
		require.Equal(t, 0, b.Len())
	}
}

func TestSLEB(t *testing.T) {
	tests := []struct {
		in   []byte
		want int64
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x02}, 2},
		{[]byte{0x7e}, -2},
		{[]byte{0xff, 0x00}, 127},
		{[]byte{0x81, 0x7f}, -127},
		{[]byte{0x80, 0x01}, 128},
		{[]byte{0x80, 0x7f}, -128},
	}
	for _, tt := range tests {
		b := NewBuf(tt.in, binary.LittleEndian)
		got, err := b.SLEB()
		require.NoError(t, err)
		require.Equal(t, tt.want, got)
	}
}

func TestLEBNeverTerminates(t *testing.T) {
	// All continuation bits set: must fail with a bounded amount of work.
	data := make([]byte, 64)
	for i := range data {
		data[i] = 0x80
	}
	b := NewBuf(data, binary.LittleEndian)
	_, err := b.ULEB()
	require.ErrorIs(t, err, ErrMalformedEncoding)

	b = NewBuf(data, binary.LittleEndian)
	_, err = b.SLEB()
	require.ErrorIs(t, err, ErrMalformedEncoding)
}

func TestCString(t *testing.T) {
	b := NewBuf([]byte("main\x00helper\x00"), binary.LittleEndian)
	s, err := b.CString()
	require.NoError(t, err)
	require.Equal(t, "main", s)
	s, err = b.CString()
	require.NoError(t, err)
	require.Equal(t, "helper", s)

	b = NewBuf([]byte("unterminated"), binary.LittleEndian)
	_, err = b.CString()
	require.ErrorIs(t, err, ErrOutOfBounds)
}

func TestInitialLength(t *testing.T) {
	b := NewBuf([]byte{0x10, 0x00, 0x00, 0x00}, binary.LittleEndian)
	n, dwarf64, err := b.InitialLength()
	require.NoError(t, err)
	require.False(t, dwarf64)
	require.Equal(t, uint64(0x10), n)

	b = NewBuf([]byte{0xff, 0xff, 0xff, 0xff, 0x20, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, binary.LittleEndian)
	n, dwarf64, err = b.InitialLength()
	require.NoError(t, err)
	require.True(t, dwarf64)
	require.Equal(t, uint64(0x20), n)

	// Reserved values must be rejected, not treated as lengths.
	b = NewBuf([]byte{0xf0, 0xff, 0xff, 0xff}, binary.LittleEndian)
	_, _, err = b.InitialLength()
	require.ErrorIs(t, err, ErrMalformedEncoding)
}

func TestSkipAndSeek(t *testing.T) {
	b := NewBuf(make([]byte, 8), binary.LittleEndian)
	require.NoError(t, b.Skip(4))
	require.Equal(t, 4, b.Off())
	err := b.Skip(5)
	require.True(t, errors.Is(err, ErrOutOfBounds))
	require.NoError(t, b.SeekTo(8))
	require.Error(t, b.SeekTo(9))
}
