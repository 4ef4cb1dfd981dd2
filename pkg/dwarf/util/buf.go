// Package util provides the low-level byte cursor that all ELF and DWARF
// decoding goes through. Every read is bounds-checked against the underlying
// region, so malformed input surfaces as an error at the point of read
// instead of corrupting downstream state.
package util

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrOutOfBounds reports a read that would cross the end of the region.
	ErrOutOfBounds = errors.New("read out of bounds")

	// ErrMalformedEncoding reports a variable-length integer that does not
	// terminate within the maximum encodable width.
	ErrMalformedEncoding = errors.New("malformed variable-length encoding")
)

// maxLEBBytes bounds LEB128 decoding. 10 bytes cover a full 64-bit value;
// anything longer is adversarial input.
const maxLEBBytes = 10

// Buf is a bounds-checked, endian-aware cursor over a byte region.
// The zero value is not usable; construct with NewBuf.
type Buf struct {
	data  []byte
	off   int
	order binary.ByteOrder
}

// NewBuf returns a cursor over data starting at offset 0.
func NewBuf(data []byte, order binary.ByteOrder) *Buf {
	return &Buf{data: data, order: order}
}

// Off returns the current cursor position.
func (b *Buf) Off() int { return b.off }

// Len returns the number of unread bytes.
func (b *Buf) Len() int { return len(b.data) - b.off }

// Order returns the byte order reads are performed with.
func (b *Buf) Order() binary.ByteOrder { return b.order }

// SeekTo positions the cursor at off.
func (b *Buf) SeekTo(off int) error {
	if off < 0 || off > len(b.data) {
		return fmt.Errorf("seek to %#x: %w", off, ErrOutOfBounds)
	}
	b.off = off
	return nil
}

// Skip advances the cursor by n bytes.
func (b *Buf) Skip(n int) error {
	if n < 0 || b.Len() < n {
		return fmt.Errorf("skip %d at offset %#x: %w", n, b.off, ErrOutOfBounds)
	}
	b.off += n
	return nil
}

// Bytes returns the next n bytes as a view into the underlying region.
// Callers must not modify the returned slice.
func (b *Buf) Bytes(n int) ([]byte, error) {
	if n < 0 || b.Len() < n {
		return nil, fmt.Errorf("read %d bytes at offset %#x: %w", n, b.off, ErrOutOfBounds)
	}
	v := b.data[b.off : b.off+n]
	b.off += n
	return v, nil
}

// Uint8 reads one byte.
func (b *Buf) Uint8() (uint8, error) {
	v, err := b.Bytes(1)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

// Uint16 reads a 2-byte integer in the cursor's byte order.
func (b *Buf) Uint16() (uint16, error) {
	v, err := b.Bytes(2)
	if err != nil {
		return 0, err
	}
	return b.order.Uint16(v), nil
}

// Uint32 reads a 4-byte integer in the cursor's byte order.
func (b *Buf) Uint32() (uint32, error) {
	v, err := b.Bytes(4)
	if err != nil {
		return 0, err
	}
	return b.order.Uint32(v), nil
}

// Uint64 reads an 8-byte integer in the cursor's byte order.
func (b *Buf) Uint64() (uint64, error) {
	v, err := b.Bytes(8)
	if err != nil {
		return 0, err
	}
	return b.order.Uint64(v), nil
}

// Uint reads an unsigned integer of the given byte width (1..4 or 8;
// width 3 exists for the strx3/addrx3 forms).
func (b *Buf) Uint(width int) (uint64, error) {
	switch width {
	case 1:
		v, err := b.Uint8()
		return uint64(v), err
	case 2:
		v, err := b.Uint16()
		return uint64(v), err
	case 3:
		raw, err := b.Bytes(3)
		if err != nil {
			return 0, err
		}
		if b.order == binary.BigEndian {
			return uint64(raw[0])<<16 | uint64(raw[1])<<8 | uint64(raw[2]), nil
		}
		return uint64(raw[2])<<16 | uint64(raw[1])<<8 | uint64(raw[0]), nil
	case 4:
		v, err := b.Uint32()
		return uint64(v), err
	case 8:
		return b.Uint64()
	}
	return 0, fmt.Errorf("unsigned read of width %d at offset %#x: %w", width, b.off, ErrMalformedEncoding)
}

// ULEB reads an unsigned LEB128-encoded integer.
func (b *Buf) ULEB() (uint64, error) {
	var result uint64
	var shift uint
	for i := 0; i < maxLEBBytes; i++ {
		c, err := b.Uint8()
		if err != nil {
			return 0, err
		}
		result |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
	return 0, fmt.Errorf("ULEB128 at offset %#x exceeds %d bytes: %w", b.off, maxLEBBytes, ErrMalformedEncoding)
}

// SLEB reads a signed LEB128-encoded integer.
func (b *Buf) SLEB() (int64, error) {
	var result int64
	var shift uint
	for i := 0; i < maxLEBBytes; i++ {
		c, err := b.Uint8()
		if err != nil {
			return 0, err
		}
		result |= int64(c&0x7f) << shift
		shift += 7
		if c&0x80 == 0 {
			if c&0x40 != 0 && shift < 64 {
				result |= -1 << shift
			}
			return result, nil
		}
	}
	return 0, fmt.Errorf("SLEB128 at offset %#x exceeds %d bytes: %w", b.off, maxLEBBytes, ErrMalformedEncoding)
}

// CString reads a null-terminated string, consuming the terminator.
func (b *Buf) CString() (string, error) {
	for i := b.off; i < len(b.data); i++ {
		if b.data[i] == 0 {
			s := string(b.data[b.off:i])
			b.off = i + 1
			return s, nil
		}
	}
	return "", fmt.Errorf("unterminated string at offset %#x: %w", b.off, ErrOutOfBounds)
}

// InitialLength reads a DWARF initial-length field: either a 4-byte length,
// or the 0xffffffff escape followed by an 8-byte length (64-bit DWARF).
// It reports which format the enclosing structure uses.
func (b *Buf) InitialLength() (length uint64, dwarf64 bool, err error) {
	v, err := b.Uint32()
	if err != nil {
		return 0, false, err
	}
	if v != 0xffffffff {
		if v >= 0xfffffff0 {
			// Reserved by the format for future extension.
			return 0, false, fmt.Errorf("reserved initial length %#x at offset %#x: %w", v, b.off, ErrMalformedEncoding)
		}
		return uint64(v), false, nil
	}
	length, err = b.Uint64()
	return length, true, err
}

// Offset reads a section offset: 4 bytes in 32-bit DWARF, 8 in 64-bit.
func (b *Buf) Offset(dwarf64 bool) (uint64, error) {
	if dwarf64 {
		return b.Uint64()
	}
	v, err := b.Uint32()
	return uint64(v), err
}

// Addr reads a target address of the given byte size.
func (b *Buf) Addr(size int) (uint64, error) {
	switch size {
	case 1, 2, 4, 8:
		return b.Uint(size)
	}
	return 0, fmt.Errorf("address size %d at offset %#x: %w", size, b.off, ErrMalformedEncoding)
}
