// Package fixture builds synthetic ELF images and DWARF byte streams for
// tests. Everything is encoded by hand so tests do not depend on a
// toolchain or on checked-in binaries.
package fixture

import "encoding/binary"

// W accumulates a little-endian byte stream.
type W struct {
	Buf []byte
}

func (w *W) U8(v uint8) *W {
	w.Buf = append(w.Buf, v)
	return w
}

func (w *W) U16(v uint16) *W {
	w.Buf = binary.LittleEndian.AppendUint16(w.Buf, v)
	return w
}

func (w *W) U32(v uint32) *W {
	w.Buf = binary.LittleEndian.AppendUint32(w.Buf, v)
	return w
}

func (w *W) U64(v uint64) *W {
	w.Buf = binary.LittleEndian.AppendUint64(w.Buf, v)
	return w
}

// ULEB appends an unsigned LEB128 value.
func (w *W) ULEB(v uint64) *W {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		w.Buf = append(w.Buf, c)
		if v == 0 {
			return w
		}
	}
}

// SLEB appends a signed LEB128 value.
func (w *W) SLEB(v int64) *W {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			w.Buf = append(w.Buf, c)
			return w
		}
		w.Buf = append(w.Buf, c|0x80)
	}
}

// Str appends a null-terminated string.
func (w *W) Str(s string) *W {
	w.Buf = append(w.Buf, s...)
	w.Buf = append(w.Buf, 0)
	return w
}

// Raw appends bytes verbatim.
func (w *W) Raw(b []byte) *W {
	w.Buf = append(w.Buf, b...)
	return w
}

// Len returns the current stream length.
func (w *W) Len() int { return len(w.Buf) }

// PatchU32 overwrites 4 bytes at off with v. Used to back-fill length
// fields once a unit's body size is known.
func (w *W) PatchU32(off int, v uint32) {
	binary.LittleEndian.PutUint32(w.Buf[off:], v)
}
