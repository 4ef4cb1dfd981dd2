package info

import (
	"fmt"

	"github.com/elfdbg/symbolizer/pkg/dwarf/abbrev"
	"github.com/elfdbg/symbolizer/pkg/dwarf/util"
)

// Range list entry codes for .debug_rnglists (DWARF5 §7.25).
const (
	rleEndOfList    = 0x00
	rleBaseAddressx = 0x01
	rleStartxEndx   = 0x02
	rleStartxLength = 0x03
	rleOffsetPair   = 0x04
	rleBaseAddress  = 0x05
	rleStartEnd     = 0x06
	rleStartLength  = 0x07
)

// EntryRanges returns the address ranges covered by an entry, from either
// its low_pc/high_pc pair (high_pc is an absolute address or an offset
// from low_pc, distinguished by its class) or its range-list reference.
// cuBase is the unit's base address, used by base-relative list entries.
func (u *Unit) EntryRanges(e *Entry, cuBase uint64) ([][2]uint64, error) {
	if low, ok := e.Uint(abbrev.AttrLowpc); ok {
		if f := e.Field(abbrev.AttrHighpc); f != nil {
			high, ok := e.Uint(abbrev.AttrHighpc)
			if !ok {
				return nil, fmt.Errorf("DIE at %#x: bad high_pc: %w", e.Offset, util.ErrMalformedEncoding)
			}
			if f.Class == ClassConstant {
				high = low + high
			}
			if high < low {
				return nil, fmt.Errorf("DIE at %#x: high_pc %#x below low_pc %#x: %w",
					e.Offset, high, low, util.ErrMalformedEncoding)
			}
			return [][2]uint64{{low, high}}, nil
		}
		// A lone low_pc marks a single location, not a range.
	}

	f := e.Field(abbrev.AttrRanges)
	if f == nil {
		return nil, nil
	}
	off, ok := e.Uint(abbrev.AttrRanges)
	if !ok {
		return nil, fmt.Errorf("DIE at %#x: bad ranges attribute: %w", e.Offset, util.ErrMalformedEncoding)
	}
	if f.Class == ClassListIndex {
		resolved, err := u.rngListIndex(off)
		if err != nil {
			return nil, fmt.Errorf("DIE at %#x: %w", e.Offset, err)
		}
		return u.rngListRanges(resolved, cuBase)
	}
	if u.Version >= 5 {
		return u.rngListRanges(off, cuBase)
	}
	return u.debugRanges(off, cuBase)
}

// BaseAddr returns the unit's base address for range decoding: the root's
// low_pc, falling back to entry_pc.
func (u *Unit) BaseAddr(root *Entry) uint64 {
	if v, ok := root.Uint(abbrev.AttrLowpc); ok {
		return v
	}
	if v, ok := root.Uint(abbrev.AttrEntrypc); ok {
		return v
	}
	return 0
}

// debugRanges decodes a DWARF 2-4 .debug_ranges list.
func (u *Unit) debugRanges(off, base uint64) ([][2]uint64, error) {
	b := util.NewBuf(u.data.sec.Ranges, u.data.sec.Order)
	if err := b.SeekTo(int(off)); err != nil {
		return nil, fmt.Errorf("range list at %#x: %w", off, err)
	}

	largest := uint64(1)<<(8*uint(u.AddrSize)) - 1
	if u.AddrSize == 8 {
		largest = ^uint64(0)
	}

	var out [][2]uint64
	for {
		lo, err := b.Addr(u.AddrSize)
		if err != nil {
			return nil, fmt.Errorf("range list at %#x: %w", off, err)
		}
		hi, err := b.Addr(u.AddrSize)
		if err != nil {
			return nil, fmt.Errorf("range list at %#x: %w", off, err)
		}
		switch {
		case lo == largest:
			base = hi // base address selection entry
		case lo == 0 && hi == 0:
			return out, nil
		default:
			out = append(out, [2]uint64{base + lo, base + hi})
		}
	}
}

// rngListRanges decodes the DWARF5 .debug_rnglists list at a resolved
// section offset.
func (u *Unit) rngListRanges(off, base uint64) ([][2]uint64, error) {
	b := util.NewBuf(u.data.sec.RngLists, u.data.sec.Order)
	if err := b.SeekTo(int(off)); err != nil {
		return nil, fmt.Errorf("rnglist at %#x: %w", off, err)
	}

	var out [][2]uint64
	for {
		kind, err := b.Uint8()
		if err != nil {
			return nil, fmt.Errorf("rnglist at %#x: %w", off, err)
		}
		switch kind {
		case rleEndOfList:
			return out, nil
		case rleBaseAddress:
			if base, err = b.Addr(u.AddrSize); err != nil {
				return nil, err
			}
		case rleBaseAddressx:
			idx, err := b.ULEB()
			if err != nil {
				return nil, err
			}
			if base, err = u.addrx(idx); err != nil {
				return nil, err
			}
		case rleOffsetPair:
			lo, err1 := b.ULEB()
			hi, err2 := b.ULEB()
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("rnglist at %#x: truncated pair", off)
			}
			out = append(out, [2]uint64{base + lo, base + hi})
		case rleStartEnd:
			lo, err1 := b.Addr(u.AddrSize)
			hi, err2 := b.Addr(u.AddrSize)
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("rnglist at %#x: truncated start/end", off)
			}
			out = append(out, [2]uint64{lo, hi})
		case rleStartLength:
			lo, err1 := b.Addr(u.AddrSize)
			n, err2 := b.ULEB()
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("rnglist at %#x: truncated start/length", off)
			}
			out = append(out, [2]uint64{lo, lo + n})
		case rleStartxEndx:
			i1, err1 := b.ULEB()
			i2, err2 := b.ULEB()
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("rnglist at %#x: truncated startx/endx", off)
			}
			lo, err1 := u.addrx(i1)
			hi, err2 := u.addrx(i2)
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("rnglist at %#x: unresolvable address index", off)
			}
			out = append(out, [2]uint64{lo, hi})
		case rleStartxLength:
			i1, err1 := b.ULEB()
			n, err2 := b.ULEB()
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("rnglist at %#x: truncated startx/length", off)
			}
			lo, err := u.addrx(i1)
			if err != nil {
				return nil, err
			}
			out = append(out, [2]uint64{lo, lo + n})
		default:
			return nil, fmt.Errorf("rnglist at %#x: unknown entry kind %d: %w", off, kind, util.ErrMalformedEncoding)
		}
	}
}

// rngListIndex reads the index'th entry of the offset array at the
// rnglists base. Without a declared base the array sits right after the
// section's unit header.
func (u *Unit) rngListIndex(index uint64) (uint64, error) {
	offSize := uint64(4)
	if u.Dwarf64 {
		offSize = 8
	}
	base := u.rngListsBase
	if !u.haveRngBase {
		base = 12 // 32-bit rnglists unit header
		if u.Dwarf64 {
			base = 20
		}
	}
	b := util.NewBuf(u.data.sec.RngLists, u.data.sec.Order)
	if err := b.SeekTo(int(base + index*offSize)); err != nil {
		return 0, err
	}
	rel, err := b.Offset(u.Dwarf64)
	if err != nil {
		return 0, err
	}
	return base + rel, nil
}
