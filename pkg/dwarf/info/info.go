// Package info decodes the .debug_info section: compilation-unit headers
// for DWARF versions 2 through 5 and the tree of debugging-information
// entries inside each unit. Decoding is per-unit: one corrupt unit carries
// its own error and never blocks the units around it.
package info

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/elfdbg/symbolizer/pkg/dwarf/abbrev"
	"github.com/elfdbg/symbolizer/pkg/dwarf/util"
)

// ErrUnsupportedVersion reports a unit declaring a DWARF version outside
// the supported 2..5 range.
var ErrUnsupportedVersion = errors.New("unsupported DWARF version")

// Unit header types (DWARF5 §7.5.1).
const (
	unitTypeCompile      = 0x01
	unitTypeType         = 0x02
	unitTypePartial      = 0x03
	unitTypeSkeleton     = 0x04
	unitTypeSplitCompile = 0x05
	unitTypeSplitType    = 0x06
)

// Sections bundles the raw DWARF sections one image provides. Absent
// sections stay nil; decoding that would need them fails per-unit.
type Sections struct {
	Info       []byte
	Abbrev     []byte
	Str        []byte
	LineStr    []byte
	StrOffsets []byte
	Addr       []byte
	Ranges     []byte
	RngLists   []byte
	Order      binary.ByteOrder
}

// Data is a parsed view over the debug-info sections of one image.
type Data struct {
	sec   Sections
	units []*Unit
}

// Unit is one compilation unit. A Unit with a non-nil Err has an
// undecodable header or abbreviation table; its extent is still known, so
// iteration continues past it.
type Unit struct {
	Index        int
	Offset       uint64 // section offset of the unit header
	ContentStart uint64 // section offset of the first DIE
	End          uint64 // section offset one past the unit
	Version      int
	AddrSize     int
	Dwarf64      bool
	Err          error

	abbrevOffset uint64
	table        abbrev.Table
	data         *Data

	// Indirection bases, populated from the root DIE during tree decode.
	strOffBase   uint64
	addrBase     uint64
	rngListsBase uint64
	haveRngBase  bool
}

// New scans the unit headers in .debug_info and returns the parsed view.
// Header scanning is cheap; DIE trees are decoded on demand per unit.
func New(sec Sections) *Data {
	if sec.Order == nil {
		sec.Order = binary.LittleEndian
	}
	d := &Data{sec: sec}
	d.scanUnits()
	return d
}

// Units returns all units in section order, including ones whose Err is
// set. Callers skip broken units instead of failing the image.
func (d *Data) Units() []*Unit { return d.units }

func (d *Data) scanUnits() {
	b := util.NewBuf(d.sec.Info, d.sec.Order)
	for b.Len() > 0 {
		start := uint64(b.Off())
		u := &Unit{Index: len(d.units), Offset: start, data: d}

		length, dwarf64, err := b.InitialLength()
		if err != nil {
			// Cannot even delimit the unit; the rest of the section is
			// unreachable.
			return
		}
		u.Dwarf64 = dwarf64
		bodyStart := uint64(b.Off())
		u.End = bodyStart + length
		if u.End < bodyStart || u.End > uint64(len(d.sec.Info)) {
			return
		}

		u.parseHeader(b)
		d.units = append(d.units, u)

		if err := b.SeekTo(int(u.End)); err != nil {
			return
		}
	}
}

// parseHeader decodes the version-dependent rest of the unit header and
// loads the abbreviation table. Failures land in u.Err.
func (u *Unit) parseHeader(b *util.Buf) {
	version, err := b.Uint16()
	if err != nil {
		u.Err = fmt.Errorf("unit at %#x: %w", u.Offset, err)
		return
	}
	u.Version = int(version)
	if u.Version < 2 || u.Version > 5 {
		u.Err = fmt.Errorf("unit at %#x: version %d: %w", u.Offset, u.Version, ErrUnsupportedVersion)
		return
	}

	if u.Version >= 5 {
		unitType, err1 := b.Uint8()
		addrSize, err2 := b.Uint8()
		abbrevOff, err3 := b.Offset(u.Dwarf64)
		if err1 != nil || err2 != nil || err3 != nil {
			u.Err = fmt.Errorf("unit at %#x: truncated v5 header", u.Offset)
			return
		}
		u.AddrSize = int(addrSize)
		u.abbrevOffset = abbrevOff
		switch unitType {
		case unitTypeCompile, unitTypePartial:
		case unitTypeSkeleton, unitTypeSplitCompile:
			if err := b.Skip(8); err != nil { // dwo_id
				u.Err = fmt.Errorf("unit at %#x: truncated skeleton header", u.Offset)
				return
			}
		case unitTypeType, unitTypeSplitType:
			skip := 8 + 4 // type signature + 32-bit type offset
			if u.Dwarf64 {
				skip = 8 + 8
			}
			if err := b.Skip(skip); err != nil {
				u.Err = fmt.Errorf("unit at %#x: truncated type unit header", u.Offset)
				return
			}
		default:
			u.Err = fmt.Errorf("unit at %#x: unknown unit type %d", u.Offset, unitType)
			return
		}
	} else {
		abbrevOff, err1 := b.Offset(u.Dwarf64)
		addrSize, err2 := b.Uint8()
		if err1 != nil || err2 != nil {
			u.Err = fmt.Errorf("unit at %#x: truncated header", u.Offset)
			return
		}
		u.abbrevOffset = abbrevOff
		u.AddrSize = int(addrSize)
	}

	switch u.AddrSize {
	case 2, 4, 8:
	default:
		u.Err = fmt.Errorf("unit at %#x: address size %d: %w", u.Offset, u.AddrSize, util.ErrMalformedEncoding)
		return
	}
	u.ContentStart = uint64(b.Off())

	u.table, err = abbrev.ParseTable(u.data.sec.Abbrev, u.abbrevOffset)
	if err != nil {
		u.Err = fmt.Errorf("unit at %#x: %w", u.Offset, err)
	}
}

// FindUnit returns the unit whose extent contains the given .debug_info
// offset, or nil. Used to resolve cross-unit references lazily.
func (d *Data) FindUnit(off Offset) *Unit {
	for _, u := range d.units {
		if uint64(off) >= u.Offset && uint64(off) < u.End {
			return u
		}
	}
	return nil
}

// strAt resolves a .debug_str offset.
func (d *Data) strAt(off uint64) (string, error) {
	return cstringAt(d.sec.Str, off, ".debug_str")
}

// lineStrAt resolves a .debug_line_str offset.
func (d *Data) lineStrAt(off uint64) (string, error) {
	return cstringAt(d.sec.LineStr, off, ".debug_line_str")
}

func cstringAt(sec []byte, off uint64, name string) (string, error) {
	if off >= uint64(len(sec)) {
		return "", fmt.Errorf("%s offset %#x: %w", name, off, util.ErrOutOfBounds)
	}
	b := util.NewBuf(sec, binary.LittleEndian)
	if err := b.SeekTo(int(off)); err != nil {
		return "", err
	}
	return b.CString()
}

// strx resolves an index into the unit's slice of .debug_str_offsets.
func (u *Unit) strx(index uint64) (string, error) {
	offSize := uint64(4)
	if u.Dwarf64 {
		offSize = 8
	}
	base := u.strOffBase
	if base == 0 {
		// Default base skips the v5 str_offsets header.
		base = 8
		if u.Dwarf64 {
			base = 16
		}
	}
	pos := base + index*offSize
	b := util.NewBuf(u.data.sec.StrOffsets, u.data.sec.Order)
	if err := b.SeekTo(int(pos)); err != nil {
		return "", fmt.Errorf("str index %d: %w", index, err)
	}
	off, err := b.Offset(u.Dwarf64)
	if err != nil {
		return "", fmt.Errorf("str index %d: %w", index, err)
	}
	return u.data.strAt(off)
}

// addrx resolves an index into the unit's slice of .debug_addr.
func (u *Unit) addrx(index uint64) (uint64, error) {
	base := u.addrBase
	if base == 0 {
		base = 8 // v5 addr table header
	}
	pos := base + index*uint64(u.AddrSize)
	b := util.NewBuf(u.data.sec.Addr, u.data.sec.Order)
	if err := b.SeekTo(int(pos)); err != nil {
		return 0, fmt.Errorf("addr index %d: %w", index, err)
	}
	return b.Addr(u.AddrSize)
}
