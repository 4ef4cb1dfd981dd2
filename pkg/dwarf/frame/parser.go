package frame

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/elfdbg/symbolizer/pkg/dwarf/util"
)

// Format selects the section flavor being parsed. The two differ in how
// a CIE is distinguished from an FDE and in how FDE addresses are
// encoded.
type Format int

const (
	// DebugFrame is the DWARF .debug_frame layout: a CIE carries the
	// all-ones id and FDE addresses are raw pointers.
	DebugFrame Format = iota
	// EhFrame is the GNU .eh_frame layout: a CIE carries id zero, FDEs
	// point backwards at their CIE, and addresses use the encoding the
	// CIE's 'R' augmentation declares.
	EhFrame
)

// Pointer encodings used by .eh_frame augmentation data.
const (
	encAbsptr  = 0x00
	encULEB128 = 0x01
	encUdata2  = 0x02
	encUdata4  = 0x03
	encUdata8  = 0x04
	encSLEB128 = 0x09
	encSdata2  = 0x0a
	encSdata4  = 0x0b
	encSdata8  = 0x0c
	encPCRel   = 0x10
	encOmit    = 0xff
)

type parsefunc func(*parseContext) parsefunc

type parseContext struct {
	b           *util.Buf
	entries     FrameDescriptionEntries
	cies        map[uint64]*CommonInformationEntry
	format      Format
	sectionAddr uint64
	ptrSize     int
	err         error

	// current entry, valid between parselength and the entry parser
	common *CommonInformationEntry
	frame  *FrameDescriptionEntry
	end    int
}

// Parse scans a frame section and returns its FDEs sorted by start
// address. sectionAddr is the virtual address the section is mapped at;
// it anchors pc-relative pointer encodings and is ignored for
// DebugFrame input.
func Parse(data []byte, order binary.ByteOrder, format Format, sectionAddr uint64, ptrSize int) (FrameDescriptionEntries, error) {
	pctx := &parseContext{
		b:           util.NewBuf(data, order),
		entries:     newFrameDescriptionEntries(),
		cies:        make(map[uint64]*CommonInformationEntry),
		format:      format,
		sectionAddr: sectionAddr,
		ptrSize:     ptrSize,
	}

	for fn := parselength; fn != nil && pctx.b.Len() > 0; {
		fn = fn(pctx)
	}
	if pctx.err != nil {
		return nil, pctx.err
	}

	for i := range pctx.entries {
		pctx.entries[i].order = order
	}
	sort.Slice(pctx.entries, func(i, j int) bool {
		return pctx.entries[i].begin < pctx.entries[j].begin
	})
	return pctx.entries, nil
}

func (ctx *parseContext) fail(err error) parsefunc {
	ctx.err = err
	return nil
}

// parselength reads one entry's length and id and dispatches to the CIE
// or FDE parser.
func parselength(ctx *parseContext) parsefunc {
	entryStart := ctx.b.Off()
	length, dwarf64, err := ctx.b.InitialLength()
	if err != nil {
		return ctx.fail(err)
	}
	if length == 0 {
		// terminator, another series may follow
		return parselength
	}
	if int(length) > ctx.b.Len() {
		return ctx.fail(fmt.Errorf("frame entry at %#x: declared length %#x exceeds section: %w",
			entryStart, length, util.ErrOutOfBounds))
	}
	ctx.end = ctx.b.Off() + int(length)

	idWidth := 4
	if dwarf64 {
		idWidth = 8
	}
	id, err := ctx.b.Uint(idWidth)
	if err != nil {
		return ctx.fail(err)
	}

	if ctx.isCIE(id, dwarf64) {
		ctx.common = &CommonInformationEntry{Length: length, fdePointerEnc: encAbsptr}
		ctx.cies[uint64(entryStart)] = ctx.common
		return parseCIE
	}

	cie, err := ctx.cieForID(id, entryStart, idWidth)
	if err != nil {
		return ctx.fail(err)
	}
	ctx.frame = &FrameDescriptionEntry{Length: length, CIE: cie}
	return parseFDE
}

func (ctx *parseContext) isCIE(id uint64, dwarf64 bool) bool {
	if ctx.format == EhFrame {
		return id == 0
	}
	if dwarf64 {
		return id == 0xffffffffffffffff
	}
	return id == 0xffffffff
}

// cieForID resolves an FDE's CIE pointer. In .debug_frame the pointer
// is the CIE's offset from the section start; in .eh_frame it counts
// backwards from the pointer field itself.
func (ctx *parseContext) cieForID(id uint64, entryStart, idWidth int) (*CommonInformationEntry, error) {
	cieOff := id
	if ctx.format == EhFrame {
		fieldOff := uint64(ctx.b.Off() - idWidth)
		if id > fieldOff {
			return nil, fmt.Errorf("FDE at %#x: CIE pointer %#x before section start: %w",
				entryStart, id, util.ErrMalformedEncoding)
		}
		cieOff = fieldOff - id
	}
	cie, ok := ctx.cies[cieOff]
	if !ok {
		return nil, fmt.Errorf("FDE at %#x: no CIE at offset %#x: %w",
			entryStart, cieOff, util.ErrMalformedEncoding)
	}
	return cie, nil
}

func parseCIE(ctx *parseContext) parsefunc {
	b := ctx.b
	version, err := b.Uint8()
	if err != nil {
		return ctx.fail(err)
	}
	ctx.common.Version = version

	if ctx.common.Augmentation, err = b.CString(); err != nil {
		return ctx.fail(err)
	}
	if version == 4 {
		if err := b.Skip(2); err != nil { // address size, segment selector size
			return ctx.fail(err)
		}
	}
	if ctx.common.CodeAlignmentFactor, err = b.ULEB(); err != nil {
		return ctx.fail(err)
	}
	if ctx.common.DataAlignmentFactor, err = b.SLEB(); err != nil {
		return ctx.fail(err)
	}
	// CIE version 1 stores the return register in one byte.
	if version == 1 {
		reg, err := b.Uint8()
		if err != nil {
			return ctx.fail(err)
		}
		ctx.common.ReturnAddressRegister = uint64(reg)
	} else {
		if ctx.common.ReturnAddressRegister, err = b.ULEB(); err != nil {
			return ctx.fail(err)
		}
	}

	if err := ctx.parseAugmentation(); err != nil {
		return ctx.fail(err)
	}

	if ctx.common.InitialInstructions, err = b.Bytes(ctx.end - b.Off()); err != nil {
		return ctx.fail(err)
	}
	return parselength
}

// parseAugmentation consumes a 'z' augmentation data block, recording
// the FDE pointer encoding declared by an 'R' character.
func (ctx *parseContext) parseAugmentation() error {
	aug := ctx.common.Augmentation
	if len(aug) == 0 || aug[0] != 'z' {
		return nil
	}
	b := ctx.b
	augLen, err := b.ULEB()
	if err != nil {
		return err
	}
	augEnd := b.Off() + int(augLen)

	for _, c := range aug[1:] {
		switch c {
		case 'L':
			if err := b.Skip(1); err != nil {
				return err
			}
		case 'P':
			enc, err := b.Uint8()
			if err != nil {
				return err
			}
			if _, err := ctx.readEncoded(enc); err != nil {
				return err
			}
		case 'R':
			if ctx.common.fdePointerEnc, err = b.Uint8(); err != nil {
				return err
			}
		case 'S':
			// signal frame marker, no data
		default:
			// Unknown augmentation characters: the declared length lets
			// the rest be skipped wholesale.
			return b.SeekTo(augEnd)
		}
	}
	return b.SeekTo(augEnd)
}

func parseFDE(ctx *parseContext) parsefunc {
	b := ctx.b
	enc := uint8(encAbsptr)
	if ctx.format == EhFrame {
		enc = ctx.frame.CIE.fdePointerEnc
	}

	begin, err := ctx.readEncoded(enc)
	if err != nil {
		return ctx.fail(err)
	}
	ctx.frame.begin = begin

	// The range field uses the encoding's size but never its
	// pc-relative application.
	size, err := ctx.readEncoded(enc & 0x0f)
	if err != nil {
		return ctx.fail(err)
	}
	ctx.frame.size = size

	if aug := ctx.frame.CIE.Augmentation; len(aug) > 0 && aug[0] == 'z' {
		augLen, err := b.ULEB()
		if err != nil {
			return ctx.fail(err)
		}
		if err := b.Skip(int(augLen)); err != nil {
			return ctx.fail(err)
		}
	}

	if ctx.frame.Instructions, err = b.Bytes(ctx.end - b.Off()); err != nil {
		return ctx.fail(err)
	}
	ctx.entries = append(ctx.entries, ctx.frame)
	return parselength
}

// readEncoded reads one pointer per the .eh_frame encoding byte,
// applying a pc-relative base when the encoding asks for one.
func (ctx *parseContext) readEncoded(enc uint8) (uint64, error) {
	if enc == encOmit {
		return 0, nil
	}
	fieldOff := ctx.b.Off()

	var v uint64
	var err error
	switch enc & 0x0f {
	case encAbsptr:
		v, err = ctx.b.Addr(ctx.ptrSize)
	case encULEB128:
		v, err = ctx.b.ULEB()
	case encSLEB128:
		var s int64
		s, err = ctx.b.SLEB()
		v = uint64(s)
	case encUdata2:
		v, err = ctx.b.Uint(2)
	case encSdata2:
		var u uint64
		u, err = ctx.b.Uint(2)
		v = uint64(int64(int16(u)))
	case encUdata4:
		v, err = ctx.b.Uint(4)
	case encSdata4:
		var u uint64
		u, err = ctx.b.Uint(4)
		v = uint64(int64(int32(u)))
	case encUdata8, encSdata8:
		v, err = ctx.b.Uint64()
	default:
		return 0, fmt.Errorf("pointer encoding %#x at offset %#x: %w",
			enc, fieldOff, util.ErrMalformedEncoding)
	}
	if err != nil {
		return 0, err
	}

	if enc&0x70 == encPCRel {
		v += ctx.sectionAddr + uint64(fieldOff)
	}
	return v, nil
}
