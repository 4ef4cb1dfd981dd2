package elf

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/elfdbg/symbolizer/pkg/dwarf/util"
)

// File is a parsed, read-only view over one ELF image. All section and
// symbol data reference the original image; File never copies it except
// where decompression forces a new buffer.
type File struct {
	data     []byte
	Class    Class
	Order    binary.ByteOrder
	Machine  uint16
	Type     uint16
	sections []*Section
	byName   map[string]*Section
}

// Section is one entry of the section header table. Offset+FileSize is
// validated against the image length at parse time.
type Section struct {
	Name     string
	Type     SectionType
	Flags    uint64
	Addr     uint64
	Offset   uint64
	FileSize uint64
	Link     uint32
	Entsize  uint64

	nameOff uint32
	file    *File
}

// Parse validates the ELF header and builds the section table.
// It fails with ErrInvalidContainer for anything that makes the image
// unusable as a whole; it does not touch section contents.
func Parse(data []byte) (*File, error) {
	if len(data) < 16 || data[0] != 0x7f || data[1] != 'E' || data[2] != 'L' || data[3] != 'F' {
		return nil, fmt.Errorf("bad magic: %w", ErrInvalidContainer)
	}

	f := &File{data: data, Class: Class(data[4])}
	switch f.Class {
	case Class32, Class64:
	default:
		return nil, fmt.Errorf("unknown class %d: %w", data[4], ErrInvalidContainer)
	}
	switch data[5] {
	case 1:
		f.Order = binary.LittleEndian
	case 2:
		f.Order = binary.BigEndian
	default:
		return nil, fmt.Errorf("unknown data encoding %d: %w", data[5], ErrInvalidContainer)
	}
	if data[6] != 1 {
		return nil, fmt.Errorf("unknown ELF version %d: %w", data[6], ErrInvalidContainer)
	}

	b := util.NewBuf(data, f.Order)
	if err := f.parseHeaderAndSections(b); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) parseHeaderAndSections(b *util.Buf) error {
	hdrSize := ehSize64
	if f.Class == Class32 {
		hdrSize = ehSize32
	}
	if len(f.data) < hdrSize {
		return fmt.Errorf("truncated header: %w", ErrInvalidContainer)
	}

	if err := b.SeekTo(16); err != nil {
		return err
	}
	f.Type, _ = b.Uint16()
	f.Machine, _ = b.Uint16()
	if _, err := b.Uint32(); err != nil { // e_version
		return fmt.Errorf("truncated header: %w", ErrInvalidContainer)
	}

	var shoff uint64
	var err error
	if f.Class == Class64 {
		if err = b.Skip(8 + 8); err == nil { // e_entry, e_phoff
			shoff, err = b.Uint64()
		}
	} else {
		if err = b.Skip(4 + 4); err == nil {
			var v uint32
			v, err = b.Uint32()
			shoff = uint64(v)
		}
	}
	if err != nil {
		return fmt.Errorf("truncated header: %w", ErrInvalidContainer)
	}
	// e_flags, e_ehsize, e_phentsize, e_phnum
	if err = b.Skip(4 + 2 + 2 + 2); err != nil {
		return fmt.Errorf("truncated header: %w", ErrInvalidContainer)
	}
	shentsize, err1 := b.Uint16()
	shnum, err2 := b.Uint16()
	shstrndx, err3 := b.Uint16()
	if err1 != nil || err2 != nil || err3 != nil {
		return fmt.Errorf("truncated header: %w", ErrInvalidContainer)
	}

	if shnum == 0 || shoff == 0 {
		// Sectionless images are valid ELF but carry nothing we can index.
		f.byName = map[string]*Section{}
		return nil
	}
	wantEntSize := shEntSize64
	if f.Class == Class32 {
		wantEntSize = shEntSize32
	}
	if int(shentsize) < wantEntSize {
		return fmt.Errorf("section header entry size %d: %w", shentsize, ErrInvalidContainer)
	}
	end := shoff + uint64(shnum)*uint64(shentsize)
	if end < shoff || end > uint64(len(f.data)) {
		return fmt.Errorf("section table extends past image end: %w", ErrInvalidContainer)
	}

	f.sections = make([]*Section, 0, shnum)
	for i := 0; i < int(shnum); i++ {
		sb := util.NewBuf(f.data, f.Order)
		if err := sb.SeekTo(int(shoff) + i*int(shentsize)); err != nil {
			return fmt.Errorf("section header %d: %w", i, ErrInvalidContainer)
		}
		sec, err := f.parseSectionHeader(sb)
		if err != nil {
			return fmt.Errorf("section header %d: %w", i, err)
		}
		f.sections = append(f.sections, sec)
	}

	// Resolve names through the section-header string table.
	f.byName = make(map[string]*Section, len(f.sections))
	if int(shstrndx) < len(f.sections) {
		// Data validates offsets and yields nil for NOBITS, so a hostile
		// e_shstrndx target degrades to unnamed sections instead of an
		// out-of-range slice.
		raw, err := f.sections[shstrndx].Data()
		if err != nil {
			return nil
		}
		for _, sec := range f.sections {
			sec.Name = nameAt(raw, sec.nameOff)
			if sec.Name != "" {
				f.byName[sec.Name] = sec
			}
		}
	}
	return nil
}

func (f *File) parseSectionHeader(b *util.Buf) (*Section, error) {
	sec := &Section{file: f}
	var err error
	read32 := func() uint32 {
		var v uint32
		if err == nil {
			v, err = b.Uint32()
		}
		return v
	}
	readWord := func() uint64 {
		var v uint64
		if err == nil {
			if f.Class == Class64 {
				v, err = b.Uint64()
			} else {
				var w uint32
				w, err = b.Uint32()
				v = uint64(w)
			}
		}
		return v
	}

	sec.nameOff = read32()
	sec.Type = SectionType(read32())
	sec.Flags = readWord()
	sec.Addr = readWord()
	sec.Offset = readWord()
	sec.FileSize = readWord()
	sec.Link = read32()
	read32() // sh_info
	readWord()
	sec.Entsize = readWord()
	if err != nil {
		return nil, ErrInvalidContainer
	}

	if sec.Type != SectionTypeNoBits {
		end := sec.Offset + sec.FileSize
		if end < sec.Offset || end > uint64(len(f.data)) {
			return nil, fmt.Errorf("section [%#x,%#x) past image end %#x: %w",
				sec.Offset, end, len(f.data), ErrInvalidContainer)
		}
	}
	return sec, nil
}

func nameAt(strtab []byte, off uint32) string {
	if int(off) >= len(strtab) {
		return ""
	}
	rest := strtab[off:]
	if i := bytes.IndexByte(rest, 0); i >= 0 {
		return string(rest[:i])
	}
	return ""
}

// Section returns the section with the given name, or nil. Absence is
// normal: stripped binaries drop debug sections without becoming invalid.
func (f *File) Section(name string) *Section {
	return f.byName[name]
}

// Sections returns all sections in header-table order.
func (f *File) Sections() []*Section {
	return f.sections
}

// DebugSection returns the contents of a DWARF section by its suffix
// ("info", "line", ...), trying the plain and the legacy zlib-compressed
// name in turn. A nil result means the section is absent.
func (f *File) DebugSection(name string) ([]byte, error) {
	if sec := f.byName[".debug_"+name]; sec != nil {
		return sec.Data()
	}
	if sec := f.byName[".zdebug_"+name]; sec != nil {
		return sec.Data()
	}
	return nil, nil
}

// Data returns the section contents, inflating SHF_COMPRESSED and legacy
// .zdebug_ zlib payloads. Uncompressed contents are a view into the image.
func (s *Section) Data() ([]byte, error) {
	if s.Type == SectionTypeNoBits {
		return nil, nil
	}
	raw := s.file.data[s.Offset : s.Offset+s.FileSize]

	if s.Flags&FlagCompressed != 0 {
		return s.file.inflateChdr(raw)
	}
	if len(s.Name) >= 8 && s.Name[:8] == ".zdebug_" {
		// Legacy format: "ZLIB" magic, 8-byte big-endian uncompressed size.
		if len(raw) < 12 || string(raw[:4]) != "ZLIB" {
			return nil, fmt.Errorf("section %s: bad ZLIB header: %w", s.Name, util.ErrMalformedEncoding)
		}
		size := binary.BigEndian.Uint64(raw[4:12])
		return inflate(raw[12:], size)
	}
	return raw, nil
}

func (f *File) inflateChdr(raw []byte) ([]byte, error) {
	b := util.NewBuf(raw, f.Order)
	chType, err := b.Uint32()
	if err != nil {
		return nil, err
	}
	var size uint64
	if f.Class == Class64 {
		if err := b.Skip(4); err != nil { // ch_reserved
			return nil, err
		}
		if size, err = b.Uint64(); err != nil {
			return nil, err
		}
		if err := b.Skip(8); err != nil { // ch_addralign
			return nil, err
		}
	} else {
		var v uint32
		if v, err = b.Uint32(); err != nil {
			return nil, err
		}
		size = uint64(v)
		if err := b.Skip(4); err != nil {
			return nil, err
		}
	}
	if chType != compressZlib {
		return nil, fmt.Errorf("unsupported section compression type %d: %w", chType, util.ErrMalformedEncoding)
	}
	return inflate(raw[b.Off():], size)
}

func inflate(compressed []byte, size uint64) ([]byte, error) {
	const maxInflate = 1 << 31 // refuse absurd declared sizes on hostile input
	if size > maxInflate {
		return nil, fmt.Errorf("declared uncompressed size %d too large: %w", size, util.ErrMalformedEncoding)
	}
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", util.ErrMalformedEncoding)
	}
	defer zr.Close()
	out := make([]byte, 0, size)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, io.LimitReader(zr, int64(size))); err != nil {
		return nil, fmt.Errorf("zlib: %w", util.ErrMalformedEncoding)
	}
	return buf.Bytes(), nil
}
