package fixture

import "encoding/binary"

// ELFBuilder assembles a minimal 64-bit little-endian ELF image with the
// given sections. Section 0 (the reserved null entry) and .shstrtab are
// added automatically.
type ELFBuilder struct {
	sections []elfSection
}

type elfSection struct {
	name    string
	typ     uint32
	flags   uint64
	addr    uint64
	link    uint32
	entsize uint64
	data    []byte
}

// AddSection appends a section and returns its header-table index.
func (e *ELFBuilder) AddSection(name string, typ uint32, data []byte) int {
	e.sections = append(e.sections, elfSection{name: name, typ: typ, data: data})
	return len(e.sections) // index 0 is the null section
}

// AddSectionFull appends a section with explicit flags, address, link and
// entry size, returning its header-table index.
func (e *ELFBuilder) AddSectionFull(name string, typ uint32, flags, addr uint64, link uint32, entsize uint64, data []byte) int {
	e.sections = append(e.sections, elfSection{
		name: name, typ: typ, flags: flags, addr: addr, link: link, entsize: entsize, data: data,
	})
	return len(e.sections)
}

// Sym64 is one 64-bit symbol-table entry for SymtabData.
type Sym64 struct {
	NameOff uint32
	Info    uint8
	Value   uint64
	Size    uint64
}

// SymtabData encodes symbol entries, including the leading null entry.
func SymtabData(syms []Sym64) []byte {
	w := &W{}
	w.Raw(make([]byte, 24)) // null symbol
	for _, s := range syms {
		w.U32(s.NameOff).U8(s.Info).U8(0).U16(1).U64(s.Value).U64(s.Size)
	}
	return w.Buf
}

// Bytes lays out the image: ELF header, section contents, .shstrtab,
// then the section header table.
func (e *ELFBuilder) Bytes() []byte {
	type laidOut struct {
		nameOff uint32
		off     uint64
		size    uint64
	}

	shstrtab := []byte{0}
	nameOffs := make([]uint32, len(e.sections))
	for i, s := range e.sections {
		nameOffs[i] = uint32(len(shstrtab))
		shstrtab = append(shstrtab, s.name...)
		shstrtab = append(shstrtab, 0)
	}
	shstrOff := uint32(len(shstrtab))
	shstrtab = append(shstrtab, ".shstrtab"...)
	shstrtab = append(shstrtab, 0)

	const ehSize = 64
	body := make([]byte, ehSize)
	placed := make([]laidOut, len(e.sections))
	for i, s := range e.sections {
		placed[i] = laidOut{nameOff: nameOffs[i], off: uint64(len(body)), size: uint64(len(s.data))}
		body = append(body, s.data...)
	}
	shstrPlaced := laidOut{nameOff: shstrOff, off: uint64(len(body)), size: uint64(len(shstrtab))}
	body = append(body, shstrtab...)

	shoff := uint64(len(body))
	nsec := uint16(len(e.sections) + 2) // null + sections + shstrtab
	shstrndx := nsec - 1

	hdr := make([]byte, 0, ehSize)
	hdr = append(hdr, 0x7f, 'E', 'L', 'F', 2, 1, 1)
	hdr = append(hdr, make([]byte, 9)...) // padding to 16
	hdr = binary.LittleEndian.AppendUint16(hdr, 2)  // e_type: EXEC
	hdr = binary.LittleEndian.AppendUint16(hdr, 62) // e_machine: x86-64
	hdr = binary.LittleEndian.AppendUint32(hdr, 1)  // e_version
	hdr = binary.LittleEndian.AppendUint64(hdr, 0)  // e_entry
	hdr = binary.LittleEndian.AppendUint64(hdr, 0)  // e_phoff
	hdr = binary.LittleEndian.AppendUint64(hdr, shoff)
	hdr = binary.LittleEndian.AppendUint32(hdr, 0)      // e_flags
	hdr = binary.LittleEndian.AppendUint16(hdr, ehSize) // e_ehsize
	hdr = binary.LittleEndian.AppendUint16(hdr, 0)      // e_phentsize
	hdr = binary.LittleEndian.AppendUint16(hdr, 0)      // e_phnum
	hdr = binary.LittleEndian.AppendUint16(hdr, 64)     // e_shentsize
	hdr = binary.LittleEndian.AppendUint16(hdr, nsec)
	hdr = binary.LittleEndian.AppendUint16(hdr, shstrndx)
	copy(body[:ehSize], hdr)

	sh := &W{Buf: body}
	writeSH := func(nameOff uint32, typ uint32, flags, addr, off, size uint64, link uint32, entsize uint64) {
		sh.U32(nameOff).U32(typ).U64(flags).U64(addr).U64(off).U64(size)
		sh.U32(link).U32(0).U64(0).U64(entsize)
	}
	writeSH(0, 0, 0, 0, 0, 0, 0, 0) // null section
	for i, s := range e.sections {
		writeSH(placed[i].nameOff, s.typ, s.flags, s.addr, placed[i].off, placed[i].size, s.link, s.entsize)
	}
	writeSH(shstrPlaced.nameOff, 3 /* SHT_STRTAB */, 0, 0, shstrPlaced.off, shstrPlaced.size, 0, 0)
	return sh.Buf
}
