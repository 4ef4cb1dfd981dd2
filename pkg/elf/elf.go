// Package elf parses ELF containers directly from an in-memory image.
// It exposes the section table, symbol tables and debug-related metadata
// (build id, debug link, compressed and embedded debug data) without
// touching the filesystem. All decoding goes through the bounds-checked
// cursor in pkg/dwarf/util, so a truncated or hostile image fails with a
// typed error instead of corrupting state.
package elf

import "errors"

// ErrInvalidContainer reports an image that is not a usable ELF file:
// bad magic, unknown class or endianness, or a malformed header.
var ErrInvalidContainer = errors.New("invalid ELF container")

// Class is the ELF file class (word size).
type Class uint8

const (
	Class32 Class = 1
	Class64 Class = 2
)

// SectionType holds the sh_type field of a section header.
type SectionType uint32

const (
	SectionTypeNull     SectionType = 0
	SectionTypeProgBits SectionType = 1
	SectionTypeSymTab   SectionType = 2
	SectionTypeStrTab   SectionType = 3
	SectionTypeNoBits   SectionType = 8
	SectionTypeNote     SectionType = 7
	SectionTypeDynSym   SectionType = 11
)

// Section header flags.
const (
	FlagAlloc      uint64 = 0x2
	FlagExecInstr  uint64 = 0x4
	FlagCompressed uint64 = 0x800
)

// Compression header ch_type values.
const compressZlib = 1

// SymbolKind classifies a symbol-table entry by its st_info type.
type SymbolKind uint8

const (
	SymbolOther SymbolKind = iota
	SymbolObject
	SymbolFunc
)

// SymbolBinding classifies a symbol-table entry by its st_info binding.
type SymbolBinding uint8

const (
	BindingLocal SymbolBinding = iota
	BindingGlobal
	BindingWeak
	BindingOther
)

// Note types in .note.gnu.build-id style notes.
const noteTypeBuildID = 3

const (
	ehSize64     = 64
	ehSize32     = 52
	shEntSize64  = 64
	shEntSize32  = 40
	symEntSize64 = 24
	symEntSize32 = 16
)
