package elf

import (
	"fmt"
	"sort"

	"github.com/elfdbg/symbolizer/pkg/dwarf/util"
)

// Symbol is one symbol-table entry with its name already resolved through
// the linked string table.
type Symbol struct {
	Name    string
	Value   uint64
	Size    uint64
	Kind    SymbolKind
	Binding SymbolBinding

	// LowConfidence marks entries with a zero size or zero address; they
	// rarely delimit a useful range and only serve as a last resort.
	LowConfidence bool
}

// Symbols returns the entries of .symtab, falling back to .dynsym when the
// binary is stripped of the full symbol table. The result is sorted by
// start address; at equal addresses function symbols sort after others so
// that a backwards scan prefers the most specific entry.
func (f *File) Symbols() ([]Symbol, error) {
	sec := f.Section(".symtab")
	if sec == nil {
		sec = f.Section(".dynsym")
	}
	if sec == nil {
		return nil, nil
	}
	return f.readSymbols(sec)
}

func (f *File) readSymbols(sec *Section) ([]Symbol, error) {
	data, err := sec.Data()
	if err != nil {
		return nil, err
	}
	var strtab []byte
	if int(sec.Link) < len(f.sections) {
		strtab, err = f.sections[sec.Link].Data()
		if err != nil {
			return nil, err
		}
	}

	entSize := symEntSize64
	if f.Class == Class32 {
		entSize = symEntSize32
	}
	if sec.Entsize != 0 && int(sec.Entsize) >= entSize {
		entSize = int(sec.Entsize)
	}

	var syms []Symbol
	b := util.NewBuf(data, f.Order)
	for i := 0; b.Len() >= entSize; i++ {
		start := b.Off()
		sym, err := f.readSymbol(b)
		if err != nil {
			return nil, fmt.Errorf("symbol %d: %w", i, err)
		}
		if err := b.SeekTo(start + entSize); err != nil {
			return nil, err
		}
		if i == 0 {
			// Index 0 is the reserved null symbol.
			continue
		}
		sym.Name = nameAt(strtab, sym.nameOff)
		sym.LowConfidence = sym.Size == 0 || sym.Value == 0
		syms = append(syms, sym.Symbol)
	}

	sort.SliceStable(syms, func(i, j int) bool {
		if syms[i].Value != syms[j].Value {
			return syms[i].Value < syms[j].Value
		}
		if (syms[i].Kind == SymbolFunc) != (syms[j].Kind == SymbolFunc) {
			return syms[i].Kind != SymbolFunc
		}
		return syms[i].Size < syms[j].Size
	})
	return syms, nil
}

type rawSymbol struct {
	Symbol
	nameOff uint32
}

func (f *File) readSymbol(b *util.Buf) (rawSymbol, error) {
	var s rawSymbol
	var info uint8
	var err error
	if f.Class == Class64 {
		s.nameOff, err = b.Uint32()
		if err == nil {
			info, err = b.Uint8()
		}
		if err == nil {
			err = b.Skip(1 + 2) // st_other, st_shndx
		}
		if err == nil {
			s.Value, err = b.Uint64()
		}
		if err == nil {
			s.Size, err = b.Uint64()
		}
	} else {
		s.nameOff, err = b.Uint32()
		var v, sz uint32
		if err == nil {
			v, err = b.Uint32()
		}
		if err == nil {
			sz, err = b.Uint32()
		}
		if err == nil {
			info, err = b.Uint8()
		}
		if err == nil {
			err = b.Skip(1 + 2)
		}
		s.Value, s.Size = uint64(v), uint64(sz)
	}
	if err != nil {
		return s, err
	}

	switch info & 0xf {
	case 1:
		s.Kind = SymbolObject
	case 2:
		s.Kind = SymbolFunc
	default:
		s.Kind = SymbolOther
	}
	switch info >> 4 {
	case 0:
		s.Binding = BindingLocal
	case 1:
		s.Binding = BindingGlobal
	case 2:
		s.Binding = BindingWeak
	default:
		s.Binding = BindingOther
	}
	return s, nil
}
