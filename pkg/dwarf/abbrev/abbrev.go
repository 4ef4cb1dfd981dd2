// Package abbrev decodes DWARF abbreviation tables (.debug_abbrev) and
// defines the tag/attribute/form vocabulary shared by the DWARF packages.
// Each compilation unit names the table it encodes its entries against;
// a table maps abbreviation codes to the attribute list of a DIE.
package abbrev

import (
	"encoding/binary"
	"fmt"

	"github.com/elfdbg/symbolizer/pkg/dwarf/util"
)

// AttrSpec is one attribute declaration inside an abbreviation.
type AttrSpec struct {
	Attr Attr
	Form Form

	// Val carries the value of a DW_FORM_implicit_const declaration,
	// which lives in the abbreviation table rather than the DIE stream.
	Val int64
}

// Decl is one abbreviation: the shape of every DIE encoded with its code.
type Decl struct {
	Code     uint64
	Tag      Tag
	Children bool
	Attrs    []AttrSpec
}

// Table maps abbreviation codes to declarations for one compilation unit.
type Table map[uint64]*Decl

// ParseTable decodes the abbreviation table starting at off in the
// .debug_abbrev section. The table ends at a zero abbreviation code.
func ParseTable(data []byte, off uint64) (Table, error) {
	if off > uint64(len(data)) {
		return nil, fmt.Errorf("abbrev table offset %#x: %w", off, util.ErrOutOfBounds)
	}
	b := util.NewBuf(data, binary.LittleEndian) // LEB128-only content, order is irrelevant
	if err := b.SeekTo(int(off)); err != nil {
		return nil, err
	}

	table := make(Table)
	for {
		code, err := b.ULEB()
		if err != nil {
			return nil, fmt.Errorf("abbrev code: %w", err)
		}
		if code == 0 {
			return table, nil
		}

		tag, err := b.ULEB()
		if err != nil {
			return nil, fmt.Errorf("abbrev %d tag: %w", code, err)
		}
		children, err := b.Uint8()
		if err != nil {
			return nil, fmt.Errorf("abbrev %d children flag: %w", code, err)
		}

		decl := &Decl{Code: code, Tag: Tag(tag), Children: children != 0}
		for {
			attr, err := b.ULEB()
			if err != nil {
				return nil, fmt.Errorf("abbrev %d attr: %w", code, err)
			}
			form, err := b.ULEB()
			if err != nil {
				return nil, fmt.Errorf("abbrev %d form: %w", code, err)
			}
			if attr == 0 && form == 0 {
				break
			}
			spec := AttrSpec{Attr: Attr(attr), Form: Form(form)}
			if spec.Form == FormImplicitConst {
				if spec.Val, err = b.SLEB(); err != nil {
					return nil, fmt.Errorf("abbrev %d implicit const: %w", code, err)
				}
			}
			decl.Attrs = append(decl.Attrs, spec)
		}
		table[code] = decl
	}
}
