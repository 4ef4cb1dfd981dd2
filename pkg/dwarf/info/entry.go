package info

import (
	"fmt"

	"github.com/elfdbg/symbolizer/pkg/dwarf/abbrev"
	"github.com/elfdbg/symbolizer/pkg/dwarf/util"
)

// Offset is a byte offset into .debug_info, the unit of cross-entry
// references.
type Offset uint64

// Class describes how an attribute value is to be interpreted, which
// matters where one attribute admits several encodings (high_pc is either
// an absolute address or an offset from low_pc depending on its class).
type Class int

const (
	ClassUnknown Class = iota
	ClassAddress
	ClassConstant
	ClassString
	ClassReference
	ClassFlag
	ClassBlock
	ClassSecOffset
	ClassExprloc

	// ClassListIndex marks rnglistx/loclistx values: indices into the
	// offset array at the unit's list base, not direct section offsets.
	ClassListIndex
)

// Field is one decoded attribute of an entry.
type Field struct {
	Attr  abbrev.Attr
	Val   interface{}
	Class Class
}

// Entry is one decoded debugging-information entry with its children.
// The tree is owned by the unit that decoded it.
type Entry struct {
	Offset   Offset
	Tag      abbrev.Tag
	Fields   []Field
	Children []*Entry

	code uint64
}

// Val returns the value of the given attribute, or nil.
func (e *Entry) Val(attr abbrev.Attr) interface{} {
	for i := range e.Fields {
		if e.Fields[i].Attr == attr {
			return e.Fields[i].Val
		}
	}
	return nil
}

// Field returns the field for the given attribute, or nil.
func (e *Entry) Field(attr abbrev.Attr) *Field {
	for i := range e.Fields {
		if e.Fields[i].Attr == attr {
			return &e.Fields[i]
		}
	}
	return nil
}

// Uint returns an unsigned attribute value; signed constants are
// reinterpreted, other types report absence.
func (e *Entry) Uint(attr abbrev.Attr) (uint64, bool) {
	switch v := e.Val(attr).(type) {
	case uint64:
		return v, true
	case int64:
		return uint64(v), true
	}
	return 0, false
}

// Int returns a signed attribute value.
func (e *Entry) Int(attr abbrev.Attr) (int64, bool) {
	switch v := e.Val(attr).(type) {
	case int64:
		return v, true
	case uint64:
		return int64(v), true
	}
	return 0, false
}

// Str returns a string attribute value.
func (e *Entry) Str(attr abbrev.Attr) (string, bool) {
	v, ok := e.Val(attr).(string)
	return v, ok
}

// Ref returns a reference attribute as a .debug_info offset.
func (e *Entry) Ref(attr abbrev.Attr) (Offset, bool) {
	v, ok := e.Val(attr).(Offset)
	return v, ok
}

// maxTreeDepth bounds nesting so a malformed sibling/child encoding
// cannot recurse without limit.
const maxTreeDepth = 1024

// Root decodes the unit's DIE tree. The tree is not cached here; callers
// that need memoization hold it in their own per-unit cache.
func (u *Unit) Root() (*Entry, error) {
	return u.root(true)
}

// RootOnly decodes the root DIE without its children. Cheaper than Root
// when only unit-level attributes (name, ranges, stmt_list) are needed.
func (u *Unit) RootOnly() (*Entry, error) {
	return u.root(false)
}

func (u *Unit) root(children bool) (*Entry, error) {
	if u.Err != nil {
		return nil, u.Err
	}
	b := util.NewBuf(u.data.sec.Info[:u.End], u.data.sec.Order)
	if err := b.SeekTo(int(u.ContentStart)); err != nil {
		return nil, err
	}

	root, err := u.readEntry(b)
	if err != nil {
		return nil, fmt.Errorf("unit at %#x: %w", u.Offset, err)
	}
	if root == nil {
		return nil, fmt.Errorf("unit at %#x: empty unit", u.Offset)
	}
	u.setBases(root)

	if decl := u.table[root.code]; children && decl != nil && decl.Children {
		if err := u.readChildren(b, root, 1); err != nil {
			return nil, fmt.Errorf("unit at %#x: %w", u.Offset, err)
		}
	}
	if err := u.resolveIndirect(root); err != nil {
		return nil, fmt.Errorf("unit at %#x: %w", u.Offset, err)
	}
	return root, nil
}

// readChildren decodes sibling lists: entries until a null abbreviation
// code. Both termination mechanisms are honored: the null terminator and
// the unit's declared end (the Buf is sliced to it).
func (u *Unit) readChildren(b *util.Buf, parent *Entry, depth int) error {
	if depth > maxTreeDepth {
		return fmt.Errorf("DIE nesting deeper than %d: %w", maxTreeDepth, util.ErrMalformedEncoding)
	}
	for {
		child, err := u.readEntry(b)
		if err != nil {
			return err
		}
		if child == nil { // null entry terminates this sibling list
			return nil
		}
		parent.Children = append(parent.Children, child)
		if decl := u.table[child.code]; decl != nil && decl.Children {
			if err := u.readChildren(b, child, depth+1); err != nil {
				return err
			}
		}
	}
}

// readEntry decodes one DIE at the cursor. A zero abbreviation code
// returns (nil, nil).
func (u *Unit) readEntry(b *util.Buf) (*Entry, error) {
	off := Offset(b.Off())
	code, err := b.ULEB()
	if err != nil {
		return nil, err
	}
	if code == 0 {
		return nil, nil
	}
	decl := u.table[code]
	if decl == nil {
		return nil, fmt.Errorf("DIE at %#x: unknown abbreviation code %d: %w", off, code, util.ErrMalformedEncoding)
	}

	e := &Entry{Offset: off, Tag: decl.Tag, code: code}
	e.Fields = make([]Field, 0, len(decl.Attrs))
	for _, spec := range decl.Attrs {
		val, class, err := u.readForm(b, spec.Form, spec.Val, 0)
		if err != nil {
			return nil, fmt.Errorf("DIE at %#x attr %#x: %w", off, uint32(spec.Attr), err)
		}
		e.Fields = append(e.Fields, Field{Attr: spec.Attr, Val: val, Class: class})
	}
	return e, nil
}

// strIndex and addrIndex defer .debug_str_offsets/.debug_addr resolution
// until the unit's bases are known (they sit on the root DIE, which may
// itself carry indexed attributes).
type strIndex uint64
type addrIndex uint64

func (u *Unit) readForm(b *util.Buf, form abbrev.Form, implicit int64, indirectDepth int) (interface{}, Class, error) {
	switch form {
	case abbrev.FormAddr:
		v, err := b.Addr(u.AddrSize)
		return v, ClassAddress, err

	case abbrev.FormData1:
		v, err := b.Uint8()
		return uint64(v), ClassConstant, err
	case abbrev.FormData2:
		v, err := b.Uint16()
		return uint64(v), ClassConstant, err
	case abbrev.FormData4:
		v, err := b.Uint32()
		return uint64(v), ClassConstant, err
	case abbrev.FormData8:
		v, err := b.Uint64()
		return v, ClassConstant, err
	case abbrev.FormData16:
		v, err := b.Bytes(16)
		return v, ClassBlock, err
	case abbrev.FormSdata:
		v, err := b.SLEB()
		return v, ClassConstant, err
	case abbrev.FormUdata:
		v, err := b.ULEB()
		return v, ClassConstant, err
	case abbrev.FormImplicitConst:
		return implicit, ClassConstant, nil

	case abbrev.FormString:
		v, err := b.CString()
		return v, ClassString, err
	case abbrev.FormStrp:
		off, err := b.Offset(u.Dwarf64)
		if err != nil {
			return nil, ClassString, err
		}
		s, err := u.data.strAt(off)
		return s, ClassString, err
	case abbrev.FormLineStrp:
		off, err := b.Offset(u.Dwarf64)
		if err != nil {
			return nil, ClassString, err
		}
		s, err := u.data.lineStrAt(off)
		return s, ClassString, err
	case abbrev.FormStrx:
		v, err := b.ULEB()
		return strIndex(v), ClassString, err
	case abbrev.FormStrx1:
		v, err := b.Uint8()
		return strIndex(v), ClassString, err
	case abbrev.FormStrx2:
		v, err := b.Uint16()
		return strIndex(v), ClassString, err
	case abbrev.FormStrx3:
		v, err := b.Uint(3)
		return strIndex(v), ClassString, err
	case abbrev.FormStrx4:
		v, err := b.Uint32()
		return strIndex(v), ClassString, err

	case abbrev.FormAddrx:
		v, err := b.ULEB()
		return addrIndex(v), ClassAddress, err
	case abbrev.FormAddrx1:
		v, err := b.Uint8()
		return addrIndex(v), ClassAddress, err
	case abbrev.FormAddrx2:
		v, err := b.Uint16()
		return addrIndex(v), ClassAddress, err
	case abbrev.FormAddrx3:
		v, err := b.Uint(3)
		return addrIndex(v), ClassAddress, err
	case abbrev.FormAddrx4:
		v, err := b.Uint32()
		return addrIndex(v), ClassAddress, err

	case abbrev.FormRef1:
		v, err := b.Uint8()
		return Offset(u.Offset + uint64(v)), ClassReference, err
	case abbrev.FormRef2:
		v, err := b.Uint16()
		return Offset(u.Offset + uint64(v)), ClassReference, err
	case abbrev.FormRef4:
		v, err := b.Uint32()
		return Offset(u.Offset + uint64(v)), ClassReference, err
	case abbrev.FormRef8:
		v, err := b.Uint64()
		return Offset(u.Offset + v), ClassReference, err
	case abbrev.FormRefUdata:
		v, err := b.ULEB()
		return Offset(u.Offset + v), ClassReference, err
	case abbrev.FormRefAddr:
		// DWARF2 encoded this with the address size; v3+ use offset size.
		if u.Version == 2 {
			v, err := b.Addr(u.AddrSize)
			return Offset(v), ClassReference, err
		}
		v, err := b.Offset(u.Dwarf64)
		return Offset(v), ClassReference, err
	case abbrev.FormRefSig8:
		v, err := b.Uint64()
		return v, ClassReference, err

	case abbrev.FormSecOffset:
		v, err := b.Offset(u.Dwarf64)
		return v, ClassSecOffset, err
	case abbrev.FormLoclistx, abbrev.FormRnglistx:
		v, err := b.ULEB()
		return v, ClassListIndex, err

	case abbrev.FormFlag:
		v, err := b.Uint8()
		return v != 0, ClassFlag, err
	case abbrev.FormFlagPresent:
		return true, ClassFlag, nil

	case abbrev.FormBlock1:
		n, err := b.Uint8()
		if err != nil {
			return nil, ClassBlock, err
		}
		v, err := b.Bytes(int(n))
		return v, ClassBlock, err
	case abbrev.FormBlock2:
		n, err := b.Uint16()
		if err != nil {
			return nil, ClassBlock, err
		}
		v, err := b.Bytes(int(n))
		return v, ClassBlock, err
	case abbrev.FormBlock4:
		n, err := b.Uint32()
		if err != nil {
			return nil, ClassBlock, err
		}
		v, err := b.Bytes(int(n))
		return v, ClassBlock, err
	case abbrev.FormBlock:
		n, err := b.ULEB()
		if err != nil {
			return nil, ClassBlock, err
		}
		v, err := b.Bytes(int(n))
		return v, ClassBlock, err
	case abbrev.FormExprloc:
		n, err := b.ULEB()
		if err != nil {
			return nil, ClassExprloc, err
		}
		v, err := b.Bytes(int(n))
		return v, ClassExprloc, err

	case abbrev.FormRefSup4:
		v, err := b.Uint32()
		return uint64(v), ClassUnknown, err
	case abbrev.FormRefSup8:
		v, err := b.Uint64()
		return v, ClassUnknown, err
	case abbrev.FormStrpSup:
		v, err := b.Offset(u.Dwarf64)
		return v, ClassUnknown, err

	case abbrev.FormIndirect:
		if indirectDepth > 0 {
			return nil, ClassUnknown, fmt.Errorf("nested indirect form: %w", util.ErrMalformedEncoding)
		}
		actual, err := b.ULEB()
		if err != nil {
			return nil, ClassUnknown, err
		}
		return u.readForm(b, abbrev.Form(actual), implicit, indirectDepth+1)
	}
	// The length of an unknown form is undefined by the format, so the
	// unit cannot be decoded past this point.
	return nil, ClassUnknown, fmt.Errorf("unknown form %#x: %w", uint32(form), util.ErrMalformedEncoding)
}

// setBases captures the indirection bases declared on the root DIE.
func (u *Unit) setBases(root *Entry) {
	if v, ok := root.Uint(abbrev.AttrStrOffsetsBase); ok {
		u.strOffBase = v
	}
	if v, ok := root.Uint(abbrev.AttrAddrBase); ok {
		u.addrBase = v
	}
	if v, ok := root.Uint(abbrev.AttrRnglistsBase); ok {
		u.rngListsBase = v
		u.haveRngBase = true
	}
}

// resolveIndirect replaces deferred string/address indices throughout the
// tree now that the unit's bases are known. Unresolvable indices fail the
// unit rather than silently dropping attributes.
func (u *Unit) resolveIndirect(e *Entry) error {
	for i := range e.Fields {
		switch v := e.Fields[i].Val.(type) {
		case strIndex:
			s, err := u.strx(uint64(v))
			if err != nil {
				return err
			}
			e.Fields[i].Val = s
		case addrIndex:
			a, err := u.addrx(uint64(v))
			if err != nil {
				return err
			}
			e.Fields[i].Val = a
		}
	}
	for _, c := range e.Children {
		if err := u.resolveIndirect(c); err != nil {
			return err
		}
	}
	return nil
}
