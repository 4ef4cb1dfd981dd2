package symbol

import (
	"github.com/ianlancetaylor/demangle"

	"github.com/elfdbg/symbolizer/pkg/dwarf/abbrev"
	"github.com/elfdbg/symbolizer/pkg/dwarf/info"
)

// Location is a source position. A nil *Location on a frame means the
// position is unknown, which is distinct from line zero.
type Location struct {
	File   string
	Line   int
	Column int
}

// Frame is one resolved stack frame. Inline marks frames synthesized
// from inlined-subroutine DIEs; the outermost frame of a result is never
// inline.
type Frame struct {
	Func   string
	Loc    *Location
	Inline bool
}

// Result is the resolution of one address: at least one frame, innermost
// first. An address outside all known code yields a single frame with an
// empty name and nil location.
type Result struct {
	Addr   uint64
	Frames []Frame
}

// Symbolize resolves one address. It never fails: malformed or missing
// debug data degrades the result, worst case to the unknown shape.
func (img *Image) Symbolize(pc uint64) Result {
	res := Result{Addr: pc}
	sym := img.index.symbolFor(pc)

	if r := img.index.unitFor(pc); r != nil {
		if frames := img.dwarfFrames(pc, r.unit, sym); frames != nil {
			res.Frames = frames
			return res
		}
	}
	if sym != nil {
		res.Frames = []Frame{{Func: img.demangled(sym.sym.Name)}}
		return res
	}
	res.Frames = []Frame{{}}
	return res
}

// SymbolizeBatch resolves addresses in input order. All per-unit work is
// shared through the image cache, so repeated units cost one decode.
func (img *Image) SymbolizeBatch(pcs []uint64) []Result {
	out := make([]Result, len(pcs))
	for i, pc := range pcs {
		out[i] = img.Symbolize(pc)
	}
	return out
}

// dwarfFrames builds the frame chain for a pc owned by a unit. A nil
// return means DWARF could not place the pc (corrupt unit, or padding
// between functions) and the caller falls back to the symbol table.
func (img *Image) dwarfFrames(pc uint64, unit int, sym *symRange) []Frame {
	cu := img.cache.get(img, img.dwarf.Units()[unit])
	if cu.err != nil {
		return nil
	}
	fr := cu.funcFor(pc)
	if fr == nil {
		return nil
	}

	var bodyLoc *Location
	if cu.table != nil {
		if row, ok := cu.table.LookupPC(pc); ok {
			bodyLoc = &Location{
				File:   cu.table.FileName(row.File),
				Line:   row.Line,
				Column: row.Column,
			}
		}
	}

	chain := cu.inlineChain(fr.entry, pc)
	frames := make([]Frame, 0, len(chain)+1)

	// The innermost frame owns the line-table position; every caller
	// frame takes the call site recorded on the inlinee below it.
	loc := bodyLoc
	for i := len(chain) - 1; i >= 0; i-- {
		frames = append(frames, Frame{Func: img.nameOf(cu, chain[i]), Loc: loc, Inline: true})
		loc = cu.callSite(chain[i])
	}

	name := img.nameOf(cu, fr.entry)
	if name == "" && sym != nil {
		name = img.demangled(sym.sym.Name)
	}
	frames = append(frames, Frame{Func: name, Loc: loc, Inline: false})
	return frames
}

// nameOf resolves an entry's display name, chasing abstract_origin and
// specification references, across units when needed.
func (img *Image) nameOf(cu *compileUnit, e *info.Entry) string {
	for depth := 0; e != nil && depth < 8; depth++ {
		if s, ok := e.Str(abbrev.AttrLinkageName); ok {
			return img.demangled(s)
		}
		if s, ok := e.Str(abbrev.AttrMIPSLinkageName); ok {
			return img.demangled(s)
		}
		if s, ok := e.Str(abbrev.AttrName); ok {
			return s
		}
		ref, ok := e.Ref(abbrev.AttrAbstractOrigin)
		if !ok {
			ref, ok = e.Ref(abbrev.AttrSpecification)
		}
		if !ok {
			return ""
		}
		cu, e = img.entryAt(ref, cu)
	}
	return ""
}

// entryAt resolves a .debug_info offset to its entry, consulting the
// owning unit's cache. References usually land in the same unit; ref_addr
// may cross into another.
func (img *Image) entryAt(off info.Offset, hint *compileUnit) (*compileUnit, *info.Entry) {
	if hint != nil {
		if e, ok := hint.byOff[off]; ok {
			return hint, e
		}
	}
	u := img.dwarf.FindUnit(off)
	if u == nil {
		return nil, nil
	}
	cu := img.cache.get(img, u)
	if cu.err != nil {
		return nil, nil
	}
	return cu, cu.byOff[off]
}

func (img *Image) demangled(name string) string {
	if !img.opts.demangle || name == "" {
		return name
	}
	return demangle.Filter(name)
}
