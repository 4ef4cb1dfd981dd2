package symbol

import (
	"sort"

	"github.com/elfdbg/symbolizer/pkg/dwarf/abbrev"
	"github.com/elfdbg/symbolizer/pkg/dwarf/info"
	"github.com/elfdbg/symbolizer/pkg/dwarf/line"
)

// funcRange is one contiguous range of one subprogram. A subprogram with
// several ranges contributes several entries sharing the same DIE.
type funcRange struct {
	start, end uint64
	entry      *info.Entry
}

// compileUnit carries everything the resolver needs from one unit: the
// decoded DIE tree, an offset index for reference chasing, subprogram
// ranges sorted by start, and the unit's line table. A unit that fails to
// decode keeps only err; its addresses degrade to symbol results.
type compileUnit struct {
	unit  *info.Unit
	root  *info.Entry
	base  uint64
	byOff map[info.Offset]*info.Entry
	funcs []funcRange
	table *line.Table
	err   error
}

func newCompileUnit(img *Image, u *info.Unit) *compileUnit {
	cu := &compileUnit{unit: u}
	root, err := u.Root()
	if err != nil {
		cu.err = &CorruptUnitError{Unit: u.Index, Err: err}
		return cu
	}
	cu.root = root
	cu.base = u.BaseAddr(root)
	cu.byOff = make(map[info.Offset]*info.Entry)
	cu.indexTree(root)
	sort.Slice(cu.funcs, func(i, j int) bool {
		return cu.funcs[i].start < cu.funcs[j].start
	})
	cu.parseLineTable(img, root)
	return cu
}

// indexTree records every entry by offset and collects subprogram ranges.
// Subprograms hide inside namespaces and type DIEs, so the whole tree is
// walked.
func (cu *compileUnit) indexTree(e *info.Entry) {
	cu.byOff[e.Offset] = e
	if e.Tag == abbrev.TagSubprogram {
		if ranges, err := cu.unit.EntryRanges(e, cu.base); err == nil {
			for _, r := range ranges {
				if r[0] < r[1] {
					cu.funcs = append(cu.funcs, funcRange{start: r[0], end: r[1], entry: e})
				}
			}
		}
	}
	for _, c := range e.Children {
		cu.indexTree(c)
	}
}

// parseLineTable decodes the unit's line program. Failure leaves table
// nil: names still resolve, lines degrade to absent.
func (cu *compileUnit) parseLineTable(img *Image, root *info.Entry) {
	stmtList, ok := root.Uint(abbrev.AttrStmtList)
	if !ok || len(img.lineSec) == 0 {
		return
	}
	compDir, _ := root.Str(abbrev.AttrCompDir)
	cuName, _ := root.Str(abbrev.AttrName)
	table, err := line.Parse(line.Config{
		Section:  img.lineSec,
		Offset:   stmtList,
		Order:    img.secs.Order,
		AddrSize: cu.unit.AddrSize,
		Str:      img.secs.Str,
		LineStr:  img.secs.LineStr,
		CompDir:  compDir,
		CUName:   cuName,
	})
	if err == nil {
		cu.table = table
	}
}

// funcFor returns the subprogram range covering pc, or nil when pc falls
// into padding inside the unit's extent.
func (cu *compileUnit) funcFor(pc uint64) *funcRange {
	idx := sort.Search(len(cu.funcs), func(i int) bool {
		return cu.funcs[i].start > pc
	})
	if idx == 0 {
		return nil
	}
	fr := &cu.funcs[idx-1]
	if pc >= fr.end {
		return nil
	}
	return fr
}

// covers reports whether any of the entry's ranges contains pc.
func (cu *compileUnit) covers(e *info.Entry, pc uint64) bool {
	ranges, err := cu.unit.EntryRanges(e, cu.base)
	if err != nil {
		return false
	}
	for _, r := range ranges {
		if r[0] <= pc && pc < r[1] {
			return true
		}
	}
	return false
}

// inlineChain collects the inlined-subroutine DIEs containing pc inside
// the given subprogram, ordered outermost first.
func (cu *compileUnit) inlineChain(sp *info.Entry, pc uint64) []*info.Entry {
	var chain []*info.Entry
	for cur := sp; ; {
		next := cu.coveredInline(cur, pc)
		if next == nil {
			return chain
		}
		chain = append(chain, next)
		cur = next
	}
}

// coveredInline finds the inlined subroutine covering pc among the
// entry's children, looking through block-scoping DIEs.
func (cu *compileUnit) coveredInline(e *info.Entry, pc uint64) *info.Entry {
	for _, c := range e.Children {
		switch c.Tag {
		case abbrev.TagInlinedSubroutine:
			if cu.covers(c, pc) {
				return c
			}
		case abbrev.TagLexicalBlock, abbrev.TagTryBlock, abbrev.TagCatchBlock:
			if in := cu.coveredInline(c, pc); in != nil {
				return in
			}
		}
	}
	return nil
}

// callSite returns the source location an inlined subroutine was called
// from, per its call_file/call_line attributes. Nil when absent.
func (cu *compileUnit) callSite(in *info.Entry) *Location {
	fileIdx, haveFile := in.Uint(abbrev.AttrCallFile)
	callLine, haveLine := in.Uint(abbrev.AttrCallLine)
	if !haveFile && !haveLine {
		return nil
	}
	loc := &Location{Line: int(callLine)}
	if col, ok := in.Uint(abbrev.AttrCallColumn); ok {
		loc.Column = int(col)
	}
	if haveFile && cu.table != nil {
		loc.File = cu.table.FileName(int(fileIdx))
	}
	return loc
}
