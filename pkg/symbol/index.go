package symbol

import (
	"sort"

	"github.com/elfdbg/symbolizer/pkg/elf"
)

// cuRange is one contiguous address range owned by a compilation unit.
type cuRange struct {
	start, end uint64
	unit       int
}

// symRange is one function symbol with its effective address range. Zero
// symbol sizes are patched to extend to the next function's start, the
// usual shape of hand-written assembly entries.
type symRange struct {
	start, end uint64
	sym        *elf.Symbol
}

// addressIndex maps a pc to its owners. The DWARF and symbol sides stay
// separate: ranges within each source never overlap, and the resolver
// applies the cross-source preference (DWARF wins names and lines, the
// symbol supplies the fallback name).
type addressIndex struct {
	cus  []cuRange
	syms []symRange
}

// buildIndex derives unit extents from each unit's root DIE and function
// extents from the symbol table. Construction is deterministic: two
// builds over the same image produce identical orderings.
func buildIndex(img *Image) *addressIndex {
	ix := &addressIndex{}

	for _, u := range img.dwarf.Units() {
		if u.Err != nil {
			continue
		}
		root, err := u.RootOnly()
		if err != nil {
			continue
		}
		ranges, err := u.EntryRanges(root, u.BaseAddr(root))
		if err != nil {
			continue
		}
		for _, r := range ranges {
			if r[0] < r[1] {
				ix.cus = append(ix.cus, cuRange{start: r[0], end: r[1], unit: u.Index})
			}
		}
	}
	sort.Slice(ix.cus, func(i, j int) bool {
		if ix.cus[i].start != ix.cus[j].start {
			return ix.cus[i].start < ix.cus[j].start
		}
		return ix.cus[i].unit < ix.cus[j].unit
	})

	ix.syms = functionRanges(img.symbols)
	return ix
}

// functionRanges filters the (already address-sorted) symbol table down
// to function entries and assigns effective ends.
func functionRanges(symbols []elf.Symbol) []symRange {
	var out []symRange
	for i := range symbols {
		if symbols[i].Kind != elf.SymbolFunc || symbols[i].Value == 0 {
			continue
		}
		out = append(out, symRange{start: symbols[i].Value, sym: &symbols[i]})
	}
	for i := range out {
		if size := out[i].sym.Size; size > 0 {
			out[i].end = out[i].start + size
		} else if i+1 < len(out) {
			out[i].end = out[i+1].start
		} else {
			out[i].end = out[i].start
		}
		// Clamp overlaps so ranges within the source stay disjoint.
		if i+1 < len(out) && out[i].end > out[i+1].start {
			out[i].end = out[i+1].start
		}
	}
	return out
}

// unitFor returns a unit owning pc, or nil. Unit ranges may overlap when
// the linker folds identical code, so the last range starting at or
// before pc is not necessarily the covering one; scan back to one that is.
func (ix *addressIndex) unitFor(pc uint64) *cuRange {
	idx := sort.Search(len(ix.cus), func(i int) bool {
		return ix.cus[i].start > pc
	})
	for i := idx - 1; i >= 0; i-- {
		if pc < ix.cus[i].end {
			return &ix.cus[i]
		}
	}
	return nil
}

// symbolFor returns the function symbol covering pc, or nil.
func (ix *addressIndex) symbolFor(pc uint64) *symRange {
	idx := sort.Search(len(ix.syms), func(i int) bool {
		return ix.syms[i].start > pc
	})
	if idx == 0 {
		return nil
	}
	r := &ix.syms[idx-1]
	if pc >= r.end {
		return nil
	}
	return r
}
