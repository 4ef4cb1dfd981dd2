// Package symbol resolves raw code addresses to function, file and line
// information, including inlined-call chains, by combining the ELF
// container's symbol tables with the DWARF debug sections.
package symbol

import (
	"fmt"
	"io"

	"github.com/elfdbg/symbolizer/pkg/dwarf/frame"
	"github.com/elfdbg/symbolizer/pkg/dwarf/info"
	"github.com/elfdbg/symbolizer/pkg/elf"
)

// Image is the analyzed view of one ELF binary: its symbols, its DWARF
// units and the address index over both. An Image is read-only after
// Analyze returns; the per-unit caches behind it are safe for concurrent
// use.
type Image struct {
	file  *elf.File
	debug *elf.File // separate debug-info file, or file itself

	buildID string
	symbols []elf.Symbol
	dwarf   *info.Data
	secs    info.Sections
	lineSec []byte
	fdes    frame.FrameDescriptionEntries

	index *addressIndex
	cache *unitCache
	opts  options
}

// Analyze parses an ELF image and builds the structures symbolization
// needs. Container-level problems (bad magic, unusable section table)
// fail the call; anything section- or unit-local degrades instead.
func Analyze(data []byte, opts ...Option) (*Image, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	f, err := elf.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("analyze image: %w", err)
	}
	img := &Image{file: f, debug: f, buildID: f.BuildID(), opts: o}

	if img.stripped() && img.buildID != "" && o.debugInfo != nil {
		img.loadExternalDebugInfo()
	}
	img.loadSymbols()
	img.loadDwarf()
	img.loadFrames()

	img.index = buildIndex(img)
	img.cache = newUnitCache()
	return img, nil
}

// BuildID returns the image's GNU build id as a hex string, or "".
func (img *Image) BuildID() string { return img.buildID }

// DebugLink returns the .gnu_debuglink file name and CRC, if present.
func (img *Image) DebugLink() (string, uint32) { return img.file.DebugLink() }

// stripped reports whether the image itself carries no .debug_info.
func (img *Image) stripped() bool {
	d, err := img.file.DebugSection("info")
	return err != nil || len(d) == 0
}

// loadExternalDebugInfo swaps the debug-section provider to an external
// image keyed by build id. Failures leave the stripped image in place;
// symbol-table resolution still works.
func (img *Image) loadExternalDebugInfo() {
	raw, err := img.opts.debugInfo.DebugInfo(img.buildID)
	if err != nil || len(raw) == 0 {
		return
	}
	df, err := elf.Parse(raw)
	if err != nil {
		return
	}
	img.debug = df
}

// loadSymbols picks the richest available symbol table: the debug file's,
// then the image's own, then the MiniDebugInfo one embedded in
// .gnu_debugdata.
func (img *Image) loadSymbols() {
	syms, _ := img.debug.Symbols()
	if len(syms) == 0 && img.debug != img.file {
		syms, _ = img.file.Symbols()
	}
	if len(syms) == 0 {
		if inner, err := img.file.GnuDebugData(); err == nil && inner != nil {
			syms, _ = inner.Symbols()
		}
	}
	img.symbols = syms
}

func (img *Image) loadDwarf() {
	sec := func(name string) []byte {
		d, _ := img.debug.DebugSection(name)
		return d
	}
	img.secs = info.Sections{
		Info:       sec("info"),
		Abbrev:     sec("abbrev"),
		Str:        sec("str"),
		LineStr:    sec("line_str"),
		StrOffsets: sec("str_offsets"),
		Addr:       sec("addr"),
		Ranges:     sec("ranges"),
		RngLists:   sec("rnglists"),
		Order:      img.debug.Order,
	}
	img.dwarf = info.New(img.secs)
	img.lineSec = sec("line")
}

// loadFrames collects FDE address ranges, preferring .debug_frame and
// falling back to the runtime .eh_frame. They serve as a last range
// source for code no symbol or DWARF function covers.
func (img *Image) loadFrames() {
	ptrSize := 8
	if img.file.Class == elf.Class32 {
		ptrSize = 4
	}
	if d, err := img.debug.DebugSection("frame"); err == nil && len(d) > 0 {
		if fdes, err := frame.Parse(d, img.debug.Order, frame.DebugFrame, 0, ptrSize); err == nil {
			img.fdes = fdes
			return
		}
	}
	if s := img.file.Section(".eh_frame"); s != nil {
		if d, err := s.Data(); err == nil {
			if fdes, err := frame.Parse(d, img.file.Order, frame.EhFrame, s.Addr, ptrSize); err == nil {
				img.fdes = fdes
			}
		}
	}
}

// FunctionExtent returns the address range of the function containing pc,
// drawn from the most precise available source: a DWARF subprogram, then
// an ELF symbol, then an FDE.
func (img *Image) FunctionExtent(pc uint64) (start, end uint64, ok bool) {
	if r := img.index.unitFor(pc); r != nil {
		if cu := img.cache.get(img, img.dwarf.Units()[r.unit]); cu.err == nil {
			if fr := cu.funcFor(pc); fr != nil {
				return fr.start, fr.end, true
			}
		}
	}
	if sym := img.index.symbolFor(pc); sym != nil {
		return sym.start, sym.end, true
	}
	if fde, err := img.fdes.FDEForPC(pc); err == nil {
		return fde.Begin(), fde.End(), true
	}
	return 0, 0, false
}

// CacheStats reports per-unit cache activity, mostly for tests and for
// embedders watching memory behavior.
type CacheStats struct {
	Hits   int64
	Builds int64
}

// CacheStats returns a snapshot of the unit cache counters.
func (img *Image) CacheStats() CacheStats {
	return CacheStats{
		Hits:   img.cache.hits.Load(),
		Builds: img.cache.builds.Load(),
	}
}

// Dump writes a one-screen summary of what analysis found. Debugging
// helper, not a stable format.
func (img *Image) Dump(w io.Writer) {
	fmt.Fprintf(w, "build id: %s\n", img.buildID)
	fmt.Fprintf(w, "symbols:  %d\n", len(img.symbols))
	fmt.Fprintf(w, "fdes:     %d\n", len(img.fdes))
	units := img.dwarf.Units()
	fmt.Fprintf(w, "units:    %d\n", len(units))
	for _, u := range units {
		status := "ok"
		if u.Err != nil {
			status = u.Err.Error()
		}
		fmt.Fprintf(w, "  unit %d at %#x: DWARF v%d, addr size %d: %s\n",
			u.Index, u.Offset, u.Version, u.AddrSize, status)
	}
}
