// Package line interprets DWARF line-number programs (.debug_line),
// producing the address-to-source mapping for one compilation unit. The
// interpreter supports program versions 2 through 5, including the
// DWARF5 directory/file entry formats.
package line

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/elfdbg/symbolizer/pkg/dwarf/util"
)

// ErrUnsupportedVersion reports a line program outside versions 2..5.
var ErrUnsupportedVersion = errors.New("unsupported line program version")

// Row is one emitted line-table row. An EndSequence row marks the first
// address past a contiguous code range; it is an addressable boundary,
// not a resolvable source line.
type Row struct {
	Address     uint64
	File        int
	Line        int
	Column      int
	IsStmt      bool
	EndSequence bool
}

// FileEntry is one file-name table entry.
type FileEntry struct {
	Name     string
	DirIndex int
}

// Table is the decoded line table of one compilation unit. Rows are
// sorted by address with end-of-sequence boundaries ordered before rows
// that start a new sequence at the same address.
type Table struct {
	Version int
	Dirs    []string
	Files   []FileEntry
	Rows    []Row
}

// Config carries the inputs of one line-program decode.
type Config struct {
	Section  []byte // whole .debug_line section
	Offset   uint64 // from the unit's stmt_list attribute
	Order    binary.ByteOrder
	AddrSize int

	Str     []byte // .debug_str, for v5 strp file entries
	LineStr []byte // .debug_line_str

	// CompDir and CUName seed directory 0 / file 0 for pre-v5 programs,
	// whose tables are 1-based and leave the primary file implicit.
	CompDir string
	CUName  string
}

// DWARF5 directory/file entry content types.
const (
	lnctPath     = 1
	lnctDirIndex = 2
	lnctMD5      = 5
)

// Forms that appear in v5 line-table entry formats.
const (
	formString   = 0x08
	formData1    = 0x0b
	formData2    = 0x05
	formData4    = 0x06
	formData8    = 0x07
	formData16   = 0x1e
	formUdata    = 0x0f
	formStrp     = 0x0e
	formLineStrp = 0x1f
)

// header holds the decoded program header plus where the program starts.
type header struct {
	version      int
	minInstLen   int
	maxOpsPerIns int
	defaultStmt  bool
	lineBase     int
	lineRange    int
	opcodeBase   int
	stdLengths   []uint64
	programStart int
	end          int
}

// Parse decodes the line program at cfg.Offset and executes it.
func Parse(cfg Config) (*Table, error) {
	if cfg.Order == nil {
		cfg.Order = binary.LittleEndian
	}
	b := util.NewBuf(cfg.Section, cfg.Order)
	if err := b.SeekTo(int(cfg.Offset)); err != nil {
		return nil, fmt.Errorf("line program at %#x: %w", cfg.Offset, err)
	}

	t := &Table{}
	hdr, err := t.parseHeader(b, &cfg)
	if err != nil {
		return nil, fmt.Errorf("line program at %#x: %w", cfg.Offset, err)
	}
	if err := t.run(b, hdr); err != nil {
		return nil, fmt.Errorf("line program at %#x: %w", cfg.Offset, err)
	}
	t.sortRows()
	return t, nil
}

func (t *Table) parseHeader(b *util.Buf, cfg *Config) (*header, error) {
	length, dwarf64, err := b.InitialLength()
	if err != nil {
		return nil, err
	}
	end := uint64(b.Off()) + length
	if end > uint64(len(cfg.Section)) {
		return nil, fmt.Errorf("declared length %#x exceeds section: %w", length, util.ErrOutOfBounds)
	}
	hdr := &header{end: int(end)}

	version, err := b.Uint16()
	if err != nil {
		return nil, err
	}
	hdr.version = int(version)
	t.Version = hdr.version
	if hdr.version < 2 || hdr.version > 5 {
		return nil, fmt.Errorf("version %d: %w", hdr.version, ErrUnsupportedVersion)
	}

	if hdr.version >= 5 {
		addrSize, err1 := b.Uint8()
		_, err2 := b.Uint8() // segment selector size
		if err1 != nil || err2 != nil {
			return nil, util.ErrOutOfBounds
		}
		if cfg.AddrSize == 0 {
			cfg.AddrSize = int(addrSize)
		}
	}

	headerLen, err := b.Offset(dwarf64)
	if err != nil {
		return nil, err
	}
	hdr.programStart = b.Off() + int(headerLen)
	if hdr.programStart > hdr.end {
		return nil, fmt.Errorf("header length %#x exceeds unit: %w", headerLen, util.ErrOutOfBounds)
	}

	minInst, err := b.Uint8()
	if err != nil {
		return nil, err
	}
	hdr.minInstLen = int(minInst)
	if hdr.minInstLen == 0 {
		return nil, fmt.Errorf("zero minimum instruction length: %w", util.ErrMalformedEncoding)
	}
	hdr.maxOpsPerIns = 1
	if hdr.version >= 4 {
		mo, err := b.Uint8()
		if err != nil {
			return nil, err
		}
		if mo > 0 {
			hdr.maxOpsPerIns = int(mo)
		}
	}
	defStmt, err1 := b.Uint8()
	lineBase, err2 := b.Uint8()
	lineRange, err3 := b.Uint8()
	opcodeBase, err4 := b.Uint8()
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return nil, util.ErrOutOfBounds
	}
	hdr.defaultStmt = defStmt != 0
	hdr.lineBase = int(int8(lineBase))
	hdr.lineRange = int(lineRange)
	hdr.opcodeBase = int(opcodeBase)
	if hdr.lineRange == 0 || hdr.opcodeBase == 0 {
		return nil, fmt.Errorf("degenerate opcode parameters: %w", util.ErrMalformedEncoding)
	}
	hdr.stdLengths = make([]uint64, hdr.opcodeBase-1)
	for i := range hdr.stdLengths {
		if hdr.stdLengths[i], err = b.ULEB(); err != nil {
			return nil, err
		}
	}

	if hdr.version >= 5 {
		if err := t.parseV5Tables(b, cfg, dwarf64); err != nil {
			return nil, err
		}
	} else {
		if err := t.parseLegacyTables(b, cfg); err != nil {
			return nil, err
		}
	}
	return hdr, nil
}

// parseLegacyTables reads the v2-4 include-directory and file tables.
// Both are 1-based; slot 0 holds the compilation unit's own directory
// and primary file so indices map directly.
func (t *Table) parseLegacyTables(b *util.Buf, cfg *Config) error {
	t.Dirs = []string{cfg.CompDir}
	for {
		dir, err := b.CString()
		if err != nil {
			return err
		}
		if dir == "" {
			break
		}
		t.Dirs = append(t.Dirs, dir)
	}

	t.Files = []FileEntry{{Name: cfg.CUName}}
	for {
		name, err := b.CString()
		if err != nil {
			return err
		}
		if name == "" {
			return nil
		}
		dirIdx, err := b.ULEB()
		if err != nil {
			return err
		}
		if _, err := b.ULEB(); err != nil { // mtime
			return err
		}
		if _, err := b.ULEB(); err != nil { // length
			return err
		}
		t.Files = append(t.Files, FileEntry{Name: name, DirIndex: int(dirIdx)})
	}
}

type entryFormat struct {
	content uint64
	form    uint64
}

// parseV5Tables reads the format-described directory and file tables.
func (t *Table) parseV5Tables(b *util.Buf, cfg *Config, dwarf64 bool) error {
	readFormats := func() ([]entryFormat, error) {
		n, err := b.Uint8()
		if err != nil {
			return nil, err
		}
		formats := make([]entryFormat, n)
		for i := range formats {
			if formats[i].content, err = b.ULEB(); err != nil {
				return nil, err
			}
			if formats[i].form, err = b.ULEB(); err != nil {
				return nil, err
			}
		}
		return formats, nil
	}

	dirFormats, err := readFormats()
	if err != nil {
		return err
	}
	nDirs, err := b.ULEB()
	if err != nil {
		return err
	}
	for i := uint64(0); i < nDirs; i++ {
		name, _, err := t.readEntryValues(b, dirFormats, cfg, dwarf64)
		if err != nil {
			return err
		}
		t.Dirs = append(t.Dirs, name)
	}

	fileFormats, err := readFormats()
	if err != nil {
		return err
	}
	nFiles, err := b.ULEB()
	if err != nil {
		return err
	}
	for i := uint64(0); i < nFiles; i++ {
		name, dirIdx, err := t.readEntryValues(b, fileFormats, cfg, dwarf64)
		if err != nil {
			return err
		}
		t.Files = append(t.Files, FileEntry{Name: name, DirIndex: dirIdx})
	}
	return nil
}

// readEntryValues decodes one directory or file entry per its format
// description, keeping the path and directory index and skipping the rest
// (timestamps, sizes, MD5 checksums).
func (t *Table) readEntryValues(b *util.Buf, formats []entryFormat, cfg *Config, dwarf64 bool) (name string, dirIdx int, err error) {
	for _, f := range formats {
		var strVal string
		var intVal uint64
		switch f.form {
		case formString:
			strVal, err = b.CString()
		case formLineStrp:
			var off uint64
			if off, err = b.Offset(dwarf64); err == nil {
				strVal, err = stringAt(cfg.LineStr, off)
			}
		case formStrp:
			var off uint64
			if off, err = b.Offset(dwarf64); err == nil {
				strVal, err = stringAt(cfg.Str, off)
			}
		case formUdata:
			intVal, err = b.ULEB()
		case formData1:
			var v uint8
			v, err = b.Uint8()
			intVal = uint64(v)
		case formData2:
			var v uint16
			v, err = b.Uint16()
			intVal = uint64(v)
		case formData4:
			var v uint32
			v, err = b.Uint32()
			intVal = uint64(v)
		case formData8:
			intVal, err = b.Uint64()
		case formData16:
			_, err = b.Bytes(16)
		default:
			return "", 0, fmt.Errorf("file entry form %#x: %w", f.form, util.ErrMalformedEncoding)
		}
		if err != nil {
			return "", 0, err
		}
		switch f.content {
		case lnctPath:
			name = strVal
		case lnctDirIndex:
			dirIdx = int(intVal)
		}
	}
	return name, dirIdx, nil
}

func stringAt(sec []byte, off uint64) (string, error) {
	if off >= uint64(len(sec)) {
		return "", fmt.Errorf("string offset %#x: %w", off, util.ErrOutOfBounds)
	}
	b := util.NewBuf(sec, binary.LittleEndian)
	_ = b.SeekTo(int(off))
	return b.CString()
}
