package line

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elfdbg/symbolizer/internal/fixture"
)

// buildV4Program wraps a hand-written opcode stream in a well-formed
// version 4 header with line_base -5, line_range 14, opcode_base 13 and
// a file table of a.c (in dir 1, "src") and b.c (in dir 0).
func buildV4Program(program func(w *fixture.W)) []byte {
	w := &fixture.W{}
	w.U32(0) // unit length, patched below
	w.U16(4)
	hdrLenOff := w.Len()
	w.U32(0) // header length, patched below
	w.U8(1)    // minimum_instruction_length
	w.U8(1)    // maximum_operations_per_instruction
	w.U8(1)    // default_is_stmt
	w.U8(0xfb) // line_base -5
	w.U8(14)   // line_range
	w.U8(13)   // opcode_base
	for _, n := range []byte{0, 1, 1, 1, 1, 0, 0, 0, 1, 0, 0, 1} {
		w.U8(n)
	}
	w.Str("src")
	w.U8(0)
	w.Str("a.c").ULEB(1).ULEB(0).ULEB(0)
	w.Str("b.c").ULEB(0).ULEB(0).ULEB(0)
	w.U8(0)
	w.PatchU32(hdrLenOff, uint32(w.Len()-hdrLenOff-4))
	program(w)
	w.PatchU32(0, uint32(w.Len()-4))
	return w.Buf
}

func setAddress(w *fixture.W, addr uint64) { w.U8(0).ULEB(9).U8(2).U64(addr) }
func endSequence(w *fixture.W)             { w.U8(0).ULEB(1).U8(1) }
func advanceLine(w *fixture.W, d int64)    { w.U8(3).SLEB(d) }
func advancePC(w *fixture.W, d uint64)     { w.U8(2).ULEB(d) }
func copyRow(w *fixture.W)                 { w.U8(1) }

func TestLookupPC(t *testing.T) {
	sec := buildV4Program(func(w *fixture.W) {
		setAddress(w, 0x1000)
		advanceLine(w, 9)
		copyRow(w) // 0x1000 line 10
		advancePC(w, 0x20)
		advanceLine(w, 2)
		copyRow(w) // 0x1020 line 12
		advancePC(w, 0x20)
		endSequence(w) // range ends at 0x1040
	})

	tab, err := Parse(Config{Section: sec, CompDir: "/wd", CUName: "a.c"})
	require.NoError(t, err)
	require.Len(t, tab.Rows, 3)

	for _, test := range []struct {
		pc   uint64
		line int
		ok   bool
	}{
		{0x0fff, 0, false},
		{0x1000, 10, true},
		{0x101f, 10, true},
		{0x1020, 12, true},
		{0x1030, 12, true},
		{0x103f, 12, true},
		{0x1040, 0, false}, // first address past the sequence
		{0x9000, 0, false},
	} {
		row, ok := tab.LookupPC(test.pc)
		assert.Equal(t, test.ok, ok, "pc %#x", test.pc)
		if test.ok {
			assert.Equal(t, test.line, row.Line, "pc %#x", test.pc)
			assert.Equal(t, "src/a.c", tab.FileName(row.File))
		}
	}
}

func TestSequenceHole(t *testing.T) {
	sec := buildV4Program(func(w *fixture.W) {
		setAddress(w, 0x1000)
		copyRow(w)
		advancePC(w, 0x40)
		endSequence(w)
		setAddress(w, 0x2000)
		advanceLine(w, 99)
		copyRow(w)
		advancePC(w, 0x10)
		endSequence(w)
	})

	tab, err := Parse(Config{Section: sec})
	require.NoError(t, err)

	_, ok := tab.LookupPC(0x1800)
	assert.False(t, ok, "hole between sequences must not resolve")

	row, ok := tab.LookupPC(0x2008)
	require.True(t, ok)
	assert.Equal(t, 100, row.Line)
}

func TestSpecialAndStandardOpcodes(t *testing.T) {
	// Special opcode 49: adjusted 36 = advance 2 addresses, +3 lines.
	sec := buildV4Program(func(w *fixture.W) {
		setAddress(w, 0x100)
		w.U8(49)      // 0x102 line 4
		w.U8(8)       // const_add_pc: +(255-13)/14 = 17
		copyRow(w)    // 0x113 line 4
		w.U8(9).U16(3) // fixed_advance_pc
		w.U8(6)       // negate_stmt
		copyRow(w)    // 0x116 line 4, is_stmt false
		advancePC(w, 1)
		endSequence(w)
	})

	tab, err := Parse(Config{Section: sec})
	require.NoError(t, err)
	require.Len(t, tab.Rows, 4)

	assert.Equal(t, Row{Address: 0x102, File: 1, Line: 4, IsStmt: true}, tab.Rows[0])
	assert.Equal(t, uint64(0x113), tab.Rows[1].Address)
	assert.Equal(t, Row{Address: 0x116, File: 1, Line: 4, IsStmt: false}, tab.Rows[2])
	assert.True(t, tab.Rows[3].EndSequence)
}

func TestDefineFileAndColumns(t *testing.T) {
	sec := buildV4Program(func(w *fixture.W) {
		// DW_LNE_define_file "gen.c" in dir 1.
		w.U8(0).ULEB(uint64(len("gen.c") + 5)).U8(3).Str("gen.c").ULEB(1).ULEB(0).ULEB(0)
		setAddress(w, 0x10)
		w.U8(4).ULEB(3) // set_file: the defined entry
		w.U8(5).ULEB(7) // set_column
		copyRow(w)
		advancePC(w, 4)
		endSequence(w)
	})

	tab, err := Parse(Config{Section: sec})
	require.NoError(t, err)
	require.Len(t, tab.Rows, 2)
	assert.Equal(t, 7, tab.Rows[0].Column)
	assert.Equal(t, "src/gen.c", tab.FileName(tab.Rows[0].File))
}

func TestFileNameLegacy(t *testing.T) {
	sec := buildV4Program(func(w *fixture.W) {
		setAddress(w, 0x10)
		copyRow(w)
		advancePC(w, 4)
		endSequence(w)
	})

	tab, err := Parse(Config{Section: sec, CompDir: "/wd", CUName: "main.c"})
	require.NoError(t, err)

	assert.Equal(t, "/wd/main.c", tab.FileName(0)) // the unit's primary file
	assert.Equal(t, "src/a.c", tab.FileName(1))
	assert.Equal(t, "/wd/b.c", tab.FileName(2))
	assert.Equal(t, "", tab.FileName(3))
	assert.Equal(t, "", tab.FileName(-1))
}

func TestParseV5(t *testing.T) {
	lineStr := (&fixture.W{}).U8(0).Str("/wd").Str("src").Buf // offsets 1, 5

	w := &fixture.W{}
	w.U32(0) // unit length, patched below
	w.U16(5)
	w.U8(8) // address size
	w.U8(0) // segment selector size
	hdrLenOff := w.Len()
	w.U32(0) // header length, patched below
	w.U8(1).U8(1).U8(1)
	w.U8(0xfb).U8(14).U8(13)
	for _, n := range []byte{0, 1, 1, 1, 1, 0, 0, 0, 1, 0, 0, 1} {
		w.U8(n)
	}
	// Directory table: one format pair (path, line_strp).
	w.U8(1).ULEB(1).ULEB(0x1f)
	w.ULEB(2).U32(1).U32(5)
	// File table: (path, string) and (directory_index, udata).
	w.U8(2).ULEB(1).ULEB(0x08).ULEB(2).ULEB(0x0f)
	w.ULEB(2)
	w.Str("main.c").ULEB(0)
	w.Str("a.c").ULEB(1)
	w.PatchU32(hdrLenOff, uint32(w.Len()-hdrLenOff-4))

	setAddress(w, 0x4000)
	advanceLine(w, 41)
	copyRow(w)
	advancePC(w, 8)
	endSequence(w)
	w.PatchU32(0, uint32(w.Len()-4))

	tab, err := Parse(Config{Section: w.Buf, LineStr: lineStr})
	require.NoError(t, err)
	assert.Equal(t, 5, tab.Version)
	require.Len(t, tab.Rows, 2)

	row, ok := tab.LookupPC(0x4004)
	require.True(t, ok)
	assert.Equal(t, 42, row.Line)
	assert.Equal(t, 1, row.File) // file indices are 0-based in v5
	assert.Equal(t, "src/a.c", tab.FileName(1))
	assert.Equal(t, "/wd/main.c", tab.FileName(0))
}

func TestParseErrors(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, err := Parse(Config{Section: nil})
		assert.Error(t, err)
	})

	t.Run("unsupported version", func(t *testing.T) {
		w := &fixture.W{}
		w.U32(2).U16(1)
		_, err := Parse(Config{Section: w.Buf})
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
	})

	t.Run("length past section end", func(t *testing.T) {
		w := &fixture.W{}
		w.U32(0xffff).U16(4)
		_, err := Parse(Config{Section: w.Buf})
		assert.Error(t, err)
	})

	t.Run("zero line range", func(t *testing.T) {
		w := &fixture.W{}
		w.U32(0).U16(4)
		hdrLenOff := w.Len()
		w.U32(0)
		w.U8(1).U8(1).U8(1).U8(0xfb)
		w.U8(0)  // line_range
		w.U8(13) // opcode_base
		for i := 0; i < 12; i++ {
			w.U8(0)
		}
		w.U8(0).U8(0)
		w.PatchU32(hdrLenOff, uint32(w.Len()-hdrLenOff-4))
		w.PatchU32(0, uint32(w.Len()-4))
		_, err := Parse(Config{Section: w.Buf})
		assert.Error(t, err)
	})

	t.Run("truncated program", func(t *testing.T) {
		sec := buildV4Program(func(w *fixture.W) {
			setAddress(w, 0x1000)
			copyRow(w)
		})
		// The declared unit length now runs past the section end.
		_, err := Parse(Config{Section: sec[:len(sec)-4]})
		assert.Error(t, err)
	})
}
