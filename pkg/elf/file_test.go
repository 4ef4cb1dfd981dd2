package elf

import (
	"bytes"
	"compress/zlib"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elfdbg/symbolizer/internal/fixture"
)

func TestParseRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte{0x7f, 'E', 'L'}},
		{"bad magic", bytes.Repeat([]byte{0x42}, 64)},
		{"bad class", append([]byte{0x7f, 'E', 'L', 'F', 9, 1, 1}, make([]byte, 57)...)},
		{"bad endian", append([]byte{0x7f, 'E', 'L', 'F', 2, 9, 1}, make([]byte, 57)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			require.ErrorIs(t, err, ErrInvalidContainer)
		})
	}
}

func TestParseSections(t *testing.T) {
	b := &fixture.ELFBuilder{}
	b.AddSection(".text", uint32(SectionTypeProgBits), []byte{0x90, 0x90})
	b.AddSection(".debug_info", uint32(SectionTypeProgBits), []byte{1, 2, 3, 4})
	f, err := Parse(b.Bytes())
	require.NoError(t, err)

	sec := f.Section(".debug_info")
	require.NotNil(t, sec)
	data, err := sec.Data()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, data)

	// Absence is not an error.
	require.Nil(t, f.Section(".debug_line"))
	missing, err := f.DebugSection("line")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestSectionPastImageEnd(t *testing.T) {
	b := &fixture.ELFBuilder{}
	b.AddSection(".text", uint32(SectionTypeProgBits), []byte{0x90})
	img := b.Bytes()
	// Corrupt the .text section header: sh_size at header offset
	// shoff + 1*64 + 32. Make it absurd.
	shoff := int(img[0x28]) | int(img[0x29])<<8
	copy(img[shoff+64+32:], []byte{0xff, 0xff, 0xff, 0x7f, 0, 0, 0, 0})
	_, err := Parse(img)
	require.ErrorIs(t, err, ErrInvalidContainer)
}

func TestNobitsStringTable(t *testing.T) {
	b := &fixture.ELFBuilder{}
	b.AddSection(".text", uint32(SectionTypeProgBits), []byte{0x90})
	img := b.Bytes()
	// Retype the .shstrtab header (the last entry) to NOBITS with a wild
	// offset. NOBITS offsets are never bounds-checked, so name resolution
	// must not slice the image through them.
	shoff := int(img[0x28]) | int(img[0x29])<<8
	hdr := shoff + 2*64
	copy(img[hdr+4:], []byte{8, 0, 0, 0})                          // sh_type: NOBITS
	copy(img[hdr+24:], []byte{0x00, 0xff, 0xff, 0xff, 0, 0, 0, 0}) // sh_offset
	f, err := Parse(img)
	require.NoError(t, err)
	require.Nil(t, f.Section(".text")) // sections survive, unnamed
}

func TestZdebugSection(t *testing.T) {
	payload := []byte("not really dwarf, but enough for a roundtrip")
	var comp bytes.Buffer
	zw := zlib.NewWriter(&comp)
	_, err := zw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	sec := (&fixture.W{}).Raw([]byte("ZLIB")).Buf
	sec = append(sec, make([]byte, 8)...)
	sec[4+7] = byte(len(payload)) // big-endian uncompressed size
	sec = append(sec, comp.Bytes()...)

	b := &fixture.ELFBuilder{}
	b.AddSection(".zdebug_info", uint32(SectionTypeProgBits), sec)
	f, err := Parse(b.Bytes())
	require.NoError(t, err)

	data, err := f.DebugSection("info")
	require.NoError(t, err)
	require.Equal(t, payload, data)
}

func TestCompressedSectionHeader(t *testing.T) {
	payload := []byte("compressed contents")
	var comp bytes.Buffer
	zw := zlib.NewWriter(&comp)
	_, _ = zw.Write(payload)
	_ = zw.Close()

	w := &fixture.W{}
	w.U32(1).U32(0).U64(uint64(len(payload))).U64(1) // Chdr64: ELFCOMPRESS_ZLIB
	w.Raw(comp.Bytes())

	b := &fixture.ELFBuilder{}
	b.AddSectionFull(".debug_str", uint32(SectionTypeProgBits), FlagCompressed, 0, 0, 0, w.Buf)
	f, err := Parse(b.Bytes())
	require.NoError(t, err)

	data, err := f.DebugSection("str")
	require.NoError(t, err)
	require.Equal(t, payload, data)
}

func TestBuildID(t *testing.T) {
	note := (&fixture.W{}).
		U32(4).U32(8).U32(3). // namesz, descsz, NT_GNU_BUILD_ID
		Raw([]byte("GNU\x00")).
		Raw([]byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03, 0x04}).Buf

	b := &fixture.ELFBuilder{}
	b.AddSection(".note.gnu.build-id", uint32(SectionTypeNote), note)
	f, err := Parse(b.Bytes())
	require.NoError(t, err)
	require.Equal(t, "deadbeef01020304", f.BuildID())
}

func TestDebugLink(t *testing.T) {
	link := (&fixture.W{}).Str("app.debug").Raw([]byte{0, 0}).U32(0xcafebabe).Buf

	b := &fixture.ELFBuilder{}
	b.AddSection(".gnu_debuglink", uint32(SectionTypeProgBits), link)
	f, err := Parse(b.Bytes())
	require.NoError(t, err)
	name, crc := f.DebugLink()
	require.Equal(t, "app.debug", name)
	require.Equal(t, uint32(0xcafebabe), crc)
}
