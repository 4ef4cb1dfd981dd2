package elf

import (
	"encoding/hex"

	"github.com/elfdbg/symbolizer/pkg/dwarf/util"
)

// BuildID returns the GNU build id as a lowercase hex string, or "" when
// the image carries none. The build id is the lookup key handed to an
// external debug-info source.
func (f *File) BuildID() string {
	sec := f.Section(".note.gnu.build-id")
	if sec == nil {
		sec = f.Section(".notes")
	}
	if sec == nil {
		return ""
	}
	data, err := sec.Data()
	if err != nil {
		return ""
	}

	b := util.NewBuf(data, f.Order)
	for b.Len() > 0 {
		namesz, err1 := b.Uint32()
		descsz, err2 := b.Uint32()
		typ, err3 := b.Uint32()
		if err1 != nil || err2 != nil || err3 != nil {
			return ""
		}
		name, err := b.Bytes(align4(int(namesz)))
		if err != nil {
			return ""
		}
		desc, err := b.Bytes(align4(int(descsz)))
		if err != nil {
			return ""
		}
		if typ == noteTypeBuildID && string(name[:namesz]) == "GNU\x00" {
			return hex.EncodeToString(desc[:descsz])
		}
	}
	return ""
}

// DebugLink returns the separate-debug-file name and CRC recorded in
// .gnu_debuglink, or ("", 0) when absent.
func (f *File) DebugLink() (string, uint32) {
	sec := f.Section(".gnu_debuglink")
	if sec == nil {
		return "", 0
	}
	data, err := sec.Data()
	if err != nil {
		return "", 0
	}
	b := util.NewBuf(data, f.Order)
	name, err := b.CString()
	if err != nil {
		return "", 0
	}
	// The CRC is aligned to the next 4-byte boundary after the name.
	if err := b.SeekTo(align4(b.Off())); err != nil {
		return "", 0
	}
	crc, err := b.Uint32()
	if err != nil {
		return "", 0
	}
	return name, crc
}

func align4(n int) int { return (n + 3) &^ 3 }
