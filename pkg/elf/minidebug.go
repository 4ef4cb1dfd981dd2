package elf

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
)

// GnuDebugData unpacks the .gnu_debugdata section (MiniDebugInfo): an
// xz-compressed embedded ELF image that carries a symbol table for
// functions stripped from the outer binary. Returns nil when the section
// is absent.
func (f *File) GnuDebugData() (*File, error) {
	sec := f.Section(".gnu_debugdata")
	if sec == nil {
		return nil, nil
	}
	raw, err := sec.Data()
	if err != nil {
		return nil, err
	}
	xr, err := xz.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf(".gnu_debugdata: %w", err)
	}
	const maxDebugData = 1 << 31
	inner, err := io.ReadAll(io.LimitReader(xr, maxDebugData))
	if err != nil {
		return nil, fmt.Errorf(".gnu_debugdata: %w", err)
	}
	return Parse(inner)
}
