// Package frame parses call-frame information from .debug_frame and
// .eh_frame sections. Symbolization uses the parsed FDEs as a source of
// function address ranges when line tables or symbols are missing.
package frame

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// ErrNoFDEForPC reports that no frame descriptor covers a PC.
type ErrNoFDEForPC struct {
	PC uint64
}

func (err *ErrNoFDEForPC) Error() string {
	return fmt.Sprintf("could not find FDE for PC %#x", err.PC)
}

// CommonInformationEntry holds the fields FDEs of one CIE share.
type CommonInformationEntry struct {
	Length                uint64
	Version               uint8
	Augmentation          string
	CodeAlignmentFactor   uint64
	DataAlignmentFactor   int64
	ReturnAddressRegister uint64
	InitialInstructions   []byte

	fdePointerEnc uint8
}

// FrameDescriptionEntry describes the frame of one contiguous code range.
type FrameDescriptionEntry struct {
	Length       uint64
	CIE          *CommonInformationEntry
	Instructions []byte

	begin, size uint64
	order       binary.ByteOrder
}

// Cover reports whether addr lies inside the entry's address range.
func (fde *FrameDescriptionEntry) Cover(addr uint64) bool {
	return fde.begin <= addr && addr < fde.begin+fde.size
}

// Begin returns the first covered address.
func (fde *FrameDescriptionEntry) Begin() uint64 { return fde.begin }

// End returns the first address past the covered range.
func (fde *FrameDescriptionEntry) End() uint64 { return fde.begin + fde.size }

// FrameDescriptionEntries is a set of FDEs sorted by start address.
type FrameDescriptionEntries []*FrameDescriptionEntry

func newFrameDescriptionEntries() FrameDescriptionEntries {
	return make(FrameDescriptionEntries, 0, 512)
}

// FDEForPC returns the entry covering pc.
func (fdes FrameDescriptionEntries) FDEForPC(pc uint64) (*FrameDescriptionEntry, error) {
	idx := sort.Search(len(fdes), func(i int) bool {
		return fdes[i].begin+fdes[i].size > pc
	})
	if idx == len(fdes) || !fdes[idx].Cover(pc) {
		return nil, &ErrNoFDEForPC{pc}
	}
	return fdes[idx], nil
}
