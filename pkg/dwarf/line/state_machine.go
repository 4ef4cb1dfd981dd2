package line

import (
	"fmt"
	"path"
	"sort"

	"github.com/elfdbg/symbolizer/pkg/dwarf/util"
)

// Standard opcodes (DWARF §6.2.5.2).
const (
	lnsCopy           = 1
	lnsAdvancePC      = 2
	lnsAdvanceLine    = 3
	lnsSetFile        = 4
	lnsSetColumn      = 5
	lnsNegateStmt     = 6
	lnsSetBasicBlock  = 7
	lnsConstAddPC     = 8
	lnsFixedAdvancePC = 9
	lnsSetPrologueEnd = 10
	lnsSetEpilogueBeg = 11
	lnsSetISA         = 12
)

// Extended opcodes.
const (
	lneEndSequence      = 1
	lneSetAddress       = 2
	lneDefineFile       = 3
	lneSetDiscriminator = 4
)

// registers is the line-number state machine register file. Registers
// not surfaced in rows (basic_block, isa, discriminator) are tracked
// only as far as the encoding requires.
type registers struct {
	address uint64
	opIndex int
	file    int
	line    int
	column  int
	isStmt  bool
}

func newRegisters(defaultStmt bool) registers {
	return registers{file: 1, line: 1, isStmt: defaultStmt}
}

// run executes the program between the header end and the unit end,
// appending a row each time the machine fires its append action.
func (t *Table) run(b *util.Buf, hdr *header) error {
	if err := b.SeekTo(hdr.programStart); err != nil {
		return err
	}
	regs := newRegisters(hdr.defaultStmt)

	emit := func(endSeq bool) {
		t.Rows = append(t.Rows, Row{
			Address:     regs.address,
			File:        regs.file,
			Line:        regs.line,
			Column:      regs.column,
			IsStmt:      regs.isStmt,
			EndSequence: endSeq,
		})
	}
	// opAdvance implements the operation-advance rule shared by special
	// opcodes, advance_pc and const_add_pc (DWARF §6.2.5.1).
	opAdvance := func(adv int) {
		d := regs.opIndex + adv
		regs.address += uint64(hdr.minInstLen * (d / hdr.maxOpsPerIns))
		regs.opIndex = d % hdr.maxOpsPerIns
	}

	for b.Off() < hdr.end {
		opcode, err := b.Uint8()
		if err != nil {
			return err
		}

		switch {
		case int(opcode) >= hdr.opcodeBase:
			adjusted := int(opcode) - hdr.opcodeBase
			opAdvance(adjusted / hdr.lineRange)
			regs.line += hdr.lineBase + adjusted%hdr.lineRange
			emit(false)

		case opcode == 0:
			length, err := b.ULEB()
			if err != nil {
				return err
			}
			if length == 0 || int(length) > b.Len() {
				return fmt.Errorf("extended opcode length %d: %w", length, util.ErrMalformedEncoding)
			}
			next := b.Off() + int(length)
			sub, err := b.Uint8()
			if err != nil {
				return err
			}
			switch sub {
			case lneEndSequence:
				emit(true)
				regs = newRegisters(hdr.defaultStmt)
			case lneSetAddress:
				width := int(length) - 1
				addr, err := b.Addr(width)
				if err != nil {
					return err
				}
				regs.address = addr
				regs.opIndex = 0
			case lneDefineFile:
				if hdr.version <= 4 {
					name, err := b.CString()
					if err != nil {
						return err
					}
					dirIdx, err := b.ULEB()
					if err != nil {
						return err
					}
					t.Files = append(t.Files, FileEntry{Name: name, DirIndex: int(dirIdx)})
				}
			case lneSetDiscriminator:
				// Tracked by the format, irrelevant to symbolization.
			}
			// Unknown or partially consumed extended opcodes skip to
			// their declared end.
			if err := b.SeekTo(next); err != nil {
				return err
			}

		default:
			switch opcode {
			case lnsCopy:
				emit(false)
			case lnsAdvancePC:
				adv, err := b.ULEB()
				if err != nil {
					return err
				}
				opAdvance(int(adv))
			case lnsAdvanceLine:
				d, err := b.SLEB()
				if err != nil {
					return err
				}
				regs.line += int(d)
			case lnsSetFile:
				v, err := b.ULEB()
				if err != nil {
					return err
				}
				regs.file = int(v)
			case lnsSetColumn:
				v, err := b.ULEB()
				if err != nil {
					return err
				}
				regs.column = int(v)
			case lnsNegateStmt:
				regs.isStmt = !regs.isStmt
			case lnsSetBasicBlock:
				// No operand, no observable effect on rows.
			case lnsConstAddPC:
				opAdvance((255 - hdr.opcodeBase) / hdr.lineRange)
			case lnsFixedAdvancePC:
				v, err := b.Uint16()
				if err != nil {
					return err
				}
				regs.address += uint64(v)
				regs.opIndex = 0
			case lnsSetPrologueEnd, lnsSetEpilogueBeg:
				// Flags not surfaced to callers.
			case lnsSetISA:
				if _, err := b.ULEB(); err != nil {
					return err
				}
			default:
				// A standard opcode we do not know: its operand count is
				// declared in the header, so it can be skipped safely.
				n := hdr.stdLengths[int(opcode)-1]
				for i := uint64(0); i < n; i++ {
					if _, err := b.ULEB(); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// sortRows orders rows by address. At equal addresses end-of-sequence
// boundaries sort first so that a lookup landing exactly on a sequence
// start resolves to the new sequence's row.
func (t *Table) sortRows() {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		if t.Rows[i].Address != t.Rows[j].Address {
			return t.Rows[i].Address < t.Rows[j].Address
		}
		return t.Rows[i].EndSequence && !t.Rows[j].EndSequence
	})
}

// LookupPC returns the row describing pc: the greatest row address not
// above pc within the same sequence. The boolean is false when pc falls
// in a hole between sequences or past the table.
func (t *Table) LookupPC(pc uint64) (Row, bool) {
	idx := sort.Search(len(t.Rows), func(i int) bool {
		return t.Rows[i].Address > pc
	})
	if idx == 0 {
		return Row{}, false
	}
	row := t.Rows[idx-1]
	if row.EndSequence {
		return Row{}, false
	}
	return row, true
}

// FileName resolves a row's file index to a path, joining the directory
// table entry when the name is relative. Returns "" for an index outside
// the table.
func (t *Table) FileName(index int) string {
	if index < 0 || index >= len(t.Files) {
		return ""
	}
	f := t.Files[index]
	if f.Name == "" || f.Name[0] == '/' {
		return f.Name
	}
	if f.DirIndex >= 0 && f.DirIndex < len(t.Dirs) && t.Dirs[f.DirIndex] != "" {
		return path.Join(t.Dirs[f.DirIndex], f.Name)
	}
	return f.Name
}
