package gbadisasm

// Mode is the instruction-set mode a code label is decoded in.
type Mode int

// The two ARMv5TE execution modes this disassembler distinguishes.
const (
	ModeARM Mode = iota
	ModeThumb
)

func (m Mode) String() string {
	if m == ModeThumb {
		return "thumb"
	}
	return "arm"
}

// Reg identifies a decoded operand register by its architectural number
// (r0-r15). RegNone marks an absent or register-type-mismatched operand
// slot; it must compare unequal to every real register, hence -1 rather
// than 0 (r0 is a real, frequently-used register).
type Reg int

const RegNone Reg = -1

// The sixteen ARM general-purpose registers, named where the analyzer
// and classifier refer to them by role.
const (
	R0 Reg = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	RegSP
	RegLR
	RegPC
)

// Mnemonic identifies the instructions the classifier and analyzer care
// about. Every other opcode decodes to MnemonicOther; its text and
// formatted operands still render correctly via OperandText, but no
// control-flow or pool-load logic inspects it.
type Mnemonic int

const (
	MnemonicOther Mnemonic = iota
	MnemonicB
	MnemonicBX
	MnemonicBL
	MnemonicBLX
	MnemonicMOV
	MnemonicPOP
	MnemonicLDR
	MnemonicLDRH
	MnemonicADD
	MnemonicADR
	MnemonicLSL
	MnemonicASR
)

// Cond is a decoded ARM condition code. CondAL ("always") is the only
// value this disassembler treats specially (unconditional).
type Cond int

const (
	CondAL Cond = iota
	CondOther
)

// OperandKind distinguishes the three operand shapes the classifier
// inspects.
type OperandKind int

const (
	OperandKindNone OperandKind = iota
	OperandKindReg
	OperandKindImm
	OperandKindMem
)

// ShiftType is a register-operand barrel-shift type.
type ShiftType int

const (
	ShiftNone ShiftType = iota
	ShiftLSL
	ShiftLSR
	ShiftASR
	ShiftROR
)

// Operand is a single decoded instruction operand. For OperandKindMem,
// Base/Index/Disp/Subtracted describe a `[base, +/-index, #disp]` memory
// reference; Index is RegNone when there is no index register. Shift and
// ShiftAmount apply to register operands carrying a barrel shift, e.g.
// the `Ry LSL #2` in `add pc, rX, rY, lsl #2`.
type Operand struct {
	Kind        OperandKind
	Reg         Reg
	Imm         int32
	Base        Reg
	Index       Reg
	Disp        int32
	Subtracted  bool
	Shift       ShiftType
	ShiftAmount int32
}

// Group tags instruction-set membership used by valid_for_mode (spec C3).
type Group int

const (
	GroupARM Group = iota
	GroupThumb
	GroupV5TE
)

// Instruction is the decoded instruction record the analyzer and
// classifier (C3/C5) consume. It is produced by a Decoder and is
// intentionally narrower than a full Capstone cs_insn: only the fields
// this disassembler's control-flow and pool-load logic needs are
// surfaced as structured data. Everything else is rendered verbatim via
// Mnemonic/OperandText, mirroring how the original C analyzer only ever
// looks at insn->id, insn->detail->arm.*, leaving insn->mnemonic and
// insn->op_str to pass through to printf untouched.
type Instruction struct {
	Address  uint32
	Size     uint32
	Mnemonic Mnemonic
	Cond     Cond
	Operands []Operand
	Groups   []Group

	// MnemonicText and OperandText are the decoder's own rendering of
	// the instruction, used verbatim by the renderer for anything that
	// isn't a branch, pool load, or PC-relative ADD/ADR (spec §4.5).
	MnemonicText string
	OperandText  string
}

// InGroup reports whether the instruction belongs to the given group.
func (in *Instruction) InGroup(g Group) bool {
	for _, x := range in.Groups {
		if x == g {
			return true
		}
	}
	return false
}

// Operand returns the i'th operand, or the zero Operand (kind None) if
// the instruction has fewer operands. This mirrors Capstone's tolerant
// indexing without risking an out-of-range panic in the classifier.
func (in *Instruction) Operand(i int) Operand {
	if i < 0 || i >= len(in.Operands) {
		return Operand{}
	}
	return in.Operands[i]
}

// Decoder is the external collaborator named in spec.md §1: an
// off-the-shelf multi-mode ARM decoder. Decode must return instructions
// in address order starting at addr, decoding code as ARM or Thumb per
// mode, stopping when code is exhausted. It must not consult or mutate
// any gbadisasm state; the analyzer (C5) and the renderer (C6) are its
// only callers.
type Decoder interface {
	Decode(code []byte, addr uint32, mode Mode) ([]Instruction, error)
}
