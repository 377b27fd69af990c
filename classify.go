package gbadisasm

// This file implements spec §4.2: pure predicates over a decoded
// instruction. None of it mutates analysis state; the analyzer (C5)
// decides what to do with the answers.

// IsBranch reports whether insn is one of B/BX/BL/BLX.
func IsBranch(insn *Instruction) bool {
	switch insn.Mnemonic {
	case MnemonicB, MnemonicBX, MnemonicBL, MnemonicBLX:
		return true
	}
	return false
}

// IsFuncReturn reports whether insn is a function-return idiom: an
// always-executed BX, a `mov pc, rX` with AL condition, or a `pop` whose
// register list contains pc with AL condition.
func IsFuncReturn(insn *Instruction) bool {
	if insn.Cond != CondAL {
		return false
	}
	switch insn.Mnemonic {
	case MnemonicBX:
		return true
	case MnemonicMOV:
		op := insn.Operand(0)
		return op.Kind == OperandKindReg && op.Reg == RegPC
	case MnemonicPOP:
		for _, op := range insn.Operands {
			if op.Kind == OperandKindReg && op.Reg == RegPC {
				return true
			}
		}
	}
	return false
}

// IsPoolLoad reports whether insn is `ldr rX, [pc, #disp]` with no index
// register and a non-subtracted displacement.
func IsPoolLoad(insn *Instruction) bool {
	if insn.Mnemonic != MnemonicLDR {
		return false
	}
	dst := insn.Operand(0)
	src := insn.Operand(1)
	return dst.Kind == OperandKindReg &&
		src.Kind == OperandKindMem &&
		src.Base == RegPC &&
		src.Index == RegNone &&
		!src.Subtracted
}

// PoolTarget computes the address a pool load dereferences, given the
// instruction's own address (pc) and the mode it was decoded in.
func PoolTarget(insn *Instruction, pc uint32, mode Mode) uint32 {
	adjust := uint32(8)
	if mode == ModeThumb {
		adjust = 4
	}
	return (pc &^ 3) + uint32(insn.Operand(1).Disp) + adjust
}

// BranchTarget returns the immediate branch target operand of a branch
// instruction.
func BranchTarget(insn *Instruction) uint32 {
	return uint32(insn.Operand(0).Imm)
}

// AdrTarget computes the address an `adr Rx, #imm` materializes, per
// spec §4.4's PC-relative address materialization rule.
func AdrTarget(insn *Instruction, mode Mode) uint32 {
	imm := insn.Operand(1).Imm
	pc := insn.Address
	if mode == ModeThumb {
		return ((uint32(int32(pc) + imm)) &^ 3) + 4
	}
	return uint32(int32(pc)+imm) + 8
}

// IsAddPCImm reports whether insn is the ARM-only `add Rx, pc, #imm`
// idiom that also materializes a PC-relative address.
func IsAddPCImm(insn *Instruction, mode Mode) bool {
	return mode == ModeARM && insn.Mnemonic == MnemonicADD &&
		insn.Operand(0).Kind == OperandKindReg &&
		insn.Operand(1).Kind == OperandKindReg && insn.Operand(1).Reg == RegPC &&
		insn.Operand(2).Kind == OperandKindImm
}

// AddPCImmTarget computes the address `add Rx, pc, #imm` materializes.
func AddPCImmTarget(insn *Instruction) uint32 {
	return uint32(int32(insn.Address) + insn.Operand(2).Imm + 8)
}

// ValidForMode reports whether insn is acceptable in the given code
// mode: instructions in the v5TE group are valid in either mode;
// otherwise the instruction must belong to the group matching mode.
func ValidForMode(insn *Instruction, mode Mode) bool {
	if insn.InGroup(GroupV5TE) {
		return true
	}
	if mode == ModeARM {
		return insn.InGroup(GroupARM)
	}
	return insn.InGroup(GroupThumb)
}
