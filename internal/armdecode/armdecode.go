// Package armdecode adapts github.com/knightsc/gapstone (a cgo binding
// over libcapstone) to the gbadisasm.Decoder interface, so the rest of
// the repo never imports gapstone or capstone types directly (spec.md
// §1 names the decoder itself as an out-of-scope external collaborator;
// this package is the one place that boundary is crossed).
package armdecode

import (
	"fmt"

	"github.com/knightsc/gapstone"

	"github.com/PikalaxALT/gbadisasm"
)

// Decoder wraps a gapstone engine configured for ARM, switching between
// ARM and Thumb decode mode per call.
type Decoder struct {
	engine gapstone.Engine
}

// New opens a gapstone/capstone engine for the ARM architecture. The
// returned Decoder owns the engine and should be closed with Close
// once the analysis run is complete.
func New() (*Decoder, error) {
	engine, err := gapstone.New(gapstone.CS_ARCH_ARM, gapstone.CS_MODE_ARM)
	if err != nil {
		return nil, fmt.Errorf("armdecode: opening capstone engine: %w", err)
	}
	if err := engine.SetOption(gapstone.CS_OPT_DETAIL, gapstone.CS_OPT_ON); err != nil {
		engine.Close()
		return nil, fmt.Errorf("armdecode: enabling instruction detail: %w", err)
	}
	return &Decoder{engine: engine}, nil
}

// Close releases the underlying capstone engine.
func (d *Decoder) Close() {
	d.engine.Close()
}

// Decode implements gbadisasm.Decoder.
func (d *Decoder) Decode(code []byte, addr uint32, mode gbadisasm.Mode) ([]gbadisasm.Instruction, error) {
	csMode := gapstone.CS_MODE_ARM
	if mode == gbadisasm.ModeThumb {
		csMode = gapstone.CS_MODE_THUMB
	}
	if err := d.engine.SetOption(gapstone.CS_OPT_MODE, uint(csMode)); err != nil {
		return nil, fmt.Errorf("armdecode: switching mode: %w", err)
	}

	raw, err := d.engine.Disasm(code, uint64(addr), 0)
	if err != nil {
		// Capstone stops at the first byte it can't decode; that's
		// exactly the "invalid for mode" signal the analyzer and
		// renderer recover from, not a fatal error.
		return nil, nil
	}

	out := make([]gbadisasm.Instruction, 0, len(raw))
	for _, insn := range raw {
		out = append(out, convert(insn, mode))
	}
	return out, nil
}

func convert(insn gapstone.Instruction, mode gbadisasm.Mode) gbadisasm.Instruction {
	out := gbadisasm.Instruction{
		Address:      uint32(insn.Address),
		Size:         uint32(insn.Size),
		Mnemonic:     mnemonicOf(insn.Id),
		Cond:         condOf(insn.Arm.CC),
		MnemonicText: insn.Mnemonic,
		OperandText:  insn.OpStr,
	}

	for _, g := range insn.Groups {
		switch gapstone.ArmInsnGroup(g) {
		case gapstone.ARM_GRP_ARM:
			out.Groups = append(out.Groups, gbadisasm.GroupARM)
		case gapstone.ARM_GRP_THUMB:
			out.Groups = append(out.Groups, gbadisasm.GroupThumb)
		case gapstone.ARM_GRP_V5TE:
			out.Groups = append(out.Groups, gbadisasm.GroupV5TE)
		}
	}
	// Capstone doesn't tag every v5TE-legal instruction with ARM_GRP_V5TE
	// explicitly; instructions valid in both modes (notably BLX) are
	// tagged ARM_GRP_ARM | ARM_GRP_THUMB by capstone itself, which
	// already satisfies valid_for_mode without the V5TE group.

	for _, op := range insn.Arm.Operands {
		out.Operands = append(out.Operands, convertOperand(op))
	}
	return out
}

func convertOperand(op gapstone.ArmOperand) gbadisasm.Operand {
	switch op.Type {
	case gapstone.ARM_OP_REG:
		return gbadisasm.Operand{
			Kind:        gbadisasm.OperandKindReg,
			Reg:         regOf(op.Reg),
			Shift:       shiftOf(op.Shift.Type),
			ShiftAmount: int32(op.Shift.Value),
		}
	case gapstone.ARM_OP_IMM:
		return gbadisasm.Operand{Kind: gbadisasm.OperandKindImm, Imm: int32(op.Imm)}
	case gapstone.ARM_OP_MEM:
		return gbadisasm.Operand{
			Kind:       gbadisasm.OperandKindMem,
			Base:       regOf(op.Mem.Base),
			Index:      regOf(op.Mem.Index),
			Disp:       int32(op.Mem.Disp),
			Subtracted: op.Mem.Disp < 0,
		}
	default:
		return gbadisasm.Operand{}
	}
}

func regOf(r int) gbadisasm.Reg {
	switch r {
	case gapstone.ARM_REG_INVALID, 0:
		return gbadisasm.RegNone
	case gapstone.ARM_REG_SP:
		return gbadisasm.RegSP
	case gapstone.ARM_REG_LR:
		return gbadisasm.RegLR
	case gapstone.ARM_REG_PC:
		return gbadisasm.RegPC
	}
	if n, ok := generalRegisterNumber(r); ok {
		return gbadisasm.Reg(n)
	}
	return gbadisasm.RegNone
}

// generalRegisterNumber maps capstone's ARM_REG_R0..ARM_REG_R12
// constants to the architectural register number 0-12. Capstone
// defines these as a contiguous run; if that ever changes this needs a
// real lookup table instead of arithmetic.
func generalRegisterNumber(r int) (int, bool) {
	n := r - gapstone.ARM_REG_R0
	if n >= 0 && n <= 12 {
		return n, true
	}
	return 0, false
}

func shiftOf(t uint) gbadisasm.ShiftType {
	switch gapstone.ArmShifter(t) {
	case gapstone.ARM_SFT_LSL:
		return gbadisasm.ShiftLSL
	case gapstone.ARM_SFT_LSR:
		return gbadisasm.ShiftLSR
	case gapstone.ARM_SFT_ASR:
		return gbadisasm.ShiftASR
	case gapstone.ARM_SFT_ROR:
		return gbadisasm.ShiftROR
	default:
		return gbadisasm.ShiftNone
	}
}

func condOf(cc uint) gbadisasm.Cond {
	if gapstone.ArmCC(cc) == gapstone.ARM_CC_AL {
		return gbadisasm.CondAL
	}
	return gbadisasm.CondOther
}

// mnemonicOf classifies by capstone's instruction id rather than by
// parsing the rendered mnemonic text, mirroring how the original C
// analyzer switches on insn->id (e.g. `insn[i].id == ARM_INS_BLX`):
// the id is condition-code- and flag-suffix-independent, unlike the
// text form ("bne", "movs", ...).
func mnemonicOf(id int) gbadisasm.Mnemonic {
	switch gapstone.ArmInstruction(id) {
	case gapstone.ARM_INS_B:
		return gbadisasm.MnemonicB
	case gapstone.ARM_INS_BX:
		return gbadisasm.MnemonicBX
	case gapstone.ARM_INS_BL:
		return gbadisasm.MnemonicBL
	case gapstone.ARM_INS_BLX:
		return gbadisasm.MnemonicBLX
	case gapstone.ARM_INS_MOV:
		return gbadisasm.MnemonicMOV
	case gapstone.ARM_INS_POP:
		return gbadisasm.MnemonicPOP
	case gapstone.ARM_INS_LDR:
		return gbadisasm.MnemonicLDR
	case gapstone.ARM_INS_LDRH:
		return gbadisasm.MnemonicLDRH
	case gapstone.ARM_INS_ADD:
		return gbadisasm.MnemonicADD
	case gapstone.ARM_INS_ADR:
		return gbadisasm.MnemonicADR
	case gapstone.ARM_INS_LSL:
		return gbadisasm.MnemonicLSL
	case gapstone.ARM_INS_ASR:
		return gbadisasm.MnemonicASR
	default:
		return gbadisasm.MnemonicOther
	}
}
