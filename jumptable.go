package gbadisasm

// This file implements spec §4.3's two jump-table idiom recognizers.
// Each is a small explicit state machine (spec §9 calls out the
// original's "dual-role" single state machine as something to
// re-architect into two distinct tagged states); both reset whenever
// the analyzer begins decoding a new code label (spec §4.3 "per
// worklist-entry").

// ArmJumpTable recognizes `add pc, rX, rY, lsl #2` followed by an
// unconditional `b` or a function-return instruction.
type ArmJumpTable struct {
	matchedAdd bool
}

// Reset clears the recognizer's state. Called at the start of each
// label's decode.
func (r *ArmJumpTable) Reset() {
	r.matchedAdd = false
}

// Feed offers the next decoded instruction to the recognizer. On
// completing the idiom it adds the JUMP_TABLE_ARM label and every B
// target found in the table directly to ctx's label store.
func (r *ArmJumpTable) Feed(ctx *Context, insn *Instruction) {
	if !r.matchedAdd {
		r.matchedAdd = isAddPCShiftLSL2(insn)
		return
	}
	r.matchedAdd = false

	isTerminalBranch := insn.Mnemonic == MnemonicB && insn.Cond == CondAL
	if !isTerminalBranch && !IsFuncReturn(insn) {
		return
	}

	firstTarget := uint32(0xFFFFFFFF)
	if isTerminalBranch {
		firstTarget = BranchTarget(insn)
	}

	tableStart := insn.Address + 4
	ctx.store.AddOrUpdate(tableStart, KindJumpTableARM, "")

	addr := tableStart
	for addr < firstTarget {
		code := ctx.img.Slice(addr, 4)
		if len(code) < 4 {
			break
		}
		entries, err := ctx.decoder.Decode(code, addr, ModeARM)
		if err != nil || len(entries) == 0 {
			break
		}
		entry := entries[0]
		if entry.Mnemonic == MnemonicB {
			target := BranchTarget(&entry)
			if target-ctx.img.Base >= ctx.img.Size() {
				break
			}
			if target < firstTarget && target > tableStart {
				firstTarget = target
			}
			lbl := ctx.store.AddOrUpdate(target, KindARMCode, "")
			if lbl != nil {
				lbl.Branch = BranchB
			}
		}
		addr += 4
	}
}

func isAddPCShiftLSL2(insn *Instruction) bool {
	if insn.Mnemonic != MnemonicADD {
		return false
	}
	dst := insn.Operand(0)
	src := insn.Operand(2)
	return dst.Kind == OperandKindReg && dst.Reg == RegPC &&
		src.Kind == OperandKindReg && src.Shift == ShiftLSL && src.ShiftAmount == 2
}

// ThumbJumpTable recognizes the six-instruction Thumb jump-table idiom
// (spec §4.3), with a one-instruction grace period tolerated once across
// the whole sequence, matching the original's single `gracePeriod` flag.
type ThumbJumpTable struct {
	state      int
	graceUsed  bool
	tableStart uint32
}

// Reset clears the recognizer's state.
func (r *ThumbJumpTable) Reset() {
	r.state = 0
	r.graceUsed = false
	r.tableStart = 0
}

// Feed offers the next decoded instruction to the recognizer. On
// completing the six-step idiom it adds the JUMP_TABLE_THUMB label and
// every in-range half-word target found in the table.
func (r *ThumbJumpTable) Feed(ctx *Context, insn *Instruction) {
	if r.state == 0 {
		r.graceUsed = false
	}

	matched := false
	switch r.state {
	case 0: // add Rx, Rx, Rx
		matched = insn.Mnemonic == MnemonicADD &&
			insn.Operand(2).Kind == OperandKindReg &&
			insn.Operand(1).Reg == insn.Operand(2).Reg
	case 1: // add Rx, pc
		matched = insn.Mnemonic == MnemonicADD &&
			insn.Operand(1).Kind == OperandKindReg &&
			insn.Operand(1).Reg == RegPC
	case 2: // ldrh Rx, [Rx, #disp]
		matched = insn.Mnemonic == MnemonicLDRH
		if matched {
			r.tableStart = uint32(int32(insn.Address) + insn.Operand(1).Disp + 2)
		}
	case 3: // lsl Rx, #16
		matched = insn.Mnemonic == MnemonicLSL
	case 4: // asr Rx, #16
		matched = insn.Mnemonic == MnemonicASR
	case 5: // add pc, Rx
		matched = insn.Mnemonic == MnemonicADD && insn.Operand(0).Reg == RegPC
	}

	if !matched {
		if r.graceUsed {
			r.Reset()
		} else {
			r.graceUsed = true
		}
		return
	}

	if r.state == 5 {
		r.complete(ctx)
		r.Reset()
		return
	}
	r.state++
}

func (r *ThumbJumpTable) complete(ctx *Context) {
	// The original asserts `jumpTableBegin & ROM_LOAD_ADDR`, a bitwise-AND
	// where a bounds check was clearly intended (spec §9 Open Questions).
	// We perform the bounds check explicitly instead of papering over it
	// with a no-op assertion.
	if !ctx.img.InImage(r.tableStart) {
		return
	}

	ctx.store.AddOrUpdate(r.tableStart, KindJumpTableThumb, "")

	firstTarget := uint32(0xFFFFFFFF)
	addr := r.tableStart
	for addr < firstTarget {
		if !ctx.img.InImage(addr) {
			break
		}
		target := uint32(ctx.img.HalfAt(addr)) + r.tableStart + 2
		if target-ctx.img.Base >= ctx.img.Size() {
			break
		}
		if target&1 != 0 {
			break
		}
		if target < r.tableStart+2 {
			break
		}
		if target < firstTarget && target > r.tableStart {
			firstTarget = target
		}
		lbl := ctx.store.AddOrUpdate(target, KindThumbCode, "")
		if lbl != nil {
			lbl.Branch = BranchB
		}
		addr += 2
	}
}
