package gbadisasm

import "testing"

func newTestContext(base uint32, size int) (*Context, *fakeDecoder) {
	img := NewImage(base, make([]byte, size))
	store := NewLabelStore(img, base)
	decoder := newFakeDecoder()
	return &Context{img: img, store: store, decoder: decoder}, decoder
}

func TestArmJumpTableRecognizes(t *testing.T) {
	ctx, decoder := newTestContext(0x1000, 0x2000)

	add := &Instruction{
		Address:  0x1000,
		Mnemonic: MnemonicADD,
		Operands: []Operand{regOperand(RegPC), regOperand(R1), {Kind: OperandKindReg, Reg: R2, Shift: ShiftLSL, ShiftAmount: 2}},
	}
	terminalB := &Instruction{
		Address:  0x1004,
		Mnemonic: MnemonicB,
		Cond:     CondAL,
		Operands: []Operand{{Kind: OperandKindImm, Imm: 0x1010}},
	}
	decoder.at(Instruction{Address: 0x1008, Mnemonic: MnemonicB, Operands: []Operand{{Kind: OperandKindImm, Imm: 0x2000}}})
	decoder.at(Instruction{Address: 0x100C, Mnemonic: MnemonicB, Operands: []Operand{{Kind: OperandKindImm, Imm: 0x2004}}})

	var jt ArmJumpTable
	jt.Feed(ctx, add)
	jt.Feed(ctx, terminalB)

	table := ctx.store.Lookup(0x1008)
	if table == nil || table.Kind != KindJumpTableARM {
		t.Fatalf("expected JUMP_TABLE_ARM label at 0x1008, got %+v", table)
	}
	for _, addr := range []uint32{0x2000, 0x2004} {
		l := ctx.store.Lookup(addr)
		if l == nil || l.Kind != KindARMCode || l.Branch != BranchB {
			t.Errorf("expected ARM_CODE/BC=B label at 0x%08X, got %+v", addr, l)
		}
	}
}

func TestArmJumpTableResetsWithoutAdd(t *testing.T) {
	ctx, _ := newTestContext(0x1000, 0x2000)
	var jt ArmJumpTable
	other := &Instruction{Address: 0x1000, Mnemonic: MnemonicMOV}
	jt.Feed(ctx, other)
	if jt.matchedAdd {
		t.Errorf("a non-ADD instruction must not arm the recognizer")
	}
}

// thumbJumpTableSteps builds the six-instruction idiom starting at base,
// with the LDRH displacement chosen so the recorded table start lands
// immediately after the final `add pc, rX` instruction.
func thumbJumpTableSteps(base uint32) []*Instruction {
	return []*Instruction{
		{Address: base, Mnemonic: MnemonicADD, Operands: []Operand{regOperand(R3), regOperand(R3), regOperand(R3)}},
		{Address: base + 2, Mnemonic: MnemonicADD, Operands: []Operand{regOperand(R3), regOperand(RegPC)}},
		{Address: base + 4, Mnemonic: MnemonicLDRH, Operands: []Operand{regOperand(R3), {Kind: OperandKindMem, Base: R3, Disp: 6}}},
		{Address: base + 6, Mnemonic: MnemonicLSL, Operands: []Operand{regOperand(R3)}},
		{Address: base + 8, Mnemonic: MnemonicASR, Operands: []Operand{regOperand(R3)}},
		{Address: base + 10, Mnemonic: MnemonicADD, Operands: []Operand{regOperand(RegPC), regOperand(R3)}},
	}
}

func TestThumbJumpTableRecognizes(t *testing.T) {
	ctx, decoder := newTestContext(0x3000, 0x2000)

	steps := thumbJumpTableSteps(0x3000)
	tableStart := uint32(0x300C) // base + 12, right after the sixth step

	// Descending offsets so each entry lowers the running cap in turn,
	// letting all three be read before the cursor reaches it (ascending
	// offsets 2, 6, 0xA would cap the scan at tableStart+4, so only the
	// first two entries would be read under this single-pass
	// min-tracking algorithm).
	decoder.at(Instruction{Address: tableStart, Mnemonic: MnemonicOther})
	img := ctx.img
	putHalf(img, tableStart+0, 0x000A)
	putHalf(img, tableStart+2, 0x0006)
	putHalf(img, tableStart+4, 0x0002)

	var jt ThumbJumpTable
	for _, insn := range steps {
		jt.Feed(ctx, insn)
	}

	table := ctx.store.Lookup(tableStart)
	if table == nil || table.Kind != KindJumpTableThumb {
		t.Fatalf("expected JUMP_TABLE_THUMB label at 0x%08X, got %+v", tableStart, table)
	}
	for _, addr := range []uint32{tableStart + 4, tableStart + 8, tableStart + 0xC} {
		l := ctx.store.Lookup(addr)
		if l == nil || l.Kind != KindThumbCode || l.Branch != BranchB {
			t.Errorf("expected THUMB_CODE/BC=B label at 0x%08X, got %+v", addr, l)
		}
	}
}

func TestThumbJumpTableHandlesHighBitOffset(t *testing.T) {
	// Offsets >= 0x8000 must still be read as unsigned, matching the
	// original's uint16_t arithmetic: a signed read would place this
	// target at a wildly different (wrapped) address.
	ctx, decoder := newTestContext(0x1000, 0x9000)
	steps := thumbJumpTableSteps(0x1000)
	tableStart := uint32(0x100C)
	const offset = uint16(0x8010)
	target := tableStart + 2 + uint32(offset)

	decoder.at(Instruction{Address: tableStart, Mnemonic: MnemonicOther})
	putHalf(ctx.img, tableStart, offset)

	var jt ThumbJumpTable
	for _, insn := range steps {
		jt.Feed(ctx, insn)
	}

	l := ctx.store.Lookup(target)
	if l == nil || l.Kind != KindThumbCode || l.Branch != BranchB {
		t.Fatalf("expected THUMB_CODE/BC=B label at the unsigned target 0x%08X, got %+v", target, l)
	}
}

func TestThumbJumpTableToleratesOneIntruder(t *testing.T) {
	ctx, decoder := newTestContext(0x3000, 0x2000)
	steps := thumbJumpTableSteps(0x3000)
	tableStart := uint32(0x300C)

	decoder.at(Instruction{Address: tableStart, Mnemonic: MnemonicOther})
	putHalf(ctx.img, tableStart, 0x0002)

	var jt ThumbJumpTable
	jt.Feed(ctx, steps[0])
	intruder := &Instruction{Address: 0, Mnemonic: MnemonicOther}
	jt.Feed(ctx, intruder) // one-instruction grace period
	jt.Feed(ctx, steps[1])
	jt.Feed(ctx, steps[2])
	jt.Feed(ctx, steps[3])
	jt.Feed(ctx, steps[4])
	jt.Feed(ctx, steps[5])

	if ctx.store.Lookup(tableStart) == nil {
		t.Errorf("a single intruding instruction should not reset the recognizer")
	}
}

func TestThumbJumpTableResetsAfterTwoMisses(t *testing.T) {
	ctx, _ := newTestContext(0x3000, 0x2000)
	steps := thumbJumpTableSteps(0x3000)

	var jt ThumbJumpTable
	jt.Feed(ctx, steps[0])
	miss := &Instruction{Address: 0, Mnemonic: MnemonicOther}
	jt.Feed(ctx, miss)
	jt.Feed(ctx, miss) // second consecutive miss must reset, consuming the grace period
	if jt.state != 0 {
		t.Errorf("two consecutive mismatches should reset to state 0, got state %d", jt.state)
	}
}

func putHalf(img *Image, addr uint32, v uint16) {
	off := addr - img.Base
	img.Bytes[off] = byte(v)
	img.Bytes[off+1] = byte(v >> 8)
}
