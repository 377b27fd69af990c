package gbadisasm

import "testing"

func putWord(img *Image, addr uint32, v uint32) {
	off := addr - img.Base
	img.Bytes[off] = byte(v)
	img.Bytes[off+1] = byte(v >> 8)
	img.Bytes[off+2] = byte(v >> 16)
	img.Bytes[off+3] = byte(v >> 24)
}

func newAnalyzeContext(base uint32, size int) (*Context, *fakeDecoder) {
	img := NewImage(base, make([]byte, size))
	store := NewLabelStore(img, base)
	decoder := newFakeDecoder()
	return NewContext(img, store, decoder), decoder
}

func TestAnalyzeEntryOnlyThumbReturn(t *testing.T) {
	ctx, decoder := newAnalyzeContext(0x02000000, 0x100)
	decoder.at(Instruction{
		Address: 0x02000000, Size: 2, Mnemonic: MnemonicBX, Cond: CondAL,
		Operands: []Operand{regOperand(RegLR)},
		Groups:   []Group{GroupThumb},
	})

	entry := ctx.store.AddOrUpdate(0x02000000, KindThumbCode, "")
	ctx.Analyze()

	if !entry.Processed {
		t.Fatalf("entry label should be processed after Analyze")
	}
	if entry.Size != 2 {
		t.Errorf("expected entry size 2, got %d", entry.Size)
	}
}

func TestAnalyzePoolLoadCreatesPoolLabel(t *testing.T) {
	ctx, decoder := newAnalyzeContext(0x02000000, 0x100)
	decoder.at(Instruction{
		Address: 0x02000000, Size: 2, Mnemonic: MnemonicLDR,
		Operands: []Operand{regOperand(R0), {Kind: OperandKindMem, Base: RegPC, Index: RegNone, Disp: 0}},
		Groups:   []Group{GroupThumb},
	})
	decoder.at(Instruction{
		Address: 0x02000002, Size: 2, Mnemonic: MnemonicBX, Cond: CondAL,
		Operands: []Operand{regOperand(RegLR)},
		Groups:   []Group{GroupThumb},
	})

	entry := ctx.store.AddOrUpdate(0x02000000, KindThumbCode, "")
	ctx.Analyze()

	pool := ctx.store.Lookup(0x02000004)
	if pool == nil || pool.Kind != KindPool {
		t.Fatalf("expected POOL label at 0x02000004, got %+v", pool)
	}
	if !entry.Processed || entry.Size != 4 {
		t.Errorf("expected entry processed with size 4, got processed=%v size=%d", entry.Processed, entry.Size)
	}
}

func TestAnalyzeCallThenReturn(t *testing.T) {
	ctx, decoder := newAnalyzeContext(0x02000000, 0x200)
	decoder.at(Instruction{
		Address: 0x02000000, Size: 4, Mnemonic: MnemonicBL, Cond: CondAL,
		Operands: []Operand{{Kind: OperandKindImm, Imm: 0x02000100}},
		Groups:   []Group{GroupARM},
	})
	decoder.at(Instruction{
		Address: 0x02000004, Size: 4, Mnemonic: MnemonicBX, Cond: CondAL,
		Operands: []Operand{regOperand(RegLR)},
		Groups:   []Group{GroupARM},
	})
	decoder.at(Instruction{
		Address: 0x02000100, Size: 4, Mnemonic: MnemonicBX, Cond: CondAL,
		Operands: []Operand{regOperand(RegLR)},
		Groups:   []Group{GroupARM},
	})

	entry := ctx.store.AddOrUpdate(0x02000000, KindARMCode, "")
	ctx.Analyze()

	callee := ctx.store.Lookup(0x02000100)
	if callee == nil || callee.Kind != KindARMCode {
		t.Fatalf("expected ARM_CODE label at callee address, got %+v", callee)
	}
	if !callee.Processed || callee.Size != 4 {
		t.Errorf("callee should be discovered and processed via the worklist, got %+v", callee)
	}
	if !entry.Processed || entry.Size != 8 {
		t.Errorf("expected caller processed with size 8, got processed=%v size=%d", entry.Processed, entry.Size)
	}
}

func TestAnalyzePromotesModeExchangeAfterReturn(t *testing.T) {
	ctx, decoder := newAnalyzeContext(0x02000000, 0x100)
	decoder.at(Instruction{
		Address: 0x02000000, Size: 4, Mnemonic: MnemonicBX, Cond: CondAL,
		Operands: []Operand{regOperand(RegLR)},
		Groups:   []Group{GroupARM},
	})

	entry := ctx.store.AddOrUpdate(0x02000000, KindARMCode, "")
	adjacent := ctx.store.AddOrUpdate(0x02000004, KindThumbCode, "")
	adjacent.Branch = BranchB

	ctx.Analyze()

	if !entry.Processed {
		t.Fatalf("entry should be processed")
	}
	if adjacent.Branch != BranchBL || !adjacent.IsFunc {
		t.Errorf("expected the differently-moded adjacent label to be promoted to a function, got %+v", adjacent)
	}
}

func TestAnalyzeBLFarJumpDemotion(t *testing.T) {
	ctx, decoder := newAnalyzeContext(0x02000000, 0x200)
	decoder.at(Instruction{
		Address: 0x02000000, Size: 4, Mnemonic: MnemonicBL, Cond: CondAL,
		Operands: []Operand{{Kind: OperandKindImm, Imm: 0x02000100}},
		Groups:   []Group{GroupARM},
	})

	entry := ctx.store.AddOrUpdate(0x02000000, KindARMCode, "")
	// A literal pool immediately after the BL is the heuristic signal that
	// this BL never returns and was really emitted as a long-range jump.
	ctx.store.AddOrUpdate(0x02000004, KindPool, "")

	ctx.Analyze()

	target := ctx.store.Lookup(0x02000100)
	if target == nil || target.Branch != BranchB {
		t.Fatalf("expected the BL target to be demoted to BC=B, got %+v", target)
	}
	if !entry.Processed || entry.Size != 4 {
		t.Errorf("expected caller processed with size 4, got processed=%v size=%d", entry.Processed, entry.Size)
	}
}

func TestAnalyzeIndirectCallThroughPoolLoad(t *testing.T) {
	ctx, decoder := newAnalyzeContext(0x02000000, 0x200)
	decoder.at(Instruction{
		Address: 0x02000000, Size: 2, Mnemonic: MnemonicLDR,
		Operands: []Operand{regOperand(R0), {Kind: OperandKindMem, Base: RegPC, Index: RegNone, Disp: 0}},
		Groups:   []Group{GroupThumb},
	})
	decoder.at(Instruction{
		Address: 0x02000002, Size: 2, Mnemonic: MnemonicBX, Cond: CondAL,
		Operands: []Operand{regOperand(R0)},
		Groups:   []Group{GroupThumb},
	})
	putWord(ctx.img, 0x02000004, 0x02000101) // thumb function, bit 0 set

	entry := ctx.store.AddOrUpdate(0x02000000, KindThumbCode, "")
	ctx.Analyze()

	fn := ctx.store.Lookup(0x02000100)
	if fn == nil || fn.Kind != KindThumbCode || !fn.IsFunc || fn.Branch != BranchBL {
		t.Fatalf("expected a promoted THUMB_CODE function label at 0x02000100, got %+v", fn)
	}
	if !entry.Processed || entry.Size != 4 {
		t.Errorf("expected entry processed with size 4, got processed=%v size=%d", entry.Processed, entry.Size)
	}
}
