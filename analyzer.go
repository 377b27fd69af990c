package gbadisasm

// This file implements spec §4.4: the worklist-driven analyzer that
// drives decode/classify/label to a fixpoint. Together with the
// jump-table recognizers it drives, it is the only code that adds labels
// to a LabelStore after seeding.

const decodeChunk = 0x1000

// Context owns every piece of mutable state for a single disassembly
// run: the image being analyzed, its label store, the external decoder,
// and the two jump-table recognizers, which are reset at the start of
// every label's decode (spec §4.3).
type Context struct {
	img     *Image
	store   *LabelStore
	decoder Decoder

	armJT   ArmJumpTable
	thumbJT ThumbJumpTable
}

// NewContext builds an analyzer context over img, using store for
// labels (already seeded per spec §4.1) and decoder for instruction
// decoding.
func NewContext(img *Image, store *LabelStore, decoder Decoder) *Context {
	return &Context{img: img, store: store, decoder: decoder}
}

// Analyze runs the worklist to a fixpoint: every code label reachable
// from the seeds is decoded, classified, and has its dependents labeled,
// until no unprocessed label remains (spec §4.4 step 1).
func (ctx *Context) Analyze() {
	for {
		l := ctx.store.NextUnprocessed()
		if l == nil {
			return
		}
		if !l.Kind.IsCode() {
			l.Processed = true
			continue
		}
		ctx.analyzeLabel(l)
	}
}

// decodeOne decodes a single instruction at addr in the given mode. The
// chunk size is an artifact of decoders (like Capstone) that bound how
// much they'll decode per call; semantically this is one linear scan,
// so only the first returned instruction is ever used.
func (ctx *Context) decodeOne(addr uint32, mode Mode) (*Instruction, bool) {
	if !ctx.img.InImage(addr) {
		return nil, false
	}
	remaining := ctx.img.Size() - (addr - ctx.img.Base)
	chunkLen := remaining
	if chunkLen > decodeChunk {
		chunkLen = decodeChunk
	}
	code := ctx.img.Slice(addr, chunkLen)
	insns, err := ctx.decoder.Decode(code, addr, mode)
	if err != nil || len(insns) == 0 {
		return nil, false
	}
	insn := insns[0]
	return &insn, true
}

// analyzeLabel decodes label l forward until its function/chunk
// terminates, feeding every instruction to the mode-appropriate
// jump-table recognizer and to the branch/non-branch handlers, then
// records the label's resolved size.
func (ctx *Context) analyzeLabel(l *Label) {
	mode := ModeARM
	if l.Kind == KindThumbCode {
		mode = ModeThumb
	}
	ctx.armJT.Reset()
	ctx.thumbJT.Reset()

	addr := l.Addr
	for {
		insn, ok := ctx.decodeOne(addr, mode)
		if !ok {
			break
		}

		if !ValidForMode(insn, mode) {
			// An instruction that doesn't belong to this mode means the
			// decoder mis-split a Thumb half-word pair (spec §4.4 step
			// 3's "re-decode the next two bytes in isolation"): redecoding
			// from scratch at the bumped cursor on the next iteration
			// achieves exactly that without needing to reuse any stale
			// buffered decode.
			if mode == ModeThumb {
				addr += 2
			} else {
				addr += 4
			}
			continue
		}

		if mode == ModeThumb {
			ctx.thumbJT.Feed(ctx, insn)
		} else {
			ctx.armJT.Feed(ctx, insn)
		}

		var terminate bool
		if IsBranch(insn) {
			terminate = ctx.branchStep(insn, mode, &addr)
		} else {
			terminate = ctx.nonBranchStep(insn, mode, &addr)
		}
		if terminate {
			break
		}
	}

	l.Size = addr - l.Addr
	l.Processed = true
}

// promoteModeExchange implements the mode-exchange promotion common to
// both branch and non-branch func-return handling (spec §4.4 steps c
// and d): if control falls through into a label already classified as
// code in the *other* mode with branch class B, that label was in fact
// reached by call, not by jump — BL/BLX just hadn't been decoded yet
// when it was first discovered. Promote it.
func (ctx *Context) promoteModeExchange(mode Mode, addr uint32) {
	other := ctx.store.Lookup(addr)
	if other == nil || !other.Kind.IsCode() {
		return
	}
	otherMode := ModeThumb
	if other.Kind == KindARMCode {
		otherMode = ModeARM
	}
	if otherMode != mode && other.Branch == BranchB {
		other.Branch = BranchBL
		other.IsFunc = true
	}
}

// targetKind returns the label kind for a branch target decoded in
// mode, optionally flipped (BLX with an immediate operand exchanges
// instruction sets).
func targetKind(mode Mode, flip bool) LabelKind {
	thumb := mode == ModeThumb
	if flip {
		thumb = !thumb
	}
	if thumb {
		return KindThumbCode
	}
	return KindARMCode
}

// looksLikeFarJump implements spec §4.4's BL-as-far-jump heuristic: a
// `bl` immediately followed by a literal pool, or (in Thumb) by
// half-word zero padding at a non-word-aligned address, is really an
// unconditional jump that the compiler encoded as a call to reach
// beyond B's range. Preserved from the original as specified (spec §9).
func (ctx *Context) looksLikeFarJump(mode Mode, addr uint32) bool {
	if next := ctx.store.Lookup(addr); next != nil && next.Kind == KindPool {
		return true
	}
	if mode == ModeThumb && addr%4 != 0 && ctx.img.InImage(addr) && ctx.img.HalfAt(addr) == 0 {
		return true
	}
	return false
}

// branchStep handles a branch instruction during analyzeLabel (spec
// §4.4 step c). addr is the analyzer's decode cursor; it points at insn
// on entry and is advanced past insn here. Returns true if the current
// label's decode should terminate.
func (ctx *Context) branchStep(insn *Instruction, mode Mode, addr *uint32) bool {
	*addr += insn.Size

	if IsFuncReturn(insn) {
		ctx.promoteModeExchange(mode, *addr)
		return true
	}

	if insn.Mnemonic == MnemonicBX {
		// Conditional (non-AL) BX: not a call, not a return we can act
		// on. Fall through to the next instruction.
		return false
	}

	switch insn.Mnemonic {
	case MnemonicBL:
		target := BranchTarget(insn)
		lbl := ctx.store.AddOrUpdate(target, targetKind(mode, false), "")
		if lbl != nil && !lbl.IsFunc {
			lbl.Branch = BranchBL
		}
		if ctx.looksLikeFarJump(mode, *addr) {
			if lbl != nil && !lbl.IsFunc {
				lbl.Branch = BranchB
			}
			return true
		}
	case MnemonicBLX:
		if insn.Operand(0).Kind == OperandKindReg {
			// Register-operand BLX: treat like any other branch to an
			// unknown destination and add no target.
			break
		}
		target := BranchTarget(insn)
		lbl := ctx.store.AddOrUpdate(target, targetKind(mode, true), "")
		if lbl != nil && !lbl.IsFunc {
			lbl.Branch = BranchBL
		}
	default: // B, any condition
		target := BranchTarget(insn)
		lbl := ctx.store.AddOrUpdate(target, targetKind(mode, false), "")
		if lbl != nil && !lbl.IsFunc {
			lbl.Branch = BranchB
			lbl.Name = ""
		}
	}

	if insn.Cond == CondAL && insn.Mnemonic != MnemonicBL && insn.Mnemonic != MnemonicBLX {
		return true
	}
	return false
}

// nonBranchStep handles a non-branch instruction during analyzeLabel
// (spec §4.4 step d): PC-relative address materialization (ADR, ADD
// Rx,PC,#imm, pool loads) and the indirect-call heuristic that follows
// it. Returns true if the current label's decode should terminate.
func (ctx *Context) nonBranchStep(insn *Instruction, mode Mode, addr *uint32) bool {
	pc := insn.Address
	*addr += insn.Size

	if IsFuncReturn(insn) {
		ctx.promoteModeExchange(mode, *addr)
		return true
	}

	var w uint32
	haveW := false
	var poolLabel *Label
	dstReg := insn.Operand(0).Reg

	switch {
	case insn.Mnemonic == MnemonicADR:
		w = AdrTarget(insn, mode)
		haveW = true

	case IsAddPCImm(insn, mode):
		w = AddPCImmTarget(insn)
		haveW = true

	case IsPoolLoad(insn):
		poolAddr := PoolTarget(insn, pc, mode)
		poolLabel = ctx.store.AddOrUpdate(poolAddr, KindPool, "")
		if ctx.img.InImage(poolAddr) {
			w = ctx.img.WordAt(poolAddr)
			haveW = true
		}
	}

	if !haveW {
		return false
	}

	next, ok := ctx.decodeOne(*addr, mode)
	if !ok {
		return false
	}

	isIndirectCall := false
	switch {
	case next.Mnemonic == MnemonicBX:
		op := next.Operand(0)
		isIndirectCall = op.Kind == OperandKindReg && op.Reg == dstReg
	case next.Mnemonic == MnemonicMOV:
		dst := next.Operand(0)
		src := next.Operand(1)
		isIndirectCall = dst.Kind == OperandKindReg && dst.Reg == RegPC &&
			src.Kind == OperandKindReg && src.Reg == dstReg
	}
	if !isIndirectCall {
		return false
	}

	var kind LabelKind
	if poolLabel != nil {
		if w&1 != 0 {
			kind = KindThumbCode
		} else {
			kind = KindARMCode
		}
	} else if mode == ModeThumb {
		kind = KindThumbCode
	} else {
		kind = KindARMCode
	}

	fn := ctx.store.AddOrUpdate(w&^1, kind, "")
	if fn != nil {
		wasFunc := fn.IsFunc
		fn.IsFunc = true
		fn.Branch = BranchBL
		if !wasFunc {
			fn.Processed = false
		}
	}
	return false
}
