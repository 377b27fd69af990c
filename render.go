package gbadisasm

import (
	"fmt"
	"io"
	"strings"
)

const defaultDataColumnWidth = 16

// thumbNop is the Thumb encoding of `mov r8, r8`, the canonical Thumb
// NOP (spec §4.5 gap filler special case).
const thumbNop = 0x46C0

// Renderer walks a Context's label store in address order and emits a
// GNU-assembler listing (C6, spec §4.5).
type Renderer struct {
	// ShowAddresses reproduces the original's gOptionShowAddrComments:
	// when set, every instruction is printed as `/*0xADDR*/ mnemonic
	// ops` instead of with symbolic operand substitution.
	ShowAddresses bool

	// DataColumnWidth is the number of bytes per .byte line in gap
	// regions. Zero means defaultDataColumnWidth.
	DataColumnWidth int
}

func (r *Renderer) columnWidth() int {
	if r.DataColumnWidth <= 0 {
		return defaultDataColumnWidth
	}
	return r.DataColumnWidth
}

// labelName returns a label's user-supplied name if it has one,
// otherwise its synthesized name: FUN_HHHHHHHH for function entries,
// _HHHHHHHH for everything else (spec §6).
func labelName(l *Label) string {
	if l.Name != "" {
		return l.Name
	}
	if l.Branch == BranchBL {
		return fmt.Sprintf("FUN_%08X", l.Addr)
	}
	return fmt.Sprintf("_%08X", l.Addr)
}

// branchOperand resolves a target address to a symbolic name, falling
// back to a raw hex literal if no label covers it (e.g. a pool word
// that isn't itself a code pointer within this image).
func (r *Renderer) branchOperand(ctx *Context, target uint32) string {
	if l := ctx.store.Lookup(target); l != nil {
		return labelName(l)
	}
	return fmt.Sprintf("0x%X", target)
}

// poolOperand implements spec §4.5's pool-label naming rule, including
// the supplemented "possibly-thumb-function" bit-1 check (SPEC_FULL.md
// §4): a pool word with its low bit set that names a known Thumb
// function is rendered via that function's name with the bit stripped,
// ahead of the generic any-label-at-v rule.
func (r *Renderer) poolOperand(ctx *Context, v uint32) string {
	if v&1 != 0 {
		if l := ctx.store.Lookup(v &^ 1); l != nil && l.Kind == KindThumbCode && l.Branch == BranchBL {
			return labelName(l)
		}
	}
	if l := ctx.store.Lookup(v); l != nil {
		return labelName(l)
	}
	return fmt.Sprintf("0x%X", v)
}

// formatInstruction renders one decoded instruction as assembler text
// (no leading tab, no trailing newline), applying the symbolic operand
// rules from spec §4.5 unless ShowAddresses is set.
func (r *Renderer) formatInstruction(ctx *Context, insn *Instruction, mode Mode) string {
	if r.ShowAddresses {
		return fmt.Sprintf("/*0x%08X*/ %s %s", insn.Address, insn.MnemonicText, insn.OperandText)
	}

	switch {
	case IsBranch(insn) && insn.Operand(0).Kind == OperandKindImm:
		target := BranchTarget(insn)
		return fmt.Sprintf("%s %s", insn.MnemonicText, r.branchOperand(ctx, target))

	case IsPoolLoad(insn):
		target := PoolTarget(insn, insn.Address, mode)
		var v uint32
		if ctx.img.InImage(target) {
			v = ctx.img.WordAt(target)
		}
		return fmt.Sprintf("%s %s @ =%s", insn.MnemonicText, insn.OperandText, r.poolOperand(ctx, v))

	case insn.Mnemonic == MnemonicADR:
		target := AdrTarget(insn, mode)
		return fmt.Sprintf("%s %s @ =%s", insn.MnemonicText, insn.OperandText, r.branchOperand(ctx, target))

	case IsAddPCImm(insn, mode):
		target := AddPCImmTarget(insn)
		return fmt.Sprintf("%s %s @ =%s", insn.MnemonicText, insn.OperandText, r.branchOperand(ctx, target))

	default:
		return fmt.Sprintf("%s %s", insn.MnemonicText, insn.OperandText)
	}
}

func (r *Renderer) emitInstruction(w io.Writer, ctx *Context, insn *Instruction, mode Mode) {
	fmt.Fprintf(w, "\t%s\n", r.formatInstruction(ctx, insn, mode))
}

// Render runs the C6 post-processing pass over ctx's label store (sort,
// assert, mode-exchange promotion, size resolution) and writes the
// final listing to w.
func (r *Renderer) Render(ctx *Context, w io.Writer) error {
	ctx.store.SortByAddress()
	labels := ctx.store.InAddressOrder()

	for i, l := range labels {
		if i > 0 && l.Addr == labels[i-1].Addr {
			return fmt.Errorf("%w: 0x%08X", ErrDuplicateAddress, l.Addr)
		}
		if l.Kind.IsCode() && !l.Processed {
			return fmt.Errorf("%w: 0x%08X", ErrUnprocessedLabel, l.Addr)
		}
	}

	for i := 1; i < len(labels); i++ {
		prev, cur := labels[i-1], labels[i]
		if prev.Kind.IsCode() && cur.Kind.IsCode() && prev.Kind != cur.Kind {
			cur.Branch = BranchBL
		}
	}

	imgEnd := ctx.img.Base + ctx.img.Size()
	for i, l := range labels {
		next := imgEnd
		if i+1 < len(labels) {
			next = labels[i+1].Addr
		}
		if !l.SizeKnown() || l.Addr+l.Size > next {
			l.Size = next - l.Addr
		}
	}

	pos := ctx.img.Base
	for _, l := range labels {
		if l.Addr > pos {
			r.emitGap(w, ctx.img, pos, l.Addr, l.Kind)
		}
		if err := r.emitLabel(w, ctx, l); err != nil {
			return err
		}
		pos = l.End()
	}
	if pos < imgEnd {
		r.emitGap(w, ctx.img, pos, imgEnd, KindData)
	}
	return nil
}

func (r *Renderer) emitLabel(w io.Writer, ctx *Context, l *Label) error {
	switch l.Kind {
	case KindARMCode, KindThumbCode:
		return r.emitCode(w, ctx, l)
	case KindPool:
		r.emitPool(w, ctx, l)
	case KindJumpTableThumb:
		r.emitJumpTableThumb(w, ctx, l)
	case KindJumpTableARM:
		r.emitJumpTableARM(w, ctx, l)
	default:
		r.emitGap(w, ctx.img, l.Addr, l.End(), KindData)
	}
	return nil
}

func (r *Renderer) emitCode(w io.Writer, ctx *Context, l *Label) error {
	name := labelName(l)
	mode := ModeARM
	if l.Kind == KindThumbCode {
		mode = ModeThumb
	}

	if l.Branch == BranchBL {
		switch l.Kind {
		case KindARMCode:
			if l.Addr%4 != 0 {
				return fmt.Errorf("%w: %s at 0x%08X", ErrUnalignedFunction, name, l.Addr)
			}
			fmt.Fprintf(w, "\n\tarm_func_start %s\n%s: @ 0x%08X\n", name, name, l.Addr)
		case KindThumbCode:
			if l.Addr%2 != 0 {
				return fmt.Errorf("%w: %s at 0x%08X", ErrUnalignedFunction, name, l.Addr)
			}
			directive := "thumb_func_start"
			if l.Addr%4 == 2 {
				directive = "non_word_aligned_thumb_func_start"
			}
			fmt.Fprintf(w, "\n\t%s %s\n%s: @ 0x%08X\n", directive, name, name, l.Addr)
		}
	} else {
		fmt.Fprintf(w, "%s:\n", name)
	}

	addr := l.Addr
	end := l.End()
	for addr < end {
		insn, ok := ctx.decodeOne(addr, mode)
		if ok && ValidForMode(insn, mode) {
			r.emitInstruction(w, ctx, insn, mode)
			addr += insn.Size
			continue
		}
		if mode == ModeThumb {
			fmt.Fprintf(w, "\t.hword 0x%04X\n", ctx.img.HalfAt(addr))
			addr += 2
		} else {
			fmt.Fprintf(w, "\t.word 0x%08X\n", ctx.img.WordAt(addr))
			addr += 4
		}
	}
	return nil
}

func (r *Renderer) emitPool(w io.Writer, ctx *Context, l *Label) {
	name := labelName(l)
	var v uint32
	if ctx.img.InImage(l.Addr) {
		v = ctx.img.WordAt(l.Addr)
	}
	fmt.Fprintf(w, "%s: .4byte %s\n", name, r.poolOperand(ctx, v))
}

func (r *Renderer) emitJumpTableThumb(w io.Writer, ctx *Context, l *Label) {
	name := labelName(l)
	fmt.Fprintf(w, "%s: @ jump table (thumb)\n", name)
	count := l.Size / 2
	for n := uint32(0); n < count; n++ {
		addr := l.Addr + n*2
		// Unsigned, matching the analyzer's own table-entry arithmetic
		// (jumptable.go) and the original's uint16_t offset: a signed read
		// here would disagree with the analyzer for any entry with the
		// high bit set, looking up a label that was never created.
		target := l.Addr + 2 + uint32(ctx.img.HalfAt(addr))
		fmt.Fprintf(w, "\t.2byte %s - %s - 2 @ case %d\n", r.branchOperand(ctx, target), name, n)
	}
}

func (r *Renderer) emitJumpTableARM(w io.Writer, ctx *Context, l *Label) {
	name := labelName(l)
	fmt.Fprintf(w, "%s: @ jump table (arm)\n", name)
	addr := l.Addr
	end := l.End()
	n := 0
	for addr < end {
		insn, ok := ctx.decodeOne(addr, ModeARM)
		if !ok {
			break
		}
		fmt.Fprintf(w, "\t%s @ case %d\n", r.formatInstruction(ctx, insn, ModeARM), n)
		addr += insn.Size
		n++
	}
}

// emitGap implements spec §4.5 step 6: the byte-for-byte filler between
// adjacent label regions, plus the narrower code-to-pool alignment case
// from the code-label bullet (a 0-3 byte all-zero gap immediately
// before a POOL label is consumed with `.align 2, 0` rather than raw
// bytes).
func (r *Renderer) emitGap(w io.Writer, img *Image, from, to uint32, afterKind LabelKind) {
	if from >= to {
		return
	}
	if afterKind == KindPool && to-from <= 3 && allZero(img, from, to) {
		fmt.Fprintf(w, "\t.align 2, 0\n")
		return
	}

	fmt.Fprintf(w, "_%08X:\n", from)
	addr := from
	var pending []byte
	flush := func() {
		width := r.columnWidth()
		for len(pending) > 0 {
			n := len(pending)
			if n > width {
				n = width
			}
			row := pending[:n]
			parts := make([]string, len(row))
			for i, b := range row {
				parts[i] = fmt.Sprintf("0x%02X", b)
			}
			fmt.Fprintf(w, "\t.byte %s\n", strings.Join(parts, ", "))
			pending = pending[n:]
		}
	}
	for addr < to {
		if addr%4 == 2 && addr+2 <= to && img.HalfAt(addr) == 0 {
			flush()
			fmt.Fprintf(w, "\t.align 2, 0\n")
			addr += 2
			continue
		}
		if addr+2 <= to && img.HalfAt(addr) == thumbNop {
			flush()
			fmt.Fprintf(w, "\tnop\n")
			addr += 2
			continue
		}
		pending = append(pending, img.ByteAt(addr))
		addr++
	}
	flush()
}

func allZero(img *Image, from, to uint32) bool {
	for a := from; a < to; a++ {
		if img.ByteAt(a) != 0 {
			return false
		}
	}
	return true
}
