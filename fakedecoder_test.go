package gbadisasm

// fakeDecoder is a minimal Decoder stand-in for tests: it answers by
// address from a pre-built table instead of decoding real bytes, which
// keeps the analyzer/renderer tests independent of gapstone/cgo. An
// address with no entry is reported as undecodable, matching how a
// real decoder stops at invalid bytes.
type fakeDecoder struct {
	insns map[uint32]Instruction
}

func newFakeDecoder() *fakeDecoder {
	return &fakeDecoder{insns: make(map[uint32]Instruction)}
}

func (d *fakeDecoder) at(insn Instruction) *fakeDecoder {
	d.insns[insn.Address] = insn
	return d
}

func (d *fakeDecoder) Decode(code []byte, addr uint32, mode Mode) ([]Instruction, error) {
	insn, ok := d.insns[addr]
	if !ok {
		return nil, nil
	}
	return []Instruction{insn}, nil
}
