package gbadisasm

// Image is an immutable byte array loaded at base address Base. It
// implements spec.md §3's byte_at/hword_at/word_at and the "in image"
// predicate.
type Image struct {
	Base  uint32
	Bytes []byte
}

// NewImage wraps a flat memory image loaded at the given base address.
func NewImage(base uint32, data []byte) *Image {
	return &Image{Base: base, Bytes: data}
}

// Size returns the number of bytes in the image.
func (img *Image) Size() uint32 {
	return uint32(len(img.Bytes))
}

// InImage reports whether addr falls within [Base, Base+N).
func (img *Image) InImage(addr uint32) bool {
	return addr >= img.Base && addr-img.Base < img.Size()
}

// ByteAt returns the byte at addr. Callers must check InImage first.
func (img *Image) ByteAt(addr uint32) byte {
	return img.Bytes[addr-img.Base]
}

// HalfAt returns the little-endian half-word at addr.
func (img *Image) HalfAt(addr uint32) uint16 {
	return uint16(img.ByteAt(addr)) | uint16(img.ByteAt(addr+1))<<8
}

// WordAt returns the little-endian word at addr.
func (img *Image) WordAt(addr uint32) uint32 {
	return uint32(img.ByteAt(addr)) | uint32(img.ByteAt(addr+1))<<8 |
		uint32(img.ByteAt(addr+2))<<16 | uint32(img.ByteAt(addr+3))<<24
}

// Slice returns up to maxLen bytes of the image starting at addr,
// clamped to the image bounds. Used by the analyzer to hand the decoder
// bounded chunks (spec §4.4 step 2).
func (img *Image) Slice(addr uint32, maxLen uint32) []byte {
	if !img.InImage(addr) {
		return nil
	}
	off := addr - img.Base
	end := off + maxLen
	if end > img.Size() {
		end = img.Size()
	}
	return img.Bytes[off:end]
}
