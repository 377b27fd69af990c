package gbadisasm

import "sort"

const sizeUnknown = ^uint32(0)

// LabelKind classifies what lives at a label's address (spec §3).
type LabelKind int

const (
	KindARMCode LabelKind = iota
	KindThumbCode
	KindPool
	KindJumpTableARM
	KindJumpTableThumb
	KindData
)

func (k LabelKind) String() string {
	switch k {
	case KindARMCode:
		return "ARM_CODE"
	case KindThumbCode:
		return "THUMB_CODE"
	case KindPool:
		return "POOL"
	case KindJumpTableARM:
		return "JUMP_TABLE_ARM"
	case KindJumpTableThumb:
		return "JUMP_TABLE_THUMB"
	default:
		return "DATA"
	}
}

// IsCode reports whether the kind is one of the two code kinds.
func (k LabelKind) IsCode() bool {
	return k == KindARMCode || k == KindThumbCode
}

// BranchClass is the three-valued lattice from spec §3: UNKNOWN, B (an
// intra-function jump target), or BL (a function entry).
type BranchClass int

const (
	BranchUnknown BranchClass = iota
	BranchB
	BranchBL
)

// Label is a single record in the label store (spec §3).
type Label struct {
	Addr      uint32
	Kind      LabelKind
	Branch    BranchClass
	Size      uint32 // sizeUnknown until determined
	Processed bool
	IsFunc    bool
	Name      string
}

// SizeKnown reports whether Size has been determined.
func (l *Label) SizeKnown() bool {
	return l.Size != sizeUnknown
}

// End returns the address just past the label's region. Only meaningful
// once SizeKnown is true.
func (l *Label) End() uint32 {
	return l.Addr + l.Size
}

// LabelStore is the ordered collection of labels keyed by address (C2).
// It is owned by a single Context for the duration of one analysis run;
// nothing in it is safe to share across concurrent analyses (spec §5).
type LabelStore struct {
	labels  []*Label
	byAddr  map[uint32]*Label
	ramFloor uint32
	img     *Image
	sorted  bool
}

// NewLabelStore creates an empty store. Addresses below ramFloor are
// silently dropped by AddOrUpdate, per spec §4.1.
func NewLabelStore(img *Image, ramFloor uint32) *LabelStore {
	return &LabelStore{
		byAddr:   make(map[uint32]*Label),
		ramFloor: ramFloor,
		img:      img,
	}
}

// AddOrUpdate implements spec §4.1's add_or_update. If a label already
// exists at addr, its kind is overwritten (the newer classification
// wins) and the existing label is returned. Otherwise a new label is
// inserted with spec-mandated defaults. Addresses below the RAM floor
// are silently dropped (nil is returned). Labels outside the image are
// created already processed, since they're external references that
// are never decoded.
func (s *LabelStore) AddOrUpdate(addr uint32, kind LabelKind, name string) *Label {
	if addr < s.ramFloor {
		return nil
	}
	if l, ok := s.byAddr[addr]; ok {
		l.Kind = kind
		return l
	}

	l := &Label{
		Addr: addr,
		Kind: kind,
		Size: sizeUnknown,
	}
	if kind.IsCode() {
		l.Branch = BranchBL
	} else {
		l.Branch = BranchUnknown
	}
	if name != "" {
		l.Name = name
	}
	if !s.img.InImage(addr) {
		l.Processed = true
	}

	s.labels = append(s.labels, l)
	s.byAddr[addr] = l
	s.sorted = false
	return l
}

// Lookup returns the label at addr, or nil if none exists.
func (s *LabelStore) Lookup(addr uint32) *Label {
	return s.byAddr[addr]
}

// NextUnprocessed returns some label with Processed == false, or nil if
// every label has been processed. Order is unspecified (spec §4.1); a
// linear scan is sufficient since label counts are in the thousands, not
// millions (spec §4.1 rationale).
func (s *LabelStore) NextUnprocessed() *Label {
	for _, l := range s.labels {
		if !l.Processed {
			return l
		}
	}
	return nil
}

// Len returns the number of labels in the store.
func (s *LabelStore) Len() int {
	return len(s.labels)
}

// SortByAddress sorts the labels by address in place. Invoked once after
// analysis completes, before rendering (spec §4.1).
func (s *LabelStore) SortByAddress() {
	if s.sorted {
		return
	}
	sort.Slice(s.labels, func(i, j int) bool { return s.labels[i].Addr < s.labels[j].Addr })
	s.sorted = true
}

// InAddressOrder returns the labels in address order. SortByAddress must
// have been called first.
func (s *LabelStore) InAddressOrder() []*Label {
	return s.labels
}
