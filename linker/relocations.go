package linker

// RelocKind enumerates the relocation kinds surgery resolves. Only these
// four are supported (spec.md §4.7 step 6, §7's Non-goal boundary); any
// other numeric relocation type is fatal.
type RelocKind int

const (
	RelocRelative RelocKind = iota
	RelocPltRelative
	RelocGotRelative
	RelocAbsolute
)

// classifyReloc maps a raw ELF64 x86-64 relocation type to the four
// supported RelocKinds, mirroring lib.rs lines 1090-1137.
func classifyReloc(rtype uint32) (RelocKind, bool) {
	switch rtype {
	case rX8664PC32, rX8664PLT32:
		return RelocPltRelative, true
	case rX8664Relative:
		return RelocRelative, true
	case rX8664GOTPCREL:
		return RelocGotRelative, true
	case rX8664_64:
		return RelocAbsolute, true
	default:
		return 0, false
	}
}

// relocFixupSize reports the width in bytes of the value surgery must
// write at the relocation site for rtype (spec.md §4.7 step 6's "32-bit
// kinds write i32, 64-bit kinds write i64"; the object/iced-derived size()
// the original computes per relocation type, reproduced for the four
// supported kinds).
func relocFixupSize(rtype uint32) (int, bool) {
	switch rtype {
	case rX8664PC32, rX8664PLT32, rX8664GOTPCREL:
		return 4, true
	case rX8664Relative, rX8664_64:
		return 8, true
	default:
		return 0, false
	}
}

// gotCursor tracks the running allocation point for GOT-relative
// relocations, placed immediately after a text section (lib.rs lines
// 1120-1131: "store the resolved address right after this section and
// point the instruction at that slot").
type gotCursor struct {
	base   uint64 // segment-relative offset of the GOT region's first byte
	offset uint64 // bytes allocated so far
}

func newGotCursor(base uint64) *gotCursor { return &gotCursor{base: base} }

// alloc reserves 8 bytes and returns their segment-relative offset.
func (g *gotCursor) alloc() uint64 {
	off := g.base + g.offset
	g.offset += 8
	return off
}

// resolveRelocation computes the final value to write at a relocation
// site, following spec.md §4.7 step 6's formulas exactly. For
// RelocGotRelative, it also returns the GOT slot's segment-relative offset
// and the value that must be stored there (8 bytes, little-endian) — the
// caller is responsible for writing both the GOT slot and the relocation
// site.
func resolveRelocation(kind RelocKind, targetOffset int64, relocOffset, sectionOffset uint64, addend int64, newSegmentVAddr uint64, got *gotCursor) (value int64, gotSlotOffset uint64, gotSlotValue uint64, usesGot bool) {
	switch kind {
	case RelocRelative, RelocPltRelative:
		value = targetOffset - int64(relocOffset+sectionOffset) + addend
		return value, 0, 0, false
	case RelocAbsolute:
		value = targetOffset + int64(newSegmentVAddr)
		return value, 0, 0, false
	case RelocGotRelative:
		slot := got.alloc()
		slotValue := uint64(targetOffset) + newSegmentVAddr
		value = int64(slot) - int64(relocOffset+sectionOffset) + addend
		return value, slot, slotValue, true
	default:
		Fatal("resolveRelocation", "unsupported relocation kind %d", kind)
		return 0, 0, 0, false
	}
}
