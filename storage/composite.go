package storage

// LoadFieldAtIndex computes the storage of a struct field without copying
// bytes: it walks the parent's field layouts to find the field's byte
// offset, then returns a StackSlot describing the same memory the parent
// occupies, offset by that amount. Grounded on storage.rs's
// load_field_at_index (lines 520-570).
func (m *Manager) LoadFieldAtIndex(sym Symbol, parent Symbol, fieldIndex int, structLayout Layout) Storage {
	s, ok := m.symbols[parent]
	if !ok || !s.IsStack() {
		Fatal("LoadFieldAtIndex", string(parent), "struct parent must be resident on the stack")
	}
	if structLayout.Kind != LayoutStruct || fieldIndex < 0 || fieldIndex >= len(structLayout.Fields) {
		Fatal("LoadFieldAtIndex", string(parent), "field index %d out of range", fieldIndex)
	}
	var fieldByteOffset uint32
	for i := 0; i < fieldIndex; i++ {
		fieldByteOffset += structLayout.Fields[i].StackSize(m.target)
	}
	field := structLayout.Fields[fieldIndex]
	base := s.Stack().BaseOffset() + int32(fieldByteOffset)
	size := field.StackSize(m.target)

	var slot StackSlot
	if field.IsPrimitive() {
		slot = ReferencedPrimitive(base, size, field.Builtin.SignExtended())
	} else {
		slot = Complex(base, size)
	}
	if h, ok := m.allocs[parent]; ok {
		m.allocs[sym] = h.share()
	}
	out := OnStack(slot)
	m.setStorage(sym, out)
	return out
}

// LoadUnionTagID loads a non-recursive tag union's discriminant into a
// general register. Only UnionNonRecursive is supported; other shapes are
// out of scope (spec.md §4.4, mirroring storage.rs's own partial match over
// UnionLayout variants at load_union_tag_id, lines ~590-650).
func (m *Manager) LoadUnionTagID(buf *[]byte, sym Symbol, union Symbol, layout UnionLayout) GeneralReg {
	if layout.Recursion != UnionNonRecursive {
		Fatal("LoadUnionTagID", string(union), "only non-recursive union layouts are supported")
	}
	s, ok := m.symbols[union]
	if !ok || !s.IsStack() {
		Fatal("LoadUnionTagID", string(union), "union must be resident on the stack")
	}
	dataSize, alignment := layout.DataSizeAndAlignment(m.target)
	tagOffset := s.Stack().BaseOffset() + int32(dataSize) - int32(alignment)
	reg := m.ClaimGeneralReg(buf, sym)
	width := layout.TagIDBuiltin().byteSize()
	if width == 8 {
		m.asm.MovReg64Base32(buf, reg, tagOffset)
	} else if layout.TagIDBuiltin().SignExtended() {
		m.asm.MovsxReg64Base32(buf, reg, tagOffset, uint8(width))
	} else {
		m.asm.MovzxReg64Base32(buf, reg, tagOffset, uint8(width))
	}
	return reg
}

// CreateStruct claims stack space sized for structLayout and copies each
// field symbol's current value into its slot, in field order. Grounded on
// storage.rs's create_struct (lines ~600-660).
func (m *Manager) CreateStruct(buf *[]byte, sym Symbol, structLayout Layout, fields []Symbol) Storage {
	if structLayout.Kind != LayoutStruct || len(fields) != len(structLayout.Fields) {
		Fatal("CreateStruct", string(sym), "field count mismatch")
	}
	size := structLayout.StackSize(m.target)
	out := m.ClaimStackArea(sym, size)
	if size == 0 {
		return out
	}

	base := out.Stack().BaseOffset()
	var fieldByteOffset uint32
	for i, f := range fields {
		fieldLayout := structLayout.Fields[i]
		fieldSize := fieldLayout.StackSize(m.target)
		dstOffset := base + int32(fieldByteOffset)
		m.CopySymbolToStackOffset(buf, f, dstOffset, fieldLayout)
		fieldByteOffset += fieldSize
	}
	return out
}

// CopySymbolToStackOffset copies src's value to [rbp+dstOffset] with an
// 8-byte store. Only 8-byte int/float layouts are supported; every other
// layout (narrower scalars and aggregates) is rejected with
// ErrUnsupportedWidth, mirroring storage.rs's own commented-out/todo!()
// struct-copy path (lines 660-681).
func (m *Manager) CopySymbolToStackOffset(buf *[]byte, src Symbol, dstOffset int32, layout Layout) {
	if !layout.IsPrimitive() || layout.StackSize(m.target) != 8 {
		Fatal("CopySymbolToStackOffset", string(src), "%v", ErrUnsupportedWidth)
	}
	s, ok := m.symbols[src]
	if !ok {
		m.fatalUnknownSymbol("CopySymbolToStackOffset", src)
	}
	if layout.Builtin.isFloat() {
		reg := m.GetFloatReg(buf, src)
		m.asm.MovBase32Freg64(buf, dstOffset, reg)
		return
	}
	if s.IsReg() && s.Reg().IsGeneral() {
		m.asm.MovBase32Reg64(buf, dstOffset, s.Reg().GeneralReg())
		return
	}
	reg := m.GetGeneralReg(buf, src)
	m.asm.MovBase32Reg64(buf, dstOffset, reg)
}
