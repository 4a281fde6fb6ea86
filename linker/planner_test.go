package linker

import "testing"

func buildPhdrView(t *testing.T, phdrs []ProgramHeader) (*View, ELFHeader) {
	t.Helper()
	hdr := ELFHeader{PhOff: 0, PhEntSize: progHeaderSize, PhNum: uint16(len(phdrs))}
	buf := make([]byte, int(hdr.PhNum)*progHeaderSize)
	w := NewWriter(buf)
	for i, ph := range phdrs {
		w.PutProgramHeader(hdr, i, ph)
	}
	return NewView(buf), hdr
}

// TestPlannerRepurposesNote covers spec.md S4: when a PT_NOTE entry exists,
// it is chosen with no added data and no shift.
func TestPlannerRepurposesNote(t *testing.T) {
	phdrs := []ProgramHeader{
		{Type: ptLoad, Offset: 0, VAddr: 0, FileSz: 0x1000, MemSz: 0x1000, Align: 0x1000},
		{Type: ptNote, Offset: 0x1000, VAddr: 0x1000, FileSz: 0x40, MemSz: 0x40, Align: 4},
		{Type: ptDyn, Offset: 0x1040, VAddr: 0x1040, FileSz: 0x100, MemSz: 0x100, Align: 8},
	}
	v, hdr := buildPhdrView(t, phdrs)

	plan := NewPlanner(v, hdr).Decide()
	if plan.NoteIndex != 1 {
		t.Fatalf("NoteIndex = %d, want 1", plan.NoteIndex)
	}
	if plan.AddedData != 0 {
		t.Fatalf("AddedData = %d, want 0", plan.AddedData)
	}
}

// TestPlannerFallsBackToPadding covers spec.md S5's precondition: no
// PT_NOTE, but the first PT_LOAD has enough trailing alignment padding.
func TestPlannerFallsBackToPadding(t *testing.T) {
	phdrs := []ProgramHeader{
		{Type: ptLoad, Offset: 0, VAddr: 0, FileSz: 0x100, MemSz: 0x100, Align: 0x1000},
		{Type: ptDyn, Offset: 0x1000, VAddr: 0x1000, FileSz: 0x100, MemSz: 0x100, Align: 8},
	}
	v, hdr := buildPhdrView(t, phdrs)

	plan := NewPlanner(v, hdr).Decide()
	if plan.NoteIndex != -1 {
		t.Fatalf("NoteIndex = %d, want -1", plan.NoteIndex)
	}
	if plan.AddedData != progHeaderSize {
		t.Fatalf("AddedData = %d, want %d", plan.AddedData, progHeaderSize)
	}
	if plan.FirstLoadIndex != 0 {
		t.Fatalf("FirstLoadIndex = %d, want 0", plan.FirstLoadIndex)
	}

	phEnd := hdr.PhOff + uint64(hdr.PhNum)*uint64(hdr.PhEntSize)
	if plan.ShiftStart != phEnd {
		t.Fatalf("ShiftStart = 0x%x, want 0x%x", plan.ShiftStart, phEnd)
	}
	if plan.ShiftEnd <= plan.ShiftStart {
		t.Fatalf("ShiftEnd 0x%x must exceed ShiftStart 0x%x", plan.ShiftEnd, plan.ShiftStart)
	}
}

// TestPlannerFatalsOnInsufficientPadding covers the rejection inequality:
// when growing p_filesz by one program-header entry crosses an alignment
// boundary, there is no padding to steal.
func TestPlannerFatalsOnInsufficientPadding(t *testing.T) {
	phdrs := []ProgramHeader{
		{Type: ptLoad, Offset: 0, VAddr: 0, FileSz: 0xFE0, MemSz: 0xFE0, Align: 0x1000},
	}
	v, hdr := buildPhdrView(t, phdrs)

	defer func() {
		if recover() == nil {
			t.Fatal("expected Fatal panic on insufficient padding")
		}
	}()
	NewPlanner(v, hdr).Decide()
}
