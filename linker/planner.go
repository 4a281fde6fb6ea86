package linker

// Planner computes whether a free PT_NOTE program header can be repurposed
// for the eventual appended PT_LOAD, or whether the program-header table
// must instead be treated as extended by one entry with a padding shift.
// Grounded on lib.rs lines 559-747 (the two-path space-making strategy
// spec.md §4.6 step 8 names).
type Planner struct {
	view   *View
	header ELFHeader
	phdrs  []ProgramHeader
}

func NewPlanner(v *View, hdr ELFHeader) *Planner {
	phdrs := make([]ProgramHeader, hdr.PhNum)
	for i := range phdrs {
		phdrs[i] = v.ProgramHeader(hdr, i)
	}
	return &Planner{view: v, header: hdr, phdrs: phdrs}
}

// Plan is the outcome of the space-making strategy: either the PT_NOTE
// index to repurpose (noteIndex >= 0, addedData == 0), or a padding shift
// over the first PT_LOAD (noteIndex == -1, addedData == ph entry size).
type Plan struct {
	NoteIndex            int
	AddedData            uint64
	ShiftStart           uint64
	ShiftEnd             uint64
	FirstLoadIndex       int
	FirstLoadAlignedSize uint64
}

// Decide picks PT_NOTE-repurpose when available, falling back to the
// padding shift otherwise. Fatal if the fallback's first PT_LOAD lacks
// enough alignment padding (lib.rs's rejection inequality, reproduced
// exactly: p_filesz/p_align != (p_filesz+added)/p_align).
func (p *Planner) Decide() Plan {
	for i, ph := range p.phdrs {
		if ph.Type == ptNote {
			return Plan{NoteIndex: i, AddedData: 0}
		}
	}

	firstLoad := -1
	for i, ph := range p.phdrs {
		if ph.Type == ptLoad && ph.Offset == 0 {
			firstLoad = i
			break
		}
	}
	if firstLoad == -1 {
		Fatal("Planner.Decide", "no PT_NOTE to repurpose and no file-offset-0 PT_LOAD to pad")
	}

	ph := p.phdrs[firstLoad]
	added := uint64(progHeaderSize)

	if ph.FileSz/ph.Align != (ph.FileSz+added)/ph.Align {
		Fatal("Planner.Decide", "insufficient padding after the first PT_LOAD to absorb one program header entry")
	}

	phEnd := p.header.PhOff + uint64(p.header.PhNum)*uint64(p.header.PhEntSize)
	shiftStart := ph.VAddr + phEnd
	firstLoadAlignedSize := alignUp64(ph.MemSz+added, ph.Align)
	shiftEnd := ph.VAddr + firstLoadAlignedSize

	return Plan{
		NoteIndex:            -1,
		AddedData:            added,
		ShiftStart:           shiftStart,
		ShiftEnd:             shiftEnd,
		FirstLoadIndex:       firstLoad,
		FirstLoadAlignedSize: firstLoadAlignedSize,
	}
}

func alignUp64(v, align uint64) uint64 {
	if align <= 1 {
		return v
	}
	if r := v % align; r != 0 {
		return v + (align - r)
	}
	return v
}
