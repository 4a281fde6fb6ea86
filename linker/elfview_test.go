package linker

import (
	"encoding/binary"
	"testing"
)

func TestViewHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, elfHeaderSize)
	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB

	w := NewWriter(buf)
	w.PutU16(16, etExec)
	w.PutU16(18, emX8664)
	w.PutU64(24, 0x401000)
	w.PutU64(32, 64)
	w.PutU64(40, 512)
	w.PutU16(54, progHeaderSize)
	w.PutU16(56, 3)
	w.PutU16(58, sectionHeaderSize)
	w.PutU16(60, 5)
	w.PutU16(62, 4)

	hdr := NewView(buf).Header()
	if hdr.Type != etExec || hdr.Machine != emX8664 || hdr.Entry != 0x401000 {
		t.Fatalf("unexpected header: %+v", hdr)
	}
	if hdr.PhOff != 64 || hdr.PhNum != 3 || hdr.PhEntSize != progHeaderSize {
		t.Fatalf("unexpected program-header fields: %+v", hdr)
	}
	if hdr.ShOff != 512 || hdr.ShNum != 5 || hdr.ShStrNdx != 4 {
		t.Fatalf("unexpected section-header fields: %+v", hdr)
	}
}

func TestViewHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, elfHeaderSize)
	defer func() {
		if recover() == nil {
			t.Fatal("expected Fatal panic on missing ELF magic")
		}
	}()
	NewView(buf).Header()
}

func TestProgramHeaderRoundTrip(t *testing.T) {
	hdr := ELFHeader{PhOff: 16, PhEntSize: progHeaderSize, PhNum: 2}
	buf := make([]byte, int(hdr.PhOff)+2*progHeaderSize)
	w := NewWriter(buf)

	ph := ProgramHeader{Type: ptLoad, Flags: pfR | pfX, Offset: 0, VAddr: 0x1000, PAddr: 0x1000, FileSz: 0x500, MemSz: 0x500, Align: 0x1000}
	w.PutProgramHeader(hdr, 1, ph)

	got := NewView(buf).ProgramHeader(hdr, 1)
	if got != ph {
		t.Fatalf("program header round trip mismatch: got %+v, want %+v", got, ph)
	}
}

func TestSectionHeaderRoundTripAndName(t *testing.T) {
	hdr := ELFHeader{ShOff: 0, ShEntSize: sectionHeaderSize, ShNum: 2, ShStrNdx: 1}
	strtabData := []byte("\x00.text\x00")
	buf := make([]byte, int(hdr.ShOff)+2*sectionHeaderSize+len(strtabData))
	strtabOffset := uint64(2 * sectionHeaderSize)
	copy(buf[strtabOffset:], strtabData)

	w := NewWriter(buf)
	w.PutSectionHeader(hdr.ShOff, hdr.ShEntSize, 1, SectionHeader{Offset: strtabOffset})
	sh := SectionHeader{Name: 1, Type: shtProgbits, Flags: shfAlloc | shfExec, Addr: 0x2000, Offset: 0x1000, Size: 0x40, AddrAlign: 16}
	w.PutSectionHeader(hdr.ShOff, hdr.ShEntSize, 0, sh)

	v := NewView(buf)
	got := v.SectionHeader(hdr, 0)
	if got != sh {
		t.Fatalf("section header round trip mismatch: got %+v, want %+v", got, sh)
	}
	if name := v.SectionName(hdr, got); name != ".text" {
		t.Fatalf("SectionName = %q, want .text", name)
	}
}

func TestDynEntryAndSymbolRoundTrip(t *testing.T) {
	buf := make([]byte, dynEntrySize*2+symEntrySize)
	w := NewWriter(buf)
	w.PutDynEntry(0, 1, DynEntry{Tag: dtNeeded, Value: 7})

	v := NewView(buf)
	got := v.DynEntry(0, 1)
	if got.Tag != dtNeeded || got.Value != 7 {
		t.Fatalf("dyn entry round trip mismatch: %+v", got)
	}

	symBase := uint64(dynEntrySize * 2)
	binary.LittleEndian.PutUint32(buf[symBase:], 3)     // st_name
	buf[symBase+4] = 0x12                                // st_info
	buf[symBase+5] = 0                                   // st_other
	binary.LittleEndian.PutUint16(buf[symBase+6:], 9)    // st_shndx
	binary.LittleEndian.PutUint64(buf[symBase+8:], 0x400) // st_value
	binary.LittleEndian.PutUint64(buf[symBase+16:], 64)  // st_size

	sym := v.Symbol(symBase, 0)
	if sym.Name != 3 || sym.Info != 0x12 || sym.Shndx != 9 || sym.Value != 0x400 || sym.Size != 64 {
		t.Fatalf("symbol round trip mismatch: %+v", sym)
	}

	w.PutSymbolShndxValueSize(symBase, 0, 11, 0x500, 128)
	sym = v.Symbol(symBase, 0)
	if sym.Shndx != 11 || sym.Value != 0x500 || sym.Size != 128 {
		t.Fatalf("symbol patch mismatch: %+v", sym)
	}
}

func TestRelaRoundTripAndAccessors(t *testing.T) {
	buf := make([]byte, relaEntrySize)
	binary.LittleEndian.PutUint64(buf[0:], 0x30)
	binary.LittleEndian.PutUint64(buf[8:], (uint64(5)<<32)|uint64(rX8664JumpSlot))
	binary.LittleEndian.PutUint64(buf[16:], uint64(int64(-8)))

	rel := NewView(buf).Rela(0, 0)
	if rel.Offset != 0x30 || rel.Sym() != 5 || rel.Kind() != rX8664JumpSlot || rel.Addend != -8 {
		t.Fatalf("unexpected rela: %+v", rel)
	}
}
