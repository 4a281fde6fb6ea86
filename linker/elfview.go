package linker

import "encoding/binary"

// ELF64 structure sizes and field offsets, named the same way the teacher's
// elf.go names its constants (elfHeaderSize/progHeaderSize/sectionHeaderSize)
// but sized for *reading* an arbitrary host ELF rather than emitting a fixed
// one.
const (
	elfHeaderSize     = 64
	progHeaderSize    = 56
	sectionHeaderSize = 64
	dynEntrySize      = 16
	symEntrySize      = 24
	relaEntrySize     = 24

	etExec = 2
	etDyn  = 3

	emX8664 = 0x3e

	ptLoad     = 1
	ptDyn      = 2
	ptNote     = 4
	ptPhdr     = 6
	ptGnuStack = 0x6474e551

	pfX = 1
	pfW = 2
	pfR = 4

	shtProgbits = 1
	shfAlloc    = 0x2
	shfExec     = 0x4

	rX8664JumpSlot = 7
	rX8664Relative = 8
	rX8664_64      = 1
	rX8664PC32     = 2
	rX8664GOTPCREL = 9
	rX8664PLT32    = 4

	dtNull     = 0
	dtNeeded   = 1
	dtPltRelSz = 2
	dtHash     = 4
	dtStrtab   = 5
	dtSymtab   = 6
	dtRela     = 7
	dtInit     = 12
	dtFini     = 13
	dtSymEnt   = 11
	dtPltGOT   = 3
	dtJmpRel   = 23
)

// ELFHeader is an in-place view of the 64-byte ELF64 file header.
type ELFHeader struct {
	Type      uint16
	Machine   uint16
	Entry     uint64
	PhOff     uint64
	ShOff     uint64
	PhEntSize uint16
	PhNum     uint16
	ShEntSize uint16
	ShNum     uint16
	ShStrNdx  uint16
}

// ProgramHeader is an in-place view of a 56-byte ELF64 program header entry.
type ProgramHeader struct {
	Type   uint32
	Flags  uint32
	Offset uint64
	VAddr  uint64
	PAddr  uint64
	FileSz uint64
	MemSz  uint64
	Align  uint64
}

// SectionHeader is an in-place view of a 64-byte ELF64 section header entry.
type SectionHeader struct {
	Name      uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	AddrAlign uint64
	EntSize   uint64
}

// DynEntry is a 16-byte .dynamic entry.
type DynEntry struct {
	Tag   int64
	Value uint64
}

// Symbol is a 24-byte .symtab/.dynsym entry.
type Symbol struct {
	Name  uint32
	Info  uint8
	Other uint8
	Shndx uint16
	Value uint64
	Size  uint64
}

// Rela is a 24-byte RELA relocation entry.
type Rela struct {
	Offset uint64
	Info   uint64
	Addend int64
}

func (r Rela) Sym() uint32  { return uint32(r.Info >> 32) }
func (r Rela) Kind() uint32 { return uint32(r.Info) }

// View overlays read-only ELF64 structures onto a raw byte slice, grounded
// on the teacher's little-endian byte-writer discipline (emit.go) but
// reading instead of writing, and on lib.rs's load_struct_inplace family
// for which fields to pull out of an opaque byte range.
type View struct {
	data []byte
}

func NewView(data []byte) *View { return &View{data: data} }

func (v *View) Bytes() []byte { return v.data }

func (v *View) u16(off uint64) uint16 { return binary.LittleEndian.Uint16(v.data[off:]) }
func (v *View) u32(off uint64) uint32 { return binary.LittleEndian.Uint32(v.data[off:]) }
func (v *View) u64(off uint64) uint64 { return binary.LittleEndian.Uint64(v.data[off:]) }

// Header reads the ELF64 file header, requiring little-endian x86-64
// (spec.md §4.6 step 2).
func (v *View) Header() ELFHeader {
	if len(v.data) < elfHeaderSize {
		Fatal("View.Header", "file too small to be an ELF64 header")
	}
	if v.data[0] != 0x7f || v.data[1] != 'E' || v.data[2] != 'L' || v.data[3] != 'F' {
		Fatal("View.Header", "missing ELF magic")
	}
	if v.data[4] != 2 {
		Fatal("View.Header", "only ELF64 (EI_CLASS=2) is supported")
	}
	if v.data[5] != 1 {
		Fatal("View.Header", "only little-endian (EI_DATA=1) is supported")
	}
	h := ELFHeader{
		Type:      v.u16(16),
		Machine:   v.u16(18),
		Entry:     v.u64(24),
		PhOff:     v.u64(32),
		ShOff:     v.u64(40),
		PhEntSize: v.u16(54),
		PhNum:     v.u16(56),
		ShEntSize: v.u16(58),
		ShNum:     v.u16(60),
		ShStrNdx:  v.u16(62),
	}
	if h.Machine != emX8664 {
		Fatal("View.Header", "only x86-64 (e_machine=0x3e) hosts are supported, got 0x%x", h.Machine)
	}
	return h
}

func (v *View) ProgramHeader(hdr ELFHeader, i int) ProgramHeader {
	off := hdr.PhOff + uint64(i)*uint64(hdr.PhEntSize)
	return ProgramHeader{
		Type:   v.u32(off),
		Flags:  v.u32(off + 4),
		Offset: v.u64(off + 8),
		VAddr:  v.u64(off + 16),
		PAddr:  v.u64(off + 24),
		FileSz: v.u64(off + 32),
		MemSz:  v.u64(off + 40),
		Align:  v.u64(off + 48),
	}
}

func (v *View) SectionHeader(hdr ELFHeader, i int) SectionHeader {
	off := hdr.ShOff + uint64(i)*uint64(hdr.ShEntSize)
	return SectionHeader{
		Name:      v.u32(off),
		Type:      v.u32(off + 4),
		Flags:     v.u64(off + 8),
		Addr:      v.u64(off + 16),
		Offset:    v.u64(off + 24),
		Size:      v.u64(off + 32),
		Link:      v.u32(off + 40),
		Info:      v.u32(off + 44),
		AddrAlign: v.u64(off + 48),
		EntSize:   v.u64(off + 56),
	}
}

// SectionName resolves a section's name via the section-header string
// table (indexed by ShStrNdx).
func (v *View) SectionName(hdr ELFHeader, sh SectionHeader) string {
	strtab := v.SectionHeader(hdr, int(hdr.ShStrNdx))
	return v.cstr(strtab.Offset + uint64(sh.Name))
}

func (v *View) cstr(off uint64) string {
	end := off
	for end < uint64(len(v.data)) && v.data[end] != 0 {
		end++
	}
	return string(v.data[off:end])
}

// Sections returns every section header alongside its resolved name.
func (v *View) Sections(hdr ELFHeader) []struct {
	SH   SectionHeader
	Name string
} {
	out := make([]struct {
		SH   SectionHeader
		Name string
	}, hdr.ShNum)
	for i := 0; i < int(hdr.ShNum); i++ {
		sh := v.SectionHeader(hdr, i)
		out[i].SH = sh
		out[i].Name = v.SectionName(hdr, sh)
	}
	return out
}

func (v *View) DynEntry(off uint64, i int) DynEntry {
	base := off + uint64(i)*dynEntrySize
	return DynEntry{Tag: int64(v.u64(base)), Value: v.u64(base + 8)}
}

func (v *View) Symbol(off uint64, i int) Symbol {
	base := off + uint64(i)*symEntrySize
	return Symbol{
		Name:  v.u32(base),
		Info:  v.data[base+4],
		Other: v.data[base+5],
		Shndx: v.u16(base + 6),
		Value: v.u64(base + 8),
		Size:  v.u64(base + 16),
	}
}

func (v *View) Rela(off uint64, i int) Rela {
	base := off + uint64(i)*relaEntrySize
	return Rela{Offset: v.u64(base), Info: v.u64(base + 8), Addend: int64(v.u64(base + 16))}
}
