package linker

import "encoding/binary"

// Writer mutates ELF64 structures in place over a writable byte slice
// (typically backed by an mmap). Grounded on the teacher's ELFWriter/
// BufferWrapper little-endian Write2/Write4/Write8u family (emit.go),
// adapted from append-only buffer writes to in-place slice writes, the way
// lib.rs's load_struct_inplace_mut overlays a mutable struct view onto a
// byte range instead of appending.
type Writer struct {
	data []byte
}

func NewWriter(data []byte) *Writer { return &Writer{data: data} }

func (w *Writer) Bytes() []byte { return w.data }

func (w *Writer) PutU16(off uint64, v uint16) { binary.LittleEndian.PutUint16(w.data[off:], v) }
func (w *Writer) PutU32(off uint64, v uint32) { binary.LittleEndian.PutUint32(w.data[off:], v) }
func (w *Writer) PutU64(off uint64, v uint64) { binary.LittleEndian.PutUint64(w.data[off:], v) }
func (w *Writer) PutI32(off uint64, v int32)  { binary.LittleEndian.PutUint32(w.data[off:], uint32(v)) }
func (w *Writer) PutI64(off uint64, v int64)  { binary.LittleEndian.PutUint64(w.data[off:], uint64(v)) }

func (w *Writer) PutBytes(off uint64, b []byte) { copy(w.data[off:], b) }

// PutProgramHeader writes ph into the i-th program-header slot of hdr.
func (w *Writer) PutProgramHeader(hdr ELFHeader, i int, ph ProgramHeader) {
	off := hdr.PhOff + uint64(i)*uint64(hdr.PhEntSize)
	w.PutU32(off, ph.Type)
	w.PutU32(off+4, ph.Flags)
	w.PutU64(off+8, ph.Offset)
	w.PutU64(off+16, ph.VAddr)
	w.PutU64(off+24, ph.PAddr)
	w.PutU64(off+32, ph.FileSz)
	w.PutU64(off+40, ph.MemSz)
	w.PutU64(off+48, ph.Align)
}

// PutSectionHeader writes sh into the i-th section-header slot, given the
// table's base offset (which may differ from hdr.ShOff once the table has
// been relocated, e.g. during surgery's SH-table append).
func (w *Writer) PutSectionHeader(base uint64, entSize uint16, i int, sh SectionHeader) {
	off := base + uint64(i)*uint64(entSize)
	w.PutU32(off, sh.Name)
	w.PutU32(off+4, sh.Type)
	w.PutU64(off+8, sh.Flags)
	w.PutU64(off+16, sh.Addr)
	w.PutU64(off+24, sh.Offset)
	w.PutU64(off+32, sh.Size)
	w.PutU32(off+40, sh.Link)
	w.PutU32(off+44, sh.Info)
	w.PutU64(off+48, sh.AddrAlign)
	w.PutU64(off+56, sh.EntSize)
}

func (w *Writer) PutDynEntry(base uint64, i int, e DynEntry) {
	off := base + uint64(i)*dynEntrySize
	w.PutU64(off, uint64(e.Tag))
	w.PutU64(off+8, e.Value)
}

func (w *Writer) PutSymbolValue(base uint64, i int, value uint64) {
	off := base + uint64(i)*symEntrySize + 8
	w.PutU64(off, value)
}

func (w *Writer) PutSymbolShndxValueSize(base uint64, i int, shndx uint16, value, size uint64) {
	off := base + uint64(i)*symEntrySize
	w.PutU16(off+6, shndx)
	w.PutU64(off+8, value)
	w.PutU64(off+16, size)
}

// SetHeaderShOffNum updates e_shoff/e_shnum in the file header.
func (w *Writer) SetHeaderShOffNum(shoff uint64, shnum uint16) {
	w.PutU64(40, shoff) // e_shoff
	w.PutU16(60, shnum) // e_shnum
}

// SetHeaderPhNum updates e_phnum in the file header, used by the
// padding-fallback space-making strategy to register the extra
// program-header slot it steals from alignment padding (spec.md §4.6
// step 8; lib.rs's `file_header.e_phnum = ph_num + 1`).
func (w *Writer) SetHeaderPhNum(phnum uint16) {
	w.PutU16(56, phnum) // e_phnum
}
