package linker

import (
	"bufio"
	"encoding/binary"
	"io"
	"sort"
)

// SurgerySite is a single branch displacement that must be overwritten in
// surgery to target the freshly-linked application code (spec.md §3).
type SurgerySite struct {
	FileOffset    uint64
	VirtualOffset uint64
	Size          uint8
}

// PLTAddress records a PLT entry's file offset and virtual address.
type PLTAddress struct {
	FileOffset    uint64
	VirtualAddress uint64
}

// Metadata is the full surgery plan persisted between preprocess and
// surgery (spec.md §3 Core B). Field names and shapes mirror lib.rs's
// metadata::Metadata exactly; see metadata.go's Encode/Decode for the
// little-endian wire format, grounded on the same encoding/binary
// discipline the teacher's ELF writer uses (emit.go), per spec.md §6's
// explicit ban on a textual/schema-versioned format.
type Metadata struct {
	RocFuncAddresses map[string]uint64
	AppFunctions     []string
	Surgeries        map[string][]SurgerySite
	PLTAddresses     map[string]PLTAddress
	DynSymIndices    map[string]uint64

	DynamicSectionOffset        uint64
	SymbolTableSectionOffset    uint64
	SymbolTableSize             uint64
	DynamicSymbolTableSectionOffset uint64

	SharedLibIndex  uint64
	DynamicLibCount uint64

	ExecLen               uint64
	LoadAlignConstraint   uint64
	AddedData             uint64
	ShiftStart            uint64
	ShiftEnd              uint64
	FirstLoadAlignedSize  uint64
	LastVAddr             uint64
}

func NewMetadata() *Metadata {
	return &Metadata{
		RocFuncAddresses: make(map[string]uint64),
		Surgeries:        make(map[string][]SurgerySite),
		PLTAddresses:     make(map[string]PLTAddress),
		DynSymIndices:    make(map[string]uint64),
	}
}

// InShiftWindow reports whether v lies in [ShiftStart, ShiftEnd).
func (m *Metadata) InShiftWindow(v uint64) bool {
	return v >= m.ShiftStart && v < m.ShiftEnd
}

func writeString(w io.Writer, s string) {
	binary.Write(w, binary.LittleEndian, uint64(len(s)))
	io.WriteString(w, s)
}

func readString(r io.Reader) string {
	var n uint64
	binary.Read(r, binary.LittleEndian, &n)
	buf := make([]byte, n)
	io.ReadFull(r, buf)
	return string(buf)
}

func writeU64(w io.Writer, v uint64) { binary.Write(w, binary.LittleEndian, v) }
func readU64(r io.Reader) uint64 {
	var v uint64
	binary.Read(r, binary.LittleEndian, &v)
	return v
}

// Encode serialises m as a flat little-endian binary record: every map is
// written as a length-prefixed list of entries in key-sorted order, so
// Encode is deterministic for otherwise-identical metadata
// (TestMetadataEncodeIsKeySorted compares the bytes of two encodings built
// in different map insertion orders).
func (m *Metadata) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)

	keys := sortedKeys(m.RocFuncAddresses)
	writeU64(bw, uint64(len(keys)))
	for _, k := range keys {
		writeString(bw, k)
		writeU64(bw, m.RocFuncAddresses[k])
	}

	writeU64(bw, uint64(len(m.AppFunctions)))
	for _, f := range m.AppFunctions {
		writeString(bw, f)
	}

	sKeys := sortedKeys(m.Surgeries)
	writeU64(bw, uint64(len(sKeys)))
	for _, k := range sKeys {
		writeString(bw, k)
		sites := m.Surgeries[k]
		writeU64(bw, uint64(len(sites)))
		for _, s := range sites {
			writeU64(bw, s.FileOffset)
			writeU64(bw, s.VirtualOffset)
			bw.WriteByte(s.Size)
		}
	}

	pKeys := sortedKeys(m.PLTAddresses)
	writeU64(bw, uint64(len(pKeys)))
	for _, k := range pKeys {
		writeString(bw, k)
		writeU64(bw, m.PLTAddresses[k].FileOffset)
		writeU64(bw, m.PLTAddresses[k].VirtualAddress)
	}

	dKeys := sortedKeys(m.DynSymIndices)
	writeU64(bw, uint64(len(dKeys)))
	for _, k := range dKeys {
		writeString(bw, k)
		writeU64(bw, m.DynSymIndices[k])
	}

	for _, v := range []uint64{
		m.DynamicSectionOffset, m.SymbolTableSectionOffset, m.SymbolTableSize,
		m.DynamicSymbolTableSectionOffset, m.SharedLibIndex, m.DynamicLibCount,
		m.ExecLen, m.LoadAlignConstraint, m.AddedData, m.ShiftStart, m.ShiftEnd,
		m.FirstLoadAlignedSize, m.LastVAddr,
	} {
		writeU64(bw, v)
	}

	return bw.Flush()
}

// Decode reverses Encode.
func Decode(r io.Reader) *Metadata {
	m := NewMetadata()

	n := readU64(r)
	for i := uint64(0); i < n; i++ {
		k := readString(r)
		m.RocFuncAddresses[k] = readU64(r)
	}

	nf := readU64(r)
	for i := uint64(0); i < nf; i++ {
		m.AppFunctions = append(m.AppFunctions, readString(r))
	}

	ns := readU64(r)
	for i := uint64(0); i < ns; i++ {
		k := readString(r)
		count := readU64(r)
		sites := make([]SurgerySite, count)
		for j := uint64(0); j < count; j++ {
			sites[j].FileOffset = readU64(r)
			sites[j].VirtualOffset = readU64(r)
			b := make([]byte, 1)
			io.ReadFull(r, b)
			sites[j].Size = b[0]
		}
		m.Surgeries[k] = sites
	}

	np := readU64(r)
	for i := uint64(0); i < np; i++ {
		k := readString(r)
		m.PLTAddresses[k] = PLTAddress{FileOffset: readU64(r), VirtualAddress: readU64(r)}
	}

	nd := readU64(r)
	for i := uint64(0); i < nd; i++ {
		k := readString(r)
		m.DynSymIndices[k] = readU64(r)
	}

	m.DynamicSectionOffset = readU64(r)
	m.SymbolTableSectionOffset = readU64(r)
	m.SymbolTableSize = readU64(r)
	m.DynamicSymbolTableSectionOffset = readU64(r)
	m.SharedLibIndex = readU64(r)
	m.DynamicLibCount = readU64(r)
	m.ExecLen = readU64(r)
	m.LoadAlignConstraint = readU64(r)
	m.AddedData = readU64(r)
	m.ShiftStart = readU64(r)
	m.ShiftEnd = readU64(r)
	m.FirstLoadAlignedSize = readU64(r)
	m.LastVAddr = readU64(r)

	return m
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
