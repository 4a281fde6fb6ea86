package linker

import (
	"debug/elf"
	"encoding/binary"
	"os"
	"strings"

	"github.com/edsrzf/mmap-go"
)

// Surgery implements spec.md §4.7 steps 1-12: it loads the persisted
// Metadata, copies the application object's data and text sections into a
// freshly-appended PT_LOAD segment of the preprocessed host, resolves the
// app's relocations, writes the final jump offsets at every recorded
// surgery site, patches PLT stubs to direct jumps, and updates
// dynamic-symbol entries. Grounded end to end on lib.rs's `surgery`
// function (lines 892-1379).
func Surgery(metadataPath, appPath, outPath string) error {
	mf, err := os.Open(metadataPath)
	if err != nil {
		return err
	}
	md := Decode(mf)
	mf.Close()

	appFile, err := os.Open(appPath)
	if err != nil {
		return err
	}
	defer appFile.Close()
	appInfo, err := appFile.Stat()
	if err != nil {
		return err
	}
	// A plain read-only parse of an *input* object the linker never
	// mutates in place, unlike the host executable — debug/elf is the
	// right tool here for the same reason scanAppFunctions uses it for
	// the shared library (see DESIGN.md's standard-library
	// justification).
	appObj, err := elf.NewFile(appFile)
	if err != nil {
		return err
	}
	defer appObj.Close()

	outFile, err := os.OpenFile(outPath, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer outFile.Close()

	maxLen := md.ExecLen + uint64(appInfo.Size()) + 4096
	if err := outFile.Truncate(int64(maxLen)); err != nil {
		return err
	}

	outMap, err := mmap.Map(outFile, mmap.RDWR, 0)
	if err != nil {
		return err
	}
	defer outMap.Unmap()

	view := NewView(outMap)
	hdr := view.Header()

	phEnd := hdr.PhOff + uint64(hdr.PhNum)*uint64(hdr.PhEntSize)

	// Back up the section-header table; it will be re-appended past the
	// newly-spliced application code (spec.md §4.7 step 2).
	shSize := uint64(hdr.ShEntSize) * uint64(hdr.ShNum)
	shTab := make([]byte, shSize)
	copy(shTab, outMap[hdr.ShOff:hdr.ShOff+shSize])

	offset := alignedOffset(md.ExecLen)
	newSegmentOffset := offset
	newDataSectionOffset := offset
	newSegmentVAddr := computeNewSegmentVAddr(offset, md)

	log.WithFields(map[string]interface{}{"component": "linker", "op": "Surgery", "new_segment_vaddr": newSegmentVAddr}).Debug("placed new segment")

	symbols, err := appObj.Symbols()
	if err != nil {
		return err
	}

	// symbolOffsetMap keys are 1-based symbol-table indices (index 0 is
	// the reserved STN_UNDEF entry that debug/elf strips from Symbols(),
	// so index i in the slice corresponds to table index i+1 — the same
	// convention the relocation symbol index in r_info uses), values are
	// offsets relative to the new segment's start.
	symbolOffsetMap := make(map[uint32]uint64, len(symbols))

	// Copy .data/.rodata/.bss sections first (spec.md §4.7 step 4).
	for i, sec := range appObj.Sections {
		if !hasDataPrefix(sec.Name) {
			continue
		}
		offset = alignedOffset(offset)
		// .bss carries no file content (SHT_NOBITS); the truncated
		// output is already zero-filled, so only sections with actual
		// bytes get copied.
		if sec.Type != elf.SHT_NOBITS {
			data, err := sec.Data()
			if err != nil {
				return err
			}
			copy(outMap[offset:offset+uint64(len(data))], data)
		}
		for symIdx, sym := range symbols {
			if int(sym.Section) == i {
				symbolOffsetMap[uint32(symIdx+1)] = offset + sym.Value - newSegmentOffset
			}
		}
		offset += sec.Size
	}

	// Copy .text* sections, resolving relocations as each is placed
	// (spec.md §4.7 step 5-6).
	newTextSectionOffset := offset
	appFuncSet := make(map[string]bool, len(md.AppFunctions))
	for _, f := range md.AppFunctions {
		appFuncSet[f] = true
	}
	appFuncSegmentOffsetMap := make(map[string]uint64, len(md.AppFunctions))
	appFuncSizeMap := make(map[string]uint64, len(md.AppFunctions))

	haveText := false
	for i, sec := range appObj.Sections {
		if !strings.HasPrefix(sec.Name, ".text") {
			continue
		}
		haveText = true
		data, err := sec.Data()
		if err != nil {
			return err
		}
		offset = alignedOffset(offset)
		copy(outMap[offset:offset+uint64(len(data))], data)

		currentSectionOffset := offset - newSegmentOffset
		for symIdx, sym := range symbols {
			if int(sym.Section) != i {
				continue
			}
			so := offset + sym.Value - newSegmentOffset
			symbolOffsetMap[uint32(symIdx+1)] = so
			if appFuncSet[sym.Name] {
				appFuncSegmentOffsetMap[sym.Name] = so
				appFuncSizeMap[sym.Name] = sym.Size
			}
		}

		got := newGotCursor(alignedOffset(offset+sec.Size) - newSegmentOffset)
		w := NewWriter(outMap)
		if err := resolveSectionRelocations(appObj, sec, symbols, symbolOffsetMap, md, offset, currentSectionOffset, newSegmentOffset, newSegmentVAddr, got, w); err != nil {
			return err
		}
		offset = newSegmentOffset + got.base + got.offset
	}
	if !haveText {
		Fatal("Surgery", "application object has no .text sections")
	}

	log.WithFields(map[string]interface{}{"component": "linker", "op": "Surgery", "functions": len(appFuncSegmentOffsetMap)}).Debug("resolved app function offsets")

	// Re-append the backed-up section-header table plus two new entries
	// (spec.md §4.7 step 7).
	offset = alignedOffset(offset)
	newShOffset := offset
	copy(outMap[offset:offset+shSize], shTab)
	offset += shSize

	const newSectionCount = 2
	offset += uint64(newSectionCount) * uint64(hdr.ShEntSize)

	w := NewWriter(outMap)
	for i := 0; i < int(hdr.ShNum); i++ {
		sh := view.SectionHeader(hdr, i)
		if phEnd <= sh.Offset && sh.Offset < md.FirstLoadAlignedSize {
			sh.Offset += md.AddedData
		}
		if md.ShiftStart <= sh.Addr && sh.Addr < md.ShiftEnd {
			sh.Addr += md.AddedData
		}
		w.PutSectionHeader(newShOffset, hdr.ShEntSize, i, sh)
	}

	newDataSectionVAddr := newSegmentVAddr
	newDataSectionSize := newTextSectionOffset - newDataSectionOffset
	newTextSectionVAddr := newDataSectionVAddr + newDataSectionSize

	newDataIndex := int(hdr.ShNum)
	newTextIndex := int(hdr.ShNum) + 1
	w.PutSectionHeader(newShOffset, hdr.ShEntSize, newDataIndex, SectionHeader{
		Name: 0, Type: shtProgbits, Flags: shfAlloc,
		Addr: newDataSectionVAddr, Offset: newDataSectionOffset, Size: newDataSectionSize,
		AddrAlign: 16,
	})
	w.PutSectionHeader(newShOffset, hdr.ShEntSize, newTextIndex, SectionHeader{
		Name: 0, Type: shtProgbits, Flags: shfAlloc | shfExec,
		Addr: newTextSectionVAddr, Offset: newTextSectionOffset, Size: newShOffset - newTextSectionOffset,
		AddrAlign: 16,
	})

	w.SetHeaderShOffNum(newShOffset, hdr.ShNum+uint16(newSectionCount))

	// Append the new PT_LOAD into the slot preprocess reserved (spec.md
	// §4.7 step 8).
	newSegmentSize := newShOffset - newSegmentOffset
	w.PutProgramHeader(hdr, int(hdr.PhNum)-1, ProgramHeader{
		Type: ptLoad, Flags: pfR | pfW | pfX,
		Offset: newSegmentOffset, VAddr: newSegmentVAddr, PAddr: newSegmentVAddr,
		FileSz: newSegmentSize, MemSz: newSegmentSize, Align: md.LoadAlignConstraint,
	})

	dynsymOffset := md.DynamicSymbolTableSectionOffset
	if phEnd <= dynsymOffset && dynsymOffset < md.FirstLoadAlignedSize {
		dynsymOffset += md.AddedData
	}

	for _, name := range md.AppFunctions {
		segOffset, ok := appFuncSegmentOffsetMap[name]
		if !ok {
			Fatal("Surgery", "function %q was not defined by the app", name)
		}
		virt := newSegmentVAddr + segOffset

		for _, s := range md.Surgeries[name] {
			switch s.Size {
			case 4:
				target := int32(int64(virt) - int64(s.VirtualOffset))
				w.PutI32(s.FileOffset, target)
			default:
				Fatal("Surgery", "surgery size %d not supported", s.Size)
			}
		}

		if plt, ok := md.PLTAddresses[name]; ok {
			const jmpInstLen = 5
			target := int32(int64(virt) - (int64(plt.VirtualAddress) + jmpInstLen))
			outMap[plt.FileOffset] = 0xE9
			w.PutI32(plt.FileOffset+1, target)
			for i := uint64(jmpInstLen); i < pltAddressOffset; i++ {
				outMap[plt.FileOffset+i] = 0x90
			}
		}

		if idx, ok := md.DynSymIndices[name]; ok {
			size, ok := appFuncSizeMap[name]
			if !ok {
				Fatal("Surgery", "size missing for %q", name)
			}
			w.PutSymbolShndxValueSize(dynsymOffset, int(idx), uint16(newTextIndex), virt, size)
		}
	}

	if err := outMap.Flush(); err != nil {
		return err
	}
	return outFile.Truncate(int64(offset + 1))
}

func hasDataPrefix(name string) bool {
	return strings.HasPrefix(name, ".data") || strings.HasPrefix(name, ".rodata") || strings.HasPrefix(name, ".bss")
}

// alignedOffset rounds offset up to MIN_FUNC_ALIGNMENT (0x10), mirroring
// lib.rs's aligned_offset helper used throughout surgery for every new
// section placement.
func alignedOffset(offset uint64) uint64 {
	return alignUp64(offset, minFuncAlignment)
}

// computeNewSegmentVAddr picks a virtual address for the new segment such
// that its residue modulo load_align_constraint matches the new segment's
// file offset residue, starting the search at last_vaddr (lib.rs lines
// 970-983).
func computeNewSegmentVAddr(newSegmentOffset uint64, md *Metadata) uint64 {
	remainder := newSegmentOffset % md.LoadAlignConstraint
	vremainder := md.LastVAddr % md.LoadAlignConstraint
	switch {
	case remainder > vremainder:
		return md.LastVAddr + (remainder - vremainder)
	case vremainder > remainder:
		return md.LastVAddr + ((remainder + md.LoadAlignConstraint) - vremainder)
	default:
		return md.LastVAddr
	}
}

// resolveSectionRelocations reads sec's RELA entries from the app object's
// ".rela"+sec.Name companion section (if present) and writes the resolved
// fixups into outMap at sectionFileOffset+r_offset, allocating GOT slots
// from got as needed (spec.md §4.7 step 6).
func resolveSectionRelocations(appObj *elf.File, sec *elf.Section, symbols []elf.Symbol, symbolOffsetMap map[uint32]uint64, md *Metadata, sectionFileOffset, currentSectionOffset, newSegmentOffset, newSegmentVAddr uint64, got *gotCursor, w *Writer) error {
	var relaSec *elf.Section
	for _, s := range appObj.Sections {
		if s.Name == ".rela"+sec.Name {
			relaSec = s
			break
		}
	}
	if relaSec == nil {
		return nil
	}
	data, err := relaSec.Data()
	if err != nil {
		return err
	}
	const relaEntSize = 24
	for i := 0; i+relaEntSize <= len(data); i += relaEntSize {
		rOffset := binary.LittleEndian.Uint64(data[i:])
		rInfo := binary.LittleEndian.Uint64(data[i+8:])
		rAddend := int64(binary.LittleEndian.Uint64(data[i+16:]))
		rType := uint32(rInfo)
		symIdx := uint32(rInfo >> 32)

		kind, ok := classifyReloc(rType)
		if !ok {
			Fatal("resolveSectionRelocations", "relocation kind %d not supported", rType)
		}

		var targetOffset int64
		if to, ok := symbolOffsetMap[symIdx]; ok {
			targetOffset = int64(to)
		} else if symIdx >= 1 && int(symIdx-1) < len(symbols) {
			name := symbols[symIdx-1].Name
			addr, ok := md.RocFuncAddresses[name]
			if !ok {
				Fatal("resolveSectionRelocations", "undefined symbol %q in relocation", name)
			}
			targetOffset = int64(addr) - int64(newSegmentVAddr)
		} else {
			Fatal("resolveSectionRelocations", "relocation references unknown symbol index %d", symIdx)
		}

		value, gotSlotOffset, gotSlotValue, usesGot := resolveRelocation(kind, targetOffset, rOffset, currentSectionOffset, rAddend, newSegmentVAddr, got)
		if usesGot {
			w.PutU64(newSegmentOffset+gotSlotOffset, gotSlotValue)
		}

		size, ok := relocFixupSize(rType)
		if !ok {
			Fatal("resolveSectionRelocations", "relocation size for kind %d not supported", rType)
		}
		site := sectionFileOffset + rOffset
		switch size {
		case 4:
			w.PutI32(site, int32(value))
		case 8:
			w.PutI64(site, value)
		}
	}
	return nil
}
