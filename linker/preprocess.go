package linker

import (
	"debug/elf"
	"os"
	"strings"

	"github.com/edsrzf/mmap-go"
)

// hostIntrinsicAliases generalizes lib.rs's memcpy/memset special-casing
// (lines 161-167): certain host-provided intrinsics are published under a
// bare alias name in addition to their on-disk symbol name, so call sites
// that reference the bare name still resolve. Supplemented from
// original_source per SPEC_FULL.md rather than hardcoding the two names.
var hostIntrinsicAliases = map[string]string{
	"roc_memcpy": "memcpy",
	"roc_memset": "memset",
}

// Preprocess implements spec.md §4.6 steps 1-11: it discovers the app's
// exported functions from the dummy shared library, scans the host
// executable for their PLT entries and call sites, decides a space-making
// strategy, and writes both the modified host and the persisted Metadata.
func Preprocess(hostPath, sharedLibPath, metadataPath, outPath string) error {
	appFunctions, err := scanAppFunctions(sharedLibPath)
	if err != nil {
		return err
	}
	log.WithFields(map[string]interface{}{"component": "linker", "op": "Preprocess", "count": len(appFunctions)}).Info("discovered app functions")

	hostFile, err := os.Open(hostPath)
	if err != nil {
		return err
	}
	defer hostFile.Close()
	hostMap, err := mmap.Map(hostFile, mmap.RDONLY, 0)
	if err != nil {
		return err
	}
	defer hostMap.Unmap()

	view := NewView(hostMap)
	hdr := view.Header()
	if hdr.Type != etExec && hdr.Type != etDyn {
		Fatal("Preprocess", "host must be an executable or PIE, got e_type=%d", hdr.Type)
	}

	md := NewMetadata()
	md.ExecLen = uint64(len(hostMap))
	md.LoadAlignConstraint = 0x1000

	harvestHostSymbols(view, hdr, md)

	plt := discoverPLT(view, hdr, md, appFunctions)
	scanBranches(view, hdr, plt, md)

	scanDynamicTable(view, hdr, sharedLibPath, md)

	plan := NewPlanner(view, hdr).Decide()
	md.AddedData = plan.AddedData
	md.ShiftStart = plan.ShiftStart
	md.ShiftEnd = plan.ShiftEnd
	md.FirstLoadAlignedSize = plan.FirstLoadAlignedSize

	// The preprocessed host keeps the input's exact length: the padding
	// fallback borrows room for the extra program-header entry from the
	// first load segment's existing alignment padding rather than
	// growing the file (lib.rs sets out_file's length to exec_len, not
	// exec_len+added_data); only surgery appends new bytes at the end.
	out := make([]byte, len(hostMap))
	writePreprocessedHost(view, hdr, plan, md, out)

	if err := os.WriteFile(outPath, out, 0o755); err != nil {
		return err
	}

	md.AppFunctions = appFunctions
	computeLastVAddr(NewView(out), md)

	mf, err := os.Create(metadataPath)
	if err != nil {
		return err
	}
	defer mf.Close()
	return md.Encode(mf)
}

// scanAppFunctions parses the dummy shared library with debug/elf (a
// read-only parse of an *input* the linker never mutates, unlike the host
// executable, so the stdlib's higher-level parser is appropriate here —
// see DESIGN.md's standard-library justification) and keeps exported
// dynamic symbols whose name starts with "roc_".
func scanAppFunctions(path string) ([]string, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	syms, err := f.DynamicSymbols()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, s := range syms {
		if strings.HasPrefix(s.Name, "roc_") && s.Section != elf.SHN_UNDEF {
			out = append(out, s.Name)
		}
	}
	return out, nil
}

// harvestHostSymbols records the address of every defined host symbol
// whose name starts with "roc_" (spec.md §4.6 step 3), additionally
// publishing the hostIntrinsicAliases bare names.
func harvestHostSymbols(v *View, hdr ELFHeader, md *Metadata) {
	symtabOff, symtabSize, strtabOff := findSymtab(v, hdr, ".symtab", ".strtab")
	if symtabOff == 0 {
		return
	}
	md.SymbolTableSectionOffset = symtabOff
	md.SymbolTableSize = symtabSize
	count := int(symtabSize / symEntrySize)
	for i := 0; i < count; i++ {
		sym := v.Symbol(symtabOff, i)
		if sym.Shndx == 0 {
			continue
		}
		name := v.cstr(strtabOff + uint64(sym.Name))
		if strings.HasPrefix(name, "roc_") {
			md.RocFuncAddresses[name] = sym.Value
			if alias, ok := hostIntrinsicAliases[name]; ok {
				md.RocFuncAddresses[alias] = sym.Value
			}
		}
	}
}

func findSymtab(v *View, hdr ELFHeader, symName, strName string) (symOff, symSize, strOff uint64) {
	sections := v.Sections(hdr)
	var strSectionName string
	for _, s := range sections {
		if s.Name == symName {
			symOff, symSize = s.SH.Offset, s.SH.Size
			strSectionName = strName
		}
	}
	for _, s := range sections {
		if s.Name == strSectionName {
			strOff = s.SH.Offset
		}
	}
	return
}

// discoverPLT locates .plt and its R_X86_64_JUMP_SLOT relocations (spec.md
// §4.6 step 4), recording the PLT address/offset and dynamic-symbol index
// of every relocation targeting an app function.
func discoverPLT(v *View, hdr ELFHeader, md *Metadata, appFunctions []string) map[string]bool {
	appSet := make(map[string]bool, len(appFunctions))
	for _, f := range appFunctions {
		appSet[f] = true
	}

	sections := v.Sections(hdr)
	var pltSection, relaPltSection, dynsymSection, dynstrSection SectionHeader
	var haveRelaPlt bool
	for _, s := range sections {
		switch s.Name {
		case ".plt":
			pltSection = s.SH
		case ".rela.plt":
			relaPltSection = s.SH
			haveRelaPlt = true
		case ".dynsym":
			dynsymSection = s.SH
			md.DynamicSymbolTableSectionOffset = s.SH.Offset
		case ".dynstr":
			dynstrSection = s.SH
		}
	}
	if pltSection.Flags&0x8000 != 0 { // SHF_COMPRESSED
		Fatal("discoverPLT", ".plt is compressed, which is unsupported")
	}
	if !haveRelaPlt {
		return appSet
	}

	n := int(relaPltSection.Size / relaEntrySize)
	for i := 0; i < n; i++ {
		rel := v.Rela(relaPltSection.Offset, i)
		if rel.Kind() != rX8664JumpSlot {
			continue
		}
		symIdx := rel.Sym()
		sym := v.Symbol(dynsymSection.Offset, int(symIdx))
		name := v.cstr(dynstrSection.Offset + uint64(sym.Name))
		if !appSet[name] {
			continue
		}
		pltVAddr := pltSection.Addr + uint64(i+1)*pltAddressOffset
		pltOffset := pltSection.Offset + uint64(i+1)*pltAddressOffset
		md.PLTAddresses[name] = PLTAddress{FileOffset: pltOffset, VirtualAddress: pltVAddr}
		md.Surgeries[name] = nil
		md.DynSymIndices[name] = symIdx
	}
	return appSet
}

// scanBranches walks every .text* section for branches targeting a
// recorded PLT address (spec.md §4.6 step 5).
func scanBranches(v *View, hdr ELFHeader, _ map[string]bool, md *Metadata) {
	pltTargetName := make(map[uint64]string, len(md.PLTAddresses))
	for name, addr := range md.PLTAddresses {
		pltTargetName[addr.VirtualAddress] = name
	}

	for _, s := range v.Sections(hdr) {
		if !strings.HasPrefix(s.Name, ".text") {
			continue
		}
		data := v.Bytes()[s.SH.Offset : s.SH.Offset+s.SH.Size]
		var pos uint64
		for pos < uint64(len(data)) {
			b := classifyInstruction(data[pos:])
			if b.kind == branchFar {
				Fatal("scanBranches", "far branch encountered in %s, which is unsupported", s.Name)
			}
			if b.indirect {
				Warn("scanBranches", "indirect branch in %s at file offset 0x%x ignored", s.Name, s.SH.Offset+pos)
			}
			if b.kind == branchNear8 || b.kind == branchNear16 || b.kind == branchNear32 {
				nextIP := s.SH.Addr + pos + uint64(b.instLen)
				target := uint64(int64(nextIP) + b.relValue)
				if name, ok := pltTargetName[target]; ok {
					site := SurgerySite{
						FileOffset:    s.SH.Offset + pos + uint64(b.instLen) - uint64(b.opSize),
						VirtualOffset: nextIP,
						Size:          b.opSize,
					}
					md.Surgeries[name] = append(md.Surgeries[name], site)
				}
			}
			pos += uint64(b.instLen)
		}
	}
}

// scanDynamicTable walks .dynamic to find the DT_NEEDED entry for the
// dummy shared library (spec.md §4.6 step 6).
func scanDynamicTable(v *View, hdr ELFHeader, sharedLibPath string, md *Metadata) {
	var dynSection, dynstrSection SectionHeader
	for _, s := range v.Sections(hdr) {
		switch s.Name {
		case ".dynamic":
			dynSection = s.SH
		case ".dynstr":
			dynstrSection = s.SH
		}
	}
	md.DynamicSectionOffset = dynSection.Offset
	n := int(dynSection.Size / dynEntrySize)
	md.DynamicLibCount = 0

	libBase := libBasename(sharedLibPath)
	found := false
	for i := 0; i < n; i++ {
		e := v.DynEntry(dynSection.Offset, i)
		if e.Tag != dtNeeded {
			continue
		}
		md.DynamicLibCount++
		name := v.cstr(dynstrSection.Offset + e.Value)
		if name == libBase {
			md.SharedLibIndex = uint64(i)
			found = true
		}
	}
	if !found {
		Fatal("scanDynamicTable", "DT_NEEDED entry for %q not found", libBase)
	}
}

func libBasename(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}

// writePreprocessedHost copies the host image into out, applying the
// planner's chosen space-making strategy (PT_NOTE repurpose, no copy
// shift needed beyond overwriting one program header; or padding
// fallback, shifting the first-load window by addedData), per spec.md
// §4.6 step 8's final bullet.
func writePreprocessedHost(v *View, hdr ELFHeader, plan Plan, md *Metadata, out []byte) {
	src := v.Bytes()
	if plan.AddedData == 0 {
		copy(out, src)
		w := NewWriter(out)
		// Delete the PT_NOTE entry by shifting every subsequent entry
		// down one slot, leaving a null entry at the end of the table
		// for surgery to claim as the new PT_LOAD (lib.rs's ptr::copy
		// shift over the program-header table, spec.md §4.6 step 8).
		for i := plan.NoteIndex; i < int(hdr.PhNum)-1; i++ {
			next := v.ProgramHeader(hdr, i+1)
			w.PutProgramHeader(hdr, i, next)
		}
		w.PutProgramHeader(hdr, int(hdr.PhNum)-1, ProgramHeader{})
		// The shift window is empty on this path, so this only excises the
		// dummy library's DT_NEEDED entry (step 10).
		patchShiftedAddresses(NewView(out), hdr, 0, md)
		return
	}

	phEnd := hdr.PhOff + uint64(hdr.PhNum)*uint64(hdr.PhEntSize)

	// The padding fallback never grows the file: it borrows exactly
	// AddedData bytes of existing alignment padding at the tail of the
	// first load segment to make room for the new program-header entry,
	// shifting only the bytes between the phdr table and that padding
	// (lib.rs lines 650-747).
	boundary := plan.FirstLoadAlignedSize - plan.AddedData
	copy(out[:phEnd], src[:phEnd])
	copy(out[phEnd+plan.AddedData:plan.FirstLoadAlignedSize], src[phEnd:boundary])
	copy(out[plan.FirstLoadAlignedSize:], src[plan.FirstLoadAlignedSize:])

	w := NewWriter(out)
	w.SetHeaderPhNum(hdr.PhNum + 1)

	for i := 0; i < int(hdr.PhNum); i++ {
		ph := v.ProgramHeader(hdr, i)
		switch {
		case i == plan.FirstLoadIndex:
			ph.FileSz += plan.AddedData
			ph.MemSz += plan.AddedData
		case ph.Type == ptPhdr:
			ph.FileSz += plan.AddedData
			ph.MemSz += plan.AddedData
		case ph.VAddr >= plan.ShiftStart && ph.VAddr < plan.ShiftEnd:
			if ph.Offset%ph.Align != (ph.Offset+plan.AddedData)%ph.Align || ph.VAddr%ph.Align != (ph.VAddr+plan.AddedData)%ph.Align {
				Fatal("writePreprocessedHost", "program header %d alignment not preserved by the shift", i)
			}
			ph.Offset += plan.AddedData
			ph.VAddr += plan.AddedData
			ph.PAddr += plan.AddedData
		}
		w.PutProgramHeader(hdr, i, ph)
	}

	// No section may overlap the padding sliver being excised at the
	// tail of the first load segment (lib.rs lines 721-734).
	for _, s := range v.Sections(hdr) {
		if s.SH.Offset <= boundary && s.SH.Offset+s.SH.Size >= boundary {
			Fatal("writePreprocessedHost", "section %q overlaps the alignment padding being reclaimed", s.Name)
		}
	}

	patchShiftedAddresses(NewView(out), hdr, plan.AddedData, md)
}

// patchShiftedAddresses applies spec.md §4.6 step 9: every shift-sensitive
// DT_* entry and every symbol-table st_value that lies in the shift window
// is incremented by addedData; step 10 then excises the dummy library's
// DT_NEEDED slot.
func patchShiftedAddresses(v *View, hdr ELFHeader, added uint64, md *Metadata) {
	w := NewWriter(v.Bytes())

	var dynSection SectionHeader
	for _, s := range v.Sections(hdr) {
		if s.Name == ".dynamic" {
			dynSection = s.SH
		}
	}
	n := int(dynSection.Size / dynEntrySize)
	for i := 0; i < n; i++ {
		e := v.DynEntry(dynSection.Offset, i)
		if addressValuedDynTags[e.Tag] && md.InShiftWindow(e.Value) {
			e.Value += added
			w.PutDynEntry(dynSection.Offset, i, e)
		}
	}

	if md.SymbolTableSectionOffset != 0 {
		count := int(md.SymbolTableSize / symEntrySize)
		for i := 0; i < count; i++ {
			sym := v.Symbol(md.SymbolTableSectionOffset, i)
			if md.InShiftWindow(sym.Value) {
				w.PutSymbolValue(md.SymbolTableSectionOffset, i, sym.Value+added)
			}
		}
	}

	excludeSharedLib(v, hdr, w, dynSection, int(md.SharedLibIndex))
}

// excludeSharedLib shifts the dynamic table left by one 16-byte slot
// starting at index+1, removing the dummy library's DT_NEEDED entry
// (spec.md §4.6 step 10).
func excludeSharedLib(v *View, hdr ELFHeader, w *Writer, dynSection SectionHeader, index int) {
	n := int(dynSection.Size / dynEntrySize)
	for i := index; i < n-1; i++ {
		e := v.DynEntry(dynSection.Offset, i+1)
		w.PutDynEntry(dynSection.Offset, i, e)
	}
}

// computeLastVAddr records spec.md §4.6 step 11's last_vaddr: the highest
// section-or-segment end address, plus the load alignment constraint, so
// surgery knows where it may safely append new bytes.
func computeLastVAddr(v *View, md *Metadata) {
	hdr := v.Header()
	var last uint64
	for _, s := range v.Sections(hdr) {
		if end := s.SH.Addr + s.SH.Size; end > last {
			last = end
		}
	}
	for i := 0; i < int(hdr.PhNum); i++ {
		ph := v.ProgramHeader(hdr, i)
		if ph.Type == ptGnuStack {
			continue
		}
		if end := ph.VAddr + ph.MemSz; end > last {
			last = end
		}
	}
	md.LastVAddr = last + md.LoadAlignConstraint
}
