package linker

// addressValuedDynTags enumerates the DT_* tags whose value is a virtual
// address that must shift by addedData when the padding-fallback space-
// making strategy is used. Reproduced verbatim from lib.rs's dynamic-table
// rewrite step (lines 765-804) rather than re-derived, per SPEC_FULL.md.
var addressValuedDynTags = map[int64]bool{
	12: true, // DT_INIT
	13: true, // DT_FINI
	3:  true, // DT_PLTGOT
	4:  true, // DT_HASH
	5:  true, // DT_STRTAB
	6:  true, // DT_SYMTAB
	7:  true, // DT_RELA
	17: true, // DT_REL
	21: true, // DT_DEBUG
	23: true, // DT_JMPREL
	25: true, // DT_INIT_ARRAY
	26: true, // DT_FINI_ARRAY
	32: true, // DT_PREINIT_ARRAY
	// GNU/vendor extensions used by glibc-linked binaries in the pack's
	// original DT_* rewrite list.
	0x6ffffef5: true, // DT_GNU_HASH
	0x6ffffef6: true, // DT_TLSDESC_PLT
	0x6ffffef7: true, // DT_TLSDESC_GOT
	0x6ffffef8: true, // DT_GNU_CONFLICT
	0x6ffffef9: true, // DT_GNU_LIBLIST
	0x6ffffefa: true, // DT_CONFIG
	0x6ffffefb: true, // DT_DEPAUDIT
	0x6ffffefc: true, // DT_AUDIT
	0x6ffffefd: true, // DT_PLTPAD
	0x6ffffefe: true, // DT_MOVETAB
	0x6ffffeff: true, // DT_SYMINFO
	0x6ffffff0: true, // DT_VERSYM
	0x6ffffffc: true, // DT_VERDEF
	0x6ffffffe: true, // DT_VERNEED
	34:         true, // DT_SYMTAB_SHNDX
}

const (
	minFuncAlignment = 0x10
	pltAddressOffset = 0x10 // size of one PLT entry. lib.rs: "TODO: Analyze if this offset is always correct".
)
