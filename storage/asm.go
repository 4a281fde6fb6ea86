package storage

// Assembler is the code-emission collaborator (spec.md §6): the storage
// manager calls these as opaque operations against an append-only buffer it
// never inspects. Method names are generalized from the teacher's
// X86_64CodeGen (x86_64_codegen.go — MovRegToMem/MovMemToReg/MovRegToReg)
// into the base-pointer-relative, width-explicit operations spec.md §4.2
// names directly.
type Assembler interface {
	// MovReg64Base32 emits `mov reg64, [rbp+disp]`.
	MovReg64Base32(buf *[]byte, dst GeneralReg, baseOffset int32)
	// MovBase32Reg64 emits `mov [rbp+disp], reg64`.
	MovBase32Reg64(buf *[]byte, baseOffset int32, src GeneralReg)
	// MovFreg64Base32 emits `movsd freg64, [rbp+disp]`.
	MovFreg64Base32(buf *[]byte, dst FloatReg, baseOffset int32)
	// MovBase32Freg64 emits `movsd [rbp+disp], freg64`.
	MovBase32Freg64(buf *[]byte, baseOffset int32, src FloatReg)
	// MovsxReg64Base32 emits a sign-extending load of size bytes from
	// [rbp+disp] into a 64-bit general register.
	MovsxReg64Base32(buf *[]byte, dst GeneralReg, baseOffset int32, size uint8)
	// MovzxReg64Base32 emits a zero-extending load of size bytes from
	// [rbp+disp] into a 64-bit general register.
	MovzxReg64Base32(buf *[]byte, dst GeneralReg, baseOffset int32, size uint8)
	// MovReg64Reg64 emits `mov dst, src` between general registers.
	MovReg64Reg64(buf *[]byte, dst, src GeneralReg)
	// MovFreg64Freg64 emits `movsd dst, src` between float registers.
	MovFreg64Freg64(buf *[]byte, dst, src FloatReg)
}
