package storage

// CallConv is the ABI collaborator (spec.md §6): it supplies the default
// free-register lists and the caller/callee-saved predicates the storage
// manager needs but never derives itself. Generalized from the teacher's
// calling_convention.go CallingConvention interface, narrowed to exactly the
// predicates the storage manager consumes (the teacher's argument/return
// register and shadow-space methods belong to the call-site emitter, an
// external collaborator here, not to storage itself).
type CallConv interface {
	// GeneralDefaultFreeRegs returns the general-purpose registers available
	// to the storage manager on reset, in the order they should be pushed
	// onto the free list (the last entry is popped first).
	GeneralDefaultFreeRegs() []GeneralReg
	// FloatDefaultFreeRegs is the floating-point analogue.
	FloatDefaultFreeRegs() []FloatReg

	GeneralCalleeSaved(r GeneralReg) bool
	FloatCalleeSaved(r FloatReg) bool
	GeneralCallerSaved(r GeneralReg) bool
	FloatCallerSaved(r FloatReg) bool
}

// SystemVAMD64 is the System V AMD64 ABI used on Linux/macOS x86-64,
// generalized from the teacher's SystemVAMD64 (calling_convention.go).
type SystemVAMD64 struct{}

var (
	sysvGeneralFree = []GeneralReg{"rax", "rcx", "rdx", "rsi", "rdi", "r8", "r9", "r10", "r11", "rbx", "r12", "r13", "r14"}
	sysvFloatFree   = []FloatReg{"xmm0", "xmm1", "xmm2", "xmm3", "xmm4", "xmm5", "xmm6", "xmm7", "xmm8", "xmm9", "xmm10", "xmm11", "xmm12", "xmm13", "xmm14", "xmm15"}
	sysvCalleeSaved = map[GeneralReg]bool{"rbx": true, "rbp": true, "r12": true, "r13": true, "r14": true, "r15": true}
)

func (SystemVAMD64) GeneralDefaultFreeRegs() []GeneralReg {
	out := make([]GeneralReg, len(sysvGeneralFree))
	copy(out, sysvGeneralFree)
	return out
}

func (SystemVAMD64) FloatDefaultFreeRegs() []FloatReg {
	out := make([]FloatReg, len(sysvFloatFree))
	copy(out, sysvFloatFree)
	return out
}

func (SystemVAMD64) GeneralCalleeSaved(r GeneralReg) bool { return sysvCalleeSaved[r] }
func (SystemVAMD64) FloatCalleeSaved(FloatReg) bool       { return false }
func (SystemVAMD64) GeneralCallerSaved(r GeneralReg) bool { return !sysvCalleeSaved[r] }
func (SystemVAMD64) FloatCallerSaved(FloatReg) bool       { return true }

// MicrosoftX64 is the Windows x86-64 ABI, generalized from the teacher's
// MicrosoftX64 (calling_convention.go). It reserves rdi/rsi as callee-saved,
// unlike System V, and has fewer caller-saved XMM registers.
type MicrosoftX64 struct{}

var (
	msGeneralFree = []GeneralReg{"rax", "rcx", "rdx", "r8", "r9", "r10", "r11", "rbx", "rdi", "rsi", "r12", "r13", "r14"}
	msFloatFree   = []FloatReg{"xmm0", "xmm1", "xmm2", "xmm3", "xmm4", "xmm5", "xmm6", "xmm7", "xmm8", "xmm9", "xmm10", "xmm11", "xmm12", "xmm13", "xmm14", "xmm15"}
	msCalleeSaved = map[GeneralReg]bool{"rbx": true, "rbp": true, "rdi": true, "rsi": true, "r12": true, "r13": true, "r14": true, "r15": true}
	msFloatCallee = map[FloatReg]bool{"xmm6": true, "xmm7": true, "xmm8": true, "xmm9": true, "xmm10": true, "xmm11": true, "xmm12": true, "xmm13": true, "xmm14": true, "xmm15": true}
)

func (MicrosoftX64) GeneralDefaultFreeRegs() []GeneralReg {
	out := make([]GeneralReg, len(msGeneralFree))
	copy(out, msGeneralFree)
	return out
}

func (MicrosoftX64) FloatDefaultFreeRegs() []FloatReg {
	out := make([]FloatReg, len(msFloatFree))
	copy(out, msFloatFree)
	return out
}

func (MicrosoftX64) GeneralCalleeSaved(r GeneralReg) bool { return msCalleeSaved[r] }
func (MicrosoftX64) FloatCalleeSaved(r FloatReg) bool     { return msFloatCallee[r] }
func (MicrosoftX64) GeneralCallerSaved(r GeneralReg) bool { return !msCalleeSaved[r] }
func (MicrosoftX64) FloatCallerSaved(r FloatReg) bool     { return !msFloatCallee[r] }

// ARM64AAPCS is the AAPCS64 ABI, generalized from the teacher's placeholder
// ARM64 handling in GetCallingConvention (calling_convention.go), which the
// teacher itself notes is a TODO. Here it is fully specified rather than
// aliased to SystemVAMD64, since the storage manager is ABI-agnostic and
// costs nothing extra to implement correctly.
type ARM64AAPCS struct{}

var (
	arm64GeneralFree = []GeneralReg{"x0", "x1", "x2", "x3", "x4", "x5", "x6", "x7", "x8", "x9", "x10", "x11", "x12", "x13", "x14", "x15"}
	arm64FloatFree   = []FloatReg{"v0", "v1", "v2", "v3", "v4", "v5", "v6", "v7", "v8", "v9", "v10", "v11", "v12", "v13", "v14", "v15"}
	arm64CalleeSaved = map[GeneralReg]bool{"x19": true, "x20": true, "x21": true, "x22": true, "x23": true, "x24": true, "x25": true, "x26": true, "x27": true, "x28": true, "x29": true, "x30": true}
	arm64FloatCallee = map[FloatReg]bool{"v8": true, "v9": true, "v10": true, "v11": true, "v12": true, "v13": true, "v14": true, "v15": true}
)

func (ARM64AAPCS) GeneralDefaultFreeRegs() []GeneralReg {
	out := make([]GeneralReg, len(arm64GeneralFree))
	copy(out, arm64GeneralFree)
	return out
}

func (ARM64AAPCS) FloatDefaultFreeRegs() []FloatReg {
	out := make([]FloatReg, len(arm64FloatFree))
	copy(out, arm64FloatFree)
	return out
}

func (ARM64AAPCS) GeneralCalleeSaved(r GeneralReg) bool { return arm64CalleeSaved[r] }
func (ARM64AAPCS) FloatCalleeSaved(r FloatReg) bool     { return arm64FloatCallee[r] }
func (ARM64AAPCS) GeneralCallerSaved(r GeneralReg) bool { return !arm64CalleeSaved[r] }
func (ARM64AAPCS) FloatCallerSaved(r FloatReg) bool     { return !arm64FloatCallee[r] }

// DefaultCallConv picks a CallConv for a platform the same way the teacher's
// GetCallingConvention does (calling_convention.go), keyed on storage's own
// Arch/OS enums instead of teacher's Target interface.
func DefaultCallConv(p Platform) CallConv {
	switch p.Arch {
	case ArchARM64:
		return ARM64AAPCS{}
	case ArchX86_64:
		if p.OS == OSWindows {
			return MicrosoftX64{}
		}
		return SystemVAMD64{}
	default:
		return SystemVAMD64{}
	}
}
