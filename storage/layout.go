package storage

// This file specifies only the consumed interface of the Layout oracle
// collaborator (spec.md §6): "the formatter for surface syntax, ... and the
// higher-level instruction-selection driver" own the real layout system;
// spec.md §1 treats it as an external collaborator and asks that only the
// interface the storage manager consumes be specified. storage.rs imports
// this from roc_mono::layout; we model just enough of it to drive
// CopySymbolToStackOffset/LoadFieldAtIndex/LoadUnionTagID/CreateStruct.

// Builtin enumerates the primitive scalar kinds the layout oracle can
// report, mirroring storage.rs's roc_builtins::bitcode::{IntWidth,
// FloatWidth} plus Bool.
type Builtin uint8

const (
	BuiltinI8 Builtin = iota
	BuiltinU8
	BuiltinI16
	BuiltinU16
	BuiltinI32
	BuiltinU32
	BuiltinI64
	BuiltinU64
	BuiltinF32
	BuiltinF64
	BuiltinBool
)

// byteSize returns the builtin's width in bytes.
func (b Builtin) byteSize() uint32 {
	switch b {
	case BuiltinI8, BuiltinU8, BuiltinBool:
		return 1
	case BuiltinI16, BuiltinU16:
		return 2
	case BuiltinI32, BuiltinU32, BuiltinF32:
		return 4
	default:
		return 8
	}
}

// SignExtended reports whether a sub-8-byte load of this builtin must use
// movsx rather than movzx, per storage.rs's sign_extended_builtins! macro.
func (b Builtin) SignExtended() bool {
	switch b {
	case BuiltinI8, BuiltinI16, BuiltinI32:
		return true
	default:
		return false
	}
}

// isSingleRegister reports whether values of this builtin always occupy a
// single machine register (storage.rs's single_register_integers!/
// single_register_floats! macros).
func (b Builtin) isSingleRegister() bool { return true }

func (b Builtin) isFloat() bool { return b == BuiltinF32 || b == BuiltinF64 }

// LayoutKind distinguishes a primitive scalar layout from a composite
// struct layout.
type LayoutKind uint8

const (
	LayoutPrimitive LayoutKind = iota
	LayoutStruct
)

// TargetInfo carries the pointer width the layout oracle needs to size
// pointer-shaped builtins, mirroring storage.rs's roc_target::TargetInfo.
type TargetInfo struct {
	PointerBytes uint32
}

// Layout is a minimal stand-in for the real layout oracle: either a
// primitive Builtin, or a Struct of ordered field Layouts.
type Layout struct {
	Kind    LayoutKind
	Builtin Builtin
	Fields  []Layout
}

// NewPrimitiveLayout constructs a primitive scalar layout.
func NewPrimitiveLayout(b Builtin) Layout { return Layout{Kind: LayoutPrimitive, Builtin: b} }

// NewStructLayout constructs a composite struct layout from ordered fields.
func NewStructLayout(fields []Layout) Layout { return Layout{Kind: LayoutStruct, Fields: fields} }

// IsPrimitive reports whether l is a single-register scalar (storage.rs's
// is_primitive, single_register_layouts!).
func (l Layout) IsPrimitive() bool {
	return l.Kind == LayoutPrimitive && l.Builtin.isSingleRegister()
}

// StackSize returns the layout's size in bytes on the stack.
func (l Layout) StackSize(t TargetInfo) uint32 {
	if l.Kind == LayoutPrimitive {
		return l.Builtin.byteSize()
	}
	var total uint32
	for _, f := range l.Fields {
		total += f.StackSize(t)
	}
	return total
}

// UnionRecursion distinguishes the union shapes storage.rs's UnionLayout
// enumerates; only NonRecursive is implemented (spec.md §4.4 "other union
// shapes are reserved").
type UnionRecursion uint8

const (
	UnionNonRecursive UnionRecursion = iota
	UnionRecursive
	UnionNonNullableUnwrapped
	UnionNullableWrapped
	UnionNullableUnwrapped
)

// UnionLayout describes a tag union's memory shape, mirroring storage.rs's
// UnionLayout well enough to drive LoadUnionTagID.
type UnionLayout struct {
	Recursion UnionRecursion
	// TagDataSize is the total size in bytes of a non-recursive union's
	// largest variant plus its tag id, rounded up to Alignment; the tag id
	// is stored Alignment bytes before that end.
	TagDataSize uint32
	// Alignment is the union's required alignment in bytes.
	Alignment uint32
	// TagIDWidth selects the builtin used to store the tag id itself.
	TagIDWidth Builtin
}

// DataSizeAndAlignment mirrors storage.rs's
// union_layout.data_size_and_alignment(target_info).
func (u UnionLayout) DataSizeAndAlignment(TargetInfo) (uint32, uint32) {
	return u.TagDataSize, u.Alignment
}

// TagIDBuiltin mirrors storage.rs's union_layout.tag_id_builtin().
func (u UnionLayout) TagIDBuiltin() Builtin { return u.TagIDWidth }
