package storage

import "github.com/sirupsen/logrus"

// Manager is the storage manager itself (spec.md §2 Core A): it owns the
// register pools, the stack arena, and the map from symbol to its current
// Storage. It is not safe for concurrent use (spec.md §5 is explicitly
// single-threaded, ordered by call sequence), matching the teacher's own
// non-reentrant code generators.
type Manager struct {
	cc     CallConv
	asm    Assembler
	target TargetInfo

	pool  *regpool
	arena *stackArena

	symbols map[Symbol]Storage
	// allocs backs ReferencedPrimitive and Complex stack slots that may be
	// aliased by more than one symbol (storage.rs's allocation_map, an
	// Rc<(i32,u32)> per owned range). Primitive spill slots are not entered
	// here; FreeSymbol releases a stack Primitive's slot directly.
	allocs map[Symbol]*allocHandle

	// joinParams records, per join-point label, the Storage each
	// parameter must occupy on entry, set by SetupJoinpoint and consumed
	// by SetupJump (spec.md §4.5).
	joinParams map[string][]Storage
}

// NewManager constructs a Manager for platform p, wired to asm for code
// emission. Mirrors the teacher's per-function codegen construction
// (x86_64_codegen.go's NewX86_64CodeGen paired with calling_convention.go's
// GetCallingConvention).
func NewManager(p Platform, asm Assembler, target TargetInfo) *Manager {
	cc := DefaultCallConv(p)
	log.WithFields(logrus.Fields{"component": "storage", "op": "NewManager", "target": p.String()}).Debug("storage manager initialized")
	return &Manager{
		cc:         cc,
		asm:        asm,
		target:     target,
		pool:       newRegpool(cc),
		arena:      newStackArena(),
		symbols:    make(map[Symbol]Storage),
		allocs:     make(map[Symbol]*allocHandle),
		joinParams: make(map[string][]Storage),
	}
}

// StorageOf reports a symbol's current location, or NoData if it has never
// been materialized.
func (m *Manager) StorageOf(sym Symbol) Storage {
	if s, ok := m.symbols[sym]; ok {
		return s
	}
	return NoData
}

func (m *Manager) setStorage(sym Symbol, s Storage) {
	m.symbols[sym] = s
}

// ClaimGeneralReg assigns sym a fresh general-purpose register, spilling the
// FIFO-oldest used register to the stack first if the free list is
// exhausted. Grounded on storage.rs's get_general_reg (lines 212-227).
func (m *Manager) ClaimGeneralReg(buf *[]byte, sym Symbol) GeneralReg {
	reg, ok := m.pool.popGeneralFree()
	if !ok {
		victim, any := m.pool.popOldestGeneralUsed()
		if !any {
			Fatal("ClaimGeneralReg", string(sym), "no general registers available to claim or evict")
		}
		m.spillGeneralToStackBuf(buf, victim.reg, victim.sym)
		reg = victim.reg
	}
	m.pool.pushGeneralUsed(reg, sym)
	m.setStorage(sym, InReg(General(reg)))
	return reg
}

// ClaimFloatReg is the floating-point analogue of ClaimGeneralReg.
func (m *Manager) ClaimFloatReg(buf *[]byte, sym Symbol) FloatReg {
	reg, ok := m.pool.popFloatFree()
	if !ok {
		victim, any := m.pool.popOldestFloatUsed()
		if !any {
			Fatal("ClaimFloatReg", string(sym), "no float registers available to claim or evict")
		}
		m.spillFloatToStackBuf(buf, victim.reg, victim.sym)
		reg = victim.reg
	}
	m.pool.pushFloatUsed(reg, sym)
	m.setStorage(sym, InReg(Float(reg)))
	return reg
}

// ClaimStackArea allocates size bytes of stack space for sym and records a
// Complex descriptor backed by a fresh allocation handle, or NoData if size
// is zero. Grounded on storage.rs's claim_stack_area (spec.md §4.3); shared
// by SetupJoinpoint for non-primitive parameters and by CreateStruct for the
// struct's own backing allocation.
func (m *Manager) ClaimStackArea(sym Symbol, size uint32) Storage {
	if size == 0 {
		out := NoData
		m.setStorage(sym, out)
		return out
	}
	off := m.arena.claim(size, 8)
	base := -(off + int32(size))
	m.allocs[sym] = newAllocHandle(base, size)
	out := OnStack(Complex(base, size))
	m.setStorage(sym, out)
	return out
}

// GetGeneralReg returns sym's current register, loading it from the stack
// if necessary. The register comes from ClaimGeneralReg, so when none is
// free the FIFO-oldest register's owner is spilled to the stack first. A stack
// Primitive loads directly; a ReferencedPrimitive (a sub-word struct field)
// sign- or zero-extends per its SignExtend flag and, since that
// materializes the value into a plain register, releases the field's
// allocation handle via freeReference afterward (spec.md §4.2). Mirrors
// storage.rs's load_to_general_reg (lines ~280-360 of storage.rs).
func (m *Manager) GetGeneralReg(buf *[]byte, sym Symbol) GeneralReg {
	s, ok := m.symbols[sym]
	if !ok {
		m.fatalUnknownSymbol("GetGeneralReg", sym)
	}
	if s.IsReg() {
		if !s.Reg().IsGeneral() {
			Fatal("GetGeneralReg", string(sym), "symbol is held in a float register")
		}
		return s.Reg().GeneralReg()
	}
	if s.IsStack() && s.Stack().IsPrimitive() {
		reg := m.ClaimGeneralReg(buf, sym)
		m.asm.MovReg64Base32(buf, reg, s.Stack().BaseOffset())
		return reg
	}
	if s.IsStack() && s.Stack().IsReferencedPrimitive() {
		rp := s.Stack()
		reg := m.ClaimGeneralReg(buf, sym)
		if rp.SignExtend() {
			m.asm.MovsxReg64Base32(buf, reg, rp.BaseOffset(), uint8(rp.Size()))
		} else {
			m.asm.MovzxReg64Base32(buf, reg, rp.BaseOffset(), uint8(rp.Size()))
		}
		m.freeReference(sym)
		return reg
	}
	Fatal("GetGeneralReg", string(sym), "symbol is not a primitive that fits in a general register")
	panic("unreachable")
}

// GetFloatReg is the floating-point analogue of GetGeneralReg. A
// ReferencedPrimitive is only loadable directly as a float when it is an
// aligned 8-byte field; a misaligned sub-8-byte float sub-field is the
// reserved behaviour spec.md §4.2 allows implementations to reject.
func (m *Manager) GetFloatReg(buf *[]byte, sym Symbol) FloatReg {
	s, ok := m.symbols[sym]
	if !ok {
		m.fatalUnknownSymbol("GetFloatReg", sym)
	}
	if s.IsReg() {
		if !s.Reg().IsFloat() {
			Fatal("GetFloatReg", string(sym), "symbol is held in a general register")
		}
		return s.Reg().FloatReg()
	}
	if s.IsStack() && s.Stack().IsPrimitive() {
		reg := m.ClaimFloatReg(buf, sym)
		m.asm.MovFreg64Base32(buf, reg, s.Stack().BaseOffset())
		return reg
	}
	if s.IsStack() && s.Stack().IsReferencedPrimitive() {
		rp := s.Stack()
		if rp.Size() != 8 || rp.BaseOffset()%8 != 0 {
			Fatal("GetFloatReg", string(sym), "misaligned sub-8-byte float referenced primitive is not supported")
		}
		reg := m.ClaimFloatReg(buf, sym)
		m.asm.MovFreg64Base32(buf, reg, rp.BaseOffset())
		m.freeReference(sym)
		return reg
	}
	Fatal("GetFloatReg", string(sym), "symbol is not a primitive that fits in a float register")
	panic("unreachable")
}

// freeReference releases sym's allocation handle without touching any
// register ownership, returning the backing chunk to the arena's free list
// once no other symbol still shares it. Grounded on storage.rs's
// free_reference (spec.md §4.3); used when a ReferencedPrimitive
// materializes into a plain register and its stack alias is no longer
// needed.
func (m *Manager) freeReference(sym Symbol) {
	h, ok := m.allocs[sym]
	if !ok {
		return
	}
	delete(m.allocs, sym)
	if h.release() {
		m.arena.release(-(h.offset + int32(h.size)), h.size)
	}
}

// WithTmpGeneralReg claims a scratch general register, runs fn with it, then
// frees it immediately without ever publishing it under any symbol's
// storage. Grounded on storage.rs's with_tmp_general_reg helper used by
// call-site and comparison codegen.
func (m *Manager) WithTmpGeneralReg(buf *[]byte, fn func(reg GeneralReg)) {
	reg, ok := m.pool.popGeneralFree()
	if !ok {
		victim, any := m.pool.popOldestGeneralUsed()
		if !any {
			Fatal("WithTmpGeneralReg", "", "no general registers available for a temporary")
		}
		m.spillGeneralToStackBuf(buf, victim.reg, victim.sym)
		reg = victim.reg
	}
	fn(reg)
	m.pool.generalFree = append(m.pool.generalFree, reg)
}

// WithTmpFloatReg is the floating-point analogue of WithTmpGeneralReg.
func (m *Manager) WithTmpFloatReg(buf *[]byte, fn func(reg FloatReg)) {
	reg, ok := m.pool.popFloatFree()
	if !ok {
		victim, any := m.pool.popOldestFloatUsed()
		if !any {
			Fatal("WithTmpFloatReg", "", "no float registers available for a temporary")
		}
		m.spillFloatToStackBuf(buf, victim.reg, victim.sym)
		reg = victim.reg
	}
	fn(reg)
	m.pool.floatFree = append(m.pool.floatFree, reg)
}

// LoadToGeneralReg ensures sym is resident in some general register (any
// one) and returns it, emitting a load if it currently lives on the stack.
func (m *Manager) LoadToGeneralReg(buf *[]byte, sym Symbol) GeneralReg {
	return m.GetGeneralReg(buf, sym)
}

// LoadToFloatReg is the floating-point analogue of LoadToGeneralReg.
func (m *Manager) LoadToFloatReg(buf *[]byte, sym Symbol) FloatReg {
	return m.GetFloatReg(buf, sym)
}

// ensureGeneralRegFree makes reg available for a specific assignment: a no-op if
// it is already free; if it is in the used table, its owner is spilled to
// the stack and the register moves to the free list; if it is in neither
// table, that is an invariant violation (a register the manager has never
// heard of). Grounded on storage.rs's ensure_reg_free (lines 686-732).
func (m *Manager) ensureGeneralRegFree(buf *[]byte, reg GeneralReg) {
	if m.pool.generalFreeContains(reg) {
		return
	}
	if i, ok := m.pool.generalUsedPosition(reg); ok {
		owner := m.pool.generalUsed[i]
		m.pool.generalUsed = append(m.pool.generalUsed[:i], m.pool.generalUsed[i+1:]...)
		m.spillGeneralToStackBuf(buf, owner.reg, owner.sym)
		m.pool.generalFree = append(m.pool.generalFree, reg)
		return
	}
	Fatal("ensureGeneralRegFree", "", "register %s is neither free nor tracked as used", reg)
}

func (m *Manager) ensureFloatRegFree(buf *[]byte, reg FloatReg) {
	if m.pool.floatFreeContains(reg) {
		return
	}
	if i, ok := m.pool.floatUsedPosition(reg); ok {
		owner := m.pool.floatUsed[i]
		m.pool.floatUsed = append(m.pool.floatUsed[:i], m.pool.floatUsed[i+1:]...)
		m.spillFloatToStackBuf(buf, owner.reg, owner.sym)
		m.pool.floatFree = append(m.pool.floatFree, reg)
		return
	}
	Fatal("ensureFloatRegFree", "", "register %s is neither free nor tracked as used", reg)
}

// LoadToSpecifiedGeneralReg forces sym into exactly reg, evicting whatever
// currently occupies it via ensureGeneralRegFree first. Used by call-site
// argument binding where the ABI fixes the register.
func (m *Manager) LoadToSpecifiedGeneralReg(buf *[]byte, sym Symbol, reg GeneralReg) {
	s, ok := m.symbols[sym]
	if !ok {
		m.fatalUnknownSymbol("LoadToSpecifiedGeneralReg", sym)
	}
	if s.IsReg() && s.Reg().IsGeneral() && s.Reg().GeneralReg() == reg {
		return
	}
	m.ensureGeneralRegFree(buf, reg)
	m.removeGeneralOwnership(sym)
	if s.IsReg() && s.Reg().IsGeneral() {
		m.asm.MovReg64Reg64(buf, reg, s.Reg().GeneralReg())
	} else if s.IsStack() && s.Stack().IsPrimitive() {
		m.asm.MovReg64Base32(buf, reg, s.Stack().BaseOffset())
	} else {
		Fatal("LoadToSpecifiedGeneralReg", string(sym), "symbol is not a primitive")
	}
	m.pool.removeGeneralFree(reg)
	m.pool.pushGeneralUsed(reg, sym)
	m.setStorage(sym, InReg(General(reg)))
}

// LoadToSpecifiedFloatReg is the floating-point analogue.
func (m *Manager) LoadToSpecifiedFloatReg(buf *[]byte, sym Symbol, reg FloatReg) {
	s, ok := m.symbols[sym]
	if !ok {
		m.fatalUnknownSymbol("LoadToSpecifiedFloatReg", sym)
	}
	if s.IsReg() && s.Reg().IsFloat() && s.Reg().FloatReg() == reg {
		return
	}
	m.ensureFloatRegFree(buf, reg)
	m.removeFloatOwnership(sym)
	if s.IsReg() && s.Reg().IsFloat() {
		m.asm.MovFreg64Freg64(buf, reg, s.Reg().FloatReg())
	} else if s.IsStack() && s.Stack().IsPrimitive() {
		m.asm.MovFreg64Base32(buf, reg, s.Stack().BaseOffset())
	} else {
		Fatal("LoadToSpecifiedFloatReg", string(sym), "symbol is not a primitive")
	}
	m.pool.removeFloatFree(reg)
	m.pool.pushFloatUsed(reg, sym)
	m.setStorage(sym, InReg(Float(reg)))
}

func (m *Manager) removeGeneralOwnership(sym Symbol) {
	if reg, ok := m.pool.removeGeneralUsed(sym); ok {
		m.pool.generalFree = append(m.pool.generalFree, reg)
	}
}

func (m *Manager) removeFloatOwnership(sym Symbol) {
	if reg, ok := m.pool.removeFloatUsed(sym); ok {
		m.pool.floatFree = append(m.pool.floatFree, reg)
	}
}

// FreeSymbol releases whatever resource sym occupies: a register returns to
// the free list, a refcounted stack allocation's handle is released and, if
// that drops its refcount to zero, its bytes return to the arena's free
// list. Grounded on storage.rs's free_symbol plus free_reference (lines
// ~1000-1024).
func (m *Manager) FreeSymbol(sym Symbol) {
	s, ok := m.symbols[sym]
	if !ok {
		return
	}
	if s.IsReg() {
		if s.Reg().IsGeneral() {
			m.removeGeneralOwnership(sym)
		} else {
			m.removeFloatOwnership(sym)
		}
	}
	if s.IsStack() && s.Stack().IsPrimitive() {
		m.arena.release(-(s.Stack().BaseOffset() + 8), 8)
	}
	m.freeReference(sym)
	delete(m.symbols, sym)
}
