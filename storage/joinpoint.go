package storage

// SetupJoinpoint claims fresh storage for each parameter per its layout
// (spec.md §4.5): a single-register integer claims a general register, a
// single-register float claims a float register, a zero-size layout
// records NoData, and anything else claims stack space via
// ClaimStackArea. The resulting per-parameter Storage is recorded under
// label for SetupJump to target and returned so the caller can emit
// parameter materialization code once. Borrowed parameters (passed by
// reference rather than by value) are not supported, mirroring storage.rs's
// own todo!("joinpoints with borrowed parameters") (lines ~900-905) —
// callers must pass only owned parameter symbols. Grounded on storage.rs's
// setup_joinpoint (lines 839-877).
func (m *Manager) SetupJoinpoint(buf *[]byte, label string, params []Symbol, layouts []Layout, borrowed []bool) []Storage {
	if len(layouts) != len(params) {
		Fatal("SetupJoinpoint", "", "join point %q given %d params but %d layouts", label, len(params), len(layouts))
	}
	stored := make([]Storage, len(params))
	for i, p := range params {
		if i < len(borrowed) && borrowed[i] {
			Fatal("SetupJoinpoint", string(p), "borrowed join-point parameters are not supported")
		}
		layout := layouts[i]
		switch {
		case layout.IsPrimitive() && layout.Builtin.isFloat():
			m.ClaimFloatReg(buf, p)
		case layout.IsPrimitive():
			m.ClaimGeneralReg(buf, p)
		default:
			m.ClaimStackArea(p, layout.StackSize(m.target))
		}
		stored[i] = m.symbols[p]
	}
	m.joinParams[label] = stored
	return stored
}

// SetupJump emits the moves needed to place each argument symbol into the
// Storage SetupJoinpoint recorded for label, then the caller is responsible
// for emitting the actual jump instruction. Grounded on storage.rs's
// setup_jump (lines ~907-929).
func (m *Manager) SetupJump(buf *[]byte, label string, args []Symbol) {
	targets, ok := m.joinParams[label]
	if !ok {
		Fatal("SetupJump", "", "jump to unknown join point %q", label)
	}
	if len(targets) != len(args) {
		Fatal("SetupJump", "", "join point %q expects %d arguments, got %d", label, len(targets), len(args))
	}
	for i, a := range args {
		target := targets[i]
		switch {
		case target.IsReg() && target.Reg().IsGeneral():
			m.LoadToSpecifiedGeneralReg(buf, a, target.Reg().GeneralReg())
		case target.IsReg() && target.Reg().IsFloat():
			m.LoadToSpecifiedFloatReg(buf, a, target.Reg().FloatReg())
		case target.IsStack():
			m.copyToExactStackSlot(buf, a, target.Stack())
		case target.IsNoData():
			// a zero-size parameter needs no move
		default:
			Fatal("SetupJump", string(a), "join point parameter has no data storage")
		}
	}
}

func (m *Manager) copyToExactStackSlot(buf *[]byte, sym Symbol, dst StackSlot) {
	s, ok := m.symbols[sym]
	if !ok {
		m.fatalUnknownSymbol("SetupJump", sym)
	}
	if s.IsStack() && s.Stack().BaseOffset() == dst.BaseOffset() {
		return
	}
	if s.IsReg() && s.Reg().IsGeneral() {
		m.asm.MovBase32Reg64(buf, dst.BaseOffset(), s.Reg().GeneralReg())
		return
	}
	if s.IsReg() && s.Reg().IsFloat() {
		m.asm.MovBase32Freg64(buf, dst.BaseOffset(), s.Reg().FloatReg())
		return
	}
	reg := m.GetGeneralReg(buf, sym)
	m.asm.MovBase32Reg64(buf, dst.BaseOffset(), reg)
}

// PushUsedCallerSavedRegsToStack spills every currently used caller-saved
// register to the stack ahead of a call, leaving callee-saved registers
// untouched since the callee is contractually obliged to preserve them.
// Returns the symbols whose registers were spilled so the caller can
// restore them afterward. Grounded on storage.rs's
// push_used_caller_saved_regs_to_stack (lines 1078-1101).
func (m *Manager) PushUsedCallerSavedRegsToStack(buf *[]byte) []Symbol {
	var spilled []Symbol

	var keepGeneral []regOwner
	for _, o := range m.pool.generalUsed {
		if m.cc.GeneralCallerSaved(o.reg) {
			m.spillGeneralToStackBuf(buf, o.reg, o.sym)
			m.pool.generalFree = append(m.pool.generalFree, o.reg)
			spilled = append(spilled, o.sym)
		} else {
			keepGeneral = append(keepGeneral, o)
		}
	}
	m.pool.generalUsed = keepGeneral

	var keepFloat []floatOwner
	for _, o := range m.pool.floatUsed {
		if m.cc.FloatCallerSaved(o.reg) {
			m.spillFloatToStackBuf(buf, o.reg, o.sym)
			m.pool.floatFree = append(m.pool.floatFree, o.reg)
			spilled = append(spilled, o.sym)
		} else {
			keepFloat = append(keepFloat, o)
		}
	}
	m.pool.floatUsed = keepFloat

	return spilled
}

func (m *Manager) spillGeneralToStackBuf(buf *[]byte, reg GeneralReg, sym Symbol) {
	off := m.arena.claim(8, 8)
	disp := -(off + 8)
	m.asm.MovBase32Reg64(buf, disp, reg)
	m.setStorage(sym, OnStack(Primitive(disp, nil)))
}

func (m *Manager) spillFloatToStackBuf(buf *[]byte, reg FloatReg, sym Symbol) {
	off := m.arena.claim(8, 8)
	disp := -(off + 8)
	m.asm.MovBase32Freg64(buf, disp, reg)
	m.setStorage(sym, OnStack(Primitive(disp, nil)))
}
