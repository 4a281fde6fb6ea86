package storage

// regpool holds the free-list registers and used-register tables (spec.md
// §2 Core A components 1-2). Grounded on storage.rs lines 106-244, 686-732
// and on the teacher's register_tracker.go RegisterTracker (on-demand
// allocate/free-with-purpose model, not register_allocator.go's
// linear-scan).
type regpool struct {
	cc CallConv

	generalFree []GeneralReg
	floatFree   []FloatReg

	// FIFO queues of (register, owning symbol). storage.rs's
	// get_general_reg/get_float_reg evict general_used_regs.remove(0) — the
	// *oldest* entry, not the most-recently-used — so these are walked and
	// trimmed from the front, never treated as a stack.
	generalUsed []regOwner
	floatUsed   []floatOwner

	generalCalleeSavedUsed map[GeneralReg]bool
	floatCalleeSavedUsed   map[FloatReg]bool
}

type regOwner struct {
	reg GeneralReg
	sym Symbol
}

type floatOwner struct {
	reg FloatReg
	sym Symbol
}

func newRegpool(cc CallConv) *regpool {
	p := &regpool{cc: cc}
	p.reset()
	return p
}

func (p *regpool) reset() {
	p.generalFree = p.cc.GeneralDefaultFreeRegs()
	p.floatFree = p.cc.FloatDefaultFreeRegs()
	p.generalUsed = nil
	p.floatUsed = nil
	p.generalCalleeSavedUsed = make(map[GeneralReg]bool)
	p.floatCalleeSavedUsed = make(map[FloatReg]bool)
}

func (p *regpool) generalUsedCalleeSaved() []GeneralReg {
	out := make([]GeneralReg, 0, len(p.generalCalleeSavedUsed))
	for r := range p.generalCalleeSavedUsed {
		out = append(out, r)
	}
	return out
}

func (p *regpool) floatUsedCalleeSaved() []FloatReg {
	out := make([]FloatReg, 0, len(p.floatCalleeSavedUsed))
	for r := range p.floatCalleeSavedUsed {
		out = append(out, r)
	}
	return out
}

// popGeneralFree pops a register off the free list, recording it as
// callee-saved-touched if applicable (storage.rs lines 214-227).
func (p *regpool) popGeneralFree() (GeneralReg, bool) {
	n := len(p.generalFree)
	if n == 0 {
		return "", false
	}
	r := p.generalFree[n-1]
	p.generalFree = p.generalFree[:n-1]
	if p.cc.GeneralCalleeSaved(r) {
		p.generalCalleeSavedUsed[r] = true
	}
	return r, true
}

func (p *regpool) popFloatFree() (FloatReg, bool) {
	n := len(p.floatFree)
	if n == 0 {
		return "", false
	}
	r := p.floatFree[n-1]
	p.floatFree = p.floatFree[:n-1]
	if p.cc.FloatCalleeSaved(r) {
		p.floatCalleeSavedUsed[r] = true
	}
	return r, true
}

// popOldestGeneralUsed evicts and returns the FIFO victim, per storage.rs's
// general_used_regs.remove(0).
func (p *regpool) popOldestGeneralUsed() (regOwner, bool) {
	if len(p.generalUsed) == 0 {
		return regOwner{}, false
	}
	o := p.generalUsed[0]
	p.generalUsed = p.generalUsed[1:]
	return o, true
}

func (p *regpool) popOldestFloatUsed() (floatOwner, bool) {
	if len(p.floatUsed) == 0 {
		return floatOwner{}, false
	}
	o := p.floatUsed[0]
	p.floatUsed = p.floatUsed[1:]
	return o, true
}

func (p *regpool) pushGeneralUsed(reg GeneralReg, sym Symbol) {
	p.generalUsed = append(p.generalUsed, regOwner{reg, sym})
}

func (p *regpool) pushFloatUsed(reg FloatReg, sym Symbol) {
	p.floatUsed = append(p.floatUsed, floatOwner{reg, sym})
}

func (p *regpool) removeGeneralUsed(sym Symbol) (GeneralReg, bool) {
	for i, o := range p.generalUsed {
		if o.sym == sym {
			p.generalUsed = append(p.generalUsed[:i], p.generalUsed[i+1:]...)
			return o.reg, true
		}
	}
	return "", false
}

func (p *regpool) removeFloatUsed(sym Symbol) (FloatReg, bool) {
	for i, o := range p.floatUsed {
		if o.sym == sym {
			p.floatUsed = append(p.floatUsed[:i], p.floatUsed[i+1:]...)
			return o.reg, true
		}
	}
	return "", false
}

func (p *regpool) generalFreeContains(r GeneralReg) bool {
	for _, f := range p.generalFree {
		if f == r {
			return true
		}
	}
	return false
}

func (p *regpool) floatFreeContains(r FloatReg) bool {
	for _, f := range p.floatFree {
		if f == r {
			return true
		}
	}
	return false
}

func (p *regpool) generalUsedPosition(r GeneralReg) (int, bool) {
	for i, o := range p.generalUsed {
		if o.reg == r {
			return i, true
		}
	}
	return 0, false
}

func (p *regpool) floatUsedPosition(r FloatReg) (int, bool) {
	for i, o := range p.floatUsed {
		if o.reg == r {
			return i, true
		}
	}
	return 0, false
}

func (p *regpool) removeGeneralFree(r GeneralReg) bool {
	for i, f := range p.generalFree {
		if f == r {
			p.generalFree = append(p.generalFree[:i], p.generalFree[i+1:]...)
			return true
		}
	}
	return false
}

func (p *regpool) removeFloatFree(r FloatReg) bool {
	for i, f := range p.floatFree {
		if f == r {
			p.floatFree = append(p.floatFree[:i], p.floatFree[i+1:]...)
			return true
		}
	}
	return false
}
