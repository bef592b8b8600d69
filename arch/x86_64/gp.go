package x86_64

import (
	"github.com/speculorn/speculorn"
	"github.com/speculorn/speculorn/models"
	"github.com/speculorn/speculorn/models/cpu"
)

// The x86-64 canonical-address gap: bit 47 must sign-extend through bit 63.
const (
	canonLow  = 0x00007fffffffffff
	canonHigh = 0xffff800000000000
	canonBit  = 0x1000000000000
)

func nonCanonical(val uint64) bool {
	return val > canonLow && val < canonHigh
}

// GP extends the out-of-order contract to general-protection faults from
// non-canonical addresses. The emulator cannot take those natively: its
// context ends up corrupted and it refaults forever. So the contract
// detects them first, folds the address back into canonical range, and
// delivers the fault itself; the speculative leg then re-executes the
// access with the corrected address.
type GP struct {
	*OOO

	pending  regRestore
	restores []regRestore
}

// regRestore re-installs the original non-canonical value on rollback; the
// checkpointed context holds the corrected one by construction.
type regRestore struct {
	enum int
	val  uint64
	ok   bool
}

func NewGP(m *speculorn.Model) *GP {
	ooo := NewOOO(m)
	ooo.faults[cpu.FAULT_READ_UNMAPPED] = true
	return &GP{OOO: ooo}
}

func (g *GP) Name() string { return "gp" }

func (g *GP) Reset() {
	g.OOO.Reset()
	g.pending = regRestore{}
	g.restores = g.restores[:0]
}

func (g *GP) Instruction(addr uint64, size uint32) {
	if g.detect() {
		return
	}
	if !g.m.Speculating() || len(g.deps) == 0 {
		return
	}
	if g.m.LastFault() == addr {
		return
	}
	meta := g.m.CurMeta()
	if meta == nil {
		return
	}
	// address computation alone does not expose the unresolved value, so
	// only data dependence suppresses an instruction here
	src, dest, dataSrc := classify(g.m.Arch(), meta)
	g.depSkip(src, dest, anyIn(g.deps, dataSrc))
}

// detect scans simple (single base register) memory operands for addresses
// inside the non-canonical gap. On a hit it corrects the register, records
// the original for rollback, re-snapshots the corrected context so the
// fault path restores it, and raises the fault.
func (g *GP) detect() bool {
	meta := g.m.CurMeta()
	if meta == nil {
		return false
	}
	for _, op := range meta.Operands {
		if op.Kind != models.OpMem {
			continue
		}
		terms := speculorn.SplitAddress(op.Value)
		if len(terms) != 1 {
			continue
		}
		enum, ok := g.m.Arch().RegID(terms[0])
		if !ok {
			continue
		}
		val, err := g.m.Cpu().RegRead(enum)
		if err != nil {
			continue
		}
		if !nonCanonical(val) {
			continue
		}
		if err := g.m.Cpu().RegWrite(enum, val^canonBit); err != nil {
			continue
		}
		g.pending = regRestore{enum: enum, val: val, ok: true}
		g.m.Recontext()
		g.m.RaiseFault(cpu.FAULT_READ_UNMAPPED)
		return true
	}
	return false
}

func (g *GP) Fault(errno int) uint64 {
	ret := g.OOO.Fault(errno)
	// the checkpoint consumed the pending restore if one was taken
	g.pending = regRestore{}
	if errno == cpu.FAULT_READ_UNMAPPED && ret != 0 {
		// the address is canonical now, so the access itself can run
		return g.m.CurAddr()
	}
	return ret
}

func (g *GP) OnCheckpoint() {
	g.OOO.OnCheckpoint()
	g.restores = append(g.restores, g.pending)
	g.pending = regRestore{}
}

func (g *GP) OnRollback() {
	g.OOO.OnRollback()
	if n := len(g.restores) - 1; n >= 0 {
		r := g.restores[n]
		g.restores = g.restores[:n]
		if r.ok {
			g.m.Cpu().RegWrite(r.enum, r.val)
		}
	}
}
