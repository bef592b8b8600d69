package x86_64

import (
	"github.com/speculorn/speculorn"
	"github.com/speculorn/speculorn/models/cpu"
)

// Meltdown assumes a faulting load speculatively returns the true in-memory
// value. The faulty region stays accessible at the emulator level and the
// engine's faulty-region detection synthesizes the fault instead; once the
// speculative leg starts, detection is suppressed, so re-executing the load
// reads the real bytes. No dependency bookkeeping: nothing is suppressed.
type Meltdown struct {
	*OOO
}

func NewMeltdown(m *speculorn.Model) *Meltdown {
	ooo := NewOOO(m)
	ooo.faults[cpu.FAULT_EXCEPTION] = true
	return &Meltdown{OOO: ooo}
}

func (md *Meltdown) Name() string { return "meltdown" }

// no operand inspection, so test cases without metadata run fine
func (md *Meltdown) RequiresMeta() bool { return false }

func (md *Meltdown) Instruction(addr uint64, size uint32) {}

func (md *Meltdown) Fault(errno int) uint64 {
	if resume := md.OOO.Fault(errno); resume != 0 {
		// resume at the load itself so it executes with the true value
		return md.m.CurAddr()
	}
	return 0
}
