package x86_64

import (
	"github.com/speculorn/speculorn"
	"github.com/speculorn/speculorn/models"
	"github.com/speculorn/speculorn/models/cpu"
)

// Null models zero injection: a load that faults on the protected faulty
// region speculatively returns zero. The fault handler lifts the region's
// protection and re-executes the load; the memory hook then checkpoints,
// saves the original bytes, and rewrites the loaded cell to zero.
//
// The terminal variant (null-fault) differs only in where rollback resumes:
// at program end, treating the fault as genuinely terminal once the
// speculative window closes, instead of re-verifying the load.
type Null struct {
	m        *speculorn.Model
	faults   map[int]bool
	terminal bool

	pending bool
}

func NewNull(m *speculorn.Model) *Null {
	return &Null{m: m, faults: protFaults()}
}

func NewNullFault(m *speculorn.Model) *Null {
	return &Null{m: m, faults: protFaults(), terminal: true}
}

func protFaults() map[int]bool {
	return map[int]bool{
		cpu.FAULT_WRITE_PROT: true,
		cpu.FAULT_READ_PROT:  true,
	}
}

func (n *Null) Name() string {
	if n.terminal {
		return "null-fault"
	}
	return "null"
}

func (n *Null) RequiresMeta() bool { return false }

func (n *Null) Reset() {
	n.pending = false
}

func (n *Null) Instruction(addr uint64, size uint32) {}

func (n *Null) Fault(errno int) uint64 {
	if !n.faults[errno] {
		return 0
	}
	if n.m.Depth() >= n.m.Config().Nesting {
		return 0
	}
	n.pending = true

	// lift the protection so the re-executed load does not fault again
	l := n.m.Layout()
	if err := n.m.Cpu().MemProt(l.FaultyBase(), models.FaultySize, cpu.PROT_READ|cpu.PROT_WRITE); err != nil {
		return 0
	}
	return n.m.CurAddr()
}

func (n *Null) MemAccess(access int, addr uint64, size int, value int64) {
	if !n.pending {
		return
	}
	n.pending = false

	// stores fault too, but only loads get the injected zero
	if access == cpu.MEM_WRITE {
		return
	}

	resume := n.m.CurAddr()
	if n.terminal {
		resume = n.m.Layout().CodeEnd()
	}
	if err := n.m.Checkpoint(resume); err != nil {
		return
	}
	orig, err := n.m.Cpu().MemRead(addr, 8)
	if err != nil {
		return
	}
	n.m.LogStore(addr, orig)

	zero := make([]byte, size)
	n.m.Cpu().MemWrite(addr, zero)
}
