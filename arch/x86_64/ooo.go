package x86_64

import (
	"github.com/speculorn/speculorn"
	"github.com/speculorn/speculorn/models"
)

// OOO models out-of-order execution past a fault: younger instructions keep
// executing while the faulting one is unresolved, except those that are
// data-dependent on its result, which the pipeline must hold back. The
// dependency set tracks which registers and flags carry the unresolved
// value; it grows transitively as dependent instructions are suppressed.
type OOO struct {
	m      *speculorn.Model
	faults map[int]bool

	deps  map[string]bool
	stack []map[string]bool
}

func NewOOO(m *speculorn.Model) *OOO {
	return &OOO{m: m, faults: protFaults(), deps: make(map[string]bool)}
}

func (o *OOO) Name() string       { return "ooo" }
func (o *OOO) RequiresMeta() bool { return true }

func (o *OOO) Reset() {
	o.deps = make(map[string]bool)
	o.stack = o.stack[:0]
}

func (o *OOO) Fault(errno int) uint64 {
	if !o.faults[errno] {
		return 0
	}
	if o.m.Depth() >= o.m.Config().Nesting {
		return 0
	}

	// a genuine fault terminates the run, so the rollback target is program
	// end; the speculative leg asks what would have executed anyway
	if err := o.m.Checkpoint(o.m.Layout().CodeEnd()); err != nil {
		return 0
	}

	// everything the faulting instruction writes carries its unresolved
	// result
	if meta := o.m.CurMeta(); meta != nil {
		for _, op := range meta.All() {
			if op.Kind == models.OpReg && op.Dest {
				if canon, ok := o.m.Arch().Normalize(op.Value); ok {
					o.deps[canon] = true
				}
			}
		}
		for _, f := range meta.FlagsWrite {
			o.deps[f] = true
		}
	}

	next := o.m.NextAddr()
	if next >= o.m.Layout().CodeEnd() {
		return 0
	}
	return next
}

func (o *OOO) Instruction(addr uint64, size uint32) {
	if !o.m.Speculating() || len(o.deps) == 0 {
		return
	}
	// revisiting the faulting instruction must not re-seed its own taint
	if o.m.LastFault() == addr {
		return
	}
	meta := o.m.CurMeta()
	if meta == nil {
		return
	}
	src, dest, _ := classify(o.m.Arch(), meta)
	o.depSkip(src, dest, anyIn(o.deps, src))
}

// depSkip prunes freshly computed destinations from the dependency set and,
// when the instruction depends on the unresolved fault, suppresses it: the
// program counter moves past it and its destinations inherit the taint.
func (o *OOO) depSkip(src, dest []string, dependent bool) {
	for _, d := range dest {
		if !containsName(src, d) {
			delete(o.deps, d)
		}
	}
	if !dependent {
		return
	}
	for _, d := range dest {
		o.deps[d] = true
	}
	o.m.SetPC(o.m.NextAddr())
}

func (o *OOO) MemAccess(access int, addr uint64, size int, value int64) {}

// The dependency set rolls back with the checkpoint it was built under.

func (o *OOO) OnCheckpoint() {
	snap := make(map[string]bool, len(o.deps))
	for k := range o.deps {
		snap[k] = true
	}
	o.stack = append(o.stack, snap)
}

func (o *OOO) OnRollback() {
	if n := len(o.stack) - 1; n >= 0 {
		o.deps = o.stack[n]
		o.stack = o.stack[:n]
	}
}
