package speculorn

import (
	"sort"
	"strings"

	"github.com/speculorn/speculorn/models"
	"github.com/speculorn/speculorn/models/cpu"
)

// intSet tracks input element indices.
type intSet map[int]bool

func (s intSet) add(other intSet) {
	for k := range other {
		s[k] = true
	}
}

func (s intSet) clone() intSet {
	out := make(intSet, len(s))
	for k := range s {
		out[k] = true
	}
	return out
}

// TaintTracker follows which input elements influence the observations a
// tracer would make. Input elements are numbered as the Input lays them out:
// 8-byte memory cells of the main and faulty regions first, then the
// registers in input order. The register mirror in the upper overflow region
// aliases the register elements, so loads from it resolve naturally.
//
// Dependency state rolls back with the speculation checkpoints, but the
// leaked set survives: a transiently leaked element stays leaked.
type TaintTracker struct {
	arch   *models.Arch
	layout *models.Layout
	mode   string

	memCells int
	regIndex map[string]int
	flagsIdx int

	// label -> input elements it currently carries; labels are canonical
	// register names, flag names, or cell indices
	regDeps  map[string]intSet
	cellDeps map[int]intSet

	leaked intSet

	// scratch for the instruction in flight
	cur       *models.Instruction
	srcRegs   []string
	destRegs  []string
	srcFlags  []string
	destFlags []string
	srcCells  []int
	destCells []int
	addrRegs  []string

	pendRegs  []string
	pendCells []int

	snaps []taintSnap
}

type taintSnap struct {
	regDeps  map[string]intSet
	cellDeps map[int]intSet
}

func NewTaintTracker(arch *models.Arch, layout *models.Layout, mode string) *TaintTracker {
	t := &TaintTracker{
		arch:     arch,
		layout:   layout,
		mode:     mode,
		memCells: (models.MainSize + models.FaultySize) / 8,
		regIndex: make(map[string]int, len(arch.TaintRegs)),
	}
	for i, name := range arch.TaintRegs {
		t.regIndex[name] = t.memCells + i
	}
	t.flagsIdx = t.memCells + len(arch.TaintRegs) - 1
	t.Reset()
	return t
}

func (t *TaintTracker) Reset() {
	t.regDeps = make(map[string]intSet)
	t.cellDeps = make(map[int]intSet)
	t.leaked = make(intSet)
	t.cur = nil
	t.snaps = t.snaps[:0]
}

// Instruction finalizes the previous instruction and classifies the next
// one's operands. A nil instruction only finalizes.
func (t *TaintTracker) Instruction(ins *models.Instruction) {
	if t.cur != nil {
		t.finalize()
	}
	t.cur = ins
	t.srcRegs = t.srcRegs[:0]
	t.destRegs = t.destRegs[:0]
	t.srcFlags = t.srcFlags[:0]
	t.destFlags = t.destFlags[:0]
	t.srcCells = t.srcCells[:0]
	t.destCells = t.destCells[:0]
	t.addrRegs = t.addrRegs[:0]
	t.pendRegs = t.pendRegs[:0]
	t.pendCells = t.pendCells[:0]
	if ins == nil {
		return
	}

	for _, op := range ins.All() {
		switch op.Kind {
		case models.OpReg:
			canon, ok := t.arch.Normalize(op.Value)
			if !ok {
				continue
			}
			if op.Src {
				t.srcRegs = append(t.srcRegs, canon)
			}
			if op.Dest {
				t.destRegs = append(t.destRegs, canon)
			}
		case models.OpMem:
			for _, tok := range SplitAddress(op.Value) {
				if canon, ok := t.arch.Normalize(tok); ok {
					t.addrRegs = append(t.addrRegs, canon)
				}
			}
		}
	}
	// undefined flags count as read: their post-instruction value may
	// depend on anything the instruction saw
	t.srcFlags = append(t.srcFlags, ins.FlagsRead...)
	t.srcFlags = append(t.srcFlags, ins.FlagsUndef...)
	t.destFlags = append(t.destFlags, ins.FlagsWrite...)

	// a control flow decision exposes its inputs through the program counter
	if ins.ControlFlow && t.mode != "mem" {
		t.pendRegs = append(t.pendRegs, t.srcRegs...)
		t.pendRegs = append(t.pendRegs, t.srcFlags...)
	}
}

// MemAccess resolves a concrete access into input cells and marks the
// address registers as exposed. Loads expose the loaded cells too under the
// arch clause.
func (t *TaintTracker) MemAccess(access int, addr uint64, size int) {
	first, last, ok := t.cellRange(addr, size)
	if ok {
		for c := first; c <= last; c++ {
			if access == cpu.MEM_WRITE {
				t.destCells = append(t.destCells, c)
			} else {
				t.srcCells = append(t.srcCells, c)
			}
		}
	}
	t.pendRegs = append(t.pendRegs, t.addrRegs...)
	if access != cpu.MEM_WRITE && t.mode == "arch" && ok {
		for c := first; c <= last; c++ {
			t.pendCells = append(t.pendCells, c)
		}
	}
}

// Finish flushes the trailing instruction at the end of a run.
func (t *TaintTracker) Finish() {
	if t.cur != nil {
		t.finalize()
		t.cur = nil
	}
}

func (t *TaintTracker) Checkpoint() {
	if t.cur != nil {
		t.finalize()
		t.cur = nil
	}
	snap := taintSnap{
		regDeps:  make(map[string]intSet, len(t.regDeps)),
		cellDeps: make(map[int]intSet, len(t.cellDeps)),
	}
	for k, v := range t.regDeps {
		snap.regDeps[k] = v.clone()
	}
	for k, v := range t.cellDeps {
		snap.cellDeps[k] = v.clone()
	}
	t.snaps = append(t.snaps, snap)
}

func (t *TaintTracker) Rollback() {
	n := len(t.snaps) - 1
	if n < 0 {
		return
	}
	snap := t.snaps[n]
	t.snaps = t.snaps[:n]
	t.regDeps = snap.regDeps
	t.cellDeps = snap.cellDeps
	t.cur = nil
}

// Leaks lists the leaked input elements in order.
func (t *TaintTracker) Leaks() []int {
	out := make([]int, 0, len(t.leaked))
	for k := range t.leaked {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// finalize propagates source labels to destinations, then resolves what this
// instruction exposed into the leaked set.
func (t *TaintTracker) finalize() {
	src := make(intSet)
	for _, r := range t.srcRegs {
		src.add(t.regLabel(r))
	}
	for _, f := range t.srcFlags {
		src.add(t.regLabel(f))
	}
	for _, c := range t.srcCells {
		src.add(t.cellLabel(c))
	}

	for _, r := range t.destRegs {
		t.regDeps[r] = src.clone()
	}
	for _, f := range t.destFlags {
		t.regDeps[f] = src.clone()
	}
	for _, c := range t.destCells {
		t.cellDeps[c] = src.clone()
	}

	for _, r := range t.pendRegs {
		t.leaked.add(t.regLabel(r))
	}
	for _, c := range t.pendCells {
		t.leaked.add(t.cellLabel(c))
	}
}

// regLabel resolves a canonical register or flag name to input elements.
// Untouched registers carry their own input element; untouched flags carry
// the flags register's.
func (t *TaintTracker) regLabel(name string) intSet {
	if deps, ok := t.regDeps[name]; ok {
		return deps
	}
	if idx, ok := t.regIndex[name]; ok {
		return intSet{idx: true}
	}
	if isFlagName(name) {
		return intSet{t.flagsIdx: true}
	}
	return nil
}

func (t *TaintTracker) cellLabel(c int) intSet {
	if deps, ok := t.cellDeps[c]; ok {
		return deps
	}
	return intSet{c: true}
}

// cellRange maps an access onto input element indices. Accesses to the
// register mirror resolve to register elements; anything else outside the
// input image has no label.
func (t *TaintTracker) cellRange(addr uint64, size int) (int, int, bool) {
	base := t.layout.SandboxBase
	limit := uint64(t.memCells+len(t.arch.TaintRegs)) * 8
	if addr < base || addr-base >= limit {
		return 0, 0, false
	}
	first := int((addr - base) / 8)
	last := int((addr - base + uint64(size) - 1) / 8)
	max := t.memCells + len(t.arch.TaintRegs) - 1
	if last > max {
		last = max
	}
	return first, last, true
}

// SplitAddress tokenizes a memory operand expression such as
// "R14 + RAX * 2" into its terms.
func SplitAddress(expr string) []string {
	return strings.FieldsFunc(expr, func(r rune) bool {
		return r == '+' || r == '-' || r == '*' || r == ' '
	})
}

func isFlagName(name string) bool {
	switch name {
	case "CF", "PF", "AF", "ZF", "SF", "TF", "IF", "DF", "OF":
		return true
	}
	return false
}
