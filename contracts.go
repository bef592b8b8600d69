package speculorn

import (
	"encoding/binary"

	"github.com/speculorn/speculorn/models/cpu"
)

// Seq is the in-order contract: every instruction commits architecturally,
// any fault ends the run. It is the baseline the speculative contracts are
// compared against.
type Seq struct{}

func NewSeq() *Seq { return &Seq{} }

func (s *Seq) Name() string                            { return "seq" }
func (s *Seq) Reset()                                  {}
func (s *Seq) Instruction(addr uint64, size uint32)    {}
func (s *Seq) MemAccess(_ int, _ uint64, _ int, _ int64) {}
func (s *Seq) Fault(errno int) uint64                  { return 0 }
func (s *Seq) RequiresMeta() bool                      { return false }

// Bypass models memory disambiguation misses: a younger load may execute
// before an older store to the same address has been resolved, observing the
// cell's previous contents. The emulator has no post-instruction hook, so
// the store is recorded when its write fires and the speculative leg starts
// at the next instruction fetch: checkpoint there (store committed), then
// rewrite the cell back to its pre-store bytes and run ahead.
type Bypass struct {
	m *Model

	pending bool
	stAddr  uint64
	stSize  int
	stOrig  []byte
	stValue uint64
}

func NewBypass(m *Model) *Bypass { return &Bypass{m: m} }

func (b *Bypass) Name() string       { return "bpas" }
func (b *Bypass) RequiresMeta() bool { return false }

func (b *Bypass) Reset() {
	b.pending = false
}

func (b *Bypass) MemAccess(access int, addr uint64, size int, value int64) {
	if access != cpu.MEM_WRITE {
		return
	}
	if b.m.Depth() >= b.m.Config().Nesting {
		return
	}
	orig, err := b.m.Cpu().MemRead(addr, uint64(size))
	if err != nil {
		return
	}
	b.pending = true
	b.stAddr = addr
	b.stSize = size
	b.stOrig = orig
	b.stValue = uint64(value) & sizeMask(size)
}

func (b *Bypass) Instruction(addr uint64, size uint32) {
	if !b.pending {
		return
	}
	b.pending = false

	if err := b.m.Checkpoint(addr); err != nil {
		b.m.hookErr(err)
		return
	}
	// redo entry: rollback must leave the store committed
	redo := make([]byte, b.stSize)
	putLe(redo, b.stValue)
	b.m.LogStore(b.stAddr, redo)

	// hide the store from the speculative leg
	if err := b.m.Cpu().MemWrite(b.stAddr, b.stOrig); err != nil {
		b.m.hookErr(err)
	}
}

func (b *Bypass) Fault(errno int) uint64 { return 0 }

func putLe(p []byte, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	copy(p, tmp[:])
}
