package x86_64

import (
	"encoding/binary"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/speculorn/speculorn"
)

// EFLAGS bits the conditional jumps test.
const (
	flagCF = 0x001
	flagPF = 0x004
	flagAF = 0x010
	flagZF = 0x040
	flagSF = 0x080
	flagOF = 0x800
)

type branch struct {
	taken  func(flags, rcx uint64) bool
	isLoop bool
}

// shortJumps covers the single-byte conditional jumps (rel8) and the LOOP
// family. Conditions follow the SDM: each entry answers whether the branch
// is architecturally taken for the given flags and RCX.
var shortJumps = map[byte]branch{
	0x70: {func(f, r uint64) bool { return f&flagOF != 0 }, false},                    // JO
	0x71: {func(f, r uint64) bool { return f&flagOF == 0 }, false},                    // JNO
	0x72: {func(f, r uint64) bool { return f&flagCF != 0 }, false},                    // JB
	0x73: {func(f, r uint64) bool { return f&flagCF == 0 }, false},                    // JAE
	0x74: {func(f, r uint64) bool { return f&flagZF != 0 }, false},                    // JZ
	0x75: {func(f, r uint64) bool { return f&flagZF == 0 }, false},                    // JNZ
	0x76: {func(f, r uint64) bool { return f&flagCF != 0 || f&flagZF != 0 }, false},   // JBE
	0x77: {func(f, r uint64) bool { return f&flagCF == 0 && f&flagZF == 0 }, false},   // JA
	0x78: {func(f, r uint64) bool { return f&flagSF != 0 }, false},                    // JS
	0x79: {func(f, r uint64) bool { return f&flagSF == 0 }, false},                    // JNS
	0x7A: {func(f, r uint64) bool { return f&flagPF != 0 }, false},                    // JP
	0x7B: {func(f, r uint64) bool { return f&flagPF == 0 }, false},                    // JPO
	0x7C: {func(f, r uint64) bool { return (f&flagSF != 0) != (f&flagOF != 0) }, false}, // JL
	0x7D: {func(f, r uint64) bool { return (f&flagSF != 0) == (f&flagOF != 0) }, false}, // JGE
	0x7E: {func(f, r uint64) bool {
		return f&flagZF != 0 || (f&flagSF != 0) != (f&flagOF != 0)
	}, false}, // JLE
	0x7F: {func(f, r uint64) bool {
		return f&flagZF == 0 && (f&flagSF != 0) == (f&flagOF != 0)
	}, false}, // JG
	0xE0: {func(f, r uint64) bool { return r != 1 && f&flagZF == 0 }, true}, // LOOPNE
	0xE1: {func(f, r uint64) bool { return r != 1 && f&flagZF != 0 }, true}, // LOOPE
	0xE2: {func(f, r uint64) bool { return r != 1 }, true},                  // LOOP
	0xE3: {func(f, r uint64) bool { return r == 0 }, false},                 // JRCXZ
}

// longJumps covers the 0x0F-prefixed conditional jumps (rel32), keyed by the
// second opcode byte. Same conditions as the rel8 forms.
var longJumps = map[byte]branch{
	0x80: shortJumps[0x70],
	0x81: shortJumps[0x71],
	0x82: shortJumps[0x72],
	0x83: shortJumps[0x73],
	0x84: shortJumps[0x74],
	0x85: shortJumps[0x75],
	0x86: shortJumps[0x76],
	0x87: shortJumps[0x77],
	0x88: shortJumps[0x78],
	0x89: shortJumps[0x79],
	0x8A: shortJumps[0x7A],
	0x8B: shortJumps[0x7B],
	0x8C: shortJumps[0x7C],
	0x8D: shortJumps[0x7D],
	0x8E: shortJumps[0x7E],
	0x8F: shortJumps[0x7F],
}

// decodeBranch decodes a conditional jump: its signed displacement, whether
// it is architecturally taken, and whether it is a LOOP form. ok is false
// for anything that is not a conditional jump.
func decodeBranch(code []byte, flags, rcx uint64) (disp int64, taken, isLoop, ok bool) {
	if len(code) < 2 {
		return 0, false, false, false
	}
	if code[0] == 0x0f {
		b, found := longJumps[code[1]]
		if !found || len(code) < 6 {
			return 0, false, false, false
		}
		return int64(int32(binary.LittleEndian.Uint32(code[2:6]))), b.taken(flags, rcx), false, true
	}
	b, found := shortJumps[code[0]]
	if !found {
		return 0, false, false, false
	}
	return int64(int8(code[1])), b.taken(flags, rcx), b.isLoop, true
}

// Cond mispredicts every conditional branch: the checkpoint resumes at the
// architecturally correct target and execution is forced down the wrong one.
type Cond struct {
	m *speculorn.Model
}

func NewCond(m *speculorn.Model) *Cond { return &Cond{m: m} }

func (c *Cond) Name() string       { return "cond" }
func (c *Cond) RequiresMeta() bool { return false }
func (c *Cond) Reset()             {}

func (c *Cond) Instruction(addr uint64, size uint32) {
	if c.m.Depth() >= c.m.Config().Nesting {
		return
	}
	// the emulator reports a huge size for undecodable bytes
	if size > 15 {
		return
	}
	code, err := c.m.Cpu().MemRead(addr, uint64(size))
	if err != nil {
		return
	}
	flags, err := c.m.Cpu().RegRead(uc.X86_REG_EFLAGS)
	if err != nil {
		return
	}
	rcx, err := c.m.Cpu().RegRead(uc.X86_REG_RCX)
	if err != nil {
		return
	}
	disp, taken, isLoop, ok := decodeBranch(code, flags, rcx)
	if !ok || disp == 0 {
		return
	}

	// LOOP decrements RCX whether or not it jumps
	if isLoop {
		if err := c.m.Cpu().RegWrite(uc.X86_REG_RCX, rcx-1); err != nil {
			return
		}
	}

	fallthru := addr + uint64(size)
	target := fallthru + uint64(disp)
	correct, wrong := fallthru, target
	if taken {
		correct, wrong = target, fallthru
	}
	if err := c.m.Checkpoint(correct); err != nil {
		return
	}
	c.m.SetPC(wrong)
}

func (c *Cond) MemAccess(access int, addr uint64, size int, value int64) {}

func (c *Cond) Fault(errno int) uint64 { return 0 }

// CondBpas runs the branch contract and the store-bypass contract together:
// both kinds of speculation can nest inside each other.
type CondBpas struct {
	cond *Cond
	bpas *speculorn.Bypass
}

func NewCondBpas(m *speculorn.Model) *CondBpas {
	return &CondBpas{cond: NewCond(m), bpas: speculorn.NewBypass(m)}
}

func (c *CondBpas) Name() string       { return "cond-bpas" }
func (c *CondBpas) RequiresMeta() bool { return false }

func (c *CondBpas) Reset() {
	c.cond.Reset()
	c.bpas.Reset()
}

func (c *CondBpas) Instruction(addr uint64, size uint32) {
	c.cond.Instruction(addr, size)
	c.bpas.Instruction(addr, size)
}

func (c *CondBpas) MemAccess(access int, addr uint64, size int, value int64) {
	c.bpas.MemAccess(access, addr, size, value)
}

func (c *CondBpas) Fault(errno int) uint64 { return 0 }
