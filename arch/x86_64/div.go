package x86_64

import (
	"encoding/binary"
	"math/bits"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/speculorn/speculorn"
	"github.com/speculorn/speculorn/models"
)

// DivOverflow refines the out-of-order contract for unsigned division: a
// quotient too wide for its destination faults architecturally, but the
// divider unit has already produced the truncated result, and this contract
// assumes it is forwarded speculatively. Genuine divide-by-zero and every
// non-divide fault fall back to plain out-of-order handling.
type DivOverflow struct {
	*OOO
	divisor uint64
}

func NewDivOverflow(m *speculorn.Model) *DivOverflow {
	return &DivOverflow{OOO: NewOOO(m)}
}

func (d *DivOverflow) Name() string { return "div-overflow" }

func (d *DivOverflow) Reset() {
	d.OOO.Reset()
	d.divisor = 0
}

// MemAccess captures the value of every access: if the divide's divisor is
// a memory operand, the emulator's fault context no longer exposes it, so
// the last value read before the fault is the one.
func (d *DivOverflow) MemAccess(access int, addr uint64, size int, value int64) {
	if data, err := d.m.Cpu().MemRead(addr, uint64(size)); err == nil {
		d.divisor = leUint64(data)
	}
}

func (d *DivOverflow) Fault(errno int) uint64 {
	meta := d.m.CurMeta()
	if meta == nil || (meta.Name != "DIV" && meta.Name != "IDIV") {
		return d.OOO.Fault(errno)
	}
	if d.m.Depth() >= d.m.Config().Nesting {
		return 0
	}
	if len(meta.Operands) == 0 {
		return d.OOO.Fault(errno)
	}

	op := meta.Operands[0]
	var value uint64
	switch op.Kind {
	case models.OpReg:
		enum, ok := d.m.Arch().RegID(op.Value)
		if !ok {
			return d.OOO.Fault(errno)
		}
		v, err := d.m.Cpu().RegRead(enum)
		if err != nil {
			return 0
		}
		value = v
	case models.OpMem:
		value = d.divisor
	default:
		return d.OOO.Fault(errno)
	}

	// a zero divisor is an ordinary terminal fault, not an overflow
	if value == 0 {
		return d.OOO.Fault(errno)
	}

	if err := d.m.Checkpoint(d.m.Layout().CodeEnd()); err != nil {
		return 0
	}

	if meta.Name == "IDIV" {
		// signed overflow semantics are not modeled; an invented result
		// would corrupt the speculative search
		panic("div-overflow: IDIV overflow synthesis unimplemented")
	}

	c := d.m.Cpu()
	switch op.Width {
	case 64:
		lo, err1 := c.RegRead(uc.X86_REG_RAX)
		hi, err2 := c.RegRead(uc.X86_REG_RDX)
		if err1 != nil || err2 != nil {
			return 0
		}
		q, r := divWide(hi, lo, value, 64)
		c.RegWrite(uc.X86_REG_RAX, q)
		c.RegWrite(uc.X86_REG_RDX, r)
	case 32:
		lo, err1 := c.RegRead(uc.X86_REG_EAX)
		hi, err2 := c.RegRead(uc.X86_REG_EDX)
		if err1 != nil || err2 != nil {
			return 0
		}
		q, r := divWide(hi, lo, value, 32)
		c.RegWrite(uc.X86_REG_EAX, q)
		c.RegWrite(uc.X86_REG_EDX, r)
	case 16:
		lo, err1 := c.RegRead(uc.X86_REG_AX)
		hi, err2 := c.RegRead(uc.X86_REG_DX)
		if err1 != nil || err2 != nil {
			return 0
		}
		q, r := divWide(hi, lo, value, 16)
		c.RegWrite(uc.X86_REG_AX, q)
		c.RegWrite(uc.X86_REG_DX, r)
	case 8:
		ax, err := c.RegRead(uc.X86_REG_AX)
		if err != nil {
			return 0
		}
		q, r := divWide(ax>>8, ax&0xff, value, 8)
		c.RegWrite(uc.X86_REG_AL, q)
		c.RegWrite(uc.X86_REG_AH, r)
	default:
		return 0
	}
	return d.m.NextAddr()
}

// divWide is the division DIV would have performed: the dividend is hi:lo at
// twice the operand width, the quotient truncates modulo 2^width, the
// remainder is exact. value must be nonzero.
func divWide(hi, lo, value uint64, width int) (q, r uint64) {
	if width == 64 {
		// hi%value keeps Div64 from panicking on quotient overflow and
		// leaves the quotient unchanged modulo 2^64
		return bits.Div64(hi%value, lo, value)
	}
	shift := uint(width)
	dividend := hi<<shift | lo
	return (dividend / value) & (1<<shift - 1), dividend % value
}

func leUint64(p []byte) uint64 {
	var tmp [8]byte
	copy(tmp[:], p)
	return binary.LittleEndian.Uint64(tmp[:])
}
