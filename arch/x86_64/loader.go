package x86_64

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/speculorn/speculorn/models"
	"github.com/speculorn/speculorn/models/cpu"
)

// LoadInput seeds the emulator with one concrete input: guard regions
// zeroed, sandbox image written, registers set (flags masked down to the
// writable bits), and every register value mirrored into the low bytes of
// the upper overflow region so a hardware run can start from the same state.
// The stack base lands after the register mirror, the stack and frame
// pointers point at it, and R14 anchors the sandbox base for the test case.
func LoadInput(c cpu.Cpu, l *models.Layout, in *models.Input) error {
	if len(in.Regs) != len(Arch.InputRegs) {
		return errors.Errorf("input has %d registers, want %d", len(in.Regs), len(Arch.InputRegs))
	}
	if len(in.Memory) != models.MainSize+models.FaultySize {
		return errors.Errorf("input memory image is %d bytes, want %d",
			len(in.Memory), models.MainSize+models.FaultySize)
	}

	zeros := make([]byte, models.OverflowSize)
	if err := c.MemWrite(l.LowerOverflowBase(), zeros); err != nil {
		return errors.Wrap(err, "MemWrite() failed")
	}
	if err := c.MemWrite(l.UpperOverflowBase(), zeros); err != nil {
		return errors.Wrap(err, "MemWrite() failed")
	}
	if err := c.MemWrite(l.SandboxBase, in.Memory); err != nil {
		return errors.Wrap(err, "MemWrite() failed")
	}

	var word [8]byte
	mirror := l.UpperOverflowBase()
	for i, enum := range Arch.InputRegs {
		val := in.Regs[i]
		if enum == Arch.FlagsReg {
			val = Arch.LoadFlags(val)
		}
		if err := c.RegWrite(enum, val); err != nil {
			return errors.Wrap(err, "RegWrite() failed")
		}
		binary.LittleEndian.PutUint64(word[:], val)
		if err := c.MemWrite(mirror, word[:]); err != nil {
			return errors.Wrap(err, "MemWrite() failed")
		}
		mirror += 8
	}
	binary.LittleEndian.PutUint64(word[:], l.StackBase())
	if err := c.MemWrite(mirror, word[:]); err != nil {
		return errors.Wrap(err, "MemWrite() failed")
	}

	if err := c.RegWrite(Arch.SP, l.StackBase()); err != nil {
		return errors.Wrap(err, "RegWrite() failed")
	}
	if err := c.RegWrite(Arch.BP, l.StackBase()); err != nil {
		return errors.Wrap(err, "RegWrite() failed")
	}
	return errors.Wrap(c.RegWrite(Arch.SandboxReg, l.SandboxBase), "RegWrite() failed")
}

var printRegs = []struct {
	name string
	enum int
}{
	{"RAX", uc.X86_REG_RAX},
	{"RBX", uc.X86_REG_RBX},
	{"RCX", uc.X86_REG_RCX},
	{"RDX", uc.X86_REG_RDX},
	{"RSI", uc.X86_REG_RSI},
	{"RDI", uc.X86_REG_RDI},
}

// rel prints addresses inside the sandbox or its guard regions as offsets
// from the sandbox base, which is how test cases think about them.
func rel(l *models.Layout, val uint64) string {
	base := l.SandboxBase
	if val >= base && val <= base+models.MainSize+models.FaultySize+models.OverflowSize {
		return fmt.Sprintf("+0x%-15x", val-base)
	}
	if val >= base-models.OverflowSize && val < base {
		return fmt.Sprintf("-0x%-15x", base-val)
	}
	return fmt.Sprintf("0x%-16x", val)
}

// PrintState dumps the six input registers and the flags, either as a block
// or as a compact two-line form for per-instruction logging.
func PrintState(w io.Writer, c cpu.Cpu, l *models.Layout, oneline bool) error {
	vals := make([]string, len(printRegs))
	for i, r := range printRegs {
		val, err := c.RegRead(r.enum)
		if err != nil {
			return errors.Wrap(err, "RegRead() failed")
		}
		vals[i] = rel(l, val)
	}
	flags, err := c.RegRead(uc.X86_REG_EFLAGS)
	if err != nil {
		return errors.Wrap(err, "RegRead() failed")
	}

	if !oneline {
		fmt.Fprintf(w, "\nRegisters:\n")
		for i, r := range printRegs {
			fmt.Fprintf(w, "%s: %s\n", r.name, vals[i])
		}
		fmt.Fprintf(w, "FLAGS: %012b\n", flags)
		return nil
	}
	fmt.Fprintf(w, "  rax=%s rbx=%s rcx=%s\n", vals[0], vals[1], vals[2])
	fmt.Fprintf(w, "  rdx=%s rsi=%s rdi=%s\n", vals[3], vals[4], vals[5])
	fmt.Fprintf(w, "  fl=%012b\n", flags)
	return nil
}
