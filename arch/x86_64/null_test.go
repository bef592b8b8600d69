package x86_64

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/speculorn/speculorn/models"
	"github.com/speculorn/speculorn/models/cpu"
)

// loadStore reads the first faulty region cell into rax, then stores rax to
// the base of the main region: a leak gadget for the fault contracts.
var loadStore = []byte{
	0x49, 0x8b, 0x86, 0x00, 0x10, 0x00, 0x00, // mov rax, [r14+0x1000]
	0x49, 0x89, 0x06, // mov [r14], rax
}

func secretInput() (*models.Input, uint64) {
	in := flatInput()
	secret := uint64(0x1122334455667788)
	binary.LittleEndian.PutUint64(in.Memory[models.MainSize:], secret)
	in.Regs[0] = 0xabc
	return in, secret
}

// The faulting load speculatively returns zero, the dependent store exposes
// the zero, and after rollback the committed path reads the real value.
func TestNullInjection(t *testing.T) {
	in, secret := secretInput()
	m, res := runContract(t, "null", &models.TestCase{Name: "null", Code: loadStore}, in)

	checkOps(t, res.Records, []string{
		"fetch@0x100000",
		"fault@0x100000 errno=13",
		"fetch@0x100000",
		"read@0x201000=0x1122334455667788",
		"fetch@0x100007",
		"write@0x200000=0x0",
		"rollback@0x100000",
		"fetch@0x100000",
		"read@0x201000=0x1122334455667788",
		"fetch@0x100007",
		"write@0x200000=0x1122334455667788",
	})

	if rax, _ := m.Cpu().RegRead(Arch.Regs["rax"]); rax != secret {
		t.Errorf("rax is %#x, expecting the committed load to read %#x", rax, secret)
	}
	got, err := m.Cpu().MemRead(m.Layout().FaultyBase(), 8)
	if err != nil {
		t.Fatal(err)
	}
	want := make([]byte, 8)
	binary.LittleEndian.PutUint64(want, secret)
	if !bytes.Equal(got, want) {
		t.Errorf("faulty region holds %x after the run, expecting the injected zeros undone", got)
	}
}

// The terminal variant rolls back to program end: the load never commits.
func TestNullFaultTerminal(t *testing.T) {
	in, _ := secretInput()
	m, res := runContract(t, "null-fault", &models.TestCase{Name: "nullf", Code: loadStore}, in)

	checkOps(t, res.Records, []string{
		"fetch@0x100000",
		"fault@0x100000 errno=13",
		"fetch@0x100000",
		"read@0x201000=0x1122334455667788",
		"fetch@0x100007",
		"write@0x200000=0x0",
		"rollback@0x10000a",
	})

	if rax, _ := m.Cpu().RegRead(Arch.Regs["rax"]); rax != 0xabc {
		t.Errorf("rax is %#x, expecting the input value to survive a terminal fault", rax)
	}
	got, _ := m.Cpu().MemRead(m.Layout().SandboxBase, 8)
	if !bytes.Equal(got, make([]byte, 8)) {
		t.Errorf("main region holds %x, expecting the speculative store squashed", got)
	}
}

func TestNullFaultFilter(t *testing.T) {
	n := NewNull(nil)
	if n.Name() != "null" || NewNullFault(nil).Name() != "null-fault" {
		t.Error("contract names are wrong")
	}
	if resume := n.Fault(cpu.FAULT_READ_UNMAPPED); resume != 0 {
		t.Errorf("Fault(6) returned %#x, only protection faults speculate", resume)
	}
	if n.pending {
		t.Error("a filtered fault should not arm injection")
	}
}
