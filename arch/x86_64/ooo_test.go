package x86_64

import (
	"bytes"
	"testing"

	"github.com/speculorn/speculorn/models"
)

// Past the fault, the store of the unresolved load result is held back while
// the independent store still executes; the whole leg squashes at the end.
func TestOOOSuppressesDependents(t *testing.T) {
	tc := &models.TestCase{
		Name: "ooo",
		Code: []byte{
			0x49, 0x8b, 0x86, 0x00, 0x10, 0x00, 0x00, // mov rax, [r14+0x1000]
			0x49, 0x89, 0x46, 0x08, // mov [r14+8], rax
			0x49, 0x89, 0x4e, 0x10, // mov [r14+16], rcx
		},
		Meta: map[uint64]*models.Instruction{
			0: {Name: "MOV", Offset: 0, Operands: []models.Operand{
				{Kind: models.OpReg, Value: "RAX", Dest: true, Width: 64},
				{Kind: models.OpMem, Value: "R14 + 0x1000", Src: true, Width: 64},
			}},
			7: {Name: "MOV", Offset: 7, Operands: []models.Operand{
				{Kind: models.OpMem, Value: "R14 + 0x8", Dest: true, Width: 64},
				{Kind: models.OpReg, Value: "RAX", Src: true, Width: 64},
			}},
			11: {Name: "MOV", Offset: 11, Operands: []models.Operand{
				{Kind: models.OpMem, Value: "R14 + 0x10", Dest: true, Width: 64},
				{Kind: models.OpReg, Value: "RCX", Src: true, Width: 64},
			}},
		},
	}
	in, _ := secretInput()
	in.Regs[2] = 0x42

	m, res := runContract(t, "ooo", tc, in)

	checkOps(t, res.Records, []string{
		"fetch@0x100000",
		"fault@0x100000 errno=13",
		"fetch@0x100007",
		"fetch@0x10000b",
		"write@0x200010=0x42",
		"rollback@0x10000f",
	})

	zero := make([]byte, 8)
	if got, _ := m.Cpu().MemRead(m.Layout().SandboxBase+0x10, 8); !bytes.Equal(got, zero) {
		t.Errorf("independent store left %x committed, expecting the squash to undo it", got)
	}
	if got, _ := m.Cpu().MemRead(m.Layout().SandboxBase+0x8, 8); !bytes.Equal(got, zero) {
		t.Errorf("dependent store left %x, expecting it suppressed entirely", got)
	}
}

func TestDepSkipPruning(t *testing.T) {
	o := &OOO{deps: map[string]bool{"A": true, "B": true}}

	// an independent instruction overwriting B resolves it
	o.depSkip([]string{"C"}, []string{"B"}, false)
	if o.deps["B"] || !o.deps["A"] {
		t.Errorf("deps are %v, expecting the overwritten B pruned", o.deps)
	}

	// read-modify-write keeps the taint
	o.deps["B"] = true
	o.depSkip([]string{"B"}, []string{"B"}, false)
	if !o.deps["B"] {
		t.Error("a destination that is also a source should stay tainted")
	}
}
