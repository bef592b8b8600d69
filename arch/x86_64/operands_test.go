package x86_64

import (
	"testing"

	"github.com/speculorn/speculorn/models"
)

func TestClassify(t *testing.T) {
	// add rax, qword ptr [rbx + rcx*2]
	ins := &models.Instruction{
		Name: "ADD",
		Operands: []models.Operand{
			{Kind: models.OpReg, Value: "RAX", Src: true, Dest: true, Width: 64},
			{Kind: models.OpMem, Value: "RBX + RCX*2", Src: true, Width: 64},
		},
		FlagsWrite: []string{"CF", "ZF", "SF", "OF"},
	}
	src, dest, dataSrc := classify(Arch, ins)

	for _, want := range []string{"A", "B", "C"} {
		if !containsName(src, want) {
			t.Errorf("src %v missing %s", src, want)
		}
	}
	if !containsName(dest, "A") || !containsName(dest, "ZF") {
		t.Errorf("dest %v missing A or ZF", dest)
	}
	if !containsName(dataSrc, "A") {
		t.Errorf("dataSrc %v missing A", dataSrc)
	}
	// address registers never carry the loaded value
	if containsName(dataSrc, "B") || containsName(dataSrc, "C") {
		t.Errorf("dataSrc %v should not contain address registers", dataSrc)
	}
}

func TestClassifyFlagsRead(t *testing.T) {
	// cmovz rax, rbx
	ins := &models.Instruction{
		Name: "CMOVZ",
		Operands: []models.Operand{
			{Kind: models.OpReg, Value: "RAX", Dest: true, Width: 64},
			{Kind: models.OpReg, Value: "RBX", Src: true, Width: 64},
		},
		FlagsRead: []string{"ZF"},
	}
	src, dest, dataSrc := classify(Arch, ins)
	if !containsName(src, "ZF") || !containsName(dataSrc, "ZF") {
		t.Errorf("flag read missing: src %v dataSrc %v", src, dataSrc)
	}
	if !containsName(src, "B") || !containsName(dest, "A") {
		t.Errorf("register roles wrong: src %v dest %v", src, dest)
	}
	if containsName(dest, "ZF") {
		t.Errorf("dest %v should not contain ZF", dest)
	}
}

func TestClassifySubRegisters(t *testing.T) {
	// mov al, byte ptr [r9]
	ins := &models.Instruction{
		Name: "MOV",
		Operands: []models.Operand{
			{Kind: models.OpReg, Value: "AL", Dest: true, Width: 8},
			{Kind: models.OpMem, Value: "R9", Src: true, Width: 8},
		},
	}
	src, dest, _ := classify(Arch, ins)
	if !containsName(dest, "A") {
		t.Errorf("dest %v: AL should normalize to A", dest)
	}
	if !containsName(src, "9") {
		t.Errorf("src %v: R9 should normalize to 9", src)
	}
}
