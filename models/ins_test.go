package models

import "testing"

func TestInstructionAll(t *testing.T) {
	ins := &Instruction{
		Operands: []Operand{{Kind: OpReg, Value: "RAX", Dest: true}},
		Implicit: []Operand{{Kind: OpReg, Value: "RCX", Src: true}},
	}
	all := ins.All()
	if len(all) != 2 || all[1].Value != "RCX" {
		t.Errorf("All() returned %v, expecting both operand lists", all)
	}

	bare := &Instruction{Operands: []Operand{{Kind: OpReg, Value: "RAX"}}}
	if &bare.All()[0] != &bare.Operands[0] {
		t.Error("All() should reuse the explicit slice when nothing is implicit")
	}
}
