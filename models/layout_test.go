package models

import "testing"

func TestLayout(t *testing.T) {
	l := NewLayout(10)
	if l.CodeEnd() != l.CodeBase+10 {
		t.Errorf("CodeEnd() returned %#x, expecting %#x", l.CodeEnd(), l.CodeBase+10)
	}
	if l.CodeMapSize() != PageSize {
		t.Errorf("CodeMapSize() returned %#x, expecting one page", l.CodeMapSize())
	}
	if big := NewLayout(PageSize + 1); big.CodeMapSize() != 2*PageSize {
		t.Errorf("CodeMapSize() returned %#x, expecting two pages", big.CodeMapSize())
	}

	if l.LowerOverflowBase() != l.SandboxBase-OverflowSize {
		t.Errorf("LowerOverflowBase() returned %#x", l.LowerOverflowBase())
	}
	if l.FaultyBase() != l.SandboxBase+MainSize {
		t.Errorf("FaultyBase() returned %#x", l.FaultyBase())
	}
	if l.UpperOverflowBase() != l.FaultyBase()+FaultySize {
		t.Errorf("UpperOverflowBase() returned %#x", l.UpperOverflowBase())
	}
	if l.SandboxMapSize() != 4*PageSize {
		t.Errorf("SandboxMapSize() returned %#x, expecting four pages", l.SandboxMapSize())
	}
	if l.StackBase() != l.SandboxBase+MainSize-8 {
		t.Errorf("StackBase() returned %#x", l.StackBase())
	}
}

func TestInFaulty(t *testing.T) {
	l := NewLayout(0)
	for _, c := range []struct {
		addr uint64
		want bool
	}{
		{l.SandboxBase, false},
		{l.FaultyBase() - 1, false},
		{l.FaultyBase(), true},
		{l.FaultyBase() + FaultySize/2, true},
		{l.UpperOverflowBase() - 1, true},
		{l.UpperOverflowBase(), false},
	} {
		if got := l.InFaulty(c.addr); got != c.want {
			t.Errorf("InFaulty(%#x) returned %v, expecting %v", c.addr, got, c.want)
		}
	}
}
