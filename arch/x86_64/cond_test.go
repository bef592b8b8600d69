package x86_64

import (
	"testing"
)

type branchCase struct {
	name  string
	code  []byte
	flags uint64
	rcx   uint64

	disp   int64
	taken  bool
	isLoop bool
	ok     bool
}

var branchCases = []branchCase{
	{"jz taken", []byte{0x74, 0x10}, flagZF, 0, 0x10, true, false, true},
	{"jz not taken", []byte{0x74, 0x10}, 0, 0, 0x10, false, false, true},
	{"jnz backward", []byte{0x75, 0xf0}, 0, 0, -16, true, false, true},
	{"jbe on cf", []byte{0x76, 0x05}, flagCF, 0, 5, true, false, true},
	{"ja needs neither", []byte{0x77, 0x05}, flagCF, 0, 5, false, false, true},
	{"jl sf differs of", []byte{0x7c, 0x02}, flagSF, 0, 2, true, false, true},
	{"jl sf matches of", []byte{0x7c, 0x02}, flagSF | flagOF, 0, 2, false, false, true},
	{"jg", []byte{0x7f, 0x02}, 0, 0, 2, true, false, true},
	{"jg blocked by zf", []byte{0x7f, 0x02}, flagZF, 0, 2, false, false, true},
	{"jz rel32 backward", []byte{0x0f, 0x84, 0xf6, 0xff, 0xff, 0xff}, flagZF, 0, -10, true, false, true},
	{"jns rel32 forward", []byte{0x0f, 0x89, 0x00, 0x01, 0x00, 0x00}, 0, 0, 256, true, false, true},
	{"loop counts down", []byte{0xe2, 0xfe}, 0, 2, -2, true, true, true},
	{"loop stops at one", []byte{0xe2, 0xfe}, flagZF, 1, -2, false, true, true},
	{"loope needs zf", []byte{0xe1, 0xfe}, 0, 5, -2, false, true, true},
	{"loopne on nz", []byte{0xe0, 0xfe}, 0, 5, -2, true, true, true},
	{"jrcxz on zero", []byte{0xe3, 0x08}, 0, 0, 8, true, false, true},
	{"jrcxz nonzero", []byte{0xe3, 0x08}, 0, 7, 8, false, false, true},
	{"not a branch", []byte{0x90, 0x90}, 0, 0, 0, false, false, false},
	{"rel32 truncated", []byte{0x0f, 0x84, 0x00}, flagZF, 0, 0, false, false, false},
	{"too short", []byte{0x74}, flagZF, 0, 0, false, false, false},
}

func TestDecodeBranch(t *testing.T) {
	for _, c := range branchCases {
		disp, taken, isLoop, ok := decodeBranch(c.code, c.flags, c.rcx)
		if ok != c.ok {
			t.Errorf("%s: ok = %v, expecting %v", c.name, ok, c.ok)
			continue
		}
		if !ok {
			continue
		}
		if disp != c.disp {
			t.Errorf("%s: disp = %d, expecting %d", c.name, disp, c.disp)
		}
		if taken != c.taken {
			t.Errorf("%s: taken = %v, expecting %v", c.name, taken, c.taken)
		}
		if isLoop != c.isLoop {
			t.Errorf("%s: isLoop = %v, expecting %v", c.name, isLoop, c.isLoop)
		}
	}
}
