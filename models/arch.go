package models

import (
	"sort"
	"strings"
	"testing"

	"github.com/lunixbochs/fvbommel-util/sortorder"

	"github.com/speculorn/speculorn/models/cpu"
)

type Reg struct {
	Enum    int
	Name    string
	Default bool
}

type RegVal struct {
	Reg
	Val uint64
}

type regList []Reg

func (r regList) Len() int           { return len(r) }
func (r regList) Swap(i, j int)      { r[i], r[j] = r[j], r[i] }
func (r regList) Less(i, j int) bool { return sortorder.NaturalLess(r[i].Name, r[j].Name) }

type Dis interface {
	Dis(mem []byte, addr uint64) ([]Ins, error)
}

type Asm interface {
	Asm(asm string, addr uint64) ([]byte, error)
}

// Arch describes one emulation target: how to build its CPU, its register
// file, and the pieces the speculation contracts need to reason about it.
type Arch struct {
	Name string
	Bits int

	Cpu cpu.Builder
	Dis Dis
	Asm Asm

	PC   int
	SP   int
	BP   int
	Regs map[string]int

	// registers worth showing in dumps
	DefaultRegs []string

	// registers seeded from an Input, in input order with flags last
	InputRegs []int

	// zeroed/reserved flag bits are masked on load
	FlagsReg  int
	FlagsMask uint64
	FlagsSet  uint64

	// register holding the sandbox base across a run
	SandboxReg int

	// canonical names for dependency and taint tracking, e.g. every width
	// of RAX maps to "A"
	Canon     map[string]string
	TaintRegs []string

	// target hooks
	LoadInput func(c cpu.Cpu, l *Layout, in *Input) error

	// sorted for RegDump
	regList regList
}

// RegID resolves a register name from instruction metadata to an emulator
// enum. Lookup is case-insensitive.
func (a *Arch) RegID(name string) (int, bool) {
	enum, ok := a.Regs[strings.ToLower(name)]
	return enum, ok
}

// Normalize maps any width of a register name onto its canonical tracking
// name. Names with no canonical form (immediates, labels) report false.
func (a *Arch) Normalize(name string) (string, bool) {
	canon, ok := a.Canon[strings.ToUpper(name)]
	return canon, ok
}

// LoadFlags masks a raw input word down to the writable flag bits.
func (a *Arch) LoadFlags(val uint64) uint64 {
	return (val & a.FlagsMask) | a.FlagsSet
}

func (a *Arch) SmokeTest(t *testing.T) {
	c, err := a.Cpu.New()
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := c.RegWrite(a.SP, 0x1000); err != nil {
		t.Fatal(err)
	}
	val, err := c.RegRead(a.SP)
	if err != nil {
		t.Fatal(err)
	}
	if val != 0x1000 {
		t.Fatal(a.Name + " failed to read/write stack pointer")
	}
}

func (a *Arch) RegDump(c cpu.Cpu) ([]RegVal, error) {
	if a.regList == nil {
		rl := make(regList, 0, len(a.Regs))
		for name, enum := range a.Regs {
			def := false
			for _, d := range a.DefaultRegs {
				if d == name {
					def = true
					break
				}
			}
			rl = append(rl, Reg{enum, name, def})
		}
		sort.Sort(rl)
		a.regList = rl
	}
	ret := make([]RegVal, len(a.regList))
	for i, r := range a.regList {
		val, err := c.RegRead(r.Enum)
		if err != nil {
			return nil, err
		}
		ret[i] = RegVal{r, val}
	}
	return ret, nil
}
