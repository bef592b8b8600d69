package x86_64

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/speculorn/speculorn"
	"github.com/speculorn/speculorn/models"
	"github.com/speculorn/speculorn/models/trace"
)

// runContract executes one hand-assembled test case end to end on a real
// emulator and returns the model plus its observation trace. The arch clause
// is used so record values can be asserted too.
func runContract(t *testing.T, name string, tc *models.TestCase, in *models.Input) (*speculorn.Model, *models.Result) {
	t.Helper()
	m, err := New(name, &models.Config{Tracer: "arch"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	if err := m.LoadTestCase(tc); err != nil {
		t.Fatal(err)
	}
	res, err := m.Run(in)
	if err != nil {
		t.Fatal(err)
	}
	return m, res
}

func flatInput() *models.Input {
	return &models.Input{
		Memory: make([]byte, models.MainSize+models.FaultySize),
		Regs:   make([]uint64, models.NumInputRegs),
	}
}

func opString(op models.Op) string {
	switch o := op.(type) {
	case *trace.OpFetch:
		return fmt.Sprintf("fetch@%#x", o.Addr)
	case *trace.OpMemRead:
		return fmt.Sprintf("read@%#x=%#x", o.Addr, o.Value)
	case *trace.OpMemWrite:
		return fmt.Sprintf("write@%#x=%#x", o.Addr, o.Value)
	case *trace.OpFault:
		return fmt.Sprintf("fault@%#x errno=%d", o.Addr, o.Errno)
	case *trace.OpRollback:
		return fmt.Sprintf("rollback@%#x", o.Addr)
	}
	return "?"
}

func checkOps(t *testing.T, got []models.Op, want []string) {
	t.Helper()
	all := make([]string, len(got))
	for i, op := range got {
		all[i] = opString(op)
	}
	if len(all) != len(want) {
		t.Fatalf("trace has %d records, expecting %d:\n%v", len(all), len(want), all)
	}
	for i := range all {
		if all[i] != want[i] {
			t.Errorf("record %d is %s, expecting %s", i, all[i], want[i])
		}
	}
}

// A taken JZ is forced down the fall-through path: its store shows up in the
// trace, gets squashed, and only the taken path's store commits.
func TestCondMisprediction(t *testing.T) {
	code := []byte{
		0x74, 0x04, // jz +4
		0x41, 0xc6, 0x06, 0x01, // mov byte [r14], 1
		0x41, 0xc6, 0x46, 0x01, 0x02, // mov byte [r14+1], 2
	}
	in := flatInput()
	in.Memory[0] = 0xaa
	in.Memory[1] = 0xbb
	in.Regs[6] = flagZF

	m, res := runContract(t, "cond", &models.TestCase{Name: "jz", Code: code}, in)

	checkOps(t, res.Records, []string{
		"fetch@0x100000",
		"fetch@0x100002",
		"write@0x200000=0x1",
		"fetch@0x100006",
		"write@0x200001=0x2",
		"rollback@0x100006",
		"fetch@0x100006",
		"write@0x200001=0x2",
	})

	got, err := m.Cpu().MemRead(m.Layout().SandboxBase, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{0xaa, 0x02}) {
		t.Errorf("memory after the run is %x, expecting the speculative store squashed and the taken path committed", got)
	}
}

// LOOP's count decrement is architectural: it survives the rollback of the
// mispredicted leg.
func TestLoopDecrement(t *testing.T) {
	m, err := speculorn.NewModel(Arch, &models.Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	cond := NewCond(m)
	m.SetContract(cond)
	if err := m.LoadTestCase(&models.TestCase{Name: "loop", Code: []byte{0xe2, 0xfe}}); err != nil {
		t.Fatal(err)
	}

	base := m.Layout().CodeBase
	rcx := Arch.Regs["rcx"]
	if err := m.Cpu().RegWrite(rcx, 1); err != nil {
		t.Fatal(err)
	}
	cond.Instruction(base, 2)

	if val, _ := m.Cpu().RegRead(rcx); val != 0 {
		t.Errorf("rcx is %d after LOOP, expecting the decrement to 0", val)
	}
	if m.Depth() != 1 {
		t.Fatalf("Depth() returned %d, expecting the mispredicted leg to be live", m.Depth())
	}
	if pc, _ := m.Cpu().RegRead(Arch.PC); pc != base {
		t.Errorf("pc is %#x, expecting the wrong (taken) target %#x", pc, base)
	}

	resume, err := m.Rollback()
	if err != nil {
		t.Fatal(err)
	}
	if resume != base+2 {
		t.Errorf("Rollback() returned %#x, expecting the fall-through %#x", resume, base+2)
	}
	if val, _ := m.Cpu().RegRead(rcx); val != 0 {
		t.Errorf("rcx rolled back to %d, the decrement should stick", val)
	}

	// a zero displacement is not worth mispredicting
	if err := m.LoadTestCase(&models.TestCase{Name: "jz0", Code: []byte{0x74, 0x00}}); err != nil {
		t.Fatal(err)
	}
	cond.Instruction(m.Layout().CodeBase, 2)
	if m.Depth() != 0 {
		t.Errorf("Depth() returned %d, expecting no leg for a zero displacement", m.Depth())
	}
}
