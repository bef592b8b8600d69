package speculorn

import (
	"github.com/pkg/errors"

	"github.com/speculorn/speculorn/models"
	"github.com/speculorn/speculorn/models/trace"
)

// Tracer reduces execution to attacker observations. Which fields survive
// depends on the leakage clause:
//
//	ct    program counter and memory access addresses
//	arch  ct plus the values loaded and stored
//	mem   memory access addresses only
//
// Faults and rollbacks are part of every clause; both are architecturally
// visible events (timing, signals) under all assumptions modeled here.
type Tracer struct {
	name   string
	pc     bool
	values bool

	ops []models.Op
}

func NewTracer(name string) (*Tracer, error) {
	switch name {
	case "ct":
		return &Tracer{name: name, pc: true}, nil
	case "arch":
		return &Tracer{name: name, pc: true, values: true}, nil
	case "mem":
		return &Tracer{name: name}, nil
	}
	return nil, errors.Errorf("unknown tracer: %s", name)
}

func (t *Tracer) Name() string { return t.name }

func (t *Tracer) Reset() {
	t.ops = t.ops[:0]
}

func (t *Tracer) Fetch(addr uint64, size uint32) {
	if !t.pc {
		return
	}
	t.ops = append(t.ops, &trace.OpFetch{Addr: addr, Size: size})
}

func (t *Tracer) Read(addr uint64, size int, value uint64) {
	if !t.values {
		value = 0
	}
	t.ops = append(t.ops, &trace.OpMemRead{Addr: addr, Size: uint8(size), Value: value})
}

func (t *Tracer) Write(addr uint64, size int, value uint64) {
	if !t.values {
		value = 0
	}
	t.ops = append(t.ops, &trace.OpMemWrite{Addr: addr, Size: uint8(size), Value: value})
}

func (t *Tracer) Fault(errno int, addr uint64) {
	t.ops = append(t.ops, &trace.OpFault{Addr: addr, Errno: uint32(errno)})
}

func (t *Tracer) Rollback(resume uint64) {
	t.ops = append(t.ops, &trace.OpRollback{Addr: resume})
}

func (t *Tracer) Records() []models.Op {
	out := make([]models.Op, len(t.ops))
	copy(out, t.ops)
	return out
}
