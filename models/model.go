package models

// Contract decides which speculative behaviors the model simulates. The
// engine drives it from the emulator's hooks; everything else (checkpoints,
// rollbacks, the store log) is shared machinery.
type Contract interface {
	Name() string

	// Reset clears per-run state before a new input executes.
	Reset()

	// Instruction runs before every instruction, committed or speculative.
	Instruction(addr uint64, size uint32)

	// MemAccess runs on every data read and write.
	MemAccess(access int, addr uint64, size int, value int64)

	// Fault maps a fault to a resume address. Zero means the fault does not
	// speculate and the run winds down.
	Fault(errno int) uint64

	// RequiresMeta reports whether this contract needs instruction metadata.
	RequiresMeta() bool
}

// SpecHook is implemented by contracts that keep their own state in lockstep
// with the engine's checkpoint stack.
type SpecHook interface {
	OnCheckpoint()
	OnRollback()
}

// Tracer reduces an execution to the observations an attacker would see
// under some leakage assumption.
type Tracer interface {
	Name() string
	Reset()
	Fetch(addr uint64, size uint32)
	Read(addr uint64, size int, value uint64)
	Write(addr uint64, size int, value uint64)
	Fault(errno int, addr uint64)
	Rollback(resume uint64)
	Records() []Op
}

// Result is what one (test case, input) run produces.
type Result struct {
	Records []Op
	Digest  uint64
	Taint   []int
}
