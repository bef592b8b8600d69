package cpu

import (
	"time"
)

type Hook interface{}

// StartOptions bounds a single emulation run. A zero Timeout means no wall
// clock limit, a zero Count means no instruction limit.
type StartOptions struct {
	Timeout time.Duration
	Count   uint64
}

// This interface abstracts the minimum functionality the model requires in a CPU emulator.
type Cpu interface {
	// memory mapping
	MemMap(addr, size uint64, prot int) error
	MemProt(addr, size uint64, prot int) error
	MemUnmap(addr, size uint64) error

	// memory IO
	MemRead(addr, size uint64) ([]byte, error)
	MemReadInto(p []byte, addr uint64) error
	MemWrite(addr uint64, p []byte) error

	// register IO
	RegRead(reg int) (uint64, error)
	RegWrite(reg int, val uint64) error

	// execution
	Start(begin, until uint64) error
	StartWithOptions(begin, until uint64, opt *StartOptions) error
	Stop() error

	// hooks
	HookAdd(htype int, cb interface{}, begin, end uint64, extra ...int) (Hook, error)
	HookDel(hook Hook) error

	// save/restore entire CPU state
	ContextSave(reuse interface{}) (interface{}, error)
	ContextRestore(ctx interface{}) error

	// cleanup
	Close() error

	Backend() interface{}
}

// Builder describes how to construct a Cpu, so an arch can be declared
// without holding an emulator open.
type Builder interface {
	New() (Cpu, error)
}
