package speculorn

import (
	"github.com/pkg/errors"
)

// A checkpoint captures everything needed to squash one speculative leg:
// the register context, the address execution resumes at after rollback, the
// flags value (register contexts do not carry flags reliably across an
// exception), the speculation window at the time, and a log of memory writes
// made after the checkpoint so they can be undone.
type checkpoint struct {
	ctx    interface{}
	resume uint64
	flags  uint64
	window int
	stores []storeEntry
}

// storeEntry records bytes to write back at rollback. Undo entries hold the
// original memory contents, redo entries (store bypass) hold the bypassed
// value so the store stays architecturally committed after the squash.
type storeEntry struct {
	addr uint64
	data []byte
}

// Checkpoint pushes a rollback point. Execution after a later Rollback
// resumes at resume with the current register file, flags and memory.
func (m *Model) Checkpoint(resume uint64) error {
	ctx, err := m.saveContext()
	if err != nil {
		return errors.Wrap(err, "ContextSave() failed")
	}
	flags, err := m.cpu.RegRead(m.arch.FlagsReg)
	if err != nil {
		return errors.Wrap(err, "RegRead() failed")
	}
	m.checkpoints = append(m.checkpoints, &checkpoint{
		ctx:    ctx,
		resume: resume,
		flags:  flags,
		window: m.specWindow,
	})
	// each nesting level gets a fresh window
	m.specWindow = 0
	if m.taint != nil {
		m.taint.Checkpoint()
	}
	if m.spec != nil {
		m.spec.OnCheckpoint()
	}
	return nil
}

// Rollback squashes the most recent speculative leg and reports where
// execution resumes. Memory writes are undone newest first, so nested
// updates of the same cell land back on the oldest value.
func (m *Model) Rollback() (uint64, error) {
	n := len(m.checkpoints) - 1
	if n < 0 {
		return 0, errors.New("rollback without a checkpoint")
	}
	cp := m.checkpoints[n]
	m.checkpoints = m.checkpoints[:n]

	if err := m.cpu.ContextRestore(cp.ctx); err != nil {
		return 0, errors.Wrap(err, "ContextRestore() failed")
	}
	m.ctxPool = append(m.ctxPool, cp.ctx)

	for i := len(cp.stores) - 1; i >= 0; i-- {
		st := cp.stores[i]
		if err := m.cpu.MemWrite(st.addr, st.data); err != nil {
			return 0, errors.Wrap(err, "MemWrite() failed")
		}
	}
	m.specWindow = cp.window

	// flags ride along separately and go in last
	if err := m.cpu.RegWrite(m.arch.FlagsReg, cp.flags); err != nil {
		return 0, errors.Wrap(err, "RegWrite() failed")
	}

	if m.taint != nil {
		m.taint.Rollback()
	}
	if m.spec != nil {
		m.spec.OnRollback()
	}
	if m.tracer != nil {
		m.tracer.Rollback(cp.resume)
	}
	return cp.resume, nil
}

// LogStore appends a write-back entry to the innermost checkpoint.
func (m *Model) LogStore(addr uint64, data []byte) {
	if n := len(m.checkpoints); n > 0 {
		cp := m.checkpoints[n-1]
		cp.stores = append(cp.stores, storeEntry{addr, data})
	}
}

// Depth reports how many checkpoints are live.
func (m *Model) Depth() int {
	return len(m.checkpoints)
}

// Speculating reports whether execution is on a speculative leg.
func (m *Model) Speculating() bool {
	return len(m.checkpoints) > 0
}

// saveContext reuses register contexts from squashed checkpoints, since the
// emulator allocates them on the C heap.
func (m *Model) saveContext() (interface{}, error) {
	var reuse interface{}
	if n := len(m.ctxPool); n > 0 {
		reuse = m.ctxPool[n-1]
		m.ctxPool = m.ctxPool[:n-1]
	}
	return m.cpu.ContextSave(reuse)
}

func (m *Model) dropCheckpoints() {
	for _, cp := range m.checkpoints {
		m.ctxPool = append(m.ctxPool, cp.ctx)
	}
	m.checkpoints = m.checkpoints[:0]
	m.specWindow = 0
}
