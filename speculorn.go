package speculorn

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/speculorn/speculorn/cpu/unicorn"
	"github.com/speculorn/speculorn/models"
	"github.com/speculorn/speculorn/models/cpu"
	"github.com/speculorn/speculorn/models/trace"
)

// Model drives test cases through an emulated CPU under a speculation
// contract. The contract decides which transient behaviors exist; the model
// owns the machinery they share: the sandbox, checkpoints, the store log,
// fault plumbing, tracing and taint tracking.
type Model struct {
	arch   *models.Arch
	config *models.Config
	cpu    cpu.Cpu

	contract models.Contract
	spec     models.SpecHook
	tracer   models.Tracer
	taint    *TaintTracker

	layout *models.Layout
	tc     *models.TestCase
	hooked bool

	// current instruction, valid while a run is live
	curAddr uint64
	curSize uint32
	curMeta *models.Instruction

	pendingFault int
	lastFault    uint64
	prevCtx      interface{}

	checkpoints []*checkpoint
	ctxPool     []interface{}
	specWindow  int

	err error
}

func NewModel(arch *models.Arch, config *models.Config) (*Model, error) {
	config.Init()
	c, err := arch.Cpu.New()
	if err != nil {
		return nil, err
	}
	tracer, err := NewTracer(config.Tracer)
	if err != nil {
		c.Close()
		return nil, err
	}
	return &Model{
		arch:   arch,
		config: config,
		cpu:    c,
		tracer: tracer,
	}, nil
}

// SetContract binds the speculation contract. Must be called before
// LoadTestCase.
func (m *Model) SetContract(c models.Contract) {
	m.contract = c
	m.spec, _ = c.(models.SpecHook)
}

func (m *Model) Arch() *models.Arch     { return m.arch }
func (m *Model) Config() *models.Config { return m.config }
func (m *Model) Cpu() cpu.Cpu           { return m.cpu }
func (m *Model) Layout() *models.Layout { return m.layout }

// CurAddr is the address of the instruction being executed.
func (m *Model) CurAddr() uint64 { return m.curAddr }

// CurSize is its length in bytes.
func (m *Model) CurSize() uint32 { return m.curSize }

// NextAddr is the fall-through address of the current instruction.
func (m *Model) NextAddr() uint64 { return m.curAddr + uint64(m.curSize) }

// LastFault is the address of the most recent faulting instruction.
func (m *Model) LastFault() uint64 { return m.lastFault }

// CurMeta is the current instruction's metadata, nil when the test case
// carries none.
func (m *Model) CurMeta() *models.Instruction { return m.curMeta }

// Meta looks up metadata by absolute address.
func (m *Model) Meta(addr uint64) *models.Instruction {
	if m.tc == nil || m.layout == nil {
		return nil
	}
	return m.tc.Meta[addr-m.layout.CodeBase]
}

// SetPC redirects execution, skipping the current instruction.
func (m *Model) SetPC(addr uint64) {
	if err := m.cpu.RegWrite(m.arch.PC, addr); err != nil {
		m.hookErr(errors.Wrap(err, "RegWrite() failed"))
	}
}

// RaiseFault marks a synthesized fault on the current instruction and stops
// the emulator. The run loop delivers it to the contract like a real one.
// A fault already pending wins.
func (m *Model) RaiseFault(errno int) {
	if m.pendingFault == 0 {
		m.pendingFault = errno
		m.lastFault = m.curAddr
	}
	m.cpu.Stop()
}

// Recontext refreshes the pre-instruction snapshot after a contract mutated
// register state, so the fault path restores the mutated version.
func (m *Model) Recontext() {
	var err error
	if m.prevCtx, err = m.cpu.ContextSave(m.prevCtx); err != nil {
		m.hookErr(errors.Wrap(err, "ContextSave() failed"))
	}
}

func (m *Model) hookErr(err error) {
	if m.err == nil {
		m.err = err
		m.cpu.Stop()
	}
}

// LoadTestCase maps the code and sandbox regions and installs the hooks.
// Loading a second test case replaces the first.
func (m *Model) LoadTestCase(tc *models.TestCase) error {
	if m.contract == nil {
		return errors.New("no contract set")
	}
	if m.contract.RequiresMeta() && !tc.HasMeta() {
		return errors.Errorf("contract %s needs instruction metadata", m.contract.Name())
	}
	if m.config.Taint && !tc.HasMeta() {
		return errors.New("taint tracking needs instruction metadata")
	}

	layout := models.NewLayout(len(tc.Code))
	if layout.CodeBase+layout.CodeMapSize() > layout.LowerOverflowBase() {
		return errors.Errorf("test case too large: %d bytes", len(tc.Code))
	}
	if m.tc != nil {
		m.cpu.MemUnmap(m.layout.CodeBase, m.layout.CodeMapSize())
		m.cpu.MemUnmap(m.layout.LowerOverflowBase(), m.layout.SandboxMapSize())
	}
	if err := m.cpu.MemMap(layout.CodeBase, layout.CodeMapSize(), cpu.PROT_READ|cpu.PROT_EXEC); err != nil {
		return errors.Wrap(err, "MemMap() failed")
	}
	if err := m.cpu.MemMap(layout.LowerOverflowBase(), layout.SandboxMapSize(), cpu.PROT_READ|cpu.PROT_WRITE); err != nil {
		return errors.Wrap(err, "MemMap() failed")
	}
	if err := m.cpu.MemWrite(layout.CodeBase, tc.Code); err != nil {
		return errors.Wrap(err, "MemWrite() failed")
	}
	m.tc = tc
	m.layout = layout
	if m.config.Taint {
		m.taint = NewTaintTracker(m.arch, layout, m.config.Tracer)
	}

	if !m.hooked {
		if _, err := m.cpu.HookAdd(cpu.HOOK_CODE, m.onCode, 1, 0); err != nil {
			return errors.Wrap(err, "HookAdd() failed")
		}
		if _, err := m.cpu.HookAdd(cpu.HOOK_MEM_READ|cpu.HOOK_MEM_WRITE, m.onMem, 1, 0); err != nil {
			return errors.Wrap(err, "HookAdd() failed")
		}
		m.hooked = true
	}
	return nil
}

func (m *Model) onCode(_ cpu.Cpu, addr uint64, size uint32) {
	if m.err != nil {
		return
	}
	if len(m.checkpoints) > 0 {
		m.specWindow++
		// transient execution never outlives the window, the end of the
		// test case, or a serializing instruction
		if m.specWindow > m.config.Window || addr == m.layout.CodeEnd() || m.isFence(addr, size) {
			m.cpu.Stop()
			return
		}
	}
	m.curAddr, m.curSize = addr, size
	m.curMeta = m.Meta(addr)

	// faults leave the emulator in a corrupted state, so fault handling
	// starts over from this snapshot
	var err error
	if m.prevCtx, err = m.cpu.ContextSave(m.prevCtx); err != nil {
		m.hookErr(errors.Wrap(err, "ContextSave() failed"))
		return
	}

	m.tracer.Fetch(addr, size)
	if m.taint != nil {
		m.taint.Instruction(m.curMeta)
	}
	m.contract.Instruction(addr, size)
}

func (m *Model) onMem(_ cpu.Cpu, access int, addr uint64, size int, value int64) {
	if m.err != nil {
		return
	}
	if m.config.DetectFaulty && len(m.checkpoints) == 0 && m.layout.InFaulty(addr) {
		m.RaiseFault(cpu.FAULT_EXCEPTION)
		return
	}
	if access == cpu.MEM_WRITE && len(m.checkpoints) > 0 {
		m.logOriginal(addr)
	}

	val := uint64(value) & sizeMask(size)
	if access == cpu.MEM_WRITE {
		m.tracer.Write(addr, size, val)
	} else {
		if data, err := m.cpu.MemRead(addr, uint64(size)); err == nil {
			val = leUint64(data)
		}
		m.tracer.Read(addr, size, val)
	}
	if m.taint != nil {
		m.taint.MemAccess(access, addr, size)
	}
	m.contract.MemAccess(access, addr, size, value)
}

// logOriginal snapshots the 8 bytes a speculative store is about to clobber.
func (m *Model) logOriginal(addr uint64) {
	n := uint64(8)
	if end := m.layout.UpperOverflowBase() + models.OverflowSize; addr+n > end {
		if addr >= end {
			return
		}
		n = end - addr
	}
	orig, err := m.cpu.MemRead(addr, n)
	if err != nil {
		return
	}
	m.LogStore(addr, orig)
}

func (m *Model) isFence(addr uint64, size uint32) bool {
	if meta := m.Meta(addr); meta != nil {
		switch meta.Name {
		case "LFENCE", "MFENCE", "SFENCE":
			return true
		}
		return false
	}
	if size != 3 {
		return false
	}
	code, err := m.cpu.MemRead(addr, 3)
	if err != nil {
		return false
	}
	return code[0] == 0x0f && code[1] == 0xae && code[2] >= 0xe8
}

// Run executes the loaded test case on one input and reduces the execution
// to an observation trace plus the set of input elements that leaked.
func (m *Model) Run(in *models.Input) (*models.Result, error) {
	if m.tc == nil {
		return nil, errors.New("no test case loaded")
	}
	if err := m.resetRun(in); err != nil {
		return nil, err
	}

	start := m.layout.CodeBase
	for {
		err := m.emuStart(start)
		if m.err != nil {
			return nil, m.err
		}
		if err != nil && m.pendingFault == 0 {
			errno := unicorn.Errno(err)
			if errno == 0 {
				return nil, errors.Wrap(err, "emulation failed")
			}
			m.pendingFault = errno
			m.lastFault = m.curAddr
		}

		if m.pendingFault != 0 {
			errno := m.pendingFault
			m.pendingFault = 0
			if err := m.restoreFaultContext(); err != nil {
				return nil, err
			}
			m.tracer.Fault(errno, m.curAddr)
			resume := m.contract.Fault(errno)
			if m.err != nil {
				return nil, m.err
			}
			if resume != 0 && resume < m.layout.CodeEnd() {
				start = resume
				continue
			}
		}

		if m.Speculating() {
			resume, err := m.Rollback()
			if err != nil {
				return nil, err
			}
			start = resume
			continue
		}
		break
	}

	if m.taint != nil {
		m.taint.Finish()
	}
	res := &models.Result{Records: m.tracer.Records()}
	res.Digest = trace.Digest(res.Records)
	if m.taint != nil {
		res.Taint = m.taint.Leaks()
	}
	return res, nil
}

func (m *Model) emuStart(begin uint64) error {
	opt := &cpu.StartOptions{
		Timeout: m.config.Timeout,
		Count:   m.config.Budget,
	}
	return m.cpu.StartWithOptions(begin, m.layout.CodeEnd(), opt)
}

// restoreFaultContext rewinds to the snapshot taken before the faulting
// instruction. The flags register is rewritten in place because the emulator
// keeps its dirty state across an exception.
func (m *Model) restoreFaultContext() error {
	if m.prevCtx == nil {
		return nil
	}
	if err := m.cpu.ContextRestore(m.prevCtx); err != nil {
		return errors.Wrap(err, "ContextRestore() failed")
	}
	flags, err := m.cpu.RegRead(m.arch.FlagsReg)
	if err != nil {
		return errors.Wrap(err, "RegRead() failed")
	}
	if err := m.cpu.RegWrite(m.arch.FlagsReg, flags); err != nil {
		return errors.Wrap(err, "RegWrite() failed")
	}
	return nil
}

func (m *Model) resetRun(in *models.Input) error {
	m.dropCheckpoints()
	m.curAddr, m.curSize, m.curMeta = 0, 0, nil
	m.pendingFault = 0
	m.lastFault = 0
	m.err = nil

	// protection decides whether faulty region accesses fault at the
	// emulator level; zero-injection contracts lift it mid-run, so it
	// re-arms on every input
	prot := cpu.PROT_READ | cpu.PROT_WRITE
	if m.config.TrapFaulty {
		prot = cpu.PROT_NONE
	}
	if err := m.cpu.MemProt(m.layout.FaultyBase(), models.FaultySize, prot); err != nil {
		return errors.Wrap(err, "MemProt() failed")
	}

	if err := m.arch.LoadInput(m.cpu, m.layout, in); err != nil {
		return err
	}

	m.tracer.Reset()
	if m.taint != nil {
		m.taint.Reset()
	}
	m.contract.Reset()

	var err error
	if m.prevCtx, err = m.cpu.ContextSave(m.prevCtx); err != nil {
		return errors.Wrap(err, "ContextSave() failed")
	}
	return nil
}

func (m *Model) Close() error {
	return m.cpu.Close()
}

func sizeMask(size int) uint64 {
	if size >= 8 {
		return ^uint64(0)
	}
	return (uint64(1) << (8 * uint(size))) - 1
}

func leUint64(p []byte) uint64 {
	var tmp [8]byte
	copy(tmp[:], p)
	return binary.LittleEndian.Uint64(tmp[:])
}
