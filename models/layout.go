package models

// Region sizes mirror the executor's sandbox so measurements line up with
// hardware runs. Each region is one 4k page.
const (
	PageSize     = 0x1000
	MainSize     = PageSize
	FaultySize   = PageSize
	OverflowSize = PageSize
)

// Layout fixes where a test case and its data sandbox sit in guest memory.
// The sandbox is one contiguous mapping:
//
//	lower overflow | main | faulty | upper overflow
//
// with SandboxBase pointing at the main region. Register starting values are
// mirrored into the upper overflow region the same way the executor seeds
// them on hardware.
type Layout struct {
	CodeBase uint64
	CodeLen  uint64

	SandboxBase uint64
}

func NewLayout(codeLen int) *Layout {
	return &Layout{
		CodeBase:    0x100000,
		CodeLen:     uint64(codeLen),
		SandboxBase: 0x200000,
	}
}

// CodeEnd is the address one past the last test case byte. Emulation until
// this address ends the run.
func (l *Layout) CodeEnd() uint64 {
	return l.CodeBase + l.CodeLen
}

// CodeMapSize pads the code region out to page granularity.
func (l *Layout) CodeMapSize() uint64 {
	return (l.CodeLen + PageSize - 1) &^ (PageSize - 1)
}

func (l *Layout) LowerOverflowBase() uint64 {
	return l.SandboxBase - OverflowSize
}

func (l *Layout) FaultyBase() uint64 {
	return l.SandboxBase + MainSize
}

func (l *Layout) UpperOverflowBase() uint64 {
	return l.FaultyBase() + FaultySize
}

// SandboxMapSize covers both overflow regions and everything between.
func (l *Layout) SandboxMapSize() uint64 {
	return OverflowSize + MainSize + FaultySize + OverflowSize
}

// StackBase leaves room for one push at the top of the main region.
func (l *Layout) StackBase() uint64 {
	return l.SandboxBase + MainSize - 8
}

// InFaulty reports whether an access at addr touches the faulty region.
func (l *Layout) InFaulty(addr uint64) bool {
	return addr >= l.FaultyBase() && addr < l.UpperOverflowBase()
}
