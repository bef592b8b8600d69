package models

type Ins interface {
	Addr() uint64
	Bytes() []byte
	Mnemonic() string
	OpStr() string
}

// Operand kinds used by instruction metadata.
type OpKind string

const (
	OpReg   OpKind = "reg"
	OpMem   OpKind = "mem"
	OpImm   OpKind = "imm"
	OpAgen  OpKind = "agen"
	OpCond  OpKind = "cond"
	OpLabel OpKind = "label"
)

// Operand describes one operand of a test case instruction. For OpReg the
// value is a register name, for OpMem it is an address expression such as
// "R14 + RAX", for OpImm the literal text.
type Operand struct {
	Kind  OpKind `json:"kind"`
	Value string `json:"value"`
	Src   bool   `json:"src"`
	Dest  bool   `json:"dest"`
	Width int    `json:"width"`
}

// Instruction is the out-of-band metadata for one instruction of a test
// case. Speculation contracts that reason about operands (dependency
// tracking, divider values, address canonicality) need it; plain contracts
// run fine without.
type Instruction struct {
	Name        string    `json:"name"`
	Offset      uint64    `json:"offset"`
	Operands    []Operand `json:"operands"`
	Implicit    []Operand `json:"implicit,omitempty"`
	FlagsRead   []string  `json:"flags_read,omitempty"`
	FlagsWrite  []string  `json:"flags_write,omitempty"`
	FlagsUndef  []string  `json:"flags_undef,omitempty"`
	ControlFlow bool      `json:"control_flow,omitempty"`
}

// All returns explicit and implicit operands in one list.
func (i *Instruction) All() []Operand {
	if len(i.Implicit) == 0 {
		return i.Operands
	}
	all := make([]Operand, 0, len(i.Operands)+len(i.Implicit))
	all = append(all, i.Operands...)
	all = append(all, i.Implicit...)
	return all
}
