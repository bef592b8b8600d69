package x86_64

import (
	ks "github.com/keystone-engine/keystone/bindings/go/keystone"
	cs "github.com/lunixbochs/capstr"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/speculorn/speculorn/cpu"
	"github.com/speculorn/speculorn/cpu/unicorn"
	"github.com/speculorn/speculorn/models"
)

var Arch = &models.Arch{
	Name: "x86_64",
	Bits: 64,

	Cpu: &unicorn.Builder{Arch: uc.ARCH_X86, Mode: uc.MODE_64},
	Dis: &cpu.Capstr{Arch: cs.ARCH_X86, Mode: cs.MODE_64},
	Asm: &cpu.Keystone{Arch: ks.ARCH_X86, Mode: ks.MODE_64},

	PC: uc.X86_REG_RIP,
	SP: uc.X86_REG_RSP,
	BP: uc.X86_REG_RBP,
	Regs: map[string]int{
		"rip": uc.X86_REG_RIP,
		"rsp": uc.X86_REG_RSP,
		"rbp": uc.X86_REG_RBP,
		"rax": uc.X86_REG_RAX,
		"rbx": uc.X86_REG_RBX,
		"rcx": uc.X86_REG_RCX,
		"rdx": uc.X86_REG_RDX,
		"rsi": uc.X86_REG_RSI,
		"rdi": uc.X86_REG_RDI,
		"r8":  uc.X86_REG_R8,
		"r9":  uc.X86_REG_R9,
		"r10": uc.X86_REG_R10,
		"r11": uc.X86_REG_R11,
		"r12": uc.X86_REG_R12,
		"r13": uc.X86_REG_R13,
		"r14": uc.X86_REG_R14,
		"r15": uc.X86_REG_R15,

		"eflags": uc.X86_REG_EFLAGS,

		// sub-registers, so metadata operands resolve at their own width
		"eax": uc.X86_REG_EAX, "ax": uc.X86_REG_AX,
		"al": uc.X86_REG_AL, "ah": uc.X86_REG_AH,
		"ebx": uc.X86_REG_EBX, "bx": uc.X86_REG_BX,
		"bl": uc.X86_REG_BL, "bh": uc.X86_REG_BH,
		"ecx": uc.X86_REG_ECX, "cx": uc.X86_REG_CX,
		"cl": uc.X86_REG_CL, "ch": uc.X86_REG_CH,
		"edx": uc.X86_REG_EDX, "dx": uc.X86_REG_DX,
		"dl": uc.X86_REG_DL, "dh": uc.X86_REG_DH,
		"esi": uc.X86_REG_ESI, "si": uc.X86_REG_SI, "sil": uc.X86_REG_SIL,
		"edi": uc.X86_REG_EDI, "di": uc.X86_REG_DI, "dil": uc.X86_REG_DIL,
		"esp": uc.X86_REG_ESP, "sp": uc.X86_REG_SP, "spl": uc.X86_REG_SPL,
		"ebp": uc.X86_REG_EBP, "bp": uc.X86_REG_BP, "bpl": uc.X86_REG_BPL,
		"r8d": uc.X86_REG_R8D, "r8w": uc.X86_REG_R8W, "r8b": uc.X86_REG_R8B,
		"r9d": uc.X86_REG_R9D, "r9w": uc.X86_REG_R9W, "r9b": uc.X86_REG_R9B,
		"r10d": uc.X86_REG_R10D, "r10w": uc.X86_REG_R10W, "r10b": uc.X86_REG_R10B,
		"r11d": uc.X86_REG_R11D, "r11w": uc.X86_REG_R11W, "r11b": uc.X86_REG_R11B,
		"r12d": uc.X86_REG_R12D, "r12w": uc.X86_REG_R12W, "r12b": uc.X86_REG_R12B,
		"r13d": uc.X86_REG_R13D, "r13w": uc.X86_REG_R13W, "r13b": uc.X86_REG_R13B,
		"r14d": uc.X86_REG_R14D, "r14w": uc.X86_REG_R14W, "r14b": uc.X86_REG_R14B,
		"r15d": uc.X86_REG_R15D, "r15w": uc.X86_REG_R15W, "r15b": uc.X86_REG_R15B,
	},
	DefaultRegs: []string{
		"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "eflags",
	},

	InputRegs: []int{
		uc.X86_REG_RAX, uc.X86_REG_RBX, uc.X86_REG_RCX, uc.X86_REG_RDX,
		uc.X86_REG_RSI, uc.X86_REG_RDI, uc.X86_REG_EFLAGS,
	},
	FlagsReg:  uc.X86_REG_EFLAGS,
	FlagsMask: 2263,
	FlagsSet:  2,

	SandboxReg: uc.X86_REG_R14,

	Canon:     canon,
	TaintRegs: []string{"A", "B", "C", "D", "SI", "DI", "FLAGS"},

	LoadInput: LoadInput,
}

// canon folds every width of a general purpose register onto one tracking
// name, so a write to EAX clears taint on RAX.
var canon = map[string]string{
	"RAX": "A", "EAX": "A", "AX": "A", "AL": "A", "AH": "A",
	"RBX": "B", "EBX": "B", "BX": "B", "BL": "B", "BH": "B",
	"RCX": "C", "ECX": "C", "CX": "C", "CL": "C", "CH": "C",
	"RDX": "D", "EDX": "D", "DX": "D", "DL": "D", "DH": "D",
	"RSI": "SI", "ESI": "SI", "SI": "SI", "SIL": "SI",
	"RDI": "DI", "EDI": "DI", "DI": "DI", "DIL": "DI",
	"RSP": "SP", "ESP": "SP", "SP": "SP", "SPL": "SP",
	"RBP": "BP", "EBP": "BP", "BP": "BP", "BPL": "BP",
	"R8": "8", "R8D": "8", "R8W": "8", "R8B": "8",
	"R9": "9", "R9D": "9", "R9W": "9", "R9B": "9",
	"R10": "10", "R10D": "10", "R10W": "10", "R10B": "10",
	"R11": "11", "R11D": "11", "R11W": "11", "R11B": "11",
	"R12": "12", "R12D": "12", "R12W": "12", "R12B": "12",
	"R13": "13", "R13D": "13", "R13W": "13", "R13B": "13",
	"R14": "14", "R14D": "14", "R14W": "14", "R14B": "14",
	"R15": "15", "R15D": "15", "R15W": "15", "R15B": "15",
	"FLAGS": "FLAGS", "EFLAGS": "FLAGS", "RFLAGS": "FLAGS",
}
