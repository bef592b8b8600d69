package x86_64

import (
	"github.com/speculorn/speculorn"
	"github.com/speculorn/speculorn/models"
)

// classify splits an instruction's operands into canonical source and
// destination names. Registers inside a memory operand's address expression
// count as sources but never carry the cell's value; dataSrc excludes them
// for contracts that treat address computation as harmless.
func classify(a *models.Arch, ins *models.Instruction) (src, dest, dataSrc []string) {
	for _, op := range ins.All() {
		switch op.Kind {
		case models.OpReg:
			canon, ok := a.Normalize(op.Value)
			if !ok {
				continue
			}
			if op.Src {
				src = append(src, canon)
				dataSrc = append(dataSrc, canon)
			}
			if op.Dest {
				dest = append(dest, canon)
			}
		case models.OpMem:
			for _, term := range speculorn.SplitAddress(op.Value) {
				if canon, ok := a.Normalize(term); ok {
					src = append(src, canon)
				}
			}
		}
	}
	src = append(src, ins.FlagsRead...)
	dataSrc = append(dataSrc, ins.FlagsRead...)
	dest = append(dest, ins.FlagsWrite...)
	return src, dest, dataSrc
}

func anyIn(set map[string]bool, names []string) bool {
	for _, n := range names {
		if set[n] {
			return true
		}
	}
	return false
}

func containsName(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}
