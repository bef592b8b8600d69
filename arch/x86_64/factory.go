package x86_64

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/speculorn/speculorn"
	"github.com/speculorn/speculorn/models"
)

type contractBuilder struct {
	desc string

	// how the faulty region behaves under this contract: protected so
	// accesses fault natively, or accessible with detection synthesizing
	// the fault
	trapFaulty   bool
	detectFaulty bool

	build func(m *speculorn.Model) models.Contract
}

var contracts = map[string]contractBuilder{
	"seq": {
		desc:  "in-order execution, faults terminate",
		build: func(m *speculorn.Model) models.Contract { return speculorn.NewSeq() },
	},
	"cond": {
		desc:  "conditional branches mispredict",
		build: func(m *speculorn.Model) models.Contract { return NewCond(m) },
	},
	"bpas": {
		desc:  "loads bypass older stores",
		build: func(m *speculorn.Model) models.Contract { return speculorn.NewBypass(m) },
	},
	"cond-bpas": {
		desc:  "cond and bpas combined",
		build: func(m *speculorn.Model) models.Contract { return NewCondBpas(m) },
	},
	"null": {
		desc:       "faulting loads return zero, then re-verify",
		trapFaulty: true,
		build:      func(m *speculorn.Model) models.Contract { return NewNull(m) },
	},
	"null-fault": {
		desc:       "faulting loads return zero, fault is terminal",
		trapFaulty: true,
		build:      func(m *speculorn.Model) models.Contract { return NewNullFault(m) },
	},
	"ooo": {
		desc:       "execution continues out of order past faults",
		trapFaulty: true,
		build:      func(m *speculorn.Model) models.Contract { return NewOOO(m) },
	},
	"div-overflow": {
		desc:       "division overflow forwards the truncated quotient",
		trapFaulty: true,
		build:      func(m *speculorn.Model) models.Contract { return NewDivOverflow(m) },
	},
	"meltdown": {
		desc:         "faulting loads return the true in-memory value",
		detectFaulty: true,
		build:        func(m *speculorn.Model) models.Contract { return NewMeltdown(m) },
	},
	"gp": {
		desc:       "non-canonical addresses execute speculatively",
		trapFaulty: true,
		build:      func(m *speculorn.Model) models.Contract { return NewGP(m) },
	},
}

// New builds a model bound to the named contract, arming the faulty-region
// behavior the contract expects.
func New(name string, config *models.Config) (*speculorn.Model, error) {
	b, ok := contracts[name]
	if !ok {
		return nil, errors.Errorf("unknown contract %q", name)
	}
	config.TrapFaulty = b.trapFaulty
	config.DetectFaulty = b.detectFaulty
	m, err := speculorn.NewModel(Arch, config)
	if err != nil {
		return nil, err
	}
	m.SetContract(b.build(m))
	return m, nil
}

// Contracts lists the known contract names.
func Contracts() []string {
	names := make([]string, 0, len(contracts))
	for name := range contracts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns a one-line summary of a contract, or "" if unknown.
func Describe(name string) string {
	return contracts[name].desc
}
