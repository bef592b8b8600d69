package x86_64

import (
	"testing"

	"github.com/speculorn/speculorn/models"
)

func TestNewContracts(t *testing.T) {
	for _, name := range Contracts() {
		config := &models.Config{}
		m, err := New(name, config)
		if err != nil {
			t.Fatalf("New(%q) failed: %v", name, err)
		}
		m.Close()
		if config.TrapFaulty && config.DetectFaulty {
			t.Fatalf("%s: trap and detect are mutually exclusive", name)
		}
		switch name {
		case "null", "null-fault", "ooo", "div-overflow", "gp":
			if !config.TrapFaulty {
				t.Errorf("%s should protect the faulty region", name)
			}
		case "meltdown":
			if !config.DetectFaulty {
				t.Errorf("%s should detect faulty accesses", name)
			}
		default:
			if config.TrapFaulty || config.DetectFaulty {
				t.Errorf("%s should leave the faulty region accessible", name)
			}
		}
		if Describe(name) == "" {
			t.Errorf("%s has no description", name)
		}
	}
	if _, err := New("nonsense", &models.Config{}); err == nil {
		t.Fatal("New() accepted an unknown contract")
	}
}
