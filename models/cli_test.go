package models

import (
	"bytes"
	"flag"
	"strings"
	"testing"
)

func TestPrintFlags(t *testing.T) {
	fs := flag.NewFlagSet("cli", flag.ContinueOnError)
	fs.String("contract", "seq", "leakage contract")
	fs.Bool("taint", false, "track leaked input elements")
	fs.Int("inputs", 0, "number of random inputs")

	var buf bytes.Buffer
	PrintFlags(&buf, fs)
	out := buf.String()

	if !strings.Contains(out, "-contract") || !strings.Contains(out, "leakage contract") {
		t.Errorf("PrintFlags() wrote %q, expecting the contract row", out)
	}
	if !strings.Contains(out, "(seq)") {
		t.Errorf("PrintFlags() wrote %q, expecting the default shown", out)
	}
	if strings.Contains(out, "(false)") || strings.Contains(out, "(0)") {
		t.Errorf("PrintFlags() wrote %q, expecting zero defaults suppressed", out)
	}
	if lines := strings.Count(out, "\n"); lines != 3 {
		t.Errorf("PrintFlags() wrote %d rows, expecting 3", lines)
	}
}
