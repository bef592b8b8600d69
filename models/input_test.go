package models

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestInputRoundTrip(t *testing.T) {
	in := RandomInput(42)
	var buf bytes.Buffer
	if err := in.Pack(&buf); err != nil {
		t.Fatal(err)
	}
	out, err := UnpackInput(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if out.Seed != in.Seed {
		t.Errorf("seed round-tripped as %d, expecting %d", out.Seed, in.Seed)
	}
	if !bytes.Equal(out.Memory, in.Memory) {
		t.Error("memory image did not round-trip")
	}
	if len(out.Regs) != len(in.Regs) {
		t.Fatalf("got %d registers back, expecting %d", len(out.Regs), len(in.Regs))
	}
	for i, v := range in.Regs {
		if out.Regs[i] != v {
			t.Errorf("register %d round-tripped as %#x, expecting %#x", i, out.Regs[i], v)
		}
	}
}

func TestUnpackInputBadMagic(t *testing.T) {
	var buf bytes.Buffer
	if err := RandomInput(1).Pack(&buf); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()
	raw[0] = 'X'
	if _, err := UnpackInput(bytes.NewReader(raw)); err == nil {
		t.Fatal("UnpackInput() should reject a bad magic")
	}
}

func TestUnpackInputRegCount(t *testing.T) {
	in := RandomInput(1)
	in.Regs = in.Regs[:NumInputRegs-1]
	var buf bytes.Buffer
	if err := in.Pack(&buf); err != nil {
		t.Fatal(err)
	}
	if _, err := UnpackInput(&buf); err == nil {
		t.Fatal("UnpackInput() should reject a short register list")
	}
}

func TestRandomInput(t *testing.T) {
	a, b := RandomInput(7), RandomInput(7)
	if !bytes.Equal(a.Memory, b.Memory) {
		t.Error("the same seed should reproduce the memory image")
	}
	for i := range a.Regs {
		if a.Regs[i] != b.Regs[i] {
			t.Error("the same seed should reproduce the registers")
			break
		}
	}
	c := RandomInput(8)
	if bytes.Equal(a.Memory, c.Memory) {
		t.Error("different seeds should differ")
	}

	if len(a.Memory) != MainSize+FaultySize {
		t.Errorf("memory image is %d bytes, expecting %d", len(a.Memory), MainSize+FaultySize)
	}
	if len(a.Regs) != NumInputRegs {
		t.Errorf("input has %d registers, expecting %d", len(a.Regs), NumInputRegs)
	}

	// values double as sandbox offsets, so they stay below the main size
	for off := 0; off < len(a.Memory); off += 8 {
		if v := binary.LittleEndian.Uint64(a.Memory[off:]); v >= MainSize {
			t.Fatalf("memory word at %#x is %#x, expecting it masked below %#x", off, v, MainSize)
		}
	}
	for i, v := range a.Regs {
		if v >= MainSize {
			t.Fatalf("register %d is %#x, expecting it masked below %#x", i, v, MainSize)
		}
	}
}
