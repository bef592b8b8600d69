package models

import (
	"encoding/binary"
	"io"
	"math/rand"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

const INPUT_MAGIC = "SPIN"

// NumInputRegs counts the register words carried by an input: six general
// purpose registers and the flags register.
const NumInputRegs = 7

// Input holds one concrete initial state for a test case: the byte image of
// the main and faulty regions, and the starting register values in the order
// the arch declares them (flags last).
type Input struct {
	Seed   uint64
	Memory []byte
	Regs   []uint64
}

type inputHeader struct {
	Magic   string `struc:"[4]byte"`
	Version uint32
	Seed    uint64
	MemSize uint32 `struc:"sizeof=Memory"`
	Memory  []byte
	NumRegs uint32 `struc:"sizeof=Regs"`
	Regs    []uint64
}

var strucOpts = &struc.Options{Order: binary.LittleEndian}

func (i *Input) Pack(w io.Writer) error {
	hdr := &inputHeader{
		Magic:   INPUT_MAGIC,
		Version: 1,
		Seed:    i.Seed,
		Memory:  i.Memory,
		Regs:    i.Regs,
	}
	return errors.Wrap(struc.PackWithOptions(w, hdr, strucOpts), "failed to pack input")
}

func UnpackInput(r io.Reader) (*Input, error) {
	hdr := &inputHeader{}
	if err := struc.UnpackWithOptions(r, hdr, strucOpts); err != nil {
		return nil, errors.Wrap(err, "failed to unpack input")
	}
	if hdr.Magic != INPUT_MAGIC {
		return nil, errors.New("invalid input file magic")
	}
	if len(hdr.Regs) != NumInputRegs {
		return nil, errors.Errorf("input has %d register values, want %d", len(hdr.Regs), NumInputRegs)
	}
	return &Input{Seed: hdr.Seed, Memory: hdr.Memory, Regs: hdr.Regs}, nil
}

// RandomInput builds a reproducible input for a layout. Values are masked to
// stay within the main region when used as offsets, the same trick the
// fuzzer's generator plays so memory accesses land inside the sandbox.
func RandomInput(seed uint64) *Input {
	rng := rand.New(rand.NewSource(int64(seed)))
	in := &Input{
		Seed:   seed,
		Memory: make([]byte, MainSize+FaultySize),
		Regs:   make([]uint64, NumInputRegs),
	}
	for off := 0; off < len(in.Memory); off += 8 {
		binary.LittleEndian.PutUint64(in.Memory[off:], rng.Uint64()&(MainSize-1))
	}
	for j := range in.Regs {
		in.Regs[j] = rng.Uint64() & (MainSize - 1)
	}
	return in
}
