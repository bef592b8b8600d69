package trace

import (
	"encoding/binary"
	"hash/fnv"
	"io"

	"github.com/pkg/errors"

	"github.com/speculorn/speculorn/models"
)

var order = binary.LittleEndian

const (
	OP_NOP       = 0
	OP_FETCH     = 1
	OP_MEM_READ  = 2
	OP_MEM_WRITE = 3
	OP_FAULT     = 4
	OP_ROLLBACK  = 5
)

func Unpack(r io.Reader) (models.Op, int, error) {
	var tmp [1]byte
	if _, err := r.Read(tmp[:]); err != nil {
		return nil, 0, err
	}
	var op models.Op
	switch tmp[0] {
	case OP_NOP:
		op = &OpNop{}
	case OP_FETCH:
		op = &OpFetch{}
	case OP_MEM_READ:
		op = &OpMemRead{}
	case OP_MEM_WRITE:
		op = &OpMemWrite{}
	case OP_FAULT:
		op = &OpFault{}
	case OP_ROLLBACK:
		op = &OpRollback{}
	default:
		return nil, 0, errors.Errorf("Unknown op: %d", tmp[0])
	}
	n, err := op.Unpack(r)
	return op, n + 1, err
}

type OpNop struct{}

func (o *OpNop) Sizeof() int   { return 1 }
func (o *OpNop) Pack(p []byte) { p[0] = OP_NOP }

func (o *OpNop) Unpack(r io.Reader) (int, error) { return 0, nil }

// OpFetch records program counter exposure: one instruction issued at Addr.
type OpFetch struct {
	Addr uint64
	Size uint32
}

func (o *OpFetch) Sizeof() int { return 1 + 8 + 4 }
func (o *OpFetch) Pack(p []byte) {
	p[0] = OP_FETCH
	order.PutUint64(p[1:], o.Addr)
	order.PutUint32(p[9:], o.Size)
}

func (o *OpFetch) Unpack(r io.Reader) (int, error) {
	var tmp [8 + 4]byte
	n, err := io.ReadFull(r, tmp[:])
	if err == nil {
		o.Addr = order.Uint64(tmp[:])
		o.Size = order.Uint32(tmp[8:])
	}
	return n, err
}

type OpMemRead struct {
	Addr  uint64
	Size  uint8
	Value uint64
}

func (o *OpMemRead) Sizeof() int { return 1 + 8 + 1 + 8 }
func (o *OpMemRead) Pack(p []byte) {
	p[0] = OP_MEM_READ
	order.PutUint64(p[1:], o.Addr)
	p[9] = o.Size
	order.PutUint64(p[10:], o.Value)
}

func (o *OpMemRead) Unpack(r io.Reader) (int, error) {
	var tmp [8 + 1 + 8]byte
	n, err := io.ReadFull(r, tmp[:])
	if err == nil {
		o.Addr = order.Uint64(tmp[:])
		o.Size = uint8(tmp[8])
		o.Value = order.Uint64(tmp[9:])
	}
	return n, err
}

type OpMemWrite struct {
	Addr  uint64
	Size  uint8
	Value uint64
}

func (o *OpMemWrite) Sizeof() int { return 1 + 8 + 1 + 8 }
func (o *OpMemWrite) Pack(p []byte) {
	p[0] = OP_MEM_WRITE
	order.PutUint64(p[1:], o.Addr)
	p[9] = o.Size
	order.PutUint64(p[10:], o.Value)
}

func (o *OpMemWrite) Unpack(r io.Reader) (int, error) {
	var tmp [8 + 1 + 8]byte
	n, err := io.ReadFull(r, tmp[:])
	if err == nil {
		o.Addr = order.Uint64(tmp[:])
		o.Size = uint8(tmp[8])
		o.Value = order.Uint64(tmp[9:])
	}
	return n, err
}

// OpFault records a fault observed at Addr, before any speculative handling.
type OpFault struct {
	Addr  uint64
	Errno uint32
}

func (o *OpFault) Sizeof() int { return 1 + 8 + 4 }
func (o *OpFault) Pack(p []byte) {
	p[0] = OP_FAULT
	order.PutUint64(p[1:], o.Addr)
	order.PutUint32(p[9:], o.Errno)
}

func (o *OpFault) Unpack(r io.Reader) (int, error) {
	var tmp [8 + 4]byte
	n, err := io.ReadFull(r, tmp[:])
	if err == nil {
		o.Addr = order.Uint64(tmp[:])
		o.Errno = order.Uint32(tmp[8:])
	}
	return n, err
}

// OpRollback marks a misspeculated leg being squashed, resuming at Addr.
type OpRollback struct {
	Addr uint64
}

func (o *OpRollback) Sizeof() int { return 1 + 8 }
func (o *OpRollback) Pack(p []byte) {
	p[0] = OP_ROLLBACK
	order.PutUint64(p[1:], o.Addr)
}

func (o *OpRollback) Unpack(r io.Reader) (int, error) {
	var tmp [8]byte
	n, err := io.ReadFull(r, tmp[:])
	if err == nil {
		o.Addr = order.Uint64(tmp[:])
	}
	return n, err
}

// Digest folds a trace into one comparable value with 64-bit FNV-1a over
// the packed records. Equal digests mean equal observations.
func Digest(ops []models.Op) uint64 {
	h := fnv.New64a()
	var buf [18]byte
	for _, op := range ops {
		p := buf[:op.Sizeof()]
		op.Pack(p)
		h.Write(p)
	}
	return h.Sum64()
}
