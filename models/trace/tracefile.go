package trace

import (
	"encoding/binary"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/speculorn/speculorn/models"
)

var TRACE_MAGIC = "SPCT"

var strucOpts = &struc.Options{Order: binary.LittleEndian}

type TraceHeader struct {
	// MAGIC ("SPCT")
	Magic string `struc:"[4]byte" json:"-"`
	// file format version
	Version uint32 `json:"version"`

	// Emulated architecture, e.g. "x86_64". Right-null-padded.
	Arch string `struc:"[32]byte" json:"arch"`

	// Contract the trace was collected under, e.g. "cond". Right-null-padded.
	Contract string `struc:"[32]byte" json:"contract"`

	// Observation clause, e.g. "ct". Right-null-padded.
	Tracer string `struc:"[32]byte" json:"tracer"`

	// Input seed and the trace digest, for quick comparison without replay.
	Seed   uint64 `json:"seed"`
	Digest uint64 `json:"digest"`
}

type TraceWriter struct {
	w, zw io.WriteCloser
	buf   []byte
}

func NewWriter(w io.WriteCloser, header *TraceHeader) (*TraceWriter, error) {
	header.Magic = TRACE_MAGIC
	header.Version = 1
	if err := struc.PackWithOptions(w, header, strucOpts); err != nil {
		return nil, errors.Wrap(err, "failed to pack header")
	}
	zw := snappy.NewBufferedWriter(w)
	return &TraceWriter{w: w, zw: zw}, nil
}

// write one record at a time
func (t *TraceWriter) Pack(op models.Op) error {
	size := op.Sizeof()
	if cap(t.buf) < size {
		t.buf = make([]byte, size)
	}
	p := t.buf[:size]
	op.Pack(p)
	_, err := t.zw.Write(p)
	return err
}

func (t *TraceWriter) Close() {
	t.zw.Close()
	t.w.Close()
}

type TraceReader struct {
	r      io.ReadCloser
	zr     *snappy.Reader
	Header TraceHeader
}

func NewReader(r io.ReadCloser) (*TraceReader, error) {
	t := &TraceReader{r: r}
	if err := struc.UnpackWithOptions(r, &t.Header, strucOpts); err != nil {
		return nil, errors.Wrap(err, "failed to unpack header")
	}
	if t.Header.Magic != TRACE_MAGIC {
		return nil, errors.New("invalid trace file magic")
	}
	t.Header.Arch = strings.TrimRight(t.Header.Arch, "\x00")
	t.Header.Contract = strings.TrimRight(t.Header.Contract, "\x00")
	t.Header.Tracer = strings.TrimRight(t.Header.Tracer, "\x00")
	t.zr = snappy.NewReader(r)
	return t, nil
}

func (t *TraceReader) Next() (models.Op, error) {
	op, _, err := Unpack(t.zr)
	return op, err
}

func (t *TraceReader) Close() {
	t.zr.Reset(nil)
	t.r.Close()
}
