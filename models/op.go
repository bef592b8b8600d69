package models

import "io"

// Op is one record of an observation trace. Records pack into fixed-size
// little endian frames so traces hash and diff deterministically.
type Op interface {
	Sizeof() int
	Pack(p []byte)
	Unpack(r io.Reader) (int, error)
}
