package models

import (
	"io"
	"os"
	"time"
)

// Speculation limits. Nesting bounds how many checkpoints may be live at
// once, Window bounds how many instructions a speculative leg may run before
// a forced rollback.
const (
	DefaultNesting = 5
	DefaultWindow  = 250
	DefaultTimeout = 10 * time.Second
)

type Config struct {
	// speculation limits
	Nesting int
	Window  int

	// per-run bounds
	Timeout time.Duration
	Budget  uint64

	// observation
	Tracer string
	Taint  bool

	// faulty region handling, set by the contract factory
	TrapFaulty   bool
	DetectFaulty bool

	Color   bool
	Verbose bool

	Output io.Writer
}

func (c *Config) Init() *Config {
	if c.Nesting == 0 {
		c.Nesting = DefaultNesting
	}
	if c.Window == 0 {
		c.Window = DefaultWindow
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Tracer == "" {
		c.Tracer = "ct"
	}
	if c.Output == nil {
		c.Output = os.Stderr
	}
	return c
}
