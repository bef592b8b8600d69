package cmd

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/shibukawa/configdir"

	"github.com/speculorn/speculorn"
	"github.com/speculorn/speculorn/arch/x86_64"
	"github.com/speculorn/speculorn/models"
	"github.com/speculorn/speculorn/models/trace"
)

type strslice []string

func (s *strslice) String() string {
	return fmt.Sprintf("%v", *s)
}

func (s *strslice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// SpeculornCmd is the shared harness for subcommands that execute test
// cases: flag surface, config assembly, model construction, result
// printing. Subcommands override the hooks they care about.
type SpeculornCmd struct {
	Config *models.Config

	SetupFlags func() error
	MakeModel  func(contract string) (*speculorn.Model, error)
	RunInputs  func(tc *models.TestCase, inputs []*models.Input) error
	Teardown   func()

	Model *speculorn.Model
	Flags *flag.FlagSet
}

func NewSpeculornCmd() *SpeculornCmd {
	fs := flag.NewFlagSet("cli", flag.ExitOnError)
	cmd := &SpeculornCmd{Flags: fs}
	cmd.MakeModel = func(contract string) (*speculorn.Model, error) {
		return x86_64.New(contract, cmd.Config)
	}
	return cmd
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// deepestStack walks the cause chain and keeps the innermost stack trace,
// the one closest to where things actually went wrong.
func deepestStack(err error) errors.StackTrace {
	var st errors.StackTrace
	for err != nil {
		if t, ok := err.(stackTracer); ok {
			st = t.StackTrace()
		}
		cause, ok := err.(interface{ Cause() error })
		if !ok {
			break
		}
		err = cause.Cause()
	}
	return st
}

// PrintError prints an error and the deepest stack trace it carries.
func (c *SpeculornCmd) PrintError(err error) {
	fmt.Fprintf(os.Stderr, "%s\n", strings.Repeat("-", 40))
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	st := deepestStack(err)
	if st == nil {
		return
	}
	// parse full path and method name for each stack frame
	var frames [][]string
	for _, f := range st {
		fullpath := ""
		fileline := fmt.Sprintf("%s:%d", f, f)
		method := fmt.Sprintf("%n", f)

		frame := fmt.Sprintf("%+s", f)
		tmp := strings.SplitN(frame, "\n", 3)
		if len(tmp) == 2 {
			pathsplit := strings.Split(tmp[0], "/")
			method = pathsplit[len(pathsplit)-1]
			fullpath = strings.TrimSpace(tmp[1])
		}
		frames = append(frames, []string{fullpath, fileline, method})
		if method == "main.main" {
			break
		}
	}
	// calculate column widths
	var widths [3]int
	for _, f := range frames {
		for i, s := range f {
			if len(s) > widths[i] {
				widths[i] = len(s)
			}
		}
	}
	// print pretty stacktrace
	for _, f := range frames {
		for i := 0; i < 2; i++ {
			if widths[i] > 0 {
				pad := strings.Repeat(" ", widths[i]-len(f[i]))
				fmt.Fprintf(os.Stderr, "%s%s | ", f[i], pad)
			}
		}
		fmt.Fprintf(os.Stderr, "%s()\n", f[2])
	}
}

// configDefaults applies key=value lines from a "defaults" file in the
// speculorn config directory. Explicit flags still win because parsing
// happens afterwards.
func configDefaults(fs *flag.FlagSet) {
	dirs := configdir.New("speculorn", "cli")
	for _, dir := range dirs.QueryFolders(configdir.All) {
		data, err := dir.ReadFile("defaults")
		if err != nil {
			continue
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			kv := strings.SplitN(line, "=", 2)
			if len(kv) != 2 {
				continue
			}
			fs.Set(strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1]))
		}
		return
	}
}

func (c *SpeculornCmd) Run(argv []string) int {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	fs := c.Flags
	contract := fs.String("contract", "seq", "leakage contract to run under")
	list := fs.Bool("contracts", false, "list the contracts and exit")
	asm := fs.String("asm", "", "assemble this snippet instead of loading a file")
	meta := fs.String("meta", "", "instruction metadata JSON (default <testcase>.json)")

	var inputFiles strslice
	fs.Var(&inputFiles, "input", "load a packed input file (repeatable)")
	ninputs := fs.Int("inputs", 0, "generate this many random inputs")
	seed := fs.Uint64("seed", 1, "seed for generated inputs")

	nesting := fs.Int("nesting", 0, "max speculation nesting depth")
	window := fs.Int("window", 0, "speculation window in instructions")
	budget := fs.Uint64("budget", 0, "instruction budget per run (0 is unlimited)")
	timeout := fs.Duration("timeout", 0, "wall clock bound per run")

	tracer := fs.String("tracer", "", "observation clause: ct, arch or mem")
	taint := fs.Bool("taint", false, "report which input elements leak")
	tracefile := fs.String("to", "", "write the trace of input N to <file>.N")

	state := fs.Bool("state", false, "print registers after each run")
	diff := fs.Bool("diff", false, "print a register diff after each run")
	color := fs.Bool("color", false, "color the register diff")
	verbose := fs.Bool("v", false, "verbose output (disassembles the test case)")
	outfile := fs.String("o", "", "redirect diagnostics to a file (default stderr)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <testcase>\n\nOptions:\n", os.Args[0])
		models.PrintFlags(os.Stderr, fs)
		fmt.Fprintf(os.Stderr, "\nContracts:\n")
		for _, name := range x86_64.Contracts() {
			fmt.Fprintf(os.Stderr, "  %-12s %s\n", name, x86_64.Describe(name))
		}
	}
	if c.SetupFlags != nil {
		if err := c.SetupFlags(); err != nil {
			panic(err)
		}
	}
	configDefaults(fs)
	fs.Parse(argv[1:])

	if *list {
		for _, name := range x86_64.Contracts() {
			fmt.Printf("%-12s %s\n", name, x86_64.Describe(name))
		}
		return 0
	}

	config := &models.Config{
		Nesting: *nesting,
		Window:  *window,
		Timeout: *timeout,
		Budget:  *budget,
		Tracer:  *tracer,
		Taint:   *taint,
		Color:   *color,
		Verbose: *verbose,
	}
	c.Config = config
	if *outfile != "" {
		out, err := os.OpenFile(*outfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			panic(err)
		}
		config.Output = out
	}

	args := fs.Args()
	var tc *models.TestCase
	switch {
	case *asm != "":
		code, err := x86_64.Arch.Asm.Asm(*asm, models.NewLayout(0).CodeBase)
		if err != nil {
			c.PrintError(err)
			return 1
		}
		tc = &models.TestCase{Name: "<asm>", Code: code}
	case len(args) == 1:
		var err error
		if tc, err = models.LoadTestCase(args[0]); err != nil {
			c.PrintError(err)
			return 1
		}
	default:
		fs.Usage()
		return 1
	}
	if *meta != "" {
		if err := tc.LoadMeta(*meta); err != nil {
			c.PrintError(err)
			return 1
		}
	}

	m, err := c.MakeModel(*contract)
	if err != nil {
		c.PrintError(err)
		return 1
	}
	c.Model = m
	defer m.Close()
	if c.Teardown != nil {
		defer c.Teardown()
	}

	if err := m.LoadTestCase(tc); err != nil {
		c.PrintError(err)
		return 1
	}

	if config.Verbose {
		if dis, err := x86_64.Arch.Dis.Dis(tc.Code, m.Layout().CodeBase); err == nil {
			for _, ins := range dis {
				fmt.Fprintf(config.Output, "0x%x: %s %s\n", ins.Addr(), ins.Mnemonic(), ins.OpStr())
			}
		}
	}

	inputs, err := gatherInputs(inputFiles, *ninputs, *seed)
	if err != nil {
		c.PrintError(err)
		return 1
	}

	if c.RunInputs == nil {
		c.RunInputs = func(tc *models.TestCase, inputs []*models.Input) error {
			return c.runInputs(inputs, *tracefile, *contract, *state, *diff)
		}
	}
	if err := c.RunInputs(tc, inputs); err != nil {
		c.PrintError(err)
		return 1
	}
	return 0
}

func gatherInputs(paths []string, n int, seed uint64) ([]*models.Input, error) {
	var inputs []*models.Input
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open input")
		}
		in, err := models.UnpackInput(f)
		f.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load %s", path)
		}
		inputs = append(inputs, in)
	}
	for i := 0; i < n; i++ {
		inputs = append(inputs, models.RandomInput(seed+uint64(i)))
	}
	if len(inputs) == 0 {
		inputs = append(inputs, models.RandomInput(seed))
	}
	return inputs, nil
}

func (c *SpeculornCmd) runInputs(inputs []*models.Input, tracefile, contract string, state, diff bool) error {
	m := c.Model
	var sd *models.StatusDiff
	if diff {
		sd = &models.StatusDiff{Arch: m.Arch(), Cpu: m.Cpu()}
	}
	for i, in := range inputs {
		if sd != nil {
			// prime the diff with the input's starting state
			if err := m.Arch().LoadInput(m.Cpu(), m.Layout(), in); err != nil {
				return err
			}
			sd.Changes(false)
		}
		res, err := m.Run(in)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("input %-3d seed=%-20d digest=%016x", i, in.Seed, res.Digest)
		if c.Config.Taint {
			line += fmt.Sprintf(" leaked=%v", res.Taint)
		}
		fmt.Println(line)
		if state {
			if err := x86_64.PrintState(os.Stdout, m.Cpu(), m.Layout(), false); err != nil {
				return err
			}
		}
		if sd != nil {
			fmt.Print(sd.Changes(true).String(c.Config.Color))
		}
		if tracefile != "" {
			if err := c.writeTrace(fmt.Sprintf("%s.%d", tracefile, i), in, res, contract); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *SpeculornCmd) writeTrace(path string, in *models.Input, res *models.Result, contract string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create trace file")
	}
	header := &trace.TraceHeader{
		Arch:     c.Model.Arch().Name,
		Contract: contract,
		Tracer:   c.Config.Tracer,
		Seed:     in.Seed,
		Digest:   res.Digest,
	}
	w, err := trace.NewWriter(f, header)
	if err != nil {
		f.Close()
		return err
	}
	defer w.Close()
	for _, op := range res.Records {
		if err := w.Pack(op); err != nil {
			return errors.Wrap(err, "failed to write trace")
		}
	}
	return nil
}
