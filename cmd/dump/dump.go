package dump

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/speculorn/speculorn/cmd"
	"github.com/speculorn/speculorn/models/trace"
)

func PrintJson(tf *trace.TraceReader) error {
	out, err := json.Marshal(&tf.Header)
	if err != nil {
		return errors.Wrap(err, "failed to encode header")
	}
	fmt.Printf("%s\n", out)
	for {
		op, err := tf.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return errors.Wrap(err, "failed to read next record")
		}
		out, _ := json.Marshal(op)
		fmt.Printf("%s\n", out)
	}
	return nil
}

func PrintPretty(tf *trace.TraceReader) error {
	h := &tf.Header
	fmt.Printf("%s trace: contract=%s tracer=%s seed=%d digest=%016x\n",
		h.Arch, h.Contract, h.Tracer, h.Seed, h.Digest)
	for {
		op, err := tf.Next()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return errors.Wrap(err, "failed to read next record")
		}
		switch o := op.(type) {
		case *trace.OpFetch:
			fmt.Printf("fetch    0x%x size=%d\n", o.Addr, o.Size)
		case *trace.OpMemRead:
			fmt.Printf("read     0x%x size=%d value=0x%x\n", o.Addr, o.Size, o.Value)
		case *trace.OpMemWrite:
			fmt.Printf("write    0x%x size=%d value=0x%x\n", o.Addr, o.Size, o.Value)
		case *trace.OpFault:
			fmt.Printf("fault    0x%x errno=%d\n", o.Addr, o.Errno)
		case *trace.OpRollback:
			fmt.Printf("rollback 0x%x\n", o.Addr)
		}
	}
}

func Main(args []string) {
	fs := flag.NewFlagSet("args", flag.ExitOnError)
	jsonFlag := fs.Bool("json", false, "output the trace as line-delimited JSON")
	fs.Usage = func() {
		fmt.Printf("Usage: %s [options] <tracefile>...\n", args[0])
		fs.PrintDefaults()
	}
	fs.Parse(args[1:])
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(1)
	}

	print := PrintPretty
	if *jsonFlag {
		print = PrintJson
	}
	for _, path := range fs.Args() {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open %s: %v\n", path, err)
			os.Exit(1)
		}
		tf, err := trace.NewReader(f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read %s: %v\n", path, err)
			os.Exit(1)
		}
		err = print(tf)
		tf.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}
}

func init() { cmd.Register("dump", "print a contract trace file", Main) }
