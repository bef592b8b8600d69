package gen

import (
	"flag"
	"fmt"
	"os"

	"github.com/speculorn/speculorn/cmd"
	"github.com/speculorn/speculorn/models"
)

func Main(args []string) {
	fs := flag.NewFlagSet("args", flag.ExitOnError)
	n := fs.Int("n", 1, "number of inputs to generate")
	seed := fs.Uint64("seed", 1, "seed of the first input")
	fs.Usage = func() {
		fmt.Printf("Usage: %s [options] <prefix>\n", args[0])
		fs.PrintDefaults()
	}
	fs.Parse(args[1:])
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	prefix := fs.Arg(0)
	for i := 0; i < *n; i++ {
		in := models.RandomInput(*seed + uint64(i))
		path := fmt.Sprintf("%s.%d.input", prefix, i)
		f, err := os.Create(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create %s: %v\n", path, err)
			os.Exit(1)
		}
		err = in.Pack(f)
		f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s seed=%d\n", path, in.Seed)
	}
}

func init() { cmd.Register("gen", "generate random input files", Main) }
