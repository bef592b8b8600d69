package asm

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"github.com/speculorn/speculorn/arch/x86_64"
	"github.com/speculorn/speculorn/cmd"
	"github.com/speculorn/speculorn/models"
)

func Main(args []string) {
	fs := flag.NewFlagSet("args", flag.ExitOnError)
	addr := fs.Uint64("addr", models.NewLayout(0).CodeBase, "assembly origin address")
	outfile := fs.String("o", "", "write raw code to a file instead of hex to stdout")
	fs.Usage = func() {
		fmt.Printf("Usage: %s [options] <assembly text | ->\n", args[0])
		fs.PrintDefaults()
	}
	fs.Parse(args[1:])
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(1)
	}

	text := strings.Join(fs.Args(), " ")
	if text == "-" {
		data, err := ioutil.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read stdin: %v\n", err)
			os.Exit(1)
		}
		text = string(data)
	}
	code, err := x86_64.Arch.Asm.Asm(text, *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if *outfile != "" {
		if err := ioutil.WriteFile(*outfile, code, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", *outfile, err)
			os.Exit(1)
		}
		return
	}
	fmt.Println(hex.EncodeToString(code))
}

func init() { cmd.Register("asm", "assemble a snippet with keystone", Main) }
