package dis

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/speculorn/speculorn/arch/x86_64"
	"github.com/speculorn/speculorn/cmd"
	"github.com/speculorn/speculorn/models"
)

func Main(args []string) {
	fs := flag.NewFlagSet("args", flag.ExitOnError)
	addr := fs.Uint64("addr", models.NewLayout(0).CodeBase, "disassembly base address")
	hexFlag := fs.Bool("x", false, "treat the argument as hex instead of a path")
	fs.Usage = func() {
		fmt.Printf("Usage: %s [options] <file | hex>\n", args[0])
		fs.PrintDefaults()
	}
	fs.Parse(args[1:])
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	var code []byte
	var err error
	if *hexFlag {
		code, err = hex.DecodeString(fs.Arg(0))
	} else {
		code, err = ioutil.ReadFile(fs.Arg(0))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read code: %v\n", err)
		os.Exit(1)
	}
	dis, err := x86_64.Arch.Dis.Dis(code, *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	for _, ins := range dis {
		fmt.Printf("0x%x: %-24s %s %s\n",
			ins.Addr(), hex.EncodeToString(ins.Bytes()), ins.Mnemonic(), ins.OpStr())
	}
}

func init() { cmd.Register("dis", "disassemble a test case with capstone", Main) }
