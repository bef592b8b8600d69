package run

import (
	"os"

	"github.com/speculorn/speculorn/cmd"
)

func Main(args []string) {
	os.Exit(cmd.NewSpeculornCmd().Run(args))
}

func init() { cmd.Register("run", "execute a test case under a contract", Main) }
