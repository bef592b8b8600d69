package main

import (
	"github.com/speculorn/speculorn/cmd"

	_ "github.com/speculorn/speculorn/cmd/run"

	_ "github.com/speculorn/speculorn/cmd/asm"
	_ "github.com/speculorn/speculorn/cmd/dis"
	_ "github.com/speculorn/speculorn/cmd/dump"
	_ "github.com/speculorn/speculorn/cmd/gen"
)

func main() { cmd.Main() }
