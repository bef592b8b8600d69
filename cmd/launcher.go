package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

type command struct {
	name, desc string
	main       func(args []string)
}

var commands = make(map[string]*command)

func Register(name, desc string, main func(args []string)) {
	commands[name] = &command{name, desc, main}
}

func usage() {
	names := make([]string, 0, len(commands))
	pad := 0
	for name := range commands {
		names = append(names, name)
		if len(name) > pad {
			pad = len(name)
		}
	}
	sort.Strings(names)
	fmt.Fprintln(os.Stderr, "Commands:")
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "%-*s | %s\n", pad, name, commands[name].desc)
	}
	fmt.Fprintf(os.Stderr, "\nExample: %s run -contract cond -taint -inputs 8 case.bin\n\n", os.Args[0])
}

func Main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Command '%s' not found.\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	args := append([]string{strings.Join(os.Args[:2], " ")}, os.Args[2:]...)
	cmd.main(args)
}
