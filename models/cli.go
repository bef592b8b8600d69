package models

import (
	"flag"
	"fmt"
	"io"
)

// PrintFlags renders a flag set as an aligned option table, defaults shown
// next to the flag name. Zero-ish defaults are left out to keep the table
// quiet.
func PrintFlags(w io.Writer, fs *flag.FlagSet) {
	var flags []*flag.Flag
	wname, wdef := 0, 0
	fs.VisitAll(func(f *flag.Flag) {
		flags = append(flags, f)
		if len(f.Name) > wname {
			wname = len(f.Name)
		}
		if len(f.DefValue) > wdef {
			wdef = len(f.DefValue)
		}
	})
	for _, f := range flags {
		def := ""
		switch f.DefValue {
		case "", "[]", "false", "0", "0s":
		default:
			def = "(" + f.DefValue + ")"
		}
		fmt.Fprintf(w, "  -%-*s %-*s %s\n", wname, f.Name, wdef+2, def, f.Usage)
	}
}
