package main

import (
	"fmt"
	"os"

	"github.com/maruel/subcommands"
)

const cmdDumpUsage = `dump [flags] <input>

  input: a JSON or YAML file, or "-" for JSON on stdin.
`

var cmdDump = &subcommands.Command{
	UsageLine: cmdDumpUsage,
	ShortDesc: "writes the canonical JSON form of a document",
	LongDesc: `Canonicalizes a JSON or YAML document and writes it as JSON indented by
four spaces. Strings holding JSON objects or arrays are expanded in place.
Without -o the output goes to a new temporary .json file.`,
	CommandRun: func() subcommands.CommandRun {
		r := &dumpRun{}
		r.registerBaseFlags()
		r.Flags.StringVar(&r.out, "o", "", "output file (default: a new temporary file)")
		return r
	},
}

type dumpRun struct {
	baseRun

	out string
}

func (r *dumpRun) Run(a subcommands.Application, args []string, _ subcommands.Env) int {
	if len(args) != 1 {
		return r.argErr(a, cmdDumpUsage, "expected exactly one input, got %d", len(args))
	}
	cfg, err := r.setup(a)
	if err != nil {
		return r.done(err)
	}
	e, err := r.emitter(a, cfg)
	if err != nil {
		return r.done(err)
	}

	v, err := readInput(args[0], os.Stdin)
	if err != nil {
		return r.done(err)
	}
	path, err := e.WriteJSON(v, r.out)
	if err != nil {
		return r.done(err)
	}
	fmt.Fprintln(a.GetOut(), path)
	return ecOK
}
