package main

import (
	"os"

	"github.com/maruel/subcommands"

	"github.com/calumari/jdiff"
)

const cmdDiffUsage = `diff [flags] <left> <right>

  left, right: JSON or YAML files; at most one may be "-" for JSON on stdin.
`

var cmdDiff = &subcommands.Command{
	UsageLine: cmdDiffUsage,
	ShortDesc: "writes a side-by-side HTML diff of two documents",
	LongDesc: `Canonicalizes both documents, encodes them with sorted keys and writes an
HTML page comparing the two texts line by line.`,
	CommandRun: func() subcommands.CommandRun {
		r := &diffRun{}
		r.registerBaseFlags()
		r.Flags.StringVar(&r.dir, "dir", "", "output directory (default: config output_dir, then $TMPDIR/jdiff)")
		r.Flags.StringVar(&r.name, "name", "", "report file name (default: config filename)")
		return r
	},
}

type diffRun struct {
	baseRun

	dir  string
	name string
}

func (r *diffRun) Run(a subcommands.Application, args []string, _ subcommands.Env) int {
	if len(args) != 2 {
		return r.argErr(a, cmdDiffUsage, "expected two inputs, got %d", len(args))
	}
	if args[0] == "-" && args[1] == "-" {
		return r.argErr(a, cmdDiffUsage, "stdin can be used for one input only")
	}
	cfg, err := r.setup(a)
	if err != nil {
		return r.done(err)
	}
	e, err := r.emitter(a, cfg)
	if err != nil {
		return r.done(err)
	}

	left, err := readInput(args[0], os.Stdin)
	if err != nil {
		return r.done(err)
	}
	right, err := readInput(args[1], os.Stdin)
	if err != nil {
		return r.done(err)
	}

	opts := []jdiff.DiffOption{jdiff.WithFilename(cfg.Filename)}
	if r.dir != "" {
		opts = append(opts, jdiff.WithOutputDir(r.dir))
	}
	if r.name != "" {
		opts = append(opts, jdiff.WithFilename(r.name))
	}
	_, err = e.WriteDiffReport(left, right, opts...)
	return r.done(err)
}
