// Command jdiff writes canonical JSON dumps and HTML diff reports of JSON or
// YAML documents.
package main

import (
	"os"

	"github.com/maruel/subcommands"
)

var application = &subcommands.DefaultApplication{
	Name:  "jdiff",
	Title: "Canonical JSON dumps and side-by-side HTML diffs of structured documents.",
	// Keep in alphabetical order of their name.
	Commands: []*subcommands.Command{
		cmdDiff,
		cmdDump,
		subcommands.CmdHelp,
	},
}

func main() {
	os.Exit(subcommands.Run(application, nil))
}
