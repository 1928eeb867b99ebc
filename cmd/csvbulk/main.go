// Command csvbulk drives the parallel CSV bulk-import engine from the
// command line: a root command with the job's tunables as persistent
// flags, an "import" subcommand that runs a job end to end, and a
// "generate" subcommand that writes a synthetic CSV fixture for
// exercising the importer at a given size.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
