package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"
)

// dofileCmd loads a source file, executes it top to bottom, and
// prints how long that took -- spec.md §6's "loads file, executes,
// prints timing to stdout."
type dofileCmd struct{}

func (*dofileCmd) Name() string     { return "dofile" }
func (*dofileCmd) Synopsis() string { return "Execute Nilan source from a file" }
func (*dofileCmd) Usage() string {
	return `dofile <path>:
  Load and execute a source file, printing elapsed time to stdout.
`
}
func (*dofileCmd) SetFlags(f *flag.FlagSet) {}

func (r *dofileCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "💥 file not provided\n")
		return subcommands.ExitUsageError
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 failed to read file: %v\n", err)
		return subcommands.ExitFailure
	}

	ctx, err := newInterpreter()
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 failed to start interpreter: %v\n", err)
		return subcommands.ExitFailure
	}

	start := time.Now()
	_, err = ctx.Exec(string(data))
	elapsed := time.Since(start)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	fmt.Printf("executed %s in %s\n", args[0], elapsed)
	return subcommands.ExitSuccess
}
