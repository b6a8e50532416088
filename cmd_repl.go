package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/chzyer/readline"
	"github.com/google/subcommands"

	"nilan/builtins"
)

// replCmd implements the interactive REPL: "> " prompt, read a line,
// execute it, print the result via the same Repr the print built-in
// uses, loop. An optional startup-source path is loaded silently
// before the first prompt.
type replCmd struct{}

func (*replCmd) Name() string     { return "repl" }
func (*replCmd) Synopsis() string { return "Start an interactive REPL session" }
func (*replCmd) Usage() string {
	return `repl [startup-source]:
  Start an interactive REPL session, optionally loading a source file
  first.
`
}
func (*replCmd) SetFlags(f *flag.FlagSet) {}

func (r *replCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, err := newInterpreter()
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 failed to start interpreter: %v\n", err)
		return subcommands.ExitFailure
	}

	if args := f.Args(); len(args) > 0 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "💥 failed to read startup source: %v\n", err)
			return subcommands.ExitFailure
		}
		if _, err := ctx.Exec(string(data)); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return subcommands.ExitFailure
		}
	}

	rl, err := readline.New("> ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 failed to start line editor: %v\n", err)
		return subcommands.ExitFailure
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			}
			continue
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "💥 %v\n", err)
			return subcommands.ExitFailure
		}
		if line == "" {
			continue
		}

		result, err := ctx.Exec(line)
		if err != nil {
			// An error leaves the stacks in an unspecified state;
			// reset them before offering the next prompt.
			fmt.Fprintln(os.Stderr, err)
			ctx.ResetAfterError()
			continue
		}
		fmt.Println(builtins.Repr(ctx, result))
	}
	return subcommands.ExitSuccess
}
