// Command nilan is the embeddable interpreter's own CLI front end:
// repl, dofile, emit and runBytecode subcommands dispatched through
// google/subcommands, the way the teacher's cmd_*.go files were
// already shaped to work before anything registered them.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"

	"nilan/builtins"
	"nilan/heap"
	"nilan/runtime"
	_ "nilan/vm" // registers the bytecode interpreter with runtime.SetRunner
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&replCmd{}, "")
	subcommands.Register(&dofileCmd{}, "")
	subcommands.Register(&emitCmd{}, "")
	subcommands.Register(&runBytecodeCmd{}, "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}

// newInterpreter builds a fresh Context sized per heap.DefaultCapacity
// and installs the native built-ins, the one setup path repl, dofile
// and emit share; runBytecode builds its own Context instead.
func newInterpreter() (*runtime.Context, error) {
	ctx, err := runtime.New(heap.DefaultCapacity())
	if err != nil {
		return nil, err
	}
	if err := builtins.Install(ctx); err != nil {
		return nil, err
	}
	return ctx, nil
}
