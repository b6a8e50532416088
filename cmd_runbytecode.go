package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"nilan/builtins"
	"nilan/bytefmt"
	"nilan/heap"
	"nilan/runtime"
)

// runBytecodeCmd loads the serialized program from `bc` in the
// current directory and runs it, per spec.md §6's "runBytecode —
// loads serialized program from `bc` in the cwd."
type runBytecodeCmd struct {
	inPath string
}

func (*runBytecodeCmd) Name() string     { return "runBytecode" }
func (*runBytecodeCmd) Synopsis() string { return "Run a previously serialized bytecode file" }
func (*runBytecodeCmd) Usage() string {
	return `runBytecode:
  Load and run the serialized bytecode file "bc" from the current
  directory.
`
}

func (cmd *runBytecodeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&cmd.inPath, "in", "bc", "path to the serialized bytecode file")
}

func (cmd *runBytecodeCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	in, err := os.Open(cmd.inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 failed to open %s: %v\n", cmd.inPath, err)
		return subcommands.ExitFailure
	}
	defer in.Close()

	// The serialized program re-runs every `def` the dumping context
	// compiled, the built-ins' own definitions included, so installing
	// them here again would double-define every global and shift the
	// frame offsets the loaded bytecode was compiled against. Only the
	// native-function table is rebuilt, at the same indices the dump's
	// Wrapped Function immediates refer to.
	ctx, err := runtime.New(heap.DefaultCapacity())
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 failed to start interpreter: %v\n", err)
		return subcommands.ExitFailure
	}
	builtins.InstallNatives(ctx)

	result, err := bytefmt.Load(ctx, in)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	fmt.Println(builtins.Repr(ctx, result))
	return subcommands.ExitSuccess
}
