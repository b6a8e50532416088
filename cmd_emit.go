package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"nilan/bytefmt"
	"nilan/compiler"
)

// emitCmd compiles a source file and writes its serialized form to
// `bc` in the current directory, the name runBytecode reads back
// (spec.md §6). Unless run with -disassemble=false it also writes a human-readable
// listing next to it, matching the teacher's DumpBytecode/
// DiassembleBytecode pairing in cmd_emit_bytecode.go.
type emitCmd struct {
	disassemble bool
	outPath     string
}

func (*emitCmd) Name() string     { return "emit" }
func (*emitCmd) Synopsis() string { return "Emit the serialized bytecode for a source file" }
func (*emitCmd) Usage() string {
	return `emit <file>:
  Compile and execute a source file, then write its serialized
  bytecode (immediates header + program tail) to disk.
`
}

func (cmd *emitCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&cmd.disassemble, "disassemble", true, "also write a human-readable disassembly listing")
	f.StringVar(&cmd.outPath, "out", "bc", "path to write the serialized bytecode to")
}

func (cmd *emitCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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
	if _, err := ctx.Exec(string(data)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	out, err := os.Create(cmd.outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 failed to create %s: %v\n", cmd.outPath, err)
		return subcommands.ExitFailure
	}
	defer out.Close()
	if err := bytefmt.Dump(ctx, out); err != nil {
		fmt.Fprintf(os.Stderr, "💥 failed to dump bytecode: %v\n", err)
		return subcommands.ExitFailure
	}

	if cmd.disassemble {
		bc := compiler.Bytecode{Instructions: ctx.Program}
		listing, err := bc.DisassembleBytecode()
		if err != nil {
			fmt.Fprintf(os.Stderr, "💥 failed to disassemble bytecode: %v\n", err)
			return subcommands.ExitFailure
		}
		if err := os.WriteFile(cmd.outPath+".dnic", []byte(listing), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "💥 failed to write disassembly: %v\n", err)
			return subcommands.ExitFailure
		}
	}

	return subcommands.ExitSuccess
}
