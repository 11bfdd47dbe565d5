// Command pl0c compiles a PL/0C source file and, unless told otherwise,
// runs the result on the PL/0C stack machine.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"pl0c/pkg/compiler"
	"pl0c/pkg/diag"
	"pl0c/pkg/isa"
	"pl0c/pkg/vm"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("pl0c", flag.ContinueOnError)
	verbose := fs.Bool("v", false, "trace compilation and execution")
	listOnly := fs.Bool("l", false, "compile and print a disassembly listing, but don't run")
	stackSize := fs.Int("stack", vm.DefaultStackSize, "data stack size, in words")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: pl0c [-v] [-l] [-stack n] (-|sourcefile)")
		return 2
	}
	path := fs.Arg(0)

	var source []byte
	var err error
	if path == "-" {
		source, err = io.ReadAll(os.Stdin)
	} else {
		source, err = os.ReadFile(path)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "pl0c: %v\n", err)
		return 1
	}

	level := ""
	if *verbose {
		level = "debug"
	}
	log := diag.NewLogger(level)
	defer log.Sync() //nolint:errcheck

	sink := diag.New("pl0c", os.Stderr, log)

	comp := compiler.New(sink)
	prog, err := comp.Compile(string(source))
	if err != nil {
		fmt.Fprintf(os.Stderr, "pl0c: %d error(s)\n", sink.Count())
		return sink.ExitCode()
	}

	if *listOnly {
		for _, line := range isa.DisasmAll(prog) {
			fmt.Println(line)
		}
		return 0
	}

	machine := vm.New(*stackSize, log)
	machine.SetVerbose(*verbose)
	cycles, err := machine.Run(prog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pl0c: %v\n", diag.Wrap(err, path))
		return 1
	}

	log.Debugw("run complete", "cycles", cycles)
	return 0
}
