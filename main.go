package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"rvm/pkg/asm"
	"rvm/pkg/compiler"
	"rvm/pkg/cpu"
	"rvm/pkg/repl"
	"rvm/pkg/utils"
)

const usageText = `usage:
  rvm assemble [-o out.bin] [-align N] [-p] [-v] <in.asm>
  rvm compile  [-o out.asm] [-p] [-ast] [-v] <in.rc>
  rvm run      [-stack N] [-max N] [-hibernate snap.zip] [-resume snap.zip] [-v] <file.rc|file.asm|file.bin>
  rvm repl`

// cli carries the streams and logger shared by every subcommand.
type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	color  bool
	log    *log.Logger
}

func newCLI(stdin io.Reader, stdout, stderr io.Writer) *cli {
	return &cli{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		log:    log.New(io.Discard, "rvm: ", 0),
	}
}

func main() {
	c := newCLI(os.Stdin, os.Stdout, os.Stderr)
	c.color = utils.IsTerminal(os.Stderr)
	os.Exit(c.run(os.Args[1:]))
}

func (c *cli) run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(c.stderr, usageText)
		return 2
	}

	switch args[0] {
	case "assemble", "asm":
		return c.cmdAssemble(args[1:])
	case "compile":
		return c.cmdCompile(args[1:])
	case "run":
		return c.cmdRun(args[1:])
	case "repl":
		return repl.Run()
	case "help", "-h", "-help", "--help":
		fmt.Fprintln(c.stdout, usageText)
		return 0
	}

	fmt.Fprintf(c.stderr, "rvm: unknown command %q\n%s\n", args[0], usageText)
	return 2
}

func (c *cli) flagSet(name, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() {
		fmt.Fprintf(c.stderr, "usage: rvm %s %s\n", name, synopsis)
		fs.PrintDefaults()
	}
	return fs
}

// parseArgs parses flags and returns the single positional argument.
func (c *cli) parseArgs(fs *flag.FlagSet, args []string) (string, bool) {
	if err := fs.Parse(args); err != nil {
		return "", false
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(c.stderr, "expected exactly one input file")
		fs.Usage()
		return "", false
	}
	return fs.Arg(0), true
}

func (c *cli) setVerbose(v bool) {
	if v {
		c.log.SetOutput(c.stderr)
	}
}

func (c *cli) fail(format string, args ...any) int {
	msg := fmt.Sprintf(format, args...)
	if c.color {
		msg = utils.Red(msg)
	}
	fmt.Fprintln(c.stderr, msg)
	return 1
}

// displayPath prefers the absolute path for log lines.
func displayPath(path string) string {
	full, _, err := utils.GetPathInfo(path)
	if err != nil {
		return path
	}
	return full
}

func (c *cli) cmdAssemble(args []string) int {
	fs := c.flagSet("assemble", "[-o out.bin] [-align N] [-p] [-v] <in.asm>")
	outPath := fs.String("o", "", "output binary file path (default: input with .bin extension)")
	align := fs.Int("align", 1, "pad each data directive to a multiple of N bytes")
	printHex := fs.Bool("p", false, "print the hex listing to stdout")
	verbose := fs.Bool("v", false, "log progress to stderr")
	inPath, ok := c.parseArgs(fs, args)
	if !ok {
		return 2
	}
	if *align < 1 {
		fmt.Fprintf(c.stderr, "-align must be at least 1, got %d\n", *align)
		fs.Usage()
		return 2
	}
	c.setVerbose(*verbose)

	source, err := os.ReadFile(inPath)
	if err != nil {
		return c.fail("failed to read input file %q: %v", inPath, err)
	}

	prog, err := asm.New(asm.WithAlignment(*align)).Assemble(string(source))
	if err != nil {
		return c.fail("assembly failed: %v", err)
	}

	if *printHex {
		fmt.Fprintln(c.stdout, asm.HexListing(prog.Code))
	}

	output := *outPath
	if output == "" {
		output = utils.DefaultOutputPath(inPath, ".bin")
	}
	if err := os.WriteFile(output, prog.Code, 0o644); err != nil {
		return c.fail("failed to write binary file %q: %v", output, err)
	}

	c.log.Printf("assembled %d bytes, %d labels -> %s", len(prog.Code), len(prog.Labels), displayPath(output))
	return 0
}

func (c *cli) cmdCompile(args []string) int {
	fs := c.flagSet("compile", "[-o out.asm] [-p] [-ast] [-v] <in.rc>")
	outPath := fs.String("o", "", "output assembly file path (default: input with .asm extension)")
	printAsm := fs.Bool("p", false, "print the generated assembly to stdout")
	printAST := fs.Bool("ast", false, "print the formatted syntax tree to stdout")
	verbose := fs.Bool("v", false, "log progress to stderr")
	inPath, ok := c.parseArgs(fs, args)
	if !ok {
		return 2
	}
	c.setVerbose(*verbose)

	source, err := os.ReadFile(inPath)
	if err != nil {
		return c.fail("failed to read input file %q: %v", inPath, err)
	}

	prog, assembly, err := compiler.CompileToAssembly(string(source))
	if err != nil {
		return c.fail("compilation failed: %v", err)
	}

	if *printAST {
		fmt.Fprint(c.stdout, compiler.Format(prog))
	}
	if *printAsm {
		fmt.Fprint(c.stdout, assembly)
	}

	output := *outPath
	if output == "" {
		output = utils.DefaultOutputPath(inPath, ".asm")
	}
	if err := os.WriteFile(output, []byte(assembly), 0o644); err != nil {
		return c.fail("failed to write assembly file %q: %v", output, err)
	}

	c.log.Printf("compiled %d functions -> %s", len(prog.Funcs()), displayPath(output))
	return 0
}

func (c *cli) cmdRun(args []string) int {
	fs := c.flagSet("run", "[-stack N] [-max N] [-hibernate snap.zip] [-resume snap.zip] [-v] <file>")
	stackSize := fs.Int("stack", cpu.DefaultStackSize, "stack size in bytes")
	maxInstr := fs.Int("max", 0, "stop after N instructions (0: no limit)")
	hibernatePath := fs.String("hibernate", "", "write a snapshot to this file when the run stops")
	resumePath := fs.String("resume", "", "continue from a snapshot instead of loading a program")
	verbose := fs.Bool("v", false, "log progress to stderr")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	c.setVerbose(*verbose)

	var vm *cpu.CPU

	switch {
	case *resumePath != "" && fs.NArg() == 0:
		restored, err := cpu.RestoreFromFile(*resumePath)
		if err != nil {
			return c.fail("failed to restore %q: %v", *resumePath, err)
		}
		vm = restored
		c.log.Printf("resumed %s at ip=0x%04X after %d instructions", displayPath(*resumePath), vm.Regs[cpu.RegIP], vm.Steps)
	case *resumePath == "" && fs.NArg() == 1:
		code, err := loadImage(fs.Arg(0))
		if err != nil {
			return c.fail("%v", err)
		}
		vm = cpu.NewCPU(code, *stackSize)
		c.log.Printf("loaded %d bytes from %s", len(code), displayPath(fs.Arg(0)))
	default:
		fmt.Fprintln(c.stderr, "expected one input file, or -resume without one")
		fs.Usage()
		return 2
	}

	vm.Output = c.stdout
	vm.Input = c.stdin

	result, err := vm.Run(*maxInstr)
	if err != nil {
		return c.fail("run failed at ip=0x%04X: %v", vm.Regs[cpu.RegIP], err)
	}
	c.log.Printf("%s after %d instructions: t0=%d sp=0x%04X", result, vm.Steps, int32(vm.Regs[cpu.RegT0]), vm.Regs[cpu.RegSP])

	if *hibernatePath != "" {
		if err := vm.HibernateToFile(*hibernatePath); err != nil {
			return c.fail("failed to write snapshot %q: %v", *hibernatePath, err)
		}
		c.log.Printf("snapshot -> %s", displayPath(*hibernatePath))
	}
	return 0
}

// loadImage returns machine code for path, compiling or assembling it first
// when the extension says it is source.
func loadImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".rc", ".c":
		res, err := compiler.Compile(string(data))
		if err != nil {
			return nil, fmt.Errorf("compilation failed: %w", err)
		}
		return res.Code, nil
	case ".asm", ".s":
		code, _, err := asm.Assemble(string(data))
		if err != nil {
			return nil, fmt.Errorf("assembly failed: %w", err)
		}
		return code, nil
	}
	return data, nil
}
