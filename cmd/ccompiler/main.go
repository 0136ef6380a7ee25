package main

import (
	"fmt"
	"os"

	"rvm/pkg/asm"
	"rvm/pkg/compiler"
)

const testSource = `int add(int a, int b) {
    int sum = a + b;
    return sum;
}

int main() {
    return add(10, 20);
}
`

func main() {
	src := testSource
	if len(os.Args) > 1 {
		data, err := os.ReadFile(os.Args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, "read error:", err)
			os.Exit(1)
		}
		src = string(data)
	}

	fmt.Printf("Source:\n%s\n", src)

	// Lex
	tokens, err := compiler.Lex(src)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lex error:", err)
		os.Exit(1)
	}

	fmt.Printf("Tokens (%d)\n", len(tokens))
	for _, tok := range tokens {
		fmt.Println(" ", tok)
	}
	fmt.Println()

	// Parse
	prog, err := compiler.Parse(tokens, src)
	if err != nil {
		fmt.Fprintln(os.Stderr, "parse error:", err)
		os.Exit(1)
	}

	fmt.Println("AST")
	for _, fn := range prog.Funcs() {
		fmt.Println(" ", fn)
	}
	fmt.Println()
	fmt.Println("Formatted")
	fmt.Print(compiler.Format(prog))
	fmt.Println()

	// Resolve
	global, err := compiler.Resolve(prog)
	if err != nil {
		fmt.Fprintln(os.Stderr, "resolve error:", err)
		os.Exit(1)
	}

	fmt.Println("Scopes")
	for _, name := range global.Names() {
		fmt.Println(" ", global.LookupLocal(name))
	}
	for _, fn := range prog.Funcs() {
		fmt.Printf("  %s: args %d bytes, locals %d bytes\n", fn.Scope.Name, fn.Scope.ArgsSize(), fn.Scope.LocalsSize())
		for _, name := range fn.Scope.Names() {
			fmt.Println("   ", fn.Scope.LookupLocal(name))
		}
	}
	fmt.Println()

	// code Generation
	assembly, err := compiler.Generate(prog)
	if err != nil {
		fmt.Fprintln(os.Stderr, "codegen error:", err)
		os.Exit(1)
	}

	fmt.Println("Generated Assembly")
	fmt.Print(assembly)
	fmt.Println()

	// Assemble
	code, _, err := asm.Assemble(assembly)
	if err != nil {
		fmt.Fprintln(os.Stderr, "assembly error:", err)
		os.Exit(1)
	}

	fmt.Printf("Machine Code (%d bytes)\n", len(code))
	fmt.Println(asm.HexListing(code))
}
