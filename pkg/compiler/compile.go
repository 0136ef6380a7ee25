package compiler

import (
	"errors"
	"fmt"

	"rvm/pkg/asm"
)

var (
	ErrSyntax           = errors.New("syntax error")
	ErrDuplicateSymbol  = errors.New("duplicate symbol")
	ErrUndefinedSymbol  = errors.New("undefined symbol")
	ErrArityMismatch    = errors.New("arity mismatch")
	ErrBreakOutsideLoop = errors.New("break outside loop")
	ErrNoMain           = errors.New("no main function")
)

// Result holds every artifact of a successful compilation.
type Result struct {
	Program  *Program
	Assembly string
	Code     []byte
}

// ParseSource lexes and parses src without resolving it.
func ParseSource(src string) (*Program, error) {
	tokens, err := Lex(src)
	if err != nil {
		return nil, err
	}
	return Parse(tokens, src)
}

// CompileToAssembly runs the front end, the resolver and the code generator.
func CompileToAssembly(src string) (*Program, string, error) {
	prog, err := ParseSource(src)
	if err != nil {
		return nil, "", err
	}
	if _, err := Resolve(prog); err != nil {
		return nil, "", err
	}
	assembly, err := Generate(prog)
	if err != nil {
		return nil, "", err
	}
	return prog, assembly, nil
}

// Compile turns Reduced C source into bytecode.
func Compile(src string) (*Result, error) {
	prog, assembly, err := CompileToAssembly(src)
	if err != nil {
		return nil, err
	}

	machineCode, _, err := asm.Assemble(assembly)
	if err != nil {
		return nil, fmt.Errorf("assembly error: %w", err)
	}

	return &Result{Program: prog, Assembly: assembly, Code: machineCode}, nil
}
