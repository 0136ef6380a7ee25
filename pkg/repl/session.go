// Package repl implements the interactive Reduced C console.
//
// A session accumulates function definitions. Any other input is treated as
// an expression and evaluated as the body of a generated main:
//
//	rc> int sq(int x) { return x * x; }
//	defined sq
//	rc> sq(7) + 1
//	50
package repl

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"rvm/pkg/compiler"
	"rvm/pkg/cpu"
)

// DefaultStepLimit bounds a single evaluation so a runaway loop returns control.
const DefaultStepLimit = 10_000_000

var (
	ErrReservedName = errors.New("reserved name")
	ErrStepLimit    = errors.New("step limit reached")
)

// Reply describes the effect of one Eval call. Exactly one of Defined or
// HasValue is set for non-empty input.
type Reply struct {
	Defined  []string
	Value    int32
	HasValue bool
	Assembly string
}

// Session holds the definitions entered so far.
type Session struct {
	StepLimit int
	StackSize int

	names []string
	defs  map[string]string
}

func NewSession() *Session {
	return &Session{
		StepLimit: DefaultStepLimit,
		StackSize: cpu.DefaultStackSize,
		defs:      make(map[string]string),
	}
}

// Definitions returns the canonical source of every definition, oldest first.
func (s *Session) Definitions() []string {
	out := make([]string, len(s.names))
	for i, name := range s.names {
		out[i] = s.defs[name]
	}
	return out
}

// Reset forgets all definitions.
func (s *Session) Reset() {
	s.names = nil
	s.defs = make(map[string]string)
}

// Source renders the accumulated definitions as one translation unit.
func (s *Session) Source() string {
	return joinDefs(s.names, s.defs)
}

func joinDefs(names []string, defs map[string]string) string {
	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(defs[name])
		sb.WriteString("\n")
	}
	return sb.String()
}

// Eval handles one complete chunk of input.
func (s *Session) Eval(input string) (*Reply, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return &Reply{}, nil
	}
	if isDefinition(input) {
		return s.define(input)
	}
	return s.evaluate(input)
}

// isDefinition reports whether src starts with the "int" keyword.
func isDefinition(src string) bool {
	tokens, err := compiler.Lex(src)
	return err == nil && len(tokens) > 0 && tokens[0].Type == compiler.INT
}

func (s *Session) define(input string) (*Reply, error) {
	prog, err := compiler.ParseSource(input)
	if err != nil {
		return nil, err
	}

	names := slices.Clone(s.names)
	defs := maps.Clone(s.defs)
	seen := make(map[string]bool)
	reply := &Reply{}
	for _, fn := range prog.Funcs() {
		if fn.Name == "main" {
			return nil, fmt.Errorf("%w: 'main' is generated by the console", ErrReservedName)
		}
		if seen[fn.Name] {
			return nil, fmt.Errorf("%w: '%s' on line %d", compiler.ErrDuplicateSymbol, fn.Name, fn.Line)
		}
		seen[fn.Name] = true
		if _, ok := defs[fn.Name]; !ok {
			names = append(names, fn.Name)
		}
		defs[fn.Name] = compiler.Format(&compiler.Program{Items: []compiler.Item{fn}})
		reply.Defined = append(reply.Defined, fn.Name)
	}

	// A redefinition must keep every later caller valid.
	check := joinDefs(names, defs) + "int main() { return 0; }\n"
	if _, _, err := compiler.CompileToAssembly(check); err != nil {
		return nil, err
	}

	s.names, s.defs = names, defs
	return reply, nil
}

func (s *Session) evaluate(input string) (*Reply, error) {
	expr := strings.TrimSuffix(input, ";")
	src := s.Source() + "int main() { return " + expr + "; }\n"

	res, err := compiler.Compile(src)
	if err != nil {
		return nil, err
	}

	vm := cpu.NewCPU(res.Code, s.StackSize)
	vm.Output = io.Discard
	vm.Input = strings.NewReader("")

	result, err := vm.Run(s.StepLimit)
	if err != nil {
		return nil, fmt.Errorf("ip=0x%04X: %w", vm.Regs[cpu.RegIP], err)
	}
	if result != cpu.Finished {
		return nil, fmt.Errorf("%w after %d instructions", ErrStepLimit, vm.Steps)
	}

	return &Reply{
		Value:    int32(vm.Regs[cpu.RegT0]),
		HasValue: true,
		Assembly: res.Assembly,
	}, nil
}
