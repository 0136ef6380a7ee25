package compiler

import "fmt"

// SymbolKind says where a variable lives relative to the frame pointer.
type SymbolKind int

const (
	Local    SymbolKind = iota // below bp
	Argument                   // above the saved registers
)

func (k SymbolKind) String() string {
	switch k {
	case Local:
		return "local"
	case Argument:
		return "argument"
	}
	return fmt.Sprintf("SymbolKind(%d)", int(k))
}

// typeSizes maps a type name to its size in bytes.
var typeSizes = map[string]int{
	"int": 4,
}

// TypeSize returns the size of the named type, or 0 if it is unknown.
func TypeSize(name string) int {
	return typeSizes[name]
}

// Symbol is implemented by *VarSymbol and *FuncSymbol.
type Symbol interface {
	SymbolName() string
}

// VarSymbol is a local variable or a parameter.
type VarSymbol struct {
	Name   string
	Type   string
	Kind   SymbolKind
	Offset int // bytes from bp, always positive
}

func (v *VarSymbol) SymbolName() string { return v.Name }

// Size is the byte width of the variable's type.
func (v *VarSymbol) Size() int { return TypeSize(v.Type) }

func (v *VarSymbol) String() string {
	return fmt.Sprintf("%s %s (%s, offset %d)", v.Type, v.Name, v.Kind, v.Offset)
}

// FuncSymbol describes a function. ArgsSize is fixed once the function's
// parameters have been declared.
type FuncSymbol struct {
	Name       string
	ReturnType string
	Params     []*VarSymbol
	ArgsSize   int
}

func (f *FuncSymbol) SymbolName() string { return f.Name }

func (f *FuncSymbol) String() string {
	return fmt.Sprintf("%s %s/%d (args %d bytes)", f.ReturnType, f.Name, len(f.Params), f.ArgsSize)
}

// Scope is an ordered name table with its own local and argument offset
// accumulators. Lookups fall back to the parent.
type Scope struct {
	Name string

	parent  *Scope
	symbols map[string]Symbol
	order   []string

	localOffset int
	argOffset   int
}

// NewScope creates an empty scope nested in parent (nil for the global scope).
func NewScope(parent *Scope) *Scope {
	return &Scope{parent: parent, symbols: make(map[string]Symbol)}
}

// Parent returns the enclosing scope.
func (s *Scope) Parent() *Scope { return s.parent }

// Declare adds sym to this scope. Variables get the next offset for their
// kind; the offset is advanced before it is assigned, so the first int
// local sits at offset 4.
func (s *Scope) Declare(sym Symbol) error {
	name := sym.SymbolName()
	if _, exists := s.symbols[name]; exists {
		return fmt.Errorf("%w: '%s'", ErrDuplicateSymbol, name)
	}
	if v, ok := sym.(*VarSymbol); ok {
		size := v.Size()
		if size == 0 {
			return fmt.Errorf("%w: unknown type '%s' for '%s'", ErrSyntax, v.Type, name)
		}
		switch v.Kind {
		case Argument:
			s.argOffset += size
			v.Offset = s.argOffset
		default:
			s.localOffset += size
			v.Offset = s.localOffset
		}
	}
	s.symbols[name] = sym
	s.order = append(s.order, name)
	return nil
}

// LookupLocal searches this scope only.
func (s *Scope) LookupLocal(name string) Symbol {
	return s.symbols[name]
}

// Lookup searches this scope and then each enclosing scope.
func (s *Scope) Lookup(name string) Symbol {
	for sc := s; sc != nil; sc = sc.parent {
		if sym, ok := sc.symbols[name]; ok {
			return sym
		}
	}
	return nil
}

// Names returns the declared names in declaration order.
func (s *Scope) Names() []string {
	return append([]string(nil), s.order...)
}

// LocalsSize is the number of bytes the prologue reserves below bp.
func (s *Scope) LocalsSize() int { return s.localOffset }

// ArgsSize is the total size of the parameters declared here.
func (s *Scope) ArgsSize() int { return s.argOffset }
