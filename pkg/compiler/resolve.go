package compiler

import "fmt"

// resolver walks the tree once, declaring symbols and annotating every
// node that refers to one. The code generator reads only those annotations.
type resolver struct {
	scope     *Scope
	loopDepth int
}

// Resolve builds the global scope and one child scope per function, assigns
// stack offsets and checks declarations, uses and calls. Functions must be
// defined before they are called; a function may call itself.
func Resolve(prog *Program) (*Scope, error) {
	global := NewScope(nil)
	global.Name = "global"
	r := &resolver{scope: global}

	for _, item := range prog.Items {
		switch it := item.(type) {
		case *FuncDef:
			if err := r.funcDef(it); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: unexpected top-level item %s", ErrSyntax, item)
		}
	}

	main, ok := global.LookupLocal("main").(*FuncSymbol)
	if !ok {
		return nil, fmt.Errorf("%w: program defines no 'main' function", ErrNoMain)
	}
	if len(main.Params) != 0 {
		return nil, fmt.Errorf("%w: 'main' expects 0 arguments, declared with %d", ErrArityMismatch, len(main.Params))
	}
	return global, nil
}

func symbolError(sentinel error, name string, line int) error {
	return fmt.Errorf("%w: '%s' on line %d", sentinel, name, line)
}

func (r *resolver) funcDef(fn *FuncDef) error {
	sym := &FuncSymbol{Name: fn.Name, ReturnType: fn.ReturnType}
	if err := r.scope.Declare(sym); err != nil {
		return fmt.Errorf("%w on line %d", err, fn.Line)
	}

	outer := r.scope
	r.scope = NewScope(outer)
	r.scope.Name = fn.Name
	defer func() { r.scope = outer }()

	for _, p := range fn.Params {
		v := &VarSymbol{Name: p.Name, Type: p.Type, Kind: Argument}
		if err := r.scope.Declare(v); err != nil {
			return fmt.Errorf("%w on line %d", err, p.Line)
		}
		p.Sym = v
		sym.Params = append(sym.Params, v)
	}
	sym.ArgsSize = r.scope.ArgsSize()

	fn.Sym = sym
	fn.Scope = r.scope
	return r.block(fn.Body)
}

func (r *resolver) block(b *Block) error {
	for _, s := range b.Stmts {
		if err := r.stmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (r *resolver) stmt(s Stmt) error {
	switch s := s.(type) {
	case *Block:
		return r.block(s)

	case *VarDecl:
		v := &VarSymbol{Name: s.Name, Type: s.Type, Kind: Local}
		if err := r.scope.Declare(v); err != nil {
			return fmt.Errorf("%w on line %d", err, s.Line)
		}
		s.Sym = v

	case *Assign:
		if err := r.expr(s.Value); err != nil {
			return err
		}
		v, err := r.variable(s.Name, s.Line)
		if err != nil {
			return err
		}
		s.Sym = v

	case *Break:
		if r.loopDepth == 0 {
			return fmt.Errorf("%w on line %d", ErrBreakOutsideLoop, s.Line)
		}

	case *Return:
		return r.expr(s.Value)

	case *If:
		if err := r.expr(s.Cond); err != nil {
			return err
		}
		if err := r.block(s.Then); err != nil {
			return err
		}
		if s.Else != nil {
			return r.block(s.Else)
		}

	case *While:
		if err := r.expr(s.Cond); err != nil {
			return err
		}
		r.loopDepth++
		err := r.block(s.Body)
		r.loopDepth--
		return err

	case *ExprStmt:
		return r.expr(s.X)

	default:
		return fmt.Errorf("%w: unexpected statement %s", ErrSyntax, s)
	}
	return nil
}

func (r *resolver) expr(e Expr) error {
	switch e := e.(type) {
	case *IntConst:
		return nil

	case *Ident:
		v, err := r.variable(e.Name, e.Line)
		if err != nil {
			return err
		}
		e.Sym = v

	case *Group:
		return r.expr(e.X)

	case *BinaryOp:
		return r.pair(e.Left, e.Right)
	case *ComparisonOp:
		return r.pair(e.Left, e.Right)
	case *LogicOp:
		return r.pair(e.Left, e.Right)

	case *UnaryOp:
		if err := r.expr(e.Operand); err != nil {
			return err
		}
		if e.Op == PLUS_PLUS || e.Op == MINUS_MINUS {
			id, ok := e.Operand.(*Ident)
			if !ok {
				return fmt.Errorf("%w: operand of %s must be a variable on line %d", ErrSyntax, e.Op.Symbol(), e.Line)
			}
			e.Sym = id.Sym
		}

	case *Call:
		fn, ok := r.scope.Lookup(e.Name).(*FuncSymbol)
		if !ok {
			return symbolError(ErrUndefinedSymbol, e.Name, e.Line)
		}
		if len(e.Args) != len(fn.Params) {
			return fmt.Errorf("%w: '%s' expects %d arguments, got %d on line %d",
				ErrArityMismatch, e.Name, len(fn.Params), len(e.Args), e.Line)
		}
		for _, a := range e.Args {
			if err := r.expr(a); err != nil {
				return err
			}
		}
		e.Sym = fn

	default:
		return fmt.Errorf("%w: unexpected expression %s", ErrSyntax, e)
	}
	return nil
}

func (r *resolver) pair(left, right Expr) error {
	if err := r.expr(left); err != nil {
		return err
	}
	return r.expr(right)
}

// variable resolves name to a variable symbol. Names bound to functions do
// not count.
func (r *resolver) variable(name string, line int) (*VarSymbol, error) {
	v, ok := r.scope.Lookup(name).(*VarSymbol)
	if !ok {
		return nil, symbolError(ErrUndefinedSymbol, name, line)
	}
	return v, nil
}
