package compiler

import (
	"fmt"
	"strings"
)

// protectedRegisters are saved by every prologue in this order and restored
// in reverse by every epilogue.
var protectedRegisters = []string{"r0", "r1", "r5", "ra", "bp"}

// savedAreaSize is the number of bytes the prologue pushes above bp.
var savedAreaSize = 4 * len(protectedRegisters)

var arithmeticOps = map[TokenType]string{
	PLUS:    "add",
	MINUS:   "sub",
	STAR:    "imul",
	SLASH:   "idiv",
	PERCENT: "imod",
	SHL_OP:  "shl",
	SHR_OP:  "ishr",
	AND:     "and",
	PIPE:    "or",
	CARET:   "xor",
}

// comparisonJumps are the signed conditional jumps taken when the
// comparison holds.
var comparisonJumps = map[TokenType]string{
	EQUALS:     "je",
	NOT_EQ:     "jne",
	GREATER:    "jg",
	GREATER_EQ: "jge",
	LESS:       "jl",
	LESS_EQ:    "jle",
}

var loadOps = map[int]string{4: "load_p", 2: "loadw_p", 1: "loadb_p"}
var storeOps = map[int]string{4: "stor_p", 2: "storw_p", 1: "storb_p"}

// CodeGen walks a resolved AST and emits assembly source text.
//
// Register use: r0 holds every expression result, r1 the saved left operand,
// r5 the address of the variable being loaded or stored, t0 the value a
// function returns.
type CodeGen struct {
	out       strings.Builder
	nextLabel int
	loopStack []string // end labels of the enclosing loops
	fn        *FuncSymbol
}

func newCodeGen() *CodeGen {
	return &CodeGen{}
}

// newLabel returns a fresh synthetic label name without the leading dot.
func (cg *CodeGen) newLabel() string {
	cg.nextLabel++
	return fmt.Sprintf("loc.%d", cg.nextLabel)
}

func (cg *CodeGen) line(format string, args ...any) {
	cg.out.WriteString("    ")
	fmt.Fprintf(&cg.out, format, args...)
	cg.out.WriteByte('\n')
}

func (cg *CodeGen) label(name string) {
	fmt.Fprintf(&cg.out, ".%s:\n", name)
}

func (cg *CodeGen) comment(format string, args ...any) {
	fmt.Fprintf(&cg.out, "; "+format+"\n", args...)
}

// Generate lowers a resolved program to assembly. The entry sequence calls
// main, prints its result and halts.
func Generate(prog *Program) (string, error) {
	cg := newCodeGen()

	cg.line("call .main")
	cg.line("printi t0, 1")
	cg.line("halt")

	for _, fn := range prog.Funcs() {
		if err := cg.genFunc(fn); err != nil {
			return "", err
		}
	}
	return cg.out.String(), nil
}

func (cg *CodeGen) genFunc(fn *FuncDef) error {
	if fn.Sym == nil || fn.Scope == nil {
		return fmt.Errorf("%w: function '%s' was not resolved", ErrUndefinedSymbol, fn.Name)
	}
	cg.fn = fn.Sym
	defer func() { cg.fn = nil }()

	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = p.String()
	}
	cg.out.WriteByte('\n')
	cg.comment("---- %s %s(%s) ----", fn.ReturnType, fn.Name, strings.Join(params, ", "))
	cg.label(fn.Name)

	for _, r := range protectedRegisters {
		cg.line("push %s", r)
	}
	cg.line("mov bp, sp")
	if size := fn.Scope.LocalsSize(); size > 0 {
		cg.loadConst("r1", int64(size))
		cg.line("sub sp, sp, r1")
	}

	if err := cg.genBlock(fn.Body); err != nil {
		return err
	}

	// Falling off the end returns 0.
	if n := len(fn.Body.Stmts); n == 0 || !isReturn(fn.Body.Stmts[n-1]) {
		cg.line("lconsb r0, 0")
		cg.genEpilogue()
	}
	return nil
}

func isReturn(s Stmt) bool {
	_, ok := s.(*Return)
	return ok
}

// genEpilogue moves r0 into t0, unwinds the frame and returns.
func (cg *CodeGen) genEpilogue() {
	cg.line("mov t0, r0")
	cg.line("mov sp, bp")
	for i := len(protectedRegisters) - 1; i >= 0; i-- {
		cg.line("pop %s", protectedRegisters[i])
	}
	cg.line("ret")
}

func (cg *CodeGen) genBlock(b *Block) error {
	for _, s := range b.Stmts {
		if err := cg.genStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (cg *CodeGen) genStmt(s Stmt) error {
	switch n := s.(type) {
	case *Block:
		return cg.genBlock(n)

	case *VarDecl:
		// Space was reserved by the prologue.
		return nil

	case *Assign:
		if n.Sym == nil {
			return fmt.Errorf("%w: '%s' was not resolved", ErrUndefinedSymbol, n.Name)
		}
		if err := cg.genExpr(n.Value); err != nil {
			return err
		}
		if err := cg.genAddress(n.Sym); err != nil {
			return err
		}
		return cg.genStore(n.Sym)

	case *Break:
		if len(cg.loopStack) == 0 {
			return fmt.Errorf("%w on line %d", ErrBreakOutsideLoop, n.Line)
		}
		cg.line("jmp .%s", cg.loopStack[len(cg.loopStack)-1])

	case *Return:
		if err := cg.genExpr(n.Value); err != nil {
			return err
		}
		cg.genEpilogue()

	case *If:
		if err := cg.genExpr(n.Cond); err != nil {
			return err
		}
		endLabel := cg.newLabel()
		elseLabel := endLabel
		if n.Else != nil {
			elseLabel = cg.newLabel()
		}
		cg.line("jz r0, .%s", elseLabel)
		if err := cg.genBlock(n.Then); err != nil {
			return err
		}
		if n.Else != nil {
			cg.line("jmp .%s", endLabel)
			cg.label(elseLabel)
			if err := cg.genBlock(n.Else); err != nil {
				return err
			}
		}
		cg.label(endLabel)

	case *While:
		startLabel := cg.newLabel()
		endLabel := cg.newLabel()
		cg.label(startLabel)
		if err := cg.genExpr(n.Cond); err != nil {
			return err
		}
		cg.line("jz r0, .%s", endLabel)

		cg.loopStack = append(cg.loopStack, endLabel)
		err := cg.genBlock(n.Body)
		cg.loopStack = cg.loopStack[:len(cg.loopStack)-1]
		if err != nil {
			return err
		}

		cg.line("jmp .%s", startLabel)
		cg.label(endLabel)

	case *ExprStmt:
		return cg.genExpr(n.X)

	default:
		return fmt.Errorf("unsupported statement %s", s)
	}
	return nil
}

// genAddress leaves the address of sym in r5.
func (cg *CodeGen) genAddress(sym *VarSymbol) error {
	switch sym.Kind {
	case Local:
		cg.loadConst("r5", int64(sym.Offset))
		cg.line("sub r5, bp, r5")
	case Argument:
		if cg.fn == nil {
			return fmt.Errorf("%w: argument '%s' outside a function", ErrUndefinedSymbol, sym.Name)
		}
		cg.loadConst("r5", int64(savedAreaSize+cg.fn.ArgsSize-sym.Offset))
		cg.line("add r5, bp, r5")
	default:
		return fmt.Errorf("unsupported storage kind %s for '%s'", sym.Kind, sym.Name)
	}
	return nil
}

// genLoad reads sym through r5 into r0.
func (cg *CodeGen) genLoad(sym *VarSymbol) error {
	op, ok := loadOps[sym.Size()]
	if !ok {
		return fmt.Errorf("no load instruction for %d-byte '%s'", sym.Size(), sym.Name)
	}
	cg.line("%s r0, r5", op)
	return nil
}

// genStore writes r0 through r5.
func (cg *CodeGen) genStore(sym *VarSymbol) error {
	op, ok := storeOps[sym.Size()]
	if !ok {
		return fmt.Errorf("no store instruction for %d-byte '%s'", sym.Size(), sym.Name)
	}
	cg.line("%s r5, r0", op)
	return nil
}

// loadConst picks the narrowest load for v. Negative values always use
// the 4-byte form.
func (cg *CodeGen) loadConst(reg string, v int64) {
	switch {
	case v < 0:
		cg.line("lcons %s, %d", reg, v)
	case v <= 0xFF:
		cg.line("lconsb %s, %d", reg, v)
	case v <= 0xFFFF:
		cg.line("lconsw %s, %d", reg, v)
	default:
		cg.line("lcons %s, %d", reg, v)
	}
}

// genOperands evaluates left then right, leaving left in r1 and right in r0.
func (cg *CodeGen) genOperands(left, right Expr) error {
	if err := cg.genExpr(left); err != nil {
		return err
	}
	cg.line("push r0")
	if err := cg.genExpr(right); err != nil {
		return err
	}
	cg.line("pop r1")
	return nil
}

// genBool materializes a branch outcome: r0 becomes taken when control
// arrives at branchLabel and notTaken when it falls through. The caller has
// already emitted the branches.
func (cg *CodeGen) genBool(branchLabel string, notTaken, taken int) {
	endLabel := cg.newLabel()
	cg.line("lconsb r0, %d", notTaken)
	cg.line("jmp .%s", endLabel)
	cg.label(branchLabel)
	cg.line("lconsb r0, %d", taken)
	cg.label(endLabel)
}

func (cg *CodeGen) genExpr(e Expr) error {
	switch n := e.(type) {
	case *IntConst:
		cg.loadConst("r0", n.Value)

	case *Ident:
		if n.Sym == nil {
			return fmt.Errorf("%w: '%s' was not resolved", ErrUndefinedSymbol, n.Name)
		}
		if err := cg.genAddress(n.Sym); err != nil {
			return err
		}
		return cg.genLoad(n.Sym)

	case *Group:
		return cg.genExpr(n.X)

	case *BinaryOp:
		op, ok := arithmeticOps[n.Op]
		if !ok {
			return fmt.Errorf("unsupported binary operator %s on line %d", n.Op.Symbol(), n.Line)
		}
		if err := cg.genOperands(n.Left, n.Right); err != nil {
			return err
		}
		cg.line("%s r0, r1, r0", op)

	case *ComparisonOp:
		jump, ok := comparisonJumps[n.Op]
		if !ok {
			return fmt.Errorf("unsupported comparison %s on line %d", n.Op.Symbol(), n.Line)
		}
		if err := cg.genOperands(n.Left, n.Right); err != nil {
			return err
		}
		trueLabel := cg.newLabel()
		cg.line("%s r1, r0, .%s", jump, trueLabel)
		cg.genBool(trueLabel, 0, 1)

	case *LogicOp:
		// Both sides are evaluated before either is tested.
		if err := cg.genOperands(n.Left, n.Right); err != nil {
			return err
		}
		target := cg.newLabel()
		switch n.Op {
		case AND_LOGICAL:
			cg.line("jz r1, .%s", target)
			cg.line("jz r0, .%s", target)
			cg.genBool(target, 1, 0)
		case OR_LOGICAL:
			cg.line("jnz r1, .%s", target)
			cg.line("jnz r0, .%s", target)
			cg.genBool(target, 0, 1)
		default:
			return fmt.Errorf("unsupported logical operator %s on line %d", n.Op.Symbol(), n.Line)
		}

	case *UnaryOp:
		return cg.genUnary(n)

	case *Call:
		if n.Sym == nil {
			return fmt.Errorf("%w: '%s' was not resolved", ErrUndefinedSymbol, n.Name)
		}
		for _, arg := range n.Args {
			if err := cg.genExpr(arg); err != nil {
				return err
			}
			cg.line("push r0")
		}
		cg.line("call .%s", n.Sym.Name)
		cg.line("mov r0, t0")
		for range n.Args {
			cg.line("pop t0")
		}

	default:
		return fmt.Errorf("unsupported expression %s", e)
	}
	return nil
}

func (cg *CodeGen) genUnary(n *UnaryOp) error {
	switch n.Op {
	case PLUS_PLUS, MINUS_MINUS:
		if n.Sym == nil {
			return fmt.Errorf("%w: operand of %s was not resolved", ErrUndefinedSymbol, n.Op.Symbol())
		}
		// Loading the operand leaves its address in r5.
		if err := cg.genExpr(n.Operand); err != nil {
			return err
		}
		if n.Op == PLUS_PLUS {
			cg.line("inc r0")
		} else {
			cg.line("dec r0")
		}
		return cg.genStore(n.Sym)
	}

	if err := cg.genExpr(n.Operand); err != nil {
		return err
	}
	switch n.Op {
	case MINUS:
		cg.line("lcons r1, -1")
		cg.line("imul r0, r0, r1")
	case TILDE:
		cg.line("not r0, r0")
	case NOT:
		zeroLabel := cg.newLabel()
		cg.line("jz r0, .%s", zeroLabel)
		cg.genBool(zeroLabel, 0, 1)
	default:
		return fmt.Errorf("unsupported unary operator %s on line %d", n.Op.Symbol(), n.Line)
	}
	return nil
}
