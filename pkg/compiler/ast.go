package compiler

import (
	"fmt"
	"strings"
)

// Item is a top-level declaration. Reduced C only has function definitions.
type Item interface {
	itemNode()
	String() string
}

// Stmt is implemented by every statement node.
type Stmt interface {
	stmtNode()
	String() string
}

// Expr is implemented by every node that produces a value.
// genExpr always leaves the result in r0.
type Expr interface {
	exprNode()
	String() string
}

// Program is the root of the tree.
type Program struct {
	Items []Item
}

// Funcs returns the function definitions in source order.
func (p *Program) Funcs() []*FuncDef {
	var out []*FuncDef
	for _, it := range p.Items {
		if fn, ok := it.(*FuncDef); ok {
			out = append(out, fn)
		}
	}
	return out
}

func (p *Program) String() string {
	parts := make([]string, len(p.Items))
	for i, it := range p.Items {
		parts[i] = it.String()
	}
	return "Program(" + strings.Join(parts, ", ") + ")"
}

//  Declarations

// FuncDef is a function definition.
//
//	int add(int a, int b) { return a + b; }
type FuncDef struct {
	ReturnType string
	Name       string
	Params     []*Param
	Body       *Block
	Line       int

	Sym   *FuncSymbol // set by Resolve
	Scope *Scope      // set by Resolve
}

func (*FuncDef) itemNode() {}
func (f *FuncDef) String() string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.String()
	}
	return fmt.Sprintf("FuncDef(%s %s(%s) %s)", f.ReturnType, f.Name, strings.Join(params, ", "), f.Body)
}

// Param is one entry of a parameter list.
type Param struct {
	Type string
	Name string
	Line int

	Sym *VarSymbol
}

func (p *Param) String() string { return p.Type + " " + p.Name }

// Block is a brace-delimited statement list. It does not open a new scope.
type Block struct {
	Stmts []Stmt
}

func (*Block) stmtNode() {}
func (b *Block) String() string {
	parts := make([]string, len(b.Stmts))
	for i, s := range b.Stmts {
		parts[i] = s.String()
	}
	return "{" + strings.Join(parts, "; ") + "}"
}

//  Statements

// VarDecl declares a local variable.
//
//	int x;
type VarDecl struct {
	Type string
	Name string
	Line int

	Sym *VarSymbol
}

func (*VarDecl) stmtNode()        {}
func (v *VarDecl) String() string { return fmt.Sprintf("VarDecl(%s %s)", v.Type, v.Name) }

// Assign stores Value into the named variable. Init marks the assignment
// half of "int x = e;".
type Assign struct {
	Name  string
	Value Expr
	Line  int
	Init  bool

	Sym *VarSymbol
}

func (*Assign) stmtNode()        {}
func (a *Assign) String() string { return fmt.Sprintf("Assign(%s = %s)", a.Name, a.Value) }

type Break struct {
	Line int
}

func (*Break) stmtNode()      {}
func (*Break) String() string { return "Break" }

type Return struct {
	Value Expr
	Line  int
}

func (*Return) stmtNode()        {}
func (r *Return) String() string { return fmt.Sprintf("Return(%s)", r.Value) }

// If has an optional Else block.
type If struct {
	Cond Expr
	Then *Block
	Else *Block
	Line int
}

func (*If) stmtNode() {}
func (s *If) String() string {
	if s.Else != nil {
		return fmt.Sprintf("If(%s then %s else %s)", s.Cond, s.Then, s.Else)
	}
	return fmt.Sprintf("If(%s then %s)", s.Cond, s.Then)
}

type While struct {
	Cond Expr
	Body *Block
	Line int
}

func (*While) stmtNode()        {}
func (w *While) String() string { return fmt.Sprintf("While(%s do %s)", w.Cond, w.Body) }

// ExprStmt evaluates X for its side effects and discards the value.
type ExprStmt struct {
	X    Expr
	Line int
}

func (*ExprStmt) stmtNode()        {}
func (e *ExprStmt) String() string { return fmt.Sprintf("ExprStmt(%s)", e.X) }

//  Expressions

// BinaryOp is an arithmetic or bitwise operation: Left Op Right.
//
//	x + 1
//	^ ^ ^
//	| | |
//	| | Right
//	| Op
//	Left
type BinaryOp struct {
	Op    TokenType
	Left  Expr
	Right Expr
	Line  int
}

func (*BinaryOp) exprNode() {}
func (b *BinaryOp) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op.Symbol(), b.Right)
}

// ComparisonOp is one of == != < <= > >= and yields 0 or 1.
type ComparisonOp struct {
	Op    TokenType
	Left  Expr
	Right Expr
	Line  int
}

func (*ComparisonOp) exprNode() {}
func (c *ComparisonOp) String() string {
	return fmt.Sprintf("(%s %s %s)", c.Left, c.Op.Symbol(), c.Right)
}

// LogicOp is && or ||. Both operands are always evaluated.
type LogicOp struct {
	Op    TokenType
	Left  Expr
	Right Expr
	Line  int
}

func (*LogicOp) exprNode() {}
func (l *LogicOp) String() string {
	return fmt.Sprintf("(%s %s %s)", l.Left, l.Op.Symbol(), l.Right)
}

// UnaryOp is a prefix operator. For ++ and -- the operand is an *Ident and
// Sym names the variable written back.
type UnaryOp struct {
	Op      TokenType
	Operand Expr
	Line    int

	Sym *VarSymbol
}

func (*UnaryOp) exprNode() {}
func (u *UnaryOp) String() string {
	return fmt.Sprintf("(%s%s)", u.Op.Symbol(), u.Operand)
}

// IntConst is an integer literal. Character literals arrive here too.
type IntConst struct {
	Value int64
	Line  int
}

func (*IntConst) exprNode()        {}
func (c *IntConst) String() string { return fmt.Sprintf("%d", c.Value) }

// Ident is a read of a named variable.
//
//	return x;
//	       ^  Ident{Name: "x"}
type Ident struct {
	Name string
	Line int

	Sym *VarSymbol
}

func (*Ident) exprNode()        {}
func (i *Ident) String() string { return i.Name }

// Call is a function call expression.
type Call struct {
	Name string
	Args []Expr
	Line int

	Sym *FuncSymbol
}

func (*Call) exprNode() {}
func (c *Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", c.Name, strings.Join(args, ", "))
}

// Group is a parenthesised expression.
type Group struct {
	X Expr
}

func (*Group) exprNode()        {}
func (g *Group) String() string { return fmt.Sprintf("(%s)", g.X) }
