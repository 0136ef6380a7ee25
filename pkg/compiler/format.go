package compiler

import (
	"fmt"
	"strings"
)

const indentUnit = "    "

// unaryPrec binds tighter than every binary level.
var unaryPrec = len(binaryLevels)

// Format renders prog as canonical Reduced C. Parsing the output yields an
// equivalent tree.
func Format(prog *Program) string {
	var sb strings.Builder
	for i, fn := range prog.Funcs() {
		if i > 0 {
			sb.WriteByte('\n')
		}
		params := make([]string, len(fn.Params))
		for j, p := range fn.Params {
			params[j] = p.String()
		}
		fmt.Fprintf(&sb, "%s %s(%s) ", fn.ReturnType, fn.Name, strings.Join(params, ", "))
		formatBlock(&sb, fn.Body, 0)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func formatBlock(sb *strings.Builder, b *Block, depth int) {
	sb.WriteString("{\n")
	stmts := b.Stmts
	for i := 0; i < len(stmts); i++ {
		sb.WriteString(strings.Repeat(indentUnit, depth+1))
		if decl, ok := stmts[i].(*VarDecl); ok && i+1 < len(stmts) {
			if as, ok := stmts[i+1].(*Assign); ok && as.Init && as.Name == decl.Name {
				fmt.Fprintf(sb, "%s %s = %s;\n", decl.Type, decl.Name, FormatExpr(as.Value))
				i++
				continue
			}
		}
		formatStmt(sb, stmts[i], depth+1)
	}
	sb.WriteString(strings.Repeat(indentUnit, depth))
	sb.WriteString("}")
}

func formatStmt(sb *strings.Builder, s Stmt, depth int) {
	switch n := s.(type) {
	case *Block:
		formatBlock(sb, n, depth-1)
	case *VarDecl:
		fmt.Fprintf(sb, "%s %s;", n.Type, n.Name)
	case *Assign:
		fmt.Fprintf(sb, "%s = %s;", n.Name, FormatExpr(n.Value))
	case *Break:
		sb.WriteString("break;")
	case *Return:
		fmt.Fprintf(sb, "return %s;", FormatExpr(n.Value))
	case *If:
		fmt.Fprintf(sb, "if (%s) ", FormatExpr(n.Cond))
		formatBlock(sb, n.Then, depth)
		if n.Else != nil {
			sb.WriteString(" else ")
			formatBlock(sb, n.Else, depth)
		}
	case *While:
		fmt.Fprintf(sb, "while (%s) ", FormatExpr(n.Cond))
		formatBlock(sb, n.Body, depth)
	case *ExprStmt:
		fmt.Fprintf(sb, "%s;", FormatExpr(n.X))
	default:
		fmt.Fprintf(sb, "/* %s */", s)
	}
	sb.WriteByte('\n')
}

// FormatExpr renders e with the minimum parentheses its structure needs.
func FormatExpr(e Expr) string {
	switch n := e.(type) {
	case *IntConst:
		return fmt.Sprintf("%d", n.Value)
	case *Ident:
		return n.Name
	case *Group:
		return "(" + FormatExpr(n.X) + ")"
	case *Call:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = FormatExpr(a)
		}
		return n.Name + "(" + strings.Join(args, ", ") + ")"
	case *UnaryOp:
		operand := FormatExpr(n.Operand)
		if precedence(n.Operand) < unaryPrec {
			operand = "(" + operand + ")"
		}
		op := n.Op.Symbol()
		// Keep "- -x" from lexing as "--x".
		if n.Op == MINUS && strings.HasPrefix(operand, "-") {
			op += " "
		}
		return op + operand
	case *BinaryOp:
		return formatBinary(n.Op, n.Left, n.Right)
	case *ComparisonOp:
		return formatBinary(n.Op, n.Left, n.Right)
	case *LogicOp:
		return formatBinary(n.Op, n.Left, n.Right)
	}
	return e.String()
}

func formatBinary(op TokenType, left, right Expr) string {
	prec := levelOf(op)
	l := FormatExpr(left)
	if precedence(left) < prec {
		l = "(" + l + ")"
	}
	r := FormatExpr(right)
	if precedence(right) <= prec {
		r = "(" + r + ")"
	}
	return l + " " + op.Symbol() + " " + r
}

// precedence returns the binding strength of e; atoms bind tightest.
func precedence(e Expr) int {
	switch n := e.(type) {
	case *BinaryOp:
		return levelOf(n.Op)
	case *ComparisonOp:
		return levelOf(n.Op)
	case *LogicOp:
		return levelOf(n.Op)
	case *UnaryOp:
		return unaryPrec
	case *IntConst:
		if n.Value < 0 {
			return unaryPrec
		}
	}
	return unaryPrec + 1
}

func levelOf(op TokenType) int {
	for i, level := range binaryLevels {
		if containsToken(level, op) {
			return i
		}
	}
	return unaryPrec
}
