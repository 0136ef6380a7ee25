package compiler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Parser consumes the flat token slice produced by the Lexer and builds an AST.
//
// Grammar:
//
//	program    = funcDef* EOF
//	funcDef    = "int" IDENTIFIER "(" [param ("," param)*] ")" block
//	param      = "int" IDENTIFIER
//	block      = "{" statement* "}"
//	statement  = varDecl | assignment | "break" ";" | "return" expression ";"
//	           | "if" "(" expression ")" block ("else" block)?
//	           | "while" "(" expression ")" block
//	           | expression ";"
//	varDecl    = "int" IDENTIFIER ("=" expression)? ";"
//	assignment = IDENTIFIER "=" expression ";"
//	expression = logic
//	logic      = bitor (("&&" | "||") bitor)*
//	bitor      = bitxor ("|" bitxor)*
//	bitxor     = bitand ("^" bitand)*
//	bitand     = equality ("&" equality)*
//	equality   = relational (("==" | "!=") relational)*
//	relational = shift (("<" | "<=" | ">" | ">=") shift)*
//	shift      = additive (("<<" | ">>") additive)*
//	additive   = term (("+" | "-") term)*
//	term       = unary (("*" | "/" | "%") unary)*
//	unary      = ("!" | "~" | "-") unary | ("++" | "--") IDENTIFIER | primary
//	primary    = INTEGER | IDENTIFIER | IDENTIFIER "(" args ")" | "(" expression ")"
type Parser struct {
	tokens      []Token
	pos         int
	sourceLines []string
}

func NewParser(tokens []Token, rawSource string) *Parser {
	return &Parser{tokens: tokens, sourceLines: strings.Split(rawSource, "\n")}
}

// Parse builds a Program from tokens. rawSource is only used for error snippets.
func Parse(tokens []Token, rawSource string) (*Program, error) {
	return NewParser(tokens, rawSource).parseProgram()
}

// fmtError wraps an error message with the source line where the token appears.
func (p *Parser) fmtError(tok Token, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	lineIdx := tok.Line - 1 // Lines are 1-based

	snippet := "<source unavailable>"
	if lineIdx >= 0 && lineIdx < len(p.sourceLines) {
		snippet = strings.TrimSpace(p.sourceLines[lineIdx])
	}

	if tok.Type == EOF {
		return fmt.Errorf("line %d: %w: %w: %s\n  |> %s", tok.Line, ErrSyntax, errIncomplete, msg, snippet)
	}
	return fmt.Errorf("line %d: %w: %s\n  |> %s", tok.Line, ErrSyntax, msg, snippet)
}

// errIncomplete marks syntax errors caused by running out of tokens.
var errIncomplete = errors.New("incomplete input")

// IsIncomplete reports whether err came from input that ended too early, so
// an interactive caller can read another line and try again.
func IsIncomplete(err error) bool {
	return errors.Is(err, errIncomplete)
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos]
}

// peekAt returns the token at the given offset from the current position.
func (p *Parser) peekAt(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos+offset]
}

// advance consumes and returns the current token.
func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// expect consumes the current token if it matches tt, otherwise returns an error.
func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.advance()
	if tok.Type != tt {
		return tok, p.fmtError(tok, "expected %s, got %s (%q)", tt.Symbol(), tok.Type, tok.Lexeme)
	}
	return tok, nil
}

func (p *Parser) parseProgram() (*Program, error) {
	prog := &Program{}
	for p.peek().Type != EOF {
		fn, err := p.parseFuncDef()
		if err != nil {
			return nil, err
		}
		prog.Items = append(prog.Items, fn)
	}
	return prog, nil
}

func (p *Parser) parseFuncDef() (*FuncDef, error) {
	typeTok, err := p.expect(INT)
	if err != nil {
		return nil, err
	}
	nameTok, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}

	fn := &FuncDef{ReturnType: typeTok.Lexeme, Name: nameTok.Lexeme, Line: nameTok.Line}
	if p.peek().Type != RPAREN {
		for {
			pt, err := p.expect(INT)
			if err != nil {
				return nil, err
			}
			pn, err := p.expect(IDENTIFIER)
			if err != nil {
				return nil, err
			}
			fn.Params = append(fn.Params, &Param{Type: pt.Lexeme, Name: pn.Lexeme, Line: pn.Line})
			if p.peek().Type != COMMA {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}

	fn.Body, err = p.parseBlock()
	if err != nil {
		return nil, err
	}
	return fn, nil
}

func (p *Parser) parseBlock() (*Block, error) {
	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}
	b := &Block{}
	for p.peek().Type != RBRACE {
		if p.peek().Type == EOF {
			return nil, p.fmtError(p.peek(), "unexpected end of input, missing }")
		}
		stmts, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		b.Stmts = append(b.Stmts, stmts...)
	}
	p.advance()
	return b, nil
}

// parseStatement returns a slice because "int x = e;" becomes a VarDecl
// followed by an Assign.
func (p *Parser) parseStatement() ([]Stmt, error) {
	tok := p.peek()
	switch tok.Type {
	case INT:
		return p.parseVarDecl()

	case IDENTIFIER:
		if p.peekAt(1).Type == ASSIGN {
			p.advance()
			p.advance()
			value, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(SEMICOLON); err != nil {
				return nil, err
			}
			return []Stmt{&Assign{Name: tok.Lexeme, Value: value, Line: tok.Line}}, nil
		}

	case BREAK:
		p.advance()
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return []Stmt{&Break{Line: tok.Line}}, nil

	case RETURN:
		p.advance()
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return []Stmt{&Return{Value: value, Line: tok.Line}}, nil

	case IF:
		s, err := p.parseIf()
		if err != nil {
			return nil, err
		}
		return []Stmt{s}, nil

	case WHILE:
		s, err := p.parseWhile()
		if err != nil {
			return nil, err
		}
		return []Stmt{s}, nil
	}

	x, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return []Stmt{&ExprStmt{X: x, Line: tok.Line}}, nil
}

func (p *Parser) parseVarDecl() ([]Stmt, error) {
	typeTok := p.advance()
	nameTok, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	decl := &VarDecl{Type: typeTok.Lexeme, Name: nameTok.Lexeme, Line: nameTok.Line}

	if p.peek().Type == ASSIGN {
		p.advance()
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return []Stmt{decl, &Assign{Name: decl.Name, Value: value, Line: nameTok.Line, Init: true}}, nil
	}

	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return []Stmt{decl}, nil
}

func (p *Parser) parseIf() (*If, error) {
	tok := p.advance()
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	s := &If{Cond: cond, Then: then, Line: tok.Line}
	if p.peek().Type == ELSE {
		p.advance()
		if s.Else, err = p.parseBlock(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (p *Parser) parseWhile() (*While, error) {
	tok := p.advance()
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &While{Cond: cond, Body: body, Line: tok.Line}, nil
}

// parseCondition parses "(" expression ")".
func (p *Parser) parseCondition() (Expr, error) {
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return cond, nil
}

// binaryLevels lists the binary operators from lowest to highest precedence.
// All levels are left-associative.
var binaryLevels = [][]TokenType{
	{AND_LOGICAL, OR_LOGICAL},
	{PIPE},
	{CARET},
	{AND},
	{EQUALS, NOT_EQ},
	{LESS, LESS_EQ, GREATER, GREATER_EQ},
	{SHL_OP, SHR_OP},
	{PLUS, MINUS},
	{STAR, SLASH, PERCENT},
}

// parseExpression is the entry point for expression parsing.
func (p *Parser) parseExpression() (Expr, error) {
	return p.parseLevel(0)
}

func (p *Parser) parseLevel(level int) (Expr, error) {
	if level == len(binaryLevels) {
		return p.parseUnary()
	}
	left, err := p.parseLevel(level + 1)
	if err != nil {
		return nil, err
	}
	for containsToken(binaryLevels[level], p.peek().Type) {
		op := p.advance()
		right, err := p.parseLevel(level + 1)
		if err != nil {
			return nil, err
		}
		left = newBinary(op, left, right)
	}
	return left, nil
}

func containsToken(set []TokenType, tt TokenType) bool {
	for _, t := range set {
		if t == tt {
			return true
		}
	}
	return false
}

// newBinary picks the node kind for a binary operator token.
func newBinary(op Token, left, right Expr) Expr {
	switch op.Type {
	case AND_LOGICAL, OR_LOGICAL:
		return &LogicOp{Op: op.Type, Left: left, Right: right, Line: op.Line}
	case EQUALS, NOT_EQ, LESS, LESS_EQ, GREATER, GREATER_EQ:
		return &ComparisonOp{Op: op.Type, Left: left, Right: right, Line: op.Line}
	default:
		return &BinaryOp{Op: op.Type, Left: left, Right: right, Line: op.Line}
	}
}

// parseUnary handles prefix operators. ++ and -- only apply to a variable.
func (p *Parser) parseUnary() (Expr, error) {
	tok := p.peek()
	switch tok.Type {
	case NOT, TILDE, MINUS:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: tok.Type, Operand: operand, Line: tok.Line}, nil

	case PLUS_PLUS, MINUS_MINUS:
		p.advance()
		name, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: tok.Type, Operand: &Ident{Name: name.Lexeme, Line: name.Line}, Line: tok.Line}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.advance()
	switch tok.Type {
	case INTEGER:
		digits, base := tok.Lexeme, 10
		if len(digits) > 2 && digits[0] == '0' && (digits[1] == 'x' || digits[1] == 'X') {
			digits, base = digits[2:], 16
		}
		v, err := strconv.ParseUint(digits, base, 32)
		if err != nil || v > 1<<31-1 {
			return nil, p.fmtError(tok, "integer literal %s out of range", tok.Lexeme)
		}
		return &IntConst{Value: int64(v), Line: tok.Line}, nil

	case IDENTIFIER:
		if p.peek().Type != LPAREN {
			return &Ident{Name: tok.Lexeme, Line: tok.Line}, nil
		}
		p.advance()
		call := &Call{Name: tok.Lexeme, Line: tok.Line}
		if p.peek().Type != RPAREN {
			for {
				arg, err := p.parseExpression()
				if err != nil {
					return nil, err
				}
				call.Args = append(call.Args, arg)
				if p.peek().Type != COMMA {
					break
				}
				p.advance()
			}
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return call, nil

	case LPAREN:
		x, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return &Group{X: x}, nil
	}
	return nil, p.fmtError(tok, "unexpected %s (%q) in expression", tok.Type, tok.Lexeme)
}
