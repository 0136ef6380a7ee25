package compiler

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF TokenType = iota // sentinel: end of input

	// Literals
	IDENTIFIER // variable / function name
	INTEGER    // decimal, hex or character literal

	// Keywords
	INT    // "int"
	IF     // "if"
	ELSE   // "else"
	WHILE  // "while"
	BREAK  // "break"
	RETURN // "return"

	// Paired delimiters
	LBRACE // {
	RBRACE // }
	LPAREN // (
	RPAREN // )

	// Punctuation
	SEMICOLON // ;
	COMMA     // ,

	// Arithmetic operators
	PLUS        // +
	MINUS       // -
	STAR        // *
	SLASH       // /
	PERCENT     // %
	AND         // &
	PIPE        // |
	CARET       // ^
	TILDE       // ~
	SHL_OP      // <<
	SHR_OP      // >>
	AND_LOGICAL // &&
	OR_LOGICAL  // ||
	NOT         // !

	PLUS_PLUS   // ++
	MINUS_MINUS // --

	// Assignment / comparison
	ASSIGN     // =
	EQUALS     // ==
	NOT_EQ     // !=
	LESS       // <
	GREATER    // >
	LESS_EQ    // <=
	GREATER_EQ // >=
)

// tokenNames is indexed by TokenType.
var tokenNames = [...]string{
	EOF:         "EOF",
	IDENTIFIER:  "IDENTIFIER",
	INTEGER:     "INTEGER",
	INT:         "INT",
	IF:          "IF",
	ELSE:        "ELSE",
	WHILE:       "WHILE",
	BREAK:       "BREAK",
	RETURN:      "RETURN",
	LBRACE:      "LBRACE",
	RBRACE:      "RBRACE",
	LPAREN:      "LPAREN",
	RPAREN:      "RPAREN",
	SEMICOLON:   "SEMICOLON",
	COMMA:       "COMMA",
	PLUS:        "PLUS",
	MINUS:       "MINUS",
	STAR:        "STAR",
	SLASH:       "SLASH",
	PERCENT:     "PERCENT",
	AND:         "AND",
	PIPE:        "PIPE",
	CARET:       "CARET",
	TILDE:       "TILDE",
	SHL_OP:      "SHL_OP",
	SHR_OP:      "SHR_OP",
	AND_LOGICAL: "AND_LOGICAL",
	OR_LOGICAL:  "OR_LOGICAL",
	NOT:         "NOT",
	PLUS_PLUS:   "PLUS_PLUS",
	MINUS_MINUS: "MINUS_MINUS",
	ASSIGN:      "ASSIGN",
	EQUALS:      "EQUALS",
	NOT_EQ:      "NOT_EQ",
	LESS:        "LESS",
	GREATER:     "GREATER",
	LESS_EQ:     "LESS_EQ",
	GREATER_EQ:  "GREATER_EQ",
}

// operatorText holds the source spelling of every operator token.
var operatorText = map[TokenType]string{
	PLUS:        "+",
	MINUS:       "-",
	STAR:        "*",
	SLASH:       "/",
	PERCENT:     "%",
	AND:         "&",
	PIPE:        "|",
	CARET:       "^",
	TILDE:       "~",
	SHL_OP:      "<<",
	SHR_OP:      ">>",
	AND_LOGICAL: "&&",
	OR_LOGICAL:  "||",
	NOT:         "!",
	PLUS_PLUS:   "++",
	MINUS_MINUS: "--",
	ASSIGN:      "=",
	EQUALS:      "==",
	NOT_EQ:      "!=",
	LESS:        "<",
	GREATER:     ">",
	LESS_EQ:     "<=",
	GREATER_EQ:  ">=",
}

func (tt TokenType) String() string {
	if int(tt) >= 0 && int(tt) < len(tokenNames) {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// Symbol returns the operator as written in source, or the token name for
// non-operators.
func (tt TokenType) Symbol() string {
	if s, ok := operatorText[tt]; ok {
		return s
	}
	return tt.String()
}

// Token is a single lexical unit produced by the Lexer.
type Token struct {
	Type   TokenType
	Lexeme string // the exact source text that was matched
	Line   int    // 1-based source line
}

func (t Token) String() string {
	return fmt.Sprintf("%-11s %-14q  line %d", t.Type, t.Lexeme, t.Line)
}
