package compiler

import (
	"fmt"
	"unicode"
)

// keywords maps source text to its keyword TokenType.
var keywords = map[string]TokenType{
	"int":    INT,
	"if":     IF,
	"else":   ELSE,
	"while":  WHILE,
	"break":  BREAK,
	"return": RETURN,
}

// Lexer holds all mutable state for a single scanning pass over src.
type Lexer struct {
	src  []rune
	pos  int // index of the next rune to consume
	line int // current 1-based source line
}

func newLexer(src string) *Lexer {
	return &Lexer{src: []rune(src), pos: 0, line: 1}
}

// peek returns the rune at the current position without advancing.
func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

// peek2 returns the rune one position ahead of the current position.
func (l *Lexer) peek2() rune {
	if l.pos+1 >= len(l.src) {
		return 0
	}
	return l.src[l.pos+1]
}

// advance consumes one rune and returns it.
func (l *Lexer) advance() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
	}
	return r
}

func (l *Lexer) errorf(line int, format string, args ...any) error {
	return fmt.Errorf("line %d: %w: %s", line, ErrSyntax, fmt.Sprintf(format, args...))
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) && unicode.IsSpace(l.peek()) {
		l.advance()
	}
}

// skipLineComment discards everything from the current position to end-of-line.
func (l *Lexer) skipLineComment() {
	for l.pos < len(l.src) && l.peek() != '\n' {
		l.advance()
	}
}

// skipBlockComment discards everything up to and including the closing "*/".
// The opening "/*" must already have been consumed.
func (l *Lexer) skipBlockComment() error {
	startLine := l.line
	for l.pos < len(l.src) {
		if l.peek() == '*' && l.peek2() == '/' {
			l.advance()
			l.advance()
			return nil
		}
		l.advance()
	}
	return l.errorf(startLine, "unterminated block comment")
}

// scanIdent collects a full identifier or keyword token.
func (l *Lexer) scanIdent() Token {
	line := l.line
	start := l.pos
	for l.pos < len(l.src) {
		r := l.peek()
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		l.advance()
	}
	lexeme := string(l.src[start:l.pos])
	tt := IDENTIFIER
	if kw, ok := keywords[lexeme]; ok {
		tt = kw
	}
	return Token{Type: tt, Lexeme: lexeme, Line: line}
}

// scanInt collects a decimal or 0x-prefixed hex literal. A trailing letter
// glued to the digits is an error.
func (l *Lexer) scanInt() (Token, error) {
	line := l.line
	start := l.pos

	if l.peek() == '0' && (l.peek2() == 'x' || l.peek2() == 'X') {
		l.advance()
		l.advance()
		digits := 0
		for l.pos < len(l.src) && isHexDigit(l.peek()) {
			l.advance()
			digits++
		}
		if digits == 0 {
			return Token{}, l.errorf(line, "hex literal has no digits")
		}
	} else {
		for l.pos < len(l.src) && unicode.IsDigit(l.peek()) {
			l.advance()
		}
	}

	if r := l.peek(); unicode.IsLetter(r) || r == '_' {
		return Token{}, l.errorf(line, "invalid suffix %q on integer literal", r)
	}
	return Token{Type: INTEGER, Lexeme: string(l.src[start:l.pos]), Line: line}, nil
}

func isHexDigit(r rune) bool {
	return unicode.IsDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// scanChar collects a character literal 'c' and returns it as an INTEGER
// token holding the character's code.
func (l *Lexer) scanChar() (Token, error) {
	line := l.line
	l.advance() // consume opening '

	r := l.peek()
	var val rune

	if r == '\'' {
		return Token{}, l.errorf(line, "empty character literal")
	}

	if r == '\\' {
		l.advance()
		next := l.peek()
		switch next {
		case 'n':
			val = '\n'
		case 'r':
			val = '\r'
		case 't':
			val = '\t'
		case '0':
			val = 0
		case '\\':
			val = '\\'
		case '\'':
			val = '\''
		case '"':
			val = '"'
		default:
			return Token{}, l.errorf(line, "unknown escape sequence \\%c", next)
		}
		l.advance()
	} else {
		val = r
		l.advance()
	}

	if l.peek() != '\'' {
		return Token{}, l.errorf(line, "unterminated character literal")
	}
	l.advance()

	return Token{Type: INTEGER, Lexeme: fmt.Sprintf("%d", val), Line: line}, nil
}

// nextToken skips whitespace/comments and returns the next Token.
func (l *Lexer) nextToken() (Token, error) {
	for {
		l.skipWhitespace()
		if l.pos >= len(l.src) {
			return Token{Type: EOF, Lexeme: "", Line: l.line}, nil
		}
		if l.peek() == '/' && l.peek2() == '/' {
			l.advance()
			l.advance()
			l.skipLineComment()
			continue
		}
		if l.peek() == '/' && l.peek2() == '*' {
			l.advance()
			l.advance()
			if err := l.skipBlockComment(); err != nil {
				return Token{}, err
			}
			continue
		}
		break
	}

	ch := l.peek()
	line := l.line

	if unicode.IsLetter(ch) || ch == '_' {
		return l.scanIdent(), nil
	}
	if unicode.IsDigit(ch) {
		return l.scanInt()
	}
	if ch == '\'' {
		return l.scanChar()
	}

	l.advance() // consume the character before the switch
	switch ch {
	case '{':
		return Token{LBRACE, "{", line}, nil
	case '}':
		return Token{RBRACE, "}", line}, nil
	case '(':
		return Token{LPAREN, "(", line}, nil
	case ')':
		return Token{RPAREN, ")", line}, nil
	case ';':
		return Token{SEMICOLON, ";", line}, nil
	case ',':
		return Token{COMMA, ",", line}, nil

	case '+':
		if l.peek() == '+' {
			l.advance()
			return Token{PLUS_PLUS, "++", line}, nil
		}
		return Token{PLUS, "+", line}, nil
	case '-':
		if l.peek() == '-' {
			l.advance()
			return Token{MINUS_MINUS, "--", line}, nil
		}
		return Token{MINUS, "-", line}, nil
	case '*':
		return Token{STAR, "*", line}, nil
	case '/':
		return Token{SLASH, "/", line}, nil
	case '%':
		return Token{PERCENT, "%", line}, nil
	case '&':
		if l.peek() == '&' {
			l.advance()
			return Token{AND_LOGICAL, "&&", line}, nil
		}
		return Token{AND, "&", line}, nil
	case '|':
		if l.peek() == '|' {
			l.advance()
			return Token{OR_LOGICAL, "||", line}, nil
		}
		return Token{PIPE, "|", line}, nil
	case '^':
		return Token{CARET, "^", line}, nil
	case '~':
		return Token{TILDE, "~", line}, nil
	case '!':
		if l.peek() == '=' {
			l.advance()
			return Token{NOT_EQ, "!=", line}, nil
		}
		return Token{NOT, "!", line}, nil
	case '<':
		if l.peek() == '=' {
			l.advance()
			return Token{LESS_EQ, "<=", line}, nil
		}
		if l.peek() == '<' {
			l.advance()
			return Token{SHL_OP, "<<", line}, nil
		}
		return Token{LESS, "<", line}, nil
	case '>':
		if l.peek() == '=' {
			l.advance()
			return Token{GREATER_EQ, ">=", line}, nil
		}
		if l.peek() == '>' {
			l.advance()
			return Token{SHR_OP, ">>", line}, nil
		}
		return Token{GREATER, ">", line}, nil
	case '=':
		if l.peek() == '=' {
			l.advance()
			return Token{EQUALS, "==", line}, nil
		}
		return Token{ASSIGN, "=", line}, nil
	default:
		return Token{}, l.errorf(line, "unexpected character %q", ch)
	}
}

// Lex tokenises src and returns all tokens including the final EOF token.
// It returns a non-nil error on the first illegal character or unterminated comment.
func Lex(src string) ([]Token, error) {
	l := newLexer(src)
	var tokens []Token
	for {
		tok, err := l.nextToken()
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens, nil
		}
	}
}
