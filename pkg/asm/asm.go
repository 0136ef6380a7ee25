package asm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	ErrDuplicateLabel  = errors.New("duplicate label")
	ErrUndefinedLabel  = errors.New("undefined label")
	ErrArityMismatch   = errors.New("operand count mismatch")
	ErrInvalidRegister = errors.New("invalid register")
	ErrUnknownOpcode   = errors.New("unknown opcode")
	ErrInvalidDataSpec = errors.New("invalid data directive")
	ErrInvalidLiteral  = errors.New("invalid literal")
	ErrProgramTooLarge = errors.New("program too large")
)

type Option func(*Assembler)

// WithAlignment pads every data directive to a multiple of n bytes.
func WithAlignment(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.align = n
		}
	}
}

func WithInstructionSet(set *InstructionSet) Option {
	return func(a *Assembler) {
		if set != nil {
			a.set = set
		}
	}
}

type Assembler struct {
	set   *InstructionSet
	align int
}

// Program is the output of one assembly job.
type Program struct {
	Code      []byte
	Labels    map[string]uint16
	SourceMap map[uint16]int
}

type lineKind int

const (
	blankLine lineKind = iota
	labelLine
	dataLine
	instrLine
)

type parsedLine struct {
	lineNo    int
	kind      lineKind
	label     string
	mnemonic  string
	operands  []string
	directive string
}

func New(opts ...Option) *Assembler {
	a := &Assembler{set: NewInstructionSet(), align: 1}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func Assemble(code string) ([]byte, map[uint16]int, error) {
	prog, err := New().Assemble(code)
	if err != nil {
		return nil, nil, err
	}
	return prog.Code, prog.SourceMap, nil
}

// job holds the state of a single Assemble call.
type job struct {
	set       *InstructionSet
	align     int
	buf       []byte
	labels    *LabelTable
	sourceMap map[uint16]int
}

func (a *Assembler) Assemble(code string) (*Program, error) {
	j := &job{
		set:       a.set,
		align:     a.align,
		buf:       make([]byte, 0, len(code)/4),
		labels:    NewLabelTable(),
		sourceMap: make(map[uint16]int),
	}

	for i, raw := range strings.Split(code, "\n") {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return nil, err
		}

		switch p.kind {
		case blankLine:
			continue
		case labelLine:
			err = j.labels.Define(p.label, len(j.buf), lineNo)
		case dataLine:
			err = j.emitData(p)
		case instrLine:
			err = j.emitInstruction(p)
		}
		if err != nil {
			return nil, err
		}
		if len(j.buf) > MaxAddress+1 {
			return nil, fmt.Errorf("%w: %d bytes after line %d", ErrProgramTooLarge, len(j.buf), lineNo)
		}
	}

	if err := j.labels.Resolve(j.buf); err != nil {
		return nil, err
	}

	return &Program{
		Code:      j.buf,
		Labels:    j.labels.Addresses(),
		SourceMap: j.sourceMap,
	}, nil
}

func (j *job) emitInstruction(p parsedLine) error {
	op, ok := j.set.Lookup(p.mnemonic)
	if !ok {
		return fmt.Errorf("%w: '%s' on line %d", ErrUnknownOpcode, p.mnemonic, p.lineNo)
	}
	if len(p.operands) != len(op.Shape) {
		return fmt.Errorf("%w: %s expects %d operands, got %d on line %d",
			ErrArityMismatch, op.Mnemonic, len(op.Shape), len(p.operands), p.lineNo)
	}

	j.sourceMap[uint16(len(j.buf))] = p.lineNo
	j.buf = append(j.buf, op.Code)
	for i, shape := range op.Shape {
		if err := j.emitOperand(p.operands[i], shape, p.lineNo); err != nil {
			return err
		}
	}
	return nil
}

func (j *job) emitOperand(token string, shape Operand, lineNo int) error {
	if shape.Kind == Register {
		reg, err := parseRegister(j.set, token, lineNo)
		if err != nil {
			return err
		}
		j.buf = append(j.buf, reg)
		return nil
	}

	if isLabelRef(token) {
		name := token[1:]
		if shape.Width < 2 {
			return fmt.Errorf("%w: label '%s' does not fit a %d-byte operand on line %d", ErrInvalidLiteral, name, shape.Width, lineNo)
		}
		if !isIdentifier(name) {
			return fmt.Errorf("%w: invalid label reference '%s' on line %d", ErrInvalidLiteral, token, lineNo)
		}
		j.labels.Reference(name, len(j.buf), lineNo)
		j.buf = append(j.buf, make([]byte, shape.Width)...)
		return nil
	}

	val, err := parseImmediate(token, shape.Width, lineNo)
	if err != nil {
		return err
	}
	j.buf = appendLE(j.buf, val, shape.Width)
	return nil
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}

	line := strings.TrimSpace(stripComments(raw))
	if line == "" {
		return p, nil
	}

	if line[0] == '>' {
		p.kind = dataLine
		p.directive = strings.TrimSpace(line[1:])
		return p, nil
	}

	if line[0] == '.' && strings.HasSuffix(line, ":") {
		name := line[1 : len(line)-1]
		if !isIdentifier(name) {
			return p, fmt.Errorf("%w: invalid label '%s' on line %d", ErrInvalidLiteral, name, lineNo)
		}
		p.kind = labelLine
		p.label = name
		return p, nil
	}

	p.kind = instrLine
	mnemonic, rest := line, ""
	if sp := strings.IndexFunc(line, unicode.IsSpace); sp >= 0 {
		mnemonic, rest = line[:sp], line[sp+1:]
	}
	p.mnemonic = strings.ToLower(mnemonic)

	rest = strings.TrimSpace(rest)
	if rest == "" {
		return p, nil
	}
	p.operands = splitOperands(rest)
	for _, op := range p.operands {
		if op == "" {
			return p, fmt.Errorf("%w: empty operand in '%s' on line %d", ErrArityMismatch, line, lineNo)
		}
	}
	return p, nil
}

// stripComments cuts the line at the first ';' outside a quoted literal.
func stripComments(line string) string {
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0 && c == '\\':
			i++
		case quote != 0 && c == quote:
			quote = 0
		case quote != 0:
		case c == '\'' || c == '"':
			quote = c
		case c == ';':
			return line[:i]
		}
	}
	return line
}

// splitOperands splits on commas outside quoted literals and trims each part.
func splitOperands(s string) []string {
	var out []string
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0 && c == '\\':
			i++
		case quote != 0 && c == quote:
			quote = 0
		case quote != 0:
		case c == '\'' || c == '"':
			quote = c
		case c == ',':
			out = append(out, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}

func parseRegister(set *InstructionSet, token string, lineNo int) (byte, error) {
	reg, ok := set.Register(token)
	if !ok {
		return 0, fmt.Errorf("%w: '%s' on line %d", ErrInvalidRegister, token, lineNo)
	}
	return reg, nil
}

// parseImmediate accepts decimal, 0x hex and 'c' character literals and checks
// the value fits width bytes: signed range when negative, unsigned otherwise.
func parseImmediate(token string, width int, lineNo int) (uint32, error) {
	v, err := parseLiteral(token)
	if err != nil {
		return 0, fmt.Errorf("%w: '%s' on line %d", ErrInvalidLiteral, token, lineNo)
	}

	bits := uint(width * 8)
	if (v < 0 && v < -(int64(1)<<(bits-1))) || (v >= 0 && v > int64(1)<<bits-1) {
		return 0, fmt.Errorf("%w: %s does not fit in %d bytes on line %d", ErrInvalidLiteral, token, width, lineNo)
	}
	return uint32(v), nil
}

func parseLiteral(token string) (int64, error) {
	if strings.HasPrefix(token, "'") {
		s, err := strconv.Unquote(token)
		if err != nil {
			return 0, err
		}
		if len(s) == 1 {
			return int64(s[0]), nil
		}
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError || size != len(s) {
			return 0, fmt.Errorf("not a single character: %s", token)
		}
		return int64(r), nil
	}

	digits, neg := strings.CutPrefix(token, "-")
	base := 10
	if len(digits) > 2 && digits[0] == '0' && (digits[1] == 'x' || digits[1] == 'X') {
		digits, base = digits[2:], 16
	}
	// ParseUint rejects signs and, with an explicit base, underscores.
	u, err := strconv.ParseUint(digits, base, 63)
	if err != nil {
		return 0, err
	}
	if neg {
		return -int64(u), nil
	}
	return int64(u), nil
}

func appendLE(buf []byte, v uint32, width int) []byte {
	for i := 0; i < width; i++ {
		buf = append(buf, byte(v>>(8*i)))
	}
	return buf
}

func isLabelRef(token string) bool {
	return len(token) > 1 && token[0] == '.'
}

// isIdentifier reports whether s is a valid label name. Dots are allowed
// after the first character so generated names like loc.3 are legal.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
			continue
		}

		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '.' {
			return false
		}
	}

	return true
}
