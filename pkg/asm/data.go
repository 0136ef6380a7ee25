package asm

import (
	"fmt"
	"strconv"
	"strings"
)

var elementWidths = map[string]int{
	"byte":  1,
	"word":  2,
	"dword": 4,
}

// dataSpec is a parsed "> type[arity] name = values" directive.
type dataSpec struct {
	width  int
	array  bool
	count  int // declared element count, 0 when unsized
	name   string
	values []string
}

func parseDataDirective(body string, lineNo int) (dataSpec, error) {
	var d dataSpec
	invalid := func(format string, args ...any) (dataSpec, error) {
		return d, fmt.Errorf("%w: %s on line %d", ErrInvalidDataSpec, fmt.Sprintf(format, args...), lineNo)
	}

	decl, init, hasInit := strings.Cut(body, "=")
	decl = strings.TrimSpace(decl)

	i := 0
	for i < len(decl) && (decl[i] >= 'a' && decl[i] <= 'z' || decl[i] >= 'A' && decl[i] <= 'Z') {
		i++
	}
	typ := strings.ToLower(decl[:i])
	width, ok := elementWidths[typ]
	if !ok {
		return invalid("unknown element type '%s'", typ)
	}
	d.width = width

	rest := strings.TrimSpace(decl[i:])
	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return invalid("unterminated array size")
		}
		d.array = true
		if n := strings.TrimSpace(rest[1:end]); n != "" {
			count, err := strconv.Atoi(n)
			if err != nil || count < 1 {
				return invalid("bad array size '%s'", n)
			}
			d.count = count
			d.array = count > 1
		}
		rest = strings.TrimSpace(rest[end+1:])
	}

	if !isIdentifier(rest) {
		return invalid("bad or missing name '%s'", rest)
	}
	d.name = rest

	if hasInit {
		init = strings.TrimSpace(init)
		if init == "" {
			return invalid("missing value after '='")
		}
		d.values = splitOperands(init)
		for _, v := range d.values {
			if v == "" {
				return invalid("empty value")
			}
		}
	}
	return d, nil
}

func (j *job) emitData(p parsedLine) error {
	d, err := parseDataDirective(p.directive, p.lineNo)
	if err != nil {
		return err
	}

	filler := j.set.Filler()
	for len(j.buf)%j.align != 0 {
		j.buf = append(j.buf, filler)
	}
	if err := j.labels.Define(d.name, len(j.buf), p.lineNo); err != nil {
		return err
	}
	j.sourceMap[uint16(len(j.buf))] = p.lineNo

	if !d.array {
		switch len(d.values) {
		case 0:
			j.buf = append(j.buf, make([]byte, d.width)...)
			return nil
		case 1:
			return j.emitElement(d.values[0], d.width, p.lineNo)
		}
		return fmt.Errorf("%w: scalar '%s' given %d values on line %d", ErrInvalidDataSpec, d.name, len(d.values), p.lineNo)
	}

	start := len(j.buf)
	stringLike := false
	for _, v := range d.values {
		if !strings.HasPrefix(v, `"`) {
			if err := j.emitElement(v, d.width, p.lineNo); err != nil {
				return err
			}
			continue
		}
		if d.width != 1 {
			return fmt.Errorf("%w: string in non-byte array '%s' on line %d", ErrInvalidDataSpec, d.name, p.lineNo)
		}
		s, err := strconv.Unquote(v)
		if err != nil {
			return fmt.Errorf("%w: %s on line %d", ErrInvalidLiteral, v, p.lineNo)
		}
		j.buf = append(j.buf, s...)
		stringLike = true
	}
	if stringLike {
		j.buf = append(j.buf, 0)
	}

	if d.count > 0 {
		size := d.count * d.width
		if used := len(j.buf) - start; used > size {
			return fmt.Errorf("%w: '%s' holds %d elements, %d given on line %d",
				ErrInvalidDataSpec, d.name, d.count, used/d.width, p.lineNo)
		}
		for len(j.buf)-start < size {
			j.buf = append(j.buf, 0)
		}
	}
	return nil
}

func (j *job) emitElement(token string, width int, lineNo int) error {
	if strings.HasPrefix(token, `"`) {
		return fmt.Errorf("%w: string literal only allowed in byte arrays on line %d", ErrInvalidDataSpec, lineNo)
	}
	return j.emitOperand(token, Operand{Kind: Immediate, Width: width}, lineNo)
}
