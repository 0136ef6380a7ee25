package cpu

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// code concatenates instruction fragments into one program image.
func code(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// ins encodes an opcode followed by raw operand bytes.
func ins(op byte, operands ...byte) []byte {
	return append([]byte{op}, operands...)
}

// lcons encodes LCONS reg, v.
func lcons(reg byte, v uint32) []byte {
	return ins(OpLCONS, reg, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// addr16 returns the two little-endian bytes of a 16-bit address.
func addr16(a uint16) (byte, byte) {
	return byte(a), byte(a >> 8)
}

// runProgram runs prog to completion with a small stack and captured output.
func runProgram(t *testing.T, prog []byte) (*CPU, string) {
	t.Helper()
	c := NewCPU(prog, 256)
	var out bytes.Buffer
	c.Output = &out
	res, err := c.Run(10000)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res != Finished {
		t.Fatalf("Run result = %v; want finished", res)
	}
	return c, out.String()
}

func TestNewCPU(t *testing.T) {
	c := NewCPU([]byte{OpHALT}, 64)
	if len(c.Memory) != 65 {
		t.Errorf("memory size = %d; want 65", len(c.Memory))
	}
	if c.Regs[RegSP] != 65 {
		t.Errorf("sp = %d; want 65", c.Regs[RegSP])
	}
	if c.ProgLen != 1 {
		t.Errorf("ProgLen = %d; want 1", c.ProgLen)
	}

	c = NewCPU(nil, 0)
	if len(c.Memory) != DefaultStackSize {
		t.Errorf("default memory size = %d; want %d", len(c.Memory), DefaultStackSize)
	}
}

func TestLoadConstants(t *testing.T) {
	prog := code(
		ins(OpLCONSB, RegR0, 0x7F),
		ins(OpLCONSW, RegR1, 0x34, 0x12),
		lcons(RegR2, 0xFFFFFFFF),
		ins(OpLCONSB, RegT9, 0xFF),
		ins(OpMOV, RegR3, RegR1),
		ins(OpHALT),
	)
	c, _ := runProgram(t, prog)

	want := map[byte]uint32{
		RegR0: 0x7F,
		RegR1: 0x1234,
		RegR2: 0xFFFFFFFF,
		RegT9: 0xFF,
		RegR3: 0x1234,
	}
	for r, v := range want {
		if c.Regs[r] != v {
			t.Errorf("%s = 0x%X; want 0x%X", RegisterName(r), c.Regs[r], v)
		}
	}
	if c.Steps != 6 {
		t.Errorf("Steps = %d; want 6", c.Steps)
	}
}

func TestIntegerALU(t *testing.T) {
	neg := func(v int32) uint32 { return uint32(v) }
	tests := []struct {
		name string
		op   byte
		x, y uint32
		want uint32
	}{
		{"add", OpADD, 10, 20, 30},
		{"add wraps", OpADD, 0xFFFFFFFF, 1, 0},
		{"sub", OpSUB, 10, 3, 7},
		{"sub negative", OpSUB, 3, 10, neg(-7)},
		{"mul", OpMUL, 6, 7, 42},
		{"imul", OpIMUL, neg(-6), 7, neg(-42)},
		{"div", OpDIV, 100, 7, 14},
		{"idiv", OpIDIV, neg(-100), 7, neg(-14)},
		{"mod", OpMOD, 100, 7, 2},
		{"imod", OpIMOD, neg(-100), 7, neg(-2)},
		{"shl", OpSHL, 1, 4, 16},
		{"shr", OpSHR, 0x80000000, 31, 1},
		{"ishr", OpISHR, 0x80000000, 31, 0xFFFFFFFF},
		{"and", OpAND, 0xFF, 0x0F, 0x0F},
		{"or", OpOR, 0xF0, 0x0F, 0xFF},
		{"xor", OpXOR, 0xFFFF, 0x00FF, 0xFF00},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			prog := code(
				lcons(RegR1, tc.x),
				lcons(RegR2, tc.y),
				ins(tc.op, RegR0, RegR1, RegR2),
				ins(OpHALT),
			)
			c, _ := runProgram(t, prog)
			if c.Regs[RegR0] != tc.want {
				t.Errorf("%s(0x%X, 0x%X) = 0x%X; want 0x%X", OpcodeName(tc.op), tc.x, tc.y, c.Regs[RegR0], tc.want)
			}
		})
	}
}

func TestUnaryOps(t *testing.T) {
	prog := code(
		lcons(RegR0, 41),
		ins(OpINC, RegR0),
		lcons(RegR1, 0),
		ins(OpDEC, RegR1),
		ins(OpNOT, RegR2, RegR1),
		ins(OpHALT),
	)
	c, _ := runProgram(t, prog)
	if c.Regs[RegR0] != 42 {
		t.Errorf("inc: r0 = %d; want 42", c.Regs[RegR0])
	}
	if c.Regs[RegR1] != 0xFFFFFFFF {
		t.Errorf("dec: r1 = 0x%X; want 0xFFFFFFFF", c.Regs[RegR1])
	}
	if c.Regs[RegR2] != 0 {
		t.Errorf("not: r2 = 0x%X; want 0", c.Regs[RegR2])
	}
}

func TestFloatOps(t *testing.T) {
	prog := code(
		lcons(RegR1, uint32(0xFFFFFFFD)), // -3
		ins(OpI2F, RegR0, RegR1),
		ins(OpFINC, RegR0),
		ins(OpMOV, RegR2, RegR0),
		ins(OpFMUL, RegR2, RegR2, RegR0),
		ins(OpF2I, RegR3, RegR2),
		ins(OpHALT),
	)
	c, _ := runProgram(t, prog)
	if got := f32(c.Regs[RegR0]); got != -2 {
		t.Errorf("i2f+finc = %v; want -2", got)
	}
	if c.Regs[RegR3] != 4 {
		t.Errorf("f2i(-2*-2) = %d; want 4", c.Regs[RegR3])
	}
}

func TestDivideByZero(t *testing.T) {
	for _, op := range []byte{OpDIV, OpIDIV, OpMOD, OpIMOD} {
		prog := code(
			lcons(RegR1, 1),
			ins(op, RegR0, RegR1, RegR2),
			ins(OpHALT),
		)
		c := NewCPU(prog, 64)
		res, err := c.Run(0)
		if !errors.Is(err, ErrDivideByZero) {
			t.Errorf("%s: err = %v; want ErrDivideByZero", OpcodeName(op), err)
		}
		if res != Faulted {
			t.Errorf("%s: result = %v; want faulted", OpcodeName(op), res)
		}
	}
}

func TestStack(t *testing.T) {
	prog := code(
		lcons(RegR0, 0xAABBCCDD),
		ins(OpPUSH, RegR0),
		ins(OpLCONSB, RegR1, 7),
		ins(OpPUSH, RegR1),
		ins(OpDUP),
		ins(OpPOP, RegR2),
		ins(OpPOP2, RegR3, RegR4),
		ins(OpHALT),
	)
	c, _ := runProgram(t, prog)
	if c.Regs[RegR2] != 7 || c.Regs[RegR3] != 7 || c.Regs[RegR4] != 0xAABBCCDD {
		t.Errorf("r2, r3, r4 = %d, %d, 0x%X; want 7, 7, 0xAABBCCDD", c.Regs[RegR2], c.Regs[RegR3], c.Regs[RegR4])
	}
	if c.StackDepth() != 0 {
		t.Errorf("stack depth = %d; want 0", c.StackDepth())
	}
	// The first push lands in the top four bytes of memory.
	top := len(c.Memory) - 4
	if !bytes.Equal(c.Memory[top:], []byte{0xDD, 0xCC, 0xBB, 0xAA}) {
		t.Errorf("stack bytes = % X; want DD CC BB AA", c.Memory[top:])
	}
}

func TestStackErrors(t *testing.T) {
	t.Run("overflow", func(t *testing.T) {
		prog := code(ins(OpPUSH, RegR0), ins(OpPUSH, RegR0), ins(OpHALT))
		c := NewCPU(prog, 4)
		_, err := c.Run(0)
		if !errors.Is(err, ErrStackOverflow) {
			t.Errorf("err = %v; want ErrStackOverflow", err)
		}
	})

	t.Run("underflow", func(t *testing.T) {
		c := NewCPU(code(ins(OpPOP, RegR0), ins(OpHALT)), 16)
		_, err := c.Run(0)
		if !errors.Is(err, ErrStackUnderflow) {
			t.Errorf("err = %v; want ErrStackUnderflow", err)
		}
	})

	t.Run("dup on empty stack", func(t *testing.T) {
		c := NewCPU(code(ins(OpDUP), ins(OpHALT)), 16)
		_, err := c.Run(0)
		if !errors.Is(err, ErrStackUnderflow) {
			t.Errorf("err = %v; want ErrStackUnderflow", err)
		}
	})
}

func TestCallRet(t *testing.T) {
	lo, hi := addr16(0x0004)
	prog := code(
		ins(OpCALL, lo, hi),     // 0x00
		ins(OpHALT),             // 0x03
		ins(OpLCONSB, RegR0, 9), // 0x04
		ins(OpRET),              // 0x07
	)
	c, _ := runProgram(t, prog)
	if c.Regs[RegR0] != 9 {
		t.Errorf("r0 = %d; want 9", c.Regs[RegR0])
	}
	if c.Regs[RegRA] != 3 {
		t.Errorf("ra = %d; want 3", c.Regs[RegRA])
	}
	if c.Regs[RegIP] != 3 {
		t.Errorf("ip = %d; want 3 (halted on HALT)", c.Regs[RegIP])
	}
}

func TestJumps(t *testing.T) {
	t.Run("jmp", func(t *testing.T) {
		lo, hi := addr16(0x0005)
		prog := code(
			ins(OpJMP, lo, hi), // 0x00
			ins(OpNOP),         // 0x03
			ins(OpNOP),         // 0x04
			ins(OpHALT),        // 0x05
		)
		c, _ := runProgram(t, prog)
		if c.Steps != 2 {
			t.Errorf("Steps = %d; want 2 (jmp, halt)", c.Steps)
		}
	})

	t.Run("jr", func(t *testing.T) {
		prog := code(
			ins(OpLCONSB, RegT0, 5), // 0x00
			ins(OpJR, RegT0),        // 0x03
			ins(OpHALT),             // 0x05
		)
		c, _ := runProgram(t, prog)
		if c.Steps != 3 {
			t.Errorf("Steps = %d; want 3", c.Steps)
		}
	})

	tests := []struct {
		op   byte
		v    uint32
		want bool
	}{
		{OpJZ, 0, true},
		{OpJZ, 5, false},
		{OpJNZ, 5, true},
		{OpJNZ, 0, false},
	}
	for _, tc := range tests {
		lo, hi := addr16(0x000E)
		prog := code(
			lcons(RegR1, tc.v),        // 0x00
			ins(tc.op, RegR1, lo, hi), // 0x06
			ins(OpLCONSB, RegR0, 0),   // 0x0A
			ins(OpHALT),               // 0x0D
			ins(OpLCONSB, RegR0, 1),   // 0x0E
			ins(OpHALT),
		)
		c, _ := runProgram(t, prog)
		if got := c.Regs[RegR0] == 1; got != tc.want {
			t.Errorf("%s with %d: taken = %v; want %v", OpcodeName(tc.op), tc.v, got, tc.want)
		}
	}
}

func TestCompareJumps(t *testing.T) {
	minusOne := uint32(0xFFFFFFFF)
	tests := []struct {
		op   byte
		x, y uint32
		want bool
	}{
		{OpJE, 3, 3, true},
		{OpJE, 3, 4, false},
		{OpJNE, 3, 4, true},
		{OpJG, 1, minusOne, true},
		{OpJA, 1, minusOne, false},
		{OpJGE, 2, 2, true},
		{OpJAE, minusOne, 1, true},
		{OpJL, minusOne, 1, true},
		{OpJB, minusOne, 1, false},
		{OpJLE, 5, 4, false},
		{OpJBE, 4, 4, true},
	}
	for _, tc := range tests {
		lo, hi := addr16(0x0015)
		prog := code(
			lcons(RegR1, tc.x),               // 0x00
			lcons(RegR2, tc.y),               // 0x06
			ins(tc.op, RegR1, RegR2, lo, hi), // 0x0C
			ins(OpLCONSB, RegR0, 0),          // 0x11
			ins(OpHALT),                      // 0x14
			ins(OpLCONSB, RegR0, 1),          // 0x15
			ins(OpHALT),
		)
		c, _ := runProgram(t, prog)
		if got := c.Regs[RegR0] == 1; got != tc.want {
			t.Errorf("%s(0x%X, 0x%X): taken = %v; want %v", OpcodeName(tc.op), tc.x, tc.y, got, tc.want)
		}
	}
}

func TestMemory(t *testing.T) {
	// Data area at 0x40..0x4F inside the program image.
	prog := make([]byte, 0x50)
	body := code(
		lcons(RegR0, 0x11223344),
		ins(OpSTOR, 0x40, 0x00, RegR0),
		ins(OpLOADW, RegR1, 0x40, 0x00),
		ins(OpLOADB, RegR2, 0x43, 0x00),
		ins(OpLCONSB, RegR5, 0x48),
		ins(OpSTORBP, RegR5, RegR0),
		ins(OpLOADP, RegR3, RegR5),
		ins(OpMEMCPY, 0x4C, 0x00, 0x40, 0x00, 0x04, 0x00),
		ins(OpLOAD, RegR4, 0x4C, 0x00),
		ins(OpHALT),
	)
	copy(prog, body)
	c, _ := runProgram(t, prog)

	if c.Regs[RegR1] != 0x3344 {
		t.Errorf("loadw = 0x%X; want 0x3344", c.Regs[RegR1])
	}
	if c.Regs[RegR2] != 0x11 {
		t.Errorf("loadb = 0x%X; want 0x11", c.Regs[RegR2])
	}
	if c.Regs[RegR3] != 0x44 {
		t.Errorf("load_p after storb_p = 0x%X; want 0x44", c.Regs[RegR3])
	}
	if c.Regs[RegR4] != 0x11223344 {
		t.Errorf("memcpy+load = 0x%X; want 0x11223344", c.Regs[RegR4])
	}
}

func TestInvalidAddress(t *testing.T) {
	prog := code(
		lcons(RegR5, 0xFFFF),
		ins(OpLOADP, RegR0, RegR5),
		ins(OpHALT),
	)
	c := NewCPU(prog, 16)
	_, err := c.Run(0)
	if !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("err = %v; want ErrInvalidAddress", err)
	}

	// Running off the end of memory.
	c = NewCPU([]byte{OpNOP}, 0)
	c.Memory = c.Memory[:1]
	c.Regs[RegSP] = 1
	_, err = c.Run(0)
	if !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("fetch past end: err = %v; want ErrInvalidAddress", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		prog []byte
		want error
	}{
		{"unknown opcode", []byte{0xFE}, ErrUnknownOpcode},
		{"invalid register", []byte{OpPUSH, 20}, ErrInvalidRegister},
		{"unhandled interrupt", []byte{OpINT, 3}, ErrUnhandledInterrupt},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewCPU(tc.prog, 16)
			_, err := c.Run(0)
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v; want %v", err, tc.want)
			}
		})
	}
}

func TestInterruptHandler(t *testing.T) {
	prog := code(ins(OpINT, 1), ins(OpINT, 2), ins(OpLCONSB, RegR0, 9), ins(OpHALT))
	c := NewCPU(prog, 16)
	var seen []byte
	c.OnInterrupt = func(c *CPU, code byte) bool {
		seen = append(seen, code)
		return code != 2
	}
	res, err := c.Run(0)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res != Finished {
		t.Errorf("result = %v; want finished", res)
	}
	if !bytes.Equal(seen, []byte{1, 2}) {
		t.Errorf("interrupts = %v; want [1 2]", seen)
	}
	if c.Regs[RegR0] != 0 {
		t.Errorf("r0 = %d; handler returning false should stop before lconsb", c.Regs[RegR0])
	}
}

func TestPrint(t *testing.T) {
	prog := make([]byte, 0x40)
	copy(prog[0x30:], "Hi!\x00")
	body := code(
		lcons(RegR0, 42),
		ins(OpPRINT, RegR0, 1),
		lcons(RegR1, 0xFFFFFFFF),
		ins(OpPRINTI, RegR1, 0),
		ins(OpPRINTLN),
		ins(OpLCONSB, RegR2, 'x'),
		ins(OpPRINTC, RegR2),
		ins(OpPRINTS, 0x30, 0x00),
		ins(OpHALT),
	)
	copy(prog, body)
	_, out := runProgram(t, prog)
	if out != "42\n-1\nxHi!" {
		t.Errorf("output = %q; want %q", out, "42\n-1\nxHi!")
	}
}

func TestRead(t *testing.T) {
	prog := make([]byte, 0x40)
	body := code(
		ins(OpREAD, RegR0),
		ins(OpREADI, RegR1),
		ins(OpREADC, RegR2),
		ins(OpREADS, 0x30, 0x00, 0x04, 0x00),
		ins(OpREADC, RegR3),
		ins(OpHALT),
	)
	copy(prog, body)
	c := NewCPU(prog, 64)
	c.Input = strings.NewReader("7 -3\nhello\n")
	c.Output = &bytes.Buffer{}
	if _, err := c.Run(0); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if c.Regs[RegR0] != 7 {
		t.Errorf("read = %d; want 7", c.Regs[RegR0])
	}
	if int32(c.Regs[RegR1]) != -3 {
		t.Errorf("readi = %d; want -3", int32(c.Regs[RegR1]))
	}
	if c.Regs[RegR2] != '\n' {
		t.Errorf("readc = %d; want newline", c.Regs[RegR2])
	}
	s, err := c.CString(0x30)
	if err != nil || string(s) != "hel" {
		t.Errorf("reads stored %q (%v); want \"hel\"", s, err)
	}
	if c.Regs[RegR3] != 0xFFFFFFFF {
		t.Errorf("readc at EOF = 0x%X; want 0xFFFFFFFF", c.Regs[RegR3])
	}
}

func TestRunPausedAndResumed(t *testing.T) {
	prog := code(ins(OpNOP), ins(OpNOP), ins(OpNOP), ins(OpHALT))
	c := NewCPU(prog, 16)
	res, err := c.Run(2)
	if err != nil || res != Paused {
		t.Fatalf("Run(2) = %v, %v; want paused", res, err)
	}
	if c.Regs[RegIP] != 2 {
		t.Errorf("ip = %d; want 2", c.Regs[RegIP])
	}
	res, err = c.Run(0)
	if err != nil || res != Finished {
		t.Fatalf("Run(0) = %v, %v; want finished", res, err)
	}
	if c.Steps != 4 {
		t.Errorf("Steps = %d; want 4", c.Steps)
	}

	c.Reset()
	if c.Halted || c.Regs[RegIP] != 0 || c.Regs[RegSP] != uint32(len(c.Memory)) {
		t.Errorf("Reset left halted=%v ip=%d sp=%d", c.Halted, c.Regs[RegIP], c.Regs[RegSP])
	}
}

func TestRegisterNames(t *testing.T) {
	tests := []struct {
		name string
		idx  byte
	}{
		{"r0", RegR0},
		{"R5", RegR5},
		{"t0", RegT0},
		{"T9", RegT9},
		{"ip", RegIP},
		{"bp", RegBP},
		{"SP", RegSP},
		{"ra", RegRA},
	}
	for _, tc := range tests {
		idx, ok := RegisterIndex(tc.name)
		if !ok || idx != tc.idx {
			t.Errorf("RegisterIndex(%q) = %d, %v; want %d, true", tc.name, idx, ok, tc.idx)
		}
	}
	if _, ok := RegisterIndex("r6"); ok {
		t.Errorf("RegisterIndex(\"r6\") should fail")
	}
	if OpcodeName(OpSTORWP) != "storw_p" {
		t.Errorf("OpcodeName(OpSTORWP) = %q", OpcodeName(OpSTORWP))
	}
}
