package cpu

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

var (
	ErrUnknownOpcode      = errors.New("unknown opcode")
	ErrInvalidRegister    = errors.New("invalid register")
	ErrUnhandledInterrupt = errors.New("unhandled interrupt")
	ErrStackOverflow      = errors.New("stack overflow")
	ErrStackUnderflow     = errors.New("stack underflow")
	ErrInvalidAddress     = errors.New("invalid address")
	ErrDivideByZero       = errors.New("integer divide by zero")
)

// Result reports why Run returned.
type Result int

const (
	Finished Result = iota // HALT executed, or an interrupt handler stopped the machine
	Paused                 // the instruction budget ran out
	Faulted                // Step returned an error
)

func (r Result) String() string {
	switch r {
	case Finished:
		return "finished"
	case Paused:
		return "paused"
	case Faulted:
		return "faulted"
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

// DefaultStackSize is the number of bytes reserved after the program image
// when NewCPU is given a non-positive stack size.
const DefaultStackSize = 4096

// InterruptHandler services the INT instruction. Returning false halts the CPU.
type InterruptHandler func(c *CPU, code byte) bool

// CPU is a 32-bit register machine. Memory holds the program image followed
// by the stack, which grows downward from the end of memory.
type CPU struct {
	Regs [NumRegisters]uint32

	Memory  []byte
	ProgLen uint32

	Halted bool

	// Steps counts executed instructions since the last Reset.
	Steps uint64

	// Output receives PRINT* output. If nil, os.Stdout is used.
	Output io.Writer
	// Input feeds READ*. If nil, os.Stdin is used.
	Input io.Reader

	OnInterrupt InterruptHandler

	in *bufio.Reader
}

// NewCPU loads program at address 0 and reserves stackSize bytes of stack above it.
func NewCPU(program []byte, stackSize int) *CPU {
	if stackSize <= 0 {
		stackSize = DefaultStackSize
	}
	c := &CPU{
		Memory:  make([]byte, len(program)+stackSize),
		ProgLen: uint32(len(program)),
	}
	copy(c.Memory, program)
	c.Reset()
	return c
}

// Reset clears the stack area and registers and points sp at the end of memory.
func (c *CPU) Reset() {
	clear(c.Memory[c.ProgLen:])
	c.Regs = [NumRegisters]uint32{}
	c.Regs[RegSP] = uint32(len(c.Memory))
	c.Halted = false
	c.Steps = 0
}

// StackDepth returns the number of bytes currently pushed.
func (c *CPU) StackDepth() uint32 {
	return uint32(len(c.Memory)) - c.Regs[RegSP]
}

func (c *CPU) outputSink() io.Writer {
	if c.Output != nil {
		return c.Output
	}
	return os.Stdout
}

func (c *CPU) inputSource() *bufio.Reader {
	if c.in == nil {
		var r io.Reader = os.Stdin
		if c.Input != nil {
			r = c.Input
		}
		c.in = bufio.NewReader(r)
	}
	return c.in
}

func (c *CPU) checkRange(addr, n uint32) error {
	if uint64(addr)+uint64(n) > uint64(len(c.Memory)) {
		return fmt.Errorf("%w: 0x%04X (+%d bytes)", ErrInvalidAddress, addr, n)
	}
	return nil
}

// Load reads a little-endian value of width 1, 2 or 4 bytes at addr.
func (c *CPU) Load(addr uint32, width int) (uint32, error) {
	if err := c.checkRange(addr, uint32(width)); err != nil {
		return 0, err
	}
	switch width {
	case 1:
		return uint32(c.Memory[addr]), nil
	case 2:
		return uint32(binary.LittleEndian.Uint16(c.Memory[addr:])), nil
	default:
		return binary.LittleEndian.Uint32(c.Memory[addr:]), nil
	}
}

// Store writes the low width bytes of val at addr, little-endian.
func (c *CPU) Store(addr uint32, width int, val uint32) error {
	if err := c.checkRange(addr, uint32(width)); err != nil {
		return err
	}
	switch width {
	case 1:
		c.Memory[addr] = byte(val)
	case 2:
		binary.LittleEndian.PutUint16(c.Memory[addr:], uint16(val))
	default:
		binary.LittleEndian.PutUint32(c.Memory[addr:], val)
	}
	return nil
}

// Push stores val below sp. The stack may not grow into the program image.
func (c *CPU) Push(val uint32) error {
	sp := c.Regs[RegSP]
	if int64(sp)-4 < int64(c.ProgLen) {
		return fmt.Errorf("%w: sp=0x%04X", ErrStackOverflow, sp)
	}
	c.Regs[RegSP] = sp - 4
	binary.LittleEndian.PutUint32(c.Memory[sp-4:], val)
	return nil
}

// Pop removes and returns the value at sp.
func (c *CPU) Pop() (uint32, error) {
	sp := c.Regs[RegSP]
	if uint64(sp)+4 > uint64(len(c.Memory)) {
		return 0, fmt.Errorf("%w: sp=0x%04X", ErrStackUnderflow, sp)
	}
	if sp < c.ProgLen {
		return 0, fmt.Errorf("%w: sp=0x%04X", ErrStackOverflow, sp)
	}
	val := binary.LittleEndian.Uint32(c.Memory[sp:])
	c.Regs[RegSP] = sp + 4
	return val, nil
}

// decoder reads operands following an opcode. The first failure sticks in
// err and later reads return zero.
type decoder struct {
	mem []byte
	ip  uint32
	pc  uint32
	err error
}

func (d *decoder) next(n uint32) []byte {
	if d.err != nil {
		return nil
	}
	if uint64(d.pc)+uint64(n) > uint64(len(d.mem)) {
		d.err = fmt.Errorf("%w: operand of instruction at 0x%04X runs past memory", ErrInvalidAddress, d.ip)
		return nil
	}
	b := d.mem[d.pc : d.pc+n]
	d.pc += n
	return b
}

func (d *decoder) reg() byte {
	b := d.next(1)
	if b == nil {
		return 0
	}
	if b[0] >= NumRegisters {
		d.err = fmt.Errorf("%w: %d at 0x%04X", ErrInvalidRegister, b[0], d.ip)
		return 0
	}
	return b[0]
}

func (d *decoder) imm8() uint32 {
	b := d.next(1)
	if b == nil {
		return 0
	}
	return uint32(b[0])
}

func (d *decoder) imm16() uint32 {
	b := d.next(2)
	if b == nil {
		return 0
	}
	return uint32(binary.LittleEndian.Uint16(b))
}

func (d *decoder) imm32() uint32 {
	b := d.next(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func f32(v uint32) float32 { return math.Float32frombits(v) }
func u32(f float32) uint32 { return math.Float32bits(f) }

// Step executes the instruction at ip. A halted CPU does nothing.
func (c *CPU) Step() error {
	if c.Halted {
		return nil
	}

	ip := c.Regs[RegIP]
	if ip >= uint32(len(c.Memory)) {
		return fmt.Errorf("%w: ip=0x%04X", ErrInvalidAddress, ip)
	}
	op := c.Memory[ip]
	if op >= NumOpcodes {
		return fmt.Errorf("%w: 0x%02X at 0x%04X", ErrUnknownOpcode, op, ip)
	}

	d := &decoder{mem: c.Memory, ip: ip, pc: ip + 1}
	jumped := false
	jump := func(target uint32) {
		c.Regs[RegIP] = target
		jumped = true
	}
	var err error

	switch op {
	case OpNOP:

	case OpHALT:
		c.Halted = true
		c.Steps++
		return nil

	case OpINT:
		code := byte(d.imm8())
		if d.err != nil {
			break
		}
		if c.OnInterrupt == nil {
			err = fmt.Errorf("%w: %d at 0x%04X", ErrUnhandledInterrupt, code, ip)
			break
		}
		if !c.OnInterrupt(c, code) {
			c.Halted = true
		}

	case OpLCONS:
		r, v := d.reg(), d.imm32()
		if d.err == nil {
			c.Regs[r] = v
		}

	case OpLCONSW:
		r, v := d.reg(), d.imm16()
		if d.err == nil {
			c.Regs[r] = v
		}

	case OpLCONSB:
		r, v := d.reg(), d.imm8()
		if d.err == nil {
			c.Regs[r] = v
		}

	case OpMOV:
		dst, src := d.reg(), d.reg()
		if d.err == nil {
			c.Regs[dst] = c.Regs[src]
		}

	case OpPUSH:
		r := d.reg()
		if d.err == nil {
			err = c.Push(c.Regs[r])
		}

	case OpPOP:
		r := d.reg()
		if d.err != nil {
			break
		}
		var v uint32
		if v, err = c.Pop(); err == nil {
			c.Regs[r] = v
		}

	case OpPOP2:
		r1, r2 := d.reg(), d.reg()
		if d.err != nil {
			break
		}
		if uint64(c.Regs[RegSP])+8 > uint64(len(c.Memory)) {
			err = fmt.Errorf("%w: sp=0x%04X", ErrStackUnderflow, c.Regs[RegSP])
			break
		}
		v1, _ := c.Pop()
		v2, _ := c.Pop()
		c.Regs[r1], c.Regs[r2] = v1, v2

	case OpDUP:
		var v uint32
		if v, err = c.Load(c.Regs[RegSP], 4); err != nil || c.StackDepth() < 4 {
			err = fmt.Errorf("%w: dup on empty stack", ErrStackUnderflow)
			break
		}
		err = c.Push(v)

	case OpCALL:
		target := d.imm16()
		if d.err == nil {
			c.Regs[RegRA] = d.pc
			jump(target)
		}

	case OpRET:
		jump(c.Regs[RegRA])

	case OpSTOR, OpSTORW, OpSTORB:
		addr, r := d.imm16(), d.reg()
		if d.err == nil {
			err = c.Store(addr, accessWidth(op), c.Regs[r])
		}

	case OpSTORP, OpSTORWP, OpSTORBP:
		ra, rv := d.reg(), d.reg()
		if d.err == nil {
			err = c.Store(c.Regs[ra], accessWidth(op), c.Regs[rv])
		}

	case OpLOAD, OpLOADW, OpLOADB:
		r, addr := d.reg(), d.imm16()
		if d.err != nil {
			break
		}
		var v uint32
		if v, err = c.Load(addr, accessWidth(op)); err == nil {
			c.Regs[r] = v
		}

	case OpLOADP, OpLOADWP, OpLOADBP:
		r, ra := d.reg(), d.reg()
		if d.err != nil {
			break
		}
		var v uint32
		if v, err = c.Load(c.Regs[ra], accessWidth(op)); err == nil {
			c.Regs[r] = v
		}

	case OpMEMCPY:
		dst, src, n := d.imm16(), d.imm16(), d.imm16()
		if d.err == nil {
			err = c.memcpy(dst, src, n)
		}

	case OpMEMCPYP:
		rd, rs, rn := d.reg(), d.reg(), d.reg()
		if d.err == nil {
			err = c.memcpy(c.Regs[rd], c.Regs[rs], c.Regs[rn])
		}

	case OpINC:
		r := d.reg()
		if d.err == nil {
			c.Regs[r]++
		}

	case OpDEC:
		r := d.reg()
		if d.err == nil {
			c.Regs[r]--
		}

	case OpFINC:
		r := d.reg()
		if d.err == nil {
			c.Regs[r] = u32(f32(c.Regs[r]) + 1)
		}

	case OpFDEC:
		r := d.reg()
		if d.err == nil {
			c.Regs[r] = u32(f32(c.Regs[r]) - 1)
		}

	case OpADD, OpSUB, OpMUL, OpIMUL, OpDIV, OpIDIV, OpSHL, OpSHR, OpISHR,
		OpMOD, OpIMOD, OpAND, OpOR, OpXOR:
		dst, x, y := d.reg(), d.reg(), d.reg()
		if d.err != nil {
			break
		}
		var v uint32
		if v, err = intALU(op, c.Regs[x], c.Regs[y]); err == nil {
			c.Regs[dst] = v
		} else {
			err = fmt.Errorf("%w at 0x%04X", err, ip)
		}

	case OpFADD, OpFSUB, OpFMUL, OpFDIV:
		dst, x, y := d.reg(), d.reg(), d.reg()
		if d.err == nil {
			c.Regs[dst] = floatALU(op, f32(c.Regs[x]), f32(c.Regs[y]))
		}

	case OpNOT:
		dst, src := d.reg(), d.reg()
		if d.err == nil {
			c.Regs[dst] = ^c.Regs[src]
		}

	case OpU2I, OpI2U:
		// Signed and unsigned share one 32-bit representation.
		d.reg()

	case OpI2F:
		dst, src := d.reg(), d.reg()
		if d.err == nil {
			c.Regs[dst] = u32(float32(int32(c.Regs[src])))
		}

	case OpF2I:
		dst, src := d.reg(), d.reg()
		if d.err == nil {
			c.Regs[dst] = uint32(int32(f32(c.Regs[src])))
		}

	case OpJMP:
		target := d.imm16()
		if d.err == nil {
			jump(target)
		}

	case OpJR:
		r := d.reg()
		if d.err == nil {
			jump(c.Regs[r])
		}

	case OpJZ, OpJNZ:
		r, target := d.reg(), d.imm16()
		if d.err == nil && (c.Regs[r] == 0) == (op == OpJZ) {
			jump(target)
		}

	case OpJE, OpJNE, OpJA, OpJG, OpJAE, OpJGE, OpJB, OpJL, OpJBE, OpJLE:
		x, y, target := d.reg(), d.reg(), d.imm16()
		if d.err == nil && compare(op, c.Regs[x], c.Regs[y]) {
			jump(target)
		}

	case OpPRINT, OpPRINTI, OpPRINTF:
		r, ln := d.reg(), d.imm8()
		if d.err != nil {
			break
		}
		w := c.outputSink()
		switch op {
		case OpPRINT:
			fmt.Fprintf(w, "%d", c.Regs[r])
		case OpPRINTI:
			fmt.Fprintf(w, "%d", int32(c.Regs[r]))
		default:
			fmt.Fprintf(w, "%f", f32(c.Regs[r]))
		}
		if ln != 0 {
			fmt.Fprintln(w)
		}

	case OpPRINTC:
		r := d.reg()
		if d.err == nil {
			c.outputSink().Write([]byte{byte(c.Regs[r])})
		}

	case OpPRINTS:
		addr := d.imm16()
		if d.err != nil {
			break
		}
		var s []byte
		if s, err = c.CString(addr); err == nil {
			c.outputSink().Write(s)
		}

	case OpPRINTLN:
		fmt.Fprintln(c.outputSink())

	case OpREAD, OpREADI, OpREADF:
		r := d.reg()
		if d.err == nil {
			c.scanRegister(op, r)
		}

	case OpREADC:
		r := d.reg()
		if d.err != nil {
			break
		}
		b, rerr := c.inputSource().ReadByte()
		if rerr != nil {
			c.Regs[r] = math.MaxUint32
		} else {
			c.Regs[r] = uint32(b)
		}

	case OpREADS:
		addr, maxLen := d.imm16(), d.imm16()
		if d.err == nil {
			err = c.readString(addr, maxLen)
		}
	}

	if d.err != nil {
		return d.err
	}
	if err != nil {
		return err
	}
	if !jumped {
		c.Regs[RegIP] = d.pc
	}
	c.Steps++
	return nil
}

// Run executes until HALT, an error, or maxInstr instructions (0 means no limit).
func (c *CPU) Run(maxInstr int) (Result, error) {
	for n := 0; maxInstr == 0 || n < maxInstr; n++ {
		if c.Halted {
			return Finished, nil
		}
		if err := c.Step(); err != nil {
			return Faulted, err
		}
	}
	if c.Halted {
		return Finished, nil
	}
	return Paused, nil
}

// CString returns the NUL-terminated byte string starting at addr, without the NUL.
func (c *CPU) CString(addr uint32) ([]byte, error) {
	for end := addr; ; end++ {
		if end >= uint32(len(c.Memory)) {
			return nil, fmt.Errorf("%w: unterminated string at 0x%04X", ErrInvalidAddress, addr)
		}
		if c.Memory[end] == 0 {
			return c.Memory[addr:end], nil
		}
	}
}

func (c *CPU) memcpy(dst, src, n uint32) error {
	if err := c.checkRange(src, n); err != nil {
		return err
	}
	if err := c.checkRange(dst, n); err != nil {
		return err
	}
	copy(c.Memory[dst:dst+n], c.Memory[src:src+n])
	return nil
}

// scanRegister parses one whitespace-delimited value. On a parse failure the
// register keeps its previous value.
func (c *CPU) scanRegister(op byte, r byte) {
	in := c.inputSource()
	switch op {
	case OpREAD:
		var v uint32
		if _, err := fmt.Fscan(in, &v); err == nil {
			c.Regs[r] = v
		}
	case OpREADI:
		var v int32
		if _, err := fmt.Fscan(in, &v); err == nil {
			c.Regs[r] = uint32(v)
		}
	case OpREADF:
		var v float32
		if _, err := fmt.Fscan(in, &v); err == nil {
			c.Regs[r] = u32(v)
		}
	}
}

// readString stores one input line at addr, truncated to maxLen-1 bytes and
// NUL-terminated. maxLen 0 consumes the line and stores nothing.
func (c *CPU) readString(addr, maxLen uint32) error {
	line, err := c.inputSource().ReadString('\n')
	if err != nil && err != io.EOF {
		return err
	}
	if maxLen == 0 {
		return nil
	}
	line = strings.TrimRight(line, "\r\n")
	if uint32(len(line)) > maxLen-1 {
		line = line[:maxLen-1]
	}
	if err := c.checkRange(addr, uint32(len(line))+1); err != nil {
		return err
	}
	copy(c.Memory[addr:], line)
	c.Memory[addr+uint32(len(line))] = 0
	return nil
}

func accessWidth(op byte) int {
	switch op {
	case OpSTORW, OpSTORWP, OpLOADW, OpLOADWP:
		return 2
	case OpSTORB, OpSTORBP, OpLOADB, OpLOADBP:
		return 1
	}
	return 4
}

func intALU(op byte, x, y uint32) (uint32, error) {
	switch op {
	case OpADD:
		return x + y, nil
	case OpSUB:
		return x - y, nil
	case OpMUL:
		return x * y, nil
	case OpIMUL:
		return uint32(int32(x) * int32(y)), nil
	case OpDIV:
		if y == 0 {
			return 0, ErrDivideByZero
		}
		return x / y, nil
	case OpIDIV:
		if y == 0 {
			return 0, ErrDivideByZero
		}
		return uint32(int32(x) / int32(y)), nil
	case OpMOD:
		if y == 0 {
			return 0, ErrDivideByZero
		}
		return x % y, nil
	case OpIMOD:
		if y == 0 {
			return 0, ErrDivideByZero
		}
		return uint32(int32(x) % int32(y)), nil
	case OpSHL:
		return x << y, nil
	case OpSHR:
		return x >> y, nil
	case OpISHR:
		return uint32(int32(x) >> y), nil
	case OpAND:
		return x & y, nil
	case OpOR:
		return x | y, nil
	case OpXOR:
		return x ^ y, nil
	}
	return 0, fmt.Errorf("%w: 0x%02X is not an integer ALU op", ErrUnknownOpcode, op)
}

func floatALU(op byte, x, y float32) uint32 {
	switch op {
	case OpFADD:
		return u32(x + y)
	case OpFSUB:
		return u32(x - y)
	case OpFMUL:
		return u32(x * y)
	}
	return u32(x / y)
}

func compare(op byte, x, y uint32) bool {
	sx, sy := int32(x), int32(y)
	switch op {
	case OpJE:
		return x == y
	case OpJNE:
		return x != y
	case OpJA:
		return x > y
	case OpJAE:
		return x >= y
	case OpJB:
		return x < y
	case OpJBE:
		return x <= y
	case OpJG:
		return sx > sy
	case OpJGE:
		return sx >= sy
	case OpJL:
		return sx < sy
	case OpJLE:
		return sx <= sy
	}
	return false
}
