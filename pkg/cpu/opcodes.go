package cpu

import (
	"fmt"
	"strings"
)

const (
	OpNOP     byte = 0x00
	OpHALT    byte = 0x01
	OpINT     byte = 0x02
	OpLCONS   byte = 0x03
	OpLCONSW  byte = 0x04
	OpLCONSB  byte = 0x05
	OpMOV     byte = 0x06
	OpPUSH    byte = 0x07
	OpPOP     byte = 0x08
	OpPOP2    byte = 0x09
	OpDUP     byte = 0x0A
	OpCALL    byte = 0x0B
	OpRET     byte = 0x0C
	OpSTOR    byte = 0x0D
	OpSTORP   byte = 0x0E
	OpSTORW   byte = 0x0F
	OpSTORWP  byte = 0x10
	OpSTORB   byte = 0x11
	OpSTORBP  byte = 0x12
	OpLOAD    byte = 0x13
	OpLOADP   byte = 0x14
	OpLOADW   byte = 0x15
	OpLOADWP  byte = 0x16
	OpLOADB   byte = 0x17
	OpLOADBP  byte = 0x18
	OpMEMCPY  byte = 0x19
	OpMEMCPYP byte = 0x1A
	OpINC     byte = 0x1B
	OpFINC    byte = 0x1C
	OpDEC     byte = 0x1D
	OpFDEC    byte = 0x1E
	OpADD     byte = 0x1F
	OpFADD    byte = 0x20
	OpSUB     byte = 0x21
	OpFSUB    byte = 0x22
	OpMUL     byte = 0x23
	OpIMUL    byte = 0x24
	OpFMUL    byte = 0x25
	OpDIV     byte = 0x26
	OpIDIV    byte = 0x27
	OpFDIV    byte = 0x28
	OpSHL     byte = 0x29
	OpSHR     byte = 0x2A
	OpISHR    byte = 0x2B
	OpMOD     byte = 0x2C
	OpIMOD    byte = 0x2D
	OpAND     byte = 0x2E
	OpOR      byte = 0x2F
	OpXOR     byte = 0x30
	OpNOT     byte = 0x31
	OpU2I     byte = 0x32
	OpI2U     byte = 0x33
	OpI2F     byte = 0x34
	OpF2I     byte = 0x35
	OpJMP     byte = 0x36
	OpJR      byte = 0x37
	OpJZ      byte = 0x38
	OpJNZ     byte = 0x39
	OpJE      byte = 0x3A
	OpJNE     byte = 0x3B
	OpJA      byte = 0x3C
	OpJG      byte = 0x3D
	OpJAE     byte = 0x3E
	OpJGE     byte = 0x3F
	OpJB      byte = 0x40
	OpJL      byte = 0x41
	OpJBE     byte = 0x42
	OpJLE     byte = 0x43
	OpPRINT   byte = 0x44
	OpPRINTI  byte = 0x45
	OpPRINTF  byte = 0x46
	OpPRINTC  byte = 0x47
	OpPRINTS  byte = 0x48
	OpPRINTLN byte = 0x49
	OpREAD    byte = 0x4A
	OpREADI   byte = 0x4B
	OpREADF   byte = 0x4C
	OpREADC   byte = 0x4D
	OpREADS   byte = 0x4E

	// NumOpcodes is one past the highest valid opcode.
	NumOpcodes = 0x4F
)

// opcodeNames holds the assembler mnemonic of every opcode, indexed by value.
var opcodeNames = [NumOpcodes]string{
	OpNOP:     "nop",
	OpHALT:    "halt",
	OpINT:     "int",
	OpLCONS:   "lcons",
	OpLCONSW:  "lconsw",
	OpLCONSB:  "lconsb",
	OpMOV:     "mov",
	OpPUSH:    "push",
	OpPOP:     "pop",
	OpPOP2:    "pop2",
	OpDUP:     "dup",
	OpCALL:    "call",
	OpRET:     "ret",
	OpSTOR:    "stor",
	OpSTORP:   "stor_p",
	OpSTORW:   "storw",
	OpSTORWP:  "storw_p",
	OpSTORB:   "storb",
	OpSTORBP:  "storb_p",
	OpLOAD:    "load",
	OpLOADP:   "load_p",
	OpLOADW:   "loadw",
	OpLOADWP:  "loadw_p",
	OpLOADB:   "loadb",
	OpLOADBP:  "loadb_p",
	OpMEMCPY:  "memcpy",
	OpMEMCPYP: "memcpy_p",
	OpINC:     "inc",
	OpFINC:    "finc",
	OpDEC:     "dec",
	OpFDEC:    "fdec",
	OpADD:     "add",
	OpFADD:    "fadd",
	OpSUB:     "sub",
	OpFSUB:    "fsub",
	OpMUL:     "mul",
	OpIMUL:    "imul",
	OpFMUL:    "fmul",
	OpDIV:     "div",
	OpIDIV:    "idiv",
	OpFDIV:    "fdiv",
	OpSHL:     "shl",
	OpSHR:     "shr",
	OpISHR:    "ishr",
	OpMOD:     "mod",
	OpIMOD:    "imod",
	OpAND:     "and",
	OpOR:      "or",
	OpXOR:     "xor",
	OpNOT:     "not",
	OpU2I:     "u2i",
	OpI2U:     "i2u",
	OpI2F:     "i2f",
	OpF2I:     "f2i",
	OpJMP:     "jmp",
	OpJR:      "jr",
	OpJZ:      "jz",
	OpJNZ:     "jnz",
	OpJE:      "je",
	OpJNE:     "jne",
	OpJA:      "ja",
	OpJG:      "jg",
	OpJAE:     "jae",
	OpJGE:     "jge",
	OpJB:      "jb",
	OpJL:      "jl",
	OpJBE:     "jbe",
	OpJLE:     "jle",
	OpPRINT:   "print",
	OpPRINTI:  "printi",
	OpPRINTF:  "printf",
	OpPRINTC:  "printc",
	OpPRINTS:  "prints",
	OpPRINTLN: "println",
	OpREAD:    "read",
	OpREADI:   "readi",
	OpREADF:   "readf",
	OpREADC:   "readc",
	OpREADS:   "reads",
}

// OpcodeName returns the lower-case mnemonic for op.
func OpcodeName(op byte) string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return fmt.Sprintf("op(0x%02X)", op)
}

// Register indices. r0-r5 and t0-t9 are general purpose; ip, bp, sp and ra
// are used implicitly by fetch, the calling convention and the stack ops.
const (
	RegR0 byte = iota
	RegR1
	RegR2
	RegR3
	RegR4
	RegR5
	RegT0
	RegT1
	RegT2
	RegT3
	RegT4
	RegT5
	RegT6
	RegT7
	RegT8
	RegT9
	RegIP
	RegBP
	RegSP
	RegRA

	NumRegisters = 20
)

var registerNames = [NumRegisters]string{
	"r0", "r1", "r2", "r3", "r4", "r5",
	"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8", "t9",
	"ip", "bp", "sp", "ra",
}

// RegisterName returns the assembler name of register idx.
func RegisterName(idx byte) string {
	if int(idx) < len(registerNames) {
		return registerNames[idx]
	}
	return fmt.Sprintf("reg(%d)", idx)
}

// RegisterIndex looks a register up by name, ignoring case.
func RegisterIndex(name string) (byte, bool) {
	name = strings.ToLower(name)
	for i, n := range registerNames {
		if n == name {
			return byte(i), true
		}
	}
	return 0, false
}
