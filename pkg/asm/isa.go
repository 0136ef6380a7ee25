package asm

import (
	"rvm/pkg/cpu"
	"strings"
)

// OperandKind classifies one operand slot of an instruction.
type OperandKind int

const (
	Register OperandKind = iota
	Immediate
	Address
)

// Operand describes one encoded operand: its kind and width in bytes.
type Operand struct {
	Kind  OperandKind
	Width int
}

var (
	Reg   = Operand{Kind: Register, Width: 1}
	Imm8  = Operand{Kind: Immediate, Width: 1}
	Imm16 = Operand{Kind: Immediate, Width: 2}
	Imm32 = Operand{Kind: Immediate, Width: 4}
	Addr  = Operand{Kind: Address, Width: 2}
)

// Opcode is one entry of an instruction set.
type Opcode struct {
	Mnemonic string
	Code     byte
	Shape    []Operand
}

// Size is the encoded length of the instruction in bytes.
func (o *Opcode) Size() int {
	n := 1
	for _, op := range o.Shape {
		n += op.Width
	}
	return n
}

// InstructionSet maps mnemonics and register names to their encodings.
// Both lookups are case-insensitive.
type InstructionSet struct {
	ops  map[string]*Opcode
	regs map[string]byte
}

// EmptyInstructionSet returns a set with no opcodes or registers.
func EmptyInstructionSet() *InstructionSet {
	return &InstructionSet{
		ops:  make(map[string]*Opcode),
		regs: make(map[string]byte),
	}
}

// Define adds or replaces an opcode.
func (s *InstructionSet) Define(mnemonic string, code byte, shape ...Operand) {
	key := strings.ToLower(mnemonic)
	s.ops[key] = &Opcode{Mnemonic: key, Code: code, Shape: shape}
}

// DefineRegister adds or replaces a register name.
func (s *InstructionSet) DefineRegister(name string, index byte) {
	s.regs[strings.ToLower(name)] = index
}

func (s *InstructionSet) Lookup(mnemonic string) (*Opcode, bool) {
	op, ok := s.ops[strings.ToLower(mnemonic)]
	return op, ok
}

func (s *InstructionSet) Register(name string) (byte, bool) {
	idx, ok := s.regs[strings.ToLower(name)]
	return idx, ok
}

// Filler is the byte used to pad data to an alignment boundary: the set's
// halt opcode, or the VM's HALT when the set does not define one.
func (s *InstructionSet) Filler() byte {
	if op, ok := s.Lookup("halt"); ok {
		return op.Code
	}
	return cpu.OpHALT
}

var zeroOperandOps = []byte{
	cpu.OpNOP, cpu.OpHALT, cpu.OpDUP, cpu.OpRET, cpu.OpPRINTLN,
}

var oneRegisterOps = []byte{
	cpu.OpPUSH, cpu.OpPOP, cpu.OpINC, cpu.OpFINC, cpu.OpDEC, cpu.OpFDEC,
	cpu.OpU2I, cpu.OpI2U, cpu.OpJR, cpu.OpPRINTC,
	cpu.OpREAD, cpu.OpREADI, cpu.OpREADF, cpu.OpREADC,
}

var twoRegisterOps = []byte{
	cpu.OpMOV, cpu.OpPOP2,
	cpu.OpSTORP, cpu.OpSTORWP, cpu.OpSTORBP,
	cpu.OpLOADP, cpu.OpLOADWP, cpu.OpLOADBP,
	cpu.OpNOT, cpu.OpI2F, cpu.OpF2I,
}

var threeRegisterOps = []byte{
	cpu.OpMEMCPYP,
	cpu.OpADD, cpu.OpFADD, cpu.OpSUB, cpu.OpFSUB,
	cpu.OpMUL, cpu.OpIMUL, cpu.OpFMUL, cpu.OpDIV, cpu.OpIDIV, cpu.OpFDIV,
	cpu.OpSHL, cpu.OpSHR, cpu.OpISHR, cpu.OpMOD, cpu.OpIMOD,
	cpu.OpAND, cpu.OpOR, cpu.OpXOR,
}

var addressOnlyOps = []byte{
	cpu.OpCALL, cpu.OpJMP, cpu.OpPRINTS,
}

var registerAddressOps = []byte{
	cpu.OpLOAD, cpu.OpLOADW, cpu.OpLOADB, cpu.OpJZ, cpu.OpJNZ,
}

var addressRegisterOps = []byte{
	cpu.OpSTOR, cpu.OpSTORW, cpu.OpSTORB,
}

var compareJumpOps = []byte{
	cpu.OpJE, cpu.OpJNE, cpu.OpJA, cpu.OpJG, cpu.OpJAE,
	cpu.OpJGE, cpu.OpJB, cpu.OpJL, cpu.OpJBE, cpu.OpJLE,
}

var registerFlagOps = []byte{
	cpu.OpPRINT, cpu.OpPRINTI, cpu.OpPRINTF,
}

// NewInstructionSet returns the VM's instruction set with all twenty registers.
func NewInstructionSet() *InstructionSet {
	s := EmptyInstructionSet()

	group := func(codes []byte, shape ...Operand) {
		for _, c := range codes {
			s.Define(cpu.OpcodeName(c), c, shape...)
		}
	}
	group(zeroOperandOps)
	group(oneRegisterOps, Reg)
	group(twoRegisterOps, Reg, Reg)
	group(threeRegisterOps, Reg, Reg, Reg)
	group(addressOnlyOps, Addr)
	group(registerAddressOps, Reg, Addr)
	group(addressRegisterOps, Addr, Reg)
	group(compareJumpOps, Reg, Reg, Addr)
	group(registerFlagOps, Reg, Imm8)

	s.Define("int", cpu.OpINT, Imm8)
	s.Define("lcons", cpu.OpLCONS, Reg, Imm32)
	s.Define("lconsw", cpu.OpLCONSW, Reg, Imm16)
	s.Define("lconsb", cpu.OpLCONSB, Reg, Imm8)
	s.Define("memcpy", cpu.OpMEMCPY, Addr, Addr, Imm16)
	s.Define("reads", cpu.OpREADS, Addr, Imm16)

	for i := byte(0); i < cpu.NumRegisters; i++ {
		s.DefineRegister(cpu.RegisterName(i), i)
	}
	return s
}
