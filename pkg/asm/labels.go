package asm

import "fmt"

// MaxAddress is the highest address a 2-byte label reference can encode.
const MaxAddress = 0xFFFF

type fixup struct {
	pos    int
	lineNo int
}

// LabelTable records label addresses and the buffer positions waiting on them.
// A table belongs to one assembly job.
type LabelTable struct {
	addrs   map[string]uint16
	defined map[string]int
	fixups  map[string][]fixup
	order   []string
}

func NewLabelTable() *LabelTable {
	return &LabelTable{
		addrs:   make(map[string]uint16),
		defined: make(map[string]int),
		fixups:  make(map[string][]fixup),
	}
}

// Define binds name to addr. A name may be bound once.
func (t *LabelTable) Define(name string, addr int, lineNo int) error {
	if prev, exists := t.defined[name]; exists {
		return fmt.Errorf("%w: '%s' on line %d (first defined on line %d)", ErrDuplicateLabel, name, lineNo, prev)
	}
	if addr > MaxAddress {
		return fmt.Errorf("%w: label '%s' on line %d at 0x%X", ErrProgramTooLarge, name, lineNo, addr)
	}
	t.addrs[name] = uint16(addr)
	t.defined[name] = lineNo
	return nil
}

// Reference records that the two bytes at pos must hold name's address.
func (t *LabelTable) Reference(name string, pos int, lineNo int) {
	if _, seen := t.fixups[name]; !seen {
		t.order = append(t.order, name)
	}
	t.fixups[name] = append(t.fixups[name], fixup{pos: pos, lineNo: lineNo})
}

// Lookup returns the address of a defined label.
func (t *LabelTable) Lookup(name string) (uint16, bool) {
	addr, ok := t.addrs[name]
	return addr, ok
}

// Resolve backpatches every recorded fixup in buf, little-endian.
// Labels are visited in order of first reference.
func (t *LabelTable) Resolve(buf []byte) error {
	for _, name := range t.order {
		addr, ok := t.addrs[name]
		if !ok {
			first := t.fixups[name][0]
			return fmt.Errorf("%w: '%s' referenced on line %d", ErrUndefinedLabel, name, first.lineNo)
		}
		for _, f := range t.fixups[name] {
			buf[f.pos] = byte(addr)
			buf[f.pos+1] = byte(addr >> 8)
		}
	}
	return nil
}

// Addresses returns a copy of the defined labels.
func (t *LabelTable) Addresses() map[string]uint16 {
	out := make(map[string]uint16, len(t.addrs))
	for k, v := range t.addrs {
		out[k] = v
	}
	return out
}
