package compiler

import (
	"errors"
	"reflect"
	"testing"
)

func TestScopeOffsets(t *testing.T) {
	s := NewScope(nil)

	a := &VarSymbol{Name: "a", Type: "int", Kind: Argument}
	b := &VarSymbol{Name: "b", Type: "int", Kind: Argument}
	x := &VarSymbol{Name: "x", Type: "int", Kind: Local}
	y := &VarSymbol{Name: "y", Type: "int", Kind: Local}
	z := &VarSymbol{Name: "z", Type: "int", Kind: Local}

	for _, sym := range []*VarSymbol{a, x, b, y, z} {
		if err := s.Declare(sym); err != nil {
			t.Fatalf("Declare(%s): %v", sym.Name, err)
		}
	}

	tests := []struct {
		sym  *VarSymbol
		want int
	}{
		{a, 4}, {b, 8}, {x, 4}, {y, 8}, {z, 12},
	}
	for _, tt := range tests {
		if tt.sym.Offset != tt.want {
			t.Errorf("%s offset = %d, want %d", tt.sym.Name, tt.sym.Offset, tt.want)
		}
	}
	if got := s.ArgsSize(); got != 8 {
		t.Errorf("ArgsSize() = %d, want 8", got)
	}
	if got := s.LocalsSize(); got != 12 {
		t.Errorf("LocalsSize() = %d, want 12", got)
	}
	if got, want := s.Names(), []string{"a", "x", "b", "y", "z"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestScopeDuplicate(t *testing.T) {
	s := NewScope(nil)
	if err := s.Declare(&VarSymbol{Name: "n", Type: "int"}); err != nil {
		t.Fatal(err)
	}
	err := s.Declare(&VarSymbol{Name: "n", Type: "int", Kind: Argument})
	if !errors.Is(err, ErrDuplicateSymbol) {
		t.Errorf("second Declare(n) = %v, want ErrDuplicateSymbol", err)
	}
	// A failed declaration must not move the accumulators.
	if s.LocalsSize() != 4 || s.ArgsSize() != 0 {
		t.Errorf("sizes after failed declare = %d/%d, want 4/0", s.LocalsSize(), s.ArgsSize())
	}
	if err := s.Declare(&FuncSymbol{Name: "n"}); !errors.Is(err, ErrDuplicateSymbol) {
		t.Errorf("Declare(func n) = %v, want ErrDuplicateSymbol", err)
	}
}

func TestScopeUnknownType(t *testing.T) {
	s := NewScope(nil)
	if err := s.Declare(&VarSymbol{Name: "c", Type: "char"}); err == nil {
		t.Error("declaring a variable of unknown type should fail")
	}
}

func TestScopeLookup(t *testing.T) {
	global := NewScope(nil)
	fn := &FuncSymbol{Name: "f", ReturnType: "int"}
	if err := global.Declare(fn); err != nil {
		t.Fatal(err)
	}

	inner := NewScope(global)
	if inner.Parent() != global {
		t.Error("Parent() does not return the enclosing scope")
	}

	// Shadowing an enclosing name is allowed.
	shadow := &VarSymbol{Name: "f", Type: "int"}
	if err := inner.Declare(shadow); err != nil {
		t.Fatalf("shadowing declaration failed: %v", err)
	}
	local := &VarSymbol{Name: "v", Type: "int"}
	if err := inner.Declare(local); err != nil {
		t.Fatal(err)
	}

	if got := inner.Lookup("f"); got != shadow {
		t.Errorf("inner.Lookup(f) = %v, want the shadowing variable", got)
	}
	if got := global.Lookup("f"); got != fn {
		t.Errorf("global.Lookup(f) = %v, want the function", got)
	}
	if got := global.Lookup("v"); got != nil {
		t.Errorf("global.Lookup(v) = %v, want nil", got)
	}
	if got := inner.LookupLocal("v"); got != local {
		t.Errorf("inner.LookupLocal(v) = %v", got)
	}

	other := NewScope(global)
	if got := other.Lookup("f"); got != fn {
		t.Errorf("sibling scope Lookup(f) = %v, want the function", got)
	}
	if got := other.LookupLocal("f"); got != nil {
		t.Errorf("sibling scope LookupLocal(f) = %v, want nil", got)
	}
}

func TestTypeSize(t *testing.T) {
	if TypeSize("int") != 4 {
		t.Errorf("TypeSize(int) = %d, want 4", TypeSize("int"))
	}
	if TypeSize("float") != 0 {
		t.Errorf("TypeSize(float) = %d, want 0", TypeSize("float"))
	}
}
