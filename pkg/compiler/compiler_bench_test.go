package compiler

import (
	"io"
	"testing"

	"rvm/pkg/cpu"
)

// simpleSource is a minimal program used for benchmarking the fast path.
const simpleSource = `
int add(int a, int b) {
	return a + b;
}

int main() {
	int x = add(3, 4);
	return x;
}
`

// complexSource exercises loops, comparisons, eager logic and recursion.
const complexSource = `
int abs_val(int n) {
	if (n < 0) {
		return -n;
	}
	return n;
}

int gcd(int a, int b) {
	while (b != 0) {
		int t = b;
		b = a % b;
		a = t;
	}
	return a;
}

int fib(int n) {
	if (n < 2) {
		return n;
	}
	return fib(n - 1) + fib(n - 2);
}

int count_bits(int v) {
	int c = 0;
	while (v != 0) {
		c = c + (v & 1);
		v = v >> 1;
		if (c > 31 || v < 0) {
			break;
		}
	}
	return c;
}

int main() {
	int total = 0;
	int i = 0;
	while (i < 20) {
		total = total + gcd(abs_val(0 - i * 6), 48) + count_bits(i ^ 0x55);
		++i;
	}
	return total + fib(12);
}
`

func BenchmarkLex(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Lex(complexSource); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkParse(b *testing.B) {
	tokens, err := Lex(complexSource)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Parse(tokens, complexSource); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCompile_Simple(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Compile(simpleSource); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCompile_Complex(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Compile(complexSource); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRun_Complex(b *testing.B) {
	res, err := Compile(complexSource)
	if err != nil {
		b.Fatal(err)
	}
	vm := cpu.NewCPU(res.Code, 0)
	vm.Output = io.Discard
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		vm.Reset()
		if _, err := vm.Run(0); err != nil {
			b.Fatal(err)
		}
	}
}
