package asm

import "testing"

// smallProgram is a counter loop.
const smallProgram = `
    lconsb r0, 10
    lconsb r1, 0
.loop:
    add r1, r1, r0
    dec r0
    jnz r0, .loop
    halt
`

// mediumProgram has several subroutines, labels and a string.
const mediumProgram = `
    jmp .main

.abs:
    lconsb r1, 0
    jge r0, r1, .abs.done
    lcons r1, -1
    imul r0, r0, r1
.abs.done:
    ret

.double:
    add r0, r0, r0
    ret

.triple:
    push r0
    push ra
    call .double
    pop ra
    pop r1
    add r0, r0, r1
    ret

.count_down:
    jz r0, .cd.done
    dec r0
    jmp .count_down
.cd.done:
    ret

.main:
    lcons r0, -7
    call .abs
    push r0

    lconsb r0, 5
    call .triple
    push r0

    lconsb r0, 12
    call .count_down

    pop r1
    pop r2
    add r1, r1, r2
    stor .result, r1
    prints .greeting
    halt

> dword result
> byte[] greeting = "Hello, World!", '\n'
`

// largeProgram is shaped like compiler output: framed functions, loops and
// comparisons materialized through synthetic labels.
const largeProgram = `
    call .main
    printi t0, 1
    halt

; ---- int fib(int n) ----
.fib:
    push r0
    push r1
    push r5
    push ra
    push bp
    mov bp, sp
    lconsb r1, 4
    sub sp, sp, r1
    lconsb r5, 4
    add r5, bp, r5
    lconsb r5, 24
    add r5, bp, r5
    load_p r0, r5
    push r0
    lconsb r0, 2
    pop r1
    jl r1, r0, .loc.1
    lconsb r0, 0
    jmp .loc.2
.loc.1:
    lconsb r0, 1
.loc.2:
    jz r0, .loc.3
    lconsb r5, 24
    add r5, bp, r5
    load_p r0, r5
    mov t0, r0
    mov sp, bp
    pop bp
    pop ra
    pop r5
    pop r1
    pop r0
    ret
.loc.3:
    lconsb r5, 24
    add r5, bp, r5
    load_p r0, r5
    push r0
    lconsb r0, 1
    pop r1
    sub r0, r1, r0
    push r0
    call .fib
    mov r0, t0
    pop t0
    push r0
    lconsb r5, 24
    add r5, bp, r5
    load_p r0, r5
    push r0
    lconsb r0, 2
    pop r1
    sub r0, r1, r0
    push r0
    call .fib
    mov r0, t0
    pop t0
    pop r1
    add r0, r1, r0
    mov t0, r0
    mov sp, bp
    pop bp
    pop ra
    pop r5
    pop r1
    pop r0
    ret

; ---- int sum(int n) ----
.sum:
    push r0
    push r1
    push r5
    push ra
    push bp
    mov bp, sp
    lconsb r1, 8
    sub sp, sp, r1
    lconsb r0, 0
    lconsb r5, 4
    sub r5, bp, r5
    stor_p r5, r0
    lconsb r0, 0
    lconsb r5, 8
    sub r5, bp, r5
    stor_p r5, r0
.loc.4:
    lconsb r5, 8
    sub r5, bp, r5
    load_p r0, r5
    push r0
    lconsb r5, 24
    add r5, bp, r5
    load_p r0, r5
    pop r1
    jl r1, r0, .loc.6
    lconsb r0, 0
    jmp .loc.7
.loc.6:
    lconsb r0, 1
.loc.7:
    jz r0, .loc.5
    lconsb r5, 4
    sub r5, bp, r5
    load_p r0, r5
    push r0
    lconsb r5, 8
    sub r5, bp, r5
    load_p r0, r5
    pop r1
    add r0, r1, r0
    lconsb r5, 4
    sub r5, bp, r5
    stor_p r5, r0
    lconsb r5, 8
    sub r5, bp, r5
    load_p r0, r5
    inc r0
    stor_p r5, r0
    jmp .loc.4
.loc.5:
    lconsb r5, 4
    sub r5, bp, r5
    load_p r0, r5
    mov t0, r0
    mov sp, bp
    pop bp
    pop ra
    pop r5
    pop r1
    pop r0
    ret

; ---- int main() ----
.main:
    push r0
    push r1
    push r5
    push ra
    push bp
    mov bp, sp
    lconsb r0, 10
    push r0
    call .fib
    mov r0, t0
    pop t0
    push r0
    lconsw r0, 1000
    push r0
    call .sum
    mov r0, t0
    pop t0
    pop r1
    add r0, r1, r0
    mov t0, r0
    mov sp, bp
    pop bp
    pop ra
    pop r5
    pop r1
    pop r0
    ret

> byte[] banner = "Benchmark complete"
> word[8] table = 1, 1, 2, 3, 5, 8, 13, 21
`

func BenchmarkAssemble_Small(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _, err := Assemble(smallProgram)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAssemble_Medium(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _, err := Assemble(mediumProgram)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAssemble_Large(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _, err := Assemble(largeProgram)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkHexListing(b *testing.B) {
	code, _, err := Assemble(largeProgram)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = HexListing(code)
	}
}
