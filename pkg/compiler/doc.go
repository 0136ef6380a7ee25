// Package compiler provides the Reduced C front end, scope resolver and code
// generator that targets the rvm assembly language.
//
// Pipeline: source → Lex → Parse → Resolve → Generate → assembly text → asm.Assemble
package compiler
