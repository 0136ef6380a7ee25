package utils

import (
	"os"

	"golang.org/x/term"
)

func Red(s string) string   { return "\x1b[31m" + s + "\x1b[0m" }
func Green(s string) string { return "\x1b[32m" + s + "\x1b[0m" }

// IsTerminal reports whether f is attached to a terminal. Colored output is
// only written when it is.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}
