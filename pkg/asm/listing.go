package asm

import (
	"fmt"
	"strings"
)

// HexListing renders code as "0xNN, 0xNN, ...".
func HexListing(code []byte) string {
	var sb strings.Builder
	sb.Grow(len(code) * 6)
	for i, b := range code {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "0x%02X", b)
	}
	return sb.String()
}
