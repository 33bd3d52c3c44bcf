// Package util has small formatting helpers shared by the CLI and logs.
package util

import (
	"fmt"
	"io"
	"strings"
)

// IsTextData reports whether data is printable ASCII (tabs and newlines
// allowed). Empty input is not text.
func IsTextData(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	for _, b := range data {
		if b < 32 && b != '\t' && b != '\n' && b != '\r' || b > 126 {
			return false
		}
	}
	return true
}

// HexDump formats data as offset, 16 hex bytes and an ASCII column per line.
func HexDump(data []byte) string {
	var sb strings.Builder
	WriteHexDump(&sb, data)
	return sb.String()
}

// WriteHexDump writes the HexDump form of data to w.
func WriteHexDump(w io.Writer, data []byte) {
	for i := 0; i < len(data); i += 16 {
		fmt.Fprintf(w, "%04x  ", i)

		for j := 0; j < 16; j++ {
			if i+j < len(data) {
				fmt.Fprintf(w, "%02x ", data[i+j])
			} else {
				io.WriteString(w, "   ")
			}
			if j == 7 {
				io.WriteString(w, " ")
			}
		}

		io.WriteString(w, " |")
		for j := 0; j < 16 && i+j < len(data); j++ {
			b := data[i+j]
			if b >= 32 && b < 127 {
				fmt.Fprintf(w, "%c", b)
			} else {
				io.WriteString(w, ".")
			}
		}
		io.WriteString(w, "|\n")
	}
}
