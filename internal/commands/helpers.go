package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/vitaminmoo/prana-tool/internal/util"
)

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintPayload prints text payloads as text and anything else as a hex
// dump.
func PrintPayload(w io.Writer, data []byte) {
	if util.IsTextData(data) {
		fmt.Fprintln(w, strings.TrimRight(string(data), "\r\n"))
		return
	}
	util.WriteHexDump(w, data)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func field(w io.Writer, label string, format string, args ...any) {
	fmt.Fprintf(w, "%-16s %s\n", label+":", fmt.Sprintf(format, args...))
}
