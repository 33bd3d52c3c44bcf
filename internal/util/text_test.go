package util

import "testing"

func TestHexDump(t *testing.T) {
	got := HexDump([]byte{0xBE, 0xEF, 0x04, 0x0A, 'h', 'i'})
	want := "0000  be ef 04 0a 68 69                                 |....hi|\n"
	if got != want {
		t.Errorf("HexDump() =\n%q\nwant\n%q", got, want)
	}

	if HexDump(nil) != "" {
		t.Error("HexDump(nil) should be empty")
	}

	long := make([]byte, 17)
	lines := 0
	for _, c := range HexDump(long) {
		if c == '\n' {
			lines++
		}
	}
	if lines != 2 {
		t.Errorf("17 bytes produced %d lines, want 2", lines)
	}
}

func TestIsTextData(t *testing.T) {
	tests := []struct {
		in   []byte
		want bool
	}{
		{[]byte("PRANA-150\r\n"), true},
		{[]byte("fw\t1.2"), true},
		{[]byte{0xBE, 0xEF}, false},
		{[]byte{'a', 0x00}, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsTextData(tt.in); got != tt.want {
			t.Errorf("IsTextData(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
