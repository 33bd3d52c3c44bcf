// Package prototest builds status frames for tests.
package prototest

import "encoding/binary"

// Frame is a mutable status frame with the prefix already set.
type Frame []byte

// NewFrame returns a zeroed frame of the given length (at least 2).
func NewFrame(length int) Frame {
	if length < 2 {
		length = 2
	}
	f := make(Frame, length)
	f[0], f[1] = 0xBE, 0xEF
	return f
}

// Default returns a full-size frame describing a running unit at speed 3
// with both fans on, brightness 3 and a sensor board fitted.
func Default() Frame {
	return NewFrame(80).
		Set(10, 1).   // on
		Set(12, 4).   // brightness 3
		Set(28, 1).   // input fan
		Set(30, 30).  // speed in
		Set(32, 1).   // output fan
		Set(34, 30).  // speed out
		Set(60, 178). // humidity 50
		Set(78, 240)  // pressure 752
}

// Set writes a single byte and returns the frame for chaining.
func (f Frame) Set(off int, v byte) Frame {
	f[off] = v
	return f
}

// Set16 writes a big-endian 16-bit value.
func (f Frame) Set16(off int, v uint16) Frame {
	binary.BigEndian.PutUint16(f[off:off+2], v)
	return f
}

// Bytes returns a copy of the frame.
func (f Frame) Bytes() []byte {
	out := make([]byte, len(f))
	copy(out, f)
	return out
}
