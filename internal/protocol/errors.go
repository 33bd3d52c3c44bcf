package protocol

import "errors"

var (
	// ErrNotStatusFrame is returned for buffers that don't start with the
	// status prefix (device details replies, stray notifications).
	ErrNotStatusFrame = errors.New("protocol: not a status frame")

	// ErrMalformedFrame is returned for status frames too short to decode.
	ErrMalformedFrame = errors.New("protocol: malformed status frame")
)
