package api

import "errors"

var (
	// ErrValueRange rejects out-of-range arguments before any I/O.
	ErrValueRange = errors.New("value out of range")

	// ErrNoReply means the device did not answer a read in time.
	ErrNoReply = errors.New("no reply from device")
)
