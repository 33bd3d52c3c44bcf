package session

import "errors"

// ErrSessionClosed is returned by every operation after Stop.
var ErrSessionClosed = errors.New("session: closed")
