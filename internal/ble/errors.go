package ble

import (
	"context"
	"errors"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/vitaminmoo/prana-tool/internal/retry"
	"github.com/vitaminmoo/prana-tool/internal/session"
)

var (
	// ErrDeviceNotFound means the address never showed up in a scan.
	ErrDeviceNotFound = errors.New("ble: device not found")

	// ErrTransport wraps every other radio-level failure.
	ErrTransport = errors.New("ble: transport error")

	// ErrNoCharacteristic means the peer lacks the control characteristic.
	ErrNoCharacteristic = errors.New("ble: control characteristic not found")
)

// Classify maps transport errors to a retry class. BlueZ reports
// contention (another connect in progress, adapter busy) over D-Bus, and
// those clear up after a short wait. Anything else from the link is worth
// one immediate reconnect.
func Classify(err error) retry.Class {
	switch {
	case err == nil:
		return retry.NoRetry
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return retry.NoRetry
	case errors.Is(err, session.ErrSessionClosed):
		return retry.NoRetry
	case isDBusError(err), isTransientError(err):
		return retry.Backoff
	case errors.Is(err, ErrDeviceNotFound), errors.Is(err, ErrNoCharacteristic):
		return retry.NoRetry
	case errors.Is(err, ErrTransport):
		return retry.Immediate
	default:
		return retry.NoRetry
	}
}

func isDBusError(err error) bool {
	var v dbus.Error
	if errors.As(err, &v) {
		return true
	}
	var p *dbus.Error
	return errors.As(err, &p)
}

// isTransientError catches contention errors that arrive as plain strings.
func isTransientError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "in progress") || strings.Contains(msg, "busy")
}
