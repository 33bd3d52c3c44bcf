package ble

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/vitaminmoo/prana-tool/internal/retry"
	"github.com/vitaminmoo/prana-tool/internal/session"
)

func TestClassify(t *testing.T) {
	inProgress := dbus.Error{Name: "org.bluez.Error.InProgress", Body: []any{"Operation already in progress"}}
	notReady := &dbus.Error{Name: "org.bluez.Error.NotReady"}

	tests := []struct {
		name string
		err  error
		want retry.Class
	}{
		{"nil", nil, retry.NoRetry},
		{"dbus value", fmt.Errorf("%w: connect: %w", ErrTransport, inProgress), retry.Backoff},
		{"dbus pointer", fmt.Errorf("connect: %w", notReady), retry.Backoff},
		{"busy string", errors.New("adapter busy"), retry.Backoff},
		{"in progress string", errors.New("Operation In Progress"), retry.Backoff},
		{"not found", fmt.Errorf("%w: AA:BB", ErrDeviceNotFound), retry.NoRetry},
		{"missing characteristic", ErrNoCharacteristic, retry.NoRetry},
		{"transport", fmt.Errorf("%w: write: %w", ErrTransport, errors.New("broken pipe")), retry.Immediate},
		{"canceled", fmt.Errorf("dial: %w", context.Canceled), retry.NoRetry},
		{"session closed", session.ErrSessionClosed, retry.NoRetry},
		{"unknown", errors.New("something else"), retry.NoRetry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := normalize(" 00:a0:50:aa:bb:cc "); got != "00:A0:50:AA:BB:CC" {
		t.Errorf("normalize() = %q", got)
	}
}
