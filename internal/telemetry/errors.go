package telemetry

import "errors"

var (
	// ErrDisabled is returned by Connect when telemetry is turned off.
	ErrDisabled = errors.New("influxdb telemetry disabled")

	// ErrConnectionFailed wraps ping failures during Connect.
	ErrConnectionFailed = errors.New("influxdb connection failed")
)
