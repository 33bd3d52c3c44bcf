package ble

const (
	// ServiceUUID is the unit's vendor service
	ServiceUUID = "0000baba-0000-1000-8000-00805f9b34fb"

	// ControlCharUUID carries commands (write) and status frames (notify)
	ControlCharUUID = "0000cccc-0000-1000-8000-00805f9b34fb"
)
