package session

import "context"

// Transport is what a session needs from the BLE stack.
type Transport interface {
	// Dial connects to the device at address, discovers the status
	// characteristic and returns a handle to it. onDisconnect is called
	// when the link drops, whoever caused it.
	Dial(ctx context.Context, address string, onDisconnect func()) (Conn, error)

	// RSSI returns the last seen signal strength for address, if any.
	RSSI(address string) (int16, bool)
}

// Conn is a connected device's read/write/notify characteristic.
type Conn interface {
	Subscribe(handler func([]byte)) error
	Unsubscribe() error
	Write(data []byte, withResponse bool) error
	Disconnect() error
}
