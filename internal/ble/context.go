package ble

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

// Conn is the control characteristic of a connected unit.
type Conn struct {
	device bluetooth.Device
	char   *bluetooth.DeviceCharacteristic
	log    logrus.FieldLogger

	mu            sync.Mutex
	notifyEnabled bool
}

// Subscribe routes every notification to handler.
func (c *Conn) Subscribe(handler func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.log.Debug("Enabling notifications")
	if err := c.char.EnableNotifications(handler); err != nil {
		return fmt.Errorf("%w: enable notifications: %w", ErrTransport, err)
	}
	c.notifyEnabled = true
	return nil
}

// Unsubscribe stops notifications. It is a no-op when not subscribed.
func (c *Conn) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.notifyEnabled {
		return nil
	}
	c.notifyEnabled = false
	if err := c.char.EnableNotifications(nil); err != nil {
		return fmt.Errorf("%w: disable notifications: %w", ErrTransport, err)
	}
	return nil
}

// Write sends one command. withResponse asks the peer to acknowledge.
func (c *Conn) Write(data []byte, withResponse bool) error {
	var err error
	if withResponse {
		_, err = c.char.Write(data)
	} else {
		_, err = c.char.WriteWithoutResponse(data)
	}
	if err != nil {
		return fmt.Errorf("%w: write: %w", ErrTransport, err)
	}
	return nil
}

// Disconnect closes the link.
func (c *Conn) Disconnect() error {
	if err := c.device.Disconnect(); err != nil {
		return fmt.Errorf("%w: disconnect: %w", ErrTransport, err)
	}
	return nil
}
