// Package sessiontest provides an in-memory transport and a simulated unit
// for tests of the session and everything above it.
package sessiontest

import (
	"context"
	"errors"
	"sync"

	"github.com/vitaminmoo/prana-tool/internal/session"
)

// ErrLinkDown is returned by writes on a disconnected Conn.
var ErrLinkDown = errors.New("sessiontest: link down")

// Transport is a fake session.Transport. The zero value dials instantly
// and has no device attached.
type Transport struct {
	mu sync.Mutex

	// Device answers writes when set.
	Device *Device

	// DialErrs are returned by successive dials before they succeed.
	DialErrs []error

	// Gate, when set, holds every Dial until it is closed or the dial
	// context ends. Dialing is signalled once per Dial before waiting.
	Gate    chan struct{}
	Dialing chan struct{}

	SignalStrength int16

	dials int
	conns []*Conn
}

// NewTransport returns a transport wired to d.
func NewTransport(d *Device) *Transport {
	return &Transport{Device: d, SignalStrength: -60}
}

func (t *Transport) Dial(ctx context.Context, address string, onDisconnect func()) (session.Conn, error) {
	t.mu.Lock()
	t.dials++
	gate, dialing := t.Gate, t.Dialing
	var err error
	if len(t.DialErrs) > 0 {
		err, t.DialErrs = t.DialErrs[0], t.DialErrs[1:]
	}
	t.mu.Unlock()

	if dialing != nil {
		dialing <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	c := &Conn{t: t, onDisconnect: onDisconnect}
	t.mu.Lock()
	t.conns = append(t.conns, c)
	t.mu.Unlock()
	return c, nil
}

func (t *Transport) RSSI(string) (int16, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.SignalStrength, true
}

// Dials returns how many times Dial was called.
func (t *Transport) Dials() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

// Conns returns every connection handed out so far.
func (t *Transport) Conns() []*Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Conn(nil), t.conns...)
}

// Last returns the most recent connection, or nil.
func (t *Transport) Last() *Conn {
	conns := t.Conns()
	if len(conns) == 0 {
		return nil
	}
	return conns[len(conns)-1]
}

func (t *Transport) device() *Device {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Device
}

// Write records one characteristic write.
type Write struct {
	Data         []byte
	WithResponse bool
}

// Conn is a fake characteristic handle.
type Conn struct {
	t            *Transport
	onDisconnect func()

	mu           sync.Mutex
	handler      func([]byte)
	writes       []Write
	disconnected bool
	writeErr     error
}

func (c *Conn) Subscribe(handler func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disconnected {
		return ErrLinkDown
	}
	c.handler = handler
	return nil
}

func (c *Conn) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = nil
	return nil
}

func (c *Conn) Write(data []byte, withResponse bool) error {
	c.mu.Lock()
	if c.disconnected {
		c.mu.Unlock()
		return ErrLinkDown
	}
	if c.writeErr != nil {
		err := c.writeErr
		c.mu.Unlock()
		return err
	}
	c.writes = append(c.writes, Write{Data: append([]byte(nil), data...), WithResponse: withResponse})
	c.mu.Unlock()

	if d := c.t.device(); d != nil {
		for _, reply := range d.Handle(data) {
			c.Notify(reply)
		}
	}
	return nil
}

func (c *Conn) Disconnect() error {
	c.mu.Lock()
	already := c.disconnected
	c.disconnected = true
	c.handler = nil
	c.mu.Unlock()
	if !already && c.onDisconnect != nil {
		c.onDisconnect()
	}
	return nil
}

// Notify delivers data to the subscribed handler, if any.
func (c *Conn) Notify(data []byte) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(data)
	}
}

// Drop simulates the peer going away.
func (c *Conn) Drop() {
	c.mu.Lock()
	c.disconnected = true
	c.handler = nil
	c.mu.Unlock()
	if c.onDisconnect != nil {
		c.onDisconnect()
	}
}

// FailWrites makes every following write return err.
func (c *Conn) FailWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// Writes returns the recorded writes.
func (c *Conn) Writes() []Write {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Write(nil), c.writes...)
}

// Subscribed reports whether a handler is installed.
func (c *Conn) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler != nil
}

// Closed reports whether Disconnect or Drop was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}
