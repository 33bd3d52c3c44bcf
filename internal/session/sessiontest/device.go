package sessiontest

import (
	"bytes"
	"sync"

	"github.com/vitaminmoo/prana-tool/internal/protocol"
	"github.com/vitaminmoo/prana-tool/internal/protocol/prototest"
)

// Device simulates a unit's reaction to commands. Every ReadState is
// answered with a status frame unless Silent is set.
type Device struct {
	mu sync.Mutex

	On          bool
	SpeedLocked int
	SpeedIn     int
	SpeedOut    int
	FlowsLocked bool
	InputFan    bool
	OutputFan   bool
	Brightness  int
	Heating     bool
	Winter      bool
	Auto        bool
	Night       bool
	Silent      bool

	// Details answers ReadDeviceDetails; nil sends a text record.
	Details []byte

	// Commands logs every non-read command received, in order.
	Commands []protocol.Command
}

// NewDevice returns a unit that is off at speed 3 with both fans enabled.
func NewDevice() *Device {
	return &Device{
		SpeedLocked: 3,
		SpeedIn:     3,
		SpeedOut:    3,
		FlowsLocked: true,
		InputFan:    true,
		OutputFan:   true,
		Brightness:  3,
	}
}

// Update runs fn with the device locked.
func (d *Device) Update(fn func(*Device)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d)
}

// Sent returns a copy of the command log.
func (d *Device) Sent() []protocol.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]protocol.Command(nil), d.Commands...)
}

// Count returns how many times cmd was received.
func (d *Device) Count(cmd protocol.Command) int {
	n := 0
	for _, c := range d.Sent() {
		if c == cmd {
			n++
		}
	}
	return n
}

// Handle applies one written payload and returns the notifications the
// unit would send back.
func (d *Device) Handle(data []byte) [][]byte {
	cmd, ok := lookup(data)
	if !ok {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if cmd == protocol.ReadState {
		if d.Silent {
			return nil
		}
		return [][]byte{d.frameLocked()}
	}
	if cmd == protocol.ReadDeviceDetails {
		if d.Details != nil {
			return [][]byte{append([]byte(nil), d.Details...)}
		}
		return [][]byte{[]byte("PRANA-150 fw 1.0\r\n")}
	}

	d.Commands = append(d.Commands, cmd)
	switch cmd {
	case protocol.TurnOn:
		d.On = true
	case protocol.TurnOff:
		d.On = false
	case protocol.SpeedUp:
		d.SpeedLocked = clamp(d.SpeedLocked + 1)
		d.SpeedIn = clamp(d.SpeedIn + 1)
		d.SpeedOut = clamp(d.SpeedOut + 1)
	case protocol.SpeedDown:
		d.SpeedLocked = clamp(d.SpeedLocked - 1)
		d.SpeedIn = clamp(d.SpeedIn - 1)
		d.SpeedOut = clamp(d.SpeedOut - 1)
	case protocol.SpeedInUp:
		d.SpeedIn = clamp(d.SpeedIn + 1)
	case protocol.SpeedInDown:
		d.SpeedIn = clamp(d.SpeedIn - 1)
	case protocol.SpeedOutUp:
		d.SpeedOut = clamp(d.SpeedOut + 1)
	case protocol.SpeedOutDown:
		d.SpeedOut = clamp(d.SpeedOut - 1)
	case protocol.ToggleFlowLock:
		d.FlowsLocked = !d.FlowsLocked
	case protocol.ToggleHeating:
		d.Heating = !d.Heating
	case protocol.ToggleWinterMode:
		d.Winter = !d.Winter
	case protocol.ToggleAutoMode:
		d.Auto = !d.Auto
	case protocol.ChangeBrightness:
		d.Brightness = (d.Brightness + 1) % (protocol.MaxBrightness + 1)
	case protocol.NightMode:
		d.Night = !d.Night
	case protocol.HighSpeed:
		d.SpeedLocked, d.SpeedIn, d.SpeedOut = 10, 10, 10
	case protocol.ToggleAirIn:
		d.InputFan = !d.InputFan
	case protocol.ToggleAirOut:
		d.OutputFan = !d.OutputFan
	}
	return nil
}

// Frame encodes the current state as a status notification.
func (d *Device) Frame() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frameLocked()
}

func (d *Device) frameLocked() []byte {
	var bright byte
	if d.Brightness > 0 {
		bright = 1 << (d.Brightness - 1)
	}
	return prototest.NewFrame(80).
		Set(10, b(d.On)).
		Set(12, bright).
		Set(14, b(d.Heating)).
		Set(16, b(d.Night)).
		Set(20, b(d.Auto)).
		Set(22, b(d.FlowsLocked)).
		Set(26, byte(d.SpeedLocked*10)).
		Set(28, b(d.InputFan)).
		Set(30, byte(d.SpeedIn*10)).
		Set(32, b(d.OutputFan)).
		Set(34, byte(d.SpeedOut*10)).
		Set(42, b(d.Winter)).
		Set(49, 215).
		Set(55, 42).
		Set(60, 128+45).
		Set(78, 240).
		Bytes()
}

func lookup(data []byte) (protocol.Command, bool) {
	for _, name := range protocol.CommandNames() {
		cmd, _ := protocol.ParseCommand(name)
		if bytes.Equal(cmd.Bytes(), data) {
			return cmd, true
		}
	}
	return 0, false
}

func clamp(v int) int {
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}

func b(v bool) byte {
	if v {
		return 1
	}
	return 0
}
