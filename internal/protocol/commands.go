package protocol

import (
	"fmt"
	"strings"
)

// StatusPrefix is the two-byte magic that starts every command and every
// status frame.
var StatusPrefix = [2]byte{0xBE, 0xEF}

// Command is one of the fixed byte sequences understood by the unit.
// Commands never carry parameters; absolute targets are reached by stepping.
type Command int

const (
	TurnOn Command = iota
	TurnOff
	SpeedUp
	SpeedDown
	ToggleFlowLock
	ToggleHeating
	ToggleWinterMode
	ChangeBrightness
	ToggleAutoMode
	ReadState
	ReadDeviceDetails
	NightMode
	HighSpeed
	SpeedInUp
	SpeedInDown
	SpeedOutUp
	SpeedOutDown
	ToggleAirIn
	ToggleAirOut
)

type commandDef struct {
	name  string
	bytes []byte
}

// Wire contract, matched against real firmware.
var commands = map[Command]commandDef{
	TurnOn:            {"turn-on", []byte{0xBE, 0xEF, 0x04, 0x0A}},
	TurnOff:           {"turn-off", []byte{0xBE, 0xEF, 0x04, 0x01}},
	SpeedUp:           {"speed-up", []byte{0xBE, 0xEF, 0x04, 0x0C}},
	SpeedDown:         {"speed-down", []byte{0xBE, 0xEF, 0x04, 0x0B}},
	ToggleFlowLock:    {"toggle-flow-lock", []byte{0xBE, 0xEF, 0x04, 0x09}},
	ToggleHeating:     {"toggle-heating", []byte{0xBE, 0xEF, 0x04, 0x05}},
	ToggleWinterMode:  {"toggle-winter-mode", []byte{0xBE, 0xEF, 0x04, 0x16}},
	ChangeBrightness:  {"change-brightness", []byte{0xBE, 0xEF, 0x04, 0x02}},
	ToggleAutoMode:    {"toggle-auto-mode", []byte{0xBE, 0xEF, 0x04, 0x18}},
	ReadState:         {"read-state", []byte{0xBE, 0xEF, 0x05, 0x01, 0x00, 0x00, 0x00, 0x00, 0x5A}},
	ReadDeviceDetails: {"read-device-details", []byte{0xBE, 0xEF, 0x05, 0x02, 0x00, 0x00, 0x00, 0x00, 0x5A}},
	NightMode:         {"night-mode", []byte{0xBE, 0xEF, 0x04, 0x06}},
	HighSpeed:         {"high-speed", []byte{0xBE, 0xEF, 0x04, 0x07}},
	SpeedInUp:         {"speed-in-up", []byte{0xBE, 0xEF, 0x04, 0x0E}},
	SpeedInDown:       {"speed-in-down", []byte{0xBE, 0xEF, 0x04, 0x0F}},
	SpeedOutUp:        {"speed-out-up", []byte{0xBE, 0xEF, 0x04, 0x11}},
	SpeedOutDown:      {"speed-out-down", []byte{0xBE, 0xEF, 0x04, 0x12}},
	ToggleAirIn:       {"toggle-air-in", []byte{0xBE, 0xEF, 0x04, 0x0D}},
	ToggleAirOut:      {"toggle-air-out", []byte{0xBE, 0xEF, 0x04, 0x10}},
}

// Bytes returns a copy of the command's wire encoding.
func (c Command) Bytes() []byte {
	def, ok := commands[c]
	if !ok {
		return nil
	}
	out := make([]byte, len(def.bytes))
	copy(out, def.bytes)
	return out
}

func (c Command) String() string {
	if def, ok := commands[c]; ok {
		return def.name
	}
	return fmt.Sprintf("command(%d)", int(c))
}

// ParseCommand looks a command up by its name (e.g. "speed-up").
func ParseCommand(name string) (Command, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for c, def := range commands {
		if def.name == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown command %q", name)
}

// CommandNames lists all command names, in opcode table order.
func CommandNames() []string {
	names := make([]string, 0, len(commands))
	for c := TurnOn; c <= ToggleAirOut; c++ {
		names = append(names, commands[c].name)
	}
	return names
}
