package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/bits"
)

// Status frame layout. Offsets are absolute, prefix included.
const (
	offIsOn        = 10
	offBrightness  = 12
	offHeating     = 14
	offNightMode   = 16
	offAutoMode    = 20
	offFlowsLocked = 22
	offSpeedLocked = 26
	offInputFan    = 28
	offSpeedIn     = 30
	offOutputFan   = 32
	offSpeedOut    = 34
	offWinterMode  = 42
	offTempInByte  = 49
	offTempIn16    = 51
	offTempOut16   = 54
	offTempOutByte = 55
	offHumidity    = 60
	offCO2         = 61
	offVOC         = 63
	offPressure    = 78

	// MinStatusLen is the shortest buffer DecodeStatus accepts.
	MinStatusLen = offPressure + 1

	// MaxBrightness is the top of the 0..6 brightness scale.
	MaxBrightness = 6

	// sensorMask strips the two status bits packed above the 14-bit value.
	sensorMask = 0x3FFF
)

// Sensors holds readings from the optional sensor board.
type Sensors struct {
	Humidity       int     `json:"humidity"`
	Pressure       int     `json:"pressure"`
	CO2            int     `json:"co2"`
	VOC            int     `json:"voc"`
	TemperatureIn  float64 `json:"temperature_in"`
	TemperatureOut float64 `json:"temperature_out"`
}

// Status is one decoded status frame.
type Status struct {
	IsOn               bool     `json:"is_on"`
	AutoMode           bool     `json:"auto_mode"`
	NightMode          bool     `json:"night_mode"`
	FlowsLocked        bool     `json:"flows_locked"`
	SpeedLocked        int      `json:"speed_locked"`
	SpeedIn            int      `json:"speed_in"`
	SpeedOut           int      `json:"speed_out"`
	MiniHeatingEnabled bool     `json:"mini_heating_enabled"`
	WinterModeEnabled  bool     `json:"winter_mode_enabled"`
	InputFanOn         bool     `json:"input_fan_on"`
	OutputFanOn        bool     `json:"output_fan_on"`
	Brightness         int      `json:"brightness"`
	Sensors            *Sensors `json:"sensors,omitempty"`
}

// IsStatusFrame reports whether buf starts with the status prefix.
func IsStatusFrame(buf []byte) bool {
	return len(buf) >= 2 && bytes.Equal(buf[:2], StatusPrefix[:])
}

// IsDetailsReply reports whether buf echoes the ReadDeviceDetails opcode
// after the shared prefix.
func IsDetailsReply(buf []byte) bool {
	return len(buf) >= 4 && IsStatusFrame(buf) && buf[2] == 0x05 && buf[3] == 0x02
}

// DecodeStatus parses a status notification.
//
// It returns ErrNotStatusFrame when the prefix doesn't match and
// ErrMalformedFrame when the frame is too short for the fixed layout.
// Device details replies share the prefix; one long enough for the
// layout decodes as status, so callers reading details filter with
// IsDetailsReply first.
func DecodeStatus(buf []byte) (*Status, error) {
	if !IsStatusFrame(buf) {
		return nil, ErrNotStatusFrame
	}
	if len(buf) < MinStatusLen {
		return nil, fmt.Errorf("%w: got %d bytes, need %d", ErrMalformedFrame, len(buf), MinStatusLen)
	}

	s := &Status{
		IsOn:               buf[offIsOn] != 0,
		MiniHeatingEnabled: buf[offHeating] != 0,
		NightMode:          buf[offNightMode] != 0,
		AutoMode:           buf[offAutoMode] != 0,
		FlowsLocked:        buf[offFlowsLocked] != 0,
		InputFanOn:         buf[offInputFan] != 0,
		OutputFanOn:        buf[offOutputFan] != 0,
		WinterModeEnabled:  buf[offWinterMode] != 0,
		Brightness:         decodeBrightness(buf[offBrightness]),
		SpeedLocked:        int(buf[offSpeedLocked]) / 10,
		SpeedIn:            int(buf[offSpeedIn]) / 10,
		SpeedOut:           int(buf[offSpeedOut]) / 10,
	}

	sensors := &Sensors{
		Humidity: int(buf[offHumidity]) - 128,
		Pressure: 512 + int(buf[offPressure]),
		CO2:      masked16(buf, offCO2),
		VOC:      masked16(buf, offVOC),
	}
	// Two firmware revisions: newer ones (with a working CO2 sensor) pack
	// temperatures as 14-bit big-endian values, older ones as single bytes.
	if sensors.CO2 > 0 && sensors.CO2 < 10000 {
		sensors.TemperatureIn = float64(masked16(buf, offTempIn16)) / 10.0
		sensors.TemperatureOut = float64(masked16(buf, offTempOut16)) / 10.0
	} else {
		sensors.TemperatureIn = float64(buf[offTempInByte]) / 10.0
		sensors.TemperatureOut = float64(buf[offTempOutByte]) / 10.0
	}
	// A non-positive humidity means there is no sensor board.
	if sensors.Humidity > 0 {
		s.Sensors = sensors
	}

	return s, nil
}

// decodeBrightness is floor(log2(b))+1, or 0 for a zero byte.
func decodeBrightness(b byte) int {
	return bits.Len8(b)
}

func masked16(buf []byte, off int) int {
	return int(binary.BigEndian.Uint16(buf[off:off+2]) & sensorMask)
}

// EffectiveSpeed derives the single speed value shown to users. With both
// fans running it is their mean, rounding halves up (4 and 5 give 5).
func (s *Status) EffectiveSpeed() int {
	switch {
	case s == nil || !s.IsOn:
		return 0
	case s.FlowsLocked:
		return s.SpeedLocked
	case s.InputFanOn && s.OutputFanOn:
		return (s.SpeedIn + s.SpeedOut + 1) / 2
	case s.InputFanOn:
		return s.SpeedIn
	case s.OutputFanOn:
		return s.SpeedOut
	case s.AutoMode:
		return s.SpeedIn
	default:
		return 0
	}
}

// Clone returns a deep copy.
func (s *Status) Clone() *Status {
	if s == nil {
		return nil
	}
	out := *s
	if s.Sensors != nil {
		sensors := *s.Sensors
		out.Sensors = &sensors
	}
	return &out
}
