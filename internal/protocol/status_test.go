package protocol_test

import (
	"errors"
	"testing"

	"github.com/vitaminmoo/prana-tool/internal/protocol"
	"github.com/vitaminmoo/prana-tool/internal/protocol/prototest"
)

func TestDecodeStatus_Default(t *testing.T) {
	s, err := protocol.DecodeStatus(prototest.Default().Bytes())
	if err != nil {
		t.Fatalf("DecodeStatus() error = %v", err)
	}

	if !s.IsOn {
		t.Error("IsOn = false, want true")
	}
	if s.Brightness != 3 {
		t.Errorf("Brightness = %d, want 3", s.Brightness)
	}
	if s.SpeedIn != 3 || s.SpeedOut != 3 {
		t.Errorf("SpeedIn/Out = %d/%d, want 3/3", s.SpeedIn, s.SpeedOut)
	}
	if !s.InputFanOn || !s.OutputFanOn {
		t.Error("expected both fans on")
	}
	if s.Sensors == nil {
		t.Fatal("Sensors = nil, want sensor block")
	}
	if s.Sensors.Humidity != 50 {
		t.Errorf("Humidity = %d, want 50", s.Sensors.Humidity)
	}
	if s.Sensors.Pressure != 752 {
		t.Errorf("Pressure = %d, want 752", s.Sensors.Pressure)
	}
	if got := s.EffectiveSpeed(); got != 3 {
		t.Errorf("EffectiveSpeed() = %d, want 3", got)
	}
}

func TestDecodeStatus_Booleans(t *testing.T) {
	tests := []struct {
		name   string
		offset int
		get    func(*protocol.Status) bool
	}{
		{"is_on", 10, func(s *protocol.Status) bool { return s.IsOn }},
		{"heating", 14, func(s *protocol.Status) bool { return s.MiniHeatingEnabled }},
		{"night", 16, func(s *protocol.Status) bool { return s.NightMode }},
		{"auto", 20, func(s *protocol.Status) bool { return s.AutoMode }},
		{"flows_locked", 22, func(s *protocol.Status) bool { return s.FlowsLocked }},
		{"input_fan", 28, func(s *protocol.Status) bool { return s.InputFanOn }},
		{"output_fan", 32, func(s *protocol.Status) bool { return s.OutputFanOn }},
		{"winter", 42, func(s *protocol.Status) bool { return s.WinterModeEnabled }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			off, err := protocol.DecodeStatus(prototest.NewFrame(80))
			if err != nil {
				t.Fatalf("DecodeStatus() error = %v", err)
			}
			if tt.get(off) {
				t.Errorf("%s = true on zero frame", tt.name)
			}

			on, err := protocol.DecodeStatus(prototest.NewFrame(80).Set(tt.offset, 0x7F))
			if err != nil {
				t.Fatalf("DecodeStatus() error = %v", err)
			}
			if !tt.get(on) {
				t.Errorf("%s = false with byte %d set", tt.name, tt.offset)
			}
		})
	}
}

func TestDecodeStatus_Brightness(t *testing.T) {
	tests := []struct {
		raw  byte
		want int
	}{
		{0, 0},
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{32, 6},
		{64, 7},
	}
	for _, tt := range tests {
		s, err := protocol.DecodeStatus(prototest.NewFrame(80).Set(12, tt.raw))
		if err != nil {
			t.Fatalf("DecodeStatus() error = %v", err)
		}
		if s.Brightness != tt.want {
			t.Errorf("brightness byte %d: got %d, want %d", tt.raw, s.Brightness, tt.want)
		}
	}
}

func TestDecodeStatus_SpeedsUseIntegerDivision(t *testing.T) {
	f := prototest.NewFrame(80).Set(26, 59).Set(30, 10).Set(34, 99)
	s, err := protocol.DecodeStatus(f)
	if err != nil {
		t.Fatalf("DecodeStatus() error = %v", err)
	}
	if s.SpeedLocked != 5 || s.SpeedIn != 1 || s.SpeedOut != 9 {
		t.Errorf("speeds = %d/%d/%d, want 5/1/9", s.SpeedLocked, s.SpeedIn, s.SpeedOut)
	}
}

func TestDecodeStatus_SensorMask(t *testing.T) {
	f := prototest.Default().Set16(61, 0xFFFF).Set16(63, 0xC123)
	s, err := protocol.DecodeStatus(f)
	if err != nil {
		t.Fatalf("DecodeStatus() error = %v", err)
	}
	if s.Sensors.CO2 != 16383 {
		t.Errorf("CO2 = %d, want 16383", s.Sensors.CO2)
	}
	if s.Sensors.VOC != 0x0123 {
		t.Errorf("VOC = %d, want %d", s.Sensors.VOC, 0x0123)
	}
}

func TestDecodeStatus_TemperatureFirmwareVariants(t *testing.T) {
	tests := []struct {
		name    string
		co2     uint16
		wantIn  float64
		wantOut float64
	}{
		{"co2 zero uses bytes", 0, 21.0, 5.5},
		{"co2 at limit uses bytes", 10000, 21.0, 5.5},
		{"co2 above limit uses bytes", 12000, 21.0, 5.5},
		{"co2 valid uses 16-bit", 650, 23.4, 31.1},
		{"status bits stripped from co2", 0xC000 | 650, 23.4, 31.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := prototest.Default().
				Set16(61, tt.co2).
				Set(49, 210).
				Set16(51, 0x8000|234).
				Set16(54, 0x0137) // byte 55 doubles as the old single-byte value (55)
			s, err := protocol.DecodeStatus(f)
			if err != nil {
				t.Fatalf("DecodeStatus() error = %v", err)
			}
			if s.Sensors.TemperatureIn != tt.wantIn {
				t.Errorf("TemperatureIn = %v, want %v", s.Sensors.TemperatureIn, tt.wantIn)
			}
			if s.Sensors.TemperatureOut != tt.wantOut {
				t.Errorf("TemperatureOut = %v, want %v", s.Sensors.TemperatureOut, tt.wantOut)
			}
		})
	}
}

func TestDecodeStatus_NoSensorBoard(t *testing.T) {
	for _, raw := range []byte{0, 100, 128} {
		s, err := protocol.DecodeStatus(prototest.Default().Set(60, raw))
		if err != nil {
			t.Fatalf("DecodeStatus() error = %v", err)
		}
		if s.Sensors != nil {
			t.Errorf("humidity byte %d: Sensors = %+v, want nil", raw, s.Sensors)
		}
	}
}

func TestDecodeStatus_NotStatusFrame(t *testing.T) {
	inputs := [][]byte{
		nil,
		{},
		{0xBE},
		{0xEF, 0xBE, 0x00},
		make([]byte, 100),
	}
	for _, in := range inputs {
		s, err := protocol.DecodeStatus(in)
		if !errors.Is(err, protocol.ErrNotStatusFrame) {
			t.Errorf("DecodeStatus(%x) error = %v, want ErrNotStatusFrame", in, err)
		}
		if s != nil {
			t.Errorf("DecodeStatus(%x) returned status for non-status frame", in)
		}
	}
}

func TestDecodeStatus_Truncated(t *testing.T) {
	for _, n := range []int{2, 9, 40, 61, protocol.MinStatusLen - 1} {
		_, err := protocol.DecodeStatus(prototest.NewFrame(n))
		if !errors.Is(err, protocol.ErrMalformedFrame) {
			t.Errorf("len %d: error = %v, want ErrMalformedFrame", n, err)
		}
	}

	if _, err := protocol.DecodeStatus(prototest.NewFrame(protocol.MinStatusLen)); err != nil {
		t.Errorf("len %d: unexpected error %v", protocol.MinStatusLen, err)
	}
}

func TestEffectiveSpeed(t *testing.T) {
	tests := []struct {
		name string
		s    *protocol.Status
		want int
	}{
		{"nil", nil, 0},
		{"off", &protocol.Status{IsOn: false, SpeedLocked: 5, FlowsLocked: true}, 0},
		{"locked", &protocol.Status{IsOn: true, FlowsLocked: true, SpeedLocked: 4, SpeedIn: 9, InputFanOn: true}, 4},
		{"both fans average", &protocol.Status{IsOn: true, InputFanOn: true, OutputFanOn: true, SpeedIn: 4, SpeedOut: 6}, 5},
		{"both fans round half up", &protocol.Status{IsOn: true, InputFanOn: true, OutputFanOn: true, SpeedIn: 4, SpeedOut: 5}, 5},
		{"input only", &protocol.Status{IsOn: true, InputFanOn: true, SpeedIn: 7, SpeedOut: 2}, 7},
		{"output only", &protocol.Status{IsOn: true, OutputFanOn: true, SpeedIn: 7, SpeedOut: 2}, 2},
		{"auto", &protocol.Status{IsOn: true, AutoMode: true, SpeedIn: 6}, 6},
		{"nothing active", &protocol.Status{IsOn: true, SpeedIn: 6}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.EffectiveSpeed(); got != tt.want {
				t.Errorf("EffectiveSpeed() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	s, err := protocol.DecodeStatus(prototest.Default())
	if err != nil {
		t.Fatalf("DecodeStatus() error = %v", err)
	}
	c := s.Clone()
	c.Sensors.Humidity = 1
	c.IsOn = false
	if s.Sensors.Humidity != 50 || !s.IsOn {
		t.Error("Clone() shares state with original")
	}
}
