package bridge

import (
	"github.com/vitaminmoo/prana-tool/internal/api"
	"github.com/vitaminmoo/prana-tool/internal/protocol"
)

type sensorDefinition struct {
	key   string
	name  string
	class string
	unit  string
	get   func(*protocol.Sensors) any
}

var sensorDefinitions = []sensorDefinition{
	{"temperature_in", "Inside Temperature", "temperature", "°C", func(s *protocol.Sensors) any { return s.TemperatureIn }},
	{"temperature_out", "Outside Temperature", "temperature", "°C", func(s *protocol.Sensors) any { return s.TemperatureOut }},
	{"humidity", "Humidity", "humidity", "%", func(s *protocol.Sensors) any { return s.Humidity }},
	{"pressure", "Pressure", "pressure", "mmHg", func(s *protocol.Sensors) any { return s.Pressure }},
	{"co2", "CO2", "carbon_dioxide", "ppm", func(s *protocol.Sensors) any { return s.CO2 }},
	{"voc", "VOC", "volatile_organic_compounds_parts", "ppb", func(s *protocol.Sensors) any { return s.VOC }},
}

type switchDefinition struct {
	key  string
	name string
	icon string
	get  func(protocol.Status) bool
}

var switchDefinitions = []switchDefinition{
	{"heating", "Heating", "mdi:radiator", func(s protocol.Status) bool { return s.MiniHeatingEnabled }},
	{"winter", "Winter Mode", "mdi:snowflake", func(s protocol.Status) bool { return s.WinterModeEnabled }},
	{"auto", "Auto Mode", "mdi:fan-auto", func(s protocol.Status) bool { return s.AutoMode }},
	{"night", "Night Mode", "mdi:weather-night", func(s protocol.Status) bool { return s.NightMode }},
	{"flow_lock", "Flow Lock", "mdi:lock", func(s protocol.Status) bool { return s.FlowsLocked }},
}

var (
	presetModes = []string{api.PresetAuto, api.PresetManual}
	directions  = []string{string(api.Forward), string(api.Reverse), string(api.Both)}
)

const maxBrightness = protocol.MaxBrightness
