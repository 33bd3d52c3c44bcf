package bridge

import (
	"encoding/json"
	"fmt"
)

// Payloads shared by every entity.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
	PayloadOn      = "ON"
	PayloadOff     = "OFF"
)

type deviceInfo struct {
	Identifiers  []string    `json:"identifiers"`
	Name         string      `json:"name"`
	Manufacturer string      `json:"manufacturer"`
	Model        string      `json:"model,omitempty"`
	Connections  [][2]string `json:"connections,omitempty"`
}

// entity holds the keys every discovery document carries.
type entity struct {
	UniqueId          string     `json:"unique_id"`
	Name              string     `json:"name"`
	Device            deviceInfo `json:"device"`
	AvailabilityTopic string     `json:"availability_topic"`
	Icon              string     `json:"icon,omitempty"`
}

type fanConfiguration struct {
	entity
	StateTopic              string   `json:"state_topic"`
	StateValueTemplate      string   `json:"state_value_template"`
	CommandTopic            string   `json:"command_topic"`
	PercentageStateTopic    string   `json:"percentage_state_topic"`
	PercentageValueTemplate string   `json:"percentage_value_template"`
	PercentageCommandTopic  string   `json:"percentage_command_topic"`
	PresetModeStateTopic    string   `json:"preset_mode_state_topic"`
	PresetModeValueTemplate string   `json:"preset_mode_value_template"`
	PresetModeCommandTopic  string   `json:"preset_mode_command_topic"`
	PresetModes             []string `json:"preset_modes"`
	SpeedRangeMin           int      `json:"speed_range_min"`
	SpeedRangeMax           int      `json:"speed_range_max"`
}

type switchConfiguration struct {
	entity
	StateTopic    string `json:"state_topic"`
	ValueTemplate string `json:"value_template"`
	CommandTopic  string `json:"command_topic"`
}

type selectConfiguration struct {
	entity
	StateTopic    string   `json:"state_topic"`
	ValueTemplate string   `json:"value_template"`
	CommandTopic  string   `json:"command_topic"`
	Options       []string `json:"options"`
}

type numberConfiguration struct {
	entity
	StateTopic    string `json:"state_topic"`
	ValueTemplate string `json:"value_template"`
	CommandTopic  string `json:"command_topic"`
	Min           int    `json:"min"`
	Max           int    `json:"max"`
	Step          int    `json:"step"`
}

type sensorConfiguration struct {
	entity
	DeviceClass       string `json:"device_class,omitempty"`
	StateClass        string `json:"state_class,omitempty"`
	StateTopic        string `json:"state_topic"`
	ValueTemplate     string `json:"value_template,omitempty"`
	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
}

func template(key string) string {
	return fmt.Sprintf("{{ value_json.%s }}", key)
}

// discovery is one retained config document.
type discovery struct {
	topic   string
	payload []byte
}

func (b *Bridge) entity(key, name, icon string) entity {
	return entity{
		UniqueId:          b.id + "_" + key,
		Name:              name,
		Device:            b.device,
		AvailabilityTopic: b.topic("availability"),
		Icon:              icon,
	}
}

func (b *Bridge) configTopic(component, key string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", b.discoveryPrefix, component, b.id, key)
}

// discoveryDocuments lists every entity the bridge exposes.
func (b *Bridge) discoveryDocuments() ([]discovery, error) {
	var docs []discovery
	add := func(component, key string, cfg any) error {
		payload, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal %s %s: %w", component, key, err)
		}
		docs = append(docs, discovery{topic: b.configTopic(component, key), payload: payload})
		return nil
	}

	stateTopic := b.topic("state")
	if err := add("fan", "fan", fanConfiguration{
		entity:                  b.entity("fan", b.name, ""),
		StateTopic:              stateTopic,
		StateValueTemplate:      template("state"),
		CommandTopic:            b.topic("power/set"),
		PercentageStateTopic:    stateTopic,
		PercentageValueTemplate: template("percentage"),
		PercentageCommandTopic:  b.topic("percentage/set"),
		PresetModeStateTopic:    stateTopic,
		PresetModeValueTemplate: template("preset"),
		PresetModeCommandTopic:  b.topic("preset/set"),
		PresetModes:             presetModes,
		SpeedRangeMin:           1,
		SpeedRangeMax:           100,
	}); err != nil {
		return nil, err
	}

	for _, sw := range switchDefinitions {
		if err := add("switch", sw.key, switchConfiguration{
			entity:        b.entity(sw.key, b.name+" "+sw.name, sw.icon),
			StateTopic:    stateTopic,
			ValueTemplate: template(sw.key),
			CommandTopic:  b.topic(sw.key + "/set"),
		}); err != nil {
			return nil, err
		}
	}

	if err := add("select", "direction", selectConfiguration{
		entity:        b.entity("direction", b.name+" Direction", "mdi:swap-horizontal"),
		StateTopic:    stateTopic,
		ValueTemplate: template("direction"),
		CommandTopic:  b.topic("direction/set"),
		Options:       directions,
	}); err != nil {
		return nil, err
	}

	if err := add("number", "brightness", numberConfiguration{
		entity:        b.entity("brightness", b.name+" Display Brightness", "mdi:brightness-6"),
		StateTopic:    stateTopic,
		ValueTemplate: template("brightness"),
		CommandTopic:  b.topic("brightness/set"),
		Min:           0,
		Max:           maxBrightness,
		Step:          1,
	}); err != nil {
		return nil, err
	}

	if err := add("sensor", "speed", sensorConfiguration{
		entity:        b.entity("speed", b.name+" Speed", "mdi:fan"),
		StateClass:    "measurement",
		StateTopic:    stateTopic,
		ValueTemplate: template("speed"),
	}); err != nil {
		return nil, err
	}

	for _, s := range sensorDefinitions {
		if err := add("sensor", s.key, sensorConfiguration{
			entity:            b.entity(s.key, b.name+" "+s.name, ""),
			DeviceClass:       s.class,
			StateClass:        "measurement",
			StateTopic:        b.topic("sensor/" + s.key),
			UnitOfMeasurement: s.unit,
		}); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// Register publishes the retained discovery documents.
func (b *Bridge) Register() error {
	docs, err := b.discoveryDocuments()
	if err != nil {
		return err
	}
	for _, d := range docs {
		if err := b.broker.Publish(d.topic, true, d.payload); err != nil {
			return err
		}
	}
	b.log.WithField("entities", len(docs)).Info("Registered Home Assistant entities")
	return nil
}
