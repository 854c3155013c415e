package broker

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Version is reported in discovery descriptors.
var Version = "1.0.0"

// Topics are the per-device broker topics.
type Topics struct {
	State          string
	BacklightState string
	BacklightSet   string
	BrightnessSet  string
	DeviceConfig   string
	LightConfig    string
	Logs           string
}

// TopicsFor returns the topics for a device id.
func TopicsFor(deviceID string) Topics {
	base := "aura/" + deviceID
	return Topics{
		State:          base + "/state",
		BacklightState: base + "/backlight/state",
		BacklightSet:   base + "/backlight/set",
		BrightnessSet:  base + "/backlight/brightness/set",
		DeviceConfig:   "homeassistant/device/" + deviceID + "/config",
		LightConfig:    "homeassistant/light/" + deviceID + "_backlight/config",
		Logs:           "aura2/logs/" + deviceID,
	}
}

type deviceInfo struct {
	Identifiers  string `json:"ids"`
	Name         string `json:"name"`
	Manufacturer string `json:"mf"`
	Model        string `json:"mdl"`
	Software     string `json:"sw"`
}

type originInfo struct {
	Name     string `json:"name"`
	Software string `json:"sw"`
	URL      string `json:"url"`
}

type sensorComponent struct {
	Platform          string `json:"p"`
	DeviceClass       string `json:"device_class"`
	UnitOfMeasurement string `json:"unit_of_measurement"`
	ValueTemplate     string `json:"value_template"`
	UniqueID          string `json:"unique_id"`
	Name              string `json:"name"`
}

type deviceDescriptor struct {
	Device     deviceInfo                 `json:"dev"`
	Origin     originInfo                 `json:"o"`
	Components map[string]sensorComponent `json:"cmps"`
	StateTopic string                     `json:"state_topic"`
}

type lightDescriptor struct {
	Name            string     `json:"name"`
	UniqueID        string     `json:"unique_id"`
	Schema          string     `json:"schema"`
	StateTopic      string     `json:"state_topic"`
	CommandTopic    string     `json:"command_topic"`
	Brightness      bool       `json:"brightness"`
	BrightnessScale int        `json:"brightness_scale"`
	Icon            string     `json:"icon"`
	Device          deviceInfo `json:"device"`
}

func device(deviceID, model string) deviceInfo {
	return deviceInfo{
		Identifiers:  deviceID,
		Name:         "Aura2 Weather Display",
		Manufacturer: "Aura",
		Model:        model,
		Software:     Version,
	}
}

// DeviceDescriptor is the retained Home Assistant device discovery payload
// with the temperature and feels-like sensors.
func DeviceDescriptor(deviceID, model string) ([]byte, error) {
	t := TopicsFor(deviceID)
	sensor := func(suffix, name, field string) sensorComponent {
		return sensorComponent{
			Platform:          "sensor",
			DeviceClass:       "temperature",
			UnitOfMeasurement: "°C",
			ValueTemplate:     "{{ value_json." + field + " }}",
			UniqueID:          deviceID + suffix,
			Name:              name,
		}
	}
	return json.Marshal(deviceDescriptor{
		Device: device(deviceID, model),
		Origin: originInfo{Name: "aura2mqtt", Software: Version, URL: "https://github.com/eb2tech/Aura2"},
		Components: map[string]sensorComponent{
			deviceID + "_temperature": sensor("_temperature", "Temperature", "temperature"),
			deviceID + "_feels_like":  sensor("_feels_like", "Feels Like Temperature", "feels_like"),
		},
		StateTopic: t.State,
	})
}

// LightDescriptor is the retained Home Assistant light discovery payload
// for the backlight.
func LightDescriptor(deviceID, model string) ([]byte, error) {
	t := TopicsFor(deviceID)
	return json.Marshal(lightDescriptor{
		Name:            "Backlight",
		UniqueID:        deviceID + "_backlight",
		Schema:          "json",
		StateTopic:      t.BacklightState,
		CommandTopic:    t.BacklightSet,
		Brightness:      true,
		BrightnessScale: 255,
		Icon:            "mdi:brightness-6",
		Device:          device(deviceID, model),
	})
}

// SensorState is published to the state topic. Values are Celsius.
type SensorState struct {
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feels_like"`
}

// BacklightState is published to the backlight state topic.
type BacklightState struct {
	State      string `json:"state"`
	Brightness int    `json:"brightness"`
}

// BacklightCommand is a decoded control message. Nil fields were absent.
type BacklightCommand struct {
	On         *bool
	Brightness *int
}

type commandPayload struct {
	State      *string  `json:"state"`
	Brightness *float64 `json:"brightness"`
}

// ParseCommand decodes a message on one of the control topics.
// ok is false for topics that are not control topics.
func ParseCommand(t Topics, msg Message) (cmd BacklightCommand, ok bool, err error) {
	if msg.Topic != t.BacklightSet && msg.Topic != t.BrightnessSet {
		return BacklightCommand{}, false, nil
	}

	var p commandPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return BacklightCommand{}, true, fmt.Errorf("invalid command payload: %w", err)
	}

	if p.Brightness != nil {
		// Saturate before converting; out-of-range floats do not convert.
		b := int(math.Max(0, math.Min(255, *p.Brightness)))
		cmd.Brightness = &b
	}

	if msg.Topic == t.BrightnessSet {
		if cmd.Brightness == nil {
			return BacklightCommand{}, true, fmt.Errorf("brightness command without brightness")
		}
		return cmd, true, nil
	}

	if p.State != nil {
		switch strings.ToUpper(*p.State) {
		case "ON":
			on := true
			cmd.On = &on
		case "OFF":
			off := false
			cmd.On = &off
		default:
			return BacklightCommand{}, true, fmt.Errorf("unknown backlight state %q", *p.State)
		}
	}
	if cmd.On == nil && cmd.Brightness == nil {
		return BacklightCommand{}, true, fmt.Errorf("empty backlight command")
	}
	return cmd, true, nil
}
