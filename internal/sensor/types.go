package sensor

import (
	"fmt"
	"sort"
	"strings"
)

// Type is the discriminant carried in the first byte of every frame.
type Type uint8

// Declared device message kinds. Codes are fixed by the device firmware.
const (
	MainBoard       Type = 0x00
	ServoController Type = 0x10
	Tachometer      Type = 0x20
	Thrustmeter     Type = 0x21
	Pitot           Type = 0x30
	IMU             Type = 0x40
	Ultrasonic      Type = 0x50
	GPS             Type = 0x60
	Vane            Type = 0x70
	Barometer       Type = 0x90
	BLEPowerMeter   Type = 0xA0
	Humidity        Type = 0xB0
	PCSender        Type = 0xE0
)

var typeNames = map[Type]string{
	MainBoard:       "MainBoard",
	ServoController: "ServoController",
	Tachometer:      "Tachometer",
	Thrustmeter:     "Thrustmeter",
	Pitot:           "Pitot",
	IMU:             "IMU",
	Ultrasonic:      "Ultrasonic",
	GPS:             "GPS",
	Vane:            "Vane",
	Barometer:       "Barometer",
	BLEPowerMeter:   "BLEPowerMeter",
	Humidity:        "HumidityAndTemperature",
	PCSender:        "PCSender",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(0x%02x)", uint8(t))
}

// Valid reports whether t is one of the declared discriminants.
func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// ParseType resolves a sensor name, ignoring case.
func ParseType(name string) (Type, error) {
	name = strings.TrimSpace(name)
	for t, n := range typeNames {
		if strings.EqualFold(n, name) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown sensor %q", name)
}

// Types returns every declared type ordered by discriminant.
func Types() []Type {
	out := make([]Type, 0, len(typeNames))
	for t := range typeNames {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
