package sensor

import (
	"fmt"
	"sync"
)

// Layout binds a discriminant to its fixed wire layout.
type Layout struct {
	// MinLen is the smallest frame, header included, the layout accepts.
	// Longer frames are decoded from the same offsets.
	MinLen int
	// Keys names the measurement fields in wire order.
	Keys []string
	// Decode reads the fixed-offset fields. It is only called with frames of
	// at least MinLen bytes and must not retain the slice.
	Decode func(frame []byte) Reading
}

// Info describes a sensor type for the query surface.
type Info struct {
	Name      string   `json:"name"`
	ID        uint8    `json:"id"`
	Keys      []string `json:"keys"`
	MinLength int      `json:"min_length,omitempty"`
	Decodable bool     `json:"decodable"`
}

// Registry maps discriminants to layouts. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	layouts map[Type]Layout
}

// NewRegistry returns a registry holding the built-in layouts.
func NewRegistry() *Registry {
	r := &Registry{layouts: make(map[Type]Layout)}
	for t, l := range builtinLayouts() {
		r.layouts[t] = l
	}
	return r
}

// Register adds or replaces the layout for a declared type.
func (r *Registry) Register(t Type, l Layout) error {
	if !t.Valid() {
		return fmt.Errorf("cannot register layout for undeclared type 0x%02x", uint8(t))
	}
	if l.MinLen < HeaderLen {
		return fmt.Errorf("layout for %s: min length %d shorter than header (%d)", t, l.MinLen, HeaderLen)
	}
	if l.Decode == nil {
		return fmt.Errorf("layout for %s: nil decode func", t)
	}
	r.mu.Lock()
	r.layouts[t] = l
	r.mu.Unlock()
	return nil
}

// Lookup returns the layout registered for t.
func (r *Registry) Lookup(t Type) (Layout, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.layouts[t]
	return l, ok
}

// Describe returns the catalogue entry for t.
func (r *Registry) Describe(t Type) Info {
	info := Info{Name: t.String(), ID: uint8(t), Keys: []string{}}
	if l, ok := r.Lookup(t); ok {
		info.Keys = append([]string{"timestamp"}, l.Keys...)
		info.MinLength = l.MinLen
		info.Decodable = true
	}
	return info
}

// Catalogue describes every declared type ordered by discriminant.
func (r *Registry) Catalogue() []Info {
	types := Types()
	out := make([]Info, 0, len(types))
	for _, t := range types {
		out = append(out, r.Describe(t))
	}
	return out
}

func builtinLayouts() map[Type]Layout {
	strainCadence := Layout{
		MinLen: 24,
		Keys:   []string{"rps", "strain"},
		Decode: decodeStrainCadence,
	}
	return map[Type]Layout{
		Ultrasonic: {
			MinLen: 16,
			Keys:   []string{"altitude", "temperature"},
			Decode: decodeUltrasonic,
		},
		Barometer: {
			MinLen: 16,
			Keys:   []string{"pressure", "temperature"},
			Decode: decodeBarometer,
		},
		Pitot: {
			MinLen: 28,
			Keys:   []string{"temperature", "velocity", "pressure_velocity", "pressure_attack", "pressure_slip"},
			Decode: decodePitot,
		},
		Tachometer:  strainCadence,
		Thrustmeter: strainCadence,
		ServoController: {
			MinLen: 48,
			Keys: []string{"status", "rudder", "elevator", "voltage", "i_rudder", "i_elevator",
				"trim", "pos_rudder", "pos_elevator", "temp_rudder", "temp_elevator"},
			Decode: decodeServoController,
		},
		GPS: {
			MinLen: 44,
			Keys: []string{"fixmode", "PDOP", "year", "iTow", "longitude", "latitude",
				"height", "hAcc", "vAcc", "gspeed", "headMotion"},
			Decode: decodeGPS,
		},
		BLEPowerMeter: {
			MinLen: 16,
			Keys:   []string{"power", "cadence"},
			Decode: decodePowerMeter,
		},
		Humidity: {
			MinLen: 16,
			Keys:   []string{"humidity", "temperature"},
			Decode: decodeHumidity,
		},
		PCSender: {
			MinLen: 48,
			Keys:   []string{"target_longitude", "target_latitude", "additional_data"},
			Decode: decodePCSender,
		},
	}
}

func decodeUltrasonic(frame []byte) Reading {
	return &UltrasonicReading{
		Header:      HeaderFrom(frame),
		Altitude:    f32(frame, 8),
		Temperature: f32(frame, 12),
	}
}

func decodeBarometer(frame []byte) Reading {
	return &BarometerReading{
		Header:      HeaderFrom(frame),
		Pressure:    f32(frame, 8),
		Temperature: f32(frame, 12),
	}
}

func decodePitot(frame []byte) Reading {
	return &PitotReading{
		Header:           HeaderFrom(frame),
		Temperature:      f32(frame, 8),
		Velocity:         f32(frame, 12),
		PressureVelocity: f32(frame, 16),
		PressureAttack:   f32(frame, 20),
		PressureSlip:     f32(frame, 24),
	}
}

func decodeStrainCadence(frame []byte) Reading {
	return &StrainCadenceReading{
		Header: HeaderFrom(frame),
		RPS:    f64(frame, 8),
		Strain: leU32(frame, 16),
	}
}

func decodeServoController(frame []byte) Reading {
	return &ServoControllerReading{
		Header:       HeaderFrom(frame),
		Status:       frame[1],
		Rudder:       f32(frame, 8),
		Elevator:     f32(frame, 12),
		Voltage:      f32(frame, 16),
		IRudder:      f32(frame, 20),
		IElevator:    f32(frame, 24),
		Trim:         f32(frame, 28),
		PosRudder:    f32(frame, 32),
		PosElevator:  f32(frame, 36),
		TempRudder:   f32(frame, 40),
		TempElevator: f32(frame, 44),
	}
}

func decodeGPS(frame []byte) Reading {
	h := HeaderFrom(frame)
	h.Timestamp = leU32(frame, 12)
	return &GPSReading{
		Header:     h,
		FixMode:    frame[1],
		PDOP:       leU16(frame, 2),
		Year:       leU16(frame, 4),
		ITOW:       leU32(frame, 8),
		Longitude:  int32(leU32(frame, 16)),
		Latitude:   int32(leU32(frame, 20)),
		Height:     int32(leU32(frame, 24)),
		HAcc:       leU32(frame, 28),
		VAcc:       leU32(frame, 32),
		GSpeed:     int32(leU32(frame, 36)),
		HeadMotion: int32(leU32(frame, 40)),
	}
}

func decodePowerMeter(frame []byte) Reading {
	return &PowerMeterReading{
		Header:  HeaderFrom(frame),
		Power:   int16(leU16(frame, 2)),
		Cadence: f64(frame, 8),
	}
}

func decodeHumidity(frame []byte) Reading {
	return &HumidityReading{
		Header:      HeaderFrom(frame),
		Humidity:    f32(frame, 8),
		Temperature: f32(frame, 12),
	}
}

func decodePCSender(frame []byte) Reading {
	r := &PCSenderReading{
		Header:          HeaderFrom(frame),
		TargetLongitude: leU32(frame, 8),
		TargetLatitude:  leU32(frame, 12),
	}
	copy(r.AdditionalData[:], frame[16:48])
	return r
}
