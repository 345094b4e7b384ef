package sensor

import (
	"encoding/binary"
	"math"
	"time"
)

// HeaderLen is the discriminant, three reserved bytes and the device
// timestamp shared by every layout.
const HeaderLen = 8

// Reading is one decoded frame. Concrete readings are the pointer types in
// this package; other packages can add variants by embedding Header.
// Readings are not modified after the parser hands them on.
type Reading interface {
	// SensorType returns the discriminant the reading was decoded from.
	SensorType() Type
	// DeviceTimestamp returns the device clock value carried in the frame.
	DeviceTimestamp() uint32
	// CaptureTime returns the host time at which decoding completed.
	CaptureTime() time.Time

	header() *Header
}

// Header holds the fields common to every reading. The device timestamp and
// the host capture time come from unrelated clocks and are never reconciled.
type Header struct {
	ID           uint8     `json:"id"`
	Sensor       string    `json:"sensor"`
	Timestamp    uint32    `json:"timestamp"`
	ReceivedTime int64     `json:"received_time"`
	CapturedAt   time.Time `json:"-"`
}

func (h *Header) SensorType() Type        { return Type(h.ID) }
func (h *Header) DeviceTimestamp() uint32 { return h.Timestamp }
func (h *Header) CaptureTime() time.Time  { return h.CapturedAt }
func (h *Header) header() *Header         { return h }

func (h *Header) stamp(at time.Time) {
	h.CapturedAt = at
	h.ReceivedTime = at.UnixMilli()
}

// HeaderFrom reads the common header fields from a frame of at least HeaderLen
// bytes. Layouts registered outside this package use it to fill the embedded
// Header of their reading type.
func HeaderFrom(frame []byte) Header {
	t := Type(frame[0])
	return Header{
		ID:        uint8(t),
		Sensor:    t.String(),
		Timestamp: binary.LittleEndian.Uint32(frame[4:8]),
	}
}

func putHeader(buf []byte, t Type, ts uint32) {
	buf[0] = uint8(t)
	binary.LittleEndian.PutUint32(buf[4:8], ts)
}

// UltrasonicReading is an ultrasonic altimeter sample.
type UltrasonicReading struct {
	Header
	Altitude    float32 `json:"altitude"`
	Temperature float32 `json:"temperature"`
}

// MarshalBinary encodes the reading in its 16 byte wire layout.
func (r *UltrasonicReading) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 16)
	putHeader(buf, Ultrasonic, r.Timestamp)
	putF32(buf, 8, r.Altitude)
	putF32(buf, 12, r.Temperature)
	return buf, nil
}

// BarometerReading is a barometric pressure sample.
type BarometerReading struct {
	Header
	Pressure    float32 `json:"pressure"`
	Temperature float32 `json:"temperature"`
}

// MarshalBinary encodes the reading in its 16 byte wire layout.
func (r *BarometerReading) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 16)
	putHeader(buf, Barometer, r.Timestamp)
	putF32(buf, 8, r.Pressure)
	putF32(buf, 12, r.Temperature)
	return buf, nil
}

// PitotReading is an airspeed sample from the pitot tube board.
type PitotReading struct {
	Header
	Temperature      float32 `json:"temperature"`
	Velocity         float32 `json:"velocity"`
	PressureVelocity float32 `json:"pressure_velocity"`
	PressureAttack   float32 `json:"pressure_attack"`
	PressureSlip     float32 `json:"pressure_slip"`
}

// MarshalBinary encodes the reading in its 28 byte wire layout.
func (r *PitotReading) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 28)
	putHeader(buf, Pitot, r.Timestamp)
	putF32(buf, 8, r.Temperature)
	putF32(buf, 12, r.Velocity)
	putF32(buf, 16, r.PressureVelocity)
	putF32(buf, 20, r.PressureAttack)
	putF32(buf, 24, r.PressureSlip)
	return buf, nil
}

// StrainCadenceReading is a rotation rate and strain gauge sample, shared by
// the tachometer and thrust meter boards.
type StrainCadenceReading struct {
	Header
	RPS    float64 `json:"rps"`
	Strain uint32  `json:"strain"`
}

// MarshalBinary encodes the reading in its 24 byte wire layout.
func (r *StrainCadenceReading) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 24)
	putHeader(buf, Type(r.ID), r.Timestamp)
	binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(r.RPS))
	binary.LittleEndian.PutUint32(buf[16:20], r.Strain)
	return buf, nil
}

// ServoControllerReading reports the rudder and elevator servos. Status is
// the controller status byte carried in the first reserved header byte.
type ServoControllerReading struct {
	Header
	Status       uint8   `json:"status"`
	Rudder       float32 `json:"rudder"`
	Elevator     float32 `json:"elevator"`
	Voltage      float32 `json:"voltage"`
	IRudder      float32 `json:"i_rudder"`
	IElevator    float32 `json:"i_elevator"`
	Trim         float32 `json:"trim"`
	PosRudder    float32 `json:"pos_rudder"`
	PosElevator  float32 `json:"pos_elevator"`
	TempRudder   float32 `json:"temp_rudder"`
	TempElevator float32 `json:"temp_elevator"`
}

// MarshalBinary encodes the reading in its 48 byte wire layout.
func (r *ServoControllerReading) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 48)
	putHeader(buf, ServoController, r.Timestamp)
	buf[1] = r.Status
	for i, v := range []float32{
		r.Rudder, r.Elevator, r.Voltage, r.IRudder, r.IElevator,
		r.Trim, r.PosRudder, r.PosElevator, r.TempRudder, r.TempElevator,
	} {
		putF32(buf, 8+4*i, v)
	}
	return buf, nil
}

// GPSReading is a navigation solution from the GPS receiver. Unlike the
// other layouts, bytes 1 to 7 carry fix data and the device timestamp sits
// at offset 12.
type GPSReading struct {
	Header
	FixMode    uint8  `json:"fixmode"`
	PDOP       uint16 `json:"PDOP"`
	Year       uint16 `json:"year"`
	ITOW       uint32 `json:"iTow"`
	Longitude  int32  `json:"longitude"`
	Latitude   int32  `json:"latitude"`
	Height     int32  `json:"height"`
	HAcc       uint32 `json:"hAcc"`
	VAcc       uint32 `json:"vAcc"`
	GSpeed     int32  `json:"gspeed"`
	HeadMotion int32  `json:"headMotion"`
}

// MarshalBinary encodes the reading in its 44 byte wire layout.
func (r *GPSReading) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 44)
	buf[0] = uint8(GPS)
	buf[1] = r.FixMode
	binary.LittleEndian.PutUint16(buf[2:4], r.PDOP)
	binary.LittleEndian.PutUint16(buf[4:6], r.Year)
	for i, v := range []uint32{
		r.ITOW, r.Timestamp, uint32(r.Longitude), uint32(r.Latitude), uint32(r.Height),
		r.HAcc, r.VAcc, uint32(r.GSpeed), uint32(r.HeadMotion),
	} {
		binary.LittleEndian.PutUint32(buf[8+4*i:], v)
	}
	return buf, nil
}

// PowerMeterReading is the pilot's pedal power relayed over BLE. Power sits
// in reserved header bytes 2 and 3.
type PowerMeterReading struct {
	Header
	Power   int16   `json:"power"`
	Cadence float64 `json:"cadence"`
}

// MarshalBinary encodes the reading in its 16 byte wire layout.
func (r *PowerMeterReading) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 16)
	putHeader(buf, BLEPowerMeter, r.Timestamp)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(r.Power))
	binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(r.Cadence))
	return buf, nil
}

// HumidityReading is a relative humidity and temperature sample.
type HumidityReading struct {
	Header
	Humidity    float32 `json:"humidity"`
	Temperature float32 `json:"temperature"`
}

// MarshalBinary encodes the reading in its 16 byte wire layout.
func (r *HumidityReading) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 16)
	putHeader(buf, Humidity, r.Timestamp)
	putF32(buf, 8, r.Humidity)
	putF32(buf, 12, r.Temperature)
	return buf, nil
}

// PCSenderReading echoes the ground station's target position and a block
// of opaque payload bytes.
type PCSenderReading struct {
	Header
	TargetLongitude uint32   `json:"target_longitude"`
	TargetLatitude  uint32   `json:"target_latitude"`
	AdditionalData  [32]byte `json:"additional_data"`
}

// MarshalBinary encodes the reading in its 48 byte wire layout.
func (r *PCSenderReading) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 48)
	putHeader(buf, PCSender, r.Timestamp)
	binary.LittleEndian.PutUint32(buf[8:12], r.TargetLongitude)
	binary.LittleEndian.PutUint32(buf[12:16], r.TargetLatitude)
	copy(buf[16:48], r.AdditionalData[:])
	return buf, nil
}

func f32(frame []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(frame[off : off+4]))
}

func f64(frame []byte, off int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(frame[off : off+8]))
}

func putF32(buf []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
}
