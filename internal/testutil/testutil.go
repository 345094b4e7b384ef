// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"encoding/binary"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/telemetry.report/internal/framing"
)

// Discriminants used by the packet builders.
const (
	UltrasonicID = 0x50
	BarometerID  = 0x90
	PitotID      = 0x30
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewLocalRequest creates a test HTTP request from a loopback address, which
// tsweb debug routes require.
func NewLocalRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// Packet builds a wire packet: discriminant, three reserved bytes, the
// little-endian device timestamp, then each value as a little-endian
// float32.
func Packet(id uint8, ts uint32, values ...float32) []byte {
	p := make([]byte, 8+4*len(values))
	p[0] = id
	binary.LittleEndian.PutUint32(p[4:8], ts)
	for i, v := range values {
		binary.LittleEndian.PutUint32(p[8+4*i:], math.Float32bits(v))
	}
	return p
}

// UltrasonicPacket builds a 16 byte Ultrasonic packet.
func UltrasonicPacket(ts uint32, altitude, temperature float32) []byte {
	return Packet(UltrasonicID, ts, altitude, temperature)
}

// BarometerPacket builds a 16 byte Barometer packet.
func BarometerPacket(ts uint32, pressure, temperature float32) []byte {
	return Packet(BarometerID, ts, pressure, temperature)
}

// COBSStream concatenates packets as zero-byte-stuffed frames.
func COBSStream(packets ...[]byte) []byte {
	var out []byte
	for _, p := range packets {
		out = append(out, framing.EncodeFrame(p)...)
	}
	return out
}
