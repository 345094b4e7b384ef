package testutil

import (
	"bytes"
	"encoding/binary"
	"math"
	"net/http"
	"testing"
)

func TestAssertHelpers_Pass(t *testing.T) {
	t.Parallel()

	AssertStatusCode(t, http.StatusOK, http.StatusOK)
	AssertNoError(t, nil)
	AssertError(t, http.ErrBodyNotAllowed)
}

func TestNewLocalRequest(t *testing.T) {
	t.Parallel()

	req := NewLocalRequest(http.MethodPost, "/debug/serial", nil)
	if req.RemoteAddr != "127.0.0.1:12345" {
		t.Errorf("RemoteAddr = %q", req.RemoteAddr)
	}
	if req.Method != http.MethodPost || req.URL.Path != "/debug/serial" {
		t.Errorf("request = %s %s", req.Method, req.URL.Path)
	}
	if NewTestRecorder() == nil || NewTestRequest(http.MethodGet, "/") == nil {
		t.Error("nil recorder or request")
	}
}

func TestUltrasonicPacket(t *testing.T) {
	t.Parallel()

	p := UltrasonicPacket(1000, 12.5, 20)
	if len(p) != 16 {
		t.Fatalf("len = %d, want 16", len(p))
	}
	if p[0] != UltrasonicID || !bytes.Equal(p[1:4], []byte{0, 0, 0}) {
		t.Errorf("header = %x", p[:4])
	}
	if ts := binary.LittleEndian.Uint32(p[4:8]); ts != 1000 {
		t.Errorf("timestamp = %d", ts)
	}
	if v := math.Float32frombits(binary.LittleEndian.Uint32(p[8:12])); v != 12.5 {
		t.Errorf("altitude = %v", v)
	}
}

func TestCOBSStream(t *testing.T) {
	t.Parallel()

	stream := COBSStream(BarometerPacket(1, 1013, 20), UltrasonicPacket(2, 1, 1))
	if n := bytes.Count(stream, []byte{0}); n != 2 {
		t.Errorf("stream has %d delimiters, want 2", n)
	}
	if stream[len(stream)-1] != 0 {
		t.Error("stream does not end with a delimiter")
	}
}
