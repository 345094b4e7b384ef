package framing

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
)

func TestEncodeCOBS_KnownVectors(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    []byte
	}{
		{"empty", []byte{}, []byte{0x01}},
		{"single zero", []byte{0x00}, []byte{0x01, 0x01}},
		{"two zeros", []byte{0x00, 0x00}, []byte{0x01, 0x01, 0x01}},
		{"zero in middle", []byte{0x11, 0x22, 0x00, 0x33}, []byte{0x03, 0x11, 0x22, 0x02, 0x33}},
		{"no zeros", []byte{0x11, 0x22, 0x33, 0x44}, []byte{0x05, 0x11, 0x22, 0x33, 0x44}},
		{"trailing zeros", []byte{0x11, 0x00, 0x00, 0x00}, []byte{0x02, 0x11, 0x01, 0x01, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeCOBS(tt.payload)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("EncodeCOBS(%x) = %x, want %x", tt.payload, got, tt.want)
			}
			if bytes.IndexByte(got, 0x00) >= 0 {
				t.Errorf("encoded output %x contains a zero byte", got)
			}
		})
	}
}

func TestEncodeCOBS_LongRun(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 600)
	encoded := EncodeCOBS(payload)
	if bytes.IndexByte(encoded, 0x00) >= 0 {
		t.Fatal("encoded output contains a zero byte")
	}
	if encoded[0] != 0xFF {
		t.Errorf("first code = %#x, want 0xff for a full block", encoded[0])
	}

	decoded, err := DecodeCOBS(append(encoded, 0x00))
	if err != nil {
		t.Fatalf("DecodeCOBS: %v", err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Errorf("round trip mismatch: got %d bytes, want %d", len(decoded), len(payload))
	}
}

func TestDecodeCOBS_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		payload := make([]byte, 1+rng.Intn(700))
		rng.Read(payload)
		if i%2 == 0 {
			// half the cases carry no interior zeros at all
			for j := range payload {
				if payload[j] == 0 {
					payload[j] = 1
				}
			}
		}

		got, err := DecodeCOBS(EncodeFrame(payload))
		if err != nil {
			t.Fatalf("case %d: DecodeCOBS: %v", i, err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("case %d: round trip mismatch", i)
		}
	}
}

func TestDecodeCOBS_Malformed(t *testing.T) {
	tests := []struct {
		name string
		span []byte
		want error
	}{
		{"lone delimiter", []byte{0x00}, ErrCOBSEmpty},
		{"empty", nil, ErrCOBSEmpty},
		{"code overruns span", []byte{0x05, 0x11, 0x22, 0x00}, ErrCOBSTruncated},
		{"zero inside block", []byte{0x04, 0x11, 0x00, 0x22, 0x00}, ErrCOBSZeroInBlock},
		{"zero code", []byte{0x02, 0x11, 0x00, 0x01}, ErrCOBSZeroInBlock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCOBS(tt.span)
			if !errors.Is(err, tt.want) {
				t.Errorf("DecodeCOBS(%x) error = %v, want %v", tt.span, err, tt.want)
			}
			if got != nil {
				t.Errorf("DecodeCOBS(%x) returned partial payload %x", tt.span, got)
			}
		})
	}
}
