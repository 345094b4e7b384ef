package serialmux

import (
	"testing"
	"time"

	"go.bug.st/serial"
)

func TestPortOptions_Normalize_Defaults(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N", ReadTimeout: DefaultReadTimeout}
	if opts != want {
		t.Errorf("Normalize() = %+v, want %+v", opts, want)
	}
}

func TestPortOptions_Normalize_ParityVariations(t *testing.T) {
	tests := map[string]string{
		"":     "N",
		"none": "N",
		" e ":  "E",
		"Even": "E",
		"o":    "O",
		"ODD":  "O",
	}
	for in, want := range tests {
		opts, err := PortOptions{Parity: in}.Normalize()
		if err != nil {
			t.Errorf("Normalize(parity %q): %v", in, err)
			continue
		}
		if opts.Parity != want {
			t.Errorf("parity %q normalised to %q, want %q", in, opts.Parity, want)
		}
	}
}

func TestPortOptions_Normalize_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opts PortOptions
	}{
		{"data bits too small", PortOptions{DataBits: 4}},
		{"data bits too large", PortOptions{DataBits: 9}},
		{"stop bits", PortOptions{StopBits: 3}},
		{"parity", PortOptions{Parity: "mark"}},
		{"negative timeout", PortOptions{ReadTimeout: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.opts.Normalize(); err == nil {
				t.Errorf("Normalize(%+v) succeeded, want error", tt.opts)
			}
		})
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "E"}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode: %v", err)
	}
	if mode.BaudRate != 9600 || mode.DataBits != 7 {
		t.Errorf("mode = %+v", mode)
	}
	if mode.StopBits != serial.TwoStopBits {
		t.Errorf("StopBits = %v, want TwoStopBits", mode.StopBits)
	}
	if mode.Parity != serial.EvenParity {
		t.Errorf("Parity = %v, want EvenParity", mode.Parity)
	}

	if _, err := (PortOptions{StopBits: 5}).SerialMode(); err == nil {
		t.Error("expected error for invalid stop bits")
	}
}
