package serialmux

import (
	"fmt"

	"go.bug.st/serial"

	"github.com/banshee-data/telemetry.report/internal/framing"
)

// NewRealSerialMux opens the serial port at path, applies the read timeout
// from opts and returns a SerialMux decoding its stream with decoder.
func NewRealSerialMux(path string, opts PortOptions, decoder *framing.Decoder, muxOpts ...Option) (*SerialMux[serial.Port], error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", path, err)
	}

	return NewSerialMux[serial.Port](port, decoder, muxOpts...), nil
}

// ListPorts returns the serial ports present on the host.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}
