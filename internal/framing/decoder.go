// Package framing reconstructs discrete frames from the chunked byte stream
// read off a serial device.
//
// A Decoder is owned by a single read loop. It never holds more than its
// capacity in bytes: when a ZeroByteStuffed or LineTerminated frame grows to
// the capacity without a terminator, the buffered bytes are force-emitted and
// the accumulator starts over, so the loop always makes forward progress.
package framing

import (
	"encoding/hex"
	"fmt"

	"github.com/banshee-data/telemetry.report/internal/monitoring"
)

// DefaultCapacity is the accumulator size used when none is configured.
const DefaultCapacity = 1024

// Frame is one reconstructed message. Frames handed out by a Decoder are
// fresh copies and may be retained by the receiver.
type Frame []byte

func (f Frame) String() string {
	return hex.EncodeToString(f)
}

// Decoder turns raw read chunks into frames according to its Mode.
type Decoder struct {
	mode     Mode
	capacity int
	acc      []byte

	onOverflow    func(Frame)
	onDecodeError func(err error, span []byte)
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithOnOverflow registers a callback invoked with each force-emitted frame.
func WithOnOverflow(fn func(Frame)) Option {
	return func(d *Decoder) {
		d.onOverflow = fn
	}
}

// WithOnDecodeError registers a callback invoked when a zero-byte-stuffed span
// fails to decode. The span is only valid for the duration of the call.
func WithOnDecodeError(fn func(err error, span []byte)) Option {
	return func(d *Decoder) {
		d.onDecodeError = fn
	}
}

// NewDecoder builds a Decoder for mode with an accumulator of capacity bytes.
// A zero capacity selects DefaultCapacity.
func NewDecoder(mode Mode, capacity int, opts ...Option) (*Decoder, error) {
	switch mode {
	case Raw, ZeroByteStuffed, LineTerminated:
	default:
		return nil, fmt.Errorf("unsupported framing mode %v", mode)
	}
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	if capacity < 0 {
		return nil, fmt.Errorf("invalid accumulator capacity %d", capacity)
	}

	d := &Decoder{
		mode:     mode,
		capacity: capacity,
	}
	if mode.accumulates() {
		d.acc = make([]byte, 0, capacity)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Mode returns the framing mode the decoder was built with.
func (d *Decoder) Mode() Mode { return d.mode }

// Capacity returns the accumulator capacity.
func (d *Decoder) Capacity() int { return d.capacity }

// Buffered returns the number of bytes held in the accumulator.
func (d *Decoder) Buffered() int { return len(d.acc) }

// Reset discards any partially accumulated frame.
func (d *Decoder) Reset() { d.acc = d.acc[:0] }

// Feed consumes one chunk in arrival order and calls emit for every frame it
// completes, in stream order.
func (d *Decoder) Feed(chunk []byte, emit func(Frame)) {
	if d.mode == Raw {
		if len(chunk) > 0 {
			emit(clone(chunk))
		}
		return
	}

	for _, b := range chunk {
		d.acc = append(d.acc, b)

		switch {
		case d.mode == ZeroByteStuffed && b == 0x00:
			d.finishStuffed(emit)
		case d.mode == LineTerminated && b == '\n':
			emit(clone(d.acc))
			d.Reset()
		case len(d.acc) >= d.capacity:
			d.overflow(emit)
		}
	}
}

func (d *Decoder) finishStuffed(emit func(Frame)) {
	payload, err := DecodeCOBS(d.acc)
	if err != nil {
		monitoring.Logf("framing: dropping %d byte span: %v", len(d.acc), err)
		if d.onDecodeError != nil {
			d.onDecodeError(err, d.acc)
		}
		d.Reset()
		return
	}
	d.Reset()
	emit(Frame(payload))
}

func (d *Decoder) overflow(emit func(Frame)) {
	frame := clone(d.acc)
	d.Reset()
	monitoring.Logf("framing: buffer overflow at %d bytes without a %s terminator, forcing frame", len(frame), d.mode)
	if d.onOverflow != nil {
		d.onOverflow(frame)
	}
	emit(frame)
}

func clone(b []byte) Frame {
	out := make(Frame, len(b))
	copy(out, b)
	return out
}
