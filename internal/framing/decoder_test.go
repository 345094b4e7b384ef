package framing

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/telemetry.report/internal/monitoring"
)

func collect(d *Decoder, chunks ...[]byte) []Frame {
	var frames []Frame
	for _, c := range chunks {
		d.Feed(c, func(f Frame) { frames = append(frames, f) })
	}
	return frames
}

func mustDecoder(t *testing.T, mode Mode, capacity int, opts ...Option) *Decoder {
	t.Helper()
	d, err := NewDecoder(mode, capacity, opts...)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	return d
}

func TestNewDecoder(t *testing.T) {
	d := mustDecoder(t, ZeroByteStuffed, 0)
	if d.Capacity() != DefaultCapacity {
		t.Errorf("Capacity() = %d, want %d", d.Capacity(), DefaultCapacity)
	}
	if d.Mode() != ZeroByteStuffed {
		t.Errorf("Mode() = %v", d.Mode())
	}

	if _, err := NewDecoder(Mode(9), 16); err == nil {
		t.Error("expected error for unknown mode")
	}
	if _, err := NewDecoder(LineTerminated, -1); err == nil {
		t.Error("expected error for negative capacity")
	}
}

func TestDecoder_Raw(t *testing.T) {
	d := mustDecoder(t, Raw, 8)

	first := []byte{0x50, 0x01, 0x02}
	frames := collect(d, first, nil, []byte{}, []byte("0123456789abcdef"))

	want := []Frame{Frame(first), Frame("0123456789abcdef")}
	if diff := cmp.Diff(want, frames); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}

	// emitted frames must not alias the caller's read buffer
	first[0] = 0xFF
	if frames[0][0] != 0x50 {
		t.Error("raw frame aliases the input chunk")
	}
	if d.Buffered() != 0 {
		t.Errorf("raw mode buffered %d bytes", d.Buffered())
	}
}

func TestDecoder_LineTerminated(t *testing.T) {
	d := mustDecoder(t, LineTerminated, 64)

	frames := collect(d, []byte("A,B\n"), []byte("C\n"))
	want := []Frame{Frame("A,B\n"), Frame("C\n")}
	if diff := cmp.Diff(want, frames); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestDecoder_LineTerminatedAcrossChunks(t *testing.T) {
	d := mustDecoder(t, LineTerminated, 64)

	frames := collect(d, []byte("A,"), []byte("B\nC"), []byte("\nD"))
	want := []Frame{Frame("A,B\n"), Frame("C\n")}
	if diff := cmp.Diff(want, frames); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
	if d.Buffered() != 1 {
		t.Errorf("Buffered() = %d, want 1 pending byte", d.Buffered())
	}
}

func TestDecoder_ZeroByteStuffedRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{0x50, 0x01, 0x02, 0x03, 0xE8, 0x03, 0x01, 0x02},
		bytes.Repeat([]byte{0x7F}, 300),
		{0x90, 0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00},
	}

	for _, p := range payloads {
		d := mustDecoder(t, ZeroByteStuffed, DefaultCapacity)
		frames := collect(d, EncodeFrame(p))
		if len(frames) != 1 {
			t.Fatalf("got %d frames, want 1", len(frames))
		}
		if !bytes.Equal(frames[0], p) {
			t.Errorf("frame = %x, want %x", frames[0], p)
		}
		if d.Buffered() != 0 {
			t.Errorf("accumulator not reset, %d bytes left", d.Buffered())
		}
	}
}

func TestDecoder_ZeroByteStuffedSplitReads(t *testing.T) {
	d := mustDecoder(t, ZeroByteStuffed, DefaultCapacity)
	first := []byte{0x50, 0x11, 0x22, 0x33}
	second := []byte{0x90, 0x44, 0x00, 0x55}

	stream := append(EncodeFrame(first), EncodeFrame(second)...)
	var chunks [][]byte
	for i := 0; i < len(stream); i += 3 {
		end := min(i+3, len(stream))
		chunks = append(chunks, stream[i:end])
	}

	frames := collect(d, chunks...)
	want := []Frame{Frame(first), Frame(second)}
	if diff := cmp.Diff(want, frames); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestDecoder_ZeroByteStuffedMalformedSpan(t *testing.T) {
	_, restore := monitoring.Capture()
	defer restore()

	var decodeErrs []error
	d := mustDecoder(t, ZeroByteStuffed, DefaultCapacity, WithOnDecodeError(func(err error, span []byte) {
		decodeErrs = append(decodeErrs, err)
	}))

	good := []byte{0x50, 0x01}
	stream := append([]byte{0x05, 0x11, 0x00}, EncodeFrame(good)...)

	frames := collect(d, stream)
	if len(frames) != 1 || !bytes.Equal(frames[0], good) {
		t.Fatalf("frames = %x, want only the well-formed payload", frames)
	}
	if len(decodeErrs) != 1 || !errors.Is(decodeErrs[0], ErrCOBSTruncated) {
		t.Errorf("decode errors = %v, want one ErrCOBSTruncated", decodeErrs)
	}
	if d.Buffered() != 0 {
		t.Errorf("accumulator not reset after decode failure")
	}
}

func TestDecoder_OverflowForcesFrameOfCapacity(t *testing.T) {
	_, restore := monitoring.Capture()
	defer restore()

	const capacity = 32
	for _, mode := range []Mode{ZeroByteStuffed, LineTerminated} {
		t.Run(mode.String(), func(t *testing.T) {
			overflows := 0
			d := mustDecoder(t, mode, capacity, WithOnOverflow(func(f Frame) { overflows++ }))

			input := bytes.Repeat([]byte{0x41}, capacity+10)
			var frames []Frame
			for _, b := range input {
				d.Feed([]byte{b}, func(f Frame) { frames = append(frames, f) })
				if d.Buffered() > capacity {
					t.Fatalf("accumulator grew to %d bytes, capacity %d", d.Buffered(), capacity)
				}
			}

			if len(frames) != 1 {
				t.Fatalf("got %d frames, want 1", len(frames))
			}
			if len(frames[0]) != capacity {
				t.Errorf("forced frame is %d bytes, want %d", len(frames[0]), capacity)
			}
			if overflows != 1 {
				t.Errorf("overflow callback ran %d times, want 1", overflows)
			}
			if d.Buffered() != 10 {
				t.Errorf("Buffered() = %d, want 10", d.Buffered())
			}
		})
	}
}

func TestDecoder_TerminatorAtCapacityIsNotOverflow(t *testing.T) {
	overflows := 0
	d := mustDecoder(t, LineTerminated, 4, WithOnOverflow(func(Frame) { overflows++ }))

	frames := collect(d, []byte("abc\n"))
	if len(frames) != 1 || string(frames[0]) != "abc\n" {
		t.Fatalf("frames = %q", frames)
	}
	if overflows != 0 {
		t.Errorf("terminator in the last slot was treated as overflow")
	}
}

func TestDecoder_LogsOverflow(t *testing.T) {
	captured, restore := monitoring.Capture()
	defer restore()

	d := mustDecoder(t, LineTerminated, 4)
	collect(d, []byte("abcdef"))

	lines := captured.Lines()
	if len(lines) != 1 {
		t.Fatalf("logged %d lines, want 1: %v", len(lines), lines)
	}
	if !bytes.Contains([]byte(lines[0]), []byte("overflow")) {
		t.Errorf("log line %q does not mention overflow", lines[0])
	}
}
