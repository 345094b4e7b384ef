package framing

import (
	"fmt"
	"strings"
)

// Mode selects how frames are delimited within the device byte stream. It is
// fixed when a Decoder is built.
type Mode int

const (
	// Raw emits every non-empty read verbatim; message boundaries are assumed
	// to coincide with read boundaries.
	Raw Mode = iota
	// ZeroByteStuffed accumulates COBS-encoded bytes up to a 0x00 delimiter
	// and emits the decoded payload.
	ZeroByteStuffed
	// LineTerminated accumulates bytes up to and including a 0x0A terminator.
	LineTerminated
)

// ParseMode maps a configuration string onto a Mode. Accepted spellings follow
// the command line options of earlier releases (None, COBS, CRLF).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "raw", "none":
		return Raw, nil
	case "cobs", "zero", "zerobytestuffed":
		return ZeroByteStuffed, nil
	case "line", "lf", "crlf", "lineterminated":
		return LineTerminated, nil
	default:
		return Raw, fmt.Errorf("unknown framing mode %q: expected raw, cobs or line", s)
	}
}

func (m Mode) String() string {
	switch m {
	case Raw:
		return "raw"
	case ZeroByteStuffed:
		return "cobs"
	case LineTerminated:
		return "line"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// accumulates reports whether the mode buffers bytes across reads.
func (m Mode) accumulates() bool {
	return m == ZeroByteStuffed || m == LineTerminated
}
