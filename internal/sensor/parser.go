// Package sensor turns frames into typed sensor readings.
//
// Every frame starts with a one byte discriminant, three reserved bytes and
// a little-endian uint32 device timestamp, followed by fixed-offset
// little-endian measurements defined per type (see Registry). A frame that
// is too short, carries an unknown discriminant or has no registered layout
// is rejected with an error the caller logs before moving on; nothing here
// is fatal.
package sensor

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/banshee-data/telemetry.report/internal/timeutil"
)

var (
	ErrFrameTooShort       = errors.New("frame too short")
	ErrUnknownDiscriminant = errors.New("unknown discriminant")
	ErrNoDecoder           = errors.New("no layout registered")
	ErrPayloadTooShort     = errors.New("frame shorter than sensor layout")
)

// Parser decodes frames using a Registry and stamps readings with a Clock.
type Parser struct {
	clock    timeutil.Clock
	registry *Registry
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithRegistry replaces the default layout registry.
func WithRegistry(r *Registry) ParserOption {
	return func(p *Parser) {
		if r != nil {
			p.registry = r
		}
	}
}

// NewParser returns a parser using the built-in layouts. A nil clock uses
// the wall clock.
func NewParser(clock timeutil.Clock, opts ...ParserOption) *Parser {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	p := &Parser{
		clock:    clock,
		registry: NewRegistry(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Registry returns the layout registry the parser decodes with.
func (p *Parser) Registry() *Registry { return p.registry }

// Parse decodes one frame. The frame is not retained.
func (p *Parser) Parse(frame []byte) (Reading, error) {
	if len(frame) < HeaderLen {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrFrameTooShort, len(frame), HeaderLen)
	}

	t := Type(frame[0])
	if !t.Valid() {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownDiscriminant, frame[0])
	}

	layout, ok := p.registry.Lookup(t)
	if !ok {
		return nil, fmt.Errorf("%w for %s (0x%02x)", ErrNoDecoder, t, uint8(t))
	}
	if len(frame) < layout.MinLen {
		return nil, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrPayloadTooShort, t, layout.MinLen, len(frame))
	}

	r := layout.Decode(frame)
	if r == nil {
		return nil, fmt.Errorf("%w for %s: decoder returned nothing", ErrNoDecoder, t)
	}
	r.header().stamp(p.clock.Now())
	return r, nil
}

func leU16(frame []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(frame[off : off+2])
}

func leU32(frame []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(frame[off : off+4])
}
