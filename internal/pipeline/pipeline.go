// Package pipeline connects a frame source to the parser and the
// latest-value store.
//
// A Driver runs two goroutines: the source's read/decode loop and a
// parse/store loop. They are joined by the source's frame channel, a single
// producer single consumer queue that preserves stream order. Cancelling
// the context stops the read loop; the parse loop then drains what is left
// in the queue and exits when the channel closes.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/telemetry.report/internal/framing"
	"github.com/banshee-data/telemetry.report/internal/monitoring"
	"github.com/banshee-data/telemetry.report/internal/sensor"
	"github.com/banshee-data/telemetry.report/internal/store"
)

// FrameSource produces frames in stream order. Frames must be closed once
// Monitor returns.
type FrameSource interface {
	Monitor(ctx context.Context) error
	Frames() <-chan framing.Frame
}

// Stats is a point-in-time copy of the pipeline counters.
type Stats struct {
	Frames    uint64            `json:"frames"`
	Readings  uint64            `json:"readings"`
	Dropped   uint64            `json:"dropped"`
	Overflows uint64            `json:"overflows"`
	ByReason  map[string]uint64 `json:"dropped_by_reason,omitempty"`
	LastDrop  string            `json:"last_drop,omitempty"`
}

// Counters accumulates pipeline statistics. It exists separately from the
// Driver so the frame decoder, which is built before the serial port is
// opened, can report overflows and decode failures into the same counters.
type Counters struct {
	frames    atomic.Uint64
	readings  atomic.Uint64
	dropped   atomic.Uint64
	overflows atomic.Uint64

	mu       sync.Mutex
	byReason map[string]uint64
	lastDrop string

	metrics *monitoring.PipelineMetrics
}

// NewCounters returns zeroed counters that also feed m, which may be nil.
func NewCounters(m *monitoring.PipelineMetrics) *Counters {
	return &Counters{
		byReason: make(map[string]uint64),
		metrics:  m,
	}
}

// DecoderOptions returns frame decoder hooks that record overflows and
// malformed zero-byte-stuffed spans.
func (c *Counters) DecoderOptions() []framing.Option {
	return []framing.Option{
		framing.WithOnOverflow(func(framing.Frame) {
			c.overflows.Add(1)
			c.metrics.Dropped(monitoring.ReasonOverflow)
		}),
		framing.WithOnDecodeError(func(err error, _ []byte) {
			c.drop(monitoring.ReasonDecodeError, err)
		}),
	}
}

func (c *Counters) drop(reason string, err error) {
	c.dropped.Add(1)
	c.metrics.Dropped(reason)
	c.mu.Lock()
	c.byReason[reason]++
	if err != nil {
		c.lastDrop = err.Error()
	}
	c.mu.Unlock()
}

// Snapshot copies the counters.
func (c *Counters) Snapshot() Stats {
	s := Stats{
		Frames:    c.frames.Load(),
		Readings:  c.readings.Load(),
		Dropped:   c.dropped.Load(),
		Overflows: c.overflows.Load(),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.byReason) > 0 {
		s.ByReason = make(map[string]uint64, len(c.byReason))
		for k, v := range c.byReason {
			s.ByReason[k] = v
		}
	}
	s.LastDrop = c.lastDrop
	return s
}

// Option configures a Driver.
type Option func(*Driver)

// WithCounters makes the driver record into c instead of private counters.
func WithCounters(c *Counters) Option {
	return func(d *Driver) {
		if c != nil {
			d.counters = c
		}
	}
}

// Driver runs the ingestion pipeline.
type Driver struct {
	source   FrameSource
	parser   *sensor.Parser
	store    *store.Store
	counters *Counters
	running  atomic.Bool
}

// New returns a Driver reading frames from source, parsing them with parser
// and writing readings into st.
func New(source FrameSource, parser *sensor.Parser, st *store.Store, opts ...Option) *Driver {
	d := &Driver{
		source: source,
		parser: parser,
		store:  st,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.counters == nil {
		d.counters = NewCounters(nil)
	}
	return d
}

// Stats returns the current pipeline counters.
func (d *Driver) Stats() Stats { return d.counters.Snapshot() }

// Running reports whether Run is in progress.
func (d *Driver) Running() bool { return d.running.Load() }

// Run starts the read loop and the parse loop and blocks until both have
// finished. Cancellation is a normal shutdown and is not reported as an
// error; any other read loop failure is returned.
func (d *Driver) Run(ctx context.Context) error {
	d.running.Store(true)
	defer d.running.Store(false)

	var wg sync.WaitGroup
	var monitorErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		monitorErr = d.source.Monitor(ctx)
	}()
	go func() {
		defer wg.Done()
		d.parseLoop()
	}()
	wg.Wait()

	if monitorErr != nil && !errors.Is(monitorErr, context.Canceled) {
		return monitorErr
	}
	return nil
}

// parseLoop consumes frames until the source closes its channel. A closed
// channel is the shutdown signal; frames already queued are still parsed.
func (d *Driver) parseLoop() {
	for frame := range d.source.Frames() {
		d.handle(frame)
	}
	monitoring.Logf("pipeline: frame queue closed, parse loop exiting")
}

func (d *Driver) handle(frame framing.Frame) {
	start := time.Now()
	d.counters.frames.Add(1)

	r, err := d.parser.Parse(frame)
	if err != nil {
		reason := dropReason(err)
		monitoring.Logf("pipeline: dropping %d byte frame (%s): %v", len(frame), reason, err)
		d.counters.drop(reason, err)
		return
	}

	d.store.Update(r.SensorType(), r)
	d.counters.readings.Add(1)
	d.counters.metrics.Stored(r.SensorType().String())
	d.counters.metrics.ObserveParse(time.Since(start).Seconds())
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, sensor.ErrFrameTooShort):
		return monitoring.ReasonTooShort
	case errors.Is(err, sensor.ErrUnknownDiscriminant):
		return monitoring.ReasonUnknownType
	case errors.Is(err, sensor.ErrNoDecoder):
		return monitoring.ReasonNoDecoder
	case errors.Is(err, sensor.ErrPayloadTooShort):
		return monitoring.ReasonPayloadShort
	default:
		return monitoring.ReasonParseFailure
	}
}
