// Serialmux owns the serial device: it reads the byte stream, runs the frame
// decoder over it and hands frames, in stream order, to a single pipeline
// consumer. Debug clients can additionally tap the frame stream without
// affecting the pipeline.
package serialmux

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"tailscale.com/tsweb"

	"github.com/banshee-data/telemetry.report/internal/framing"
	"github.com/banshee-data/telemetry.report/internal/monitoring"
)

var (
	ErrWriteFailed    = fmt.Errorf("failed to write to serial port")
	ErrMonitorRunning = errors.New("serial monitor already started")
)

const (
	defaultQueueSize      = 4096
	defaultReadBufferSize = 1024
	defaultErrorBackoff   = 100 * time.Millisecond
	tapBufferSize         = 64
)

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// Subscribe creates a tap channel receiving a best-effort copy of every
	// decoded frame. The channel ID is used when unsubscribing.
	Subscribe() (string, chan framing.Frame)
	// Unsubscribe removes a tap channel and closes it.
	Unsubscribe(string)
	// Write sends raw bytes to the device.
	Write([]byte) error
	// Monitor reads the serial port and decodes frames until ctx is done, the
	// port is closed, or the stream ends.
	Monitor(context.Context) error
	// Frames is the ordered frame channel consumed by the pipeline. It is
	// closed when Monitor returns.
	Frames() <-chan framing.Frame
	// State reports the connection state.
	State() ConnState
	// Close closes all tap channels and closes the serial port.
	Close() error

	// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP
	// mux served at /debug/. These routes are accessible only over
	// localhost/via Tailscale and are not publicly accessible.
	AttachAdminRoutes(*http.ServeMux)
}

// Option configures a SerialMux.
type Option func(*muxOptions)

type muxOptions struct {
	queueSize      int
	readBufferSize int
	errorBackoff   time.Duration
	metrics        *monitoring.PipelineMetrics
}

// WithQueueSize sets the capacity of the ordered frame channel.
func WithQueueSize(n int) Option {
	return func(o *muxOptions) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithReadBufferSize sets the size of the buffer passed to each port Read.
func WithReadBufferSize(n int) Option {
	return func(o *muxOptions) {
		if n > 0 {
			o.readBufferSize = n
		}
	}
}

// WithErrorBackoff sets the pause after a non-timeout read error.
func WithErrorBackoff(d time.Duration) Option {
	return func(o *muxOptions) {
		if d >= 0 {
			o.errorBackoff = d
		}
	}
}

// WithMetrics records byte, frame and error counts.
func WithMetrics(m *monitoring.PipelineMetrics) Option {
	return func(o *muxOptions) {
		o.metrics = m
	}
}

// SerialMux decodes frames from a single serial port.
type SerialMux[T SerialPorter] struct {
	port    T
	decoder *framing.Decoder
	opts    muxOptions
	frames  chan framing.Frame
	state   connState
	running atomic.Bool
	read    atomic.Uint64
	pending atomic.Int64

	subscribers  map[string]chan framing.Frame
	subscriberMu sync.Mutex
	writeMu      sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// NewSerialMux creates a SerialMux reading from port and framing the stream
// with decoder. The decoder is owned by the mux from here on.
func NewSerialMux[T SerialPorter](port T, decoder *framing.Decoder, opts ...Option) *SerialMux[T] {
	o := muxOptions{
		queueSize:      defaultQueueSize,
		readBufferSize: defaultReadBufferSize,
		errorBackoff:   defaultErrorBackoff,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &SerialMux[T]{
		port:        port,
		decoder:     decoder,
		opts:        o,
		frames:      make(chan framing.Frame, o.queueSize),
		subscribers: make(map[string]chan framing.Frame),
	}
	s.state.set(Connected)
	o.metrics.SetConnected(true)
	return s
}

// Mode returns the framing mode of the mux's decoder.
func (s *SerialMux[T]) Mode() framing.Mode { return s.decoder.Mode() }

func (s *SerialMux[T]) Frames() <-chan framing.Frame { return s.frames }

func (s *SerialMux[T]) State() ConnState { return s.state.get() }

func (s *SerialMux[T]) Subscribe() (string, chan framing.Frame) {
	id := uuid.NewString()
	ch := make(chan framing.Frame, tapBufferSize)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Write sends p to the device.
func (s *SerialMux[T]) Write(p []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	n, err := s.port.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads the serial port and feeds the frame decoder. Read timeouts
// are retried silently; other read errors are logged and the loop carries on
// after a short pause, so a failing device degrades to silence. Monitor may
// only be called once; Frames is closed when it returns.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrMonitorRunning
	}
	defer close(s.frames)
	defer func() {
		s.state.set(Disconnected)
		s.opts.metrics.SetConnected(false)
	}()

	buf := make([]byte, s.opts.readBufferSize)
	var pending []framing.Frame
	emit := func(f framing.Frame) { pending = append(pending, f) }

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.isClosing() {
			return nil
		}

		n, err := s.port.Read(buf)
		if n > 0 {
			s.state.set(Reading)
			s.read.Add(uint64(n))
			s.opts.metrics.AddBytes(n)
			s.decoder.Feed(buf[:n], emit)
			s.pending.Store(int64(s.decoder.Buffered()))
			for i, f := range pending {
				if err := s.publish(ctx, f); err != nil {
					return err
				}
				pending[i] = nil
			}
			pending = pending[:0]
		}
		if err == nil {
			continue
		}

		switch {
		case isTimeout(err):
			continue
		case s.isClosing() || isPortClosed(err):
			return nil
		case errors.Is(err, io.EOF):
			monitoring.Logf("serialmux: end of stream after %d buffered bytes", s.decoder.Buffered())
			return nil
		default:
			monitoring.Logf("serialmux: read error: %v", err)
			s.state.set(Error)
			s.opts.metrics.ReadError()
			if !sleepCtx(ctx, s.opts.errorBackoff) {
				return ctx.Err()
			}
		}
	}
}

// publish hands f to tap subscribers without blocking, then to the ordered
// pipeline channel, blocking only if the queue is full.
func (s *SerialMux[T]) publish(ctx context.Context, f framing.Frame) error {
	s.opts.metrics.FrameDecoded(s.decoder.Mode().String())

	s.subscriberMu.Lock()
	for _, ch := range s.subscribers {
		select {
		case ch <- f:
		default:
			// slow tap, skip rather than stall the read loop
		}
	}
	s.subscriberMu.Unlock()

	select {
	case s.frames <- f:
		s.opts.metrics.SetQueueDepth(len(s.frames))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SerialMux[T]) isClosing() bool {
	s.closingMu.Lock()
	defer s.closingMu.Unlock()
	return s.closing
}

func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	if s.closing {
		s.closingMu.Unlock()
		return nil
	}
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subscriberMu.Unlock()
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("serial", "serial port state and framing mode", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "state: %s\nframing: %s\nread: %s\nbuffered: %d\nqueued: %d\n",
			s.State(), s.decoder.Mode(), humanize.Bytes(s.read.Load()), s.pending.Load(), len(s.frames))
	})

	// API endpoint to write raw bytes to the serial port, given as text or hex
	debug.HandleSilentFunc("serial-write", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		payload, err := writePayload(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.Write(payload); err != nil {
			http.Error(w, "Failed to write to serial port", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "Wrote %d bytes to serial port", len(payload))
	})

	// API endpoint to issue Server-Sent Events (SSE) for every decoded frame.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case frame, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", hex.EncodeToString(frame)); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}

func writePayload(r *http.Request) ([]byte, error) {
	if h := strings.TrimSpace(r.FormValue("hex")); h != "" {
		b, err := hex.DecodeString(strings.ReplaceAll(h, " ", ""))
		if err != nil {
			return nil, fmt.Errorf("invalid hex payload: %v", err)
		}
		return b, nil
	}
	if data := r.FormValue("data"); data != "" {
		return []byte(data), nil
	}
	return nil, errors.New("missing data or hex payload")
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
