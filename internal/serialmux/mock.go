package serialmux

import (
	"bytes"
	"errors"
	"io"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/telemetry.report/internal/framing"
	"github.com/banshee-data/telemetry.report/internal/monitoring"
	"github.com/banshee-data/telemetry.report/internal/sensor"
)

// MockSerialPort implements SerialPorter over an in-process pipe. Writes are
// discarded unless Sink is set.
type MockSerialPort struct {
	r    *io.PipeReader
	Sink io.Writer

	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func (m *MockSerialPort) Read(p []byte) (int, error) { return m.r.Read(p) }

func (m *MockSerialPort) Write(p []byte) (int, error) {
	if m.Sink == nil {
		return len(p), nil
	}
	return m.Sink.Write(p)
}

// Close stops the packet generator, waits for it to exit and unblocks any
// pending Read with io.ErrClosedPipe.
func (m *MockSerialPort) Close() error {
	var err error
	m.once.Do(func() {
		if m.stop != nil {
			close(m.stop)
		}
		if m.r != nil {
			err = m.r.Close()
		}
		if m.stopped != nil {
			<-m.stopped
		}
	})
	return err
}

// NewMockSerialMux creates a SerialMux backed by a generator that emits an
// Ultrasonic and a Barometer packet every interval, encoded for the
// decoder's framing mode. The generator stops when the mux is closed.
// interval must be positive.
func NewMockSerialMux(decoder *framing.Decoder, interval time.Duration, opts ...Option) *SerialMux[*MockSerialPort] {
	r, w := io.Pipe()
	port := &MockSerialPort{
		r:       r,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	go func() {
		defer close(port.stopped)
		defer w.Close()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var tick uint32
		for {
			select {
			case <-port.stop:
				return
			case <-ticker.C:
			}
			tick++
			for _, packet := range MockPackets(tick, interval) {
				if _, err := w.Write(EncodeForMode(decoder.Mode(), packet)); err != nil {
					if !errors.Is(err, io.ErrClosedPipe) {
						monitoring.Logf("serialmux: mock generator stopped: %v", err)
					}
					return
				}
			}
		}
	}()

	return NewSerialMux(port, decoder, opts...)
}

// MockPackets returns the synthetic wire packets for generator tick n.
func MockPackets(n uint32, interval time.Duration) [][]byte {
	ts := n * uint32(interval/time.Millisecond)
	phase := float64(n) / 20

	ultra := &sensor.UltrasonicReading{
		Header:      sensor.Header{ID: uint8(sensor.Ultrasonic), Timestamp: ts},
		Altitude:    float32(120 + 15*math.Sin(phase)),
		Temperature: float32(18 + math.Cos(phase)),
	}
	baro := &sensor.BarometerReading{
		Header:      sensor.Header{ID: uint8(sensor.Barometer), Timestamp: ts},
		Pressure:    float32(1013.25 - 2*math.Sin(phase)),
		Temperature: float32(17.5 + math.Cos(phase)),
	}

	var packets [][]byte
	for _, r := range []interface{ MarshalBinary() ([]byte, error) }{ultra, baro} {
		b, err := r.MarshalBinary()
		if err != nil {
			continue
		}
		packets = append(packets, b)
	}
	return packets
}

// EncodeForMode wraps packet the way a device using mode would put it on the
// wire. Line framing appends a newline without escaping, so packets whose
// bytes contain 0x0A are split on the receiving side.
func EncodeForMode(mode framing.Mode, packet []byte) []byte {
	switch mode {
	case framing.ZeroByteStuffed:
		return framing.EncodeFrame(packet)
	case framing.LineTerminated:
		return append(bytes.Clone(packet), '\n')
	default:
		return bytes.Clone(packet)
	}
}

// TestableSerialPort implements SerialPorter with configurable behaviour for testing.
// It provides fine-grained control over reads, writes, errors, and latency.
type TestableSerialPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// ChunkSize caps the bytes returned per Read, 0 means no cap
	ChunkSize int

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// ReadCalls records the number of Read calls
	ReadCalls int

	// WriteCalls records the number of Write calls
	WriteCalls int

	// ReadTimeout is the current read timeout
	ReadTimeout time.Duration

	// BlockReads makes an empty port behave like a silent device: Read waits
	// up to ReadTimeout for data (returning 0, nil on expiry) or until Close.
	// Without it an empty port reports io.EOF.
	BlockReads bool

	// readCond is used to signal blocked readers
	readCond *sync.Cond
}

// NewTestableSerialPort creates a new TestableSerialPort for testing.
func NewTestableSerialPort() *TestableSerialPort {
	tsp := &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
		ReadTimeout: 10 * time.Millisecond,
	}
	tsp.readCond = sync.NewCond(&tsp.mu)
	return tsp
}

// Read reads from the read buffer, optionally simulating timeouts and errors.
func (t *TestableSerialPort) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadCalls++

	if t.Closed {
		return 0, io.ErrClosedPipe
	}

	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}

	if t.ReadBuffer.Len() == 0 {
		if !t.BlockReads {
			return 0, io.EOF
		}
		deadline := time.AfterFunc(t.ReadTimeout, func() {
			t.mu.Lock()
			t.readCond.Broadcast()
			t.mu.Unlock()
		})
		t.readCond.Wait()
		deadline.Stop()
		if t.Closed {
			return 0, io.ErrClosedPipe
		}
		if t.ReadBuffer.Len() == 0 {
			return 0, nil
		}
	}

	if t.ChunkSize > 0 && len(p) > t.ChunkSize {
		p = p[:t.ChunkSize]
	}
	return t.ReadBuffer.Read(p)
}

// Write writes to the write buffer, optionally simulating errors.
func (t *TestableSerialPort) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.WriteCalls++

	if t.Closed {
		return 0, io.ErrClosedPipe
	}

	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}

	return t.WriteBuffer.Write(p)
}

// Close marks the port as closed.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	t.readCond.Broadcast() // Wake up any blocked readers

	return t.CloseError
}

// SetReadTimeout implements TimeoutSerialPorter.
func (t *TestableSerialPort) SetReadTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return errors.New("read timeout must be positive")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadTimeout = timeout
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Write(data)
	t.readCond.Broadcast()
}

// SetReadError makes the next Read fail with err.
func (t *TestableSerialPort) SetReadError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadError = err
}

// GetWrittenData returns all data written to the port.
func (t *TestableSerialPort) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	return bytes.Clone(t.WriteBuffer.Bytes())
}

// Reads returns the number of Read calls so far.
func (t *TestableSerialPort) Reads() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ReadCalls
}
