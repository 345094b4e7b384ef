package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons used as the "reason" label on FramesDropped.
const (
	ReasonDecodeError  = "decode_error"
	ReasonOverflow     = "overflow"
	ReasonTooShort     = "too_short"
	ReasonUnknownType  = "unknown_type"
	ReasonNoDecoder    = "no_decoder"
	ReasonPayloadShort = "payload_short"
	ReasonParseFailure = "parse_failure"
)

// PipelineMetrics holds the ingestion pipeline's Prometheus collectors. A nil
// *PipelineMetrics is valid and records nothing.
type PipelineMetrics struct {
	BytesRead       prometheus.Counter
	ReadErrors      prometheus.Counter
	FramesDecoded   *prometheus.CounterVec
	FramesDropped   *prometheus.CounterVec
	ReadingsStored  *prometheus.CounterVec
	QueueDepth      prometheus.Gauge
	ParseDuration   prometheus.Histogram
	SerialConnected prometheus.Gauge
}

// NewPipelineMetrics creates the collectors and registers them with reg. A
// nil reg skips registration, which keeps tests independent of the default
// registry.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		BytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telemetry",
			Subsystem: "serial",
			Name:      "bytes_read_total",
			Help:      "Total number of bytes read from the serial device",
		}),
		ReadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telemetry",
			Subsystem: "serial",
			Name:      "read_errors_total",
			Help:      "Total number of non-timeout read errors from the serial device",
		}),
		FramesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetry",
			Subsystem: "framing",
			Name:      "frames_total",
			Help:      "Total number of frames emitted by the frame decoder",
		}, []string{"mode"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetry",
			Subsystem: "pipeline",
			Name:      "frames_dropped_total",
			Help:      "Total number of frames or spans discarded, by reason",
		}, []string{"reason"}),
		ReadingsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetry",
			Subsystem: "pipeline",
			Name:      "readings_total",
			Help:      "Total number of readings written to the latest-value store",
		}, []string{"sensor"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "telemetry",
			Subsystem: "pipeline",
			Name:      "queue_depth",
			Help:      "Frames waiting between the decoder and the parser",
		}),
		ParseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "telemetry",
			Subsystem: "pipeline",
			Name:      "parse_duration_seconds",
			Help:      "Time spent parsing one frame and updating the store",
			Buckets:   []float64{1e-6, 5e-6, 1e-5, 5e-5, 1e-4, 5e-4, 1e-3},
		}),
		SerialConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "telemetry",
			Subsystem: "serial",
			Name:      "connected",
			Help:      "Serial device status (0=disconnected, 1=connected)",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.BytesRead,
			m.ReadErrors,
			m.FramesDecoded,
			m.FramesDropped,
			m.ReadingsStored,
			m.QueueDepth,
			m.ParseDuration,
			m.SerialConnected,
		)
	}
	return m
}

// AddBytes counts bytes read from the device.
func (m *PipelineMetrics) AddBytes(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesRead.Add(float64(n))
}

// ReadError counts one non-timeout read error.
func (m *PipelineMetrics) ReadError() {
	if m == nil {
		return
	}
	m.ReadErrors.Inc()
}

// FrameDecoded counts one frame emitted under the given framing mode.
func (m *PipelineMetrics) FrameDecoded(mode string) {
	if m == nil {
		return
	}
	m.FramesDecoded.WithLabelValues(mode).Inc()
}

// Dropped counts one discarded frame or span.
func (m *PipelineMetrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.FramesDropped.WithLabelValues(reason).Inc()
}

// Stored counts one reading written to the store.
func (m *PipelineMetrics) Stored(sensor string) {
	if m == nil {
		return
	}
	m.ReadingsStored.WithLabelValues(sensor).Inc()
}

// SetQueueDepth records the number of frames waiting for the parser.
func (m *PipelineMetrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// ObserveParse records one parse-and-store duration in seconds.
func (m *PipelineMetrics) ObserveParse(seconds float64) {
	if m == nil {
		return
	}
	m.ParseDuration.Observe(seconds)
}

// SetConnected records whether the serial device is open.
func (m *PipelineMetrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.SerialConnected.Set(1)
		return
	}
	m.SerialConnected.Set(0)
}
