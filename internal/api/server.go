// Package api serves the latest sensor readings over HTTP.
package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/telemetry.report/internal/db"
	"github.com/banshee-data/telemetry.report/internal/framing"
	"github.com/banshee-data/telemetry.report/internal/httputil"
	"github.com/banshee-data/telemetry.report/internal/pipeline"
	"github.com/banshee-data/telemetry.report/internal/sensor"
	"github.com/banshee-data/telemetry.report/internal/serialmux"
	"github.com/banshee-data/telemetry.report/internal/store"
	"github.com/banshee-data/telemetry.report/internal/version"
)

// Server exposes the query interface over the latest-value store. Reads
// never block ingestion beyond the store's per-lookup lock.
type Server struct {
	m        serialmux.SerialMuxInterface
	store    *store.Store
	registry *sensor.Registry
	mode     framing.Mode
	stats    func() pipeline.Stats
	db       *db.DB
	gatherer prometheus.Gatherer
	started  time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithFraming records the framing mode reported on /api/status.
func WithFraming(m framing.Mode) Option {
	return func(s *Server) { s.mode = m }
}

// WithStats supplies pipeline counters for /api/status.
func WithStats(fn func() pipeline.Stats) Option {
	return func(s *Server) { s.stats = fn }
}

// WithDB enables the device profile endpoints.
func WithDB(d *db.DB) Option {
	return func(s *Server) { s.db = d }
}

// WithGatherer serves g on /metrics instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

func NewServer(m serialmux.SerialMuxInterface, st *store.Store, registry *sensor.Registry, opts ...Option) *Server {
	if registry == nil {
		registry = sensor.NewRegistry()
	}
	s := &Server{
		m:        m,
		store:    st,
		registry: registry,
		gatherer: prometheus.DefaultGatherer,
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/data", s.listReadings)
	mux.HandleFunc("/api/data/{sensor}", s.showReading)
	mux.HandleFunc("/api/sensors", s.listSensors)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/profiles", s.listProfiles)
	mux.HandleFunc("/api/profiles/{name}", s.showProfile)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// showReading serves the latest reading for one sensor type. 204 means the
// sensor is known but nothing has been received for it yet.
func (s *Server) showReading(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}

	t, err := sensor.ParseType(r.PathValue("sensor"))
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}

	reading, ok := s.store.Read(t)
	if !ok {
		httputil.NoContent(w)
		return
	}
	httputil.WriteJSONOK(w, reading)
}

func (s *Server) listReadings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}

	snapshot := s.store.Snapshot()
	out := make(map[string]sensor.Reading, len(snapshot))
	for t, reading := range snapshot {
		out[t.String()] = reading
	}
	httputil.WriteJSONOK(w, out)
}

type sensorInfo struct {
	sensor.Info
	Present bool `json:"present"`
}

func (s *Server) listSensors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}

	catalogue := s.registry.Catalogue()
	out := make([]sensorInfo, 0, len(catalogue))
	for _, info := range catalogue {
		_, present := s.store.Read(sensor.Type(info.ID))
		out = append(out, sensorInfo{Info: info, Present: present})
	}
	httputil.WriteJSONOK(w, out)
}

type statusResponse struct {
	version.Info
	Framing       string          `json:"framing"`
	SerialState   string          `json:"serial_state"`
	Sensors       int             `json:"sensors_present"`
	UptimeSeconds float64         `json:"uptime_seconds"`
	Pipeline      *pipeline.Stats `json:"pipeline,omitempty"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}

	resp := statusResponse{
		Info:          version.Get(),
		Framing:       s.mode.String(),
		SerialState:   s.m.State().String(),
		Sensors:       s.store.Len(),
		UptimeSeconds: time.Since(s.started).Seconds(),
	}
	if s.stats != nil {
		stats := s.stats()
		resp.Pipeline = &stats
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) listProfiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "device profiles are not configured")
		return
	}

	profiles, err := s.db.ListProfiles()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if profiles == nil {
		profiles = []db.DeviceProfile{}
	}
	httputil.WriteJSONOK(w, profiles)
}

func (s *Server) showProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "device profiles are not configured")
		return
	}

	name := strings.TrimSpace(r.PathValue("name"))
	profile, err := s.db.GetProfile(name)
	if err != nil {
		if errors.Is(err, db.ErrProfileNotFound) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, profile)
}
