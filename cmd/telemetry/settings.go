package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/telemetry.report/internal/config"
	"github.com/banshee-data/telemetry.report/internal/db"
	"github.com/banshee-data/telemetry.report/internal/framing"
	"github.com/banshee-data/telemetry.report/internal/serialmux"
	"github.com/banshee-data/telemetry.report/internal/timeutil"
)

// settings is the fully resolved run configuration: config file, then the
// selected device profile, then explicitly set flags.
type settings struct {
	Port        string
	PortOptions serialmux.PortOptions
	Framing     framing.Mode
	Accumulator int
	ReadBuffer  int
	QueueSize   int
	Listen      string
	DBPath      string
}

// flagValues carries the command line values that can override the config
// file. Only names present in set are applied.
type flagValues struct {
	Port    string
	Framing string
	Listen  string
	DBPath  string
	Profile string
	set     map[string]bool
}

func (f flagValues) isSet(name string) bool { return f.set[name] }

// profileName returns the profile selected by flag or config file.
func profileName(cfg *config.Config, f flagValues) string {
	if f.isSet("profile") {
		return f.Profile
	}
	return cfg.GetProfile()
}

// needsDatabase reports whether the profile database must be opened: a
// profile is selected, or a database path was given explicitly by flag or
// config file.
func needsDatabase(cfg *config.Config, f flagValues) bool {
	return profileName(cfg, f) != "" || f.isSet("db-path") || cfg.DBPath != nil
}

// checkDevInterval rejects generator intervals a ticker cannot run with.
func checkDevInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("invalid --dev-interval %v: must be positive", d)
	}
	return nil
}

// applyProfile copies a device profile's settings into cfg.
func applyProfile(cfg *config.Config, p *db.DeviceProfile) error {
	if !p.Enabled {
		return fmt.Errorf("device profile %q is disabled", p.Name)
	}
	cfg.Port = &p.PortPath
	cfg.BaudRate = &p.BaudRate
	cfg.DataBits = &p.DataBits
	cfg.StopBits = &p.StopBits
	cfg.Parity = &p.Parity
	cfg.Framing = &p.Framing
	if p.ReadTimeoutMS > 0 {
		timeout := (time.Duration(p.ReadTimeoutMS) * time.Millisecond).String()
		cfg.ReadTimeout = &timeout
	}
	return cfg.Validate()
}

// applyFlags overrides cfg with every explicitly set flag.
func applyFlags(cfg *config.Config, f flagValues) error {
	if f.isSet("port") {
		cfg.Port = &f.Port
	}
	if f.isSet("framing") {
		cfg.Framing = &f.Framing
	}
	if f.isSet("listen") {
		cfg.Listen = &f.Listen
	}
	if f.isSet("db-path") {
		cfg.DBPath = &f.DBPath
	}
	return cfg.Validate()
}

func resolveSettings(cfg *config.Config) settings {
	return settings{
		Port: cfg.GetPort(),
		PortOptions: serialmux.PortOptions{
			BaudRate:    cfg.GetBaudRate(),
			DataBits:    cfg.GetDataBits(),
			StopBits:    cfg.GetStopBits(),
			Parity:      cfg.GetParity(),
			ReadTimeout: cfg.GetReadTimeout(),
		},
		Framing:     cfg.GetFraming(),
		Accumulator: cfg.GetAccumulatorSize(),
		ReadBuffer:  cfg.GetReadBufferSize(),
		QueueSize:   cfg.GetQueueSize(),
		Listen:      cfg.GetListen(),
		DBPath:      cfg.GetDBPath(),
	}
}

// writeRawLog appends one "<received unix ms>, <hex>" line per decoded frame
// to w until ctx is done or the tap is closed.
func writeRawLog(ctx context.Context, m serialmux.SerialMuxInterface, w io.Writer, clock timeutil.Clock) error {
	id, c := m.Subscribe()
	defer m.Unsubscribe(id)
	for {
		select {
		case frame, ok := <-c:
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintf(w, "%d, %s\n", clock.Now().UnixMilli(), frame); err != nil {
				return fmt.Errorf("failed to write raw frame log: %w", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
