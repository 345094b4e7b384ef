package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/telemetry.report/internal/framing"
)

// ExampleConfigPath is the path to the documented example configuration.
const ExampleConfigPath = "config/telemetry.example.json"

// Defaults applied by the Get* accessors when a field is absent.
const (
	DefaultPort           = "/dev/ttyUSB0"
	DefaultBaudRate       = 115200
	DefaultDataBits       = 8
	DefaultStopBits       = 1
	DefaultParity         = "N"
	DefaultFraming        = "cobs"
	DefaultReadTimeout    = 500 * time.Millisecond
	DefaultAccumulator    = framing.DefaultCapacity
	DefaultReadBufferSize = 1024
	DefaultQueueSize      = 4096
	DefaultListen         = ":8080"
	DefaultDBPath         = "telemetry.db"
)

// Config is the process configuration loaded from a JSON file. Every field is
// optional; the Get* methods supply defaults for anything not set. Command
// line flags override values after loading.
type Config struct {
	// Serial device
	Port        *string `json:"port,omitempty"`
	BaudRate    *int    `json:"baud_rate,omitempty"`
	DataBits    *int    `json:"data_bits,omitempty"`
	StopBits    *int    `json:"stop_bits,omitempty"`
	Parity      *string `json:"parity,omitempty"`
	ReadTimeout *string `json:"read_timeout,omitempty"` // duration string like "500ms"

	// Framing and queueing
	Framing         *string `json:"framing,omitempty"` // raw, cobs or line
	AccumulatorSize *int    `json:"accumulator_size,omitempty"`
	ReadBufferSize  *int    `json:"read_buffer_size,omitempty"`
	QueueSize       *int    `json:"queue_size,omitempty"`

	// Server and storage
	Listen  *string `json:"listen,omitempty"`
	DBPath  *string `json:"db_path,omitempty"`
	Profile *string `json:"profile,omitempty"`
}

// Helper functions to create pointers
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// EmptyConfig returns a Config with all fields set to nil.
func EmptyConfig() *Config {
	return &Config{}
}

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() *Config {
	return &Config{
		Port:            ptrString(DefaultPort),
		BaudRate:        ptrInt(DefaultBaudRate),
		DataBits:        ptrInt(DefaultDataBits),
		StopBits:        ptrInt(DefaultStopBits),
		Parity:          ptrString(DefaultParity),
		ReadTimeout:     ptrString(DefaultReadTimeout.String()),
		Framing:         ptrString(DefaultFraming),
		AccumulatorSize: ptrInt(DefaultAccumulator),
		ReadBufferSize:  ptrInt(DefaultReadBufferSize),
		QueueSize:       ptrInt(DefaultQueueSize),
		Listen:          ptrString(DefaultListen),
		DBPath:          ptrString(DefaultDBPath),
	}
}

// LoadConfig loads configuration from a JSON file. Fields not present in
// the file stay nil and fall back to defaults through the Get* methods.
func LoadConfig(path string) (*Config, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if c.ReadTimeout != nil && *c.ReadTimeout != "" {
		d, err := time.ParseDuration(*c.ReadTimeout)
		if err != nil {
			return fmt.Errorf("invalid read_timeout '%s': %w", *c.ReadTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("read_timeout must be positive, got %s", d)
		}
	}

	if c.Framing != nil {
		if _, err := framing.ParseMode(*c.Framing); err != nil {
			return fmt.Errorf("invalid framing: %w", err)
		}
	}

	for name, v := range map[string]*int{
		"baud_rate":        c.BaudRate,
		"accumulator_size": c.AccumulatorSize,
		"read_buffer_size": c.ReadBufferSize,
		"queue_size":       c.QueueSize,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, *v)
		}
	}

	if c.DataBits != nil && (*c.DataBits < 5 || *c.DataBits > 8) {
		return fmt.Errorf("data_bits must be between 5 and 8, got %d", *c.DataBits)
	}
	if c.StopBits != nil && *c.StopBits != 1 && *c.StopBits != 2 {
		return fmt.Errorf("stop_bits must be 1 or 2, got %d", *c.StopBits)
	}

	return nil
}

// GetPort returns the serial device path or the default.
func (c *Config) GetPort() string {
	if c.Port == nil || *c.Port == "" {
		return DefaultPort
	}
	return *c.Port
}

// GetBaudRate returns the baud rate or the default.
func (c *Config) GetBaudRate() int {
	if c.BaudRate == nil {
		return DefaultBaudRate
	}
	return *c.BaudRate
}

// GetDataBits returns the data bits or the default.
func (c *Config) GetDataBits() int {
	if c.DataBits == nil {
		return DefaultDataBits
	}
	return *c.DataBits
}

// GetStopBits returns the stop bits or the default.
func (c *Config) GetStopBits() int {
	if c.StopBits == nil {
		return DefaultStopBits
	}
	return *c.StopBits
}

// GetParity returns the parity or the default.
func (c *Config) GetParity() string {
	if c.Parity == nil || *c.Parity == "" {
		return DefaultParity
	}
	return *c.Parity
}

// GetReadTimeout parses and returns the ReadTimeout as a time.Duration.
func (c *Config) GetReadTimeout() time.Duration {
	if c.ReadTimeout == nil || *c.ReadTimeout == "" {
		return DefaultReadTimeout
	}
	d, err := time.ParseDuration(*c.ReadTimeout)
	if err != nil || d <= 0 {
		return DefaultReadTimeout // default on parse error
	}
	return d
}

// GetFraming returns the framing mode or the default. An unparsable value
// falls back to the default; Validate reports it.
func (c *Config) GetFraming() framing.Mode {
	name := DefaultFraming
	if c.Framing != nil {
		name = *c.Framing
	}
	m, err := framing.ParseMode(name)
	if err != nil {
		m, _ = framing.ParseMode(DefaultFraming)
	}
	return m
}

// GetAccumulatorSize returns the frame accumulator capacity or the default.
func (c *Config) GetAccumulatorSize() int {
	if c.AccumulatorSize == nil {
		return DefaultAccumulator
	}
	return *c.AccumulatorSize
}

// GetReadBufferSize returns the per-read buffer size or the default.
func (c *Config) GetReadBufferSize() int {
	if c.ReadBufferSize == nil {
		return DefaultReadBufferSize
	}
	return *c.ReadBufferSize
}

// GetQueueSize returns the frame queue capacity or the default.
func (c *Config) GetQueueSize() int {
	if c.QueueSize == nil {
		return DefaultQueueSize
	}
	return *c.QueueSize
}

// GetListen returns the HTTP listen address or the default.
func (c *Config) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return DefaultListen
	}
	return *c.Listen
}

// GetDBPath returns the profile database path or the default.
func (c *Config) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return DefaultDBPath
	}
	return *c.DBPath
}

// GetProfile returns the device profile name, empty when none is selected.
func (c *Config) GetProfile() string {
	if c.Profile == nil {
		return ""
	}
	return *c.Profile
}
