package monitoring

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
)

type logFunc func(format string, v ...interface{})

var logger atomic.Pointer[logFunc]

func init() {
	SetLogger(log.Printf)
}

// Logf is the diagnostic logger shared by the ingestion packages (framing,
// serialmux, sensor, pipeline). It defaults to log.Printf; tests mute or
// capture it with SetLogger.
func Logf(format string, v ...interface{}) {
	(*logger.Load())(format, v...)
}

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	fn := logFunc(f)
	logger.Store(&fn)
}

// Captured holds log lines recorded by Capture.
type Captured struct {
	mu    sync.Mutex
	lines []string
}

// Lines returns a copy of the recorded lines.
func (c *Captured) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// Capture redirects Logf into a Captured buffer until restore is called.
// Intended for tests asserting on drop reasons.
func Capture() (c *Captured, restore func()) {
	prev := logger.Load()
	c = &Captured{}
	SetLogger(func(format string, v ...interface{}) {
		c.mu.Lock()
		c.lines = append(c.lines, fmt.Sprintf(format, v...))
		c.mu.Unlock()
	})
	return c, func() { logger.Store(prev) }
}
