package serialmux

import (
	"fmt"
	"sync/atomic"
)

// ConnState is the serial connection state reported on /api/status.
type ConnState int32

const (
	Disconnected ConnState = iota
	Connected
	Reading
	Error
)

var connStateNames = [...]string{
	Disconnected: "disconnected",
	Connected:    "connected",
	Reading:      "reading",
	Error:        "error",
}

func (s ConnState) String() string {
	if s >= 0 && int(s) < len(connStateNames) {
		return connStateNames[s]
	}
	return fmt.Sprintf("ConnState(%d)", int32(s))
}

func (s ConnState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type connState struct {
	v atomic.Int32
}

func (c *connState) get() ConnState  { return ConnState(c.v.Load()) }
func (c *connState) set(s ConnState) { c.v.Store(int32(s)) }
