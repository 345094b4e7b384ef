package serialmux

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/telemetry.report/internal/framing"
)

// DisabledSerialMux is a no-op SerialMux implementation used when no device
// is attached (for --disable-serial). It allows the server, API and admin
// routes to run without hardware. Subscribers are tracked so their channels
// are closed on Unsubscribe() or Close(), letting readers unblock during
// shutdown.
type DisabledSerialMux struct {
	mu          sync.Mutex
	subscribers map[string]chan framing.Frame
	frames      chan framing.Frame
	closeFrames sync.Once
	closing     bool
}

func NewDisabledSerialMux() *DisabledSerialMux {
	return &DisabledSerialMux{
		subscribers: make(map[string]chan framing.Frame),
		frames:      make(chan framing.Frame),
	}
}

func (d *DisabledSerialMux) Subscribe() (string, chan framing.Frame) {
	id := uuid.NewString()
	ch := make(chan framing.Frame)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		// If already closing, return a closed channel so callers don't block.
		close(ch)
		return id, ch
	}
	d.subscribers[id] = ch
	return id, ch
}

func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
}

func (d *DisabledSerialMux) Write([]byte) error { return nil }

func (d *DisabledSerialMux) Frames() <-chan framing.Frame { return d.frames }

func (d *DisabledSerialMux) State() ConnState { return Disconnected }

// Monitor blocks until ctx is done, then closes the frame channel so the
// pipeline drains and exits.
func (d *DisabledSerialMux) Monitor(ctx context.Context) error {
	defer d.closeFrames.Do(func() { close(d.frames) })
	<-ctx.Done()
	return ctx.Err()
}

func (d *DisabledSerialMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return nil
	}
	d.closing = true
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	return nil
}

func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/serial-disabled", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("serial disabled"))
	})
}
