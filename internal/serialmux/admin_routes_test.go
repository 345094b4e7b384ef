package serialmux

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/telemetry.report/internal/framing"
)

// localHostRequest creates an httptest request that appears to come from localhost.
// This bypasses tsweb.AllowDebugAccess which checks for loopback IPs.
func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestAttachAdminRoutes_SerialWrite(t *testing.T) {
	port := NewTestableSerialPort()
	s := NewSerialMux(port, newDecoder(t, framing.Raw))

	httpMux := http.NewServeMux()
	s.AttachAdminRoutes(httpMux)

	tests := []struct {
		name           string
		method         string
		form           url.Values
		expectedStatus int
		written        string
	}{
		{"text payload", http.MethodPost, url.Values{"data": {"RESET"}}, http.StatusOK, "RESET"},
		{"hex payload", http.MethodPost, url.Values{"hex": {"de ad be ef"}}, http.StatusOK, "\xde\xad\xbe\xef"},
		{"invalid hex", http.MethodPost, url.Values{"hex": {"zz"}}, http.StatusBadRequest, ""},
		{"missing payload", http.MethodPost, url.Values{}, http.StatusBadRequest, ""},
		{"GET not allowed", http.MethodGet, nil, http.StatusMethodNotAllowed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port.WriteBuffer.Reset()
			req := localHostRequest(tt.method, "/debug/serial-write", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()

			httpMux.ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.expectedStatus, rec.Body.String())
			}
			if got := string(port.GetWrittenData()); got != tt.written {
				t.Errorf("written = %q, want %q", got, tt.written)
			}
		})
	}
}

func TestAttachAdminRoutes_SerialState(t *testing.T) {
	s := NewSerialMux(NewTestableSerialPort(), newDecoder(t, framing.ZeroByteStuffed))
	httpMux := http.NewServeMux()
	s.AttachAdminRoutes(httpMux)

	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/serial", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"state: connected", "framing: cobs", "read: 0 B", "buffered: 0"} {
		if !strings.Contains(body, want) {
			t.Errorf("body %q missing %q", body, want)
		}
	}
}

func TestAttachAdminRoutes_TailStreamsFrames(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true
	port.ReadTimeout = 5 * time.Millisecond
	s := NewSerialMux(port, newDecoder(t, framing.Raw))

	httpMux := http.NewServeMux()
	s.AttachAdminRoutes(httpMux)
	server := httptest.NewServer(httpMux)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runMonitor(ctx, s)
	go func() {
		for range s.Frames() {
		}
	}()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/debug/tail", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /debug/tail: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, ": ping") {
		t.Fatalf("first line = %q, %v", line, err)
	}

	// the handler subscribed before writing the ping
	port.AddReadData([]byte{0x50, 0xAB})

	for {
		line, err = reader.ReadString('\n')
		if err != nil {
			t.Fatalf("reading stream: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}
	if got := strings.TrimSpace(strings.TrimPrefix(line, "data: ")); got != "50ab" {
		t.Errorf("event data = %q, want 50ab", got)
	}

	cancel()
	waitErr(t, done)
}

func TestAttachAdminRoutes_TailRejectsPost(t *testing.T) {
	s := NewSerialMux(NewTestableSerialPort(), newDecoder(t, framing.Raw))
	httpMux := http.NewServeMux()
	s.AttachAdminRoutes(httpMux)

	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodPost, "/debug/tail", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
