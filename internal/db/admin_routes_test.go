package db

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// localHostRequest creates a request that passes tsweb's debug access check.
func localHostRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestAttachAdminRoutes_Backup(t *testing.T) {
	db := NewTestDB(t)
	if err := db.CreateProfile(&DeviceProfile{Name: "bench", PortPath: "/dev/ttyUSB0"}); err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	if err := db.AttachAdminRoutes(mux); err != nil {
		t.Fatalf("AttachAdminRoutes: %v", err)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/backup"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("reading backup: %v", err)
	}
	if !strings.HasPrefix(string(data), "SQLite format 3") {
		t.Errorf("backup is not a SQLite database (%d bytes)", len(data))
	}
}

func TestAttachAdminRoutes_TailSQLMounted(t *testing.T) {
	db := NewTestDB(t)
	mux := http.NewServeMux()
	if err := db.AttachAdminRoutes(mux); err != nil {
		t.Fatalf("AttachAdminRoutes: %v", err)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "tailsql") {
		t.Errorf("debug index does not list tailsql")
	}
}
