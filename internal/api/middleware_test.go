package api

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/TwinProduction/go-color"
	"github.com/stretchr/testify/assert"
)

func TestStatusCodeColor(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{http.StatusOK, color.Green},
		{http.StatusNoContent, color.Green},
		{http.StatusFound, color.Yellow},
		{http.StatusNotFound, color.Red},
		{http.StatusInternalServerError, color.Red},
	}
	for _, tt := range tests {
		got := statusCodeColor(tt.code)
		assert.True(t, strings.HasPrefix(got, tt.want), "%d rendered as %q", tt.code, got)
	}
	assert.Equal(t, "101", statusCodeColor(http.StatusSwitchingProtocols))
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/data/GPS", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, buf.String(), "204")
	assert.Contains(t, buf.String(), "/api/data/GPS")
}
