package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/TwinProduction/go-color"
)

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE debug routes streaming through the middleware.
func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	code := strconv.Itoa(statusCode)
	switch {
	case statusCode >= 200 && statusCode < 300:
		return color.Ize(color.Green, code)
	case statusCode >= 300 && statusCode < 400:
		return color.Ize(color.Yellow, code)
	case statusCode >= 400:
		return color.Ize(color.Red, code)
	default:
		return code
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			color.Ize(color.Cyan, r.RequestURI),
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}
