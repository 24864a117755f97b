// Package middleware provides the HTTP middleware the conversion server
// mounts in front of its handlers.
package middleware

import (
	"net/http"
	"time"

	"github.com/r4inX/dbf-to-csv-converter/internal/logging"
)

// Logger emits one structured log line per request: method, path,
// status, duration, client IP and user agent. Entries carry the chi
// request ID via logging.FromContext, so an upload and the conversions
// that follow it can be traced together.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		logging.FromContext(r.Context()).Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)
	})
}

// statusWriter records the status code; handlers that never call
// WriteHeader count as 200.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap exposes the wrapped writer so chi's middleware (Compress,
// Flusher checks) can reach it.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
