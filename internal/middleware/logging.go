package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// Logging logs one line per request with status and latency.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := NewStatusRecorder(w)

		next.ServeHTTP(rec, r)

		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.StatusCode,
			"duration", time.Since(start),
		)
	})
}
