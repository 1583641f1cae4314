package middleware

import (
	"net/http"
)

// MaxBodySize caps prompt answers and other small JSON bodies.
const MaxBodySize = 64 << 10

// LimitBody limits the size of request bodies to MaxBodySize
func LimitBody(next http.Handler) http.Handler {
	return LimitBodyTo(MaxBodySize)(next)
}

// LimitBodyTo returns a middleware limiting request bodies to n bytes
func LimitBodyTo(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}
