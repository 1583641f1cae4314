package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/akshaybapat6365/dark-wallet/pkg/errors"
)

// idleTTL is how long an unused bucket is kept before the sweep drops it.
const idleTTL = 3 * time.Minute

// RateLimiter keeps one token bucket per key. Limit keys by client IP; the
// relay also keys by channel id to bound requests within one channel.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	rps      rate.Limit
	burst    int
	stop     chan struct{}
	stopOnce sync.Once

	// OnReject is called for every request Limit refuses, if set.
	OnReject func(r *http.Request)
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows rps events per second per key with the given burst.
// Call Close to stop the background sweep.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		stop:    make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

// Close stops the sweep. It is idempotent.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Allow spends one token from key's bucket.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = time.Now()
	rl.mu.Unlock()

	return b.limiter.Allow()
}

// Forget drops key's bucket.
func (rl *RateLimiter) Forget(key string) {
	rl.mu.Lock()
	delete(rl.buckets, key)
	rl.mu.Unlock()
}

// Len returns the number of live buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
		}

		rl.mu.Lock()
		for key, b := range rl.buckets {
			if time.Since(b.lastSeen) > idleTTL {
				delete(rl.buckets, key)
			}
		}
		rl.mu.Unlock()
	}
}

// ClientIP returns the peer address of r. Forwarding headers are ignored:
// the relay and the prompt surface listen on loopback without a proxy.
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Limit refuses requests over the per-IP rate with 429 and a connector
// error body.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.Allow(ClientIP(r)) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.OnReject != nil {
			rl.OnReject(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(apperrors.ToWire(apperrors.InvalidRequest("Too many requests.")))
	})
}
