package middleware

import (
	"net"
	"net/http"

	"github.com/gagan2k22/OPEX-Manager/internal/core"
)

// RateLimit applies a per-client-IP sliding-window rate limit. A limiter is
// shared across the routes it is mounted on, so mounting a second RateLimit
// on a subtree gives that subtree its own budget. The limiter prunes its own
// idle entries, so mounting one spawns nothing.
func RateLimit(limiter *core.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientIP(r)) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"Too many requests","action":"Please wait a moment before trying again","code":"RATE001"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the client address used as the rate-limit key. TrustedRealIP
// runs earlier in the chain, so RemoteAddr already reflects the real client
// when the request came through a trusted proxy. Headers are deliberately not
// consulted here.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
