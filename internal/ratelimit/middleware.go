package ratelimit

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
)

// KeyFunc derives the rate-limit key from a request.
type KeyFunc func(r *http.Request) string

// RejectFunc writes the response for a request that exceeded its limit.
type RejectFunc func(w http.ResponseWriter, r *http.Request, d Decision)

// ClientAddr keys requests by the host part of the client's network address.
// Run it behind chi's RealIP middleware to key by the forwarded client address.
func ClientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware enforces policy per key. Every response carries X-RateLimit-Limit,
// X-RateLimit-Remaining and X-RateLimit-Reset; rejected requests additionally get
// Retry-After and are answered by reject instead of next.
// Requests are let through when the policy fails to decide.
func Middleware(policy Policy, keyFunc KeyFunc, reject RejectFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := policy.Allow(r.Context(), keyFunc(r))
			if err != nil {
				slog.WarnContext(r.Context(), "rate limit check failed, allowing request", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))

			if !d.Allowed {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
				reject(w, r, d)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
