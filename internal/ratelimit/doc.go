// Package ratelimit limits requests per client key.
//
// A Policy decides whether one more request for a key is allowed. Two policies are
// provided:
//
//   - FixedWindow counts requests in a window that opens with the key's first request
//     and allows at most Limit of them until the window ends (backed by
//     github.com/ulule/limiter/v3 with its in-memory store).
//   - TokenBucket refills Limit tokens evenly over the window, allowing bursts of up to
//     Limit requests (backed by golang.org/x/time/rate).
//
// Middleware applies a Policy to an http.Handler, keyed by a KeyFunc such as
// ClientAddr, and reports the outcome through X-RateLimit-* headers.
//
// Idle keys are dropped about once per window, so memory stays proportional to the
// number of recently active clients.
package ratelimit
