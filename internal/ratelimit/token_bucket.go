package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket gives every key a bucket of Limit tokens refilled evenly over the
// window, so a key may burst up to Limit requests and then proceeds at the average
// rate.
type TokenBucket struct {
	limit    int
	window   time.Duration
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewTokenBucket creates a token-bucket policy.
func NewTokenBucket(limit int, window time.Duration, opts ...Option) *TokenBucket {
	o := buildOptions(opts)
	return &TokenBucket{
		limit:     limit,
		window:    window,
		interval:  window / time.Duration(limit),
		now:       o.now,
		buckets:   make(map[string]*bucket),
		lastSweep: o.now(),
	}
}

// Allow implements Policy.
func (tb *TokenBucket) Allow(_ context.Context, key string) (Decision, error) {
	now := tb.now()

	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.sweepLocked(now)

	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(tb.interval), tb.limit)}
		tb.buckets[key] = b
	}
	b.lastSeen = now

	if b.limiter.AllowN(now, 1) {
		tokens := b.limiter.TokensAt(now)
		return Decision{
			Allowed:   true,
			Limit:     tb.limit,
			Remaining: int(math.Floor(tokens)),
			Reset:     now.Add(tb.refillTime(tokens)),
		}, nil
	}

	// Ask how long the next token takes, then give the reservation back.
	r := b.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)

	return Decision{
		Allowed:    false,
		Limit:      tb.limit,
		Remaining:  0,
		Reset:      now.Add(tb.refillTime(b.limiter.TokensAt(now))),
		RetryAfter: delay,
	}, nil
}

// String implements Policy.
func (tb *TokenBucket) String() string {
	return describe(tb.limit, tb.window)
}

// refillTime is how long a bucket holding tokens needs to become full.
func (tb *TokenBucket) refillTime(tokens float64) time.Duration {
	missing := float64(tb.limit) - tokens
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing * float64(tb.interval))
}

// sweepLocked drops buckets idle for a full window; they would be full again anyway.
// Caller must hold mu.
func (tb *TokenBucket) sweepLocked(now time.Time) {
	if now.Sub(tb.lastSweep) < tb.window {
		return
	}
	for key, b := range tb.buckets {
		if now.Sub(b.lastSeen) >= tb.window {
			delete(tb.buckets, key)
		}
	}
	tb.lastSweep = now
}

// size returns the number of tracked keys.
func (tb *TokenBucket) size() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.buckets)
}
