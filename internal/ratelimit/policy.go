package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Policy names accepted by New.
const (
	PolicyFixedWindow = "fixed_window"
	PolicyTokenBucket = "token_bucket"
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Limit is the configured number of requests per window.
	Limit int

	// Remaining is how many further requests are currently allowed.
	Remaining int

	// Reset is when the key's allowance is fully restored.
	Reset time.Time

	// RetryAfter is how long a rejected caller should wait. Zero when allowed.
	RetryAfter time.Duration
}

// Policy decides whether a request for a key is allowed and records it if so.
// Implementations must be safe for concurrent use. An error means the decision could
// not be made, not that the request was rejected.
type Policy interface {
	Allow(ctx context.Context, key string) (Decision, error)

	// String describes the limit, e.g. "10 per 1 minute".
	String() string
}

// Option configures a policy.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now. Intended for tests.
// TokenBucket runs entirely on this clock; FixedWindow only derives Retry-After from it.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New creates the named policy allowing limit requests per window.
func New(name string, limit int, window time.Duration, opts ...Option) (Policy, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %d", limit)
	}
	if window <= 0 {
		return nil, fmt.Errorf("rate limit window must be positive, got %s", window)
	}

	switch name {
	case PolicyFixedWindow:
		return NewFixedWindow(limit, window, opts...), nil
	case PolicyTokenBucket:
		return NewTokenBucket(limit, window, opts...), nil
	default:
		return nil, fmt.Errorf("unknown rate limit policy %q (expected: %s, %s)", name, PolicyFixedWindow, PolicyTokenBucket)
	}
}

// describe renders limit and window the way rate limits are usually written,
// e.g. "10 per 1 minute" or "100 per 1 hour".
func describe(limit int, window time.Duration) string {
	units := []struct {
		d    time.Duration
		name string
	}{
		{time.Hour, "hour"},
		{time.Minute, "minute"},
		{time.Second, "second"},
	}
	for _, u := range units {
		if window%u.d == 0 {
			n := int64(window / u.d)
			name := u.name
			if n != 1 {
				name += "s"
			}
			return fmt.Sprintf("%d per %d %s", limit, n, name)
		}
	}
	return fmt.Sprintf("%d per %s", limit, window)
}
