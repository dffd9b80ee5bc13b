package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// FixedWindow allows Limit requests per key in each window. A key's window starts
// with its first request and is replaced by a fresh one once it has elapsed.
// Counters live in an in-memory limiter store that drops expired keys periodically.
type FixedWindow struct {
	limit   int
	window  time.Duration
	now     func() time.Time
	limiter *limiter.Limiter
}

// NewFixedWindow creates a fixed-window policy. The store expires windows on the wall
// clock; WithClock only affects the computed Retry-After.
func NewFixedWindow(limit int, window time.Duration, opts ...Option) *FixedWindow {
	o := buildOptions(opts)
	store := memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          "ratelimit",
		CleanUpInterval: window,
	})
	return &FixedWindow{
		limit:   limit,
		window:  window,
		now:     o.now,
		limiter: limiter.New(store, limiter.Rate{Period: window, Limit: int64(limit)}),
	}
}

// Allow implements Policy.
func (f *FixedWindow) Allow(ctx context.Context, key string) (Decision, error) {
	lctx, err := f.limiter.Get(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("fixed window %s: %w", key, err)
	}

	// The store reports the window end in whole seconds.
	reset := time.Unix(lctx.Reset, 0)
	d := Decision{
		Allowed:   !lctx.Reached,
		Limit:     int(lctx.Limit),
		Remaining: int(lctx.Remaining),
		Reset:     reset,
	}
	if lctx.Reached {
		d.Remaining = 0
		d.RetryAfter = max(reset.Sub(f.now()), time.Second)
	}
	return d, nil
}

// String implements Policy.
func (f *FixedWindow) String() string {
	return describe(f.limit, f.window)
}
