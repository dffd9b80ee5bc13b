package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		policy  string
		limit   int
		window  time.Duration
		wantErr bool
	}{
		{name: "fixed window", policy: PolicyFixedWindow, limit: 10, window: time.Minute},
		{name: "token bucket", policy: PolicyTokenBucket, limit: 10, window: time.Minute},
		{name: "unknown policy", policy: "leaky", limit: 10, window: time.Minute, wantErr: true},
		{name: "zero limit", policy: PolicyFixedWindow, limit: 0, window: time.Minute, wantErr: true},
		{name: "zero window", policy: PolicyFixedWindow, limit: 10, window: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.policy, tt.limit, tt.window)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if p == nil {
				t.Fatal("expected policy")
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		limit  int
		window time.Duration
		want   string
	}{
		{10, time.Minute, "10 per 1 minute"},
		{100, time.Hour, "100 per 1 hour"},
		{5, 30 * time.Second, "5 per 30 seconds"},
		{5, 2 * time.Minute, "5 per 2 minutes"},
		{5, 1500 * time.Millisecond, "5 per 1.5s"},
	}
	for _, tt := range tests {
		if got := describe(tt.limit, tt.window); got != tt.want {
			t.Errorf("describe(%d, %s) = %q, want %q", tt.limit, tt.window, got, tt.want)
		}
	}
}

// allow calls p.Allow and fails the test on error.
func allow(t *testing.T, p Policy, key string) Decision {
	t.Helper()
	d, err := p.Allow(context.Background(), key)
	if err != nil {
		t.Fatalf("Allow(%q) error = %v", key, err)
	}
	return d
}

func TestFixedWindow(t *testing.T) {
	fw := NewFixedWindow(10, time.Minute)

	for i := range 10 {
		d := allow(t, fw, "10.0.0.1")
		if !d.Allowed {
			t.Fatalf("request %d rejected", i+1)
		}
		if d.Remaining != 10-(i+1) {
			t.Errorf("request %d: Remaining = %d, want %d", i+1, d.Remaining, 10-(i+1))
		}
		if d.Limit != 10 {
			t.Errorf("Limit = %d, want 10", d.Limit)
		}
	}

	d := allow(t, fw, "10.0.0.1")
	if d.Allowed {
		t.Fatal("11th request within the window should be rejected")
	}
	if d.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", d.Remaining)
	}
	if d.RetryAfter < time.Second || d.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %s, want within (0, 1m]", d.RetryAfter)
	}
	if until := time.Until(d.Reset); until > time.Minute {
		t.Errorf("Reset is %s away, want at most 1m", until)
	}

	// Other clients are unaffected.
	if !allow(t, fw, "10.0.0.2").Allowed {
		t.Error("different key should be allowed")
	}
}

func TestFixedWindow_NewWindow(t *testing.T) {
	fw := NewFixedWindow(1, 200*time.Millisecond)

	if !allow(t, fw, "a").Allowed {
		t.Fatal("first request rejected")
	}
	if allow(t, fw, "a").Allowed {
		t.Fatal("second request within the window should be rejected")
	}

	time.Sleep(300 * time.Millisecond)

	d := allow(t, fw, "a")
	if !d.Allowed {
		t.Fatal("request in new window should be allowed")
	}
	if d.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", d.Remaining)
	}
}

func TestFixedWindow_RetryAfterUsesClock(t *testing.T) {
	// A clock already past the window end still yields the one-second minimum.
	fw := NewFixedWindow(1, time.Minute, WithClock(func() time.Time { return time.Now().Add(time.Hour) }))

	allow(t, fw, "a")
	d := allow(t, fw, "a")
	if d.Allowed {
		t.Fatal("second request should be rejected")
	}
	if d.RetryAfter != time.Second {
		t.Errorf("RetryAfter = %s, want 1s minimum", d.RetryAfter)
	}
}

func TestFixedWindow_Concurrent(t *testing.T) {
	fw := NewFixedWindow(50, time.Minute)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := fw.Allow(context.Background(), "shared")
			if err == nil && d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed = %d, want exactly 50", allowed)
	}
}

func TestTokenBucket(t *testing.T) {
	clock := newFakeClock()
	tb := NewTokenBucket(10, time.Minute, WithClock(clock.Now))

	for i := range 10 {
		if !allow(t, tb, "10.0.0.1").Allowed {
			t.Fatalf("burst request %d rejected", i+1)
		}
	}

	d := allow(t, tb, "10.0.0.1")
	if d.Allowed {
		t.Fatal("request beyond burst should be rejected")
	}
	if d.RetryAfter < 5*time.Second || d.RetryAfter > 6*time.Second {
		t.Errorf("RetryAfter = %s, want about 6s", d.RetryAfter)
	}

	// The rejected attempt must not have consumed the next token.
	clock.Advance(7 * time.Second)
	if !allow(t, tb, "10.0.0.1").Allowed {
		t.Fatal("request after refill interval should be allowed")
	}
	if allow(t, tb, "10.0.0.1").Allowed {
		t.Fatal("only one token should have been refilled")
	}
}

func TestTokenBucket_Sweep(t *testing.T) {
	clock := newFakeClock()
	tb := NewTokenBucket(1, time.Minute, WithClock(clock.Now))

	allow(t, tb, "a")
	allow(t, tb, "b")
	clock.Advance(2 * time.Minute)
	allow(t, tb, "c")

	if got := tb.size(); got != 1 {
		t.Errorf("size after sweep = %d, want 1", got)
	}
}

func TestClientAddr(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"192.0.2.1:1234", "192.0.2.1"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"192.0.2.1", "192.0.2.1"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = tt.remoteAddr
		if got := ClientAddr(r); got != tt.want {
			t.Errorf("ClientAddr(%q) = %q, want %q", tt.remoteAddr, got, tt.want)
		}
	}
}

// scriptedPolicy allows the first n calls and rejects the rest.
type scriptedPolicy struct {
	n     int
	calls int
	err   error
}

func (p *scriptedPolicy) Allow(context.Context, string) (Decision, error) {
	if p.err != nil {
		return Decision{}, p.err
	}
	p.calls++
	reset := time.Unix(1767268800, 0)
	if p.calls > p.n {
		return Decision{Limit: p.n, Reset: reset, RetryAfter: 59500 * time.Millisecond}, nil
	}
	return Decision{Allowed: true, Limit: p.n, Remaining: p.n - p.calls, Reset: reset}, nil
}

func (p *scriptedPolicy) String() string { return "scripted" }

func TestMiddleware(t *testing.T) {
	policy := &scriptedPolicy{n: 2}

	var rejected int
	reject := func(w http.ResponseWriter, r *http.Request, d Decision) {
		rejected++
		w.WriteHeader(http.StatusTooManyRequests)
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := Middleware(policy, ClientAddr, reject)(next)

	do := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/summary", nil)
		r.RemoteAddr = "198.51.100.7:5555"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	for i := range 2 {
		w := do()
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, w.Code)
		}
		if got := w.Header().Get("X-RateLimit-Limit"); got != "2" {
			t.Errorf("X-RateLimit-Limit = %q, want 2", got)
		}
		if got := w.Header().Get("X-RateLimit-Reset"); got != "1767268800" {
			t.Errorf("X-RateLimit-Reset = %q", got)
		}
	}

	w := do()
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if rejected != 1 {
		t.Errorf("reject called %d times, want 1", rejected)
	}
	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60 (rounded up)", got)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", got)
	}
}

func TestMiddleware_PolicyErrorAllows(t *testing.T) {
	policy := &scriptedPolicy{err: errors.New("store unavailable")}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := Middleware(policy, ClientAddr, func(w http.ResponseWriter, r *http.Request, d Decision) {
		t.Error("reject must not be called when the policy fails")
	})(next)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/summary", nil))

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if w.Header().Get("X-RateLimit-Limit") != "" {
		t.Error("no rate limit headers expected without a decision")
	}
}
