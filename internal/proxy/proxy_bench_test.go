package proxy

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/florianilch/solar-proxy/internal/auth"
)

// benchSolarTransport returns a pre-built event stream without network calls.
type benchSolarTransport struct {
	responseBody string
}

func (m *benchSolarTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	_, _ = io.Copy(io.Discard, req.Body)
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(m.responseBody)),
		Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
		Request:    req,
	}, nil
}

// buildSolarStream renders n content deltas followed by [DONE].
func buildSolarStream(n int) string {
	var sb strings.Builder
	for i := range n {
		fmt.Fprintf(&sb, "data: {\"id\":\"chatcmpl-1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"token %d \"}}]}\n\n", i)
	}
	sb.WriteString("data: [DONE]\n\n")
	return sb.String()
}

// setupBenchProxy creates a Proxy with full middleware stack but mocked upstream.
// Suppresses logging to isolate benchmark measurements from I/O overhead.
// The rate limit is lifted so it never rejects during a run.
func setupBenchProxy(b *testing.B, frames int) *httptest.Server {
	b.Helper()

	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	p, err := New(auth.NewResolver("sk-bench"), staticReadiness(true),
		WithTransport(&benchSolarTransport{responseBody: buildSolarStream(frames)}),
		WithRateLimit("fixed_window", 1<<30, time.Hour),
	)
	if err != nil {
		b.Fatalf("Failed to create proxy: %v", err)
	}

	server := httptest.NewServer(p)
	b.Cleanup(server.Close)
	return server
}

// BenchmarkProxyStreaming measures end-to-end streaming latency through
// routing, middleware, payload rewrite and SSE relay for several stream lengths.
// Excludes network latency (mocked transport).
func BenchmarkProxyStreaming(b *testing.B) {
	for _, frames := range []int{10, 100, 1000} {
		b.Run(fmt.Sprintf("frames_%d", frames), func(b *testing.B) {
			server := setupBenchProxy(b, frames)

			b.ReportAllocs()
			b.ResetTimer()

			for b.Loop() {
				resp, err := http.Post(server.URL+SummaryPath, "application/json", strings.NewReader(summaryBody))
				if err != nil {
					b.Fatalf("Request failed: %v", err)
				}
				if resp.StatusCode != http.StatusOK {
					b.Fatalf("Unexpected status code: %d", resp.StatusCode)
				}
				if _, err := io.Copy(io.Discard, resp.Body); err != nil {
					b.Fatalf("Stream read error: %v", err)
				}
				_ = resp.Body.Close()
			}
		})
	}
}

// BenchmarkProxyStreaming_TTFB measures Time-To-First-Byte for streaming responses.
func BenchmarkProxyStreaming_TTFB(b *testing.B) {
	server := setupBenchProxy(b, 100)

	b.ReportAllocs()
	b.ResetTimer()

	var totalTTFB time.Duration
	var iterations int
	buf := make([]byte, 1)

	for b.Loop() {
		start := time.Now()

		resp, err := http.Post(server.URL+SummaryPath, "application/json", strings.NewReader(summaryBody))
		if err != nil {
			b.Fatalf("Request failed: %v", err)
		}

		// Read first byte to measure TTFB
		if _, err := resp.Body.Read(buf); err != nil {
			b.Fatalf("Failed to read first byte: %v", err)
		}

		totalTTFB += time.Since(start)
		iterations++

		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}

	avgTTFB := totalTTFB / time.Duration(iterations)
	b.ReportMetric(float64(avgTTFB.Microseconds()), "µs/ttfb")
}

// BenchmarkProxyConcurrentThroughput measures concurrent streaming throughput
// using b.RunParallel to simulate realistic concurrent load.
func BenchmarkProxyConcurrentThroughput(b *testing.B) {
	server := setupBenchProxy(b, 100)

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			resp, err := http.Post(server.URL+SummaryPath, "application/json", strings.NewReader(summaryBody))
			if err != nil {
				b.Fatalf("Request failed: %v", err)
			}
			if resp.StatusCode != http.StatusOK {
				b.Fatalf("Unexpected status code: %d", resp.StatusCode)
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
	})
}
