// Package metrics exposes Prometheus metrics for the proxy.
//
// Metrics:
//   - solarproxy_requests_total: completed requests by endpoint and status code
//   - solarproxy_request_duration_seconds: request duration by endpoint, including streaming
//   - solarproxy_ratelimit_rejections_total: requests rejected by the rate limiter
//   - solarproxy_upstream_errors_total: non-2xx upstream responses by upstream status code
//   - solarproxy_stream_frames_total: SSE frames relayed to clients
//
// All metrics live in a private registry so tests can create independent collectors.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "solarproxy"

// Collector owns the proxy's metrics and their registry.
type Collector struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	rateLimited    *prometheus.CounterVec
	upstreamErrors *prometheus.CounterVec
	frames         *prometheus.CounterVec
}

// New creates a Collector with all metrics registered, plus Go runtime and
// process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of proxied requests",
			},
			[]string{"endpoint", "code"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of proxied requests in seconds, until the stream ends",
				// Streams of LLM output run from sub-second to about a minute.
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"endpoint"},
		),
		rateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ratelimit_rejections_total",
				Help:      "Total number of requests rejected by the rate limiter",
			},
			[]string{"endpoint"},
		),
		upstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_errors_total",
				Help:      "Total number of non-success upstream responses",
			},
			[]string{"code"},
		),
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_frames_total",
				Help:      "Total number of SSE frames relayed to clients",
			},
			[]string{"endpoint"},
		),
	}

	c.registry.MustRegister(
		c.requests,
		c.duration,
		c.rateLimited,
		c.upstreamErrors,
		c.frames,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// Instrument records request count by status code and duration for endpoint.
// The wrapped ResponseWriter keeps supporting http.Flusher.
func (c *Collector) Instrument(endpoint string) func(http.Handler) http.Handler {
	labels := prometheus.Labels{"endpoint": endpoint}
	requests := c.requests.MustCurryWith(labels)
	duration := c.duration.MustCurryWith(labels)

	return func(next http.Handler) http.Handler {
		return promhttp.InstrumentHandlerDuration(duration,
			promhttp.InstrumentHandlerCounter(requests, next),
		)
	}
}

// RateLimited counts a rejected request.
func (c *Collector) RateLimited(endpoint string) {
	c.rateLimited.WithLabelValues(endpoint).Inc()
}

// UpstreamError counts a failed upstream response.
func (c *Collector) UpstreamError(code int) {
	c.upstreamErrors.WithLabelValues(strconv.Itoa(code)).Inc()
}

// FramesRelayed adds n relayed frames for endpoint.
func (c *Collector) FramesRelayed(endpoint string, n int) {
	c.frames.WithLabelValues(endpoint).Add(float64(n))
}
