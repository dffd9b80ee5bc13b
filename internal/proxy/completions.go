package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/florianilch/solar-proxy/internal/auth"
	"github.com/florianilch/solar-proxy/internal/observability/metrics"
	"github.com/florianilch/solar-proxy/internal/payload"
	"github.com/florianilch/solar-proxy/internal/relay"
	"github.com/florianilch/solar-proxy/internal/upstream"
)

// CompletionsHandler validates and rewrites a chat completion request, forwards it
// upstream and relays the event stream back to the client.
type CompletionsHandler struct {
	Endpoint string
	Rules    payload.Rules
	Resolver *auth.Resolver
	Upstream *upstream.Client
	Metrics  *metrics.Collector

	// PropagateStatus returns upstream error codes as-is instead of 500.
	PropagateStatus bool
}

// Compile-time check to ensure CompletionsHandler implements http.Handler
var _ http.Handler = (*CompletionsHandler)(nil)

// ServeHTTP implements http.Handler.
func (h *CompletionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	apiKey := h.Resolver.Resolve(r.Header.Get("Authorization"))
	if apiKey == "" {
		slog.ErrorContext(ctx, "API key is missing", "endpoint", h.Endpoint)
		writeJSONError(ctx, w, errAPIKeyMissing)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			slog.WarnContext(ctx, "request exceeds size limit", "limit_bytes", maxBytesErr.Limit)
			writeJSONError(ctx, w, errRequestTooLarge)
			return
		}
		slog.ErrorContext(ctx, "failed to read request", "error", err)
		writeJSONError(ctx, w, errInvalidPayload)
		return
	}

	// Payloads contain user content; only emitted at debug level.
	slog.DebugContext(ctx, "received payload", "endpoint", h.Endpoint, "payload", string(body))

	rewritten, err := payload.Rewrite(body, h.Rules)
	if err != nil {
		slog.WarnContext(ctx, "rejected payload", "endpoint", h.Endpoint, "error", err)
		writeJSONError(ctx, w, fromRewriteError(err))
		return
	}

	if ctx.Err() != nil {
		return
	}

	stream, err := h.Upstream.Open(ctx, apiKey, rewritten)
	if err != nil {
		h.writeUpstreamError(ctx, w, err)
		return
	}
	defer func() {
		if err := stream.Close(); err != nil {
			slog.DebugContext(ctx, "failed to close upstream stream", "error", err)
		}
	}()

	h.relay(ctx, w, stream)
}

// writeUpstreamError answers a failed upstream call. Upstream HTTP errors become
// 500 unless PropagateStatus is set; the detail carries the upstream body.
func (h *CompletionsHandler) writeUpstreamError(ctx context.Context, w http.ResponseWriter, err error) {
	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		slog.ErrorContext(ctx, "upstream request failed",
			"endpoint", h.Endpoint,
			"status", upErr.StatusCode,
			"error", err,
		)
		h.Metrics.UpstreamError(upErr.StatusCode)

		status := http.StatusInternalServerError
		if h.PropagateStatus {
			status = upErr.StatusCode
		}
		writeJSONError(ctx, w, &Error{Status: status, Detail: upErr.Error()})
		return
	}

	if ctx.Err() != nil {
		slog.DebugContext(ctx, "client disconnected before upstream responded")
		return
	}

	slog.ErrorContext(ctx, "upstream unreachable", "endpoint", h.Endpoint, "error", err)
	h.Metrics.UpstreamError(0)
	writeJSONError(ctx, w, errUpstreamUnavailable)
}

// relay copies upstream lines to the client as SSE frames until [DONE], EOF or
// disconnect. Once the first frame is sent, errors only end the stream.
func (h *CompletionsHandler) relay(ctx context.Context, w http.ResponseWriter, stream *upstream.Stream) {
	sse, err := NewSSEWriter(w)
	if err != nil {
		slog.ErrorContext(ctx, "SSE not supported", "error", err)
		writeJSONError(ctx, w, &Error{
			Status: http.StatusInternalServerError,
			Detail: http.StatusText(http.StatusInternalServerError),
		})
		return
	}

	var frames int
	defer func() {
		h.Metrics.FramesRelayed(h.Endpoint, frames)
	}()

	for frame, err := range relay.Frames(stream.Lines()) {
		// Check for client disconnect before processing frame
		if ctx.Err() != nil {
			slog.DebugContext(ctx, "client disconnected during stream", "frames", frames)
			return
		}

		if err != nil {
			slog.ErrorContext(ctx, "stream error", "endpoint", h.Endpoint, "frames", frames, "error", err)
			return
		}

		if err := sse.WriteFrame(frame); err != nil {
			slog.ErrorContext(ctx, "failed to write frame", "error", err)
			return
		}
		frames++
	}

	slog.DebugContext(ctx, "stream completed", "endpoint", h.Endpoint, "frames", frames)
}
