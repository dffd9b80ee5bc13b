package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		wantSame bool
	}{
		{name: "client id kept", header: "abc-123", wantSame: true},
		{name: "missing id generated", header: ""},
		{name: "id with spaces replaced", header: "abc 123"},
		{name: "overlong id replaced", header: strings.Repeat("a", maxRequestIDLength+1)},
		{name: "control characters replaced", header: "abc\x01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := RequestIDGeneration(RequestIDPropagation(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
			})))

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("X-Request-ID", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			if seen == "" {
				t.Fatal("request ID missing from context")
			}
			if got := w.Header().Get("X-Request-ID"); got != seen {
				t.Errorf("response header = %q, context = %q", got, seen)
			}
			if tt.wantSame && seen != tt.header {
				t.Errorf("request ID = %q, want %q", seen, tt.header)
			}
			if !tt.wantSame && seen == tt.header {
				t.Errorf("request ID %q should have been replaced", seen)
			}
		})
	}
}

func TestTraceContextExtraction(t *testing.T) {
	previous := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(previous) })

	var spanCtx trace.SpanContext
	handler := TraceContextExtraction(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		spanCtx = trace.SpanContextFromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	handler.ServeHTTP(httptest.NewRecorder(), r)

	if !spanCtx.IsValid() {
		t.Fatal("expected valid span context")
	}
	if got := spanCtx.TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace id = %s", got)
	}
	if !spanCtx.IsRemote() {
		t.Error("extracted span context should be remote")
	}
}
