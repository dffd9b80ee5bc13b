package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/httplog/v3"
)

// Logging logs HTTP requests with method, path, status, and duration.
// Successful requests to quietPaths (probes, scrapes) are not logged.
func Logging(logger *slog.Logger, quietPaths ...string) func(http.Handler) http.Handler {
	return httplog.RequestLogger(logger, &httplog.Options{
		Schema: httplog.SchemaECS.Concise(true),

		// Authorization carries client API keys and is never logged.
		LogRequestHeaders:  []string{"Content-Type", "Origin", "User-Agent"},
		LogResponseHeaders: []string{"X-RateLimit-Remaining"},
		LogRequestBody:     nil,
		LogResponseBody:    nil,

		Skip: func(r *http.Request, respStatus int) bool {
			return respStatus < http.StatusBadRequest && slices.Contains(quietPaths, r.URL.Path)
		},

		RecoverPanics: false, // proxy.Recovery handles panics
	})
}

// SetLogAttrs sets attributes on the request log.
func SetLogAttrs(ctx context.Context, attrs ...slog.Attr) {
	httplog.SetAttrs(ctx, attrs...)
}
