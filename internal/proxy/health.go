package proxy

import "net/http"

// APIVersion is reported by the root endpoint.
const APIVersion = "1.0.0"

// statusResponse is the body of GET /.
type statusResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

// rootHandler reports that the proxy is up. It is not rate-limited.
func rootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(r.Context(), w, statusResponse{
			Message: "Solar Proxy API is running",
			Version: APIVersion,
		}, http.StatusOK)
	}
}

// livenessHandler handles liveness probe requests.
// Always returns 200 OK to indicate the process is alive.
func livenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
	}
}

// readinessHandler handles readiness probe requests.
// Returns 200 OK if the application is ready to serve traffic, 503 otherwise.
func readinessHandler(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		if checker.IsReady() {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}
}
