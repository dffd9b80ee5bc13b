package app

import (
	"log/slog"
	"sync/atomic"

	"github.com/florianilch/solar-proxy/internal/proxy"
)

// Health tracks whether the proxy should receive traffic. It starts not ready,
// turns ready once the listener is up and drops back to not ready when shutdown
// begins, while liveness keeps reporting OK until the process exits.
type Health struct {
	ready atomic.Bool
}

// Compile-time check that Health implements proxy.ReadinessChecker interface
var _ proxy.ReadinessChecker = (*Health)(nil)

// NewHealth creates a new Health instance initialized as not ready.
func NewHealth() *Health {
	return &Health{}
}

// SetReady updates the readiness state and logs transitions.
func (h *Health) SetReady(ready bool) {
	if h.ready.Swap(ready) != ready {
		slog.Info("readiness changed", "ready", ready)
	}
}

// IsReady returns the current readiness state.
func (h *Health) IsReady() bool {
	return h.ready.Load()
}
