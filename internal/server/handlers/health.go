package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/agentstation/authrelay/internal/server/response"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string  `json:"status"`
	Timestamp   string  `json:"timestamp"`
	Uptime      float64 `json:"uptime"`
	Environment string  `json:"environment"`
	Version     string  `json:"version,omitempty"`
}

// HandleHealth handles GET /health (liveness).
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	now := h.now()
	response.OK(w, HealthResponse{
		Status:      "ok",
		Timestamp:   now.UTC().Format(time.RFC3339Nano),
		Uptime:      now.Sub(h.info.StartedAt).Seconds(),
		Environment: h.info.Environment,
		Version:     h.info.Version,
	})
}

// HandleReady handles GET /ready. It fails once the broker has stopped.
func (h *Handlers) HandleReady(w http.ResponseWriter, _ *http.Request) {
	select {
	case <-h.broker.Done():
		response.ServiceUnavailable(w, "Event broker stopped")
		return
	default:
	}

	var wsCount, sseCount int
	for _, id := range h.broker.SubscriberIDs() {
		switch {
		case strings.HasPrefix(id, wsPrefix):
			wsCount++
		case strings.HasPrefix(id, ssePrefix):
			sseCount++
		}
	}

	store := h.ingress.Store()
	response.OK(w, map[string]any{
		"status": "ready",
		"history": map[string]any{
			"size":     store.Len(),
			"capacity": store.Capacity(),
			"version":  store.Version(),
		},
		"subscribers": map[string]any{
			"websocket": wsCount,
			"sse":       sseCount,
		},
		"broker": h.broker.Stats(),
		"cache":  h.cache.GetStats(),
	})
}
