package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/agentstation/authrelay/internal/server/response"
	"github.com/agentstation/authrelay/internal/server/sse"
	ws "github.com/agentstation/authrelay/internal/server/websocket"
	"github.com/agentstation/authrelay/pkg/logging"
)

const (
	wsPrefix  = "ws-"
	ssePrefix = "sse-"
)

// HandleWebSocket handles GET {prefix}/ws. The viewer receives every event
// captured after it connects; it fetches history itself.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		h.logger.Warn().Err(err).Str("origin", r.Header.Get("Origin")).Msg("WebSocket upgrade failed")
		return
	}

	id := wsPrefix + uuid.NewString()
	logger := h.logger.With().Str("subscriber_id", id).Logger()
	ws.Serve(h.broker, id, conn, &logger)
}

// HandleSSE handles GET {prefix}/stream.
func (h *Handlers) HandleSSE(w http.ResponseWriter, r *http.Request) {
	id := ssePrefix + uuid.NewString()
	sse.Stream(w, r, h.broker, id, logging.FromContext(r.Context()))
}

// HandleNotFound answers unknown routes.
func (h *Handlers) HandleNotFound(w http.ResponseWriter, _ *http.Request) {
	response.NotFound(w)
}
