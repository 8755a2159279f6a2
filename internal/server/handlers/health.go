package handlers

import (
	"net/http"

	"github.com/agentstation/ecomap"
	"github.com/agentstation/ecomap/internal/server/response"
)

// HandleHealth handles GET /health (liveness).
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, map[string]any{
		"status":  "healthy",
		"service": "ecomap-api",
		"version": "v1",
	})
}

// HandleReady handles GET /api/v1/ready. It answers 503 while the entity
// store cannot serve reads.
func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := h.client.Entities(r.Context(), ecomap.Query{Limit: 1}); err != nil {
		h.logger.Warn().Err(err).Msg("Readiness check failed")
		response.ServiceUnavailable(w, "entity store not available")
		return
	}
	response.OK(w, map[string]any{
		"status":            "ready",
		"websocket_clients": h.wsHub.ClientCount(),
		"sse_clients":       h.sseBroadcaster.ClientCount(),
	})
}
