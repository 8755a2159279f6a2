package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/agentstation/ecomap/internal/server/events"
	ws "github.com/agentstation/ecomap/internal/server/websocket"
)

// HandleWebSocket handles GET /api/v1/updates/ws. The optional types
// parameter filters event types, for example ?types=entity,run.finished.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	id := fmt.Sprintf("%s-%d", r.RemoteAddr, time.Now().UnixNano())
	client := ws.NewClient(id, h.wsHub, conn, events.ParseFilter(r.URL.Query().Get("types")))
	h.wsHub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

// HandleSSE handles GET /api/v1/updates/stream.
func (h *Handlers) HandleSSE(w http.ResponseWriter, r *http.Request) {
	h.sseBroadcaster.ServeHTTP(w, r)
}
