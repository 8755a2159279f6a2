package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/agentstation/ecomap"
	"github.com/agentstation/ecomap/internal/server/response"
	"github.com/agentstation/ecomap/pkg/entity"
)

// HandleStats handles GET /api/v1/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	all, err := h.client.Entities(r.Context(), ecomap.Query{IncludeAbsorbed: true})
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}

	byStatus := map[entity.Status]int{}
	byType := map[entity.Type]int{}
	absorbed, scored := 0, 0
	for _, e := range all {
		if e.Absorbed() {
			absorbed++
			continue
		}
		byStatus[e.Status]++
		byType[e.Type]++
		if e.GrowthScore != nil {
			scored++
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	response.OK(w, map[string]any{
		"runtime": map[string]any{
			"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
			"goroutines":     runtime.NumGoroutine(),
			"memory_mb":      mem.Alloc / 1024 / 1024,
		},
		"catalog": map[string]any{
			"entities":  len(all) - absorbed,
			"absorbed":  absorbed,
			"scored":    scored,
			"by_status": byStatus,
			"by_type":   byType,
		},
		"events": h.broker.Stats(),
		"realtime": map[string]any{
			"websocket_clients": h.wsHub.ClientCount(),
			"sse_clients":       h.sseBroadcaster.ClientCount(),
		},
		"cache": h.cache.Stats(),
	})
}
