package admin

import (
	"net/http"

	"github.com/socketgate/socketgate/internal/service"
)

// StatsResponse is the JSON response for GET /admin/api/stats.
type StatsResponse struct {
	service.Stats
	OpenConnections int `json:"open_connections"`
}

// handleGetStats returns the gateway counters and the number of open
// connections.
func (h *AdminAPIHandler) handleGetStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{}

	if h.statsService != nil {
		resp.Stats = h.statsService.GetStats()
	}
	if h.connections != nil {
		resp.OpenConnections = h.connections.Size()
	}

	// Ensure maps are never null in JSON output.
	if resp.ProtocolCounts == nil {
		resp.ProtocolCounts = make(map[string]int64)
	}
	if resp.MethodCounts == nil {
		resp.MethodCounts = make(map[string]int64)
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// handleResetStats zeroes every counter.
func (h *AdminAPIHandler) handleResetStats(w http.ResponseWriter, r *http.Request) {
	if h.statsService == nil {
		h.respondError(w, http.StatusServiceUnavailable, "stats not configured")
		return
	}
	h.statsService.Reset()
	w.WriteHeader(http.StatusNoContent)
}
