// Package admin provides the JSON admin API for inspecting and driving live
// socket connections.
package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/socketgate/socketgate/internal/domain/connection"
	"github.com/socketgate/socketgate/internal/domain/ratelimit"
	"github.com/socketgate/socketgate/internal/service"
)

// ConnectionStore is the read and fan-out view of the connection registry
// used by the admin API.
type ConnectionStore interface {
	Get(id string) (*connection.Manager, bool)
	List() []*connection.Manager
	Size() int
	Broadcast(event string, v any) int
}

// DefaultAPIRateLimit is the per-address budget for remote admin callers.
var DefaultAPIRateLimit = ratelimit.Config{Rate: 60, Burst: 60, Period: time.Minute}

// AdminAPIHandler provides JSON API endpoints for the admin interface.
type AdminAPIHandler struct {
	connections  ConnectionStore
	statsService *service.StatsService
	limiter      ratelimit.Limiter
	apiLimit     ratelimit.Config
	token        string
	tokenHash    string
	buildInfo    *BuildInfo
	logger       *slog.Logger
	startTime    time.Time
}

// AdminAPIOption configures an AdminAPIHandler dependency.
type AdminAPIOption func(*AdminAPIHandler)

// WithConnections sets the connection registry.
func WithConnections(c ConnectionStore) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.connections = c }
}

// WithStatsService sets the stats service for dashboard statistics.
func WithStatsService(s *service.StatsService) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.statsService = s }
}

// WithRateLimiter sets the limiter applied to remote admin callers.
func WithRateLimiter(l ratelimit.Limiter, cfg ratelimit.Config) AdminAPIOption {
	return func(h *AdminAPIHandler) {
		h.limiter = l
		h.apiLimit = cfg
	}
}

// WithToken admits remote callers presenting "Authorization: Bearer <token>".
// Without a token the API is localhost-only.
func WithToken(token string) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.token = token }
}

// WithTokenHash admits remote callers whose bearer token matches hash, an
// Argon2id PHC string produced by HashToken.
func WithTokenHash(hash string) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.tokenHash = hash }
}

// WithAPILogger sets the logger.
func WithAPILogger(l *slog.Logger) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.logger = l }
}

// WithBuildInfo sets the build version information.
func WithBuildInfo(info *BuildInfo) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.buildInfo = info }
}

// WithStartTime sets the server start time for uptime calculation.
func WithStartTime(t time.Time) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.startTime = t }
}

// NewAdminAPIHandler creates a new AdminAPIHandler with the given options.
func NewAdminAPIHandler(opts ...AdminAPIOption) *AdminAPIHandler {
	h := &AdminAPIHandler{
		apiLimit:  DefaultAPIRateLimit,
		logger:    slog.Default(),
		startTime: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "admin")
	return h
}

// Routes returns an http.Handler with all admin API routes registered.
// Every route goes through the access check and, for remote callers, the
// API rate limit.
func (h *AdminAPIHandler) Routes() http.Handler {
	mux := http.NewServeMux()

	// Live connections.
	mux.HandleFunc("GET /admin/api/connections", h.handleListConnections)
	mux.HandleFunc("GET /admin/api/connections/{id}", h.handleGetConnection)
	mux.HandleFunc("POST /admin/api/connections/{id}/emit", h.handleEmit)
	mux.HandleFunc("DELETE /admin/api/connections/{id}", h.handleDisconnect)
	mux.HandleFunc("POST /admin/api/broadcast", h.handleBroadcast)

	// Stats and system info.
	mux.HandleFunc("GET /admin/api/stats", h.handleGetStats)
	mux.HandleFunc("DELETE /admin/api/stats", h.handleResetStats)
	mux.HandleFunc("GET /admin/api/system", h.handleSystemInfo)

	return h.apiRateLimitMiddleware(h.adminAuthMiddleware(mux))
}

// --- JSON helper methods ---

// respondJSON writes a JSON response with the given status code and data.
func (h *AdminAPIHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes a JSON error response with the given status code and message.
func (h *AdminAPIHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// maxBodySize bounds admin request bodies.
const maxBodySize = 1 << 20

// readJSON decodes the request body into the given value.
// Returns an error if the body cannot be decoded as JSON.
func (h *AdminAPIHandler) readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v)
}
