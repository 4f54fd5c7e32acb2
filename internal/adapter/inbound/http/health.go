package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strconv"

	"github.com/socketgate/socketgate/internal/adapter/inbound/ws"
	"github.com/socketgate/socketgate/internal/adapter/outbound/memory"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	notConfigured   = "not configured"
)

// HealthResponse is the body served on /health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}

// probe reports one component's state and whether it is fit to serve.
type probe func() (string, bool)

// HealthChecker reports on the registry, the limiter and the socket server.
// Only a draining socket server makes the gateway unhealthy.
type HealthChecker struct {
	probes  map[string]probe
	version string
}

// NewHealthChecker builds a checker. Nil components report "not configured".
func NewHealthChecker(
	registry *memory.ConnectionRegistry,
	rateLimiter *memory.RateLimiter,
	sockets *ws.Server,
	version string,
) *HealthChecker {
	probes := map[string]probe{
		"goroutines": func() (string, bool) { return strconv.Itoa(runtime.NumGoroutine()), true },
	}

	probes["connections"] = func() (string, bool) {
		if registry == nil {
			return notConfigured, true
		}
		// Size takes the registry lock, so a deadlock shows up as a hung probe.
		return fmt.Sprintf("ok: %d open", registry.Size()), true
	}
	probes["rate_limiter"] = func() (string, bool) {
		if rateLimiter == nil {
			return notConfigured, true
		}
		return fmt.Sprintf("ok: %d keys", rateLimiter.Size()), true
	}
	probes["sockets"] = func() (string, bool) {
		switch {
		case sockets == nil:
			return notConfigured, true
		case sockets.Draining():
			return "draining", false
		default:
			return fmt.Sprintf("ok: %d active", sockets.Active()), true
		}
	}

	return &HealthChecker{probes: probes, version: version}
}

// Check runs every probe.
func (h *HealthChecker) Check() HealthResponse {
	resp := HealthResponse{
		Status:  statusHealthy,
		Checks:  make(map[string]string, len(h.probes)),
		Version: h.version,
	}
	for name, p := range h.probes {
		state, ok := p()
		resp.Checks[name] = state
		if !ok {
			resp.Status = statusUnhealthy
		}
	}
	return resp
}

// Handler serves Check as JSON, with 503 when unhealthy.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, h.Check())
	})
}

func writeHealth(w http.ResponseWriter, resp HealthResponse) {
	code := http.StatusOK
	if resp.Status != statusHealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// healthHandler answers /health when no checker is wired.
func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, HealthResponse{Status: statusHealthy, Checks: map[string]string{}})
	})
}
