package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/socketgate/socketgate/internal/domain/connection"
	"github.com/socketgate/socketgate/internal/domain/protocol"
)

// ConnectionResponse is the JSON view of one live connection.
type ConnectionResponse struct {
	ID         string    `json:"id"`
	Protocol   string    `json:"protocol"`
	RemoteAddr string    `json:"remote_addr"`
	OpenedAt   time.Time `json:"opened_at"`
	Open       bool      `json:"open"`
}

// EmitRequest is the body of POST /admin/api/connections/{id}/emit and
// POST /admin/api/broadcast.
type EmitRequest struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// BroadcastResponse reports how many connections an event reached.
type BroadcastResponse struct {
	Delivered int `json:"delivered"`
}

func toConnectionResponse(m *connection.Manager) ConnectionResponse {
	return ConnectionResponse{
		ID:         m.ID(),
		Protocol:   m.Version(),
		RemoteAddr: m.RemoteAddr(),
		OpenedAt:   m.OpenedAt().UTC(),
		Open:       m.IsOpen(),
	}
}

// lookup resolves the {id} path parameter, writing the error response when
// the connection store is missing or the id is unknown.
func (h *AdminAPIHandler) lookup(w http.ResponseWriter, r *http.Request) (*connection.Manager, bool) {
	if h.connections == nil {
		h.respondError(w, http.StatusServiceUnavailable, "connection registry not configured")
		return nil, false
	}
	m, ok := h.connections.Get(r.PathValue("id"))
	if !ok {
		h.respondError(w, http.StatusNotFound, "connection not found")
		return nil, false
	}
	return m, true
}

// handleListConnections returns every registered connection, oldest first.
// The response carries an ETag so pollers can skip unchanged lists.
func (h *AdminAPIHandler) handleListConnections(w http.ResponseWriter, r *http.Request) {
	resp := []ConnectionResponse{}
	if h.connections != nil {
		for _, m := range h.connections.List() {
			resp = append(resp, toConnectionResponse(m))
		}
	}
	h.respondCacheable(w, r, resp)
}

func (h *AdminAPIHandler) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	m, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, toConnectionResponse(m))
}

// readEmit decodes and validates an EmitRequest.
func (h *AdminAPIHandler) readEmit(w http.ResponseWriter, r *http.Request) (EmitRequest, bool) {
	var req EmitRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	switch req.Event {
	case "":
		h.respondError(w, http.StatusBadRequest, "event is required")
		return req, false
	case protocol.EventDisconnect:
		h.respondError(w, http.StatusBadRequest, "event name is reserved")
		return req, false
	}
	return req, true
}

// handleEmit pushes an event to one connection.
func (h *AdminAPIHandler) handleEmit(w http.ResponseWriter, r *http.Request) {
	m, ok := h.lookup(w, r)
	if !ok {
		return
	}
	req, ok := h.readEmit(w, r)
	if !ok {
		return
	}

	if err := m.Emit(req.Event, req.Data); err != nil {
		if errors.Is(err, connection.ErrClosed) {
			h.respondError(w, http.StatusConflict, "connection is closed")
			return
		}
		h.logger.Warn("emit failed", "connection_id", m.ID(), "event", req.Event, "error", err)
		h.respondError(w, http.StatusBadGateway, "emit failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBroadcast pushes an event to every open connection.
func (h *AdminAPIHandler) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	if h.connections == nil {
		h.respondError(w, http.StatusServiceUnavailable, "connection registry not configured")
		return
	}
	req, ok := h.readEmit(w, r)
	if !ok {
		return
	}
	n := h.connections.Broadcast(req.Event, req.Data)
	h.respondJSON(w, http.StatusOK, BroadcastResponse{Delivered: n})
}

// handleDisconnect closes one connection.
func (h *AdminAPIHandler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	m, ok := h.lookup(w, r)
	if !ok {
		return
	}
	m.Kick()
	h.logger.Info("connection kicked", "connection_id", m.ID())
	w.WriteHeader(http.StatusNoContent)
}
