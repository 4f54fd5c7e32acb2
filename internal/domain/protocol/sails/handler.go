// Package sails implements the Sails.io.js 0.11 socket protocol: each HTTP
// verb is its own socket event carrying {method, url, headers, data}, and
// the reply is delivered through the event's acknowledgement callback as
// {body, headers, statusCode}.
package sails

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/socketgate/socketgate/internal/domain/protocol"
)

const (
	// Version names the variant in a protocol.Registry.
	Version = "sails"
	// Marker is the handshake query parameter sails.io.js sends.
	Marker = "__sails_io_sdk_version"
)

// Events are the socket event names sails.io.js emits requests on.
var Events = []string{"get", "post", "put", "delete", "patch", "options", "head"}

var (
	errBadMethod = errors.New("invalid method")
	errBadURL    = errors.New("invalid url")
)

// event is the wire shape of a Sails request event.
type event struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Data    json.RawMessage   `json:"data"`
}

// Handler is the Sails protocol.Handler.
type Handler struct {
	socket protocol.Socket

	mu    sync.Mutex
	state protocol.State
	fn    protocol.RequestFunc
	offs  []func()
}

// New creates an unbooted Sails handler for socket.
func New(socket protocol.Socket) protocol.Handler {
	return &Handler{socket: socket}
}

// Register installs the Sails variant in reg and makes it the default.
func Register(reg *protocol.Registry) {
	reg.Register(Version, Marker, New)
	_ = reg.SetDefault(Version)
}

// OnRequest sets the request subscriber.
func (h *Handler) OnRequest(fn protocol.RequestFunc) {
	h.mu.Lock()
	h.fn = fn
	h.mu.Unlock()
}

// Boot attaches a listener for every Sails verb event.
func (h *Handler) Boot() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case protocol.StateBooted:
		return protocol.ErrAlreadyBooted
	case protocol.StateClosed:
		return protocol.ErrClosed
	}

	for _, name := range Events {
		h.offs = append(h.offs, h.socket.On(name, h.HandleEvent))
	}
	h.state = protocol.StateBooted
	return nil
}

// Close detaches all listeners. Requests arriving afterwards are ignored.
func (h *Handler) Close() {
	h.mu.Lock()
	offs := h.offs
	h.offs = nil
	h.state = protocol.StateClosed
	h.mu.Unlock()

	for _, off := range offs {
		off()
	}
}

// State reports the lifecycle state.
func (h *Handler) State() protocol.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// HandleEvent normalizes a raw Sails event and dispatches it. Malformed
// events are answered with a 400 without reaching the request subscriber.
func (h *Handler) HandleEvent(raw json.RawMessage, ack protocol.Ack) {
	if h.State() == protocol.StateClosed {
		return
	}

	var ev event
	if len(raw) > 0 {
		// An undecodable event is treated as empty and fails validation.
		_ = json.Unmarshal(raw, &ev)
	}

	req := &protocol.Request{
		Method:  strings.ToUpper(ev.Method),
		URL:     ev.URL,
		Headers: protocol.Header(ev.Headers),
	}
	if req.Headers == nil {
		req.Headers = protocol.Header{}
	}
	if len(ev.Data) > 0 && string(ev.Data) != "null" {
		req.Payload = ev.Data
	}

	respond := h.Respond(ack)
	if err := h.dispatch(req, respond); err != nil {
		respond(protocol.ErrorResponse(http.StatusBadRequest, err.Error()))
	}
}

// Respond wraps ack so it receives a RawResponse converted to the Sails
// reply shape.
func (h *Handler) Respond(ack protocol.Ack) protocol.Responder {
	return func(res *protocol.RawResponse) {
		if ack == nil {
			return
		}
		ack(protocol.Normalize(res))
	}
}

// dispatch validates req and hands it to the subscriber. It returns an error
// only for validation failures; a handler that is not booted drops the
// request.
func (h *Handler) dispatch(req *protocol.Request, respond protocol.Responder) error {
	if err := validate(req); err != nil {
		return err
	}

	h.mu.Lock()
	state, fn := h.state, h.fn
	h.mu.Unlock()

	if state != protocol.StateBooted {
		return nil
	}
	if fn == nil {
		respond(protocol.ErrorResponse(http.StatusServiceUnavailable, "no request subscriber"))
		return nil
	}
	fn(req, respond)
	return nil
}

func validate(req *protocol.Request) error {
	known := false
	for _, name := range Events {
		if strings.EqualFold(req.Method, name) {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("%w: %q", errBadMethod, req.Method)
	}
	if req.URL == "" {
		return fmt.Errorf("%w: empty", errBadURL)
	}
	if _, err := url.ParseRequestURI(req.URL); err != nil {
		return fmt.Errorf("%w: %q", errBadURL, req.URL)
	}
	return nil
}

var _ protocol.Handler = (*Handler)(nil)
