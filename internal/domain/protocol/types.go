// Package protocol defines the protocol-agnostic request/response model that
// flows between socket transports and the HTTP injection core, plus the
// ProtocolHandler contract every socket protocol variant implements.
package protocol

import (
	"encoding/json"
	"net/url"
	"strings"
)

// Header is a mutable header mapping. Keys keep the case they arrived with;
// lookups that must ignore case go through Get and Del.
type Header map[string]string

// Get returns the value of the first key matching name case-insensitively.
func (h Header) Get(name string) (string, bool) {
	if v, ok := h[name]; ok {
		return v, true
	}
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// Del removes every key matching name case-insensitively.
func (h Header) Del(name string) {
	for k := range h {
		if strings.EqualFold(k, name) {
			delete(h, k)
		}
	}
}

// Clone returns a shallow copy of h. A nil Header clones to nil.
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	out := make(Header, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Request is a socket event normalized into an HTTP-style request.
type Request struct {
	// Method is the upper-case HTTP verb.
	Method string
	// URL is the request target as sent by the client (path plus query).
	URL string
	// Headers are the request headers; never nil after normalization.
	Headers Header
	// Payload is the raw JSON request body, nil when the event carried none.
	Payload json.RawMessage
}

// RawResponse is what the injection core produces for a Request.
type RawResponse struct {
	StatusCode int
	Headers    Header
	// Payload is a structured or string body.
	Payload any
	// RawPayload is the unprocessed body. When non-empty it takes precedence
	// over Payload.
	RawPayload []byte
}

// Response is the reply delivered back to a protocol client.
type Response struct {
	Body       any    `json:"body"`
	Headers    Header `json:"headers"`
	StatusCode int    `json:"statusCode"`
}

// Handshake captures the transport-level handshake of a socket connection.
type Handshake struct {
	// Headers holds the handshake request headers with lower-cased names.
	Headers Header
	// Query holds the handshake query parameters.
	Query url.Values
	// Address is the remote address of the peer.
	Address string
	// URL is the handshake request URI.
	URL string
}
