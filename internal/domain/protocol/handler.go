package protocol

import (
	"encoding/json"
	"errors"
)

// EventDisconnect is fired by a Socket exactly once when the peer goes away.
const EventDisconnect = "disconnect"

var (
	// ErrAlreadyBooted is returned when Boot is called on a booted handler.
	ErrAlreadyBooted = errors.New("protocol handler already booted")
	// ErrClosed is returned when a closed handler is asked to boot.
	ErrClosed = errors.New("protocol handler closed")
	// ErrUnknownVersion is returned by a Registry with no matching variant
	// and no default.
	ErrUnknownVersion = errors.New("no protocol handler for version")
)

// Ack replies to the event that carried it. Calling it more than once has
// no effect beyond the first call.
type Ack func(v any)

// Listener receives a socket event. ack is nil when the peer did not ask
// for a reply.
type Listener func(raw json.RawMessage, ack Ack)

// Socket is the transport collaborator a handler and a connection listen on.
// Socket implementations own the underlying connection; nothing in this
// package closes it.
type Socket interface {
	// Handshake returns the handshake captured when the socket was accepted.
	Handshake() *Handshake

	// On registers l for event and returns a function detaching it.
	On(event string, l Listener) (off func())

	// Emit pushes an unsolicited event to the peer.
	Emit(event string, v any) error
}

// Responder delivers an injection result back through the protocol layer.
type Responder func(res *RawResponse)

// RequestFunc is invoked for every request a handler normalizes.
type RequestFunc func(req *Request, respond Responder)

// State is the lifecycle state of a Handler.
type State int

const (
	StateUnbooted State = iota
	StateBooted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnbooted:
		return "unbooted"
	case StateBooted:
		return "booted"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handler translates protocol-specific socket events into Requests and
// RawResponses back into protocol-specific replies.
//
// Transitions: Unbooted -> Booted (Boot), Booted -> Closed (Close). Closed
// is terminal.
type Handler interface {
	// Boot attaches the handler's listeners to its socket.
	Boot() error

	// OnRequest sets the function receiving normalized requests. It must be
	// called before Boot.
	OnRequest(fn RequestFunc)

	// Close detaches every listener. Safe to call more than once.
	Close()

	// State reports the current lifecycle state.
	State() State
}

// Constructor builds a Handler bound to a socket.
type Constructor func(socket Socket) Handler
