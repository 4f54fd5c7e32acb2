// Package protocoltest provides an in-memory protocol.Socket for tests.
package protocoltest

import (
	"encoding/json"
	"sync"

	"github.com/socketgate/socketgate/internal/domain/protocol"
)

// Emitted records one Emit call.
type Emitted struct {
	Event string
	Data  any
}

// Socket is an in-memory protocol.Socket. Fire delivers events to the
// registered listeners synchronously.
type Socket struct {
	handshake *protocol.Handshake

	mu        sync.Mutex
	listeners map[string]map[int]protocol.Listener
	next      int
	emitted   []Emitted
}

// NewSocket creates a Socket with the given handshake.
func NewSocket(hs *protocol.Handshake) *Socket {
	return &Socket{
		handshake: hs,
		listeners: make(map[string]map[int]protocol.Listener),
	}
}

// Handshake implements protocol.Socket.
func (s *Socket) Handshake() *protocol.Handshake {
	return s.handshake
}

// On implements protocol.Socket.
func (s *Socket) On(event string, l protocol.Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	if s.listeners[event] == nil {
		s.listeners[event] = make(map[int]protocol.Listener)
	}
	s.listeners[event][id] = l

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners[event], id)
	}
}

// Emit implements protocol.Socket.
func (s *Socket) Emit(event string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitted = append(s.emitted, Emitted{Event: event, Data: v})
	return nil
}

// Fire delivers an event with a JSON-encoded payload to every listener.
func (s *Socket) Fire(event string, payload any, ack protocol.Ack) {
	var raw json.RawMessage
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}

	s.mu.Lock()
	ls := make([]protocol.Listener, 0, len(s.listeners[event]))
	for _, l := range s.listeners[event] {
		ls = append(ls, l)
	}
	s.mu.Unlock()

	for _, l := range ls {
		l(raw, ack)
	}
}

// ListenerCount reports how many listeners are attached to event.
func (s *Socket) ListenerCount(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners[event])
}

// Emitted returns a copy of every Emit call so far.
func (s *Socket) Emitted() []Emitted {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Emitted(nil), s.emitted...)
}
