package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/socketgate/socketgate/internal/domain/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// DefaultReadLimit is the maximum frame size accepted from a peer.
	DefaultReadLimit = 1 << 20
)

// ErrClosed is returned when writing to a closed socket.
var ErrClosed = errors.New("socket closed")

// inFrame is a client event. ID is set when the client expects an ack.
type inFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	ID    *int64          `json:"id,omitempty"`
}

type ackFrame struct {
	Ack  int64 `json:"ack"`
	Data any   `json:"data"`
}

type pushFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Socket is a protocol.Socket over one gorilla/websocket connection.
type Socket struct {
	conn      *websocket.Conn
	handshake *protocol.Handshake
	logger    *slog.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	listeners map[string]map[int]protocol.Listener
	next      int
	closed    bool

	done      chan struct{}
	closeOnce sync.Once
}

func newSocket(conn *websocket.Conn, hs *protocol.Handshake, readLimit int64, logger *slog.Logger) *Socket {
	conn.SetReadLimit(readLimit)
	return &Socket{
		conn:      conn,
		handshake: hs,
		logger:    logger,
		listeners: make(map[string]map[int]protocol.Listener),
		done:      make(chan struct{}),
	}
}

// handshakeFrom captures the upgrade request. Header names are lower-cased
// and multiple values joined with ", ".
func handshakeFrom(r *http.Request) *protocol.Handshake {
	headers := make(protocol.Header, len(r.Header)+1)
	for name, values := range r.Header {
		headers[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	if r.Host != "" {
		headers["host"] = r.Host
	}
	return &protocol.Handshake{
		Headers: headers,
		Query:   r.URL.Query(),
		Address: r.RemoteAddr,
		URL:     r.URL.RequestURI(),
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

// Emit implements protocol.Socket by pushing an event frame.
func (s *Socket) Emit(event string, v any) error {
	return s.writeJSON(pushFrame{Event: event, Data: v})
}

// Close closes the underlying connection. The read loop then fires
// disconnect.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.writeMu.Lock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"))
		s.writeMu.Unlock()

		_ = s.conn.Close()
	})
	return nil
}

// RemoteAddr returns the peer address.
func (s *Socket) RemoteAddr() string {
	return s.handshake.Address
}

func (s *Socket) writeJSON(v any) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// ack returns the acknowledgement callback for a frame id. Only the first
// call writes; acks after close are dropped.
func (s *Socket) ack(id int64) protocol.Ack {
	var once sync.Once
	return func(v any) {
		once.Do(func() {
			if err := s.writeJSON(ackFrame{Ack: id, Data: v}); err != nil && !errors.Is(err, ErrClosed) {
				s.logger.Debug("failed to write ack", "ack", id, "error", err)
			}
		})
	}
}

// fire calls every listener for event outside the listener lock.
func (s *Socket) fire(event string, raw json.RawMessage, ack protocol.Ack) int {
	s.mu.Lock()
	ls := make([]protocol.Listener, 0, len(s.listeners[event]))
	for _, l := range s.listeners[event] {
		ls = append(ls, l)
	}
	s.mu.Unlock()

	for _, l := range ls {
		l(raw, ack)
	}
	return len(ls)
}

// readLoop dispatches frames sequentially until the connection fails, then
// fires disconnect exactly once.
func (s *Socket) readLoop() {
	defer func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		_ = s.conn.Close()
		s.fire(protocol.EventDisconnect, nil, nil)
	}()

	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn("unexpected websocket close", "error", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		var frame inFrame
		if err := json.Unmarshal(message, &frame); err != nil || frame.Event == "" {
			s.logger.Debug("ignoring malformed frame", "size", len(message))
			continue
		}
		if frame.Event == protocol.EventDisconnect {
			// Reserved for the transport.
			continue
		}

		var ack protocol.Ack
		if frame.ID != nil {
			ack = s.ack(*frame.ID)
		}
		if n := s.fire(frame.Event, frame.Data, ack); n == 0 {
			s.logger.Debug("no listener for event", "event", frame.Event)
		}
	}
}

// pingLoop keeps the connection alive until the read loop ends.
func (s *Socket) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.writeMu.Unlock()
			if err != nil {
				s.logger.Debug("ping failed", "error", err)
				_ = s.conn.Close()
				return
			}
		}
	}
}

var _ protocol.Socket = (*Socket)(nil)
