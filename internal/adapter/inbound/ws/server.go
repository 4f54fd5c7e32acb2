// Package ws serves socket connections over WebSocket. Each text frame is a
// JSON event; events carrying an id are acknowledged with a reply frame.
//
//	client -> server  {"event": "get", "data": {...}, "id": 1}
//	server -> client  {"ack": 1, "data": {...}}
//	server -> client  {"event": "message", "data": ...}
package ws

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/socketgate/socketgate/internal/ctxkey"
	"github.com/socketgate/socketgate/internal/port/inbound"
)

// Server upgrades HTTP requests to WebSocket sockets and hands each socket
// to an Acceptor.
type Server struct {
	acceptor  inbound.Acceptor
	upgrader  websocket.Upgrader
	readLimit int64
	logger    *slog.Logger

	mu      sync.Mutex
	sockets map[*Socket]struct{}
	closed  bool
	wg      sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithCheckOrigin sets the upgrade origin check. The gorilla default
// rejects cross-origin upgrades.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(s *Server) { s.upgrader.CheckOrigin = fn }
}

// WithReadLimit sets the maximum accepted frame size.
func WithReadLimit(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.readLimit = n
		}
	}
}

// NewServer creates a Server delivering sockets to acceptor.
func NewServer(acceptor inbound.Acceptor, opts ...Option) *Server {
	s := &Server{
		acceptor: acceptor,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		readLimit: DefaultReadLimit,
		logger:    slog.Default(),
		sockets:   make(map[*Socket]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "ws")
	return s
}

// ServeHTTP upgrades the request and serves the socket until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		s.logger.Debug("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	logger := s.logger
	if l, ok := r.Context().Value(ctxkey.LoggerKey{}).(*slog.Logger); ok {
		logger = l.With("component", "ws")
	}
	hs := handshakeFrom(r)
	sock := newSocket(conn, hs, s.readLimit, logger.With("remote_addr", hs.Address))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = sock.Close()
		return
	}
	s.sockets[sock] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.sockets, sock)
		s.mu.Unlock()
		s.wg.Done()
	}()

	if err := s.acceptor.Accept(r.Context(), sock); err != nil {
		logger.Warn("socket rejected", "remote_addr", hs.Address, "error", err)
		_ = sock.Close()
		return
	}

	var pings sync.WaitGroup
	pings.Add(1)
	go func() {
		defer pings.Done()
		sock.pingLoop()
	}()

	sock.readLoop()
	pings.Wait()
}

// Active returns the number of open sockets.
func (s *Server) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sockets)
}

// Draining reports whether Close has been called.
func (s *Server) Draining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close closes every open socket and waits for their handlers to return.
// Upgrades arriving afterwards are closed immediately.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	socks := make([]*Socket, 0, len(s.sockets))
	for sock := range s.sockets {
		socks = append(socks, sock)
	}
	s.mu.Unlock()

	for _, sock := range socks {
		_ = sock.Close()
	}
	s.wg.Wait()
}
