package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/socketgate/socketgate/internal/adapter/inbound/admin"
	httpadapter "github.com/socketgate/socketgate/internal/adapter/inbound/http"
	"github.com/socketgate/socketgate/internal/adapter/inbound/ws"
	"github.com/socketgate/socketgate/internal/adapter/outbound/inject"
	"github.com/socketgate/socketgate/internal/adapter/outbound/memory"
	"github.com/socketgate/socketgate/internal/domain/connection"
	"github.com/socketgate/socketgate/internal/domain/protocol"
	"github.com/socketgate/socketgate/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// upstreamApp is the HTTP application requests are injected into.
func upstreamApp() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			User string `json:"user"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: body.User, Path: "/"})
		w.Header().Set("X-Powered-By", "app")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
		sid, err := r.Cookie("sid")
		if err != nil {
			http.Error(w, "not logged in", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Powered-By", "app")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"user":       sid.Value,
			"tenant":     r.Header.Get("X-Tenant"),
			"connection": r.Header.Get(connection.IDHeader),
		})
	})
	mux.HandleFunc("GET /slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	return mux
}

type stack struct {
	app      *httptest.Server
	srv      *httptest.Server
	registry *memory.ConnectionRegistry
	stats    *service.StatsService
	sockets  *ws.Server
}

// newStack wires the full gateway in front of upstreamApp.
func newStack(t *testing.T, cfg connection.Config) *stack {
	t.Helper()
	logger := testLogger()

	app := httptest.NewServer(upstreamApp())
	injector, err := inject.NewUpstreamInjector(app.URL, inject.WithLogger(logger), inject.WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("NewUpstreamInjector() error: %v", err)
	}

	registry := memory.NewConnectionRegistry(logger)
	limiter := memory.NewRateLimiter(logger)
	stats := service.NewStatsService()
	gw := service.NewGateway(injector, registry, cfg,
		service.WithGatewayLogger(logger),
		service.WithObserver(stats),
		service.WithLimiter(limiter),
	)
	sockets := ws.NewServer(gw, ws.WithLogger(logger), ws.WithCheckOrigin(func(*http.Request) bool { return true }))
	adminAPI := admin.NewAdminAPIHandler(
		admin.WithConnections(registry),
		admin.WithStatsService(stats),
		admin.WithAPILogger(logger),
	)
	transport := httpadapter.NewHTTPTransport(sockets,
		httpadapter.WithLogger(logger),
		httpadapter.WithAdminHandler(adminAPI.Routes()),
	)
	srv := httptest.NewServer(transport.Handler())

	t.Cleanup(func() {
		sockets.Close()
		registry.DisconnectAll()
		srv.Close()
		app.Close()
		limiter.Stop()
	})
	return &stack{app: app, srv: srv, registry: registry, stats: stats, sockets: sockets}
}

// frame is any server-to-client frame.
type frame struct {
	Ack   *int64          `json:"ack"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
	next int64
	// pushes buffers events read while waiting for an ack.
	pushes []frame
}

// dial connects as a sails.io.js client. header is sent on the upgrade.
func (s *stack) dial(t *testing.T, header http.Header) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/socket?__sails_io_sdk_version=1.2.1"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) read() frame {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f frame
	if err := c.conn.ReadJSON(&f); err != nil {
		c.t.Fatalf("ReadJSON() error: %v", err)
	}
	return f
}

// request sends a virtual request and waits for its acknowledgement.
func (c *client) request(method, url string, headers map[string]string, data any) protocol.Response {
	c.t.Helper()
	c.next++
	id := c.next
	if err := c.conn.WriteJSON(map[string]any{
		"event": strings.ToLower(method),
		"id":    id,
		"data":  map[string]any{"method": method, "url": url, "headers": headers, "data": data},
	}); err != nil {
		c.t.Fatalf("WriteJSON() error: %v", err)
	}

	for {
		f := c.read()
		if f.Ack == nil {
			c.pushes = append(c.pushes, f)
			continue
		}
		if *f.Ack != id {
			c.t.Fatalf("ack = %d, want %d", *f.Ack, id)
		}
		var res protocol.Response
		if err := json.Unmarshal(f.Data, &res); err != nil {
			c.t.Fatalf("ack data %s: %v", f.Data, err)
		}
		return res
	}
}

// push returns the next pushed event.
func (c *client) push() frame {
	c.t.Helper()
	if len(c.pushes) > 0 {
		f := c.pushes[0]
		c.pushes = c.pushes[1:]
		return f
	}
	for {
		f := c.read()
		if f.Ack == nil {
			return f
		}
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func adminURL(s *stack, format string, args ...any) string {
	return s.srv.URL + fmt.Sprintf(format, args...)
}
