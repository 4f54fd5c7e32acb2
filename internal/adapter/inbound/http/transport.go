package http

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/socketgate/socketgate/internal/adapter/inbound/ws"
)

// DefaultSocketPath is where socket upgrades are served.
const DefaultSocketPath = "/socket"

// shutdownTimeout bounds graceful shutdown of in-flight HTTP requests.
const shutdownTimeout = 10 * time.Second

// HTTPTransport is the inbound adapter that serves socket upgrades, health,
// metrics and the admin API on one listener.
type HTTPTransport struct {
	sockets        *ws.Server
	server         *http.Server
	addr           string
	socketPath     string
	allowedOrigins []string
	certFile       string
	keyFile        string
	logger         *slog.Logger
	adminHandler   http.Handler
	registry       *prometheus.Registry
	metrics        *Metrics
	healthChecker  *HealthChecker

	mu sync.Mutex
}

// Option is a functional option for configuring HTTPTransport.
type Option func(*HTTPTransport)

// WithAddr sets the listen address for the HTTP server.
// Default is "127.0.0.1:8080" (localhost only).
func WithAddr(addr string) Option {
	return func(t *HTTPTransport) {
		t.addr = addr
	}
}

// WithTLS enables TLS with the provided certificate and key files.
// If not set, the server runs without TLS (plain HTTP).
func WithTLS(certFile, keyFile string) Option {
	return func(t *HTTPTransport) {
		t.certFile = certFile
		t.keyFile = keyFile
	}
}

// WithSocketPath sets the path socket upgrades are served on.
func WithSocketPath(path string) Option {
	return func(t *HTTPTransport) {
		if path != "" {
			t.socketPath = path
		}
	}
}

// WithAllowedOrigins sets the origins admitted for socket upgrades.
// If empty, only same-host origins are admitted.
// Example: []string{"https://example.com", "http://localhost:3000"}
func WithAllowedOrigins(origins []string) Option {
	return func(t *HTTPTransport) {
		t.allowedOrigins = origins
	}
}

// WithLogger sets the logger for the HTTP transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *HTTPTransport) {
		t.logger = logger
	}
}

// WithAdminHandler mounts the admin API under /admin/.
func WithAdminHandler(h http.Handler) Option {
	return func(t *HTTPTransport) {
		t.adminHandler = h
	}
}

// WithMetrics serves reg on /metrics and records HTTP metrics into m.
// Without it the transport creates its own registry.
func WithMetrics(reg *prometheus.Registry, m *Metrics) Option {
	return func(t *HTTPTransport) {
		t.registry = reg
		t.metrics = m
	}
}

// WithHealthChecker sets the health checker for the /health endpoint.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(t *HTTPTransport) {
		t.healthChecker = hc
	}
}

// NewRegistry returns a Prometheus registry carrying the Go runtime and
// process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewHTTPTransport creates an HTTP transport serving the given socket server.
func NewHTTPTransport(sockets *ws.Server, opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		sockets:        sockets,
		addr:           "127.0.0.1:8080",
		socketPath:     DefaultSocketPath,
		allowedOrigins: []string{},
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.registry == nil {
		t.registry = NewRegistry()
	}
	if t.metrics == nil {
		t.metrics = NewMetrics(t.registry)
	}
	t.logger = t.logger.With("component", "http")

	return t
}

// Metrics returns the metrics the transport records into.
func (t *HTTPTransport) Metrics() *Metrics {
	return t.metrics
}

// Handler builds the routing table.
func (t *HTTPTransport) Handler() http.Handler {
	// Upgrades pass metrics, then request ID, then the origin check.
	mux := http.NewServeMux()
	if t.sockets != nil {
		var socketHandler http.Handler = t.sockets
		socketHandler = OriginAllowlist(t.allowedOrigins)(socketHandler)
		socketHandler = RequestIDMiddleware(t.logger)(socketHandler)
		socketHandler = MetricsMiddleware(t.metrics)(socketHandler)
		mux.Handle(t.socketPath, socketHandler)
	}
	if t.adminHandler != nil {
		admin := RequestIDMiddleware(t.logger)(t.adminHandler)
		admin = MetricsMiddleware(t.metrics)(admin)
		mux.Handle("/admin/", admin)
	}
	if t.healthChecker != nil {
		mux.Handle("/health", t.healthChecker.Handler())
	} else {
		mux.Handle("/health", healthHandler())
	}
	mux.Handle("/metrics", promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{
		Registry: t.registry,
	}))
	mux.Handle("/favicon.ico", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	return mux
}

// Start serves until ctx is cancelled or the listener fails.
func (t *HTTPTransport) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              t.addr,
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if t.tlsEnabled() {
		server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	t.mu.Lock()
	t.server = server
	t.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := t.listen(server); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		if err != nil && t.sockets != nil {
			t.sockets.Close()
		}
		return err
	}
}

func (t *HTTPTransport) tlsEnabled() bool {
	return t.certFile != "" && t.keyFile != ""
}

func (t *HTTPTransport) listen(server *http.Server) error {
	if t.tlsEnabled() {
		t.logger.Info("listening", "scheme", "https", "addr", t.addr, "socket_path", t.socketPath)
		return server.ListenAndServeTLS(t.certFile, t.keyFile)
	}
	t.logger.Info("listening", "scheme", "http", "addr", t.addr, "socket_path", t.socketPath)
	return server.ListenAndServe()
}

// shutdown closes every socket, then gracefully stops the HTTP server.
// Hijacked socket connections are invisible to http.Server.Shutdown, so
// the socket server is drained first.
func (t *HTTPTransport) shutdown() error {
	if t.sockets != nil {
		t.sockets.Close()
	}

	t.mu.Lock()
	server := t.server
	t.mu.Unlock()
	if server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}

	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *HTTPTransport) Close() error {
	return t.shutdown()
}
