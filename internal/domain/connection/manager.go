// Package connection owns the lifecycle of one socket connection: it picks
// the protocol handler, wraps cookie and header policy around every request,
// forwards requests to the injection core and keeps the shared connection
// registry in step with the connection's open state.
package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/socketgate/socketgate/internal/domain/cookie"
	"github.com/socketgate/socketgate/internal/domain/header"
	"github.com/socketgate/socketgate/internal/domain/protocol"
	"github.com/socketgate/socketgate/internal/domain/ratelimit"
	"github.com/socketgate/socketgate/internal/port/outbound"
)

// IDHeader is stamped on every injected request with the connection id so
// the HTTP core can correlate requests and address the connection later.
const IDHeader = "x-socketgate-connection"

var (
	// ErrAlreadyBooted is returned by a second Boot call.
	ErrAlreadyBooted = errors.New("connection already booted")
	// ErrClosed is returned when operating on a disconnected connection.
	ErrClosed = errors.New("connection closed")
)

// Config is the per-connection policy.
type Config struct {
	// Cookies enables the per-connection cookie jar.
	Cookies bool
	// CookieURI scopes the jar. Defaults to cookie.DefaultURI.
	CookieURI string
	// Sticky names headers pinned to their handshake value.
	Sticky []string
	// Strip names headers removed from every response.
	Strip []string
	// Budget limits requests per connection when enabled.
	Budget ratelimit.Config
}

// Registry is the embedding application's id -> connection map. Boot
// registers without holding the manager's lock, so implementations may call
// back into the manager.
type Registry interface {
	Register(m *Manager)
	Unregister(id string) bool
}

type state int

const (
	stateNew state = iota
	stateOpen
	stateClosed
)

// Manager coordinates one socket against the injection core.
type Manager struct {
	id        string
	socket    protocol.Socket
	injector  outbound.Injector
	cfg       Config
	policy    *header.Policy
	protocols *protocol.Registry
	limiter   ratelimit.Limiter
	observer  Observer
	logger    *slog.Logger
	tracer    trace.Tracer
	openedAt  time.Time

	mu       sync.Mutex
	state    state
	version  string
	handler  protocol.Handler
	jar      *cookie.Jar
	sticky   header.Values
	registry Registry
	ctx      context.Context
	offs     []func()

	inflight sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// WithProtocols replaces the protocol registry used for detection.
func WithProtocols(reg *protocol.Registry) Option {
	return func(m *Manager) { m.protocols = reg }
}

// WithLimiter sets the limiter enforcing Config.Budget.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(m *Manager) { m.limiter = l }
}

// WithID overrides the generated connection id.
func WithID(id string) Option {
	return func(m *Manager) { m.id = id }
}

// NewManager creates a Manager for an accepted socket. Nothing is attached
// to the socket until Boot.
func NewManager(socket protocol.Socket, injector outbound.Injector, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		id:       uuid.NewString(),
		socket:   socket,
		injector: injector,
		cfg:      cfg,
		policy:   header.NewPolicy(cfg.Sticky, cfg.Strip),
		observer: NopObserver{},
		tracer:   otel.Tracer(instrumentationName),
		openedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.protocols == nil {
		m.protocols = DefaultProtocols()
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.observer == nil {
		m.observer = NopObserver{}
	}
	m.logger = m.logger.With("component", "connection", "connection_id", m.id, "remote_addr", m.RemoteAddr())
	return m
}

// ID returns the connection id.
func (m *Manager) ID() string {
	return m.id
}

// OpenedAt returns when the socket was accepted.
func (m *Manager) OpenedAt() time.Time {
	return m.openedAt
}

// RemoteAddr returns the peer address from the handshake.
func (m *Manager) RemoteAddr() string {
	if hs := m.socket.Handshake(); hs != nil {
		return hs.Address
	}
	return ""
}

// Version returns the detected protocol version, empty before Boot.
func (m *Manager) Version() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

// IsOpen reports whether the connection is booted and not disconnected.
func (m *Manager) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == stateOpen
}

// Boot selects the protocol handler, seeds the cookie jar, freezes sticky
// header values, subscribes to requests and disconnect, registers the
// connection and boots the handler. ctx bounds injected requests; it is not
// tied to the connection's lifetime.
func (m *Manager) Boot(ctx context.Context, registry Registry) error {
	m.mu.Lock()
	switch m.state {
	case stateOpen:
		m.mu.Unlock()
		return ErrAlreadyBooted
	case stateClosed:
		m.mu.Unlock()
		return ErrClosed
	}

	handler, version, err := m.DetectVersion()
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to detect protocol: %w", err)
	}

	hs := m.socket.Handshake()
	if hs == nil {
		hs = &protocol.Handshake{}
	}

	var jar *cookie.Jar
	if m.cfg.Cookies {
		jar, err = cookie.New(m.cfg.CookieURI, m.logger)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("failed to create cookie jar: %w", err)
		}
		jar.OnParseFailure = m.observer.CookieParseFailed
		jar.Update(hs.Headers)
	}

	m.state = stateOpen
	m.version = version
	m.handler = handler
	m.jar = jar
	m.sticky = m.policy.Capture(hs.Headers)
	m.registry = registry
	m.ctx = ctx

	handler.OnRequest(m.OnRequest)
	m.offs = append(m.offs, m.socket.On(protocol.EventDisconnect, func(json.RawMessage, protocol.Ack) {
		m.Disconnect()
	}))
	m.mu.Unlock()

	if registry != nil {
		registry.Register(m)
		// A Disconnect racing this Register has already unregistered.
		if !m.IsOpen() {
			registry.Unregister(m.id)
		}
	}

	if err := handler.Boot(); err != nil {
		m.Disconnect()
		return fmt.Errorf("failed to boot %s handler: %w", version, err)
	}

	m.observer.ConnectionOpened(version)
	m.logger.Info("connection opened", "protocol", version, "cookies", m.cfg.Cookies)
	return nil
}

// DetectVersion builds the protocol handler matching the socket's
// handshake and returns it with its version. Unknown or missing version
// markers fall back to the default protocol. It does not change the
// manager; Boot records the version.
func (m *Manager) DetectVersion() (protocol.Handler, string, error) {
	handler, version, err := m.protocols.Detect(m.socket)
	if err != nil {
		return nil, "", err
	}
	m.logger.Debug("protocol detected", "protocol", version)
	return handler, version, nil
}

// OnRequest applies sticky headers, cookies and the connection id to req,
// then forwards it to the injector. respond is invoked with the response
// only if the connection is still open when the injector completes.
func (m *Manager) OnRequest(req *protocol.Request, respond protocol.Responder) {
	m.mu.Lock()
	if m.state != stateOpen {
		m.mu.Unlock()
		m.observer.ResponseDropped()
		return
	}
	ctx, jar, sticky := m.ctx, m.jar, m.sticky
	m.mu.Unlock()

	if req.Headers == nil {
		req.Headers = protocol.Header{}
	}
	start := time.Now()

	if res := m.admit(ctx); res != nil {
		m.complete(req, res, respond, start)
		return
	}

	m.policy.ApplySticky(req.Headers, sticky)
	jar.Sync(req.Headers)
	req.Headers.Del(IDHeader)
	req.Headers[IDHeader] = m.id

	m.inflight.Add(1)
	go m.forward(ctx, req, respond, start)
}

// admit enforces the request budget and returns a rejection response when
// it is exhausted.
func (m *Manager) admit(ctx context.Context) *protocol.RawResponse {
	if m.limiter == nil || !m.cfg.Budget.Enabled() {
		return nil
	}
	res, err := m.limiter.Allow(ctx, ratelimit.FormatKey(ratelimit.KeyTypeConnection, m.id), m.cfg.Budget)
	if err != nil {
		m.logger.Warn("rate limiter failed, admitting request", "error", err)
		return nil
	}
	if res.Allowed {
		return nil
	}
	m.observer.RequestRejected("rate_limited")
	rejected := protocol.ErrorResponse(http.StatusTooManyRequests, "request budget exhausted")
	rejected.Headers["retry-after"] = fmt.Sprintf("%d", int(res.RetryAfter.Seconds()+0.999))
	return rejected
}

func (m *Manager) forward(ctx context.Context, req *protocol.Request, respond protocol.Responder, start time.Time) {
	defer m.inflight.Done()

	ctx, span := m.tracer.Start(ctx, "socketgate.inject", trace.WithAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.String("url.full", req.URL),
		attribute.String("socketgate.connection_id", m.id),
	))
	defer span.End()

	res, err := m.injector.Inject(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.Warn("injection failed", "method", req.Method, "url", req.URL, "error", err)
		res = protocol.ErrorResponse(http.StatusBadGateway, "upstream unavailable")
	} else if res == nil {
		res = protocol.ErrorResponse(http.StatusBadGateway, "empty upstream response")
	}
	span.SetAttributes(attribute.Int("http.response.status_code", res.StatusCode))

	m.complete(req, res, respond, start)
}

// complete strips headers, absorbs response cookies and delivers res, or
// drops it if the connection closed in the meantime.
func (m *Manager) complete(req *protocol.Request, res *protocol.RawResponse, respond protocol.Responder, start time.Time) {
	m.mu.Lock()
	open, jar := m.state == stateOpen, m.jar
	m.mu.Unlock()

	if !open {
		m.observer.ResponseDropped()
		m.logger.Debug("dropping response for closed connection", "method", req.Method, "url", req.URL)
		return
	}

	if res.Headers == nil {
		res.Headers = protocol.Header{}
	}
	m.policy.Strip(res.Headers)
	jar.Update(res.Headers)

	m.observer.RequestCompleted(req.Method, res.StatusCode, time.Since(start))
	m.logger.Debug("request completed", "method", req.Method, "url", req.URL, "status", res.StatusCode)
	respond(res)
}

// SyncCookies merges the jar's cookie state into headers. No-op when
// cookies are disabled, the connection is closed or headers is nil.
func (m *Manager) SyncCookies(headers protocol.Header) {
	m.mu.Lock()
	jar := m.jar
	m.mu.Unlock()
	jar.Sync(headers)
}

// UpdateCookies absorbs cookie-setting headers into the jar. No-op when
// cookies are disabled, the connection is closed or headers is nil.
func (m *Manager) UpdateCookies(headers protocol.Header) {
	m.mu.Lock()
	jar := m.jar
	m.mu.Unlock()
	jar.Update(headers)
}

// Emit pushes an event to this connection's peer.
func (m *Manager) Emit(event string, v any) error {
	if !m.IsOpen() {
		return ErrClosed
	}
	return m.socket.Emit(event, v)
}

// Disconnect closes the handler, releases the handler and cookie jar and
// removes the connection from the registry. Calls after the first have no
// effect. In-flight injections keep running; their responses are dropped.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state == stateClosed {
		m.mu.Unlock()
		return
	}
	wasOpen := m.state == stateOpen
	m.state = stateClosed
	handler, registry, offs, ctx := m.handler, m.registry, m.offs, m.ctx
	m.handler, m.jar, m.offs = nil, nil, nil
	version := m.version
	m.mu.Unlock()

	for _, off := range offs {
		off()
	}
	if handler != nil {
		handler.Close()
	}
	if registry != nil {
		registry.Unregister(m.id)
	}
	if m.limiter != nil {
		m.limiter.Forget(ratelimit.FormatKey(ratelimit.KeyTypeConnection, m.id))
	}

	if !wasOpen {
		return
	}
	lifetime := time.Since(m.openedAt)
	if ctx == nil {
		ctx = context.Background()
	}
	recordLifetime(ctx, version, lifetime)
	m.observer.ConnectionClosed(lifetime)
	m.logger.Info("connection closed", "duration", lifetime)
}

// Kick disconnects the connection and closes its transport socket when the
// socket supports closing.
func (m *Manager) Kick() {
	m.Disconnect()
	if c, ok := m.socket.(io.Closer); ok {
		_ = c.Close()
	}
}

// Wait blocks until every injection started so far has completed.
func (m *Manager) Wait() {
	m.inflight.Wait()
}
