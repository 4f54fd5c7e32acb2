package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/socketgate/socketgate/internal/domain/connection"
	"github.com/socketgate/socketgate/internal/domain/protocol"
	"github.com/socketgate/socketgate/internal/domain/ratelimit"
	"github.com/socketgate/socketgate/internal/port/inbound"
	"github.com/socketgate/socketgate/internal/port/outbound"
)

// ErrConnectLimited is returned when a remote address opens connections
// faster than its connect budget allows.
var ErrConnectLimited = errors.New("connection rate limit exceeded")

// Gateway accepts sockets from a transport and boots a connection manager
// for each one against the shared injector and registry.
type Gateway struct {
	injector  outbound.Injector
	registry  connection.Registry
	cfg       connection.Config
	protocols *protocol.Registry
	limiter   ratelimit.Limiter
	connect   ratelimit.Config
	observer  connection.Observer
	logger    *slog.Logger
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithGatewayLogger sets the logger handed to every connection.
func WithGatewayLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = logger }
}

// WithObserver sets the observer every connection reports to.
func WithObserver(o connection.Observer) GatewayOption {
	return func(g *Gateway) { g.observer = o }
}

// WithLimiter sets the limiter enforcing request and connect budgets.
func WithLimiter(l ratelimit.Limiter) GatewayOption {
	return func(g *Gateway) { g.limiter = l }
}

// WithConnectBudget limits how fast one remote address may open
// connections. Requires WithLimiter.
func WithConnectBudget(cfg ratelimit.Config) GatewayOption {
	return func(g *Gateway) { g.connect = cfg }
}

// WithProtocols replaces the protocol registry.
func WithProtocols(reg *protocol.Registry) GatewayOption {
	return func(g *Gateway) { g.protocols = reg }
}

// NewGateway creates a Gateway.
func NewGateway(injector outbound.Injector, registry connection.Registry, cfg connection.Config, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		injector: injector,
		registry: registry,
		cfg:      cfg,
		observer: connection.NopObserver{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.protocols == nil {
		g.protocols = connection.DefaultProtocols()
	}
	return g
}

// Accept implements inbound.Acceptor.
func (g *Gateway) Accept(ctx context.Context, socket protocol.Socket) error {
	if err := g.admit(ctx, socket); err != nil {
		return err
	}

	opts := []connection.Option{
		connection.WithLogger(g.logger),
		connection.WithObserver(g.observer),
		connection.WithProtocols(g.protocols),
	}
	if g.limiter != nil {
		opts = append(opts, connection.WithLimiter(g.limiter))
	}

	m := connection.NewManager(socket, g.injector, g.cfg, opts...)
	if err := m.Boot(ctx, g.registry); err != nil {
		return fmt.Errorf("failed to boot connection: %w", err)
	}
	return nil
}

func (g *Gateway) admit(ctx context.Context, socket protocol.Socket) error {
	if g.limiter == nil || !g.connect.Enabled() {
		return nil
	}
	addr := remoteHost(socket)
	if addr == "" {
		return nil
	}
	res, err := g.limiter.Allow(ctx, ratelimit.FormatKey(ratelimit.KeyTypeAddress, addr), g.connect)
	if err != nil {
		g.logger.Warn("connect limiter failed, admitting connection", "remote_addr", addr, "error", err)
		return nil
	}
	if !res.Allowed {
		g.observer.RequestRejected("connect_rate_limited")
		return fmt.Errorf("%w: %s retry after %s", ErrConnectLimited, addr, res.RetryAfter)
	}
	return nil
}

// remoteHost returns the host part of the socket's remote address.
func remoteHost(socket protocol.Socket) string {
	hs := socket.Handshake()
	if hs == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(hs.Address)
	if err != nil {
		return hs.Address
	}
	return host
}

var _ inbound.Acceptor = (*Gateway)(nil)
