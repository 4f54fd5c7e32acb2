// Package http serves the gateway's HTTP surface on one listener: the socket
// endpoint, component health, Prometheus metrics and, when mounted, the
// admin API.
//
// Wiring:
//
//	transport := http.NewHTTPTransport(sockets,
//	    http.WithAddr("127.0.0.1:1337"),
//	    http.WithSocketPath("/socket"),
//	    http.WithAllowedOrigins([]string{"https://app.example.com"}),
//	    http.WithAdminHandler(adminAPI.Routes()),
//	)
//	err := transport.Start(ctx)
//
// Routes:
//
//	/socket        websocket upgrade handed to the gateway
//	/health        JSON component checks, 503 while sockets drain
//	/metrics       Prometheus exposition
//	/admin/        admin API
//
// An upgrade is wrapped, outermost first, by MetricsMiddleware,
// RequestIDMiddleware and OriginAllowlist. The metrics recorder implements
// http.Hijacker and does not count hijacked requests.
//
// With WithTLS the listener requires TLS 1.2 or newer.
package http
