// Package ctxkey holds context keys shared by the HTTP middleware and the
// socket server. It imports nothing internal.
package ctxkey

// LoggerKey stores the request-scoped *slog.Logger carrying request_id.
type LoggerKey struct{}
