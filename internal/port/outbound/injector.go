// Package outbound defines the outbound port interfaces through which the
// connection core reaches the HTTP processing core.
package outbound

import (
	"context"

	"github.com/socketgate/socketgate/internal/domain/protocol"
)

// Injector is the injection interface: it processes a normalized request
// against an HTTP core without a client-side network connection and returns
// the core's response.
//
// Implementations must be safe for concurrent use; a connection may have
// many requests in flight at once.
type Injector interface {
	// Inject processes req. Errors mean no response could be produced at
	// all; HTTP error statuses are returned as responses.
	Inject(ctx context.Context, req *protocol.Request) (*protocol.RawResponse, error)
}

// InjectorFunc adapts an ordinary function to Injector.
type InjectorFunc func(ctx context.Context, req *protocol.Request) (*protocol.RawResponse, error)

// Inject calls f(ctx, req).
func (f InjectorFunc) Inject(ctx context.Context, req *protocol.Request) (*protocol.RawResponse, error) {
	return f(ctx, req)
}

var _ Injector = InjectorFunc(nil)
