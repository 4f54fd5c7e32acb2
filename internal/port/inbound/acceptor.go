// Package inbound defines the inbound port interfaces socket transports
// call into.
package inbound

import (
	"context"

	"github.com/socketgate/socketgate/internal/domain/protocol"
)

// Acceptor takes ownership of the protocol side of a newly accepted socket.
// Transports call Accept once per socket, before delivering any event.
type Acceptor interface {
	// Accept boots a connection for socket. A non-nil error means the
	// transport should close the socket.
	Accept(ctx context.Context, socket protocol.Socket) error
}
