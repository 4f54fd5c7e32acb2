package connection

import (
	"github.com/socketgate/socketgate/internal/domain/protocol"
	"github.com/socketgate/socketgate/internal/domain/protocol/sails"
)

// DefaultProtocols returns the registry of supported socket protocols.
// Sails is both the only variant and the explicit fallback, so every
// detected marker currently resolves to it.
func DefaultProtocols() *protocol.Registry {
	reg := protocol.NewRegistry()
	sails.Register(reg)
	return reg
}
