package server

import (
	"context"
	"net"

	"github.com/canwire/mcan/internal/wire"
)

// Handshake runs the required TCP hello exchange.
func (s *Server) Handshake(ctx context.Context, c net.Conn) error {
	return wire.Handshake(ctx, c, s.handshakeTimeout)
}
