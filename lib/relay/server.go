// Copyright 2026 The Scrybe Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/scrybe/scrybe/lib/wire"
)

// Server accepts wire-frame connections (producer, daemon, viewer) on
// a single TCP listener and dispatches each to the Registry. The HTTP
// REST surface (§6) is served separately by NewHTTPHandler against the
// same Registry.
type Server struct {
	registry *Registry
	logger   *slog.Logger
}

// NewServer creates a Server bound to registry.
func NewServer(registry *Registry, logger *slog.Logger) *Server {
	return &Server{registry: registry, logger: logger}
}

// Serve accepts connections on listener until ctx is cancelled or
// listener.Accept fails. Each connection is handled in its own
// goroutine; Serve itself never blocks on connection I/O (§5
// "Suspension points are only at transport I/O").
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		netConn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handleConnection(ctx, netConn)
	}
}

// handleConnection reads the mandatory hello frame and dispatches to
// the role-specific handler. Protocol faults close the connection
// without crashing the server (§7).
func (s *Server) handleConnection(ctx context.Context, netConn net.Conn) {
	envelope, err := wire.ReadFrame(netConn)
	if err != nil {
		s.logger.Debug("connection closed before hello", "error", err)
		_ = netConn.Close()
		return
	}
	if envelope.Type != wire.TypeHello {
		s.logger.Debug("first frame was not hello, closing", "type", envelope.Type)
		_ = netConn.Close()
		return
	}
	var hello wire.Hello
	if err := envelope.Decode(&hello); err != nil {
		s.logger.Debug("malformed hello, closing", "error", err)
		_ = netConn.Close()
		return
	}

	if hello.Role != wire.RoleDaemon && hello.SessionID == "" {
		s.logger.Debug("hello missing sessionId, closing", "role", hello.Role)
		_ = netConn.Close()
		return
	}

	c := newConn(netConn, hello.Role)
	var userID string
	if hello.UserSecret != "" {
		userID = DeriveUserID(hello.UserSecret)
	}

	switch hello.Role {
	case wire.RoleProducer:
		s.handleProducer(ctx, c, hello, userID)
	case wire.RoleViewer:
		s.handleViewer(ctx, c, hello)
	case wire.RoleDaemon:
		s.handleDaemon(ctx, c, userID)
	default:
		s.logger.Debug("unknown role, closing", "role", hello.Role)
		_ = netConn.Close()
	}
}

// readLoop runs fn for every frame read from c until the connection
// closes or ctx is cancelled, then returns. fn receives the envelope;
// a false return from fn stops the loop early.
func readLoop(ctx context.Context, netConn net.Conn, fn func(wire.Envelope) bool) {
	type result struct {
		envelope wire.Envelope
		err      error
	}
	frames := make(chan result)
	go func() {
		for {
			envelope, err := wire.ReadFrame(netConn)
			select {
			case frames <- result{envelope, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case r := <-frames:
			if r.err != nil {
				if !errors.Is(r.err, net.ErrClosed) {
					// Any other read error (EOF, reset) is a normal
					// disconnect, not logged as a fault.
				}
				return
			}
			if !fn(r.envelope) {
				return
			}
		}
	}
}
